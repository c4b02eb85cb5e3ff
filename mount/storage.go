package mount

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ascent-project/ascent/iox"
	"github.com/ascent-project/ascent/types"
)

// ReadStorageInfo parses a filesystem table in fstab format (also the
// format of /proc/mounts) into storage facts, preserving row order.
// Comment and blank lines are skipped.
func ReadStorageInfo(path string) (types.StorageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.StorageInfo{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer iox.DiscardClose(f)

	var info types.StorageInfo
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		info.Fstab = append(info.Fstab, types.FstabEntry{
			Device:     fields[0],
			MountPoint: fields[1],
		})
	}
	if err := scanner.Err(); err != nil {
		return types.StorageInfo{}, fmt.Errorf("read %s: %w", path, err)
	}
	return info, nil
}
