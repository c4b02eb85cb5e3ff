package mount

import (
	"os"
	"path"
	"strings"

	"github.com/ascent-project/ascent/types"
)

// BindMount maps a host path onto a target path inside the staged root.
type BindMount struct {
	Source string
	Target string
}

func (b BindMount) String() string { return b.Source + ":" + b.Target }

// Probe abstracts the filesystem checks used by topology computation so
// it can be exercised against synthetic storage tables.
type Probe struct {
	// IsDir reports whether the path is an existing directory.
	IsDir func(string) bool
	// IsMount reports whether the path is a mount point of its own.
	IsMount func(string) bool
}

// DefaultProbe probes the live filesystem.
func DefaultProbe() Probe {
	return Probe{
		IsDir:   isDir,
		IsMount: isMountPoint,
	}
}

// UpgradeBinds computes the bind-mount set for the terminal upgrade stage:
// the real root plus the device, proc, and udev trees, one bind per real
// mounted directory-backed fstab entry not already covered, and /boot and
// /boot/efi when each is a distinct mount point.
//
// On el9 targets the host /sys is bound to an intermediate /hostsys inside
// the upgrade initramdisk to avoid a cgroup hierarchy clash; el8 binds
// /sys directly.
//
// Output order is stable (fixed set first, then fstab order): the
// container runtime applies binds sequentially and later entries must not
// shadow earlier, more specific ones. Callers must sort parent before
// child if nesting is possible.
func UpgradeBinds(storage types.StorageInfo, targetMajor string, probe Probe) []BindMount {
	binds := []BindMount{
		{Source: "/", Target: "/installroot"},
		{Source: "/dev", Target: "/installroot/dev"},
		{Source: "/proc", Target: "/installroot/proc"},
		{Source: "/run/udev", Target: "/installroot/run/udev"},
	}

	if targetMajor == "8" {
		binds = append(binds, BindMount{Source: "/sys", Target: "/installroot/sys"})
	} else {
		binds = append(binds, BindMount{Source: "/hostsys", Target: "/installroot/sys"})
	}

	covered := make(map[string]struct{}, len(binds))
	for _, b := range binds {
		covered[b.Source] = struct{}{}
	}

	for _, entry := range storage.Fstab {
		mp := entry.MountPoint
		if !probe.IsDir(mp) {
			continue
		}
		if _, ok := covered[mp]; ok {
			continue
		}
		covered[mp] = struct{}{}
		binds = append(binds, BindMount{
			Source: mp,
			Target: path.Join("/installroot", strings.TrimPrefix(mp, "/")),
		})
	}

	for _, mp := range []string{"/boot", "/boot/efi"} {
		if _, ok := covered[mp]; ok {
			continue
		}
		if probe.IsMount(mp) {
			binds = append(binds, BindMount{
				Source: mp,
				Target: path.Join("/installroot", strings.TrimPrefix(mp, "/")),
			})
		}
	}

	return binds
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// isMountPoint reports whether p sits on a different device than its
// parent directory.
func isMountPoint(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	parent, err := os.Stat(path.Dir(p))
	if err != nil {
		return false
	}
	return deviceOf(info) != deviceOf(parent)
}
