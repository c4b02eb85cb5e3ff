package transaction

import (
	"regexp"
	"strings"

	"github.com/ascent-project/ascent/mount"
	"github.com/ascent-project/ascent/types"
)

// noSpaceMarker is the stderr marker dnf emits per affected filesystem:
//
//	Disk Requirements:
//	  At least <size> more space needed on the <path> filesystem.
const noSpaceMarker = "more space needed on the"

// requiredSizeRE extracts the size token from a disk-requirements line.
var requiredSizeRE = regexp.MustCompile(`At least (.*) more space needed`)

const (
	dedicatedPartitionURL = "https://access.redhat.com/solutions/7011704"
	legacyArticleURL      = "https://access.redhat.com/solutions/5057391"
)

const proxyHint = "If there was a problem reaching remote content (see stderr output) " +
	"and a proxy is configured in the YUM/DNF configuration file, the proxy configuration " +
	"is likely causing this error. Make sure the proxy is properly configured in " +
	"/etc/dnf/dnf.conf. It's also possible the proxy settings in the DNF configuration " +
	"file are incompatible with the target system. A compatible configuration can be " +
	"placed in /etc/ascent/files/dnf.conf which, if present, will be used during some " +
	"parts of the upgrade instead of the original /etc/dnf/dnf.conf. In such case the " +
	"configuration will also be applied to the target system. Note that /etc/dnf/dnf.conf " +
	"needs to still be configured correctly for your current system to pass the early " +
	"phases of the upgrade process."

// Classify maps a non-zero package manager exit to a terminal, categorized
// stage error.
//
// isContainer marks invocations that ran inside a throwaway container
// (target userspace population) rather than the staged root: space
// exhaustion there concerns the filesystem hosting /var/lib/ascent, not
// the upgrade transaction itself.
//
// legacy selects the pre-overlay classification strategy. The two
// strategies are mutually exclusive and the legacy one is kept only for
// backward compatibility until the old overlay behavior is removed.
func Classify(stage types.Stage, xfs types.XFSFacts, res *mount.CallResult, isContainer, legacy bool) *StageError {
	if legacy && !isContainer {
		return classifyLegacy(stage, xfs, res)
	}

	if !strings.Contains(res.Stderr, noSpaceMarker) {
		details := map[string]string{
			"STDOUT": res.Stdout,
			"STDERR": res.Stderr,
		}
		if !isContainer {
			details["hint"] = proxyHint
		}
		return newStageError(ErrManagerFailure, stage,
			"DNF execution failed with non zero exit code.", details, nil)
	}

	missingSpace := spaceLines(res.Stderr)

	if isContainer {
		size := "an unknown amount"
		if m := requiredSizeRE.FindStringSubmatch(missingSpace[0]); m != nil {
			size = m[1]
		}
		hint := "Increase the free space on the filesystem hosting /var/lib/ascent by " +
			size + " at minimum. It is suggested to provide reasonably more space to be " +
			"able to perform all planned actions (e.g. when 200MB is missing, add 1700MB " +
			"or more).\n\nIt is also a good practice to create a dedicated partition for " +
			"/var/lib/ascent when more space is needed, which can be dropped after the " +
			"system upgrade is fully completed. For more info, see: " + dedicatedPartitionURL
		// The original message speaks about missing space on '/', which
		// confuses operators; the parsed requirement is part of the hint
		// instead.
		return newStageError(ErrContainerDiskSpace, stage,
			"There is not enough space on the file system hosting /var/lib/ascent.",
			map[string]string{"hint": hint}, nil)
	}

	hint := "Increase the free space on listed filesystems. Presented values are the " +
		"required minimum calculated by RPM and it is suggested to provide reasonably " +
		"more free space (e.g. when 200 MB is missing on /usr, add 1200MB or more)."
	return newStageError(ErrTargetDiskSpace, stage,
		"There is not enough space on some file systems to perform the upgrade transaction.",
		map[string]string{
			"hint":              hint,
			"Disk Requirements": strings.Join(missingSpace, "\n"),
		}, nil)
}

// classifyLegacy is the pre-overlay space-failure strategy, selected by
// an explicit configuration override. Scheduled for removal together with
// the legacy overlay behavior.
func classifyLegacy(stage types.Stage, xfs types.XFSFacts, res *mount.CallResult) *StageError {
	if strings.Contains(res.Stderr, noSpaceMarker) && stage != types.StageUpgrade {
		section := "Generic case"
		if xfs.Present && xfs.WithoutFtype {
			section = "XFS ftype=0 case"
		}
		hint := "Please follow the instructions in the '" + section +
			"' section of the article at: " + legacyArticleURL
		return newStageError(ErrTargetDiskSpace, stage,
			"There is not enough space on the file system hosting /var/lib/ascent directory to extract the packages.",
			map[string]string{"hint": hint}, nil)
	}

	return newStageError(ErrManagerFailure, stage,
		"DNF execution failed with non zero exit code.",
		map[string]string{
			"STDOUT": res.Stdout,
			"STDERR": res.Stderr,
		}, nil)
}

// spaceLines returns every disk-requirements line from stderr, verbatim
// apart from surrounding whitespace, one per affected filesystem.
func spaceLines(stderr string) []string {
	var lines []string
	for _, line := range strings.Split(stderr, "\n") {
		if strings.Contains(line, noSpaceMarker) {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	return lines
}
