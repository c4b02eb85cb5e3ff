// Package plan builds and serializes the upgrade transaction plan.
//
// The plan is the single input of the dnf-side companion plugin. It is
// regenerated by the check and download stages, staged at DataPath inside
// the execution context, and archived to the log directory after every
// write for postmortem inspection.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/ascent-project/ascent/types"
)

// Companion plugin identity and well-known paths.
const (
	// PluginName is the file name of the dnf-side companion plugin.
	PluginName = "ascent_upgrade.py"
	// DataName is the file name of the staged transaction plan.
	DataName = "plan-data.json"
	// DataPath is the staging path of the plan inside the execution context.
	DataPath = "/var/lib/ascent/" + DataName
	// InstallRoot is the prefix under which the real root is bind mounted
	// inside the staged environment.
	InstallRoot = "/installroot"
)

// ErrInvalidInput reports a caller precondition violation: required plan
// input was missing or empty.
var ErrInvalidInput = errors.New("invalid plan input")

// pluginInstallDirs maps supported target major versions to the dnf plugin
// directory of that release's python stack.
var pluginInstallDirs = map[string]string{
	"8": "/lib/python3.6/site-packages/dnf-plugins",
	"9": "/lib/python3.9/site-packages/dnf-plugins",
}

// PluginInstallPath returns the path, inside the target userspace, where
// the companion plugin must be installed for the given target major
// version.
func PluginInstallPath(targetMajor string) (string, error) {
	dir, ok := pluginInstallDirs[targetMajor]
	if !ok {
		return "", fmt.Errorf("%q is not a supported target major version", targetMajor)
	}
	return path.Join(dir, PluginName), nil
}

// BuildInput is the gathered fact set a plan is computed from.
type BuildInput struct {
	// TargetRepoIDs is the union of repository IDs from every "used
	// repositories" fact. Must be non-empty when the tasks plan any
	// install or upgrade action.
	TargetRepoIDs []string
	// Tasks are the package and module actions of the transaction.
	Tasks types.PackageTasks
	// TargetMajor is the target OS major version ("8" or "9").
	TargetMajor string
	// TargetRelease is the full target release (e.g. "9.4").
	TargetRelease string
	// Debug enables the solver debug data dump.
	Debug bool
	// TestRun sets the transaction test flag (download and dry-run).
	TestRun bool
	// GPGCheck controls package signature verification.
	GPGCheck bool
	// OnAWS marks a managed-cloud host; Region carries the detected
	// region when known.
	OnAWS  bool
	Region *string
}

// Build computes a transaction plan from the given input. Pure function:
// no side effects, inputs are not mutated.
func Build(in BuildInput) (*types.Plan, error) {
	if in.TargetRelease == "" {
		return nil, fmt.Errorf("%w: target release is empty", ErrInvalidInput)
	}
	if _, err := PluginInstallPath(in.TargetMajor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(in.TargetRepoIDs) == 0 && (len(in.Tasks.ToInstall) > 0 || len(in.Tasks.ToUpgrade) > 0) {
		return nil, fmt.Errorf("%w: install/upgrade actions planned but no target repositories", ErrInvalidInput)
	}

	localRPMs := make([]string, 0, len(in.Tasks.LocalRPMs))
	for _, p := range in.Tasks.LocalRPMs {
		localRPMs = append(localRPMs, path.Join(InstallRoot, strings.TrimPrefix(p, "/")))
	}

	modules := make([]string, 0, len(in.Tasks.ModulesToEnable))
	for _, m := range in.Tasks.ModulesToEnable {
		modules = append(modules, m.Name+":"+m.Stream)
	}

	enableRepos := sliceOrEmpty(in.TargetRepoIDs)
	sort.Strings(enableRepos)

	return &types.Plan{
		DNFConf: types.DNFConf{
			AllowErasing: true,
			Best:         true,
			DebugSolver:  in.Debug,
			DisableRepos: true,
			EnableRepos:  enableRepos,
			GPGCheck:     in.GPGCheck,
			InstallRoot:  InstallRoot,
			PlatformID:   "platform:el" + in.TargetMajor,
			ReleaseVer:   in.TargetRelease,
			TestFlag:     in.TestRun,
		},
		PkgsInfo: types.PkgsInfo{
			LocalRPMs:       localRPMs,
			ModulesToEnable: modules,
			ToInstall:       sliceOrEmpty(in.Tasks.ToInstall),
			ToRemove:        sliceOrEmpty(in.Tasks.ToRemove),
			ToUpgrade:       sliceOrEmpty(in.Tasks.ToUpgrade),
		},
		RHUI: types.RHUI{
			AWS: types.AWSInfo{
				OnAWS:  in.OnAWS,
				Region: in.Region,
			},
		},
	}, nil
}

// RepoIDUnion merges repository ID lists from every "used repositories"
// fact into a sorted, deduplicated union.
func RepoIDUnion(used ...[]string) []string {
	seen := make(map[string]struct{})
	for _, repos := range used {
		for _, id := range repos {
			seen[id] = struct{}{}
		}
	}
	union := make([]string, 0, len(seen))
	for id := range seen {
		union = append(union, id)
	}
	sort.Strings(union)
	return union
}

// Serialize renders the plan as byte-reproducible JSON: sorted keys,
// two-space indentation, trailing newline.
func Serialize(p *types.Plan) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("serialize plan: %w", err)
	}
	return buf.Bytes(), nil
}

// Deserialize parses a serialized plan. Unknown fields are rejected so a
// plan written by a newer ascent is not silently misread.
func Deserialize(data []byte) (*types.Plan, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var p types.Plan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("deserialize plan: %w", err)
	}
	return &p, nil
}

// sliceOrEmpty normalizes nil to an empty slice so serialized plans carry
// [] instead of null.
func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}
