package types

// ModulePair identifies a package module by name and stream.
type ModulePair struct {
	Name   string `json:"name"`
	Stream string `json:"stream"`
}

// PackageTasks gathers the package and module actions requested for the
// upgrade transaction. Slices preserve delivery order.
type PackageTasks struct {
	LocalRPMs       []string
	ToInstall       []string
	ToRemove        []string
	ToUpgrade       []string
	ModulesToEnable []ModulePair
	// ModulesToReset are modules currently enabled on the source system.
	// Those not scheduled to stay enabled are reset before check and
	// upgrade on el9 targets.
	ModulesToReset []ModulePair
}

// PluginInfo describes a package manager plugin and the stages in which it
// must be disabled.
type PluginInfo struct {
	Name      string  `yaml:"name"`
	DisableIn []Stage `yaml:"disable_in"`
}

// DisabledIn reports whether the plugin is disabled for the given stage.
func (p PluginInfo) DisabledIn(stage Stage) bool {
	for _, s := range p.DisableIn {
		if s == stage {
			return true
		}
	}
	return false
}

// Workaround is an operator-supplied remediation script applied before the
// transaction, inside the active execution context.
type Workaround struct {
	DisplayName string   `yaml:"display_name"`
	ScriptPath  string   `yaml:"script_path"`
	ScriptArgs  []string `yaml:"script_args"`
}

// XFSFacts describes XFS usage on the source system. Read-only input to
// the legacy space-failure classifier.
type XFSFacts struct {
	Present      bool
	WithoutFtype bool
}

// FstabEntry is one row of the filesystem table.
type FstabEntry struct {
	MountPoint string
	Device     string
}

// StorageInfo is the filesystem table of the source system. Read-only
// input to the bind-mount topology builder; entry order is preserved.
type StorageInfo struct {
	Fstab []FstabEntry
}
