package types

// Plan is the serialized instruction set consumed by the dnf-side companion
// plugin. It is written as JSON with sorted keys and stable indentation so
// the staged copy and the archived copy are byte-identical and diffable.
//
// Struct fields are declared in sorted-key order; encoding/json emits fields
// in declaration order, which keeps Serialize output reproducible.
type Plan struct {
	DNFConf  DNFConf  `json:"dnf_conf"`
	PkgsInfo PkgsInfo `json:"pkgs_info"`
	RHUI     RHUI     `json:"rhui"`
}

// PkgsInfo describes the package and module actions of the transaction.
type PkgsInfo struct {
	// LocalRPMs are paths to pre-downloaded rpms, rewritten to be relative
	// to the /installroot prefix used inside the staged root.
	LocalRPMs []string `json:"local_rpms"`
	// ModulesToEnable holds "name:stream" pairs.
	ModulesToEnable []string `json:"modules_to_enable"`
	ToInstall       []string `json:"to_install"`
	ToRemove        []string `json:"to_remove"`
	ToUpgrade       []string `json:"to_upgrade"`
}

// DNFConf carries the package manager configuration for the transaction.
type DNFConf struct {
	AllowErasing bool     `json:"allow_erasing"`
	Best         bool     `json:"best"`
	DebugSolver  bool     `json:"debugsolver"`
	DisableRepos bool     `json:"disable_repos"`
	EnableRepos  []string `json:"enable_repos"`
	GPGCheck     bool     `json:"gpgcheck"`
	InstallRoot  string   `json:"installroot"`
	PlatformID   string   `json:"platform_id"`
	ReleaseVer   string   `json:"releasever"`
	TestFlag     bool     `json:"test_flag"`
}

// RHUI carries managed-cloud context for repository setup on cloud images.
type RHUI struct {
	AWS AWSInfo `json:"aws"`
}

// AWSInfo describes whether the host runs on AWS and in which region.
type AWSInfo struct {
	OnAWS  bool    `json:"on_aws"`
	Region *string `json:"region"`
}
