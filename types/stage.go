package types

import "fmt"

// Stage is one phase of the upgrade transaction pipeline.
//
// Stages run in lifecycle order: check, download, dry-run, upgrade. Not
// every caller invokes all four; upgrade is terminal and irreversible.
type Stage string

// Pipeline stages in lifecycle order.
const (
	StageCheck    Stage = "check"
	StageDownload Stage = "download"
	StageDryRun   Stage = "dry-run"
	StageUpgrade  Stage = "upgrade"
)

// Stages lists all pipeline stages in lifecycle order.
var Stages = []Stage{StageCheck, StageDownload, StageDryRun, StageUpgrade}

// ParseStage parses a stage name, returning an error for unknown names.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageCheck, StageDownload, StageDryRun, StageUpgrade:
		return Stage(s), nil
	default:
		return "", fmt.Errorf("unknown stage: %q", s)
	}
}

func (s Stage) String() string { return string(s) }

// WritesPlan reports whether the stage regenerates the transaction plan
// before invoking the package manager. dry-run and upgrade reuse the plan
// written by an earlier stage.
func (s Stage) WritesPlan() bool {
	return s == StageCheck || s == StageDownload
}

// TestRun reports whether the package manager runs with the transaction
// test flag set for this stage.
func (s Stage) TestRun() bool {
	return s == StageDownload || s == StageDryRun
}

// UsesOverlay reports whether the stage runs inside a transient overlay
// root. The terminal upgrade stage runs against the real root through the
// final bind-mount set instead.
func (s Stage) UsesOverlay() bool {
	return s != StageUpgrade
}

// Terminal reports whether the stage mutates the live system. There is no
// rollback once a terminal stage starts.
func (s Stage) Terminal() bool {
	return s == StageUpgrade
}

// ArchivesDebugData reports whether solver debug data is copied out after
// the stage succeeds (debug mode only).
func (s Stage) ArchivesDebugData() bool {
	return s == StageCheck
}
