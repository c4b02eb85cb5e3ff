// Package transaction implements the upgrade transaction orchestrator: it
// sequences the check, download, dry-run, and upgrade stages, drives the
// package manager inside the staged execution context, and classifies
// failures into operator-facing categories.
package transaction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ascent-project/ascent/types"
)

// Sentinel errors for stage failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrPlanBuild indicates the transaction plan could not be built from
	// the gathered facts (caller precondition violation).
	ErrPlanBuild = errors.New("transaction plan build failed")

	// ErrProvision indicates the staged environment could not be set up.
	ErrProvision = errors.New("staging environment provisioning failed")

	// ErrProcessLaunch indicates the package manager (or a workaround
	// binary) could not be started at all.
	ErrProcessLaunch = errors.New("process could not be started")

	// ErrManagerFailure indicates a package manager run that exited
	// non-zero for a reason other than disk space.
	ErrManagerFailure = errors.New("package manager execution failed")

	// ErrContainerDiskSpace indicates exhausted space on the filesystem
	// hosting the orchestrator state, detected inside a throwaway
	// container.
	ErrContainerDiskSpace = errors.New("not enough space for the target userspace")

	// ErrTargetDiskSpace indicates exhausted space on one or more target
	// filesystems during the transaction.
	ErrTargetDiskSpace = errors.New("not enough space on target file systems")

	// ErrWorkaround indicates a transaction workaround script failed.
	ErrWorkaround = errors.New("transaction workaround failed")
)

// StageError is a terminal, categorized stage failure. It carries a
// human-readable message plus a details map with enough raw output
// (stdout/stderr, parsed disk requirements, remediation hints) for an
// operator to diagnose without re-running the stage.
type StageError struct {
	// Kind is the sentinel error for classification.
	Kind error
	// Stage is the stage that failed.
	Stage types.Stage
	// Message is the operator-facing summary.
	Message string
	// Details holds raw output and remediation hints, keyed by label.
	Details map[string]string
	// Err is the underlying error, if any.
	Err error
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s: %s", e.Stage, e.Message)
	if hint, ok := e.Details["hint"]; ok {
		fmt.Fprintf(&b, " (hint: %s)", hint)
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *StageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func newStageError(kind error, stage types.Stage, message string, details map[string]string, err error) *StageError {
	if details == nil {
		details = map[string]string{}
	}
	return &StageError{
		Kind:    kind,
		Stage:   stage,
		Message: message,
		Details: details,
		Err:     err,
	}
}
