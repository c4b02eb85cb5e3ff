package transaction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/ascent-project/ascent/adapter"
	"github.com/ascent-project/ascent/guards"
	"github.com/ascent-project/ascent/log"
	"github.com/ascent-project/ascent/metrics"
	"github.com/ascent-project/ascent/mount"
	"github.com/ascent-project/ascent/plan"
	"github.com/ascent-project/ascent/types"
)

// debugDataDir is where the manager-side plugin dumps solver debug data
// inside the execution context.
const debugDataDir = "/var/lib/ascent/dnf-debugdata"

// upgradeCmdPrefix joins the host IPC namespace for the terminal stage so
// scriptlets talking to the running init are not cut off by the container
// boundary.
var upgradeCmdPrefix = []string{"nsenter", "--ipc=/installroot/proc/1/ns/ipc"}

// Config carries the run-wide settings of the upgrade pipeline. Feature
// flags are explicit fields threaded from configuration, never ambient
// environment lookups.
type Config struct {
	// Debug enables solver debug data collection and its copy-out after a
	// successful check stage.
	Debug bool
	// Verbose passes -v to the package manager.
	Verbose bool
	// LegacySpaceHandling selects the pre-overlay space-failure
	// classification strategy.
	LegacySpaceHandling bool
	// TargetMajor is the target OS major version ("8" or "9").
	TargetMajor string
	// TargetRelease is the full target release (e.g. "9.4").
	TargetRelease string
	// SkipSubscriptionManager disables the subscription-manager plugin in
	// every stage.
	SkipSubscriptionManager bool
	// GPGCheck controls package signature verification in the plan.
	GPGCheck bool
	// StateDir holds the stage journal.
	StateDir string
	// LogDir receives plan archives and debug data copies.
	LogDir string
}

// StageInput is the per-stage fact set: everything gathered about the
// source system that a single stage invocation consumes.
type StageInput struct {
	// RepoIDs is the union of target repository IDs.
	RepoIDs []string
	// Tasks are the package and module actions of the transaction.
	Tasks types.PackageTasks
	// Plugins are manager plugins with per-stage disable rules.
	Plugins []types.PluginInfo
	// XFS holds source-system XFS facts for the legacy classifier.
	XFS types.XFSFacts
	// Storage is the source filesystem table, consumed by the upgrade
	// stage bind topology.
	Storage types.StorageInfo
	// Workarounds are applied inside the staged environment before the
	// transaction runs.
	Workarounds []types.Workaround
	// OnAWS and Region describe managed-cloud detection results.
	OnAWS  bool
	Region *string
	// CmdPrefix is prepended to the manager invocation (e.g. nsenter for
	// the terminal stage).
	CmdPrefix []string
	// IsContainer marks invocations running inside a throwaway container
	// rather than the staged root.
	IsContainer bool
}

// RunnerConfig assembles a Runner.
type RunnerConfig struct {
	Settings  Config
	Logger    *log.Logger
	Collector *metrics.Collector
	Journal   *Journal
	Notifier  adapter.Adapter
	// Guards run before each stage invocation; the first failure aborts
	// the stage before the package manager starts.
	Guards []guards.Guard
}

// Runner sequences upgrade stages: it writes the transaction plan, runs
// the guards, resets leftover modules, drives the package manager inside
// the execution context, and classifies failures. It holds no stage
// state of its own; every invocation is complete in itself and the only
// cross-invocation record is the journal.
type Runner struct {
	cfg       Config
	log       *log.Logger
	collector *metrics.Collector
	journal   *Journal
	notifier  adapter.Adapter
	guards    []guards.Guard

	// newUpgradeContext overrides the terminal stage execution context
	// construction; used by tests.
	newUpgradeContext func(base string, binds []mount.BindMount) mount.Context
}

// NewRunner creates a Runner. Logger is required; collector, journal, and
// notifier may be nil.
func NewRunner(rc RunnerConfig) *Runner {
	return &Runner{
		cfg:       rc.Settings,
		log:       rc.Logger,
		collector: rc.Collector,
		journal:   rc.Journal,
		notifier:  rc.Notifier,
		guards:    rc.Guards,
	}
}

// RunStage executes a single stage inside the given execution context.
//
// The stage moves strictly forward: plan written (check and download
// only), guards acquired, manager invoked, then succeeded or failed.
// There are no internal retries; a classified failure is terminal for
// the invocation and the operator re-runs the stage after remediation.
func (r *Runner) RunStage(ctx context.Context, execCtx mount.Context, stage types.Stage, in StageInput) error {
	stageLog := r.log.WithStage(stage)
	r.collector.IncStageStarted()
	stageLog.Info("stage starting", map[string]any{"test_run": stage.TestRun()})

	if stage.WritesPlan() {
		if err := r.writePlan(execCtx, stage, in); err != nil {
			return r.fail(ctx, stage, err)
		}
		r.journal.Record(stage, StatePlanWritten, nil)
	}
	r.archivePlan(execCtx, stage)

	if err := guards.Run(r.guards...); err != nil {
		return r.fail(ctx, stage, r.classifyGuard(stage, err))
	}
	r.journal.Record(stage, StateGuardsAcquired, nil)

	opts := mount.CallOpts{}
	if r.cfg.TargetMajor == "9" {
		opts.Env = map[string]string{"SYSTEMD_SECCOMP": "0"}
	}

	if r.cfg.TargetMajor == "9" && (stage == types.StageCheck || stage == types.StageUpgrade) {
		reset := ModuleResetList(in.Tasks.ModulesToReset, in.Tasks.ModulesToEnable)
		r.resetModules(ctx, execCtx, stage, in, reset, opts)
	}

	cmd := r.managerCmd(stage, in)

	r.journal.Record(stage, StateInvoked, nil)
	stageLog.Debug("invoking package manager", map[string]any{"cmd": cmd})

	_, err := execCtx.Call(ctx, cmd, opts)
	if err != nil {
		var exitErr *mount.ExitError
		if errors.As(err, &exitErr) {
			serr := Classify(stage, in.XFS, exitErr.Result, in.IsContainer, r.cfg.LegacySpaceHandling)
			if errors.Is(serr, ErrContainerDiskSpace) || errors.Is(serr, ErrTargetDiskSpace) {
				r.collector.IncSpaceFailure()
			}
			return r.fail(ctx, stage, serr)
		}
		r.collector.IncLaunchFailure()
		return r.fail(ctx, stage, newStageError(ErrProcessLaunch, stage,
			"The package manager could not be started.",
			map[string]string{"error": err.Error()}, err))
	}

	if stage == types.StageCheck && r.cfg.Debug {
		r.copyDebugData(execCtx, stageLog)
	}

	r.journal.Record(stage, StateSucceeded, nil)
	r.collector.IncStageSucceeded()
	r.notify(ctx, stage, "succeeded", nil)
	stageLog.Info("stage succeeded", nil)
	return nil
}

// RunStaged runs a non-terminal stage under a scoped overlay: the overlay
// is acquired, workarounds are applied, the stage runs, and teardown is
// guaranteed in reverse order even when the stage fails.
func (r *Runner) RunStaged(ctx context.Context, execCtx mount.Context, p mount.Provisioner, stage types.Stage, in StageInput) error {
	if !stage.UsesOverlay() {
		return fmt.Errorf("stage %s does not run under an overlay", stage)
	}
	return mount.WithOverlay(ctx, p, func(*mount.Overlay) error {
		if err := ApplyWorkarounds(ctx, execCtx, in.Workarounds, r.log.WithStage(stage), r.collector); err != nil {
			return r.fail(ctx, stage, newStageError(ErrWorkaround, stage,
				"A transaction workaround failed.",
				map[string]string{"error": err.Error()}, err))
		}
		return r.RunStage(ctx, execCtx, stage, in)
	})
}

// RunUpgrade executes the terminal upgrade stage: it derives the
// bind-mount topology from the source filesystem table, rebuilds the RPM
// database on el9 targets, and runs the transaction inside a container
// rooted at the target userspace with the host IPC namespace joined.
//
// The upgrade stage is irreversible. No overlay is used; the transaction
// writes through to the real system.
func (r *Runner) RunUpgrade(ctx context.Context, userspaceDir string, in StageInput) error {
	binds := mount.UpgradeBinds(in.Storage, r.cfg.TargetMajor, mount.DefaultProbe())
	execCtx := r.upgradeContext(userspaceDir, binds)

	if err := ApplyWorkarounds(ctx, execCtx, in.Workarounds, r.log.WithStage(types.StageUpgrade), r.collector); err != nil {
		return r.fail(ctx, types.StageUpgrade, newStageError(ErrWorkaround, types.StageUpgrade,
			"A transaction workaround failed.",
			map[string]string{"error": err.Error()}, err))
	}

	if r.cfg.TargetMajor == "9" {
		r.rebuildRPMDB(ctx, execCtx)
	}

	in.CmdPrefix = upgradeCmdPrefix
	return r.RunStage(ctx, execCtx, types.StageUpgrade, in)
}

// upgradeContext builds the terminal stage execution context.
func (r *Runner) upgradeContext(base string, binds []mount.BindMount) mount.Context {
	if r.newUpgradeContext != nil {
		return r.newUpgradeContext(base, binds)
	}
	return mount.NewNspawnContext(base, binds)
}

// InstallPlugin installs the manager-side companion plugin into the
// execution context at the plugin path of the target python stack.
func (r *Runner) InstallPlugin(execCtx mount.Context, sourcePath string) error {
	dest, err := plan.PluginInstallPath(r.cfg.TargetMajor)
	if err != nil {
		return fmt.Errorf("install plugin: %w", err)
	}

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("install plugin: %w", err)
	}
	if err := execCtx.MakeDirs(path.Dir(dest)); err != nil {
		return fmt.Errorf("install plugin: %w", err)
	}
	if err := execCtx.WriteFile(dest, data); err != nil {
		return fmt.Errorf("install plugin: %w", err)
	}

	r.log.Debug("companion plugin installed", map[string]any{"path": dest})
	return nil
}

// writePlan builds the transaction plan from the stage input and stages
// it at the well-known path inside the execution context.
func (r *Runner) writePlan(execCtx mount.Context, stage types.Stage, in StageInput) *StageError {
	p, err := plan.Build(plan.BuildInput{
		TargetRepoIDs: in.RepoIDs,
		Tasks:         in.Tasks,
		TargetMajor:   r.cfg.TargetMajor,
		TargetRelease: r.cfg.TargetRelease,
		Debug:         r.cfg.Debug,
		TestRun:       stage.TestRun(),
		GPGCheck:      r.cfg.GPGCheck,
		OnAWS:         in.OnAWS,
		Region:        in.Region,
	})
	if err != nil {
		return newStageError(ErrPlanBuild, stage,
			"The transaction plan could not be built.",
			map[string]string{"error": err.Error()}, err)
	}

	data, err := plan.Serialize(p)
	if err != nil {
		return newStageError(ErrPlanBuild, stage,
			"The transaction plan could not be serialized.",
			map[string]string{"error": err.Error()}, err)
	}

	if err := execCtx.MakeDirs(path.Dir(plan.DataPath)); err != nil {
		return newStageError(ErrProvision, stage,
			"The plan staging directory could not be created.",
			map[string]string{"error": err.Error()}, err)
	}
	if err := execCtx.WriteFile(plan.DataPath, data); err != nil {
		return newStageError(ErrProvision, stage,
			"The transaction plan could not be staged.",
			map[string]string{"error": err.Error()}, err)
	}
	r.collector.IncPlanWrite()
	return nil
}

// archivePlan copies the staged plan to the log directory so the exact
// plan a stage consumed is preserved for postmortem inspection. Runs for
// every stage, whether or not the plan was just rewritten; best-effort
// and never fails the stage.
func (r *Runner) archivePlan(execCtx mount.Context, stage types.Stage) {
	if r.cfg.LogDir == "" {
		return
	}
	archive := filepath.Join(r.cfg.LogDir, plan.DataName)
	if err := execCtx.CopyFrom(plan.DataPath, archive); err != nil {
		r.collector.IncPlanArchiveFailure()
		r.log.WithStage(stage).Warn("plan archive copy failed",
			map[string]any{"error": err.Error(), "archive": archive})
	}
}

// managerCmd assembles the package manager invocation for a stage.
func (r *Runner) managerCmd(stage types.Stage, in StageInput) []string {
	cmd := append([]string{}, in.CmdPrefix...)
	cmd = append(cmd, "/usr/bin/dnf", "ascent-upgrade", string(stage), plan.DataPath)
	return append(cmd, r.commonParams(stage, in)...)
}

// commonParams are the trailing flags shared by every dnf invocation of a
// stage: verbosity and the per-stage plugin disables.
func (r *Runner) commonParams(stage types.Stage, in StageInput) []string {
	var params []string
	if r.cfg.Verbose {
		params = append(params, "-v")
	}
	if r.cfg.SkipSubscriptionManager {
		params = append(params, "--disableplugin", "subscription-manager")
	}
	for _, p := range in.Plugins {
		if p.DisabledIn(stage) {
			params = append(params, "--disableplugin", p.Name)
		}
	}
	return params
}

// classifyGuard maps a guard failure to a stage error before the package
// manager ever starts.
func (r *Runner) classifyGuard(stage types.Stage, err error) *StageError {
	switch {
	case errors.Is(err, guards.ErrNoSpace):
		r.collector.IncSpaceFailure()
		return newStageError(ErrTargetDiskSpace, stage,
			"There is not enough free space to start the transaction.",
			map[string]string{"error": err.Error()}, err)
	case errors.Is(err, guards.ErrNoConnection):
		return newStageError(ErrManagerFailure, stage,
			"No configured repository host is reachable.",
			map[string]string{
				"error": err.Error(),
				"hint": "Check the network configuration and any proxy settings " +
					"before re-running the stage.",
			}, err)
	default:
		return newStageError(ErrProvision, stage,
			"A pre-transaction guard failed.",
			map[string]string{"error": err.Error()}, err)
	}
}

// copyDebugData copies the solver debug dump out of the execution context
// into the log directory. Best-effort: a failed copy is logged, the stage
// outcome is unaffected.
func (r *Runner) copyDebugData(execCtx mount.Context, stageLog *log.Logger) {
	dst := filepath.Join(r.cfg.LogDir, "dnf-debugdata")
	if err := execCtx.CopyTreeFrom(debugDataDir, dst); err != nil {
		r.collector.IncDebugCopyFailure()
		stageLog.Warn("debug data copy failed",
			map[string]any{"error": err.Error(), "destination": dst})
		return
	}
	stageLog.Debug("debug data copied", map[string]any{"destination": dst})
}

// rebuildRPMDB converts the RPM database of the system under /installroot
// to the sqlite backend before the transaction runs, so the el9 rpm stack
// inside the container reads it correctly. Failure is logged only; the
// transaction surfaces any real database problem itself.
func (r *Runner) rebuildRPMDB(ctx context.Context, execCtx mount.Context) {
	cmd := []string{"rpmdb", "--rebuilddb", "-r", plan.InstallRoot}
	if _, err := execCtx.Call(ctx, cmd, mount.CallOpts{}); err != nil {
		r.log.WithStage(types.StageUpgrade).Warn("rpm database rebuild failed",
			map[string]any{"error": err.Error()})
	}
}

// fail records, counts, and reports a classified stage failure.
func (r *Runner) fail(ctx context.Context, stage types.Stage, serr *StageError) error {
	r.journal.Record(stage, StateFailed, serr)
	r.collector.IncStageFailed()
	r.notify(ctx, stage, "failed", serr)
	r.log.WithStage(stage).Error(serr.Message, map[string]any{"details": serr.Details})
	return serr
}

// notify emits a stage completion event. Best-effort: a failed delivery
// is logged and swallowed.
func (r *Runner) notify(ctx context.Context, stage types.Stage, outcome string, serr *StageError) {
	if r.notifier == nil {
		return
	}

	event := adapter.StageEvent{
		Stage:         stage,
		Outcome:       outcome,
		TargetRelease: r.cfg.TargetRelease,
		At:            time.Now(),
	}
	if serr != nil {
		event.Message = serr.Message
		event.Category = serr.Kind.Error()
	}
	if err := r.notifier.Notify(ctx, event); err != nil {
		r.log.WithStage(stage).Warn("stage event delivery failed",
			map[string]any{"adapter": r.notifier.Name(), "error": err.Error()})
	}
}
