// Package metrics provides per-run metrics collection for the upgrade
// pipeline.
//
// The Collector accumulates counters during a single upgrade run. It is a
// leaf package with no internal dependencies; all increment methods are
// nil-receiver safe so instrumentation can be dropped without branching.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all collected counters.
// Safe to read concurrently after creation.
type Snapshot struct {
	// Stage lifecycle
	StagesStarted   int64
	StagesSucceeded int64
	StagesFailed    int64

	// Package manager invocations
	LaunchFailures int64
	SpaceFailures  int64

	// Best-effort side actions
	PlanWrites          int64
	PlanArchiveFailures int64
	DebugCopyFailures   int64
	ModuleResets        int64
	ModuleResetFailures int64

	// Workarounds
	WorkaroundsApplied int64
	WorkaroundFailures int64

	// Dimensions (informational, set at construction)
	RunID         string
	TargetRelease string
}

// Collector accumulates counters during a single upgrade run.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	stagesStarted   int64
	stagesSucceeded int64
	stagesFailed    int64

	launchFailures int64
	spaceFailures  int64

	planWrites          int64
	planArchiveFailures int64
	debugCopyFailures   int64
	moduleResets        int64
	moduleResetFailures int64

	workaroundsApplied int64
	workaroundFailures int64

	runID         string
	targetRelease string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(runID, targetRelease string) *Collector {
	return &Collector{
		runID:         runID,
		targetRelease: targetRelease,
	}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// IncStageStarted records a stage entry.
func (c *Collector) IncStageStarted() {
	if c == nil {
		return
	}
	c.inc(&c.stagesStarted)
}

// IncStageSucceeded records a stage that completed without error.
func (c *Collector) IncStageSucceeded() {
	if c == nil {
		return
	}
	c.inc(&c.stagesSucceeded)
}

// IncStageFailed records a stage terminated by a classified error.
func (c *Collector) IncStageFailed() {
	if c == nil {
		return
	}
	c.inc(&c.stagesFailed)
}

// IncLaunchFailure records a package manager process that could not start.
func (c *Collector) IncLaunchFailure() {
	if c == nil {
		return
	}
	c.inc(&c.launchFailures)
}

// IncSpaceFailure records a disk-space classified failure.
func (c *Collector) IncSpaceFailure() {
	if c == nil {
		return
	}
	c.inc(&c.spaceFailures)
}

// IncPlanWrite records a transaction plan written to its staging path.
func (c *Collector) IncPlanWrite() {
	if c == nil {
		return
	}
	c.inc(&c.planWrites)
}

// IncPlanArchiveFailure records a failed best-effort plan archive copy.
func (c *Collector) IncPlanArchiveFailure() {
	if c == nil {
		return
	}
	c.inc(&c.planArchiveFailures)
}

// IncDebugCopyFailure records a failed best-effort debug data copy.
func (c *Collector) IncDebugCopyFailure() {
	if c == nil {
		return
	}
	c.inc(&c.debugCopyFailures)
}

// IncModuleReset records an attempted module reset.
func (c *Collector) IncModuleReset() {
	if c == nil {
		return
	}
	c.inc(&c.moduleResets)
}

// IncModuleResetFailure records a swallowed module reset failure.
func (c *Collector) IncModuleResetFailure() {
	if c == nil {
		return
	}
	c.inc(&c.moduleResetFailures)
}

// IncWorkaroundApplied records a workaround script that completed.
func (c *Collector) IncWorkaroundApplied() {
	if c == nil {
		return
	}
	c.inc(&c.workaroundsApplied)
}

// IncWorkaroundFailure records a workaround script failure.
func (c *Collector) IncWorkaroundFailure() {
	if c == nil {
		return
	}
	c.inc(&c.workaroundFailures)
}

// Snapshot returns an immutable point-in-time view of all counters. The
// Collector can continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		StagesStarted:   c.stagesStarted,
		StagesSucceeded: c.stagesSucceeded,
		StagesFailed:    c.stagesFailed,

		LaunchFailures: c.launchFailures,
		SpaceFailures:  c.spaceFailures,

		PlanWrites:          c.planWrites,
		PlanArchiveFailures: c.planArchiveFailures,
		DebugCopyFailures:   c.debugCopyFailures,
		ModuleResets:        c.moduleResets,
		ModuleResetFailures: c.moduleResetFailures,

		WorkaroundsApplied: c.workaroundsApplied,
		WorkaroundFailures: c.workaroundFailures,

		RunID:         c.runID,
		TargetRelease: c.targetRelease,
	}
}
