package transaction

import (
	"context"

	"github.com/ascent-project/ascent/mount"
	"github.com/ascent-project/ascent/plan"
	"github.com/ascent-project/ascent/types"
)

// ModuleResetList returns the modules enabled on the source system that are
// not scheduled to stay enabled on the target. The difference is computed
// on (name, stream) pairs; source order is preserved.
func ModuleResetList(enabled, toEnable []types.ModulePair) []types.ModulePair {
	keep := make(map[types.ModulePair]struct{}, len(toEnable))
	for _, m := range toEnable {
		keep[m] = struct{}{}
	}

	var reset []types.ModulePair
	for _, m := range enabled {
		if _, ok := keep[m]; !ok {
			reset = append(reset, m)
		}
	}
	return reset
}

// resetModules resets leftover source-system modules inside the execution
// context so their streams do not mask target content. Reset is by module
// name; dnf rejects name:stream arguments for the reset subcommand. The
// reset targets the system under /installroot with every repository
// disabled, so it rewrites module state without touching the network, and
// shares the command prefix, trailing flags, and environment of the main
// invocation. A failed reset is logged and swallowed, the transaction
// itself decides whether the leftover module is fatal.
func (r *Runner) resetModules(ctx context.Context, execCtx mount.Context, stage types.Stage, in StageInput, modules []types.ModulePair, opts mount.CallOpts) {
	if len(modules) == 0 {
		return
	}

	names := make([]string, 0, len(modules))
	for _, m := range modules {
		names = append(names, m.Name)
	}

	log := r.log.WithStage(stage)
	log.Info("resetting source system modules", map[string]any{"modules": names})

	cmd := append([]string{}, in.CmdPrefix...)
	cmd = append(cmd, "/usr/bin/dnf", "module", "reset", "--enabled")
	cmd = append(cmd, names...)
	cmd = append(cmd, "--disablerepo", "*", "-y", "--installroot", plan.InstallRoot)
	cmd = append(cmd, r.commonParams(stage, in)...)

	r.collector.IncModuleReset()
	if _, err := execCtx.Call(ctx, cmd, opts); err != nil {
		r.collector.IncModuleResetFailure()
		log.Warn("module reset failed, leftover modules may mask target content",
			map[string]any{"error": err.Error()})
	}
}
