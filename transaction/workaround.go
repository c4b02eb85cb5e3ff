package transaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/ascent-project/ascent/log"
	"github.com/ascent-project/ascent/metrics"
	"github.com/ascent-project/ascent/mount"
	"github.com/ascent-project/ascent/types"
)

// ApplyWorkarounds runs operator-supplied remediation scripts inside the
// execution context, in delivery order. Each is announced before it runs;
// the first failure aborts the remaining scripts and names the workaround
// that failed.
func ApplyWorkarounds(ctx context.Context, execCtx mount.Context, workarounds []types.Workaround, logger *log.Logger, collector *metrics.Collector) error {
	for _, w := range workarounds {
		logger.Info("applying transaction workaround", map[string]any{"workaround": w.DisplayName})

		script := w.ScriptPath
		if len(w.ScriptArgs) > 0 {
			script += " " + strings.Join(w.ScriptArgs, " ")
		}

		cmd := []string{"/bin/bash", "-c", script}
		if _, err := execCtx.Call(ctx, cmd, mount.CallOpts{}); err != nil {
			collector.IncWorkaroundFailure()
			return fmt.Errorf("%w: %q: %v", ErrWorkaround, w.DisplayName, err)
		}
		collector.IncWorkaroundApplied()
	}
	return nil
}
