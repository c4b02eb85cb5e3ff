package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ascent-project/ascent/adapter"
	"github.com/ascent-project/ascent/adapter/webhook"
	"github.com/ascent-project/ascent/cli/config"
	"github.com/ascent-project/ascent/cloud"
	"github.com/ascent-project/ascent/guards"
	"github.com/ascent-project/ascent/log"
	"github.com/ascent-project/ascent/metrics"
	"github.com/ascent-project/ascent/mount"
	"github.com/ascent-project/ascent/plugin"
	"github.com/ascent-project/ascent/transaction"
	"github.com/ascent-project/ascent/types"
	"github.com/ascent-project/ascent/upload"
)

// Exit codes for the stage commands.
const (
	exitSuccess        = 0
	exitManagerFailure = 1
	exitProvision      = 2
	exitDiskSpace      = 3
	exitWorkaround     = 4
)

// CheckCommand returns the check stage command.
func CheckCommand() *cli.Command {
	return stageCommand(types.StageCheck,
		"Resolve the upgrade transaction without downloading or installing anything")
}

// DownloadCommand returns the download stage command.
func DownloadCommand() *cli.Command {
	return stageCommand(types.StageDownload,
		"Download all transaction packages and test the transaction")
}

// DryRunCommand returns the dry-run stage command.
func DryRunCommand() *cli.Command {
	return stageCommand(types.StageDryRun,
		"Re-test the downloaded transaction without touching the system")
}

// UpgradeCommand returns the terminal upgrade stage command.
func UpgradeCommand() *cli.Command {
	return stageCommand(types.StageUpgrade,
		"Execute the upgrade transaction against the real system (irreversible)")
}

func stageCommand(stage types.Stage, usage string) *cli.Command {
	return &cli.Command{
		Name:   string(stage),
		Usage:  usage,
		Flags:  StageFlags(),
		Action: stageAction(stage),
	}
}

func stageAction(stage types.Stage) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadSettings(c)
		if err != nil {
			return cli.Exit(err.Error(), exitProvision)
		}

		runID := fmt.Sprintf("run-%s", time.Now().UTC().Format("20060102T150405"))
		logger := log.NewLogger(runID, cfg.Target.Release)

		journal, err := transaction.OpenJournal(filepath.Join(cfg.StateDir, "journal"))
		if err != nil {
			return cli.Exit(fmt.Sprintf("open stage journal: %v", err), exitProvision)
		}

		notifier, err := buildNotifier(cfg)
		if err != nil {
			return cli.Exit(err.Error(), exitProvision)
		}
		if notifier != nil {
			defer func() { _ = notifier.Close() }()
		}

		collector := metrics.NewCollector(runID, cfg.Target.Release)
		runner := transaction.NewRunner(transaction.RunnerConfig{
			Settings:  runnerSettings(cfg),
			Logger:    logger,
			Collector: collector,
			Journal:   journal,
			Notifier:  notifier,
			Guards:    buildGuards(cfg),
		})

		ctx, cancel := context.WithCancel(c.Context)
		defer cancel()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		in := stageInput(ctx, cfg, stage, logger)

		stageErr := runStage(ctx, runner, cfg, stage, in, logger)

		uploadBundle(ctx, cfg, runID, logger)

		if stageErr != nil {
			return cli.Exit(formatStageError(stageErr), exitCodeFor(stageErr))
		}

		fmt.Printf("stage %s completed (run %s)\n", stage, runID)
		return nil
	}
}

// runStage dispatches to the staged or terminal execution path.
func runStage(ctx context.Context, runner *transaction.Runner, cfg *config.Config, stage types.Stage, in transaction.StageInput, logger *log.Logger) error {
	if stage == types.StageUpgrade {
		storage, err := mount.ReadStorageInfo(cfg.FstabPath)
		if err != nil {
			return fmt.Errorf("read filesystem table: %w", err)
		}
		in.Storage = storage
		return runner.RunUpgrade(ctx, cfg.Userspace, in)
	}

	overlayRoot := filepath.Join(cfg.StateDir, "overlay")
	execCtx := mount.NewNspawnContext(cfg.Userspace, []mount.BindMount{
		{Source: overlayRoot, Target: "/installroot"},
		{Source: "/dev", Target: "/installroot/dev"},
		{Source: "/proc", Target: "/installroot/proc"},
	})

	pluginSource := cfg.PluginSource
	if pluginSource == "" {
		extracted, err := plugin.ExtractedPath()
		if err != nil {
			return fmt.Errorf("extract companion plugin: %w", err)
		}
		pluginSource = extracted
	}
	if err := runner.InstallPlugin(execCtx, pluginSource); err != nil {
		return err
	}

	provisioner := mount.NewOverlayProvisioner(overlayRoot, cfg.ScratchDir)
	return runner.RunStaged(ctx, execCtx, provisioner, stage, in)
}

// loadSettings reads the config file and layers CLI flag overrides on top.
func loadSettings(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	if c.IsSet("target-release") {
		cfg.Target.Release = c.String("target-release")
	}
	if c.IsSet("target-major") {
		cfg.Target.MajorVersion = c.String("target-major")
	}
	if c.IsSet("legacy-space-handling") {
		cfg.LegacySpaceHandling = c.Bool("legacy-space-handling")
	}
	if c.IsSet("skip-subscription-manager") {
		cfg.SkipSubscriptionManager = c.Bool("skip-subscription-manager")
	}
	if c.IsSet("no-gpg-check") {
		cfg.NoGPGCheck = c.Bool("no-gpg-check")
	}
	if c.IsSet("state-dir") {
		cfg.StateDir = c.String("state-dir")
	}
	if c.IsSet("log-dir") {
		cfg.LogDir = c.String("log-dir")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runnerSettings(cfg *config.Config) transaction.Config {
	return transaction.Config{
		Debug:                   cfg.Debug,
		Verbose:                 cfg.Verbose,
		LegacySpaceHandling:     cfg.LegacySpaceHandling,
		TargetMajor:             cfg.Target.MajorVersion,
		TargetRelease:           cfg.Target.Release,
		SkipSubscriptionManager: cfg.SkipSubscriptionManager,
		GPGCheck:                !cfg.NoGPGCheck,
		StateDir:                cfg.StateDir,
		LogDir:                  cfg.LogDir,
	}
}

// stageInput assembles the per-stage fact set from configuration, running
// managed-cloud detection when enabled.
func stageInput(ctx context.Context, cfg *config.Config, stage types.Stage, logger *log.Logger) transaction.StageInput {
	in := transaction.StageInput{
		RepoIDs:     cfg.Repos,
		Tasks:       cfg.Tasks.PackageTasks(),
		Plugins:     cfg.Plugins,
		Workarounds: cfg.Workarounds,
		XFS:         cfg.XFS.Facts(),
	}

	if cfg.CloudDetect && stage.WritesPlan() {
		detector, err := cloud.NewDetector(ctx)
		if err != nil {
			logger.Warn("cloud detection unavailable", map[string]any{"error": err.Error()})
			return in
		}
		facts := detector.Detect(ctx)
		in.OnAWS = facts.OnAWS
		in.Region = facts.Region
	}
	return in
}

func buildNotifier(cfg *config.Config) (adapter.Adapter, error) {
	if cfg.Webhook.URL == "" {
		return nil, nil
	}
	wcfg := webhook.Config{
		URL:     cfg.Webhook.URL,
		Headers: cfg.Webhook.Headers,
		Timeout: cfg.Webhook.Timeout.Duration,
		Retries: webhook.DefaultRetries,
	}
	if cfg.Webhook.Retries != nil {
		wcfg.Retries = *cfg.Webhook.Retries
	}
	a, err := webhook.New(wcfg)
	if err != nil {
		return nil, fmt.Errorf("webhook adapter: %w", err)
	}
	return a, nil
}

func buildGuards(cfg *config.Config) []guards.Guard {
	var gs []guards.Guard
	if cfg.Guards.MinFreeBytes > 0 {
		gs = append(gs, guards.SpaceGuard(cfg.StateDir, cfg.Guards.MinFreeBytes))
	}
	if len(cfg.Guards.ProbeAddrs) > 0 {
		timeout := cfg.Guards.ProbeTimeout.Duration
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		gs = append(gs, guards.ConnectionGuard(cfg.Guards.ProbeAddrs, timeout))
	}
	return gs
}

// uploadBundle ships the log directory to the configured S3 destination.
// Best-effort: failures are logged, the stage outcome stands.
func uploadBundle(ctx context.Context, cfg *config.Config, runID string, logger *log.Logger) {
	if cfg.Upload.S3Path == "" || cfg.LogDir == "" {
		return
	}
	u, err := upload.New(ctx, cfg.Upload.S3Path, cfg.Upload.Region)
	if err != nil {
		logger.Warn("support bundle uploader unavailable", map[string]any{"error": err.Error()})
		return
	}
	if err := u.UploadTree(ctx, cfg.LogDir, runID); err != nil {
		logger.Warn("support bundle upload failed", map[string]any{"error": err.Error()})
	}
}

// exitCodeFor maps a classified stage failure to the command exit code.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, transaction.ErrTargetDiskSpace),
		errors.Is(err, transaction.ErrContainerDiskSpace):
		return exitDiskSpace
	case errors.Is(err, transaction.ErrWorkaround):
		return exitWorkaround
	case errors.Is(err, transaction.ErrPlanBuild),
		errors.Is(err, transaction.ErrProvision),
		errors.Is(err, transaction.ErrProcessLaunch):
		return exitProvision
	default:
		return exitManagerFailure
	}
}

// formatStageError renders a classified failure for the terminal: summary
// first, then each detail section in stable order.
func formatStageError(err error) string {
	var serr *transaction.StageError
	if !errors.As(err, &serr) {
		return err.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "stage %s failed: %s", serr.Stage, serr.Message)

	keys := make([]string, 0, len(serr.Details))
	for k := range serr.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.TrimSpace(serr.Details[k])
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n%s:\n%s", k, v)
	}
	return b.String()
}
