package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/ascent-project/ascent/cli/render"
	"github.com/ascent-project/ascent/plan"
)

// PlanCommand returns the plan command. It builds and prints the
// transaction plan from the current configuration without touching the
// system; the output is exactly what a planning stage would stage for the
// package manager.
func PlanCommand() *cli.Command {
	return &cli.Command{
		Name:   "plan",
		Usage:  "Build and print the transaction plan without running anything",
		Flags:  append(StageFlags(), ReadOnlyFlags()...),
		Action: planAction,
	}
}

func planAction(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), exitProvision)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	p, err := plan.Build(plan.BuildInput{
		TargetRepoIDs: cfg.Repos,
		Tasks:         cfg.Tasks.PackageTasks(),
		TargetMajor:   cfg.Target.MajorVersion,
		TargetRelease: cfg.Target.Release,
		Debug:         cfg.Debug,
		GPGCheck:      !cfg.NoGPGCheck,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitProvision)
	}

	return r.Render(p)
}
