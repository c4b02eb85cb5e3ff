package cmd

import (
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ascent-project/ascent/cli/config"
	"github.com/ascent-project/ascent/cli/render"
	"github.com/ascent-project/ascent/transaction"
)

// StatusEntry is one journal row in the status output.
type StatusEntry struct {
	Stage string `json:"stage"`
	State string `json:"state"`
	At    string `json:"at"`
	Error string `json:"error,omitempty"`
}

// StatusCommand returns the status command. It renders the persisted
// stage journal so an operator re-running after remediation can see how
// far the previous invocation got.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show recorded stage transitions from the journal",
		Flags:  append(StageFlags(), ReadOnlyFlags()...),
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	// Status is read-only; it needs the state dir but not a valid upgrade
	// target, so validation is skipped.
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitProvision)
	}
	if c.IsSet("state-dir") {
		cfg.StateDir = c.String("state-dir")
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	journal, err := transaction.OpenJournal(filepath.Join(cfg.StateDir, "journal"))
	if err != nil {
		return cli.Exit(err.Error(), exitProvision)
	}

	entries := journal.Entries()
	rows := make([]StatusEntry, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, StatusEntry{
			Stage: string(e.Stage),
			State: e.State,
			At:    e.At.Format(time.RFC3339),
			Error: e.Error,
		})
	}
	return r.Render(rows)
}
