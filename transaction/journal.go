package transaction

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ascent-project/ascent/types"
)

// Stage lifecycle states recorded in the journal. A stage moves strictly
// forward through them; a re-run after remediation starts over from
// StateNotStarted.
const (
	StateNotStarted     = "not_started"
	StatePlanWritten    = "plan_written"
	StateGuardsAcquired = "guards_acquired"
	StateInvoked        = "invoked"
	StateSucceeded      = "succeeded"
	StateFailed         = "failed"
)

// JournalEntry is one recorded stage transition.
type JournalEntry struct {
	Stage types.Stage `msgpack:"stage"`
	State string      `msgpack:"state"`
	At    time.Time   `msgpack:"at"`
	// Error carries the classified failure summary for StateFailed entries.
	Error string `msgpack:"error,omitempty"`
}

// Journal is an append-only record of stage transitions, persisted to the
// state directory. Operators consult it when re-running after remediation
// to see how far the previous invocation got; the terminal upgrade stage
// in particular must never be re-entered blindly after an invoked record.
type Journal struct {
	path    string
	entries []JournalEntry
	now     func() time.Time
}

// OpenJournal loads the journal at path, creating an empty one if the file
// does not exist yet.
func OpenJournal(path string) (*Journal, error) {
	j := &Journal{path: path, now: time.Now}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := msgpack.Unmarshal(data, &j.entries); err != nil {
		return nil, fmt.Errorf("decode journal %s: %w", path, err)
	}
	return j, nil
}

// Record appends a stage transition and persists the journal. The write
// is atomic: a crash mid-write leaves the previous journal intact.
func (j *Journal) Record(stage types.Stage, state string, failure error) error {
	if j == nil {
		return nil
	}

	entry := JournalEntry{Stage: stage, State: state, At: j.now()}
	if failure != nil {
		entry.Error = failure.Error()
	}
	j.entries = append(j.entries, entry)

	data, err := msgpack.Marshal(j.entries)
	if err != nil {
		return fmt.Errorf("encode journal: %w", err)
	}

	tmp := j.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("persist journal: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persist journal: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("persist journal: %w", err)
	}
	return nil
}

// Entries returns all recorded transitions in append order.
func (j *Journal) Entries() []JournalEntry {
	if j == nil {
		return nil
	}
	return append([]JournalEntry(nil), j.entries...)
}

// LastState returns the most recent recorded state for the stage, or
// StateNotStarted when the stage has no entries.
func (j *Journal) LastState(stage types.Stage) string {
	if j == nil {
		return StateNotStarted
	}
	for i := len(j.entries) - 1; i >= 0; i-- {
		if j.entries[i].Stage == stage {
			return j.entries[i].State
		}
	}
	return StateNotStarted
}
