// Package adapter defines the stage event notification boundary.
//
// Adapters deliver stage completion events to operator automation
// (monitoring, fleet orchestration). Delivery is best-effort: the
// pipeline never blocks or fails on a notification.
package adapter

import (
	"context"
	"time"

	"github.com/ascent-project/ascent/types"
)

// StageEvent is the payload delivered when a stage finishes.
type StageEvent struct {
	Stage         types.Stage `json:"stage"`
	Outcome       string      `json:"outcome"` // succeeded or failed
	TargetRelease string      `json:"target_release"`
	// Category is the failure classification for failed outcomes.
	Category string `json:"category,omitempty"`
	// Message is the operator-facing failure summary.
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Adapter delivers stage completion events to a downstream system.
type Adapter interface {
	// Notify delivers a stage event. Must respect context cancellation
	// and deadlines.
	Notify(ctx context.Context, event StageEvent) error

	// Name identifies the adapter in logs.
	Name() string

	// Close releases adapter resources.
	Close() error
}
