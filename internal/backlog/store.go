// Package backlog persists undelivered records across process restarts.
package backlog

import (
	"context"

	"telemetry/pkg/report"
)

// StateKey is the fixed key the backlog is stored under.
const StateKey = "telemetry"

// Store is a durable, ordered list of undelivered records under a fixed
// key. It is read once at startup and written at shutdown.
type Store interface {
	// Load returns the persisted backlog. A missing backlog is not an
	// error; it yields an empty slice.
	Load(ctx context.Context) ([]report.Record, error)

	// Save replaces the persisted backlog with the given records.
	Save(ctx context.Context, records []report.Record) error

	// Clear removes the persisted backlog.
	Clear(ctx context.Context) error
}
