// Package dispatcher implements the asynchronous telemetry delivery engine:
// a LIFO delivery queue drained by a demand-scaled worker pool, an offline
// latch that stops network attempts after the first transport failure, and
// a backup/resend protocol that persists undelivered records across runs.
package dispatcher

import (
	"context"

	"telemetry/pkg/report"
)

// Transport performs one network send of a record. The engine classifies
// the returned error: nil means delivered, a client error (see
// report.IsClientError) means the record is permanently rejected, and
// anything else means the collector is unreachable.
type Transport interface {
	Send(ctx context.Context, record report.Record) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, record report.Record) error

// Send implements Transport.
func (fn TransportFunc) Send(ctx context.Context, record report.Record) error {
	return fn(ctx, record)
}

// Outcome classifies a single delivery attempt.
type Outcome int

const (
	// OutcomeDelivered means the collector accepted the record.
	OutcomeDelivered Outcome = iota
	// OutcomeRejected means the collector refused the record permanently.
	OutcomeRejected
	// OutcomeUnreachable means the attempt failed transiently.
	OutcomeUnreachable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRejected:
		return "rejected"
	case OutcomeUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// MetricsRecorder is an optional interface for recording engine metrics.
type MetricsRecorder interface {
	RecordSubmitted(ctx context.Context)
	RecordSend(ctx context.Context, outcome string, durationSeconds float64)
	RecordBacklogged(ctx context.Context, count int)
	RecordQueueDepth(ctx context.Context, depth int64)
	RecordActiveWorkers(ctx context.Context, count int64)
}

// Stats holds engine statistics.
type Stats struct {
	Submitted     int64 `json:"submitted"`      // records accepted by Submit
	Delivered     int64 `json:"delivered"`      // successful sends
	Rejected      int64 `json:"rejected"`       // permanent collector rejections, dropped
	Unreachable   int64 `json:"unreachable"`    // failed attempts retained for backup
	Backlogged    int64 `json:"backlogged"`     // records persisted at shutdown
	QueueDepth    int   `json:"queue_depth"`    // records waiting in the queue
	Pending       int   `json:"pending"`        // queued + in-flight records
	ActiveWorkers int   `json:"active_workers"` // workers currently alive
	Offline       bool  `json:"offline"`        // offline latch state
}
