// Package report provides the telemetry record type and its HTTP sender.
package report

import (
	"time"
)

// QueueTimeKey is the record field holding the time the record was queued
// for delivery, as UNIX seconds.
const QueueTimeKey = "qt"

// staticKeys are fields that are re-derived on every run and not worth
// persisting in the backlog (protocol version, tracking id, client id,
// system info, screen resolution, app name).
var staticKeys = []string{"v", "tid", "cid", "cd1", "cd2", "sr", "an"}

// Record is one telemetry event as a flat mapping of string keys to
// scalar values (string, int, or float).
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	clone := make(Record, len(r))
	for k, v := range r {
		clone[k] = v
	}
	return clone
}

// StampQueueTime sets the queue-time field to now if it is absent.
// A record keeps its original queue time across resend attempts.
func (r Record) StampQueueTime(now time.Time) {
	if _, ok := r[QueueTimeKey]; !ok {
		r[QueueTimeKey] = unixSeconds(now)
	}
}

// QueueTime returns the queue-time field as UNIX seconds, if present
// and absolute.
func (r Record) QueueTime() (float64, bool) {
	qt, ok := r[QueueTimeKey].(float64)
	return qt, ok
}

// StripStatic removes fields that should not be persisted in the backlog.
func (r Record) StripStatic() {
	for _, k := range staticKeys {
		delete(r, k)
	}
}

// NormalizeQueueTime rewrites the queue-time field as absolute UNIX
// seconds before the record is persisted. A missing value becomes now; an
// integer value is an elapsed-milliseconds delta produced by the sender
// and is converted back to an absolute timestamp.
func (r Record) NormalizeQueueTime(now time.Time) {
	switch qt := r[QueueTimeKey].(type) {
	case float64:
		// already absolute
	case int64:
		r[QueueTimeKey] = unixSeconds(now) - float64(qt)/1000
	case int:
		r[QueueTimeKey] = unixSeconds(now) - float64(qt)/1000
	default:
		_ = qt
		r[QueueTimeKey] = unixSeconds(now)
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
