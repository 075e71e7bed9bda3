// Package measure builds measurement-protocol records for the relay to
// deliver: screenviews, events, and exception reports, prefilled with the
// static parameters the collector expects.
package measure

import (
	"runtime"

	"telemetry/pkg/report"
)

// Field length limits imposed by the collection protocol.
const (
	maxCategoryLen    = 150
	maxActionLen      = 500
	maxLabelLen       = 500
	maxScreenNameLen  = 2048
	maxDescriptionLen = 2048
)

// Info identifies the reporting application.
type Info struct {
	TrackingID string // collector property id
	ClientID   string // persistent anonymous client id
	AppName    string
	AppVersion string
}

// Builder produces records sharing one set of static parameters.
type Builder struct {
	base report.Record
}

// NewBuilder creates a builder with the static parameters prefilled.
func NewBuilder(info Info) *Builder {
	return &Builder{
		base: report.Record{
			"v":   1,
			"tid": info.TrackingID,
			"cid": info.ClientID,
			"an":  info.AppName,
			"av":  info.AppVersion,
			"cd1": runtime.GOOS + "_" + runtime.GOARCH,
			"cd2": "Go/" + runtime.Version(),
		},
	}
}

// Screenview builds a screenview hit.
func (b *Builder) Screenview(name string) report.Record {
	rec := b.hit("screenview")
	rec["cd"] = truncate(name, maxScreenNameLen)
	return rec
}

// Event builds an event hit. Label and value are optional; a zero value
// is omitted.
func (b *Builder) Event(category, action, label string, value int) report.Record {
	rec := b.hit("event")
	rec["ec"] = truncate(category, maxCategoryLen)
	rec["ea"] = truncate(action, maxActionLen)
	if label != "" {
		rec["el"] = truncate(label, maxLabelLen)
	}
	if value != 0 {
		rec["ev"] = value
	}
	return rec
}

// Exception builds an exception hit.
func (b *Builder) Exception(description string, fatal bool) report.Record {
	rec := b.hit("exception")
	rec["exd"] = truncate(description, maxDescriptionLen)
	if fatal {
		rec["exf"] = 1
	} else {
		rec["exf"] = 0
	}
	return rec
}

// WithScreenName tags a hit with the screen it was raised from.
// An empty name leaves the record unchanged.
func WithScreenName(rec report.Record, name string) {
	if name != "" {
		rec["cd"] = truncate(name, maxScreenNameLen)
	}
}

func (b *Builder) hit(hitType string) report.Record {
	rec := b.base.Clone()
	rec["t"] = hitType
	return rec
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
