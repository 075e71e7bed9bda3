package dispatcher

import (
	"telemetry/internal/config"
	"time"
)

// Delivery defaults. The worker cap and backlog cap match the collector
// protocol the relay speaks.
const (
	defaultMaxWorkers  = 5
	defaultBacklogCap  = 100
	defaultDrainWait   = time.Second
	defaultDrainPoll   = 200 * time.Millisecond
	defaultIdleExit    = 2 * time.Second
	defaultSendTimeout = 5 * time.Second
)

// Config holds configuration for the dispatch engine.
type Config struct {
	MaxWorkers  int           // worker pool cap (default: 5)
	BacklogCap  int           // persisted backlog cap, oldest dropped first (default: 100)
	DrainWait   time.Duration // max shutdown wait for pending sends (default: 1s)
	DrainPoll   time.Duration // shutdown pending-count poll interval (default: 200ms)
	IdleExit    time.Duration // idle time before a worker exits (default: 2s)
	SendTimeout time.Duration // per-attempt context timeout (default: 5s)
}

// LoadConfigFromEnv loads engine configuration from environment variables.
func LoadConfigFromEnv() Config {
	cfg := Config{
		MaxWorkers:  config.GetIntEnv("TELEMETRY_MAX_WORKERS", defaultMaxWorkers),
		BacklogCap:  config.GetIntEnv("TELEMETRY_BACKLOG_CAP", defaultBacklogCap),
		DrainWait:   config.GetDurationEnv("TELEMETRY_DRAIN_WAIT", defaultDrainWait),
		DrainPoll:   config.GetDurationEnv("TELEMETRY_DRAIN_POLL", defaultDrainPoll),
		IdleExit:    config.GetDurationEnv("TELEMETRY_WORKER_IDLE_EXIT", defaultIdleExit),
		SendTimeout: config.GetDurationEnv("TELEMETRY_SEND_TIMEOUT", defaultSendTimeout),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = defaultMaxWorkers
	}
	if c.BacklogCap <= 0 {
		c.BacklogCap = defaultBacklogCap
	}
	if c.DrainWait <= 0 {
		c.DrainWait = defaultDrainWait
	}
	if c.DrainPoll <= 0 {
		c.DrainPoll = defaultDrainPoll
	}
	if c.IdleExit <= 0 {
		c.IdleExit = defaultIdleExit
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	return c
}
