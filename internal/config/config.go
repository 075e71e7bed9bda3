// Package config provides configuration loading from environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// ServiceConfig holds configuration for the telemetry relay service.
type ServiceConfig struct {
	Port        string
	MetricsPort string
	APIKey      string
	Endpoint    string        // collection endpoint records are posted to
	HTTPTimeout time.Duration // per-request collector timeout
	StatePath   string        // state file holding the backlog
	TrackingID  string        // collector property id stamped on every record
	AppName     string        // application name reported with every record
	AppVersion  string        // application version reported with every record
	Disabled    bool          // accept records but never deliver or persist them

	ShutdownDrainWait time.Duration // pause after readiness flips, before servers close
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:        GetEnv("PORT", "8080"),
		MetricsPort: GetEnv("METRICS_PORT", "9090"),
		APIKey:      GetSecretFile(GetEnv("API_KEY_FILE", "")),
		Endpoint:    GetEnv("TELEMETRY_ENDPOINT", "https://ssl.google-analytics.com/collect"),
		HTTPTimeout: GetDurationEnv("TELEMETRY_HTTP_TIMEOUT", time.Second),
		StatePath:   GetEnv("TELEMETRY_STATE_FILE", defaultStatePath()),
		TrackingID:  GetEnv("TELEMETRY_TRACKING_ID", ""),
		AppName:     GetEnv("TELEMETRY_APP_NAME", "telemetry-relay"),
		AppVersion:  GetEnv("TELEMETRY_APP_VERSION", "dev"),
		Disabled:    GetBoolEnv("TELEMETRY_DISABLED", false),

		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 0),
	}
}

// defaultStatePath puts the state file under the user config directory,
// falling back to the working directory.
func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "telemetry-state.json"
	}
	return filepath.Join(dir, "telemetry-relay", "state.json")
}
