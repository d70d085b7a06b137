package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level gateway configuration: the local listen/admin
// setup, statically configured counterparties, and the ambient concerns
// (discovery, throttling, audit logs) that apply across all of them.
type Config struct {
	Counterparties []CounterpartyEntry `yaml:"counterparties"`
	Discovery      DiscoveryConfig     `yaml:"discovery"`
	Throttle       ThrottleConfig      `yaml:"throttle"`
	Housekeeping   HousekeepingConfig  `yaml:"housekeeping"`
	Logs           LogsConfig          `yaml:"logs"`
	Admin          AdminConfig         `yaml:"admin"`
}

// CounterpartyEntry statically configures one FIX session endpoint.
type CounterpartyEntry struct {
	Name         string `yaml:"name"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Role         string `yaml:"role"` // "initiator" or "acceptor"
	SenderCompID string `yaml:"sender_comp_id"`
	TargetCompID string `yaml:"target_comp_id"`
	HeartBtInt   string `yaml:"heart_bt_int"`
}

type DiscoveryConfig struct {
	DirectoryURL string `yaml:"directory_url"`
}

// ThrottleConfig bounds the outbound rate per connection (A3). The
// connection takes one limiter token per frame write attempt, so
// BytesPerSec acts as frames per second and Burst as the number of frames
// allowed at once. BytesPerSec <= 0 disables throttling.
type ThrottleConfig struct {
	BytesPerSec int64 `yaml:"bytes_per_sec"`
	Burst       int   `yaml:"burst"`
}

// HousekeepingConfig schedules periodic maintenance (A5); every field is a
// standard 5-field cron expression, empty to disable that job.
type HousekeepingConfig struct {
	LogRotationSchedule string `yaml:"log_rotation_schedule"`
	CleanupSchedule     string `yaml:"cleanup_schedule"`
}

type LogsConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type AdminConfig struct {
	Port int `yaml:"port"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Throttle: ThrottleConfig{
			BytesPerSec: 0,
		},
		Housekeeping: HousekeepingConfig{
			LogRotationSchedule: "0 0 * * *",
			CleanupSchedule:     "30 2 * * *",
		},
		Logs: LogsConfig{
			Path:          "/data/logs",
			RetentionDays: 30,
		},
		Admin: AdminConfig{
			Port: 8080,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultHeartBtInt is used for a counterparty entry with no heart_bt_int set.
const DefaultHeartBtInt = "30"

// HeartbeatInterval parses an entry's HeartBtInt field, falling back to
// DefaultHeartBtInt's value on a blank or malformed field.
func (e CounterpartyEntry) HeartbeatInterval() time.Duration {
	secs := e.HeartBtInt
	if secs == "" {
		secs = DefaultHeartBtInt
	}
	var n int
	for _, c := range secs {
		if c < '0' || c > '9' {
			return 30 * time.Second
		}
		n = n*10 + int(c-'0')
	}
	return time.Duration(n) * time.Second
}
