// Package config holds the daemon configuration: a single JSON file with
// per-subsystem sections, defaults applied for anything omitted.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/seekerlabs/seekerd/internal/classifier"
	"github.com/seekerlabs/seekerd/internal/dispatch"
	"github.com/seekerlabs/seekerd/internal/router"
	"github.com/seekerlabs/seekerd/internal/sair"
	"github.com/seekerlabs/seekerd/internal/scheduler"
)

// Config holds all seekerd configuration.
type Config struct {
	Server ServerConfig `json:"server"`

	// Paths to the category catalog (TOML) and agent seed definitions
	// (YAML). Empty means built-in defaults.
	CatalogPath   string `json:"catalogPath,omitempty"`
	AgentDefsPath string `json:"agentDefsPath,omitempty"`

	Classifier classifier.Config `json:"classifier"`
	Router     router.Config     `json:"router"`
	Learning   sair.Config       `json:"learning"`
	Dispatch   DispatchConfig    `json:"dispatch"`
	Scheduler  scheduler.Config  `json:"scheduler,omitempty"`
}

// ServerConfig covers the HTTP surface and on-disk layout.
type ServerConfig struct {
	Port     int    `json:"port"`
	DataDir  string `json:"dataDir"`
	LogLevel string `json:"logLevel"`
}

// DispatchConfig selects and tunes the outbound transport.
type DispatchConfig struct {
	// Transport is "mqtt" or "local".
	Transport string              `json:"transport"`
	TimeoutMs int64               `json:"timeoutMs"`
	MQTT      dispatch.MQTTConfig `json:"mqtt"`
}

// OutcomeDBPath returns the SQLite path under the data dir.
func (c *Config) OutcomeDBPath() string {
	return filepath.Join(c.Server.DataDir, "outcomes.db")
}

// JournalDir returns the learning journal directory under the data dir.
func (c *Config) JournalDir() string {
	return filepath.Join(c.Server.DataDir, "journal")
}

// AgentStateDir returns the agent persistence directory under the data dir.
func (c *Config) AgentStateDir() string {
	return filepath.Join(c.Server.DataDir, "agents")
}

// DispatchTimeout returns the dispatch timeout as a duration.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.Dispatch.TimeoutMs) * time.Millisecond
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8520,
			DataDir:  "./data",
			LogLevel: "info",
		},
		Classifier: classifier.DefaultConfig(),
		Router:     router.DefaultConfig(),
		Learning:   sair.DefaultConfig(),
		Dispatch: DispatchConfig{
			Transport: "local",
			TimeoutMs: 30000,
			MQTT: dispatch.MQTTConfig{
				Broker: "localhost",
				Port:   1883,
			},
		},
		Scheduler: scheduler.Config{
			Enabled: true,
			Jobs: []*scheduler.Job{
				{
					ID:       "learning-cycle",
					Name:     "adaptive learning cycle",
					Schedule: scheduler.ScheduleConfig{Kind: "interval", IntervalMs: 15 * 60 * 1000},
					Action:   scheduler.ActionLearning,
					Enabled:  true,
				},
				{
					ID:       "agent-persist",
					Name:     "agent state persistence",
					Schedule: scheduler.ScheduleConfig{Kind: "interval", IntervalMs: 5 * 60 * 1000},
					Action:   scheduler.ActionPersist,
					Enabled:  true,
				},
			},
		},
	}
}

// Load reads config from a JSON file, applying defaults for omitted fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := os.MkdirAll(cfg.Server.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return cfg, nil
}

// Save writes config to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0640)
}
