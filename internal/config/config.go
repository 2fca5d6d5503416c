// Package config provides configuration loading and persistence for
// botster-orchestrator.
//
// Configuration is loaded from:
//  1. ~/.botster_orchestrator/config.json (file)
//  2. Environment variables (override file values)
//
// Environment variables:
//   - BOTSTER_ORCH_CONFIG_DIR: override config directory (for testing)
//   - BOTSTER_ORCH_DISCOVERY_ROOTS: colon-separated package-tree roots scanned
//     for tool/MCP providers
//   - BOTSTER_ORCH_LOCAL_PROVIDER_CONFIGS: colon-separated local provider
//     config file paths
//   - BOTSTER_ORCH_POOL_CAPACITY: max warm PTY instances per idle pool
//   - BOTSTER_ORCH_IDLE_TTL_SECONDS: idle pool eviction TTL
//   - BOTSTER_ORCH_SWEEP_PERIOD_SECONDS: idle pool sweep period
//   - BOTSTER_ORCH_GRACE_PERIOD_SECONDS: SIGTERM-to-SIGKILL grace period
//   - BOTSTER_ORCH_DEBOUNCE_MILLIS: activation-tracker filesystem debounce
//   - BOTSTER_ORCH_RING_CAPACITY: per-session output ring buffer capacity
//   - BOTSTER_ORCH_WSAPI_ADDR: listen address for the websocket event stream
//   - BOTSTER_ORCH_SSHAPI_ADDR: listen address for the optional SSH surface
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all configuration for the orchestrator.
type Config struct {
	// DiscoveryRoots are package-tree roots C6 scans for provider manifests.
	DiscoveryRoots []string `json:"discovery_roots"`

	// LocalProviderConfigs are local JSON files declaring providers directly,
	// taking precedence over inferred package-manifest entries for the
	// same id.
	LocalProviderConfigs []string `json:"local_provider_configs"`

	// PoolCapacity is the max warm instances the idle pool holds (C2).
	PoolCapacity int `json:"pool_capacity"`

	// IdleTTLSeconds is how long an idle instance may sit before eviction.
	IdleTTLSeconds uint64 `json:"idle_ttl_seconds"`

	// SweepPeriodSeconds is how often the idle pool sweep runs.
	SweepPeriodSeconds uint64 `json:"sweep_period_seconds"`

	// GracePeriodSeconds bounds SIGTERM-to-SIGKILL when terminating a PTY.
	GracePeriodSeconds uint64 `json:"grace_period_seconds"`

	// DebounceMillis is the activation tracker's filesystem coalescing
	// window (T_DEBOUNCE, spec.md §4.7).
	DebounceMillis uint64 `json:"debounce_millis"`

	// RingCapacity is the per-session output ring buffer size (C_RING).
	RingCapacity int `json:"ring_capacity"`

	// WSAPIAddr is the listen address for the websocket event stream.
	WSAPIAddr string `json:"wsapi_addr"`

	// SSHAPIAddr is the listen address for the optional SSH terminal-attach
	// surface; empty disables it.
	SSHAPIAddr string `json:"sshapi_addr"`

	// CheckpointPath is where registry analytics/recommendations are
	// persisted across restarts (spec.md §6 "Persisted state").
	CheckpointPath string `json:"checkpoint_path"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	dir, err := ConfigDir()
	checkpointPath := "checkpoint.yaml"
	if err == nil {
		checkpointPath = filepath.Join(dir, "checkpoint.yaml")
	}

	return &Config{
		DiscoveryRoots:       nil,
		LocalProviderConfigs: nil,
		PoolCapacity:         8,
		IdleTTLSeconds:       300,
		SweepPeriodSeconds:   30,
		GracePeriodSeconds:   2,
		DebounceMillis:       500,
		RingCapacity:         1000,
		WSAPIAddr:            "127.0.0.1:7780",
		SSHAPIAddr:           "",
		CheckpointPath:       checkpointPath,
	}
}

// ConfigDir returns the configuration directory path, creating it if
// necessary. Respects BOTSTER_ORCH_CONFIG_DIR for testing.
func ConfigDir() (string, error) {
	if testDir := os.Getenv("BOTSTER_ORCH_CONFIG_DIR"); testDir != "" {
		if err := os.MkdirAll(testDir, 0700); err != nil {
			return "", fmt.Errorf("could not create config directory: %w", err)
		}
		return testDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".botster_orchestrator")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("could not create config directory: %w", err)
	}

	return dir, nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration from file and applies environment variable
// overrides. Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		// File doesn't exist or is invalid - use defaults, not an error.
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

func (c *Config) loadFromFile() error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, c)
}

func splitColonList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ":")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BOTSTER_ORCH_DISCOVERY_ROOTS"); v != "" {
		c.DiscoveryRoots = splitColonList(v)
	}
	if v := os.Getenv("BOTSTER_ORCH_LOCAL_PROVIDER_CONFIGS"); v != "" {
		c.LocalProviderConfigs = splitColonList(v)
	}
	if v := os.Getenv("BOTSTER_ORCH_WSAPI_ADDR"); v != "" {
		c.WSAPIAddr = v
	}
	if v := os.Getenv("BOTSTER_ORCH_SSHAPI_ADDR"); v != "" {
		c.SSHAPIAddr = v
	}
	if v := os.Getenv("BOTSTER_ORCH_CHECKPOINT_PATH"); v != "" {
		c.CheckpointPath = v
	}

	if v := os.Getenv("BOTSTER_ORCH_POOL_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PoolCapacity = n
		}
	}
	if v := os.Getenv("BOTSTER_ORCH_IDLE_TTL_SECONDS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.IdleTTLSeconds = n
		}
	}
	if v := os.Getenv("BOTSTER_ORCH_SWEEP_PERIOD_SECONDS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.SweepPeriodSeconds = n
		}
	}
	if v := os.Getenv("BOTSTER_ORCH_GRACE_PERIOD_SECONDS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.GracePeriodSeconds = n
		}
	}
	if v := os.Getenv("BOTSTER_ORCH_DEBOUNCE_MILLIS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.DebounceMillis = n
		}
	}
	if v := os.Getenv("BOTSTER_ORCH_RING_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RingCapacity = n
		}
	}
}

// Save writes configuration to the config file.
func (c *Config) Save() error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("could not write config file: %w", err)
	}

	return nil
}
