package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aristath/dispatch/internal/scheduler"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*DispatchConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// DefaultPaths returns the conventional global and project config paths.
// Global: ~/.dispatch/config.json
// Project: .dispatch/config.json (relative to cwd)
func DefaultPaths() (globalPath, projectPath string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".dispatch", "config.json"), filepath.Join(".dispatch", "config.json"), nil
}

// LoadDefault loads configuration from the conventional paths.
func LoadDefault() (*DispatchConfig, error) {
	globalPath, projectPath, err := DefaultPaths()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Scalars override when set; map entries override per key.
func mergeConfigFile(base *DispatchConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded DispatchConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if loaded.Policy != "" {
		base.Policy = loaded.Policy
	}
	if loaded.CycleDetection != nil {
		base.CycleDetection = loaded.CycleDetection
	}
	if loaded.DBPath != "" {
		base.DBPath = loaded.DBPath
	}
	if len(loaded.AgentOrder) > 0 {
		base.AgentOrder = loaded.AgentOrder
	}
	if loaded.Log.Level != "" {
		base.Log.Level = loaded.Log.Level
	}
	if loaded.Log.Format != "" {
		base.Log.Format = loaded.Log.Format
	}
	if loaded.Retry.MaxAttempts > 0 {
		base.Retry.MaxAttempts = loaded.Retry.MaxAttempts
	}
	if loaded.Retry.InitialIntervalMS > 0 {
		base.Retry.InitialIntervalMS = loaded.Retry.InitialIntervalMS
	}
	if loaded.Retry.MaxIntervalMS > 0 {
		base.Retry.MaxIntervalMS = loaded.Retry.MaxIntervalMS
	}

	for key, agent := range loaded.Agents {
		base.Agents[key] = agent
	}
	for key, b := range loaded.Backends {
		base.Backends[key] = b
	}

	return nil
}

// Validate checks that the policy exists, capacities are positive and every
// agent points at a defined backend.
func (c *DispatchConfig) Validate() error {
	if _, err := scheduler.New(c.Policy); err != nil {
		return err
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("no agents configured")
	}
	for _, id := range c.AgentIDs() {
		agent := c.Agents[id]
		if agent.Capacity < 1 {
			return fmt.Errorf("agent %q: capacity %d must be at least 1", id, agent.Capacity)
		}
		if _, ok := c.Backends[c.BackendFor(id)]; !ok {
			return fmt.Errorf("agent %q: unknown backend %q", id, c.BackendFor(id))
		}
	}
	for name, b := range c.Backends {
		switch b.Type {
		case "echo":
		case "command":
			if b.Command == "" {
				return fmt.Errorf("backend %q: command backend needs a command", name)
			}
		default:
			return fmt.Errorf("backend %q: unknown type %q", name, b.Type)
		}
	}
	return nil
}

// AgentIDs returns the roster order: agents named in AgentOrder first, in
// that order, then the rest sorted by id.
func (c *DispatchConfig) AgentIDs() []string {
	ids := make([]string, 0, len(c.Agents))
	seen := make(map[string]bool, len(c.Agents))
	for _, id := range c.AgentOrder {
		if _, ok := c.Agents[id]; ok && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	rest := make([]string, 0, len(c.Agents)-len(ids))
	for id := range c.Agents {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// BackendFor returns the backend name for an agent, defaulting to "echo".
func (c *DispatchConfig) BackendFor(agentID string) string {
	if b := c.Agents[agentID].Backend; b != "" {
		return b
	}
	return "echo"
}

// CycleDetectionEnabled reports whether DAG cycle checks are on (default true).
func (c *DispatchConfig) CycleDetectionEnabled() bool {
	return c.CycleDetection == nil || *c.CycleDetection
}
