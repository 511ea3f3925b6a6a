package config

// AgentConfig defines one executor in the roster.
type AgentConfig struct {
	Capacity int    `json:"capacity"`          // Concurrent task slots, at least 1
	Backend  string `json:"backend,omitempty"` // Key into Backends map; defaults to "echo"
}

// BackendConfig defines how task payloads are executed.
// Several agents can share one backend.
type BackendConfig struct {
	Type    string   `json:"type"`              // "echo" or "command"
	Command string   `json:"command,omitempty"` // Binary for "command" backends; payload goes to stdin
	Args    []string `json:"args,omitempty"`    // Arguments appended to Command
}

// RetryConfig configures backend retries in the dispatch loop.
// Zero values fall back to the defaults.
type RetryConfig struct {
	MaxAttempts       int `json:"max_attempts,omitempty"`
	InitialIntervalMS int `json:"initial_interval_ms,omitempty"`
	MaxIntervalMS     int `json:"max_interval_ms,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // text, json
}

// DispatchConfig is the top-level configuration.
type DispatchConfig struct {
	Policy         string                   `json:"policy,omitempty"` // dag, lru, round-robin
	CycleDetection *bool                    `json:"cycle_detection,omitempty"`
	Agents         map[string]AgentConfig   `json:"agents"`
	AgentOrder     []string                 `json:"agent_order,omitempty"` // Roster order; unlisted agents follow sorted
	Backends       map[string]BackendConfig `json:"backends"`
	Retry          RetryConfig              `json:"retry"`
	Log            LogConfig                `json:"log"`
	DBPath         string                   `json:"db_path,omitempty"` // Empty disables the journal
}
