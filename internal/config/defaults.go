package config

// DefaultConfig returns a single-agent DAG setup that echoes payloads.
func DefaultConfig() *DispatchConfig {
	return &DispatchConfig{
		Policy: "dag",
		Agents: map[string]AgentConfig{
			"local": {
				Capacity: 1,
				Backend:  "echo",
			},
		},
		Backends: map[string]BackendConfig{
			"echo": {
				Type: "echo",
			},
			"shell": {
				Type:    "command",
				Command: "sh",
				Args:    []string{"-s"},
			},
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialIntervalMS: 100,
			MaxIntervalMS:     10000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
