package backend

// Message carries one task's payload to a backend.
type Message struct {
	TaskID  string
	AgentID string
	Payload string
}

// Response is what a backend produced for a message.
type Response struct {
	Content string
	Error   string
}

// Config defines the configuration for a backend.
type Config struct {
	Type    string   // "echo" or "command"
	Command string   // Binary for "command"
	Args    []string // Arguments for "command"
	WorkDir string   // Working directory for "command"; empty means the current one
}
