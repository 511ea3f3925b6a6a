package backend

import (
	"context"
	"fmt"
)

// Backend executes task payloads. The scheduler never calls it; the dispatch
// loop sends each assignment's payload here and reports completion back.
type Backend interface {
	// Send executes one payload and returns its output.
	Send(ctx context.Context, msg Message) (Response, error)

	// Close releases backend resources.
	Close() error
}

// New creates a backend based on cfg.Type.
// The ProcessManager is optional and only used by command backends.
func New(cfg Config, pm *ProcessManager) (Backend, error) {
	switch cfg.Type {
	case "echo", "":
		return NewEchoBackend(), nil
	case "command":
		return NewCommandBackend(cfg, pm)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
