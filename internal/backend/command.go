package backend

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CommandBackend runs a fixed command per message with the payload on stdin.
// DISPATCH_TASK_ID and DISPATCH_AGENT_ID are exported to the subprocess.
type CommandBackend struct {
	command string
	args    []string
	workDir string
	procMgr *ProcessManager
}

// NewCommandBackend creates a command backend.
// The ProcessManager is optional; without it subprocesses are not tracked.
func NewCommandBackend(cfg Config, procMgr *ProcessManager) (*CommandBackend, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("command backend: no command configured")
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &CommandBackend{
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		workDir: workDir,
		procMgr: procMgr,
	}, nil
}

// Send runs the command and returns its trimmed stdout.
func (b *CommandBackend) Send(ctx context.Context, msg Message) (Response, error) {
	cmd := newCommand(ctx, b.command, b.args...)
	cmd.Dir = b.workDir
	cmd.Env = append(os.Environ(),
		"DISPATCH_TASK_ID="+msg.TaskID,
		"DISPATCH_AGENT_ID="+msg.AgentID,
	)

	stdout, _, err := executeCommand(ctx, cmd, strings.NewReader(msg.Payload), b.procMgr, msg.TaskID)
	if err != nil {
		return Response{
			Content: strings.TrimRight(string(stdout), "\n"),
			Error:   fmt.Sprintf("%s failed: %v", b.command, err),
		}, err
	}

	return Response{Content: strings.TrimRight(string(stdout), "\n")}, nil
}

func (b *CommandBackend) Close() error { return nil }
