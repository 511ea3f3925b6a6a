package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"
)

// killGrace is how long a cancelled command gets between SIGTERM to its
// process group and a hard kill.
const killGrace = 2 * time.Second

// newCommand creates an exec.Cmd in its own process group. Cancelling ctx
// sends SIGTERM to the whole group; anything still running after killGrace
// is killed and its pipes closed.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		return signalProcessGroup(cmd, syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace
	return cmd
}

// executeCommand runs cmd for taskID with stdin and returns stdout and stderr.
// Both pipes are drained concurrently before cmd.Wait so large outputs cannot
// fill a pipe buffer and deadlock the child. pm may be nil.
func executeCommand(ctx context.Context, cmd *exec.Cmd, stdin io.Reader, pm *ProcessManager, taskID string) (stdout []byte, stderr []byte, err error) {
	if stdin != nil {
		cmd.Stdin = stdin
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start command: %w", err)
	}
	if pm != nil {
		pm.Track(cmd, taskID)
		defer pm.Untrack(cmd)
	}

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	stdout = stdoutBuf.Bytes()
	stderr = stderrBuf.Bytes()

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			waitErr = errors.Join(ctxErr, waitErr)
		}
		if len(stderr) > 0 {
			return stdout, stderr, fmt.Errorf("command failed: %w (stderr: %s)", waitErr, bytes.TrimSpace(stderr))
		}
		return stdout, stderr, fmt.Errorf("command failed: %w", waitErr)
	}
	return stdout, stderr, nil
}

// signalProcessGroup sends sig to the command's whole process group.
func signalProcessGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	// Negative PID addresses the group
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		return fmt.Errorf("failed to signal process group: %w", err)
	}
	return nil
}

type trackedProcess struct {
	cmd    *exec.Cmd
	taskID string
}

// ProcessManager tracks the subprocesses of in-flight tasks so shutdown can
// kill them all and report which tasks were interrupted.
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]trackedProcess // by pid
}

// NewProcessManager creates a new ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		procs: make(map[int]trackedProcess),
	}
}

// Track registers a started subprocess running taskID.
func (pm *ProcessManager) Track(cmd *exec.Cmd, taskID string) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.procs[cmd.Process.Pid] = trackedProcess{cmd: cmd, taskID: taskID}
}

// Untrack removes a subprocess once it has been waited on.
func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.procs, cmd.Process.Pid)
}

// KillAll sends SIGKILL to every tracked process group.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, p := range pm.procs {
		if err := signalProcessGroup(p.cmd, syscall.SIGKILL); err != nil {
			errs = append(errs, fmt.Errorf("task %s (pid %d): %w", p.taskID, pid, err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of tracked subprocesses.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}

// Tasks returns the sorted IDs of tasks with a live subprocess.
func (pm *ProcessManager) Tasks() []string {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	ids := make([]string, 0, len(pm.procs))
	for _, p := range pm.procs {
		ids = append(ids, p.taskID)
	}
	sort.Strings(ids)
	return ids
}
