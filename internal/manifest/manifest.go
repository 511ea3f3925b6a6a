// Package manifest reads YAML files describing the tasks and agents of a run.
//
//	policy: dag
//	agents:
//	  - id: a1
//	    capacity: 2
//	    backend: shell
//	tasks:
//	  - id: build
//	    payload: make
//	  - id: test
//	    payload: make test
//	    depends_on: [build]
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aristath/dispatch/internal/config"
	"github.com/aristath/dispatch/internal/scheduler"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// AgentSpec declares one agent.
type AgentSpec struct {
	ID        string `yaml:"id"`
	Capacity  int    `yaml:"capacity,omitempty"`  // 0 means 1
	Unlimited bool   `yaml:"unlimited,omitempty"` // overrides Capacity
	Backend   string `yaml:"backend,omitempty"`
}

// TaskSpec declares one task. Payload is passed through untouched.
type TaskSpec struct {
	ID        string   `yaml:"id,omitempty"`
	Payload   any      `yaml:"payload,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// Manifest is a parsed manifest file.
type Manifest struct {
	Policy string      `yaml:"policy,omitempty"`
	Agents []AgentSpec `yaml:"agents,omitempty"`
	Tasks  []TaskSpec  `yaml:"tasks"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest. Unknown keys are rejected. Tasks without an id
// receive a random UUID.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}

	for i := range m.Tasks {
		if m.Tasks[i].ID == "" {
			m.Tasks[i].ID = uuid.NewString()
		}
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Policy != "" {
		if _, err := scheduler.New(m.Policy); err != nil {
			return err
		}
	}

	agents := make(map[string]bool, len(m.Agents))
	for i, a := range m.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent %d: missing id", i)
		}
		if agents[a.ID] {
			return fmt.Errorf("agent %q declared twice", a.ID)
		}
		if a.Capacity < 0 {
			return fmt.Errorf("agent %q: negative capacity %d", a.ID, a.Capacity)
		}
		agents[a.ID] = true
	}

	tasks := make(map[string]bool, len(m.Tasks))
	for _, t := range m.Tasks {
		if tasks[t.ID] {
			return fmt.Errorf("task %q declared twice", t.ID)
		}
		tasks[t.ID] = true
	}
	return nil
}

// BuildTasks builds scheduler tasks in file order.
func (m *Manifest) BuildTasks() []*scheduler.Task {
	tasks := make([]*scheduler.Task, 0, len(m.Tasks))
	for _, t := range m.Tasks {
		tasks = append(tasks, scheduler.NewTask(t.ID, t.Payload, t.DependsOn...))
	}
	return tasks
}

// EffectiveCapacity returns the agent's effective slot count.
func (a AgentSpec) EffectiveCapacity() int {
	switch {
	case a.Unlimited:
		return scheduler.UnlimitedCapacity
	case a.Capacity == 0:
		return 1
	default:
		return a.Capacity
	}
}

// Apply overlays the manifest onto cfg. Manifest agents replace config agents
// with the same id and a manifest policy replaces the configured one. The
// agents list order becomes the roster order, ahead of config-only agents.
func (m *Manifest) Apply(cfg *config.DispatchConfig) {
	if m.Policy != "" {
		cfg.Policy = m.Policy
	}
	if len(m.Agents) == 0 {
		return
	}
	if cfg.Agents == nil {
		cfg.Agents = make(map[string]config.AgentConfig)
	}
	order := make([]string, 0, len(m.Agents)+len(cfg.AgentOrder))
	declared := make(map[string]bool, len(m.Agents))
	for _, a := range m.Agents {
		cfg.Agents[a.ID] = config.AgentConfig{
			Capacity: a.EffectiveCapacity(),
			Backend:  a.Backend,
		}
		order = append(order, a.ID)
		declared[a.ID] = true
	}
	for _, id := range cfg.AgentOrder {
		if !declared[id] {
			order = append(order, id)
		}
	}
	cfg.AgentOrder = order
}
