package tui

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/dispatch/internal/config"
)

func TestApplyFormToConfig(t *testing.T) {
	tests := []struct {
		name       string
		policy     string
		agents     string
		backends   string
		wantErr    string
		wantOrder  string
		wantBackOf map[string]string
	}{
		{
			name:       "roster in declaration order",
			policy:     "round-robin",
			agents:     "zeta:2:shell, alpha, mid:3",
			backends:   "echo: echo\nshell: sh -s",
			wantOrder:  "zeta,alpha,mid",
			wantBackOf: map[string]string{"zeta": "shell", "alpha": "echo", "mid": "echo"},
		},
		{
			name:     "bad capacity",
			policy:   "dag",
			agents:   "a:zero",
			backends: "echo: echo",
			wantErr:  "capacity",
		},
		{
			name:     "unknown backend",
			policy:   "dag",
			agents:   "a:1:gpu",
			backends: "echo: echo",
			wantErr:  "unknown backend",
		},
		{
			name:     "no agents",
			policy:   "lru",
			agents:   " , ",
			backends: "echo: echo",
			wantErr:  "at least one agent",
		},
		{
			name:     "backend without command",
			policy:   "dag",
			agents:   "a",
			backends: "echo: echo\nbroken:",
			wantErr:  "missing command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			m := NewSettingsModel(cfg, nil, nil)
			m.policy = tt.policy
			m.agents = tt.agents
			m.backends = tt.backends

			err := m.applyFormToConfig()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("applyFormToConfig() error = %v, want %q", err, tt.wantErr)
				}
				if cfg.Policy != "dag" || len(cfg.Agents) != 1 {
					t.Errorf("config changed on error: %+v", cfg)
				}
				return
			}
			if err != nil {
				t.Fatalf("applyFormToConfig: %v", err)
			}
			if cfg.Policy != tt.policy {
				t.Errorf("Policy = %q, want %q", cfg.Policy, tt.policy)
			}
			if got := strings.Join(cfg.AgentIDs(), ","); got != tt.wantOrder {
				t.Errorf("AgentIDs() = %s, want %s", got, tt.wantOrder)
			}
			for id, backend := range tt.wantBackOf {
				if got := cfg.BackendFor(id); got != backend {
					t.Errorf("BackendFor(%s) = %q, want %q", id, got, backend)
				}
			}
			if got := cfg.Agents["zeta"].Capacity; got != 2 {
				t.Errorf("zeta capacity = %d, want 2", got)
			}
			if sh := cfg.Backends["shell"]; sh.Type != "command" || sh.Command != "sh" || len(sh.Args) != 1 {
				t.Errorf("shell backend = %+v", sh)
			}
		})
	}
}

func TestSettingsModel_FieldsRoundTrip(t *testing.T) {
	cfg := config.DefaultConfig()
	m := NewSettingsModel(cfg, nil, nil)

	if m.agents != "local:1:echo" {
		t.Errorf("agents field = %q, want local:1:echo", m.agents)
	}
	if err := m.applyFormToConfig(); err != nil {
		t.Fatalf("unedited form does not apply: %v", err)
	}
	if sh := cfg.Backends["shell"]; sh.Command != "sh" || strings.Join(sh.Args, " ") != "-s" {
		t.Errorf("shell backend = %+v after round trip", sh)
	}
}

func TestSettingsModel_SaveWritesTarget(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "project", "config.json")
	global := filepath.Join(dir, "global", "config.json")

	m := NewSettingsModel(config.DefaultConfig(), []SaveTarget{
		{Label: "Project", Path: project},
		{Label: "Global", Path: global},
	}, nil)
	m.target = global
	m.policy = "lru"
	m.agents = "w1:4, w2"

	if err := m.save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if m.SavedPath() != global {
		t.Errorf("SavedPath() = %q, want %q", m.SavedPath(), global)
	}

	loaded, err := config.Load("", global)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Policy != "lru" {
		t.Errorf("Policy = %q, want lru", loaded.Policy)
	}
	if got := loaded.Agents["w1"].Capacity; got != 4 {
		t.Errorf("w1 capacity = %d, want 4", got)
	}
	if got := strings.Join(loaded.AgentOrder, ","); got != "w1,w2" {
		t.Errorf("AgentOrder = %s, want w1,w2", got)
	}
}

func TestSettingsModel_TargetVeto(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	veto := errors.New("already exists")

	m := NewSettingsModel(config.DefaultConfig(), []SaveTarget{{Label: "Project", Path: path}},
		func(string) error { return veto })

	if err := m.save(); !errors.Is(err, veto) {
		t.Fatalf("save() error = %v, want %v", err, veto)
	}
	if m.SavedPath() != "" {
		t.Errorf("SavedPath() = %q after veto", m.SavedPath())
	}
}

func TestSettingsModel_EscAborts(t *testing.T) {
	m := NewSettingsModel(config.DefaultConfig(), nil, nil)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	sm := next.(SettingsModel)
	if !sm.Aborted() {
		t.Error("esc should abort the form")
	}
	if cmd == nil {
		t.Error("esc should quit the program")
	}
	if sm.SavedPath() != "" {
		t.Error("aborted form must not save")
	}
}
