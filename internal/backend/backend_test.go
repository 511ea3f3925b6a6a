package backend

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// newPipe returns an os pipe closed at test end.
func newPipe(t *testing.T) (io.Reader, io.WriteCloser) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "echo", cfg: Config{Type: "echo"}},
		{name: "empty type is echo", cfg: Config{}},
		{name: "command", cfg: Config{Type: "command", Command: "cat"}},
		{name: "command without binary", cfg: Config{Type: "command"}, wantErr: true},
		{name: "unknown", cfg: Config{Type: "vllm"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if b != nil {
				b.Close()
			}
		})
	}
}

func TestEchoBackend(t *testing.T) {
	b := NewEchoBackend()
	resp, err := b.Send(context.Background(), Message{TaskID: "t1", Payload: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("Content = %q, want hello", resp.Content)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Send(ctx, Message{Payload: "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Send error = %v, want context.Canceled", err)
	}
}

func TestCommandBackend_Send(t *testing.T) {
	pm := NewProcessManager()
	b, err := NewCommandBackend(Config{
		Command: "sh",
		Args:    []string{"-c", `printf '%s:%s:' "$DISPATCH_TASK_ID" "$DISPATCH_AGENT_ID"; cat`},
		WorkDir: t.TempDir(),
	}, pm)
	if err != nil {
		t.Fatalf("NewCommandBackend: %v", err)
	}
	defer b.Close()

	resp, err := b.Send(context.Background(), Message{TaskID: "t1", AgentID: "a1", Payload: "body\n"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Content != "t1:a1:body" {
		t.Errorf("Content = %q, want %q", resp.Content, "t1:a1:body")
	}
	if pm.Count() != 0 {
		t.Errorf("subprocess still tracked after Send")
	}
}

func TestCommandBackend_Failure(t *testing.T) {
	b, err := NewCommandBackend(Config{Command: "sh", Args: []string{"-c", "echo partial; echo bad input >&2; exit 1"}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := b.Send(context.Background(), Message{TaskID: "t1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if resp.Content != "partial" {
		t.Errorf("Content = %q, want partial stdout", resp.Content)
	}
	if !strings.Contains(resp.Error, "bad input") {
		t.Errorf("Error = %q, want stderr included", resp.Error)
	}
}

type label struct{ name string }

func (l label) String() string { return "label:" + l.name }

func TestPayloadString(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{"nil", nil, ""},
		{"string", "prompt", "prompt"},
		{"bytes", []byte("raw"), "raw"},
		{"stringer", label{"x"}, "label:x"},
		{"map", map[string]any{"prompt": "hi", "max_tokens": 5}, `{"max_tokens":5,"prompt":"hi"}`},
		{"int", 42, "42"},
		{"non-string keys", map[any]any{1: "one", true: "yes"}, `{"1":"one","true":"yes"}`},
		{"nested non-string keys", []any{map[string]any{"opts": map[any]any{2: "b"}}}, `[{"opts":{"2":"b"}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PayloadString(tt.payload)
			if err != nil {
				t.Fatalf("PayloadString: %v", err)
			}
			if got != tt.want {
				t.Errorf("PayloadString() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := PayloadString(make(chan int)); err == nil {
		t.Error("expected error for unencodable payload")
	}
}

func TestPayloadString_YAMLIntegerKeys(t *testing.T) {
	var payload any
	if err := yaml.Unmarshal([]byte("retries:\n  1: fast\n  2: slow\n"), &payload); err != nil {
		t.Fatal(err)
	}

	got, err := PayloadString(payload)
	if err != nil {
		t.Fatalf("PayloadString: %v", err)
	}
	if want := `{"retries":{"1":"fast","2":"slow"}}`; got != want {
		t.Errorf("PayloadString() = %q, want %q", got, want)
	}
}
