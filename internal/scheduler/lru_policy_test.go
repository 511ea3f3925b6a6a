package scheduler

import (
	"testing"
	"time"
)

func TestLRUScheduler_NeverUsedIsOldest(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewLRUScheduler()
	a1 := mustAgent(t, "a1", 1)
	a2 := mustAgent(t, "a2", 1, WithClock(ClockFunc(func() time.Time { return t0 })))

	// a2 has been used once and is free again
	_ = a2.AssignTask(NewTask("warmup", nil))
	a2.CompleteTask()

	_ = s.RegisterAgent(a1)
	_ = s.RegisterAgent(a2)
	_ = s.RegisterTask(NewTask("T", nil))

	a, ok, err := s.Schedule()
	if err != nil || !ok {
		t.Fatalf("Schedule() = ok %v, err %v", ok, err)
	}
	if a.Agent != a1 {
		t.Fatalf("assigned to %s, want a1 (never used)", a.Agent.ID())
	}
}

func TestLRUScheduler_PicksOldestStamp(t *testing.T) {
	clock := newFakeClock()
	s := NewLRUScheduler()
	agents := []*Agent{
		mustAgent(t, "a1", UnlimitedCapacity, WithClock(clock)),
		mustAgent(t, "a2", UnlimitedCapacity, WithClock(clock)),
		mustAgent(t, "a3", UnlimitedCapacity, WithClock(clock)),
	}
	for _, a := range agents {
		_ = s.RegisterAgent(a)
	}
	// Stamp in the order a3, a1, a2 so a3 is least recent
	_ = agents[2].AssignTask(NewTask("x", nil))
	_ = agents[0].AssignTask(NewTask("y", nil))
	_ = agents[1].AssignTask(NewTask("z", nil))

	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		_ = s.RegisterTask(NewTask(id, nil))
	}

	var got []string
	for {
		a, ok, err := s.Schedule()
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, a.Task.ID+"@"+a.Agent.ID())
	}

	want := []string{"t1@a3", "t2@a1", "t3@a2", "t4@a3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("assignment %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLRUScheduler_TiesBrokenByRosterOrder(t *testing.T) {
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fixed := WithClock(ClockFunc(func() time.Time { return stamp }))

	tests := []struct {
		name  string
		setup func(a, b *Agent)
	}{
		{name: "both never used", setup: func(a, b *Agent) {}},
		{name: "both used at the same instant", setup: func(a, b *Agent) {
			_ = a.AssignTask(NewTask("x", nil))
			_ = b.AssignTask(NewTask("y", nil))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewLRUScheduler()
			first := mustAgent(t, "first", 2, fixed)
			second := mustAgent(t, "second", 2, fixed)
			tt.setup(first, second)
			_ = s.RegisterAgent(first)
			_ = s.RegisterAgent(second)
			_ = s.RegisterTask(NewTask("T", nil))

			a, ok, _ := s.Schedule()
			if !ok || a.Agent != first {
				t.Fatalf("tie should go to the first roster agent, got ok=%v agent=%v", ok, a.Agent)
			}
		})
	}
}

func TestLRUScheduler_SkipsFullAgents(t *testing.T) {
	s := NewLRUScheduler()
	full := mustAgent(t, "full", 1)
	_ = full.AssignTask(NewTask("busy", nil))
	used := mustAgent(t, "used", 1)
	_ = used.AssignTask(NewTask("warm", nil))
	used.CompleteTask()

	_ = s.RegisterAgent(full)
	_ = s.RegisterAgent(used)
	_ = s.RegisterTask(NewTask("T", nil))

	a, ok, _ := s.Schedule()
	if !ok || a.Agent != used {
		t.Fatalf("expected the only free agent, got ok=%v agent=%v", ok, a.Agent)
	}
}

func TestLRUScheduler_StrictFIFOIgnoresDependencies(t *testing.T) {
	s := NewLRUScheduler()
	_ = s.RegisterAgent(mustAgent(t, "a1", UnlimitedCapacity))
	_ = s.RegisterTask(NewTask("first", nil, "anything"))
	_ = s.RegisterTask(NewTask("second", nil))

	a, ok, _ := s.Schedule()
	if !ok || a.Task.ID != "first" {
		t.Fatalf("LRU pops the head task regardless of dependencies, got %v", a.Task)
	}
}

func TestLRUScheduler_NoDecision(t *testing.T) {
	tests := []struct {
		name   string
		tasks  int
		agents int
	}{
		{"no tasks", 0, 1},
		{"no agents", 1, 0},
		{"nothing", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewLRUScheduler()
			for i := 0; i < tt.tasks; i++ {
				_ = s.RegisterTask(NewTask("t", nil))
			}
			for i := 0; i < tt.agents; i++ {
				_ = s.RegisterAgent(mustAgent(t, "a", 1))
			}
			if _, ok, err := s.Schedule(); ok || err != nil {
				t.Fatalf("Schedule() = ok %v, err %v; want no decision", ok, err)
			}
		})
	}
}
