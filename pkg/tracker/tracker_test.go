package tracker

import (
	"context"
	"sync"
	"testing"

	"sbatcher/pkg/logx"
)

type fakeJob struct {
	mu    sync.Mutex
	id    string
	state string
}

func (f *fakeJob) TaskID() string { return f.id }

func (f *fakeJob) Status(context.Context) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeJob) setState(s string) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

type transition struct{ id, from, to string }

func TestRefreshReportsTransitions(t *testing.T) {
	t.Parallel()
	var got []transition
	tr, err := New("30s", logx.Nop(), func(j Pollable, from, to string) {
		got = append(got, transition{j.TaskID(), from, to})
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a := &fakeJob{id: "7_0", state: "PENDING"}
	b := &fakeJob{id: "7_1", state: "PENDING"}
	tr.Track(a, b)

	ctx := context.Background()
	tr.Refresh(ctx)
	// First observation of each task counts as a transition from "".
	if len(got) != 2 || got[0].from != "" || got[0].to != "PENDING" {
		t.Fatalf("unexpected transitions: %+v", got)
	}

	// No change, no callback.
	got = nil
	tr.Refresh(ctx)
	if len(got) != 0 {
		t.Fatalf("unchanged states fired callbacks: %+v", got)
	}

	a.setState("RUNNING")
	tr.Refresh(ctx)
	if len(got) != 1 || got[0] != (transition{"7_0", "PENDING", "RUNNING"}) {
		t.Fatalf("unexpected transitions: %+v", got)
	}

	if st, ok := tr.Last("7_0"); !ok || st != "RUNNING" {
		t.Fatalf("Last(7_0) = %q, %v", st, ok)
	}
	if st, ok := tr.Last("7_1"); !ok || st != "PENDING" {
		t.Fatalf("Last(7_1) = %q, %v", st, ok)
	}
	if _, ok := tr.Last("unknown"); ok {
		t.Fatal("Last returned a state for an untracked task")
	}
}

func TestNewRejectsBadCron(t *testing.T) {
	t.Parallel()
	if _, err := New("cron:bad spec here", logx.Nop(), nil); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestStartStopsWithContext(t *testing.T) {
	t.Parallel()
	tr, err := New("1h", logx.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Start(ctx) }()
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Start = %v, want context.Canceled", err)
	}
}
