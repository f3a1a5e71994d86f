package slurm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func submitOne(t *testing.T, fr *fakeRunner) *Job {
	t.Helper()
	m := newTestManager(t, fr)
	_ = m.AddArgument("job_name", "poll")
	jobs, err := m.Submit(context.Background(), SubmitOptions{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return jobs[0]
}

func TestStatusValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		res  Result
		want string
	}{
		{name: "pending", res: Result{Stdout: "PENDING\n"}, want: StatePending},
		{name: "running", res: Result{Stdout: "RUNNING\n"}, want: StateRunning},
		{name: "other state passes through", res: Result{Stdout: "COMPLETING\n"}, want: "COMPLETING"},
		{name: "empty output means gone", res: Result{}, want: StateCompletedOrNotFound},
		{name: "non-zero exit means gone", res: Result{ExitCode: 1, Stderr: "slurm_load_jobs error"}, want: StateCompletedOrNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			fr := &fakeRunner{
				submitRes: Result{Stdout: "Submitted batch job 10\n"},
				statusFn:  func(string) Result { return tt.res },
			}
			j := submitOne(t, fr)
			if got := j.Status(context.Background()); got != tt.want {
				t.Fatalf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsQueued(t *testing.T) {
	t.Parallel()
	for state, want := range map[string]bool{
		"PENDING\n":   true,
		"RUNNING\n":   true,
		"COMPLETED\n": false,
		"":            false,
	} {
		fr := &fakeRunner{
			submitRes: Result{Stdout: "Submitted batch job 10\n"},
			statusFn:  func(string) Result { return Result{Stdout: state} },
		}
		j := submitOne(t, fr)
		if got := j.IsQueued(context.Background()); got != want {
			t.Errorf("IsQueued with stdout %q = %v, want %v", state, got, want)
		}
	}
}

func TestWaitUntilGone(t *testing.T) {
	t.Parallel()
	var polls int
	fr := &fakeRunner{submitRes: Result{Stdout: "Submitted batch job 10\n"}}
	fr.statusFn = func(string) Result {
		polls++
		if polls < 3 {
			return Result{Stdout: "RUNNING\n"}
		}
		return Result{}
	}
	j := submitOne(t, fr)

	if err := j.Wait(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if polls < 3 {
		t.Fatalf("expected at least 3 polls, got %d", polls)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{
		submitRes: Result{Stdout: "Submitted batch job 10\n"},
		statusFn:  func(string) Result { return Result{Stdout: "PENDING\n"} },
	}
	j := submitOne(t, fr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := j.Wait(ctx, time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{submitRes: Result{Stdout: "Submitted batch job 10\n"}}
	j := submitOne(t, fr)
	if !j.Cancel(context.Background()) {
		t.Fatal("Cancel returned false for zero exit")
	}

	fr2 := &fakeRunner{
		submitRes: Result{Stdout: "Submitted batch job 11\n"},
		cancelRes: Result{ExitCode: 1, Stderr: "scancel: error: Invalid job id"},
	}
	j2 := submitOne(t, fr2)
	if j2.Cancel(context.Background()) {
		t.Fatal("Cancel returned true for non-zero exit")
	}
	if len(fr2.cancelled) != 1 || fr2.cancelled[0] != "11" {
		t.Fatalf("scancel invoked with %v", fr2.cancelled)
	}
}

func TestCancelArrayTaskTargetsTaskID(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{submitRes: Result{Stdout: "Submitted batch job 60\n"}}
	m := newTestManager(t, fr)
	_ = m.AddArgument("job_name", "arr")
	_ = m.AddArgument("array", "0-1")
	jobs, err := m.Submit(context.Background(), SubmitOptions{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	// Cancelling one task handle must not touch its siblings.
	if !jobs[1].Cancel(context.Background()) {
		t.Fatal("Cancel returned false for zero exit")
	}
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if len(fr.cancelled) != 1 || fr.cancelled[0] != "60_1" {
		t.Fatalf("scancel invoked with %v, want [60_1]", fr.cancelled)
	}
}

func TestSubmissionDetailsSnapshot(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{
		submitRes:  Result{Stdout: "Submitted batch job 44\n"},
		inspectRes: Result{Stdout: "JobId=44 JobName=poll Partition=gpu JobState=PENDING\n   RunTime=00:00:00 TimeLimit=01:00:00\n"},
	}
	j := submitOne(t, fr)

	details := j.SubmissionDetails()
	if details["JobId"] != "44" || details["Partition"] != "gpu" || details["TimeLimit"] != "01:00:00" {
		t.Fatalf("unexpected details: %v", details)
	}

	// Mutating the returned map must not touch the snapshot.
	details["JobId"] = "tampered"
	if j.SubmissionDetails()["JobId"] != "44" {
		t.Fatal("SubmissionDetails exposed internal state")
	}
}

func TestParseJobAttrs(t *testing.T) {
	t.Parallel()
	attrs := parseJobAttrs("JobId=1 UserId=alice(1000)\n  Command=/home/alice/run.sh garbage =broken\n")
	if attrs["JobId"] != "1" || attrs["UserId"] != "alice(1000)" || attrs["Command"] != "/home/alice/run.sh" {
		t.Fatalf("unexpected attrs: %v", attrs)
	}
	if _, ok := attrs["garbage"]; ok {
		t.Fatal("token without '=' should be skipped")
	}
	if _, ok := attrs[""]; ok {
		t.Fatal("empty key should be skipped")
	}
}

func TestArrayTaskStatusQueriesTaskID(t *testing.T) {
	t.Parallel()
	fr := &fakeRunner{submitRes: Result{Stdout: "Submitted batch job 50\n"}}
	m := newTestManager(t, fr)
	_ = m.AddArgument("job_name", "arr")
	_ = m.AddArgument("array", "0-1")
	jobs, err := m.Submit(context.Background(), SubmitOptions{OutputDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	_ = jobs[1].Status(context.Background())
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if len(fr.statusIDs) != 1 || fr.statusIDs[0] != "50_1" {
		t.Fatalf("squeue queried %v, want [50_1]", fr.statusIDs)
	}
}
