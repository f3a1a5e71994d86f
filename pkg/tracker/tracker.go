// Package tracker refreshes the status of submitted jobs on a schedule and
// reports state transitions. It observes only: no retries, no resubmission.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sbatcher/pkg/logx"
)

// Pollable is the slice of a job handle the tracker needs. *slurm.Job
// satisfies it.
type Pollable interface {
	TaskID() string
	Status(ctx context.Context) string
}

// ChangeFunc is invoked for every observed state transition. It runs on the
// tracker's goroutine; keep it quick or hand off.
type ChangeFunc func(job Pollable, from, to string)

type Tracker struct {
	log      logx.Logger
	spec     ParsedSpec
	cronExpr cron.Schedule
	onChange ChangeFunc

	mu   sync.Mutex
	jobs []Pollable
	last map[string]string
}

// New builds a tracker from a schedule string (see ParseSchedule).
func New(schedule string, log logx.Logger, onChange ChangeFunc) (*Tracker, error) {
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		log:      log,
		spec:     spec,
		onChange: onChange,
		last:     make(map[string]string),
	}
	if spec.Kind == SpecCron {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		sched, err := parser.Parse(spec.Cron)
		if err != nil {
			return nil, err
		}
		t.cronExpr = sched
	}
	return t, nil
}

// Track adds handles to the polled set. Safe to call while running.
func (t *Tracker) Track(jobs ...Pollable) {
	t.mu.Lock()
	t.jobs = append(t.jobs, jobs...)
	t.mu.Unlock()
}

// Last returns the most recently observed state for a task, if any.
func (t *Tracker) Last(taskID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.last[taskID]
	return s, ok
}

// Start blocks, refreshing tracked jobs on schedule until ctx is done.
func (t *Tracker) Start(ctx context.Context) error {
	t.log.Info("tracker started", logx.String("schedule", t.describe()))
	for {
		wait := t.nextWait()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			t.Refresh(ctx)
		}
	}
}

func (t *Tracker) nextWait() time.Duration {
	if t.cronExpr != nil {
		return time.Until(t.cronExpr.Next(time.Now()))
	}
	return t.spec.Every
}

func (t *Tracker) describe() string {
	if t.spec.Kind == SpecCron {
		return t.spec.Cron
	}
	return t.spec.Every.String()
}

// Refresh polls every tracked job once, firing the change callback for each
// transition. Exposed so callers can force an immediate pass.
func (t *Tracker) Refresh(ctx context.Context) {
	t.mu.Lock()
	jobs := append([]Pollable(nil), t.jobs...)
	t.mu.Unlock()

	for _, j := range jobs {
		st := j.Status(ctx)

		t.mu.Lock()
		prev, seen := t.last[j.TaskID()]
		t.last[j.TaskID()] = st
		t.mu.Unlock()

		if seen && prev == st {
			continue
		}
		t.log.Debug("job state changed",
			logx.String("task", j.TaskID()),
			logx.String("from", prev),
			logx.String("to", st))
		if t.onChange != nil {
			t.onChange(j, prev, st)
		}
	}
}
