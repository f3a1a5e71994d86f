package slurm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sbatcher/pkg/logx"
)

// Scheduler-reported states this package gives meaning to. The scheduler
// emits more (COMPLETING, FAILED, ...); those pass through Status verbatim.
const (
	StatePending = "PENDING"
	StateRunning = "RUNNING"

	// StateCompletedOrNotFound is returned when the status query yields no
	// matching line. SLURM drops jobs from the active queue once they finish
	// and gives no authoritative "done" event, so absence is the only
	// completion signal available.
	StateCompletedOrNotFound = "COMPLETED_OR_NOT_FOUND"
)

// Job is one submitted unit of execution: a whole job, or a single array
// task. It holds only identifiers and the submission-time attribute snapshot;
// every operation is an independent round trip to the scheduler, so multiple
// goroutines may poll distinct (or the same) handles concurrently.
type Job struct {
	id         string
	arrayIndex int
	arrayTask  bool

	runner Runner
	log    logx.Logger

	// Submission context carried over from the manager; reference material
	// only, never mutated.
	shell      string
	scriptPath string

	details map[string]string
}

func (m *Manager) newJob(ctx context.Context, jobID string, index int, arrayTask bool, shell, scriptPath string) (*Job, error) {
	j := &Job{
		id:         jobID,
		arrayIndex: index,
		arrayTask:  arrayTask,
		runner:     m.runner,
		log:        m.log.With(logx.String("job_id", jobID)),
		shell:      shell,
		scriptPath: scriptPath,
	}

	res, err := m.runner.Inspect(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("scontrol show job %s: %w", jobID, err)
	}
	if res.ExitCode != 0 {
		return nil, &InspectError{JobID: jobID, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	j.details = parseJobAttrs(res.Stdout)
	return j, nil
}

// parseJobAttrs splits scontrol output into its whitespace-separated
// key=value tokens. Tokens without '=' are skipped.
func parseJobAttrs(out string) map[string]string {
	attrs := make(map[string]string)
	for _, tok := range strings.Fields(out) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			continue
		}
		attrs[k] = v
	}
	return attrs
}

// ID returns the scheduler-assigned job identifier shared by all tasks of an
// array job.
func (j *Job) ID() string { return j.id }

// TaskID returns the identifier used in scheduler queries: "<id>_<index>" for
// an array task, the plain job ID otherwise.
func (j *Job) TaskID() string {
	if j.arrayTask {
		return j.id + "_" + strconv.Itoa(j.arrayIndex)
	}
	return j.id
}

// ArrayIndex returns the task index and whether this handle is an array task.
func (j *Job) ArrayIndex() (int, bool) { return j.arrayIndex, j.arrayTask }

func (j *Job) Shell() string      { return j.shell }
func (j *Job) ScriptPath() string { return j.scriptPath }

// SubmissionDetails returns a copy of the attribute snapshot captured from
// scontrol at construction time.
func (j *Job) SubmissionDetails() map[string]string {
	out := make(map[string]string, len(j.details))
	for k, v := range j.details {
		out[k] = v
	}
	return out
}

func (j *Job) String() string { return j.TaskID() }

// Status queries the scheduler for the current state name. Querying is
// best-effort: a failed or empty query maps to StateCompletedOrNotFound,
// since a job absent from the active queue is indistinguishable from a
// transient query failure and pollers want keep-going semantics.
func (j *Job) Status(ctx context.Context) string {
	res, err := j.runner.QueryStatus(ctx, j.TaskID())
	if err != nil || res.ExitCode != 0 {
		j.log.Debug("status query failed; treating as gone", logx.Err(err), logx.Int("exit", res.ExitCode))
		return StateCompletedOrNotFound
	}
	state := strings.TrimSpace(res.Stdout)
	if state == "" {
		return StateCompletedOrNotFound
	}
	return state
}

// IsQueued reports whether the job is still pending or running.
func (j *Job) IsQueued(ctx context.Context) bool {
	switch j.Status(ctx) {
	case StatePending, StateRunning:
		return true
	}
	return false
}

// Wait blocks until the job leaves the active queue, polling every interval
// (default 3s). It returns ctx.Err() when the context is cancelled or its
// deadline passes, nil once the job is done.
func (j *Job) Wait(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !j.IsQueued(ctx) {
			// A cancelled context makes Status report the job as gone;
			// distinguish that from a real completion.
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cancel attempts to cancel the job unconditionally and reports whether
// scancel exited zero. Failure (including "already finished") is reported,
// not raised.
func (j *Job) Cancel(ctx context.Context) bool {
	res, err := j.runner.Cancel(ctx, j.TaskID())
	if err != nil || res.ExitCode != 0 {
		j.log.Debug("cancel failed", logx.Err(err), logx.Int("exit", res.ExitCode))
		return false
	}
	j.log.Info("job cancelled", logx.String("task", j.TaskID()))
	return true
}
