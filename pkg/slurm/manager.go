// Package slurm submits generated scripts to the SLURM scheduler and tracks
// the resulting jobs until completion or cancellation.
package slurm

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"sbatcher/pkg/history"
	"sbatcher/pkg/logx"
	"sbatcher/pkg/script"
)

// Arg is one directive to apply, with normalization: time.Duration values are
// rendered as D-HH:MM:SS, and "array" values go through script.ParseArraySpec.
type Arg struct {
	Name  string
	Value any
}

// Manager owns one script configuration and orchestrates script generation,
// persistence, and submission.
//
// Mutation methods are not goroutine-safe; configure from one goroutine.
// Submitted Job handles are independently and concurrently pollable.
type Manager struct {
	script *script.Script
	runner Runner
	log    logx.Logger
	store  history.Store

	jobID      string
	jobs       []*Job
	lastStdout string
	lastStderr string
}

// Options configures a Manager. Runner is required for submission; Script may
// be preconfigured, otherwise a fresh one with the default shell is used.
type Options struct {
	Script *script.Script

	// DefaultsPath optionally seeds the script with baseline directives from
	// a YAML file. Applied before Defaults.
	DefaultsPath string

	// Defaults are explicit baseline directives, applied in order.
	Defaults []script.Directive

	Runner Runner
	Log    logx.Logger

	// History, when non-nil, receives one record per successful submission.
	History history.Store
}

func New(opts Options) (*Manager, error) {
	sc := opts.Script
	if sc == nil {
		sc = script.New("")
	}
	if opts.DefaultsPath != "" {
		ds, err := script.LoadDefaults(opts.DefaultsPath)
		if err != nil {
			return nil, fmt.Errorf("load defaults: %w", err)
		}
		for _, d := range ds {
			sc.Set(d.Name, d.Value)
		}
	}
	for _, d := range opts.Defaults {
		sc.Set(d.Name, d.Value)
	}
	if opts.Runner == nil {
		opts.Runner = NewBinRunner(BinRunnerOptions{}, opts.Log)
	}
	return &Manager{
		script: sc,
		runner: opts.Runner,
		log:    opts.Log,
		store:  opts.History,
	}, nil
}

// AddArgument normalizes and sets a single directive.
func (m *Manager) AddArgument(name string, value any) error {
	if name == "array" {
		span, err := script.ParseArraySpec(value)
		if err != nil {
			return err
		}
		m.script.Set(name, span.String())
		return nil
	}

	s, err := formatValue(name, value)
	if err != nil {
		return err
	}
	m.script.Set(name, s)
	return nil
}

// AddArguments applies each argument in order; it stops at the first error.
func (m *Manager) AddArguments(args ...Arg) error {
	for _, a := range args {
		if err := m.AddArgument(a.Name, a.Value); err != nil {
			return err
		}
	}
	return nil
}

func formatValue(name string, value any) (string, error) {
	switch x := value.(type) {
	case string:
		return x, nil
	case time.Duration:
		if x < 0 {
			return "", fmt.Errorf("directive %q: negative duration %v", name, x)
		}
		return script.FormatDuration(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return "", fmt.Errorf("directive %q: unsupported value type %T", name, value)
	}
}

// AddCommands appends shell commands in call order.
func (m *Manager) AddCommands(cmds ...string) {
	for _, c := range cmds {
		m.script.AddCommand(c)
	}
}

func (m *Manager) Script() *script.Script { return m.script }

func (m *Manager) RenderScript() string { return m.script.Render() }

func (m *Manager) IsArrayJob() bool { return m.script.IsArrayJob() }

// JobID returns the scheduler-assigned identifier of the last submission, or
// "" before any submission.
func (m *Manager) JobID() string { return m.jobID }

// Jobs returns the handles from the last submission.
func (m *Manager) Jobs() []*Job { return m.jobs }

// LastOutput returns the stdout/stderr captured from the last sbatch call.
func (m *Manager) LastOutput() (stdout, stderr string) {
	return m.lastStdout, m.lastStderr
}

// SubmitOptions controls one submission.
type SubmitOptions struct {
	// Shell overrides the interpreter line for this submission only.
	Shell string

	// OutputDir receives the script (and snapshot) files. Created if absent.
	// Defaults to the current directory.
	OutputDir string

	// PersistConfig writes a gob-encoded snapshot of the full configuration
	// next to the script, for offline inspection. It is never re-read here.
	PersistConfig bool

	// ScriptSuffix is the script file extension, default ".sh".
	ScriptSuffix string
}

// WriteScript renders the configuration and writes it into dir (created if
// absent, "" meaning the current directory), named after the job_name
// directive with the given suffix ("" meaning ".sh"). It returns the script
// path. Submit performs this same step; calling it directly stages a script
// without submitting.
func (m *Manager) WriteScript(dir, suffix string) (string, error) {
	return m.writeScript(dir, suffix, "")
}

func (m *Manager) writeScript(dir, suffix, shell string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("output dir: %w", err)
	}
	if suffix == "" {
		suffix = ".sh"
	}
	path := filepath.Join(dir, m.jobName()+suffix)
	if err := os.WriteFile(path, []byte(m.script.RenderShell(shell)), 0o644); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}
	return path, nil
}

var submitAckRe = regexp.MustCompile(`Submitted batch job (\d+)`)

// Submit writes the rendered script, invokes sbatch, and fans the
// acknowledged job out into one handle per array index (or a single handle).
//
// Submit is not idempotent: calling it again issues a second, independent
// scheduler job. That is deliberate, so a failed run can be resubmitted from
// the same configuration.
func (m *Manager) Submit(ctx context.Context, opts SubmitOptions) ([]*Job, error) {
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = "."
	}
	name := m.jobName()

	scriptPath, err := m.writeScript(outDir, opts.ScriptSuffix, opts.Shell)
	if err != nil {
		return nil, err
	}

	if opts.PersistConfig {
		if err := m.writeSnapshot(filepath.Join(outDir, name+".gob")); err != nil {
			return nil, fmt.Errorf("persist config: %w", err)
		}
	}

	res, err := m.runner.Submit(ctx, scriptPath)
	if err != nil {
		return nil, fmt.Errorf("sbatch: %w", err)
	}
	m.lastStdout = res.Stdout
	m.lastStderr = res.Stderr

	if res.ExitCode != 0 {
		return nil, &SubmitError{ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	ack := submitAckRe.FindStringSubmatch(res.Stdout)
	if ack == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoJobID, res.Stdout)
	}
	jobID := ack[1]

	jobs, err := m.buildHandles(ctx, jobID, scriptPath, opts.Shell)
	if err != nil {
		return nil, err
	}

	m.jobID = jobID
	m.jobs = jobs
	m.record(ctx, jobID, name, scriptPath, res.Stdout)

	m.log.Info("job submitted",
		logx.String("job_id", jobID),
		logx.String("name", name),
		logx.Int("tasks", len(jobs)),
		logx.String("script", scriptPath))
	return jobs, nil
}

func (m *Manager) buildHandles(ctx context.Context, jobID, scriptPath, shellOverride string) ([]*Job, error) {
	shell := shellOverride
	if shell == "" {
		shell = m.script.Shell()
	}

	if !m.script.IsArrayJob() {
		j, err := m.newJob(ctx, jobID, 0, false, shell, scriptPath)
		if err != nil {
			return nil, err
		}
		return []*Job{j}, nil
	}

	raw, _ := m.script.Get("array")
	span, err := script.ParseArraySpec(raw)
	if err != nil {
		return nil, fmt.Errorf("array directive: %w", err)
	}
	jobs := make([]*Job, 0, span.Len())
	for _, idx := range span.Indices() {
		j, err := m.newJob(ctx, jobID, idx, true, shell, scriptPath)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (m *Manager) jobName() string {
	if v, ok := m.script.Get("job_name"); ok && v != "" {
		return v
	}
	// SLURM's own fallback name.
	return "job"
}

func (m *Manager) writeSnapshot(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(m.script.Snapshot()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (m *Manager) record(ctx context.Context, jobID, name, scriptPath, stdout string) {
	if m.store == nil {
		return
	}
	arraySpec, _ := m.script.Get("array")
	err := m.store.RecordSubmission(ctx, history.Submission{
		At:         time.Now(),
		JobID:      jobID,
		Name:       name,
		ScriptPath: scriptPath,
		ArraySpec:  arraySpec,
		Stdout:     stdout,
	})
	if err != nil {
		m.log.Warn("submission history write failed", logx.String("job_id", jobID), logx.Err(err))
	}
}
