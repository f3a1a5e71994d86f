package slurm

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"golang.org/x/time/rate"

	"sbatcher/pkg/logx"
)

// Result captures one scheduler-binary round trip.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner is the process-execution boundary to the scheduler binaries.
//
// Implementations return an error only when the command could not run at all
// (binary missing, context cancelled); a command that ran and exited non-zero
// is reported through Result.ExitCode.
type Runner interface {
	Submit(ctx context.Context, scriptPath string) (Result, error)
	Inspect(ctx context.Context, jobID string) (Result, error)
	QueryStatus(ctx context.Context, jobID string) (Result, error)
	Cancel(ctx context.Context, jobID string) (Result, error)
}

// BinRunnerOptions configures the scheduler binaries and call throttling.
// Zero values fall back to the standard binary names and a 10 calls/sec cap.
type BinRunnerOptions struct {
	Sbatch   string
	Scontrol string
	Squeue   string
	Scancel  string

	// MaxCallsPerSec throttles all scheduler invocations. Polling many array
	// task handles otherwise hammers the controller. <0 disables throttling.
	MaxCallsPerSec int
}

// BinRunner runs the real scheduler binaries through os/exec.
type BinRunner struct {
	sbatch   string
	scontrol string
	squeue   string
	scancel  string

	limiter *rate.Limiter
	log     logx.Logger
}

func NewBinRunner(opts BinRunnerOptions, log logx.Logger) *BinRunner {
	r := &BinRunner{
		sbatch:   orDefault(opts.Sbatch, "sbatch"),
		scontrol: orDefault(opts.Scontrol, "scontrol"),
		squeue:   orDefault(opts.Squeue, "squeue"),
		scancel:  orDefault(opts.Scancel, "scancel"),
		log:      log,
	}
	if opts.MaxCallsPerSec >= 0 {
		rps := opts.MaxCallsPerSec
		if rps == 0 {
			rps = 10
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	}
	return r
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (r *BinRunner) Submit(ctx context.Context, scriptPath string) (Result, error) {
	return r.run(ctx, r.sbatch, scriptPath)
}

func (r *BinRunner) Inspect(ctx context.Context, jobID string) (Result, error) {
	return r.run(ctx, r.scontrol, "show", "job", jobID)
}

func (r *BinRunner) QueryStatus(ctx context.Context, jobID string) (Result, error) {
	// -h: no header, %T: state name only, one line per matching task.
	return r.run(ctx, r.squeue, "-j", jobID, "-h", "-o", "%T")
}

func (r *BinRunner) Cancel(ctx context.Context, jobID string) (Result, error) {
	return r.run(ctx, r.scancel, jobID)
}

func (r *BinRunner) run(ctx context.Context, name string, args ...string) (Result, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			res.ExitCode = ee.ExitCode()
			r.log.Debug("scheduler command exited non-zero",
				logx.String("bin", name),
				logx.Int("exit", res.ExitCode))
			return res, nil
		}
		return res, err
	}

	r.log.Trace("scheduler command ok", logx.String("bin", name))
	return res, nil
}
