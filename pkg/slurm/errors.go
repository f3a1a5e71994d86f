package slurm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoJobID is returned when sbatch exits zero but its output carries no
// "Submitted batch job <id>" acknowledgment.
var ErrNoJobID = errors.New("no job id in sbatch output")

// SubmitError reports an sbatch invocation that exited non-zero.
type SubmitError struct {
	ExitCode int
	Stderr   string
}

func (e *SubmitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("sbatch exited %d", e.ExitCode)
	}
	return fmt.Sprintf("sbatch exited %d: %s", e.ExitCode, msg)
}

// InspectError reports a failed post-submission scontrol query. It surfaces
// out of Submit because handle construction happens synchronously there.
type InspectError struct {
	JobID    string
	ExitCode int
	Stderr   string
}

func (e *InspectError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("scontrol show job %s exited %d", e.JobID, e.ExitCode)
	}
	return fmt.Sprintf("scontrol show job %s exited %d: %s", e.JobID, e.ExitCode, msg)
}
