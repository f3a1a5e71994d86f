package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"sbatcher/pkg/logx"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the history store.
//
// Driver values:
//   - "sqlite" (or "sqlite3"): SQLite database file
//   - "" or "none": history disabled
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Submission is one recorded sbatch acknowledgment.
type Submission struct {
	At         time.Time
	JobID      string
	Name       string
	ScriptPath string
	ArraySpec  string // "" for non-array jobs
	Stdout     string
}

// Store is the persistence API used by the job manager.
type Store interface {
	RecordSubmission(ctx context.Context, s Submission) error
	RecentSubmissions(ctx context.Context, limit int) ([]Submission, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if history is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
