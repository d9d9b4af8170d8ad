// Package ledger records the outcome of every render job. Backends are
// optional; the service runs with Nop when none is configured.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Outcome values written by the render service.
const (
	OutcomeSuccess        = "success"
	OutcomeCompileFailure = "compile_failure"
	OutcomeTimeout        = "timeout"
	OutcomeWorkspaceError = "workspace_error"
	OutcomeStreamError    = "stream_error"
)

// Entry describes one finished job.
type Entry struct {
	JobID           string
	Outcome         string
	MarkupBytes     int
	CompileDuration time.Duration
	TotalDuration   time.Duration
	Error           string
	StartedAt       time.Time
}

// Recorder persists entries. Record is called once per job after its
// workspace has been removed.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// StatsReader exposes aggregate outcome counts.
type StatsReader interface {
	Stats(ctx context.Context) (map[string]int64, error)
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

// Multi fans an entry out to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Combine returns a single recorder for rs, skipping nils.
func Combine(rs ...Recorder) Recorder {
	var out Multi
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return Nop{}
	case 1:
		return out[0]
	default:
		return out
	}
}
