// Package render turns LaTeX markup into a filtered SVG stream. Each call
// to Service.Render owns a scratch directory that is removed exactly once,
// whichever way the job ends.
package render

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"texsvg/internal/ledger"
	"texsvg/internal/pkg/errors"
	"texsvg/internal/pkg/logger"
)

// recordTimeout bounds a ledger write after the job is finished.
const recordTimeout = 2 * time.Second

// Options configures a Service.
type Options struct {
	Workspaces *Workspaces
	Compiler   Compiler
	// Filters defaults to DefaultFilters.
	Filters  []Filter
	Recorder ledger.Recorder
	// BaseContext is cancelled on server shutdown, which aborts in-flight
	// compiles. Client disconnects never do.
	BaseContext context.Context
	Log         *logger.Logger
}

// Service orchestrates workspace, compile, stream and cleanup.
type Service struct {
	workspaces *Workspaces
	compiler   Compiler
	filters    []Filter
	recorder   ledger.Recorder
	base       context.Context
	log        *logger.Logger
}

func NewService(opts Options) *Service {
	s := &Service{
		workspaces: opts.Workspaces,
		compiler:   opts.Compiler,
		filters:    opts.Filters,
		recorder:   opts.Recorder,
		base:       opts.BaseContext,
		log:        opts.Log,
	}
	if s.log == nil {
		s.log = logger.NewDefault()
	}
	s.log = s.log.WithComponent("render")
	if s.filters == nil {
		s.filters = DefaultFilters()
	}
	if s.recorder == nil {
		s.recorder = ledger.Nop{}
	}
	if s.base == nil {
		s.base = context.Background()
	}
	return s
}

// Render compiles markup. On success the returned Result streams the
// filtered SVG and must be closed; closing removes the workspace. On
// error the workspace is already gone.
func (s *Service) Render(ctx context.Context, markup string) (*Result, error) {
	started := time.Now()

	ws, err := s.workspaces.Create()
	if err != nil {
		return nil, err
	}

	ctx = logger.ContextWithJobID(ctx, ws.JobID)
	log := s.log.FromContext(ctx)
	entry := ledger.Entry{JobID: ws.JobID, MarkupBytes: len(markup), StartedAt: started}

	fail := func(outcome string, err error) error {
		s.workspaces.Destroy(ctx, ws)
		entry.Outcome = outcome
		entry.Error = err.Error()
		entry.TotalDuration = time.Since(started)
		s.record(ctx, entry)
		return err
	}

	if err := os.WriteFile(ws.path(sourceFilename), []byte(Wrap(markup)), 0o644); err != nil {
		return nil, fail(ledger.OutcomeWorkspaceError,
			errors.WrapWithCode(err, errors.CodeWorkspace, "render.document", "failed to write source file").
				WithField("job_id", ws.JobID))
	}

	compileCtx, cancel := s.compileContext(ctx)
	outcome := s.compiler.Compile(compileCtx, ws.Dir)
	cancel()
	entry.CompileDuration = outcome.Duration

	if !outcome.Succeeded() {
		log.Warn("compile did not succeed",
			"outcome", string(outcome.Kind),
			"error", outcome.Err,
			"duration_ms", outcome.Duration.Milliseconds(),
			"output", outcome.Output,
		)
		return nil, fail(string(outcome.Kind), outcome.AsError())
	}

	f, err := os.Open(ws.path(svgFilename))
	if err != nil {
		return nil, fail(ledger.OutcomeStreamError,
			errors.WrapWithCode(err, errors.CodeStream, "render.open", "failed to open svg").
				WithField("job_id", ws.JobID))
	}

	log.Debug("compile succeeded", "duration_ms", outcome.Duration.Milliseconds())

	res := &Result{
		JobID:   ws.JobID,
		Outcome: outcome,
		body:    NewFilterReader(f, s.filters...),
		file:    f,
	}
	res.finish = func(streamErr error) {
		s.workspaces.Destroy(ctx, ws)
		entry.Outcome = ledger.OutcomeSuccess
		if streamErr != nil {
			entry.Outcome = ledger.OutcomeStreamError
			entry.Error = streamErr.Error()
			log.Warn("svg stream interrupted", "error", streamErr)
		}
		entry.TotalDuration = time.Since(started)
		s.record(ctx, entry)
	}
	return res, nil
}

// compileContext keeps ctx's values but not its cancellation, and ends
// when the service's base context does.
func (s *Service) compileContext(ctx context.Context) (context.Context, context.CancelFunc) {
	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.base, cancel)
	return cctx, func() {
		stop()
		cancel()
	}
}

func (s *Service) record(ctx context.Context, e ledger.Entry) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.recorder.Record(rctx, e); err != nil {
		s.log.FromContext(ctx).Warn("failed to record render job", "error", err, "outcome", e.Outcome)
	}
}

// Result is a successful render. Read yields the filtered SVG.
type Result struct {
	JobID   string
	Outcome Outcome

	body   io.Reader
	file   *os.File
	finish func(streamErr error)

	readErr  error
	once     sync.Once
	closeErr error
}

func (r *Result) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if err != nil && err != io.EOF && r.readErr == nil {
		r.readErr = err
	}
	return n, err
}

// Close releases the SVG and removes the workspace. Only the first call
// has any effect.
func (r *Result) Close() error {
	return r.CloseWithError(nil)
}

// CloseWithError is Close for a stream that failed on the write side,
// such as a client that went away. A read failure seen by Read is used
// when err is nil.
func (r *Result) CloseWithError(err error) error {
	r.once.Do(func() {
		r.closeErr = r.file.Close()
		if err == nil {
			err = r.readErr
		}
		r.finish(err)
	})
	return r.closeErr
}
