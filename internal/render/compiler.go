package render

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"texsvg/internal/pkg/errors"
)

// DefaultCompileTimeout is the wall-clock limit for one latex + dvisvgm run.
const DefaultCompileTimeout = 5 * time.Second

// OutcomeKind tags the result of a compile.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomeCompileFailure OutcomeKind = "compile_failure"
	OutcomeTimeout        OutcomeKind = "timeout"
)

// Outcome is the single result of Compiler.Compile.
type Outcome struct {
	Kind OutcomeKind
	// Err describes why the compile did not succeed; nil on success.
	Err error
	// Output is the tail of the compiler's combined stdout and stderr.
	Output   string
	Duration time.Duration
}

// Succeeded reports whether file.svg is ready to stream.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// AsError converts a failed outcome into a coded error. Failures and
// timeouts get different codes but the same HTTP status.
func (o Outcome) AsError() error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeTimeout:
		return errors.WrapWithCode(o.Err, errors.CodeCompileTimeout, "render.compile", "compilation timed out").
			WithField("duration_ms", o.Duration.Milliseconds())
	default:
		cause := o.Err
		if cause == nil {
			cause = stderrors.New("unknown compile failure")
		}
		return errors.WrapWithCode(cause, errors.CodeCompileFailed, "render.compile", "compilation failed").
			WithField("duration_ms", o.Duration.Milliseconds())
	}
}

// Compiler turns the file.tex in a job directory into file.svg.
type Compiler interface {
	Compile(ctx context.Context, dir string) Outcome
}

// compileScript runs inside the job directory. The binaries arrive as
// positional parameters ($0, $1) so their paths are never parsed by the shell.
var compileScript = fmt.Sprintf(
	`"$0" -interaction=nonstopmode -halt-on-error %s && "$1" --no-fonts %s`,
	sourceFilename, dviFilename,
)

// maxOutputTail bounds how much compiler chatter is kept for logging.
const maxOutputTail = 4 << 10

// ShellCompiler runs latex then dvisvgm through /bin/sh as one child
// process group and kills the whole group at the deadline.
type ShellCompiler struct {
	LatexPath   string
	DvisvgmPath string
	Timeout     time.Duration
	// Shell defaults to "sh".
	Shell string
}

// NewShellCompiler returns a compiler using the given binaries.
func NewShellCompiler(latexPath, dvisvgmPath string, timeout time.Duration) *ShellCompiler {
	return &ShellCompiler{
		LatexPath:   latexPath,
		DvisvgmPath: dvisvgmPath,
		Timeout:     timeout,
	}
}

func (c *ShellCompiler) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultCompileTimeout
	}
	return c.Timeout
}

func (c *ShellCompiler) shell() string {
	if c.Shell == "" {
		return "sh"
	}
	return c.Shell
}

// Compile starts the pipeline in dir and races its exit against the
// deadline. ctx only matters for server shutdown; it is not tied to the
// HTTP client.
func (c *ShellCompiler) Compile(ctx context.Context, dir string) Outcome {
	start := time.Now()
	out := newTailBuffer(maxOutputTail)

	cmd := exec.Command(c.shell(), "-c", compileScript, c.LatexPath, c.DvisvgmPath)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = sysProcAttr()
	// Bounds Wait if a killed grandchild still holds the output pipe.
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return Outcome{
			Kind:     OutcomeCompileFailure,
			Err:      fmt.Errorf("starting compiler: %w", err),
			Duration: time.Since(start),
		}
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	timer := time.NewTimer(c.timeout())
	defer timer.Stop()

	select {
	case waitErr := <-exited:
		return resolveExit(dir, waitErr, out.String(), time.Since(start))

	case <-timer.C:
		killProcessGroup(cmd.Process)
		<-exited
		return Outcome{
			Kind:     OutcomeTimeout,
			Err:      fmt.Errorf("compiler did not exit within %s", c.timeout()),
			Output:   out.String(),
			Duration: time.Since(start),
		}

	case <-ctx.Done():
		killProcessGroup(cmd.Process)
		<-exited
		return Outcome{
			Kind:     OutcomeCompileFailure,
			Err:      fmt.Errorf("compile aborted: %w", ctx.Err()),
			Output:   out.String(),
			Duration: time.Since(start),
		}
	}
}

// resolveExit decides the outcome of a process that exited on its own:
// success means file.svg exists, whatever the exit status was.
func resolveExit(dir string, waitErr error, output string, elapsed time.Duration) Outcome {
	info, statErr := os.Stat(Workspace{Dir: dir}.path(svgFilename))
	if statErr == nil && info.Mode().IsRegular() {
		return Outcome{Kind: OutcomeSuccess, Output: output, Duration: elapsed}
	}

	err := fmt.Errorf("compiler produced no %s", svgFilename)
	if waitErr != nil {
		err = fmt.Errorf("compiler exited: %w", waitErr)
	}
	return Outcome{
		Kind:     OutcomeCompileFailure,
		Err:      err,
		Output:   output,
		Duration: elapsed,
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
