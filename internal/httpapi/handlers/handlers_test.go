package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"texsvg/internal/pkg/logger"
	"texsvg/internal/pkg/middleware"
	"texsvg/internal/render"
)

const (
	latexOK = `cp file.tex file.dvi
`
	latexRejects = `echo "! Missing $ inserted."
exit 1
`
	latexHangs = `sleep 2
cp file.tex file.dvi
`
	dvisvgmOK = `cat > file.svg <<'SVG'
<?xml version='1.0' encoding='UTF-8'?>
<!-- This file was generated by dvisvgm 3.2 -->
<svg version='1.1' xmlns='http://www.w3.org/2000/svg' xmlns:xlink='http://www.w3.org/1999/xlink'>
<use x='1' y='2' xlink:href='#g0-120'/>
</svg>
SVG
`
)

type fixture struct {
	handler  *Handler
	tempRoot string
	binDir   string
}

func newFixture(t *testing.T, latex string, timeout time.Duration, mutate func(*Deps)) *fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake compilers are shell scripts")
	}

	bin := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(bin, name)
		if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
			t.Fatal(err)
		}
		return path
	}
	latexPath := write("latex", latex)
	dvisvgmPath := write("dvisvgm", dvisvgmOK)

	root := filepath.Join(t.TempDir(), "temp")
	log := logger.Discard()
	svc := render.NewService(render.Options{
		Workspaces: render.NewWorkspaces(root, log),
		Compiler:   render.NewShellCompiler(latexPath, dvisvgmPath, timeout),
		Log:        log,
	})

	d := Deps{
		Renderer:    svc,
		Log:         log,
		LatexPath:   latexPath,
		DvisvgmPath: dvisvgmPath,
		TempRoot:    root,
	}
	if mutate != nil {
		mutate(&d)
	}
	return &fixture{handler: New(d), tempRoot: root, binDir: bin}
}

func (f *fixture) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/render", strings.NewReader(body))
	middleware.WrapHandler(logger.Discard(), f.handler.Render).ServeHTTP(rec, req)
	return rec
}

func assertTempRootEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no job directories, found %d", len(entries))
	}
}

func TestRenderSuccess(t *testing.T) {
	f := newFixture(t, latexOK, 5*time.Second, nil)

	rec := f.post(t, `\frac{1}{2}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("expected image/svg+xml, got %s", ct)
	}
	if id := rec.Header().Get(JobIDHeader); len(id) != 32 {
		t.Errorf("expected job ID header, got %q", id)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "<svg ") {
		t.Errorf("expected svg element first, got:\n%s", body)
	}
	if strings.Contains(body, "<!--") || strings.Contains(body, "xlink:href") || !strings.Contains(body, " href='#g0-120'") {
		t.Errorf("expected filtered svg, got:\n%s", body)
	}

	assertTempRootEmpty(t, f.tempRoot)
}

func TestRenderCompileFailure(t *testing.T) {
	tests := []struct {
		name    string
		latex   string
		timeout time.Duration
	}{
		{"latex rejects", latexRejects, 5 * time.Second},
		{"latex hangs", latexHangs, 200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.latex, tt.timeout, nil)

			rec := f.post(t, `$x`)

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", rec.Code)
			}
			if body := rec.Body.String(); body != CompileErrorBody {
				t.Errorf("expected %q, got %q", CompileErrorBody, body)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
				t.Errorf("expected text/plain, got %s", ct)
			}
			assertTempRootEmpty(t, f.tempRoot)
		})
	}
}

func TestRenderBodyTooLarge(t *testing.T) {
	f := newFixture(t, latexOK, 5*time.Second, func(d *Deps) { d.MaxBodyBytes = 8 })

	rec := f.post(t, strings.Repeat("x", 64))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "PAYLOAD_TOO_LARGE") {
		t.Errorf("expected PAYLOAD_TOO_LARGE, got %s", rec.Body.String())
	}
	assertTempRootEmpty(t, f.tempRoot)
}

func TestRenderWorkspaceFailure(t *testing.T) {
	f := newFixture(t, latexOK, 5*time.Second, nil)

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	f.handler.renderer = render.NewService(render.Options{
		Workspaces: render.NewWorkspaces(blocker, logger.Discard()),
		Compiler:   render.NewShellCompiler("latex", "dvisvgm", time.Second),
		Log:        logger.Discard(),
	})

	rec := f.post(t, "x")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "WORKSPACE_ERROR") {
		t.Errorf("expected JSON envelope with WORKSPACE_ERROR, got %s", rec.Body.String())
	}
}

// failingWriter accepts headers but fails every body write.
type failingWriter struct {
	header http.Header
	status int
}

func (w *failingWriter) Header() http.Header { return w.header }

func (w *failingWriter) WriteHeader(status int) { w.status = status }

func (w *failingWriter) Write([]byte) (int, error) { return 0, errors.New("client went away") }

func TestRenderAbortsOnWriteError(t *testing.T) {
	f := newFixture(t, latexOK, 5*time.Second, nil)
	w := &failingWriter{header: http.Header{}}
	req := httptest.NewRequest(http.MethodPost, "/render", strings.NewReader("x"))

	func() {
		defer func() {
			if rec := recover(); rec != http.ErrAbortHandler {
				t.Errorf("expected ErrAbortHandler, got %v", rec)
			}
		}()
		middleware.WrapHandler(logger.Discard(), f.handler.Render).ServeHTTP(w, req)
	}()

	if w.status != http.StatusOK {
		t.Errorf("expected headers to have gone out as 200, got %d", w.status)
	}
	assertTempRootEmpty(t, f.tempRoot)
}

type stubStats struct {
	counts map[string]int64
	err    error
}

func (s stubStats) Stats(context.Context) (map[string]int64, error) {
	return s.counts, s.err
}

func TestRenderStats(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		middleware.WrapHandler(logger.Discard(), h.RenderStats).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/render/stats", nil))
		return rec
	}

	t.Run("not configured", func(t *testing.T) {
		if rec := serve(New(Deps{Log: logger.Discard()})); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("counts", func(t *testing.T) {
		rec := serve(New(Deps{Log: logger.Discard(), Stats: stubStats{counts: map[string]int64{"success": 2, "total": 2}}}))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body struct {
			Outcomes map[string]int64 `json:"outcomes"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Outcomes["success"] != 2 {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("backend down", func(t *testing.T) {
		rec := serve(New(Deps{Log: logger.Discard(), Stats: stubStats{err: errors.New("dial tcp: refused")}}))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})
}

func TestHealth(t *testing.T) {
	f := newFixture(t, latexOK, time.Second, nil)

	t.Run("shallow", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
			t.Errorf("unexpected response %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("deep", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health?deep=true", nil))

		var body struct {
			Status string                    `json:"status"`
			Checks map[string]map[string]any `json:"checks"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Status != "ok" {
			t.Errorf("expected ok, got %s: %v", body.Status, body.Checks)
		}
		if body.Checks["postgres"]["status"] != "disabled" || body.Checks["redis"]["status"] != "disabled" {
			t.Errorf("expected optional backends disabled, got %v", body.Checks)
		}
		if body.Checks["latex"]["status"] != "ok" || body.Checks["temp_root"]["status"] != "ok" {
			t.Errorf("expected binaries and temp root ok, got %v", body.Checks)
		}
	})

	t.Run("missing binary degrades", func(t *testing.T) {
		f.handler.dvisvgmPath = filepath.Join(f.binDir, "missing")
		rec := httptest.NewRecorder()
		f.handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health?deep=true", nil))

		if !strings.Contains(rec.Body.String(), `"status":"degraded"`) {
			t.Errorf("expected degraded, got %s", rec.Body.String())
		}
	})
}
