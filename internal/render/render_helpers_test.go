package render

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"texsvg/internal/ledger"
	"texsvg/internal/pkg/logger"
)

const fakeSVG = `<?xml version='1.0' encoding='UTF-8'?>
<!-- This file was generated by dvisvgm 3.2 -->
<svg version='1.1' xmlns='http://www.w3.org/2000/svg' xmlns:xlink='http://www.w3.org/1999/xlink' width='10pt' height='8pt'>
<defs><path id='g0-120' d='M1 1L2 2'/></defs>
<use x='1' y='2' xlink:href='#g0-120'/>
</svg>
`

// Scripts stand in for latex and dvisvgm. Both run inside the job
// directory with the arguments the real tools would get.
const (
	latexOK = `test -f file.tex || exit 2
echo "This is fake TeX"
cp file.tex file.dvi
`
	latexRejects = `echo "! Undefined control sequence."
exit 1
`
	dvisvgmOK = `test -f file.dvi || exit 2
cat > file.svg <<'SVG'
` + fakeSVG + `SVG
`
	dvisvgmNoOutput = `exit 0
`
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake compilers are shell scripts")
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func newFakeCompiler(t *testing.T, latex, dvisvgm string, timeout time.Duration) *ShellCompiler {
	t.Helper()
	requireShell(t)
	bin := t.TempDir()
	return NewShellCompiler(
		writeScript(t, bin, "latex", latex),
		writeScript(t, bin, "dvisvgm", dvisvgm),
		timeout,
	)
}

type memRecorder struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (m *memRecorder) Record(_ context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRecorder) all() []ledger.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.Entry(nil), m.entries...)
}

type testService struct {
	*Service
	root     string
	recorder *memRecorder
}

func newTestService(t *testing.T, compiler Compiler, base context.Context) *testService {
	t.Helper()
	root := filepath.Join(t.TempDir(), "temp")
	rec := &memRecorder{}
	log := logger.Discard()
	svc := NewService(Options{
		Workspaces:  NewWorkspaces(root, log),
		Compiler:    compiler,
		Recorder:    rec,
		BaseContext: base,
		Log:         log,
	})
	return &testService{Service: svc, root: root, recorder: rec}
}

// assertNoJobDirs fails if any job directory is left under root.
func assertNoJobDirs(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		t.Fatalf("reading temp root: %v", err)
	}
	for _, e := range entries {
		t.Errorf("leftover job directory %s", e.Name())
	}
}
