package render

import (
	"context"
	"os"
	"path/filepath"

	"texsvg/internal/pkg/errors"
	"texsvg/internal/pkg/ids"
	"texsvg/internal/pkg/logger"
)

// Workspace is the scratch directory owned by a single render job.
type Workspace struct {
	JobID string
	Dir   string
}

func (w Workspace) path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Workspaces allocates and removes job directories under a root.
type Workspaces struct {
	root string
	log  *logger.Logger
}

// NewWorkspaces returns a manager rooted at root. The root itself is
// created lazily by Create.
func NewWorkspaces(root string, log *logger.Logger) *Workspaces {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Workspaces{root: root, log: log.WithComponent("workspace")}
}

// Root returns the directory holding the job directories.
func (m *Workspaces) Root() string {
	return m.root
}

// Create allocates a fresh job ID and its directory, including any
// missing parents.
func (m *Workspaces) Create() (Workspace, error) {
	jobID := ids.New()
	dir := filepath.Join(m.root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Workspace{}, errors.WrapWithCode(err, errors.CodeWorkspace, "workspace.create", "failed to create job directory").
			WithField("dir", dir)
	}
	return Workspace{JobID: jobID, Dir: dir}, nil
}

// Destroy removes the job directory and everything in it. Failures are
// logged and swallowed: by the time Destroy runs the response is already
// decided.
func (m *Workspaces) Destroy(ctx context.Context, ws Workspace) {
	if ws.Dir == "" {
		return
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		m.log.WithJobID(ws.JobID).LogError(ctx, "failed to remove job directory", err, "dir", ws.Dir)
		return
	}
	m.log.FromContext(ctx).WithJobID(ws.JobID).Debug("job directory removed", "dir", ws.Dir)
}
