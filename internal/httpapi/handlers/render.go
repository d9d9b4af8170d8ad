package handlers

import (
	"io"
	"net/http"

	"texsvg/internal/httpkit"
	"texsvg/internal/pkg/errors"
)

// CompileErrorBody is the whole response for a failed or timed out compile.
const CompileErrorBody = "Error while compiling LaTeX equation"

// JobIDHeader carries the render job ID on successful responses.
const JobIDHeader = "X-Job-Id"

// Render handles POST /render. The request body is the LaTeX markup as
// plain text; the response is the SVG.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New(errors.CodePayloadTooLarge, "request body too large").
				WithField("limit_bytes", tooLarge.Limit)
		}
		return errors.WrapWithCode(err, errors.CodeBadRequest, "render.read", "failed to read request body")
	}

	result, err := h.renderer.Render(ctx, string(body))
	if err != nil {
		var appErr *errors.Error
		if errors.As(err, &appErr) && appErr.IsCompileError() {
			httpkit.WriteText(w, http.StatusInternalServerError, CompileErrorBody)
			return nil
		}
		return err
	}
	defer result.Close()

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set(JobIDHeader, result.JobID)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, result); err != nil {
		result.CloseWithError(err)
		h.log.FromContext(ctx).WithJobID(result.JobID).Warn("aborting svg response", "error", err)
		// Headers are out; dropping the connection is the only way to
		// tell the client the body is incomplete.
		panic(http.ErrAbortHandler)
	}
	return nil
}
