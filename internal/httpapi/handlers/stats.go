package handlers

import (
	"net/http"

	"texsvg/internal/httpkit"
	"texsvg/internal/pkg/errors"
)

// RenderStats handles GET /render/stats.
func (h *Handler) RenderStats(w http.ResponseWriter, r *http.Request) error {
	if h.stats == nil {
		return errors.NotFound("render stats")
	}

	counts, err := h.stats.Stats(r.Context())
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "render.stats", "stats backend unavailable")
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"outcomes": counts})
	return nil
}
