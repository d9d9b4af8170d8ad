package handlers

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"time"

	"texsvg/internal/httpkit"
)

// Health performs a health check of the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": "texsvg",
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] == "error" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	return map[string]map[string]any{
		"latex":     checkBinary(h.latexPath),
		"dvisvgm":   checkBinary(h.dvisvgmPath),
		"temp_root": checkWritable(h.tempRoot),
		"postgres":  h.checkPostgres(ctx),
		"redis":     h.checkRedis(ctx),
	}
}

func checkBinary(name string) map[string]any {
	path, err := exec.LookPath(name)
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{"status": "ok", "path": path}
}

func checkWritable(dir string) map[string]any {
	result := map[string]any{"status": "ok", "dir": dir}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
		return result
	}
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
		return result
	}
	f.Close()
	os.Remove(f.Name())
	return result
}

func (h *Handler) checkPostgres(ctx context.Context) map[string]any {
	if h.pool == nil {
		return map[string]any{"status": "disabled"}
	}

	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.pool.Ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	} else {
		stats := h.pool.Stat()
		result["total_conns"] = stats.TotalConns()
		result["idle_conns"] = stats.IdleConns()
		result["acquired_conns"] = stats.AcquiredConns()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkRedis(ctx context.Context) map[string]any {
	if h.rdb == nil {
		return map[string]any{"status": "disabled"}
	}

	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.rdb.Ping(checkCtx).Err(); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
