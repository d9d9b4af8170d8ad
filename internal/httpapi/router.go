package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"texsvg/internal/httpapi/handlers"
	"texsvg/internal/httpkit"
	"texsvg/internal/pkg/logger"
	"texsvg/internal/pkg/middleware"
)

type Deps struct {
	Handlers           handlers.Deps
	Log                *logger.Logger
	CORSAllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	d.Handlers.Log = log

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   d.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{handlers.JobIDHeader, middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	h := handlers.New(d.Handlers)

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- RENDER ----
	r.Post("/render", middleware.WrapHandler(log, h.Render))
	r.Get("/render/stats", middleware.WrapHandler(log, h.RenderStats))

	return r
}
