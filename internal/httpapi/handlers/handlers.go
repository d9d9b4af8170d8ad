package handlers

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"texsvg/internal/ledger"
	"texsvg/internal/pkg/logger"
	"texsvg/internal/render"
)

// DefaultMaxBodyBytes caps POST /render bodies when Deps leaves it unset.
const DefaultMaxBodyBytes = 1 << 20

// Renderer is implemented by *render.Service.
type Renderer interface {
	Render(ctx context.Context, markup string) (*render.Result, error)
}

// Deps are the handler dependencies. Pool, RDB and Stats are optional.
type Deps struct {
	Renderer     Renderer
	Pool         *pgxpool.Pool
	RDB          *redis.Client
	Stats        ledger.StatsReader
	Log          *logger.Logger
	MaxBodyBytes int64

	// Checked by the deep health check.
	LatexPath   string
	DvisvgmPath string
	TempRoot    string
}

type Handler struct {
	renderer     Renderer
	pool         *pgxpool.Pool
	rdb          *redis.Client
	stats        ledger.StatsReader
	log          *logger.Logger
	maxBodyBytes int64

	latexPath   string
	dvisvgmPath string
	tempRoot    string
}

func New(d Deps) *Handler {
	h := &Handler{
		renderer:     d.Renderer,
		pool:         d.Pool,
		rdb:          d.RDB,
		stats:        d.Stats,
		log:          d.Log,
		maxBodyBytes: d.MaxBodyBytes,
		latexPath:    d.LatexPath,
		dvisvgmPath:  d.DvisvgmPath,
		tempRoot:     d.TempRoot,
	}
	if h.log == nil {
		h.log = logger.NewDefault()
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = DefaultMaxBodyBytes
	}
	return h
}
