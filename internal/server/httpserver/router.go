// Package httpserver provides the admin HTTP server for dzmesh.
package httpserver

import (
	"log/slog"
	"net/http"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Admin serves /health, /ready and /admin/v1/*.
	Admin http.Handler

	// Metrics serves /metrics. Nil leaves the route unregistered.
	Metrics http.Handler

	// Observer records per-route request metrics.
	Observer RequestObserver

	Logger *slog.Logger

	// AdminAllowList is the IP/CIDR allowlist for /admin/v1 (empty = no restriction).
	AdminAllowList []string

	// RateLimit is the per-IP admin request rate. Zero disables it.
	RateLimit int
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		Logger:    slog.Default(),
		RateLimit: 50,
	}
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
//
// @design DS-0301, DS-0302
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	base := func(route string) []Middleware {
		return []Middleware{
			RequestID(),
			Recover(log),
			Instrument(route, cfg.Observer),
			AccessLog(log),
		}
	}

	mux := http.NewServeMux()

	// Probes and metrics: no ACL, scraped by infrastructure.
	mux.Handle("GET /health", Chain(cfg.Admin, base("/health")...))
	mux.Handle("GET /ready", Chain(cfg.Admin, base("/ready")...))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics, RequestID(), Recover(log)))
	}

	admin := Chain(cfg.Admin, append(base("/admin/v1"),
		NetworkACL(cfg.AdminAllowList, log),
		RateLimit(cfg.RateLimit),
	)...)
	mux.Handle("/admin/v1/", admin)

	return mux
}
