package node

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/yndnr/dzmesh-go/internal/core/service"
	"github.com/yndnr/dzmesh-go/internal/protocol"
	"github.com/yndnr/dzmesh-go/internal/server/config"
	"github.com/yndnr/dzmesh-go/internal/server/httpserver"
	"github.com/yndnr/dzmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/dzmesh-go/internal/storage/memory"
	"github.com/yndnr/dzmesh-go/internal/storage/sqlstore"
	"github.com/yndnr/dzmesh-go/internal/telemetry/metric"
)

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Node is a running world or zone process.
type Node struct {
	cfg     *config.ServerConfig
	logger  *slog.Logger
	metrics *metric.Registry

	db       *sql.DB
	store    *sqlstore.Store
	registry *memory.Registry
	engine   *service.Engine
	codec    *protocol.Codec

	admin *httpserver.Server

	world *worldParts
	zone  *zoneParts

	cancel  context.CancelFunc
	closers []closer
	errCh   chan error
}

// Start builds and starts the node described by cfg. The returned node
// runs until Close.
func Start(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) (n *Node, err error) {
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	n = &Node{
		cfg:      cfg,
		logger:   logger.With("role", cfg.Server.Role),
		metrics:  metric.NewRegistry(),
		registry: memory.NewRegistry(),
		cancel:   cancel,
		errCh:    make(chan error, 4),
	}
	n.onClose("context", func(context.Context) error { cancel(); return nil })
	defer func() {
		if err != nil {
			_ = n.Close(context.Background())
		}
	}()

	// 1. Store
	if err := n.openStore(ctx); err != nil {
		return nil, err
	}

	// 2. Codec and engine. The codec closes after the engine stops.
	n.codec, err = protocol.NewCodec()
	if err != nil {
		return nil, err
	}
	n.onClose("codec", func(context.Context) error { return n.codec.Close() })

	n.engine = service.NewEngine(cfg.Server.EngineQueue, n.logger.With("component", "engine"))
	go n.engine.Run(runCtx)
	n.onClose("engine", func(ctx context.Context) error {
		cancel()
		select {
		case <-n.engine.Stopped():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	// 3. Role
	var admin handler.Config
	switch cfg.Server.Role {
	case config.RoleWorld:
		admin, err = n.startWorld(ctx, runCtx)
	default:
		admin, err = n.startZone(ctx, runCtx)
	}
	if err != nil {
		return nil, err
	}

	// 4. Admin
	if cfg.Metrics.Addr != "" {
		if err := n.startAdmin(admin); err != nil {
			return nil, err
		}
	}

	n.logger.Info("node started",
		"zone_id", cfg.Server.ZoneID,
		"instance_id", cfg.Server.InstanceID,
		"admin_addr", n.AdminAddr(),
	)
	return n, nil
}

func (n *Node) openStore(ctx context.Context) error {
	dialect, err := sqlstore.ParseDialect(n.cfg.Database.Driver)
	if err != nil {
		return err
	}
	n.db, err = sqlstore.Open(ctx, sqlstore.Options{
		Dialect:      dialect,
		DSN:          n.cfg.Database.DSN,
		MaxOpenConns: n.cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return err
	}
	n.onClose("database", func(context.Context) error { return n.db.Close() })

	if n.cfg.Database.AutoMigrate {
		if err := sqlstore.Migrate(ctx, n.db, dialect, n.logger); err != nil {
			return err
		}
	}
	n.store = sqlstore.New(n.db, dialect, sqlstore.WithLogger(n.logger.With("component", "sqlstore")))
	return nil
}

func (n *Node) startAdmin(cfg handler.Config) error {
	cfg.Role = n.cfg.Server.Role
	cfg.Source = handler.RegistrySource{Registry: n.registry, Exec: n.engine}
	cfg.Logger = n.logger.With("component", "admin")
	if cfg.Ready == nil {
		cfg.Ready = map[string]handler.ReadyCheck{}
	}
	cfg.Ready["database"] = n.db.PingContext

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Admin:          handler.New(cfg),
		Metrics:        n.metrics.Handler(),
		Observer:       n.metrics,
		Logger:         cfg.Logger,
		AdminAllowList: n.cfg.Metrics.AdminAllowList,
		RateLimit:      n.cfg.Metrics.AdminRateLimit,
	})
	n.admin = httpserver.New(n.cfg.Metrics.Addr, router)
	if err := n.serve("admin", n.admin); err != nil {
		return err
	}
	return nil
}

// serve binds srv and runs it in the background until Close.
func (n *Node) serve(name string, srv *httpserver.Server) error {
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("node: %s listen: %w", name, err)
	}
	go func() {
		if err := srv.Serve(); err != nil {
			n.logger.Error("server stopped", "server", name, "error", err)
			n.errCh <- fmt.Errorf("%s: %w", name, err)
		}
	}()
	n.onClose(name, srv.Shutdown)
	n.logger.Info("listening", "server", name, "addr", srv.Addr())
	return nil
}

func (n *Node) onClose(name string, fn func(context.Context) error) {
	n.closers = append(n.closers, closer{name: name, fn: fn})
}

// Err reports a server that stopped on its own.
func (n *Node) Err() <-chan error {
	return n.errCh
}

// Close stops the node in reverse start order.
func (n *Node) Close(ctx context.Context) error {
	var errs []error
	for i := len(n.closers) - 1; i >= 0; i-- {
		c := n.closers[i]
		if err := c.fn(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Warn("close failed", "component", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	n.closers = nil
	return errors.Join(errs...)
}

// AdminAddr is the bound admin address, or "" when disabled.
func (n *Node) AdminAddr() string {
	if n.admin == nil {
		return ""
	}
	return n.admin.Addr()
}

// Engine returns the single-writer engine of the node.
func (n *Node) Engine() *service.Engine {
	return n.engine
}

// Registry returns the in-memory expedition cache.
func (n *Node) Registry() *memory.Registry {
	return n.registry
}

// Store returns the persistent store.
func (n *Node) Store() *sqlstore.Store {
	return n.store
}

// Metrics returns the node's Prometheus registry.
func (n *Node) Metrics() *metric.Registry {
	return n.metrics
}
