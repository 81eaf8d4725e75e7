package node

import (
	"context"
	"net/http"
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/service"
	"github.com/yndnr/dzmesh-go/internal/infra/tlsroots"
	"github.com/yndnr/dzmesh-go/internal/protocol"
	"github.com/yndnr/dzmesh-go/internal/server/httpserver"
	"github.com/yndnr/dzmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/dzmesh-go/internal/server/hub"
)

// ZonePath is where the world accepts zone links.
const ZonePath = "/zones"

type worldParts struct {
	coord *service.Coordinator
	hub   *hub.Hub
	srv   *httpserver.Server
}

// coordinatorRef lets the hub be built before the coordinator that routes
// through it.
type coordinatorRef struct {
	*service.Coordinator
}

func (n *Node) startWorld(ctx, runCtx context.Context) (handler.Config, error) {
	cfg := n.cfg.World
	log := n.logger

	ref := &coordinatorRef{}
	h := hub.New(n.codec, ref, n.engine,
		hub.WithLogger(log),
		hub.WithMetrics(n.metrics),
		hub.WithSendQueue(cfg.SendQueue),
	)
	coord := service.NewCoordinator(n.registry, n.store, h,
		service.WithLogger(log),
		service.WithObserver(n.metrics),
		service.WithEmptyShutdownDelay(cfg.EmptyShutdownDelay),
		service.WithLeaderCooldown(cfg.LeaderCooldown),
	)
	ref.Coordinator = coord
	n.world = &worldParts{coord: coord, hub: h}

	if err := n.engine.Do(ctx, coord.LoadAll); err != nil {
		return handler.Config{}, err
	}

	go n.processLoop(runCtx, "coordinator", cfg.ProcessInterval, coord.Process)

	mux := http.NewServeMux()
	mux.Handle(ZonePath, h)
	n.world.srv = httpserver.New(cfg.ListenAddr, mux)
	if cfg.TLSCertFile != "" {
		certs, err := tlsroots.NewReloader(cfg.TLSCertFile, cfg.TLSKeyFile,
			tlsroots.WithLogger(log.With("component", "tls")))
		if err != nil {
			return handler.Config{}, err
		}
		certs.StartAsync()
		n.onClose("tls_reloader", func(context.Context) error { return certs.Stop() })
		n.world.srv.UseTLS(certs.ServerConfig())
	}
	// Zone connections are hijacked, so Shutdown alone does not end them.
	n.onClose("hub", func(context.Context) error { h.Close(); return nil })
	if err := n.serve("zone_hub", n.world.srv); err != nil {
		return handler.Config{}, err
	}

	return handler.Config{
		Self:  protocol.Sender{},
		Zones: h.Zones,
	}, nil
}

// processLoop posts a periodic sweep onto the engine.
func (n *Node) processLoop(ctx context.Context, name string, every time.Duration, sweep func(context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok := n.engine.Post(ctx, func(ctx context.Context) error {
				sweep(ctx)
				return nil
			})
			if !ok {
				n.logger.Warn("engine busy, process tick skipped", "sweep", name)
			}
		}
	}
}

// Coordinator returns the world coordinator, or nil on a zone node.
func (n *Node) Coordinator() *service.Coordinator {
	if n.world == nil {
		return nil
	}
	return n.world.coord
}

// HubAddr is the bound zone hub address, or "" on a zone node.
func (n *Node) HubAddr() string {
	if n.world == nil || n.world.srv == nil {
		return ""
	}
	return n.world.srv.Addr()
}
