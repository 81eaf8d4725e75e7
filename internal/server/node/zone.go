package node

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/core/service"
	"github.com/yndnr/dzmesh-go/internal/infra/tlsroots"
	"github.com/yndnr/dzmesh-go/internal/protocol"
	"github.com/yndnr/dzmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/dzmesh-go/internal/server/zonelink"
	"github.com/yndnr/dzmesh-go/internal/storage/memory"
	"github.com/yndnr/dzmesh-go/internal/storage/outbox"
)

type zoneParts struct {
	zone     *service.Zone
	link     *zonelink.Link
	clients  *memory.Clients
	notifier *memory.RecordingNotifier
}

func (n *Node) startZone(ctx, runCtx context.Context) (handler.Config, error) {
	cfg := n.cfg.Zone
	log := n.logger
	self := protocol.Sender{ZoneID: n.cfg.Server.ZoneID, InstanceID: n.cfg.Server.InstanceID}

	spool, err := outbox.Open(outbox.Config{
		Dir:       cfg.SpoolDir,
		InMemory:  cfg.SpoolDir == "",
		MaxFrames: cfg.SpoolMaxFrames,
	}, log.With("component", "outbox"))
	if err != nil {
		return handler.Config{}, err
	}
	n.onClose("outbox", func(context.Context) error { return spool.Close() })

	parts := &zoneParts{
		clients:  memory.NewClients(),
		notifier: memory.NewRecordingNotifier(memory.WithNotifierLogger(log.With("component", "notifier"))),
	}

	linkOpts := []zonelink.Option{
		zonelink.WithLogger(log),
		zonelink.WithSpool(spool),
		zonelink.WithMetrics(n.metrics),
	}
	if strings.HasPrefix(cfg.WorldURL, "wss://") {
		tlsCfg, err := tlsroots.ClientConfigFor(cfg.TLSCAFile)
		if err != nil {
			return handler.Config{}, err
		}
		linkOpts = append(linkOpts, zonelink.WithTLSConfig(tlsCfg))
	}

	var zone *service.Zone
	handle := zonelink.HandlerFunc(func(ctx context.Context, m protocol.Message) error {
		return n.engine.Do(ctx, func(ctx context.Context) error {
			return zone.Handle(ctx, m)
		})
	})
	link, err := zonelink.New(zonelink.Config{
		URL:                cfg.WorldURL,
		Self:               self,
		ReconnectPerSecond: cfg.ReconnectPerSecond,
		SendQueue:          cfg.SendQueue,
		PublishTimeout:     cfg.PublishTimeout,
	}, n.codec, handle, append(linkOpts,
		zonelink.WithOnConnect(func(ctx context.Context) {
			// Updates missed while down are recovered from the store.
			if !n.engine.Post(ctx, zone.LoadAll) {
				log.Warn("engine busy, registry reload skipped")
			}
		}),
	)...)
	if err != nil {
		return handler.Config{}, err
	}

	zone = service.NewZone(self, n.registry, n.store, link, parts.clients, parts.notifier,
		service.WithLogger(log.With("component", "zone")),
		service.WithObserver(n.metrics),
		service.WithRemovalDelay(cfg.RemovalDelay),
	)
	parts.zone, parts.link = zone, link
	n.zone = parts

	if err := n.engine.Do(ctx, zone.LoadAll); err != nil {
		return handler.Config{}, err
	}

	go n.processLoop(runCtx, "instance_removals", cfg.ProcessInterval, func(ctx context.Context) {
		zone.ProcessRemovals(ctx)
	})

	linkDone := make(chan struct{})
	go func() {
		defer close(linkDone)
		if err := link.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			n.errCh <- fmt.Errorf("zonelink: %w", err)
		}
	}()
	n.onClose("zonelink", func(ctx context.Context) error {
		n.cancel()
		select {
		case <-linkDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	return handler.Config{
		Self:   self,
		LinkUp: link.Connected,
		Ready: map[string]handler.ReadyCheck{
			"world_link": func(context.Context) error {
				if !link.Connected() {
					return domain.ErrLinkDown
				}
				return nil
			},
		},
	}, nil
}

// Zone returns the zone service, or nil on a world node.
func (n *Node) Zone() *service.Zone {
	if n.zone == nil {
		return nil
	}
	return n.zone.zone
}

// Clients returns the connected-character table of a zone node.
func (n *Node) Clients() *memory.Clients {
	if n.zone == nil {
		return nil
	}
	return n.zone.clients
}

// Notifier returns the client notifier of a zone node.
func (n *Node) Notifier() *memory.RecordingNotifier {
	if n.zone == nil {
		return nil
	}
	return n.zone.notifier
}

// LinkUp reports whether a zone node is connected to the world.
func (n *Node) LinkUp() bool {
	return n.zone != nil && n.zone.link.Connected()
}
