package zonelink

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// DefaultSendQueue is the outbound frame buffer of a connected link.
const DefaultSendQueue = 256

// DefaultPublishTimeout bounds how long Publish waits for queue room.
const DefaultPublishTimeout = 5 * time.Second

// Handler receives messages from the world.
type Handler interface {
	HandleMessage(ctx context.Context, m protocol.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, m protocol.Message) error

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, m protocol.Message) error {
	return f(ctx, m)
}

// Spool stores frames while the link is down.
type Spool interface {
	Enqueue(ctx context.Context, id ulid.ULID, frame []byte) error
	Drain(ctx context.Context, send func(id ulid.ULID, frame []byte) error) (int, error)
	Len() int
}

// Metrics receives link events.
type Metrics interface {
	FrameSent(op protocol.Opcode)
	FrameReceived(op protocol.Opcode)
	FrameDropped(reason string)
	LinkUp(up bool)
	Spooled(n int)
}

type nopMetrics struct{}

func (nopMetrics) FrameSent(protocol.Opcode)     {}
func (nopMetrics) FrameReceived(protocol.Opcode) {}
func (nopMetrics) FrameDropped(string)           {}
func (nopMetrics) LinkUp(bool)                   {}
func (nopMetrics) Spooled(int)                   {}

// Config configures a Link.
type Config struct {
	// URL is the world hub websocket URL.
	URL string

	// Self identifies this zone process.
	Self protocol.Sender

	// ReconnectPerSecond bounds dial attempts. Zero uses 1.
	ReconnectPerSecond float64

	// SendQueue is the connected outbound buffer. Zero uses DefaultSendQueue.
	SendQueue int

	// PublishTimeout bounds a Publish blocked on a full queue. When it
	// passes the session is dropped and the frame is spooled behind the
	// queued ones. Zero uses DefaultPublishTimeout.
	PublishTimeout time.Duration
}

// Option configures a Link.
type Option func(*Link)

// WithLogger sets the link logger.
func WithLogger(l *slog.Logger) Option {
	return func(k *Link) {
		if l != nil {
			k.logger = l
		}
	}
}

// WithSpool keeps frames published while disconnected.
func WithSpool(s Spool) Option {
	return func(k *Link) { k.spool = s }
}

// WithMetrics reports link events.
func WithMetrics(m Metrics) Option {
	return func(k *Link) {
		if m != nil {
			k.metrics = m
		}
	}
}

// WithTLSConfig sets the client TLS config used for wss:// URLs.
func WithTLSConfig(c *tls.Config) Option {
	return func(k *Link) { k.dialer.TLSClientConfig = c }
}

// WithOnConnect runs after every successful handshake and spool replay.
func WithOnConnect(fn func(ctx context.Context)) Option {
	return func(k *Link) { k.onConnect = fn }
}

type outFrame struct {
	id    ulid.ULID
	op    protocol.Opcode
	frame []byte
}

// Link implements service.Publisher over a websocket to the world hub.
//
// @design DS-0105
type Link struct {
	cfg     Config
	codec   *protocol.Codec
	handler Handler
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	spool     Spool
	onConnect func(ctx context.Context)
	metrics   Metrics
	logger    *slog.Logger

	// mu orders Publish against link state changes. Publishers hold the
	// read side while queueing; session changes take the write side.
	mu        sync.RWMutex
	connected bool
	out       chan outFrame
	dead      chan struct{}
	drop      func()

	up atomic.Bool
}

// New creates a link. Call Run to connect.
func New(cfg Config, codec *protocol.Codec, handler Handler, opts ...Option) (*Link, error) {
	if cfg.URL == "" {
		return nil, domain.ErrMissingArgument.WithDetails("world url is required")
	}
	if cfg.Self.IsWorld() {
		return nil, domain.ErrInvalidArgument.WithDetails("zone id is 0")
	}
	if cfg.ReconnectPerSecond <= 0 {
		cfg.ReconnectPerSecond = 1
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = DefaultSendQueue
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}

	k := &Link{
		cfg:     cfg,
		codec:   codec,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.ReconnectPerSecond), 1),
		metrics: nopMetrics{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.logger = k.logger.With("component", "zonelink", "zone_id", cfg.Self.ZoneID, "instance_id", cfg.Self.InstanceID)
	return k, nil
}

// Connected reports whether the link is up.
func (k *Link) Connected() bool {
	return k.up.Load()
}

// Publish frames a message toward the world. When disconnected the frame
// goes to the spool, or ErrLinkDown is returned without one. While
// connected it waits for queue room so frames leave in publish order; a
// wait past PublishTimeout or ctx drops the session and spools the frame.
func (k *Link) Publish(ctx context.Context, m protocol.Message) error {
	frame, id, err := k.codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("zonelink: marshal %s: %w", m.Opcode(), err)
	}
	f := outFrame{id: id, op: m.Opcode(), frame: frame}

	var timeout <-chan time.Time
	for {
		k.mu.RLock()
		if !k.connected {
			err := k.spoolFrame(context.WithoutCancel(ctx), f)
			k.mu.RUnlock()
			return err
		}
		out, dead, drop := k.out, k.dead, k.drop

		select {
		case out <- f:
			k.mu.RUnlock()
			return nil
		default:
		}

		if timeout == nil {
			t := time.NewTimer(k.cfg.PublishTimeout)
			defer t.Stop()
			timeout = t.C
		}
		select {
		case out <- f:
			k.mu.RUnlock()
			return nil
		case <-dead:
		case <-timeout:
			k.metrics.FrameDropped("queue_full")
			k.logger.Warn("send queue stalled, dropping session", "opcode", f.op.String())
			drop()
		case <-ctx.Done():
			drop()
		}
		k.mu.RUnlock()
		// The session is going down; the next pass spools behind its queue.
		<-dead
	}
}

func (k *Link) spoolFrame(ctx context.Context, f outFrame) error {
	if k.spool == nil {
		k.metrics.FrameDropped("link_down")
		return domain.ErrLinkDown.WithDetails(f.op.String())
	}
	if err := k.spool.Enqueue(ctx, f.id, f.frame); err != nil {
		k.metrics.FrameDropped("spool_error")
		return domain.ErrLinkDown.WithDetails(f.op.String()).WithCause(err)
	}
	k.metrics.Spooled(k.spool.Len())
	return nil
}

// Run keeps the link connected until ctx is done.
func (k *Link) Run(ctx context.Context) error {
	for {
		if err := k.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		err := k.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		k.logger.Warn("world link lost, reconnecting", "error", err)
	}
}

// session dials once and serves the connection until it fails.
func (k *Link) session(ctx context.Context) error {
	ws, _, err := k.dialer.DialContext(ctx, k.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer ws.Close()

	// 1. Hello
	hello, _, err := k.codec.Marshal(&protocol.ZoneHello{Sender: k.cfg.Self})
	if err != nil {
		return err
	}
	if err := write(ws, hello); err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	k.metrics.FrameSent(protocol.OpZoneHello)

	// 2. Replay spooled frames before accepting live ones
	if k.spool != nil {
		n, err := k.drainSpool(ctx, ws)
		if err != nil {
			return err
		}
		if n > 0 {
			k.logger.Info("replayed spooled frames", "count", n)
		}
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	dead := make(chan struct{})
	out := make(chan outFrame, k.cfg.SendQueue)
	drop := func() {
		cancel()
		_ = ws.Close()
	}

	// 3. Go live. Frames spooled during the replay go out first.
	k.mu.Lock()
	if k.spool != nil {
		if _, err := k.drainSpool(ctx, ws); err != nil {
			k.mu.Unlock()
			return err
		}
	}
	k.out, k.dead, k.drop = out, dead, drop
	k.connected = true
	k.mu.Unlock()
	k.up.Store(true)
	k.metrics.LinkUp(true)
	k.logger.Info("world link connected", "url", k.cfg.URL)

	writeErr := make(chan error, 1)
	go func() { writeErr <- k.writeLoop(sctx, ws, out) }()

	if k.onConnect != nil {
		k.onConnect(sctx)
	}

	readErr := k.readLoop(sctx, ws)
	drop()
	werr := <-writeErr

	// 4. Go dark and keep what was not written. Blocked publishers
	// release the read lock once dead closes.
	close(dead)
	k.mu.Lock()
	k.connected = false
	k.out, k.dead, k.drop = nil, nil, nil
	k.respool(ctx, out)
	k.mu.Unlock()
	k.up.Store(false)
	k.metrics.LinkUp(false)

	if readErr != nil {
		return readErr
	}
	return werr
}

func (k *Link) drainSpool(ctx context.Context, ws *websocket.Conn) (int, error) {
	n, err := k.spool.Drain(ctx, func(_ ulid.ULID, frame []byte) error {
		return write(ws, frame)
	})
	k.metrics.Spooled(k.spool.Len())
	if err != nil {
		return n, fmt.Errorf("replay spool: %w", err)
	}
	return n, nil
}

// respool moves frames still queued on a dead connection to the spool.
func (k *Link) respool(ctx context.Context, out chan outFrame) {
	for {
		select {
		case f := <-out:
			if err := k.spoolFrame(context.WithoutCancel(ctx), f); err != nil {
				k.logger.Warn("frame lost on disconnect", "opcode", f.op.String(), "message_id", f.id.String())
			}
		default:
			return
		}
	}
}

func (k *Link) readLoop(ctx context.Context, ws *websocket.Conn) error {
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		kind, frame, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.BinaryMessage {
			continue
		}

		hdr, m, err := k.codec.Unmarshal(frame)
		if err != nil {
			k.metrics.FrameDropped("malformed")
			k.logger.Warn("dropping frame", "opcode", hdr.Opcode.String(), "error", err)
			continue
		}
		k.metrics.FrameReceived(hdr.Opcode)
		if err := k.handler.HandleMessage(ctx, m); err != nil {
			k.logger.Warn("message not applied",
				"opcode", hdr.Opcode.String(), "message_id", hdr.MessageID.String(), "error", err)
		}
	}
}

func (k *Link) writeLoop(ctx context.Context, ws *websocket.Conn, out <-chan outFrame) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f := <-out:
			if err := write(ws, f.frame); err != nil {
				// Keep the frame for the next connection.
				if serr := k.spoolFrame(context.WithoutCancel(ctx), f); serr != nil {
					k.logger.Warn("frame lost on write failure", "opcode", f.op.String())
				}
				_ = ws.Close()
				return fmt.Errorf("write: %w", err)
			}
			k.metrics.FrameSent(f.op)
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = ws.Close()
				return fmt.Errorf("ping: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func write(ws *websocket.Conn, frame []byte) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.BinaryMessage, frame)
}
