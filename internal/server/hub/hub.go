package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

// Connection timing.
const (
	helloWait    = 5 * time.Second
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	zoneDownWait = 30 * time.Second
)

// DefaultSendQueue is the per-zone outbound frame buffer.
const DefaultSendQueue = 256

// Coordinator is the world logic fed by the hub.
type Coordinator interface {
	Handle(ctx context.Context, from protocol.Sender, m protocol.Message) error
	ZoneDown(ctx context.Context, zone protocol.Sender)
}

// Executor runs closures on the coordinator's single writer.
type Executor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Metrics receives transport events.
type Metrics interface {
	FrameSent(op protocol.Opcode)
	FrameReceived(op protocol.Opcode)
	FrameDropped(reason string)
	ZonesConnected(n int)
}

type nopMetrics struct{}

func (nopMetrics) FrameSent(protocol.Opcode)     {}
func (nopMetrics) FrameReceived(protocol.Opcode) {}
func (nopMetrics) FrameDropped(string)           {}
func (nopMetrics) ZonesConnected(int)            {}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetrics reports transport events.
func WithMetrics(m Metrics) Option {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithSendQueue sets the per-zone outbound buffer.
func WithSendQueue(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendQueue = n
		}
	}
}

// Hub accepts zone connections and routes frames between them and the
// coordinator.
//
// @design DS-0106
type Hub struct {
	codec    *protocol.Codec
	coord    Coordinator
	exec     Executor
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	zones map[protocol.Sender]*zoneConn

	sendQueue int
	metrics   Metrics
	logger    *slog.Logger
}

// New creates a hub.
func New(codec *protocol.Codec, coord Coordinator, exec Executor, opts ...Option) *Hub {
	h := &Hub{
		codec: codec,
		coord: coord,
		exec:  exec,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		zones:     make(map[protocol.Sender]*zoneConn),
		sendQueue: DefaultSendQueue,
		metrics:   nopMetrics{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub")
	return h
}

// zoneConn is one connected zone process.
type zoneConn struct {
	id   protocol.Sender
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (z *zoneConn) close() {
	z.once.Do(func() {
		close(z.done)
		_ = z.ws.Close()
	})
}

// enqueue never blocks; it reports false when the zone is not keeping up.
func (z *zoneConn) enqueue(frame []byte) bool {
	select {
	case <-z.done:
		return false
	default:
	}
	select {
	case z.out <- frame:
		return true
	default:
		return false
	}
}

// ============================================================================
// service.Router
// ============================================================================

// Broadcast sends a message to every connected zone. A zone whose queue
// is full is disconnected; it resynchronizes when it reconnects.
func (h *Hub) Broadcast(_ context.Context, m protocol.Message) error {
	frame, _, err := h.codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("hub: marshal %s: %w", m.Opcode(), err)
	}

	h.mu.RLock()
	conns := make([]*zoneConn, 0, len(h.zones))
	for _, z := range h.zones {
		conns = append(conns, z)
	}
	h.mu.RUnlock()

	for _, z := range conns {
		if !z.enqueue(frame) {
			h.slowZone(z, m.Opcode())
			continue
		}
		h.metrics.FrameSent(m.Opcode())
	}
	return nil
}

// SendTo sends a message to one zone.
func (h *Hub) SendTo(_ context.Context, zone protocol.Sender, m protocol.Message) error {
	h.mu.RLock()
	z, ok := h.zones[zone]
	h.mu.RUnlock()
	if !ok {
		h.metrics.FrameDropped("zone_offline")
		return domain.ErrLinkDown.WithDetails(fmt.Sprintf("zone %d/%d not connected", zone.ZoneID, zone.InstanceID))
	}

	frame, _, err := h.codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("hub: marshal %s: %w", m.Opcode(), err)
	}
	if !z.enqueue(frame) {
		h.slowZone(z, m.Opcode())
		return domain.ErrLinkDown.WithDetails("zone send queue full")
	}
	h.metrics.FrameSent(m.Opcode())
	return nil
}

func (h *Hub) slowZone(z *zoneConn, op protocol.Opcode) {
	h.metrics.FrameDropped("queue_full")
	h.logger.Warn("zone send queue full, disconnecting",
		"zone_id", z.id.ZoneID, "instance_id", z.id.InstanceID, "opcode", op.String())
	z.close()
}

// Zones returns the connected zone identities ordered by zone then instance.
func (h *Hub) Zones() []protocol.Sender {
	h.mu.RLock()
	out := make([]protocol.Sender, 0, len(h.zones))
	for id := range h.zones {
		out = append(out, id)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ZoneID != out[j].ZoneID {
			return out[i].ZoneID < out[j].ZoneID
		}
		return out[i].InstanceID < out[j].InstanceID
	})
	return out
}

// Close disconnects every zone.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.zones
	h.zones = make(map[protocol.Sender]*zoneConn)
	h.mu.Unlock()
	for _, z := range conns {
		z.close()
	}
	h.metrics.ZonesConnected(0)
}

// ============================================================================
// Connections
// ============================================================================

// ServeHTTP upgrades the request and serves the zone until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id, err := h.handshake(ws)
	if err != nil {
		h.logger.Warn("zone handshake failed", "remote", r.RemoteAddr, "error", err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected zone_hello"),
			time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	z := &zoneConn{
		id:   id,
		ws:   ws,
		out:  make(chan []byte, h.sendQueue),
		done: make(chan struct{}),
	}
	h.register(z)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.exec.Do(ctx, func(ctx context.Context) error {
		return h.coord.Handle(ctx, id, &protocol.ZoneHello{Sender: id})
	}); err != nil {
		h.logger.Warn("zone hello rejected", "zone_id", id.ZoneID, "error", err)
	}

	go h.writeLoop(z)
	h.readLoop(ctx, z)

	z.close()
	if h.unregister(z) {
		h.zoneDown(id)
	}
}

// zoneDown waits for the coordinator so a busy engine delays the offline
// marking instead of losing it.
func (h *Hub) zoneDown(id protocol.Sender) {
	ctx, cancel := context.WithTimeout(context.Background(), zoneDownWait)
	defer cancel()
	err := h.exec.Do(ctx, func(ctx context.Context) error {
		h.coord.ZoneDown(ctx, id)
		return nil
	})
	if err != nil {
		h.logger.Error("zone down not applied", "zone_id", id.ZoneID, "instance_id", id.InstanceID, "error", err)
	}
}

func (h *Hub) handshake(ws *websocket.Conn) (protocol.Sender, error) {
	_ = ws.SetReadDeadline(time.Now().Add(helloWait))
	kind, frame, err := ws.ReadMessage()
	if err != nil {
		return protocol.Sender{}, err
	}
	if kind != websocket.BinaryMessage {
		return protocol.Sender{}, errors.New("hello is not a binary frame")
	}
	_, m, err := h.codec.Unmarshal(frame)
	if err != nil {
		return protocol.Sender{}, err
	}
	hello, ok := m.(*protocol.ZoneHello)
	if !ok {
		return protocol.Sender{}, fmt.Errorf("first frame is %s", m.Opcode())
	}
	if hello.Sender.IsWorld() {
		return protocol.Sender{}, errors.New("zone id is 0")
	}
	h.metrics.FrameReceived(protocol.OpZoneHello)
	return hello.Sender, nil
}

// register replaces a previous connection of the same zone.
func (h *Hub) register(z *zoneConn) {
	h.mu.Lock()
	old := h.zones[z.id]
	h.zones[z.id] = z
	n := len(h.zones)
	h.mu.Unlock()

	if old != nil {
		h.logger.Info("zone reconnected, closing previous link", "zone_id", z.id.ZoneID, "instance_id", z.id.InstanceID)
		old.close()
	}
	h.metrics.ZonesConnected(n)
	h.logger.Info("zone connected", "zone_id", z.id.ZoneID, "instance_id", z.id.InstanceID, "zones", n)
}

// unregister reports whether z was still the registered link of its zone.
func (h *Hub) unregister(z *zoneConn) bool {
	h.mu.Lock()
	cur, ok := h.zones[z.id]
	current := ok && cur == z
	if current {
		delete(h.zones, z.id)
	}
	n := len(h.zones)
	h.mu.Unlock()

	h.metrics.ZonesConnected(n)
	return current
}

func (h *Hub) readLoop(ctx context.Context, z *zoneConn) {
	_ = z.ws.SetReadDeadline(time.Now().Add(pongWait))
	z.ws.SetPongHandler(func(string) error {
		return z.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, frame, err := z.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("zone read failed", "zone_id", z.id.ZoneID, "error", err)
			}
			return
		}
		_ = z.ws.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.BinaryMessage {
			continue
		}

		hdr, m, err := h.codec.Unmarshal(frame)
		if err != nil {
			h.metrics.FrameDropped("malformed")
			h.logger.Warn("dropping frame", "zone_id", z.id.ZoneID, "opcode", hdr.Opcode.String(), "error", err)
			continue
		}
		h.metrics.FrameReceived(hdr.Opcode)

		err = h.exec.Do(ctx, func(ctx context.Context) error {
			return h.coord.Handle(ctx, z.id, m)
		})
		if err != nil {
			h.logger.Warn("coordinator rejected message",
				"zone_id", z.id.ZoneID, "opcode", hdr.Opcode.String(),
				"message_id", hdr.MessageID.String(), "error", err)
		}
	}
}

func (h *Hub) writeLoop(z *zoneConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-z.out:
			_ = z.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := z.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				h.logger.Debug("zone write failed", "zone_id", z.id.ZoneID, "error", err)
				z.close()
				return
			}
		case <-ticker.C:
			if err := z.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				z.close()
				return
			}
		case <-z.done:
			return
		}
	}
}
