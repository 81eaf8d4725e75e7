package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

// Observer receives service-level events for metrics.
type Observer interface {
	MessageHandled(op protocol.Opcode, outcome string)
	InviteOutcome(outcome string)
	ExpeditionsCached(n int)
}

// Message handling outcomes reported to the Observer.
const (
	OutcomeApplied = "applied"
	OutcomeEcho    = "echo"
	OutcomeIgnored = "ignored"
	OutcomeError   = "error"
)

type nopObserver struct{}

func (nopObserver) MessageHandled(protocol.Opcode, string) {}
func (nopObserver) InviteOutcome(string)                   {}
func (nopObserver) ExpeditionsCached(int)                  {}

// options are shared by Zone and Coordinator.
type options struct {
	logger    *slog.Logger
	now       func() time.Time
	observer  Observer
	validator RequestValidator
	allocator InstanceAllocator

	emptyShutdownDelay time.Duration
	leaderCooldown     time.Duration
	removalDelay       time.Duration
}

// Option configures a Zone or a Coordinator.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithObserver reports handled messages and invite outcomes.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithValidator replaces the creation request validator.
func WithValidator(v RequestValidator) Option {
	return func(o *options) { o.validator = v }
}

// WithAllocator replaces the instance allocator. Defaults to the store.
func WithAllocator(a InstanceAllocator) Option {
	return func(o *options) { o.allocator = a }
}

// WithEmptyShutdownDelay sets how long a memberless expedition's instance
// is kept before it is shut down. Coordinator only.
func WithEmptyShutdownDelay(d time.Duration) Option {
	return func(o *options) { o.emptyShutdownDelay = d }
}

// WithLeaderCooldown sets the grace period before a new leader is chosen
// for an expedition whose leader went offline. Coordinator only.
func WithLeaderCooldown(d time.Duration) Option {
	return func(o *options) { o.leaderCooldown = d }
}

// WithRemovalDelay sets how long a character who lost access to the
// hosted instance may stay inside it. Zone only.
func WithRemovalDelay(d time.Duration) Option {
	return func(o *options) { o.removalDelay = d }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:             slog.Default(),
		now:                time.Now,
		observer:           nopObserver{},
		emptyShutdownDelay: 15 * time.Minute,
		leaderCooldown:     30 * time.Second,
		removalDelay:       time.Minute,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Zone runs the expedition operations of one zone process and applies
// replicated messages to its registry.
//
// @req RQ-0102
// @design DS-0103
type Zone struct {
	self      protocol.Sender
	registry  Registry
	store     Store
	publisher Publisher
	clients   Clients
	notifier  Notifier

	validator RequestValidator
	allocator InstanceAllocator
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time

	removalDelay time.Duration

	handlers map[protocol.Opcode]handlerFunc
}

// NewZone creates the zone service for the process identified by self.
//
// @design DS-0103
func NewZone(self protocol.Sender, registry Registry, store Store, publisher Publisher,
	clients Clients, notifier Notifier, opts ...Option) *Zone {
	o := buildOptions(opts)
	z := &Zone{
		self:      self,
		registry:  registry,
		store:     store,
		publisher: publisher,
		clients:   clients,
		notifier:  notifier,
		validator: o.validator,
		allocator: o.allocator,
		observer:  o.observer,
		logger:    o.logger.With("zone_id", self.ZoneID, "instance_id", self.InstanceID),
		now:       o.now,

		removalDelay: o.removalDelay,
	}
	if z.validator == nil {
		z.validator = NewBasicValidator(registry, clients)
	}
	if z.allocator == nil {
		z.allocator = store
	}
	z.handlers = z.buildHandlers()
	return z
}

// Self returns the zone identity stamped on outgoing messages.
func (z *Zone) Self() protocol.Sender {
	return z.self
}

// Registry returns the zone's expedition cache.
func (z *Zone) Registry() Registry {
	return z.registry
}

// Expedition returns the cached expedition the character belongs to.
func (z *Zone) Expedition(c *domain.Character) (*domain.Expedition, bool) {
	if c == nil || c.ExpeditionID == 0 {
		return nil, false
	}
	return z.registry.Get(c.ExpeditionID)
}

// ============================================================================
// Helpers
// ============================================================================

func (z *Zone) publish(ctx context.Context, m protocol.Message) {
	if err := z.publisher.Publish(ctx, m); err != nil {
		z.logger.Warn("publish failed", "opcode", m.Opcode().String(), "error", err)
	}
}

// hostsInstance reports whether this process is the expedition's instance.
func (z *Zone) hostsInstance(e *domain.Expedition) bool {
	return e.Instance.IsSameInstance(z.self.ZoneID, z.self.InstanceID)
}

// notifyMembers sends n to every roster member connected to this zone.
func (z *Zone) notifyMembers(e *domain.Expedition, n Notification) {
	n.ExpeditionID = e.ID
	for _, m := range e.Members() {
		if c, ok := z.clients.Character(m.CharacterID); ok {
			z.notifier.Notify(c, n)
		}
	}
}

// messageMembers sends a chat notice to every local roster member.
func (z *Zone) messageMembers(e *domain.Expedition, id NoticeID, args ...string) {
	z.notifyMembers(e, Notification{Kind: NotifyMessage, Notice: id, Args: args})
}

// notice sends a chat notice to a local character.
func (z *Zone) notice(c *domain.Character, id NoticeID, args ...string) {
	z.notifier.Notify(c, Notification{Kind: NotifyMessage, Notice: id, Args: args})
}

// sendMessage delivers a chat notice by character name, through the
// coordinator when the character is not connected here.
func (z *Zone) sendMessage(ctx context.Context, name string, id NoticeID, args ...string) {
	if name == "" {
		return
	}
	if c, ok := z.clients.CharacterByName(name); ok {
		z.notice(c, id, args...)
		return
	}
	msg := &protocol.CharacterNotice{CharacterName: name, Notice: uint16(id)}
	if len(args) > 0 {
		msg.Arg1 = args[0]
	}
	if len(args) > 1 {
		msg.Arg2 = args[1]
	}
	z.publish(ctx, msg)
}

// sendFullUpdate refreshes a member's whole expedition window.
func (z *Zone) sendFullUpdate(c *domain.Character, e *domain.Expedition) {
	z.notifier.Notify(c, Notification{Kind: NotifyInfo, ExpeditionID: e.ID, Expedition: e})
	z.notifier.Notify(c, Notification{Kind: NotifyMemberList, ExpeditionID: e.ID, Expedition: e})
}

// clearWindow tells a character it no longer has an expedition.
func (z *Zone) clearWindow(c *domain.Character) {
	z.notifier.Notify(c, Notification{Kind: NotifyInfo})
}

// presenceOf returns the status a local character has within e.
func (z *Zone) presenceOf(c *domain.Character, e *domain.Expedition) domain.MemberStatus {
	if c.IsInInstance(e.Instance) {
		return domain.StatusInDynamicZone
	}
	return domain.StatusOnline
}

// locationOf returns the zone and instance of a character by name, or this
// process's identity when the character is connected elsewhere.
func (z *Zone) locationOf(name string) (uint32, uint32) {
	if c, ok := z.clients.CharacterByName(name); ok {
		return c.ZoneID, c.InstanceID
	}
	return z.self.ZoneID, z.self.InstanceID
}

func persistErr(op string, err error) error {
	return domain.ErrPersistence.WithDetails(op).WithCause(err)
}

func memberIDs(members []domain.Member) []uint32 {
	ids := make([]uint32, len(members))
	for i, m := range members {
		ids[i] = m.CharacterID
	}
	return ids
}

func itoa(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
