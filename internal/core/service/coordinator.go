package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

// Expiry warning thresholds in minutes and the cooldown between warnings.
var expireWarningMinutes = map[uint32]bool{15: true, 5: true, 1: true}

const expireWarningCooldown = 70 * time.Second

// Presence is the coordinator's view of where a character is.
type Presence struct {
	CharacterID   uint32
	CharacterName string
	ZoneID        uint32
	InstanceID    uint32
	Online        bool
}

// Zone returns the identity of the process hosting the character.
func (p Presence) Zone() protocol.Sender {
	return protocol.Sender{ZoneID: p.ZoneID, InstanceID: p.InstanceID}
}

type coordHandler func(ctx context.Context, from protocol.Sender, m protocol.Message) error

// Coordinator is the world-side half of the protocol. It keeps a mirror of
// every expedition and a character directory, relays zone mutations to all
// zones, routes requests to the zone hosting a character and decides when
// expeditions end.
//
// @req RQ-0106
// @design DS-0103
type Coordinator struct {
	registry Registry
	store    Store
	router   Router

	byID   map[uint32]*Presence
	byName map[string]uint32

	warnedUntil   map[uint32]time.Time
	pendingLeader map[uint32]time.Time

	emptyShutdownDelay time.Duration
	leaderCooldown     time.Duration

	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	handlers map[protocol.Opcode]coordHandler
}

// NewCoordinator creates the world coordinator.
func NewCoordinator(registry Registry, store Store, router Router, opts ...Option) *Coordinator {
	o := buildOptions(opts)
	c := &Coordinator{
		registry:           registry,
		store:              store,
		router:             router,
		byID:               make(map[uint32]*Presence),
		byName:             make(map[string]uint32),
		warnedUntil:        make(map[uint32]time.Time),
		pendingLeader:      make(map[uint32]time.Time),
		emptyShutdownDelay: o.emptyShutdownDelay,
		leaderCooldown:     o.leaderCooldown,
		observer:           o.observer,
		logger:             o.logger.With("component", "coordinator"),
		now:                o.now,
	}
	c.handlers = c.buildHandlers()
	return c
}

func (c *Coordinator) buildHandlers() map[protocol.Opcode]coordHandler {
	relay := func(apply func(context.Context, protocol.Message)) coordHandler {
		return func(ctx context.Context, _ protocol.Sender, m protocol.Message) error {
			if apply != nil {
				apply(ctx, m)
			}
			return c.router.Broadcast(ctx, m)
		}
	}
	return map[protocol.Opcode]coordHandler{
		protocol.OpZoneHello:            c.onZoneHello,
		protocol.OpCharacterLocation:    c.onCharacterLocation,
		protocol.OpCharacterNotice:      c.onCharacterNotice,
		protocol.OpOnlineMembersRequest: c.onOnlineMembersRequest,
		protocol.OpAddPlayer:            c.onAddPlayer,
		protocol.OpMakeLeader:           c.onMakeLeader,
		protocol.OpRemoveCharLockouts:   c.onRemoveCharLockouts,

		protocol.OpInstanceAccess:        c.onInstanceAccess,
		protocol.OpInstanceAccessCleared: c.onInstanceAccess,

		protocol.OpExpeditionCreated: relay(c.mirrorCreated),
		protocol.OpMembersRemoved:    relay(c.mirrorMembersRemoved),
		protocol.OpMemberChange:      relay(c.mirrorMemberChange),
		protocol.OpMemberSwap:        relay(c.mirrorMemberSwap),
		protocol.OpMemberStatus:      relay(c.mirrorMemberStatus),
		protocol.OpLeaderChanged:     relay(c.mirrorLeaderChanged),
		protocol.OpLockoutUpdate:     relay(c.mirrorLockout),
		protocol.OpLockState:         relay(c.mirrorSetting),
		protocol.OpReplayOnJoin:      relay(c.mirrorSetting),
		protocol.OpCompass:           relay(c.mirrorLocation),
		protocol.OpSafeReturn:        relay(c.mirrorLocation),
		protocol.OpZoneIn:            relay(c.mirrorLocation),
	}
}

// LoadAll hydrates the mirror from the store.
func (c *Coordinator) LoadAll(ctx context.Context) error {
	c.registry.Clear()
	exps, err := LoadExpeditions(ctx, c.store, nil)
	if err != nil {
		return err
	}
	for _, e := range exps {
		c.registry.Put(e)
	}
	c.observer.ExpeditionsCached(c.registry.Len())
	c.logger.Info("expeditions loaded", "count", len(exps))
	return nil
}

// Handle processes a message received from the zone identified by from.
func (c *Coordinator) Handle(ctx context.Context, from protocol.Sender, m protocol.Message) error {
	if m == nil {
		return domain.ErrMissingArgument.WithDetails("message is required")
	}
	op := m.Opcode()
	h, ok := c.handlers[op]
	if !ok {
		c.observer.MessageHandled(op, OutcomeIgnored)
		return domain.ErrUnknownOpcode.WithDetails(op.String() + " is not accepted from zones")
	}
	if err := h(ctx, from, m); err != nil {
		c.observer.MessageHandled(op, OutcomeError)
		return err
	}
	c.observer.MessageHandled(op, OutcomeApplied)
	return nil
}

// Presence returns the directory entry of a character by name.
func (c *Coordinator) Presence(name string) (Presence, bool) {
	p, ok := c.presenceByName(name)
	if !ok {
		return Presence{}, false
	}
	return *p, true
}

// Expedition returns the mirrored expedition.
func (c *Coordinator) Expedition(id uint32) (*domain.Expedition, bool) {
	return c.registry.Get(id)
}

func (c *Coordinator) presenceByName(name string) (*Presence, bool) {
	id, ok := c.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	p, ok := c.byID[id]
	return p, ok
}

// sendTo routes a message to one zone. Routed messages carry the world
// identity so the receiver never mistakes them for its own echo.
func (c *Coordinator) sendTo(ctx context.Context, zone protocol.Sender, m protocol.Message) error {
	switch v := m.(type) {
	case *protocol.AddPlayerRequest:
		v.Sender = protocol.Sender{}
	case *protocol.MakeLeaderRequest:
		v.Sender = protocol.Sender{}
	}
	return c.router.SendTo(ctx, zone, m)
}

// ============================================================================
// Directory and routing
// ============================================================================

func (c *Coordinator) onZoneHello(_ context.Context, from protocol.Sender, _ protocol.Message) error {
	c.logger.Info("zone connected", "zone_id", from.ZoneID, "instance_id", from.InstanceID)
	return nil
}

func (c *Coordinator) onCharacterLocation(_ context.Context, _ protocol.Sender, m protocol.Message) error {
	loc := m.(*protocol.CharacterLocation)
	if loc.CharacterID == 0 {
		return domain.ErrInvalidArgument.WithDetails("character id is 0")
	}
	p, ok := c.byID[loc.CharacterID]
	if !ok {
		p = &Presence{CharacterID: loc.CharacterID}
		c.byID[loc.CharacterID] = p
	}
	if p.CharacterName != "" && !domain.NameEquals(p.CharacterName, loc.CharacterName) {
		delete(c.byName, strings.ToLower(p.CharacterName))
	}
	p.CharacterName = loc.CharacterName
	p.ZoneID = loc.ZoneID
	p.InstanceID = loc.InstanceID
	p.Online = loc.Online
	c.byName[strings.ToLower(loc.CharacterName)] = loc.CharacterID
	return nil
}

func (c *Coordinator) onCharacterNotice(ctx context.Context, _ protocol.Sender, m protocol.Message) error {
	n := m.(*protocol.CharacterNotice)
	p, ok := c.presenceByName(n.CharacterName)
	if !ok || !p.Online {
		return nil
	}
	return c.sendTo(ctx, p.Zone(), n)
}

func (c *Coordinator) onRemoveCharLockouts(ctx context.Context, _ protocol.Sender, m protocol.Message) error {
	r := m.(*protocol.RemoveCharLockouts)
	p, ok := c.presenceByName(r.CharacterName)
	if !ok || !p.Online {
		return nil
	}
	return c.sendTo(ctx, p.Zone(), r)
}

// onInstanceAccess routes an access change to the zone hosting the
// instance. An instance without a running zone has nobody to remove.
func (c *Coordinator) onInstanceAccess(ctx context.Context, _ protocol.Sender, m protocol.Message) error {
	var host protocol.Sender
	switch v := m.(type) {
	case *protocol.InstanceAccess:
		host = v.Host()
	case *protocol.InstanceAccessCleared:
		host = v.Host()
	}
	if host.InstanceID == 0 {
		return nil
	}
	if err := c.sendTo(ctx, host, m); err != nil && !errors.Is(err, domain.ErrLinkDown) {
		return err
	}
	return nil
}

// onOnlineMembersRequest answers the requesting zone only.
func (c *Coordinator) onOnlineMembersRequest(ctx context.Context, from protocol.Sender, m protocol.Message) error {
	req := m.(*protocol.OnlineMembersRequest)
	entries := make([]protocol.OnlineEntry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = e
		if p, ok := c.byID[e.CharacterID]; ok {
			entries[i].CharacterZoneID = p.ZoneID
			entries[i].CharacterInstanceID = p.InstanceID
			entries[i].CharacterOnline = p.Online
		}
	}
	return c.router.SendTo(ctx, from, protocol.NewOnlineMembersReply(entries))
}

// onAddPlayer forwards an invite to the target's zone, or bounces it to
// the requester's zone when the target is offline.
func (c *Coordinator) onAddPlayer(ctx context.Context, from protocol.Sender, m protocol.Message) error {
	req := m.(*protocol.AddPlayerRequest)
	if p, ok := c.presenceByName(req.TargetName); ok && p.Online {
		req.IsCharOnline = true
		return c.sendTo(ctx, p.Zone(), req)
	}
	req.IsCharOnline = false
	return c.sendTo(ctx, from, req)
}

// onMakeLeader forwards a transfer to the target's zone and carries the
// reply back to the requester.
func (c *Coordinator) onMakeLeader(ctx context.Context, from protocol.Sender, m protocol.Message) error {
	req := m.(*protocol.MakeLeaderRequest)
	if req.Reply {
		p, ok := c.presenceByName(req.RequesterName)
		if !ok || !p.Online {
			return nil
		}
		return c.sendTo(ctx, p.Zone(), req)
	}
	if p, ok := c.presenceByName(req.TargetName); ok && p.Online {
		return c.sendTo(ctx, p.Zone(), req)
	}
	req.Reply = true
	req.IsOnline = false
	return c.sendTo(ctx, from, req)
}

// ZoneDown marks every character of a disconnected zone offline and tells
// the remaining zones.
func (c *Coordinator) ZoneDown(ctx context.Context, zone protocol.Sender) {
	for _, p := range c.byID {
		if !p.Online || p.Zone() != zone {
			continue
		}
		p.Online = false
		e, ok := c.registry.FindByCharacterID(p.CharacterID)
		if !ok {
			continue
		}
		msg := &protocol.MemberStatus{ExpeditionID: e.ID, CharacterID: p.CharacterID, Status: domain.StatusOffline}
		if !c.applyMemberStatus(e, msg) {
			continue
		}
		if err := c.router.Broadcast(ctx, msg); err != nil {
			c.logger.Warn("status broadcast failed", "expedition_id", e.ID, "error", err)
		}
	}
	c.logger.Info("zone disconnected", "zone_id", zone.ZoneID, "instance_id", zone.InstanceID)
}

// ============================================================================
// Mirror
// ============================================================================

func (c *Coordinator) mirrorCreated(ctx context.Context, m protocol.Message) {
	id := m.(*protocol.ExpeditionCreated).ExpeditionID
	if _, ok := c.registry.Get(id); ok {
		return
	}
	exps, err := LoadExpeditions(ctx, c.store, []uint32{id})
	if err != nil {
		c.logger.Warn("created expedition not mirrored", "expedition_id", id, "error", err)
		return
	}
	for _, e := range exps {
		c.registry.Put(e)
	}
	c.observer.ExpeditionsCached(c.registry.Len())
}

func (c *Coordinator) mirrorMembersRemoved(_ context.Context, m protocol.Message) {
	if e, ok := c.registry.Get(m.(*protocol.MembersRemoved).ExpeditionID); ok {
		e.RemoveAllMembers()
		e.ClearLeader()
		delete(c.pendingLeader, e.ID)
	}
}

func (c *Coordinator) mirrorMemberChange(_ context.Context, m protocol.Message) {
	mc := m.(*protocol.MemberChange)
	e, ok := c.registry.Get(mc.ExpeditionID)
	if !ok {
		return
	}
	if mc.Removed {
		e.RemoveMember(mc.CharacterID)
		return
	}
	e.AddMember(domain.Member{CharacterID: mc.CharacterID, CharacterName: mc.CharacterName, Status: mc.Status})
}

func (c *Coordinator) mirrorMemberSwap(_ context.Context, m protocol.Message) {
	ms := m.(*protocol.MemberSwap)
	if e, ok := c.registry.Get(ms.ExpeditionID); ok {
		e.SwapMember(domain.Member{CharacterID: ms.AddCharacterID, CharacterName: ms.AddName, Status: ms.AddStatus}, ms.RemoveName)
	}
}

func (c *Coordinator) mirrorMemberStatus(_ context.Context, m protocol.Message) {
	ms := m.(*protocol.MemberStatus)
	if e, ok := c.registry.Get(ms.ExpeditionID); ok {
		c.applyMemberStatus(e, ms)
	}
}

// applyMemberStatus updates the mirror and schedules a new leader when the
// leader of a multi-member expedition went offline.
func (c *Coordinator) applyMemberStatus(e *domain.Expedition, ms *protocol.MemberStatus) bool {
	if !e.SetMemberStatus(ms.CharacterID, ms.Status) {
		return false
	}
	if !e.IsLeader(ms.CharacterID) {
		return true
	}
	if ms.Status == domain.StatusOffline && e.MemberCount() > 1 {
		c.pendingLeader[e.ID] = c.now().Add(c.leaderCooldown)
	} else if ms.Status.IsOnline() {
		delete(c.pendingLeader, e.ID)
	}
	return true
}

func (c *Coordinator) mirrorLeaderChanged(_ context.Context, m protocol.Message) {
	lc := m.(*protocol.LeaderChanged)
	if e, ok := c.registry.Get(lc.ExpeditionID); ok {
		e.SetLeader(domain.Member{CharacterID: lc.CharacterID, CharacterName: lc.CharacterName})
		delete(c.pendingLeader, e.ID)
	}
}

func (c *Coordinator) mirrorLockout(_ context.Context, m protocol.Message) {
	lu := m.(*protocol.LockoutUpdate)
	e, ok := c.registry.Get(lu.ExpeditionID)
	if !ok {
		return
	}
	if lu.Remove {
		e.DeleteLockout(lu.EventName)
		return
	}
	e.SetLockout(lu.Timer(e.UUID, e.Name))
}

func (c *Coordinator) mirrorSetting(_ context.Context, m protocol.Message) {
	switch s := m.(type) {
	case *protocol.LockState:
		if e, ok := c.registry.Get(s.ExpeditionID); ok {
			e.IsLocked = s.Enabled
		}
	case *protocol.ReplayOnJoin:
		if e, ok := c.registry.Get(s.ExpeditionID); ok {
			e.AddReplayOnJoin = s.Enabled
		}
	}
}

func (c *Coordinator) mirrorLocation(_ context.Context, m protocol.Message) {
	lu := m.(*protocol.LocationUpdate)
	if e, ok := c.registry.Get(lu.OwnerID); ok {
		e.Instance.SetLocation(lu.Kind, lu.Location)
	}
}

// ============================================================================
// Periodic processing
// ============================================================================

// Process deletes expired or memberless expeditions whose instance is
// empty, shortens memberless ones, sends expiry warnings and re-elects
// leaders that stayed offline past the cooldown.
//
// @req RQ-0106
func (c *Coordinator) Process(ctx context.Context) {
	now := c.now()
	for _, e := range c.registry.All() {
		occupied := c.instanceOccupied(e.Instance)
		if (e.MemberCount() == 0 || e.Instance.IsExpired(now)) && !occupied {
			c.deleteExpedition(ctx, e)
			continue
		}
		if e.MemberCount() == 0 {
			c.shutdownEarly(ctx, e, now)
		}
		c.warnExpiry(ctx, e, now)
	}
	c.electPendingLeaders(ctx, now)
}

func (c *Coordinator) instanceOccupied(b domain.InstanceBinding) bool {
	if !b.IsBound() {
		return false
	}
	for _, p := range c.byID {
		if p.Online && b.IsSameInstance(p.ZoneID, p.InstanceID) {
			return true
		}
	}
	return false
}

func (c *Coordinator) deleteExpedition(ctx context.Context, e *domain.Expedition) {
	if err := c.store.DeleteExpedition(ctx, e.ID); err != nil {
		c.logger.Error("expedition delete failed", "expedition_id", e.ID, "error", err)
		return
	}
	c.registry.Delete(e.ID)
	delete(c.warnedUntil, e.ID)
	delete(c.pendingLeader, e.ID)
	c.observer.ExpeditionsCached(c.registry.Len())
	if err := c.router.Broadcast(ctx, protocol.NewExpeditionDeleted(e.ID, protocol.Sender{})); err != nil {
		c.logger.Warn("delete broadcast failed", "expedition_id", e.ID, "error", err)
	}
	c.logger.Info("expedition deleted", "expedition_id", e.ID, "name", e.Name)
}

// shutdownEarly reduces a memberless expedition's remaining lifetime to the
// empty shutdown delay. It never extends it.
func (c *Coordinator) shutdownEarly(ctx context.Context, e *domain.Expedition, now time.Time) {
	b := e.Instance
	if !b.IsBound() {
		return
	}
	if b.Duration > 0 && b.Remaining(now) <= c.emptyShutdownDelay {
		return
	}
	d := now.Sub(b.StartTime) + c.emptyShutdownDelay
	d = d.Truncate(time.Second)
	if err := c.store.UpdateInstanceDuration(ctx, b.InstanceID, d); err != nil {
		c.logger.Warn("instance duration not updated", "instance_id", b.InstanceID, "error", err)
		return
	}
	e.Instance.Duration = d
	msg := &protocol.DurationUpdate{ExpeditionID: e.ID, Seconds: uint32(d / time.Second)}
	if err := c.router.Broadcast(ctx, msg); err != nil {
		c.logger.Warn("duration broadcast failed", "expedition_id", e.ID, "error", err)
	}
}

func (c *Coordinator) warnExpiry(ctx context.Context, e *domain.Expedition, now time.Time) {
	remaining := e.Instance.Remaining(now)
	if remaining <= 0 || now.Before(c.warnedUntil[e.ID]) {
		return
	}
	minutes := uint32(remaining/time.Minute) + 1
	if !expireWarningMinutes[minutes] {
		return
	}
	c.warnedUntil[e.ID] = now.Add(expireWarningCooldown)
	msg := &protocol.ExpireWarning{ExpeditionID: e.ID, MinutesRemaining: minutes}
	if err := c.router.Broadcast(ctx, msg); err != nil {
		c.logger.Warn("expire warning broadcast failed", "expedition_id", e.ID, "error", err)
	}
}

// electPendingLeaders prefers an online member, then any other member.
func (c *Coordinator) electPendingLeaders(ctx context.Context, now time.Time) {
	for id, due := range c.pendingLeader {
		if now.Before(due) {
			continue
		}
		delete(c.pendingLeader, id)
		e, ok := c.registry.Get(id)
		if !ok || e.Leader().Status.IsOnline() {
			continue
		}
		next, ok := c.onlineCandidate(e)
		if !ok {
			if next, ok = e.NextLeader(); !ok {
				continue
			}
		}
		if err := c.store.UpdateLeader(ctx, e.ID, next); err != nil {
			c.logger.Error("leader update failed", "expedition_id", e.ID, "error", err)
			continue
		}
		e.SetLeader(next)
		msg := &protocol.LeaderChanged{ExpeditionID: e.ID, CharacterID: next.CharacterID, CharacterName: next.CharacterName}
		if err := c.router.Broadcast(ctx, msg); err != nil {
			c.logger.Warn("leader broadcast failed", "expedition_id", e.ID, "error", err)
		}
	}
}

func (c *Coordinator) onlineCandidate(e *domain.Expedition) (domain.Member, bool) {
	for _, m := range e.Members() {
		if m.CharacterID != e.LeaderID() && m.Status.IsOnline() {
			return m, true
		}
	}
	return domain.Member{}, false
}
