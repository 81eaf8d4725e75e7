package service

import (
	"context"
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

// AddLockout stamps a lockout expiring seconds from now and applies it.
//
// @req RQ-0105
func (z *Zone) AddLockout(ctx context.Context, e *domain.Expedition, eventName string, seconds uint32) error {
	return z.AddLockoutTimer(ctx, e, domain.NewLockoutTimer(e.UUID, e.Name, eventName, seconds, z.now()))
}

// AddLockoutTimer persists t, overwriting the expedition's timer for the
// same event, and grants it to every current member. The replay timer is
// also granted to non-members inside the instance when this zone hosts it.
//
// @req RQ-0105
func (z *Zone) AddLockoutTimer(ctx context.Context, e *domain.Expedition, t domain.LockoutTimer) error {
	if t.EventName == "" {
		return domain.ErrMissingArgument.WithDetails("event name is required")
	}
	if len(t.EventName) > domain.MaxEventNameLength {
		return domain.ErrInvalidArgument.WithDetails("event name exceeds 255 characters")
	}
	t.UUID = e.UUID
	t.ExpeditionName = e.Name

	if err := z.store.InsertLockout(ctx, e.ID, t); err != nil {
		return persistErr("insert lockout", err)
	}
	if members := e.Members(); len(members) > 0 {
		if err := z.store.InsertCharacterLockouts(ctx, members, []domain.LockoutTimer{t}, false); err != nil {
			return persistErr("insert member lockouts", err)
		}
	}

	if outsiders := z.processLockout(e, t); len(outsiders) > 0 {
		if err := z.store.InsertCharacterLockouts(ctx, outsiders, []domain.LockoutTimer{t}, false); err != nil {
			z.logger.Warn("replay lockout for non-members not persisted", "expedition_id", e.ID, "error", err)
		}
	}

	z.publish(ctx, &protocol.LockoutUpdate{
		ExpeditionID: e.ID,
		EventName:    t.EventName,
		ExpireTime:   t.ExpireTime.Unix(),
		Duration:     uint32(t.Duration / time.Second),
		Sender:       z.self,
	})
	return nil
}

// RemoveLockout deletes the expedition's timer for an event and the
// current members' copies. Removing an absent event is a no-op apart from
// the idempotent deletes.
//
// @req RQ-0105
func (z *Zone) RemoveLockout(ctx context.Context, e *domain.Expedition, eventName string) error {
	if err := z.store.DeleteLockout(ctx, e.ID, eventName); err != nil {
		return persistErr("delete lockout", err)
	}
	if ids := memberIDs(e.Members()); len(ids) > 0 {
		if err := z.store.DeleteCharacterLockouts(ctx, ids, e.Name, eventName); err != nil {
			return persistErr("delete member lockouts", err)
		}
	}

	z.processLockoutRemoved(e, eventName)
	z.publish(ctx, &protocol.LockoutUpdate{
		ExpeditionID: e.ID,
		EventName:    eventName,
		Remove:       true,
		Sender:       z.self,
	})
	return nil
}

// RemoveCharacterLockouts deletes a character's lockouts for an expedition
// name, all of them when eventName is empty. The character's zone is told
// through the coordinator when it is not connected here.
func (z *Zone) RemoveCharacterLockouts(ctx context.Context, characterName, expeditionName, eventName string) error {
	if characterName == "" || expeditionName == "" {
		return domain.ErrMissingArgument.WithDetails("character and expedition names are required")
	}
	if err := z.store.DeleteCharacterLockoutsByName(ctx, characterName, expeditionName, eventName); err != nil {
		return persistErr("delete character lockouts", err)
	}
	if c, ok := z.clients.CharacterByName(characterName); ok {
		c.RemoveLockout(expeditionName, eventName)
		return nil
	}
	z.publish(ctx, &protocol.RemoveCharLockouts{
		CharacterName:  characterName,
		ExpeditionName: expeditionName,
		EventName:      eventName,
	})
	return nil
}

// processLockout applies t in memory and returns the non-members inside
// the hosted instance that received the replay timer.
func (z *Zone) processLockout(e *domain.Expedition, t domain.LockoutTimer) []domain.Member {
	e.SetLockout(t)
	for _, m := range e.Members() {
		if c, ok := z.clients.Character(m.CharacterID); ok {
			c.SetLockout(t)
		}
	}
	if !t.IsReplay() || !z.hostsInstance(e) {
		return nil
	}
	var outsiders []domain.Member
	for _, c := range z.clients.InInstance(e.Instance.ZoneID, e.Instance.InstanceID) {
		if e.HasMember(c.ID) {
			continue
		}
		c.SetLockout(t)
		outsiders = append(outsiders, c.Member(domain.StatusOnline))
	}
	return outsiders
}

func (z *Zone) processLockoutRemoved(e *domain.Expedition, eventName string) {
	e.DeleteLockout(eventName)
	for _, m := range e.Members() {
		if c, ok := z.clients.Character(m.CharacterID); ok {
			c.RemoveLockout(e.Name, eventName)
		}
	}
}

// ============================================================================
// Presence
// ============================================================================

// Connect registers a character with this zone, loads its lockouts and
// refreshes its expedition membership status.
func (z *Zone) Connect(ctx context.Context, c *domain.Character) error {
	if c == nil {
		return domain.ErrMissingArgument.WithDetails("character is required")
	}
	timers, err := z.store.LoadCharacterLockouts(ctx, c.ID, false)
	if err != nil {
		return persistErr("load character lockouts", err)
	}
	for _, t := range timers {
		c.SetLockout(t)
	}
	z.clients.Add(c)

	if e, ok := z.registry.FindByCharacterID(c.ID); ok {
		c.ExpeditionID = e.ID
		z.sendFullUpdate(c, e)
	}
	return z.refreshPresence(ctx, c, true)
}

// Disconnect removes a character and marks it offline in its expedition.
func (z *Zone) Disconnect(ctx context.Context, characterID uint32) error {
	c, ok := z.clients.Remove(characterID)
	if !ok {
		return nil
	}
	c.Invite = nil
	return z.refreshPresence(ctx, c, false)
}

// EnterInstance moves a connected character. Entering the expedition's
// instance sets InDynamicZone and grants its queued lockouts.
//
// @req RQ-0105
func (z *Zone) EnterInstance(ctx context.Context, c *domain.Character, zoneID, instanceID uint32) error {
	if c == nil {
		return domain.ErrMissingArgument.WithDetails("character is required")
	}
	c.ZoneID = zoneID
	c.InstanceID = instanceID
	return z.refreshPresence(ctx, c, true)
}

// refreshPresence reports the character's location to the coordinator and
// updates its member status.
func (z *Zone) refreshPresence(ctx context.Context, c *domain.Character, online bool) error {
	z.publish(ctx, &protocol.CharacterLocation{
		CharacterID:   c.ID,
		CharacterName: c.Name,
		ZoneID:        c.ZoneID,
		InstanceID:    c.InstanceID,
		Online:        online,
	})

	e, ok := z.Expedition(c)
	if !ok {
		return nil
	}
	status := domain.StatusOffline
	if online {
		status = z.presenceOf(c, e)
	}
	if err := z.UpdateMemberStatus(ctx, e, c.ID, status); err != nil {
		return err
	}
	if status == domain.StatusInDynamicZone {
		return z.applyPendingLockouts(ctx, c, e)
	}
	return nil
}

// applyPendingLockouts grants the lockouts queued when the character joined.
func (z *Zone) applyPendingLockouts(ctx context.Context, c *domain.Character, e *domain.Expedition) error {
	pending, err := z.store.LoadCharacterLockouts(ctx, c.ID, true)
	if err != nil {
		return persistErr("load pending lockouts", err)
	}
	if len(pending) == 0 {
		return nil
	}
	if err := z.store.ActivatePendingLockouts(ctx, c.ID, e.UUID); err != nil {
		return persistErr("activate pending lockouts", err)
	}
	for _, t := range pending {
		if t.IsFromExpedition(e.UUID) {
			c.SetLockout(t)
		}
	}
	return nil
}
