package service

import (
	"context"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

// ============================================================================
// Instance access and removal timers
// ============================================================================

// sendInstanceAccess grants or revokes a character's access to the
// expedition's instance. The hosting zone applies it directly; any other
// zone routes it through the coordinator.
func (z *Zone) sendInstanceAccess(ctx context.Context, e *domain.Expedition, characterID uint32, removed bool) {
	if !e.Instance.IsBound() {
		return
	}
	if z.hostsInstance(e) {
		z.applyInstanceAccess(characterID, removed)
		return
	}
	z.publish(ctx, &protocol.InstanceAccess{
		ZoneID:      e.Instance.ZoneID,
		InstanceID:  e.Instance.InstanceID,
		CharacterID: characterID,
		Removed:     removed,
	})
}

// sendInstanceAccessCleared revokes everyone's access to the instance.
func (z *Zone) sendInstanceAccessCleared(ctx context.Context, e *domain.Expedition) {
	if !e.Instance.IsBound() {
		return
	}
	if z.hostsInstance(e) {
		z.scheduleAllRemovals()
		return
	}
	z.publish(ctx, &protocol.InstanceAccessCleared{
		ZoneID:     e.Instance.ZoneID,
		InstanceID: e.Instance.InstanceID,
	})
}

// applyInstanceAccess starts the removal timer of a character inside the
// hosted instance, or stops it when access is granted again.
func (z *Zone) applyInstanceAccess(characterID uint32, removed bool) {
	c, ok := z.clients.Character(characterID)
	if !ok {
		return
	}
	if !removed {
		c.CancelRemoval()
		return
	}
	if z.insideHostedInstance(c) {
		c.ScheduleRemoval(z.now().Add(z.removalDelay))
		z.logger.Debug("instance removal scheduled", "character_id", c.ID, "at", c.RemovalAt)
	}
}

// scheduleAllRemovals starts the removal timer of every character inside
// the hosted instance.
func (z *Zone) scheduleAllRemovals() {
	if z.self.InstanceID == 0 {
		return
	}
	at := z.now().Add(z.removalDelay)
	for _, c := range z.clients.InInstance(z.self.ZoneID, z.self.InstanceID) {
		c.ScheduleRemoval(at)
	}
}

func (z *Zone) insideHostedInstance(c *domain.Character) bool {
	return z.self.InstanceID != 0 && c.ZoneID == z.self.ZoneID && c.InstanceID == z.self.InstanceID
}

func (z *Zone) onInstanceAccess(_ context.Context, m *protocol.InstanceAccess) error {
	if m.Host() != z.self {
		return nil
	}
	z.applyInstanceAccess(m.CharacterID, m.Removed)
	return nil
}

func (z *Zone) onInstanceAccessCleared(_ context.Context, m *protocol.InstanceAccessCleared) error {
	if m.Host() != z.self {
		return nil
	}
	z.scheduleAllRemovals()
	return nil
}

// ProcessRemovals sends every character whose removal timer ran out to the
// safe return of the hosted instance and returns them. A character that
// became a member again in the meantime stays.
func (z *Zone) ProcessRemovals(ctx context.Context) []*domain.Character {
	if z.self.InstanceID == 0 {
		return nil
	}
	now := z.now()
	var due []*domain.Character
	for _, c := range z.clients.InInstance(z.self.ZoneID, z.self.InstanceID) {
		if c.RemovalDue(now) {
			due = append(due, c)
		}
	}
	if len(due) == 0 {
		return nil
	}

	host, hosted := z.hostedExpedition()
	var removed []*domain.Character
	for _, c := range due {
		c.CancelRemoval()
		if hosted && host.HasMember(c.ID) {
			continue
		}

		n := Notification{Kind: NotifyInstanceRemoval, LocationKind: domain.LocationSafeReturn}
		dest := c.ZoneID
		if hosted {
			n.ExpeditionID = host.ID
			n.Location = host.Instance.SafeReturn
			if n.Location.IsSet() {
				dest = n.Location.ZoneID
			}
		}
		z.notifier.Notify(c, n)
		if err := z.EnterInstance(ctx, c, dest, 0); err != nil {
			z.logger.Warn("instance removal not reported", "character_id", c.ID, "error", err)
		}
		z.logger.Info("character removed from instance", "character_id", c.ID, "to_zone_id", dest)
		removed = append(removed, c)
	}
	return removed
}

// hostedExpedition returns the cached expedition bound to this process.
func (z *Zone) hostedExpedition() (*domain.Expedition, bool) {
	for _, e := range z.registry.All() {
		if z.hostsInstance(e) {
			return e, true
		}
	}
	return nil, false
}
