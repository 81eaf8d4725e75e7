package service

import (
	"context"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

// SetLocation replaces one waypoint of the expedition's instance.
func (z *Zone) SetLocation(ctx context.Context, e *domain.Expedition, kind domain.LocationKind, loc domain.Location) error {
	if kind < domain.LocationCompass || kind > domain.LocationZoneIn {
		return domain.ErrInvalidArgument.WithDetails("unknown location kind")
	}
	if !e.Instance.IsBound() {
		return domain.ErrInstanceUnavailable.WithDetails(e.Name + " has no instance")
	}
	if err := z.store.UpdateLocation(ctx, e.Instance.InstanceID, kind, loc); err != nil {
		return persistErr("update "+kind.String(), err)
	}
	z.processLocation(e, kind, loc)
	z.publish(ctx, &protocol.LocationUpdate{
		Kind:         kind,
		OwnerID:      e.ID,
		DzZoneID:     e.Instance.ZoneID,
		DzInstanceID: e.Instance.InstanceID,
		Sender:       z.self,
		Location:     loc,
	})
	return nil
}

// SetCompass sets the waypoint shown on members' compasses.
func (z *Zone) SetCompass(ctx context.Context, e *domain.Expedition, loc domain.Location) error {
	return z.SetLocation(ctx, e, domain.LocationCompass, loc)
}

// SetSafeReturn sets where members are sent when removed from the instance.
func (z *Zone) SetSafeReturn(ctx context.Context, e *domain.Expedition, loc domain.Location) error {
	return z.SetLocation(ctx, e, domain.LocationSafeReturn, loc)
}

// SetZoneIn sets where members appear when entering the instance.
func (z *Zone) SetZoneIn(ctx context.Context, e *domain.Expedition, loc domain.Location) error {
	return z.SetLocation(ctx, e, domain.LocationZoneIn, loc)
}

func (z *Zone) processLocation(e *domain.Expedition, kind domain.LocationKind, loc domain.Location) {
	e.Instance.SetLocation(kind, loc)
	z.notifyMembers(e, Notification{Kind: NotifyLocation, LocationKind: kind, Location: loc})
}
