package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

// TryCreate creates an expedition from a request made by requester.
//
// No expedition is cached when validation, instance allocation or
// persistence fails.
//
// @req RQ-0101
// @design DS-0103
func (z *Zone) TryCreate(ctx context.Context, requester *domain.Character, req *domain.CreateRequest) (*domain.Expedition, error) {
	if requester == nil || req == nil {
		return nil, domain.ErrMissingArgument.WithDetails("requester and request are required")
	}

	// 1. Business rules
	if err := z.validator.Validate(ctx, req); err != nil {
		z.logger.Info("expedition request rejected",
			"name", req.Name, "leader", req.Leader.CharacterName, "error", err)
		return nil, err
	}

	// 2. Instance binding
	now := z.now()
	binding := domain.InstanceBinding{
		InstanceID: req.InstanceID,
		ZoneID:     req.ZoneID,
		Compass:    req.Compass,
		SafeReturn: req.SafeReturn,
		ZoneIn:     req.ZoneIn,
		StartTime:  now.Truncate(time.Second),
		Duration:   req.Duration,
	}
	allocated := !binding.IsBound()
	if allocated {
		id, err := z.allocator.AllocateInstance(ctx, binding)
		if err != nil || id == 0 {
			z.notice(requester, NoticeCreateFailed, req.Name)
			z.logger.Warn("instance allocation failed", "name", req.Name, "zone", req.ZoneID, "error", err)
			return nil, domain.ErrInstanceUnavailable.WithDetails(req.Name).WithCause(err)
		}
		binding.InstanceID = id
	}

	// 3. Expedition row
	e := domain.NewExpedition(0, uuid.NewString(), req.Name, req.Leader, req.MinPlayers, req.MaxPlayers)
	e.AddReplayOnJoin = req.AddReplayOnJoin
	e.Instance = binding
	for _, m := range req.Members {
		m.Status = domain.StatusOffline
		if c, ok := z.clients.Character(m.CharacterID); ok {
			m.Status = z.presenceOf(c, e)
		}
		e.AddMember(m)
	}

	id, err := z.store.InsertExpedition(ctx, e)
	if err != nil {
		if allocated {
			z.releaseInstance(ctx, binding.InstanceID)
		}
		return nil, persistErr("insert expedition", err)
	}
	e.ID = id

	// 4. Members and lockouts
	for _, t := range req.Lockouts {
		t.UUID = e.UUID
		t.ExpeditionName = e.Name
		e.SetLockout(t)
	}
	if err := z.persistCreated(ctx, e); err != nil {
		if derr := z.store.DeleteExpedition(ctx, e.ID); derr != nil {
			z.logger.Error("rollback of partial expedition failed", "expedition_id", e.ID, "error", derr)
		} else if allocated {
			z.releaseInstance(ctx, binding.InstanceID)
		}
		return nil, err
	}

	// 5. Cache and local members
	z.registry.Put(e)
	z.observer.ExpeditionsCached(z.registry.Len())
	for _, m := range e.Members() {
		c, ok := z.clients.Character(m.CharacterID)
		if !ok {
			continue
		}
		c.ExpeditionID = e.ID
		for _, t := range e.Lockouts() {
			c.SetLockout(t)
		}
		z.sendFullUpdate(c, e)
	}

	// 6. Replication
	z.publish(ctx, protocol.NewExpeditionCreated(e.ID, z.self))
	z.sendMessage(ctx, e.Leader().CharacterName, NoticeExpeditionAvailable, e.Name)
	z.requestOnlineStatuses(ctx, []*domain.Expedition{e})

	z.logger.Info("expedition created",
		"expedition_id", e.ID, "uuid", e.UUID, "name", e.Name, "instance", e.Instance.InstanceID)
	return e, nil
}

func (z *Zone) releaseInstance(ctx context.Context, instanceID uint32) {
	if err := z.allocator.ReleaseInstance(ctx, instanceID); err != nil {
		z.logger.Error("release of unused instance failed", "instance", instanceID, "error", err)
	}
}

func (z *Zone) persistCreated(ctx context.Context, e *domain.Expedition) error {
	members := e.Members()
	if err := z.store.InsertMembers(ctx, e.ID, members); err != nil {
		return persistErr("insert members", err)
	}
	lockouts := e.Lockouts()
	if len(lockouts) == 0 {
		return nil
	}
	if err := z.store.InsertLockouts(ctx, e.ID, lockouts); err != nil {
		return persistErr("insert lockouts", err)
	}
	if err := z.store.InsertCharacterLockouts(ctx, members, lockouts, false); err != nil {
		return persistErr("insert member lockouts", err)
	}
	return nil
}
