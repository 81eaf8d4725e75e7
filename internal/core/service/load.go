package service

import (
	"context"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

// ParseRows groups consecutive rows sharing an expedition id into
// expeditions. Every member row is recorded in the history; only current
// members join the roster, with status Offline.
func ParseRows(rows []ExpeditionRow) []*domain.Expedition {
	var (
		out []*domain.Expedition
		cur *domain.Expedition
	)
	for _, r := range rows {
		if cur == nil || cur.ID != r.ID {
			cur = domain.NewExpedition(r.ID, r.UUID, r.Name,
				domain.Member{CharacterID: r.LeaderID, CharacterName: r.LeaderName},
				r.MinPlayers, r.MaxPlayers)
			cur.AddReplayOnJoin = r.AddReplayOnJoin
			cur.IsLocked = r.IsLocked
			cur.Instance.InstanceID = r.InstanceID
			out = append(out, cur)
		}
		if r.MemberID == 0 {
			continue
		}
		cur.AddHistory(r.MemberID)
		if r.IsCurrentMember {
			cur.AddMember(domain.Member{
				CharacterID:   r.MemberID,
				CharacterName: r.MemberName,
				Status:        domain.StatusOffline,
			})
		}
	}
	return out
}

// LoadExpeditions reads expeditions with their bindings and lockouts.
// A nil ids slice loads all of them.
func LoadExpeditions(ctx context.Context, store Store, ids []uint32) ([]*domain.Expedition, error) {
	rows, err := store.LoadExpeditionRows(ctx, ids)
	if err != nil {
		return nil, persistErr("load expeditions", err)
	}
	exps := ParseRows(rows)
	if len(exps) == 0 {
		return nil, nil
	}

	expIDs := make([]uint32, 0, len(exps))
	var instIDs []uint32
	for _, e := range exps {
		expIDs = append(expIDs, e.ID)
		if e.Instance.IsBound() {
			instIDs = append(instIDs, e.Instance.InstanceID)
		}
	}

	var bindings map[uint32]domain.InstanceBinding
	if len(instIDs) > 0 {
		bindings, err = store.LoadInstanceBindings(ctx, instIDs)
		if err != nil {
			return nil, persistErr("load instances", err)
		}
	}
	lockouts, err := store.LoadLockouts(ctx, expIDs)
	if err != nil {
		return nil, persistErr("load lockouts", err)
	}

	for _, e := range exps {
		if b, ok := bindings[e.Instance.InstanceID]; ok {
			e.Instance = b
		}
		for _, t := range lockouts[e.ID] {
			t.UUID = e.UUID
			t.ExpeditionName = e.Name
			e.SetLockout(t)
		}
	}
	return exps, nil
}

// LoadAll replaces the registry content with every persisted expedition.
//
// @req RQ-0103
func (z *Zone) LoadAll(ctx context.Context) error {
	z.registry.Clear()
	exps, err := LoadExpeditions(ctx, z.store, nil)
	if err != nil {
		return err
	}
	z.cache(ctx, exps)
	z.logger.Info("expeditions loaded", "count", len(exps))
	return nil
}

// LoadOne caches a single expedition. An already cached expedition is
// returned as is.
func (z *Zone) LoadOne(ctx context.Context, id uint32) (*domain.Expedition, error) {
	if id == 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("expedition id is 0")
	}
	if e, ok := z.registry.Get(id); ok {
		return e, nil
	}
	exps, err := LoadExpeditions(ctx, z.store, []uint32{id})
	if err != nil {
		return nil, err
	}
	if len(exps) == 0 {
		return nil, domain.ErrExpeditionNotFound.WithDetails("id " + itoa(id))
	}
	z.cache(ctx, exps)
	return exps[0], nil
}

// FindByInstanceID resolves the expedition owning an instance through the
// store, since the mapping may have left the cache.
func (z *Zone) FindByInstanceID(ctx context.Context, instanceID uint32) (*domain.Expedition, error) {
	if instanceID == 0 {
		return nil, domain.ErrExpeditionNotFound.WithDetails("instance 0")
	}
	id, err := z.store.FindExpeditionIDByInstance(ctx, instanceID)
	if err != nil {
		return nil, persistErr("find by instance", err)
	}
	if id == 0 {
		return nil, domain.ErrExpeditionNotFound.WithDetails("instance " + itoa(instanceID))
	}
	return z.LoadOne(ctx, id)
}

// cache puts loaded expeditions into the registry, binds local members and
// asks the coordinator for the status of everyone else.
func (z *Zone) cache(ctx context.Context, exps []*domain.Expedition) {
	for _, e := range exps {
		z.registry.Put(e)
		for _, m := range e.Members() {
			c, ok := z.clients.Character(m.CharacterID)
			if !ok {
				continue
			}
			c.ExpeditionID = e.ID
			e.SetMemberStatus(c.ID, z.presenceOf(c, e))
		}
	}
	z.observer.ExpeditionsCached(z.registry.Len())
	z.requestOnlineStatuses(ctx, exps)
}

// requestOnlineStatuses publishes one batched query for every member of
// every given expedition.
func (z *Zone) requestOnlineStatuses(ctx context.Context, exps []*domain.Expedition) {
	var entries []protocol.OnlineEntry
	for _, e := range exps {
		for _, m := range e.Members() {
			entries = append(entries, protocol.OnlineEntry{ExpeditionID: e.ID, CharacterID: m.CharacterID})
		}
	}
	if len(entries) == 0 {
		return
	}
	z.publish(ctx, protocol.NewOnlineMembersRequest(z.self, entries))
}

// onOnlineMembersReply applies the coordinator's answer, correlated by
// expedition and character id.
func (z *Zone) onOnlineMembersReply(_ context.Context, m *protocol.OnlineMembersReply) error {
	for _, entry := range m.Entries {
		e, ok := z.registry.Get(entry.ExpeditionID)
		if !ok {
			continue
		}
		status := domain.StatusOffline
		if entry.CharacterOnline {
			status = domain.StatusOnline
			if e.Instance.IsSameInstance(entry.CharacterZoneID, entry.CharacterInstanceID) {
				status = domain.StatusInDynamicZone
			}
		}
		// Local characters are authoritative here.
		if _, local := z.clients.Character(entry.CharacterID); local {
			continue
		}
		z.processMemberStatus(e, entry.CharacterID, status)
	}
	return nil
}
