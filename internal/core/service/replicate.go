package service

import (
	"context"
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

type handlerFunc func(ctx context.Context, m protocol.Message) error

// on adapts a typed handler to the dispatch table.
func on[T protocol.Message](fn func(context.Context, T) error) handlerFunc {
	return func(ctx context.Context, m protocol.Message) error {
		t, ok := m.(T)
		if !ok {
			return domain.ErrMalformedMessage.WithDetails("unexpected type for " + m.Opcode().String())
		}
		return fn(ctx, t)
	}
}

func (z *Zone) buildHandlers() map[protocol.Opcode]handlerFunc {
	return map[protocol.Opcode]handlerFunc{
		protocol.OpCharacterNotice:    on(z.onCharacterNotice),
		protocol.OpExpeditionCreated:  on(z.onExpeditionCreated),
		protocol.OpExpeditionDeleted:  on(z.onExpeditionDeleted),
		protocol.OpMembersRemoved:     on(z.onMembersRemoved),
		protocol.OpMemberChange:       on(z.onMemberChange),
		protocol.OpMemberSwap:         on(z.onMemberSwap),
		protocol.OpMemberStatus:       on(z.onMemberStatus),
		protocol.OpLeaderChanged:      on(z.onLeaderChanged),
		protocol.OpLockoutUpdate:      on(z.onLockoutUpdate),
		protocol.OpLockState:          on(z.onLockState),
		protocol.OpReplayOnJoin:       on(z.onReplayOnJoin),
		protocol.OpCompass:            on(z.onLocationUpdate),
		protocol.OpSafeReturn:         on(z.onLocationUpdate),
		protocol.OpZoneIn:             on(z.onLocationUpdate),
		protocol.OpOnlineMembersReply: on(z.onOnlineMembersReply),
		protocol.OpAddPlayer:          on(z.onAddPlayer),
		protocol.OpMakeLeader:         on(z.onMakeLeader),
		protocol.OpRemoveCharLockouts: on(z.onRemoveCharLockouts),
		protocol.OpDurationUpdate:     on(z.onDurationUpdate),
		protocol.OpExpireWarning:      on(z.onExpireWarning),

		protocol.OpInstanceAccess:        on(z.onInstanceAccess),
		protocol.OpInstanceAccessCleared: on(z.onInstanceAccessCleared),
	}
}

// Handle applies a message received from the coordinator. Messages this
// zone originated are dropped. Handlers change only the in-memory replica.
//
// @req RQ-0106
// @design DS-0103
func (z *Zone) Handle(ctx context.Context, m protocol.Message) error {
	if m == nil {
		return domain.ErrMissingArgument.WithDetails("message is required")
	}
	op := m.Opcode()
	h, ok := z.handlers[op]
	if !ok {
		z.observer.MessageHandled(op, OutcomeIgnored)
		return domain.ErrUnknownOpcode.WithDetails(op.String() + " is not handled by zones")
	}
	if protocol.IsEcho(m, z.self) {
		z.observer.MessageHandled(op, OutcomeEcho)
		return nil
	}
	if err := h(ctx, m); err != nil {
		z.observer.MessageHandled(op, OutcomeError)
		return err
	}
	z.observer.MessageHandled(op, OutcomeApplied)
	return nil
}

// cached returns the expedition for a replicated message. Unknown ids are
// not an error since the expedition may not concern this zone.
func (z *Zone) cached(id uint32) (*domain.Expedition, bool) {
	return z.registry.Get(id)
}

func (z *Zone) onCharacterNotice(_ context.Context, m *protocol.CharacterNotice) error {
	c, ok := z.clients.CharacterByName(m.CharacterName)
	if !ok {
		return nil
	}
	z.notice(c, NoticeID(m.Notice), m.Arg1, m.Arg2)
	return nil
}

func (z *Zone) onExpeditionCreated(ctx context.Context, m *protocol.ExpeditionCreated) error {
	if _, err := z.LoadOne(ctx, m.ExpeditionID); err != nil {
		z.logger.Debug("created expedition not loaded", "expedition_id", m.ExpeditionID, "error", err)
	}
	return nil
}

// onExpeditionDeleted drops the expedition without removal banners.
func (z *Zone) onExpeditionDeleted(_ context.Context, m *protocol.ExpeditionDeleted) error {
	e, ok := z.cached(m.ExpeditionID)
	if !ok {
		return nil
	}
	z.processAllMembersRemoved(e, false)
	z.registry.Delete(e.ID)
	z.observer.ExpeditionsCached(z.registry.Len())
	z.logger.Info("expedition deleted", "expedition_id", e.ID)
	return nil
}

func (z *Zone) onMembersRemoved(_ context.Context, m *protocol.MembersRemoved) error {
	if e, ok := z.cached(m.ExpeditionID); ok {
		z.processAllMembersRemoved(e, true)
	}
	return nil
}

func (z *Zone) onMemberChange(_ context.Context, m *protocol.MemberChange) error {
	e, ok := z.cached(m.ExpeditionID)
	if !ok {
		return nil
	}
	member := domain.Member{CharacterID: m.CharacterID, CharacterName: m.CharacterName, Status: m.Status}
	if m.Removed {
		z.processMemberRemoved(e, member)
	} else {
		z.processMemberAdded(e, member)
	}
	return nil
}

func (z *Zone) onMemberSwap(_ context.Context, m *protocol.MemberSwap) error {
	e, ok := z.cached(m.ExpeditionID)
	if !ok {
		return nil
	}
	z.processMemberSwapped(e,
		domain.Member{CharacterID: m.AddCharacterID, CharacterName: m.AddName, Status: m.AddStatus},
		domain.Member{CharacterID: m.RemoveCharacterID, CharacterName: m.RemoveName})
	return nil
}

func (z *Zone) onMemberStatus(_ context.Context, m *protocol.MemberStatus) error {
	if e, ok := z.cached(m.ExpeditionID); ok {
		z.processMemberStatus(e, m.CharacterID, m.Status)
	}
	return nil
}

func (z *Zone) onLeaderChanged(_ context.Context, m *protocol.LeaderChanged) error {
	if e, ok := z.cached(m.ExpeditionID); ok {
		z.processLeaderChanged(e, domain.Member{CharacterID: m.CharacterID, CharacterName: m.CharacterName})
	}
	return nil
}

// onLockoutUpdate applies a lockout from another zone. Non-members inside
// an instance hosted here only exist in this zone, so their replay rows
// are written here.
func (z *Zone) onLockoutUpdate(ctx context.Context, m *protocol.LockoutUpdate) error {
	e, ok := z.cached(m.ExpeditionID)
	if !ok {
		return nil
	}
	if m.Remove {
		z.processLockoutRemoved(e, m.EventName)
		return nil
	}
	t := m.Timer(e.UUID, e.Name)
	if outsiders := z.processLockout(e, t); len(outsiders) > 0 {
		if err := z.store.InsertCharacterLockouts(ctx, outsiders, []domain.LockoutTimer{t}, false); err != nil {
			z.logger.Warn("replay lockout for non-members not persisted", "expedition_id", e.ID, "error", err)
		}
	}
	return nil
}

func (z *Zone) onLockState(_ context.Context, m *protocol.LockState) error {
	if e, ok := z.cached(m.ExpeditionID); ok {
		z.processLockState(e, m.Enabled)
	}
	return nil
}

func (z *Zone) onReplayOnJoin(_ context.Context, m *protocol.ReplayOnJoin) error {
	if e, ok := z.cached(m.ExpeditionID); ok {
		z.processReplayOnJoin(e, m.Enabled)
	}
	return nil
}

func (z *Zone) onLocationUpdate(_ context.Context, m *protocol.LocationUpdate) error {
	if e, ok := z.cached(m.OwnerID); ok {
		z.processLocation(e, m.Kind, m.Location)
	}
	return nil
}

func (z *Zone) onRemoveCharLockouts(_ context.Context, m *protocol.RemoveCharLockouts) error {
	if c, ok := z.clients.CharacterByName(m.CharacterName); ok {
		c.RemoveLockout(m.ExpeditionName, m.EventName)
	}
	return nil
}

func (z *Zone) onDurationUpdate(_ context.Context, m *protocol.DurationUpdate) error {
	e, ok := z.cached(m.ExpeditionID)
	if !ok {
		return nil
	}
	e.Instance.Duration = time.Duration(m.Seconds) * time.Second
	z.notifyMembers(e, Notification{Kind: NotifyInfo, Expedition: e})
	return nil
}

func (z *Zone) onExpireWarning(_ context.Context, m *protocol.ExpireWarning) error {
	if e, ok := z.cached(m.ExpeditionID); ok {
		z.notifyMembers(e, Notification{Kind: NotifyExpireWarning, Minutes: m.MinutesRemaining})
	}
	return nil
}
