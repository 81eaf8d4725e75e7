package service

import (
	"context"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

// ============================================================================
// Roster mutations (persist, apply, broadcast)
// ============================================================================

// AddMember persists and applies a new member, then broadcasts it.
//
// @req RQ-0104
func (z *Zone) AddMember(ctx context.Context, e *domain.Expedition, m domain.Member) error {
	if !m.IsValid() {
		return domain.ErrInvalidArgument.WithDetails("member without id or name")
	}
	if e.HasMember(m.CharacterID) {
		return domain.ErrValidationRejected.WithDetails(m.CharacterName + " is already a member")
	}
	if err := z.store.InsertMember(ctx, e.ID, m); err != nil {
		return persistErr("insert member", err)
	}

	z.sendInstanceAccess(ctx, e, m.CharacterID, false)
	z.processMemberAdded(e, m)
	z.publish(ctx, &protocol.MemberChange{
		ExpeditionID:  e.ID,
		Sender:        z.self,
		CharacterID:   m.CharacterID,
		CharacterName: m.CharacterName,
		Status:        m.Status,
	})
	return nil
}

// RemoveMember removes a member by name and re-elects when it was leader.
// The removed character's instance removal timer is started.
//
// @req RQ-0104
func (z *Zone) RemoveMember(ctx context.Context, e *domain.Expedition, name string) error {
	m, ok := e.MemberByName(name)
	if !ok {
		return domain.ErrNotMember.WithDetails(name)
	}
	if err := z.store.UpdateMemberRemoved(ctx, e.ID, m.CharacterID); err != nil {
		return persistErr("remove member", err)
	}
	if err := z.store.DeletePendingLockouts(ctx, []uint32{m.CharacterID}); err != nil {
		z.logger.Warn("pending lockouts not cleared", "character_id", m.CharacterID, "error", err)
	}

	z.sendInstanceAccess(ctx, e, m.CharacterID, true)
	z.processMemberRemoved(e, m)
	z.publish(ctx, &protocol.MemberChange{
		ExpeditionID:  e.ID,
		Sender:        z.self,
		CharacterID:   m.CharacterID,
		CharacterName: m.CharacterName,
		Removed:       true,
	})

	if e.IsLeader(m.CharacterID) {
		return z.chooseNewLeader(ctx, e)
	}
	return nil
}

// SwapMember replaces the member named removeName with add at the same
// roster position. Both writes run in one store transaction.
//
// @req RQ-0104
func (z *Zone) SwapMember(ctx context.Context, e *domain.Expedition, add domain.Member, removeName string) error {
	removed, ok := e.MemberByName(removeName)
	if !ok {
		return domain.ErrNotMember.WithDetails(removeName)
	}
	if !add.IsValid() {
		return domain.ErrInvalidArgument.WithDetails("member without id or name")
	}
	if e.HasMember(add.CharacterID) {
		return domain.ErrValidationRejected.WithDetails(add.CharacterName + " is already a member")
	}
	if err := z.store.SwapMember(ctx, e.ID, add, removed.CharacterID); err != nil {
		return persistErr("swap member", err)
	}
	if err := z.store.DeletePendingLockouts(ctx, []uint32{removed.CharacterID}); err != nil {
		z.logger.Warn("pending lockouts not cleared", "character_id", removed.CharacterID, "error", err)
	}

	z.sendInstanceAccess(ctx, e, removed.CharacterID, true)
	z.sendInstanceAccess(ctx, e, add.CharacterID, false)
	z.processMemberSwapped(e, add, removed)
	z.publish(ctx, &protocol.MemberSwap{
		ExpeditionID:      e.ID,
		Sender:            z.self,
		AddCharacterID:    add.CharacterID,
		AddName:           add.CharacterName,
		AddStatus:         add.Status,
		RemoveCharacterID: removed.CharacterID,
		RemoveName:        removed.CharacterName,
	})

	if e.IsLeader(removed.CharacterID) {
		return z.chooseNewLeader(ctx, e)
	}
	return nil
}

// RemoveAllMembers clears the roster and starts the removal timer of
// everyone inside the instance. Leadership is left unset.
//
// @req RQ-0104
func (z *Zone) RemoveAllMembers(ctx context.Context, e *domain.Expedition) error {
	if err := z.store.UpdateAllMembersRemoved(ctx, e.ID); err != nil {
		return persistErr("remove all members", err)
	}
	if ids := memberIDs(e.Members()); len(ids) > 0 {
		if err := z.store.DeletePendingLockouts(ctx, ids); err != nil {
			z.logger.Warn("pending lockouts not cleared", "expedition_id", e.ID, "error", err)
		}
	}

	z.sendInstanceAccessCleared(ctx, e)
	z.processAllMembersRemoved(e, true)
	z.publish(ctx, protocol.NewMembersRemoved(e.ID, z.self))
	return nil
}

// UpdateMemberStatus changes one member's status. Unchanged statuses are
// not broadcast.
func (z *Zone) UpdateMemberStatus(ctx context.Context, e *domain.Expedition, characterID uint32, status domain.MemberStatus) error {
	if status == domain.StatusUnknown {
		return domain.ErrInvalidArgument.WithDetails("status unknown")
	}
	if !z.processMemberStatus(e, characterID, status) {
		return nil
	}
	z.publish(ctx, &protocol.MemberStatus{
		ExpeditionID: e.ID,
		Sender:       z.self,
		CharacterID:  characterID,
		Status:       status,
	})
	return nil
}

// chooseNewLeader promotes the first roster entry that is not the outgoing
// leader. With no candidate the leader is left unset.
func (z *Zone) chooseNewLeader(ctx context.Context, e *domain.Expedition) error {
	next, ok := e.NextLeader()
	if !ok {
		e.ClearLeader()
		return nil
	}
	return z.SetNewLeader(ctx, e, next)
}

// SetNewLeader persists and announces a leader that is a current member.
func (z *Zone) SetNewLeader(ctx context.Context, e *domain.Expedition, m domain.Member) error {
	if !e.HasMember(m.CharacterID) {
		return domain.ErrNotMember.WithDetails(m.CharacterName)
	}
	if err := z.store.UpdateLeader(ctx, e.ID, m); err != nil {
		return persistErr("update leader", err)
	}
	z.processLeaderChanged(e, m)
	z.publish(ctx, &protocol.LeaderChanged{
		ExpeditionID:  e.ID,
		Sender:        z.self,
		CharacterID:   m.CharacterID,
		CharacterName: m.CharacterName,
	})
	return nil
}

// ============================================================================
// In-memory transitions shared with replication handlers
// ============================================================================

func (z *Zone) processMemberAdded(e *domain.Expedition, m domain.Member) {
	if !e.AddMember(m) {
		return
	}
	for _, member := range e.Members() {
		c, ok := z.clients.Character(member.CharacterID)
		if !ok {
			continue
		}
		if c.ID == m.CharacterID {
			c.ExpeditionID = e.ID
			z.sendFullUpdate(c, e)
		} else {
			z.notifier.Notify(c, Notification{Kind: NotifyMemberAdded, ExpeditionID: e.ID, Member: m})
		}
		z.notice(c, NoticeMemberAdded, m.CharacterName, e.Name)
	}
}

func (z *Zone) processMemberRemoved(e *domain.Expedition, m domain.Member) {
	if _, ok := e.RemoveMember(m.CharacterID); !ok {
		return
	}
	z.notifyMembers(e, Notification{Kind: NotifyMemberRemoved, Name: m.CharacterName})
	z.messageMembers(e, NoticeRemoved, m.CharacterName, e.Name)
	z.detach(e, m.CharacterID, true)
}

func (z *Zone) processMemberSwapped(e *domain.Expedition, add, removed domain.Member) {
	if _, ok := e.SwapMember(add, removed.CharacterName); !ok {
		return
	}
	z.detach(e, removed.CharacterID, true)
	for _, member := range e.Members() {
		c, ok := z.clients.Character(member.CharacterID)
		if !ok {
			continue
		}
		if c.ID == add.CharacterID {
			c.ExpeditionID = e.ID
		}
		z.sendFullUpdate(c, e)
	}
	z.messageMembers(e, NoticeRemoved, removed.CharacterName, e.Name)
	z.messageMembers(e, NoticeMemberAdded, add.CharacterName, e.Name)
}

// processAllMembersRemoved clears the roster. With banner false the local
// members are detached silently.
func (z *Zone) processAllMembersRemoved(e *domain.Expedition, banner bool) {
	removed := e.RemoveAllMembers()
	e.ClearLeader()
	for _, m := range removed {
		c, ok := z.detachCharacter(e, m.CharacterID)
		if ok && banner {
			z.notice(c, NoticeAllRemoved, e.Name)
		}
	}
}

func (z *Zone) processMemberStatus(e *domain.Expedition, characterID uint32, status domain.MemberStatus) bool {
	if !e.SetMemberStatus(characterID, status) {
		return false
	}
	m, _ := e.Member(characterID)
	z.notifyMembers(e, Notification{Kind: NotifyMemberStatus, Member: m})
	return true
}

func (z *Zone) processLeaderChanged(e *domain.Expedition, m domain.Member) {
	e.SetLeader(m)
	z.notifyMembers(e, Notification{Kind: NotifyLeaderName, Name: m.CharacterName})
	z.messageMembers(e, NoticeNewLeader, m.CharacterName)
}

// detach clears the expedition pointer of a removed local character.
func (z *Zone) detach(e *domain.Expedition, characterID uint32, banner bool) {
	c, ok := z.detachCharacter(e, characterID)
	if ok && banner {
		z.notice(c, NoticeRemoved, c.Name, e.Name)
	}
}

func (z *Zone) detachCharacter(e *domain.Expedition, characterID uint32) (*domain.Character, bool) {
	c, ok := z.clients.Character(characterID)
	if !ok || c.ExpeditionID != e.ID {
		return nil, false
	}
	c.ExpeditionID = 0
	z.clearWindow(c)
	return c, true
}
