package service

import (
	"context"
	"strings"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

// Invite outcomes reported to the Observer.
const (
	InviteSent      = "sent"
	InviteForwarded = "forwarded"
	InviteConflict  = "conflict"
	InviteAccepted  = "accepted"
	InviteDeclined  = "declined"
	InviteStale     = "stale"
)

// expeditionOf returns the requester's expedition or ErrNotMember.
func (z *Zone) expeditionOf(c *domain.Character) (*domain.Expedition, error) {
	if c == nil {
		return nil, domain.ErrMissingArgument.WithDetails("character is required")
	}
	e, ok := z.Expedition(c)
	if !ok {
		return nil, domain.ErrNotMember.WithDetails(c.Name)
	}
	return e, nil
}

// confirmLeader reports whether requester leads e, telling them otherwise.
func (z *Zone) confirmLeader(e *domain.Expedition, requester *domain.Character) error {
	leader := e.Leader()
	if leader.CharacterID == 0 {
		z.notice(requester, NoticeUnableRetrieveLeader)
		return domain.ErrNotLeader.WithDetails("leader unset")
	}
	if leader.CharacterID != requester.ID {
		z.notice(requester, NoticeNotLeader, leader.CharacterName)
		return domain.ErrNotLeader.WithDetails(requester.Name)
	}
	return nil
}

// ============================================================================
// Invite
// ============================================================================

// AddPlayer invites targetName on behalf of the leader. A non-empty
// swapRemoveName makes the invite a swap with that member.
//
// @req RQ-0104
func (z *Zone) AddPlayer(ctx context.Context, requester *domain.Character, targetName, swapRemoveName string) error {
	e, err := z.expeditionOf(requester)
	if err != nil {
		return err
	}
	if err := z.confirmLeader(e, requester); err != nil {
		return err
	}
	if e.IsLocked {
		z.notice(requester, NoticeNotAllowingInvites, e.Name)
		return domain.ErrExpeditionLocked.WithDetails(e.Name)
	}
	if targetName == "" {
		z.notice(requester, NoticeInviteFail, targetName)
		return domain.ErrMissingArgument.WithDetails("target name is required")
	}
	if m, ok := e.MemberByName(targetName); ok && m.Status != domain.StatusOffline {
		z.notice(requester, NoticeInviteFail, targetName)
		return domain.ErrValidationRejected.WithDetails(targetName + " is already a member")
	}
	if swapRemoveName != "" && !e.HasMemberName(swapRemoveName) {
		z.notice(requester, NoticeCannotRemove, swapRemoveName)
		return domain.ErrNotMember.WithDetails(swapRemoveName)
	}

	if target, ok := z.clients.CharacterByName(targetName); ok {
		return z.tryInviteLocal(ctx, e, requester.Name, target, swapRemoveName)
	}

	z.observer.InviteOutcome(InviteForwarded)
	z.publish(ctx, &protocol.AddPlayerRequest{
		ExpeditionID:  e.ID,
		RequesterName: requester.Name,
		TargetName:    targetName,
		RemoveName:    swapRemoveName,
		Sender:        z.self,
	})
	return nil
}

// SwapPlayer invites addName to replace removeName.
func (z *Zone) SwapPlayer(ctx context.Context, requester *domain.Character, addName, removeName string) error {
	if removeName == "" {
		return domain.ErrMissingArgument.WithDetails("member to remove is required")
	}
	return z.AddPlayer(ctx, requester, addName, removeName)
}

// tryInviteLocal marks a pending invite on a character connected here.
func (z *Zone) tryInviteLocal(ctx context.Context, e *domain.Expedition, requesterName string, target *domain.Character, swapRemoveName string) error {
	if z.addConflicts(ctx, e, requesterName, target, swapRemoveName) {
		z.observer.InviteOutcome(InviteConflict)
		return domain.ErrValidationRejected.WithDetails("invite conflicts for " + target.Name)
	}

	if missing := z.missingLockouts(e, target); len(missing) > 0 {
		z.notice(target, NoticeLockoutWarning, e.Name, strings.Join(missing, ", "))
	}

	target.Invite = &domain.PendingInvite{
		ExpeditionID:   e.ID,
		InviterName:    requesterName,
		SwapRemoveName: swapRemoveName,
	}
	z.notifier.Notify(target, Notification{
		Kind:         NotifyInvite,
		ExpeditionID: e.ID,
		Expedition:   e,
		Name:         requesterName,
	})
	z.sendMessage(ctx, requesterName, NoticeInviteSent, target.Name)
	z.observer.InviteOutcome(InviteSent)
	return nil
}

// missingLockouts lists unexpired expedition events the character would
// receive by joining.
func (z *Zone) missingLockouts(e *domain.Expedition, c *domain.Character) []string {
	now := z.now()
	var missing []string
	for _, t := range e.Lockouts() {
		if t.IsExpired(now) || c.HasLockout(e.Name, t.EventName, now) {
			continue
		}
		if t.IsReplay() && !e.AddReplayOnJoin {
			continue
		}
		missing = append(missing, t.EventName)
	}
	return missing
}

// addConflicts runs every invite check, messaging the requester for each
// failure. Returns true if any check failed.
func (z *Zone) addConflicts(ctx context.Context, e *domain.Expedition, requesterName string, target *domain.Character, swapRemoveName string) bool {
	now := z.now()
	conflict := false

	// 1. Requester inside another expedition's instance
	if zoneID, instanceID := z.locationOf(requesterName); instanceID != 0 && !e.Instance.IsSameInstance(zoneID, instanceID) {
		owner, err := z.store.FindExpeditionIDByInstance(ctx, instanceID)
		if err != nil {
			z.logger.Warn("instance owner lookup failed", "instance_id", instanceID, "error", err)
		} else if owner != 0 && owner != e.ID {
			z.sendMessage(ctx, requesterName, NoticeLeaveZoneFirst, requesterName)
			conflict = true
		}
	}

	// 2. Target affiliation
	if target.ExpeditionID != 0 {
		if target.ExpeditionID == e.ID {
			z.sendMessage(ctx, requesterName, NoticeAlreadyMember, target.Name)
		} else {
			z.sendMessage(ctx, requesterName, NoticeAlreadyAssigned, target.Name)
		}
		conflict = true
	}

	// 3. Replay lockout of a character never admitted
	if !e.InHistory(target.ID) && target.HasLockout(e.Name, domain.ReplayTimerName, now) {
		z.sendMessage(ctx, requesterName, NoticeReplayTimer, target.Name, e.Name)
		conflict = true
	}

	// 4. Event lockouts the expedition does not have
	for _, t := range target.Lockouts(e.Name) {
		if t.IsReplay() || t.IsExpired(now) || e.HasLockout(t.EventName) {
			continue
		}
		z.sendMessage(ctx, requesterName, NoticeEventTimer, target.Name, t.EventName)
		conflict = true
	}

	// 5. Capacity, skipped for swaps
	if swapRemoveName == "" && e.IsFull() {
		z.sendMessage(ctx, requesterName, NoticeExceedMax, target.Name, itoa(e.MaxPlayers))
		conflict = true
	}

	// 6. Outstanding invite
	if target.HasPendingInvite() {
		if target.Invite.ExpeditionID == e.ID {
			z.sendMessage(ctx, requesterName, NoticePendingSame, target.Name)
		} else {
			z.sendMessage(ctx, requesterName, NoticePendingOther, target.Name)
		}
		conflict = true
	}

	return conflict
}

// InviteResponse answers the character's pending invite. Accepting
// re-validates every conflict since the world may have changed.
//
// @req RQ-0104
func (z *Zone) InviteResponse(ctx context.Context, c *domain.Character, accepted bool) error {
	if c == nil {
		return domain.ErrMissingArgument.WithDetails("character is required")
	}
	invite := c.Invite
	c.Invite = nil
	if invite == nil || invite.ExpeditionID == 0 {
		return domain.ErrStaleState.WithDetails("no pending invite")
	}

	e, ok := z.registry.Get(invite.ExpeditionID)
	if !ok {
		z.notice(c, NoticeInviteError)
		z.observer.InviteOutcome(InviteStale)
		return domain.ErrExpeditionNotFound.WithDetails("id " + itoa(invite.ExpeditionID))
	}
	leaderName := e.Leader().CharacterName

	if !accepted {
		z.sendMessage(ctx, leaderName, NoticeInviteDeclined, c.Name)
		z.observer.InviteOutcome(InviteDeclined)
		return nil
	}

	if e.IsLocked {
		z.notice(c, NoticeNotAllowingInvites, e.Name)
		z.observer.InviteOutcome(InviteStale)
		return domain.ErrExpeditionLocked.WithDetails(e.Name)
	}

	conflict := z.addConflicts(ctx, e, leaderName, c, invite.SwapRemoveName)
	if invite.IsSwap() && !e.HasMemberName(invite.SwapRemoveName) {
		conflict = true
	}
	if conflict {
		z.notice(c, NoticeInviteError)
		z.observer.InviteOutcome(InviteStale)
		return domain.ErrStaleState.WithDetails("invite conflicts at accept")
	}

	z.sendMessage(ctx, leaderName, NoticeInviteAccepted, c.Name)
	if err := z.grantJoinLockouts(ctx, e, c); err != nil {
		return err
	}

	member := c.Member(z.presenceOf(c, e))
	var err error
	if invite.IsSwap() {
		err = z.SwapMember(ctx, e, member, invite.SwapRemoveName)
	} else {
		err = z.AddMember(ctx, e, member)
	}
	if err != nil {
		return err
	}
	z.observer.InviteOutcome(InviteAccepted)
	return nil
}

// grantJoinLockouts gives a joining character the expedition lockouts it
// lacks. The replay timer is restamped and granted at once when the policy
// allows it; other unexpired events are queued until the character enters
// the instance, or granted now if it already is inside.
func (z *Zone) grantJoinLockouts(ctx context.Context, e *domain.Expedition, c *domain.Character) error {
	if err := z.store.DeletePendingLockouts(ctx, []uint32{c.ID}); err != nil {
		return persistErr("delete pending lockouts", err)
	}

	now := z.now()
	inside := c.IsInInstance(e.Instance)
	var grant, pending []domain.LockoutTimer
	for _, t := range e.Lockouts() {
		if c.HasLockout(e.Name, t.EventName, now) {
			continue
		}
		switch {
		case t.IsReplay():
			if e.AddReplayOnJoin {
				grant = append(grant, t.Reset(now))
			}
		case t.IsExpired(now):
		case inside:
			grant = append(grant, t)
		default:
			pending = append(pending, t)
		}
	}

	member := []domain.Member{c.Member(domain.StatusOnline)}
	if len(grant) > 0 {
		if err := z.store.InsertCharacterLockouts(ctx, member, grant, false); err != nil {
			return persistErr("grant lockouts", err)
		}
		for _, t := range grant {
			c.SetLockout(t)
		}
	}
	if len(pending) > 0 {
		if err := z.store.InsertCharacterLockouts(ctx, member, pending, true); err != nil {
			return persistErr("queue lockouts", err)
		}
	}
	return nil
}

// onAddPlayer continues an invite forwarded by the coordinator, or reports
// to the requester that the target is offline.
func (z *Zone) onAddPlayer(ctx context.Context, m *protocol.AddPlayerRequest) error {
	if !m.IsCharOnline {
		z.sendMessage(ctx, m.RequesterName, NoticeNotOnline, m.TargetName)
		z.sendMessage(ctx, m.RequesterName, NoticeInviteFail, m.TargetName)
		return nil
	}
	target, ok := z.clients.CharacterByName(m.TargetName)
	if !ok {
		z.sendMessage(ctx, m.RequesterName, NoticeNotOnline, m.TargetName)
		return nil
	}
	e, err := z.LoadOne(ctx, m.ExpeditionID)
	if err != nil {
		return nil
	}
	return z.tryInviteLocal(ctx, e, m.RequesterName, target, m.RemoveName)
}

// ============================================================================
// Leader commands
// ============================================================================

// MakeLeader transfers leadership to a named member.
//
// @req RQ-0104
func (z *Zone) MakeLeader(ctx context.Context, requester *domain.Character, targetName string) error {
	e, err := z.expeditionOf(requester)
	if err != nil {
		return err
	}
	if err := z.confirmLeader(e, requester); err != nil {
		return err
	}
	target, ok := e.MemberByName(targetName)
	if !ok {
		z.notice(requester, NoticeNotMember, targetName)
		return domain.ErrNotMember.WithDetails(targetName)
	}
	if e.IsLeader(target.CharacterID) {
		z.notice(requester, NoticeAlreadyLeader, target.CharacterName)
		return domain.ErrValidationRejected.WithDetails(target.CharacterName + " is already leader")
	}

	if _, local := z.clients.Character(target.CharacterID); local {
		return z.SetNewLeader(ctx, e, target)
	}
	z.publish(ctx, &protocol.MakeLeaderRequest{
		ExpeditionID:  e.ID,
		Sender:        z.self,
		RequesterName: requester.Name,
		TargetName:    target.CharacterName,
	})
	return nil
}

// onMakeLeader applies a forwarded transfer in the target's zone, or shows
// the outcome to the requester when it is a reply.
func (z *Zone) onMakeLeader(ctx context.Context, m *protocol.MakeLeaderRequest) error {
	if m.Reply {
		if !m.IsOnline {
			z.sendMessage(ctx, m.RequesterName, NoticeMakeLeaderNotOnline, m.TargetName)
		} else if !m.IsSuccess {
			z.sendMessage(ctx, m.RequesterName, NoticeNotMember, m.TargetName)
		}
		return nil
	}

	reply := &protocol.MakeLeaderRequest{
		ExpeditionID:  m.ExpeditionID,
		Sender:        z.self,
		RequesterName: m.RequesterName,
		TargetName:    m.TargetName,
		Reply:         true,
	}
	target, online := z.clients.CharacterByName(m.TargetName)
	reply.IsOnline = online
	if e, ok := z.registry.Get(m.ExpeditionID); ok && online {
		if member, ok := e.Member(target.ID); ok && z.SetNewLeader(ctx, e, member) == nil {
			reply.IsSuccess = true
		}
	}
	z.publish(ctx, reply)
	return nil
}

// RemovePlayer removes a named member on the leader's command.
func (z *Zone) RemovePlayer(ctx context.Context, requester *domain.Character, name string) error {
	e, err := z.expeditionOf(requester)
	if err != nil {
		return err
	}
	if err := z.confirmLeader(e, requester); err != nil {
		return err
	}
	if !e.HasMemberName(name) {
		z.notice(requester, NoticeNotMember, name)
		return domain.ErrNotMember.WithDetails(name)
	}
	return z.RemoveMember(ctx, e, name)
}

// Quit removes the character from its own expedition.
func (z *Zone) Quit(ctx context.Context, c *domain.Character) error {
	e, err := z.expeditionOf(c)
	if err != nil {
		return err
	}
	return z.RemoveMember(ctx, e, c.Name)
}

// KickAll removes every member on the leader's command.
func (z *Zone) KickAll(ctx context.Context, requester *domain.Character) error {
	e, err := z.expeditionOf(requester)
	if err != nil {
		return err
	}
	if err := z.confirmLeader(e, requester); err != nil {
		return err
	}
	return z.RemoveAllMembers(ctx, e)
}

// PlayerList sends the roster to the requester as a chat notice.
func (z *Zone) PlayerList(_ context.Context, requester *domain.Character) error {
	e, err := z.expeditionOf(requester)
	if err != nil {
		return err
	}
	names := make([]string, 0, e.MemberCount())
	for _, m := range e.Members() {
		names = append(names, m.CharacterName)
	}
	z.notice(requester, NoticePlayerList, strings.Join(names, ", "))
	return nil
}

// ============================================================================
// Settings
// ============================================================================

// SetLocked toggles whether invites are accepted.
func (z *Zone) SetLocked(ctx context.Context, e *domain.Expedition, locked bool) error {
	if err := z.store.UpdateLocked(ctx, e.ID, locked); err != nil {
		return persistErr("update locked", err)
	}
	z.processLockState(e, locked)
	z.publish(ctx, protocol.NewLockState(e.ID, z.self, locked))
	return nil
}

// SetReplayOnJoin toggles the join-time replay grant. With persist false
// only the replicas change, as for script-driven toggles.
func (z *Zone) SetReplayOnJoin(ctx context.Context, e *domain.Expedition, enabled, persist bool) error {
	if persist {
		if err := z.store.UpdateReplayOnJoin(ctx, e.ID, enabled); err != nil {
			return persistErr("update replay on join", err)
		}
	}
	z.processReplayOnJoin(e, enabled)
	z.publish(ctx, protocol.NewReplayOnJoin(e.ID, z.self, enabled))
	return nil
}

func (z *Zone) processLockState(e *domain.Expedition, locked bool) {
	if e.IsLocked == locked {
		return
	}
	e.IsLocked = locked
	if locked {
		z.messageMembers(e, NoticeLocked)
	} else {
		z.messageMembers(e, NoticeUnlocked)
	}
}

func (z *Zone) processReplayOnJoin(e *domain.Expedition, enabled bool) {
	if e.AddReplayOnJoin == enabled {
		return
	}
	e.AddReplayOnJoin = enabled
	if enabled {
		z.messageMembers(e, NoticeReplayOnJoinOn)
	} else {
		z.messageMembers(e, NoticeReplayOnJoinOff)
	}
}
