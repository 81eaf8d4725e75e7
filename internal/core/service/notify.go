package service

import (
	"fmt"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
)

// NotificationKind selects the client-facing update to send.
type NotificationKind uint8

// Notification kinds. Every kind is an idempotent snapshot or patch.
const (
	NotifyInfo NotificationKind = iota + 1
	NotifyMemberList
	NotifyMemberAdded
	NotifyMemberRemoved
	NotifyMemberStatus
	NotifyLeaderName
	NotifyInvite
	NotifyLocation
	NotifyMessage
	NotifyExpireWarning
	NotifyInstanceRemoval
)

var notificationNames = map[NotificationKind]string{
	NotifyInfo:            "info",
	NotifyMemberList:      "member_list",
	NotifyMemberAdded:     "member_added",
	NotifyMemberRemoved:   "member_removed",
	NotifyMemberStatus:    "member_status",
	NotifyLeaderName:      "leader_name",
	NotifyInvite:          "invite",
	NotifyLocation:        "location",
	NotifyMessage:         "message",
	NotifyExpireWarning:   "expire_warning",
	NotifyInstanceRemoval: "instance_removal",
}

func (k NotificationKind) String() string {
	if s, ok := notificationNames[k]; ok {
		return s
	}
	return fmt.Sprintf("notification_%d", uint8(k))
}

// Notification is the content contract of one outbound client update.
// Fields not relevant to Kind are zero.
type Notification struct {
	Kind         NotificationKind
	ExpeditionID uint32

	// Expedition is a snapshot for Info and MemberList.
	Expedition *domain.Expedition

	// Member is the subject of MemberAdded and MemberStatus.
	Member domain.Member

	// Name is the removed member, the new leader or the inviter.
	Name string

	// Location is a waypoint update, or the destination of an
	// InstanceRemoval.
	LocationKind domain.LocationKind
	Location     domain.Location

	Notice  NoticeID
	Args    []string
	Minutes uint32
}

// Text renders a Message notification.
func (n Notification) Text() string {
	return n.Notice.Format(n.Args...)
}

// Notifier delivers updates to a connected character.
type Notifier interface {
	Notify(c *domain.Character, n Notification)
}

// NoticeID identifies a chat string of the closed notice catalog.
type NoticeID uint16

// Notice catalog.
const (
	NoticeCreateFailed NoticeID = iota + 1
	NoticeExpeditionAvailable
	NoticeNotLeader
	NoticeUnableRetrieveLeader
	NoticeNotAllowingInvites
	NoticeInviteFail
	NoticeCannotRemove
	NoticeLeaveZoneFirst
	NoticeAlreadyMember
	NoticeAlreadyAssigned
	NoticeReplayTimer
	NoticeEventTimer
	NoticeExceedMax
	NoticePendingSame
	NoticePendingOther
	NoticeInviteSent
	NoticeInviteDeclined
	NoticeInviteAccepted
	NoticeInviteError
	NoticeNotOnline
	NoticeLockoutWarning
	NoticeNotMember
	NoticeAlreadyLeader
	NoticeNewLeader
	NoticeMemberAdded
	NoticeRemoved
	NoticePlayerList
	NoticeLocked
	NoticeUnlocked
	NoticeReplayOnJoinOn
	NoticeReplayOnJoinOff
	NoticeMakeLeaderNotOnline
	NoticeAllRemoved
)

var noticeFormats = map[NoticeID]string{
	NoticeCreateFailed:         "Unable to create expedition %s: no instance is available.",
	NoticeExpeditionAvailable:  "Your expedition %s is now available.",
	NoticeNotLeader:            "You are not the expedition leader. The current leader is %s.",
	NoticeUnableRetrieveLeader: "Unable to retrieve the expedition leader.",
	NoticeNotAllowingInvites:   "The expedition %s is not allowing players to join.",
	NoticeInviteFail:           "Unable to invite %s to the expedition.",
	NoticeCannotRemove:         "%s is not a member of this expedition and cannot be removed.",
	NoticeLeaveZoneFirst:       "%s must leave the current instance before inviting.",
	NoticeAlreadyMember:        "%s is already a member of this expedition.",
	NoticeAlreadyAssigned:      "%s is already assigned to another expedition.",
	NoticeReplayTimer:          "%s has a replay timer for %s and cannot join.",
	NoticeEventTimer:           "%s has an event timer for %s that the expedition lacks.",
	NoticeExceedMax:            "%s cannot join: the expedition is full (%s players).",
	NoticePendingSame:          "%s already has a pending invite to this expedition.",
	NoticePendingOther:         "%s already has a pending invite to another expedition.",
	NoticeInviteSent:           "Sending an expedition invite to %s.",
	NoticeInviteDeclined:       "%s has declined your expedition invite.",
	NoticeInviteAccepted:       "%s has accepted your expedition invite.",
	NoticeInviteError:          "The expedition invite is no longer valid.",
	NoticeNotOnline:            "%s is not online.",
	NoticeLockoutWarning:       "Joining %s will give you lockouts you do not have: %s.",
	NoticeNotMember:            "%s is not a member of the expedition.",
	NoticeAlreadyLeader:        "%s is already the expedition leader.",
	NoticeNewLeader:            "%s is now the expedition leader.",
	NoticeMemberAdded:          "%s has been added to %s.",
	NoticeRemoved:              "%s has been removed from %s.",
	NoticePlayerList:           "Expedition members: %s",
	NoticeLocked:               "The expedition is now locked.",
	NoticeUnlocked:             "The expedition is now unlocked.",
	NoticeReplayOnJoinOn:       "New members will receive the replay timer on join.",
	NoticeReplayOnJoinOff:      "New members will not receive the replay timer on join.",
	NoticeMakeLeaderNotOnline:  "%s is not online and cannot be made leader.",
	NoticeAllRemoved:           "All members have been removed from %s.",
}

// Format renders the notice, padding missing arguments with empty strings.
func (id NoticeID) Format(args ...string) string {
	format, ok := noticeFormats[id]
	if !ok {
		return fmt.Sprintf("notice %d", uint16(id))
	}
	var vals []any
	for i := 0; i < countVerbs(format); i++ {
		if i < len(args) {
			vals = append(vals, args[i])
		} else {
			vals = append(vals, "")
		}
	}
	return fmt.Sprintf(format, vals...)
}

func countVerbs(format string) int {
	n := 0
	for i := 0; i+1 < len(format); i++ {
		if format[i] == '%' && format[i+1] == 's' {
			n++
		}
	}
	return n
}

// IsValid reports whether the id is part of the catalog.
func (id NoticeID) IsValid() bool {
	_, ok := noticeFormats[id]
	return ok
}
