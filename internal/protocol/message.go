package protocol

import (
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
)

// Message is one variant of the closed set of cross-process messages.
// The unexported methods keep the set closed to this package.
type Message interface {
	Opcode() Opcode
	encode(w *writer)
	decode(r *reader)
}

// Sender identifies the zone process that originated a message.
// The zero value is the world coordinator.
type Sender struct {
	ZoneID     uint32
	InstanceID uint32
}

// From returns the originating identity.
func (s Sender) From() Sender { return s }

// IsWorld reports whether the message originated at the coordinator.
func (s Sender) IsWorld() bool { return s == Sender{} }

func (s Sender) encode(w *writer) {
	w.u32(s.ZoneID)
	w.u32(s.InstanceID)
}

func (s *Sender) decode(r *reader) {
	s.ZoneID = r.u32()
	s.InstanceID = r.u32()
}

// Originated is implemented by messages carrying a sender identity.
type Originated interface {
	Message
	From() Sender
}

// ZoneHello is the first frame a zone sends on its world link.
type ZoneHello struct {
	Sender
}

func (*ZoneHello) Opcode() Opcode     { return OpZoneHello }
func (m *ZoneHello) encode(w *writer) { m.Sender.encode(w) }
func (m *ZoneHello) decode(r *reader) { m.Sender.decode(r) }

// CharacterLocation reports where a character is, feeding the
// coordinator's directory.
type CharacterLocation struct {
	CharacterID   uint32
	CharacterName string
	ZoneID        uint32
	InstanceID    uint32
	Online        bool
}

func (*CharacterLocation) Opcode() Opcode { return OpCharacterLocation }

func (m *CharacterLocation) encode(w *writer) {
	w.u32(m.CharacterID)
	w.text(m.CharacterName, CharacterNameWidth)
	w.u32(m.ZoneID)
	w.u32(m.InstanceID)
	w.boolean(m.Online)
}

func (m *CharacterLocation) decode(r *reader) {
	m.CharacterID = r.u32()
	m.CharacterName = r.text(CharacterNameWidth)
	m.ZoneID = r.u32()
	m.InstanceID = r.u32()
	m.Online = r.boolean()
}

// CharacterNotice routes a chat notice to the zone hosting a character.
type CharacterNotice struct {
	CharacterName string
	Notice        uint16
	Arg1          string
	Arg2          string
}

func (*CharacterNotice) Opcode() Opcode { return OpCharacterNotice }

func (m *CharacterNotice) encode(w *writer) {
	w.text(m.CharacterName, CharacterNameWidth)
	w.u16(m.Notice)
	w.text(m.Arg1, NoticeArgWidth)
	w.text(m.Arg2, NoticeArgWidth)
}

func (m *CharacterNotice) decode(r *reader) {
	m.CharacterName = r.text(CharacterNameWidth)
	m.Notice = r.u16()
	m.Arg1 = r.text(NoticeArgWidth)
	m.Arg2 = r.text(NoticeArgWidth)
}

// expeditionNotice is the shared layout of created/deleted/removed-all.
type expeditionNotice struct {
	ExpeditionID uint32
	Sender
}

func (m *expeditionNotice) encode(w *writer) {
	w.u32(m.ExpeditionID)
	m.Sender.encode(w)
}

func (m *expeditionNotice) decode(r *reader) {
	m.ExpeditionID = r.u32()
	m.Sender.decode(r)
}

// ExpeditionCreated tells other zones to lazily cache a new expedition.
type ExpeditionCreated struct{ expeditionNotice }

// ExpeditionDeleted is sent by the coordinator when an expedition expired
// or emptied.
type ExpeditionDeleted struct{ expeditionNotice }

// MembersRemoved clears an expedition's roster.
type MembersRemoved struct{ expeditionNotice }

func (*ExpeditionCreated) Opcode() Opcode { return OpExpeditionCreated }
func (*ExpeditionDeleted) Opcode() Opcode { return OpExpeditionDeleted }
func (*MembersRemoved) Opcode() Opcode    { return OpMembersRemoved }

// NewExpeditionCreated builds a creation notice.
func NewExpeditionCreated(id uint32, from Sender) *ExpeditionCreated {
	return &ExpeditionCreated{expeditionNotice{ExpeditionID: id, Sender: from}}
}

// NewExpeditionDeleted builds a deletion notice.
func NewExpeditionDeleted(id uint32, from Sender) *ExpeditionDeleted {
	return &ExpeditionDeleted{expeditionNotice{ExpeditionID: id, Sender: from}}
}

// NewMembersRemoved builds a roster-cleared notice.
func NewMembersRemoved(id uint32, from Sender) *MembersRemoved {
	return &MembersRemoved{expeditionNotice{ExpeditionID: id, Sender: from}}
}

// MemberChange adds or removes one member.
type MemberChange struct {
	ExpeditionID uint32
	Sender
	CharacterID   uint32
	CharacterName string
	Status        domain.MemberStatus
	Removed       bool
}

func (*MemberChange) Opcode() Opcode { return OpMemberChange }

func (m *MemberChange) encode(w *writer) {
	w.u32(m.ExpeditionID)
	m.Sender.encode(w)
	w.u32(m.CharacterID)
	w.text(m.CharacterName, CharacterNameWidth)
	w.u8(uint8(m.Status))
	w.boolean(m.Removed)
}

func (m *MemberChange) decode(r *reader) {
	m.ExpeditionID = r.u32()
	m.Sender.decode(r)
	m.CharacterID = r.u32()
	m.CharacterName = r.text(CharacterNameWidth)
	m.Status = domain.MemberStatus(r.u8())
	m.Removed = r.boolean()
}

// MemberSwap replaces one member with another at the same position.
type MemberSwap struct {
	ExpeditionID uint32
	Sender
	AddCharacterID    uint32
	AddName           string
	AddStatus         domain.MemberStatus
	RemoveCharacterID uint32
	RemoveName        string
}

func (*MemberSwap) Opcode() Opcode { return OpMemberSwap }

func (m *MemberSwap) encode(w *writer) {
	w.u32(m.ExpeditionID)
	m.Sender.encode(w)
	w.u32(m.AddCharacterID)
	w.text(m.AddName, CharacterNameWidth)
	w.u8(uint8(m.AddStatus))
	w.u32(m.RemoveCharacterID)
	w.text(m.RemoveName, CharacterNameWidth)
}

func (m *MemberSwap) decode(r *reader) {
	m.ExpeditionID = r.u32()
	m.Sender.decode(r)
	m.AddCharacterID = r.u32()
	m.AddName = r.text(CharacterNameWidth)
	m.AddStatus = domain.MemberStatus(r.u8())
	m.RemoveCharacterID = r.u32()
	m.RemoveName = r.text(CharacterNameWidth)
}

// MemberStatus patches one member's status.
type MemberStatus struct {
	ExpeditionID uint32
	Sender
	CharacterID uint32
	Status      domain.MemberStatus
}

func (*MemberStatus) Opcode() Opcode { return OpMemberStatus }

func (m *MemberStatus) encode(w *writer) {
	w.u32(m.ExpeditionID)
	m.Sender.encode(w)
	w.u32(m.CharacterID)
	w.u8(uint8(m.Status))
}

func (m *MemberStatus) decode(r *reader) {
	m.ExpeditionID = r.u32()
	m.Sender.decode(r)
	m.CharacterID = r.u32()
	m.Status = domain.MemberStatus(r.u8())
}

// LeaderChanged announces a new leader.
type LeaderChanged struct {
	ExpeditionID uint32
	Sender
	CharacterID   uint32
	CharacterName string
}

func (*LeaderChanged) Opcode() Opcode { return OpLeaderChanged }

func (m *LeaderChanged) encode(w *writer) {
	w.u32(m.ExpeditionID)
	m.Sender.encode(w)
	w.u32(m.CharacterID)
	w.text(m.CharacterName, CharacterNameWidth)
}

func (m *LeaderChanged) decode(r *reader) {
	m.ExpeditionID = r.u32()
	m.Sender.decode(r)
	m.CharacterID = r.u32()
	m.CharacterName = r.text(CharacterNameWidth)
}

// LockoutUpdate sets or removes an expedition lockout.
type LockoutUpdate struct {
	ExpeditionID uint32
	EventName    string
	ExpireTime   int64 // unix seconds
	Duration     uint32
	Remove       bool
	Sender
}

func (*LockoutUpdate) Opcode() Opcode { return OpLockoutUpdate }

func (m *LockoutUpdate) encode(w *writer) {
	w.u32(m.ExpeditionID)
	w.text(m.EventName, EventNameWidth)
	w.i64(m.ExpireTime)
	w.u32(m.Duration)
	w.boolean(m.Remove)
	m.Sender.encode(w)
}

func (m *LockoutUpdate) decode(r *reader) {
	m.ExpeditionID = r.u32()
	m.EventName = r.text(EventNameWidth)
	m.ExpireTime = r.i64()
	m.Duration = r.u32()
	m.Remove = r.boolean()
	m.Sender.decode(r)
}

// Timer rebuilds the lockout carried by the message for an expedition.
func (m *LockoutUpdate) Timer(uuid, expeditionName string) domain.LockoutTimer {
	return domain.LockoutTimer{
		UUID:           uuid,
		ExpeditionName: expeditionName,
		EventName:      m.EventName,
		ExpireTime:     time.Unix(m.ExpireTime, 0),
		Duration:       time.Duration(m.Duration) * time.Second,
	}
}

// setting is the shared layout of boolean expedition settings.
type setting struct {
	ExpeditionID uint32
	Sender
	Enabled bool
}

func (m *setting) encode(w *writer) {
	w.u32(m.ExpeditionID)
	m.Sender.encode(w)
	w.boolean(m.Enabled)
}

func (m *setting) decode(r *reader) {
	m.ExpeditionID = r.u32()
	m.Sender.decode(r)
	m.Enabled = r.boolean()
}

// LockState toggles invite locking.
type LockState struct{ setting }

// ReplayOnJoin toggles the replay-on-join policy.
type ReplayOnJoin struct{ setting }

func (*LockState) Opcode() Opcode    { return OpLockState }
func (*ReplayOnJoin) Opcode() Opcode { return OpReplayOnJoin }

// NewLockState builds a lock toggle.
func NewLockState(id uint32, from Sender, enabled bool) *LockState {
	return &LockState{setting{ExpeditionID: id, Sender: from, Enabled: enabled}}
}

// NewReplayOnJoin builds a replay-on-join toggle.
func NewReplayOnJoin(id uint32, from Sender, enabled bool) *ReplayOnJoin {
	return &ReplayOnJoin{setting{ExpeditionID: id, Sender: from, Enabled: enabled}}
}

// LocationUpdate replaces one waypoint. Kind selects the opcode.
type LocationUpdate struct {
	Kind         domain.LocationKind
	OwnerID      uint32
	DzZoneID     uint32
	DzInstanceID uint32
	Sender
	Location domain.Location
}

func (m *LocationUpdate) Opcode() Opcode {
	switch m.Kind {
	case domain.LocationSafeReturn:
		return OpSafeReturn
	case domain.LocationZoneIn:
		return OpZoneIn
	default:
		return OpCompass
	}
}

func (m *LocationUpdate) encode(w *writer) {
	w.u32(m.OwnerID)
	w.u32(m.DzZoneID)
	w.u32(m.DzInstanceID)
	m.Sender.encode(w)
	w.u32(m.Location.ZoneID)
	w.f32(m.Location.X)
	w.f32(m.Location.Y)
	w.f32(m.Location.Z)
	w.f32(m.Location.Heading)
}

func (m *LocationUpdate) decode(r *reader) {
	m.OwnerID = r.u32()
	m.DzZoneID = r.u32()
	m.DzInstanceID = r.u32()
	m.Sender.decode(r)
	m.Location.ZoneID = r.u32()
	m.Location.X = r.f32()
	m.Location.Y = r.f32()
	m.Location.Z = r.f32()
	m.Location.Heading = r.f32()
}

// OnlineEntry is one row of the batched online-status query.
type OnlineEntry struct {
	ExpeditionID        uint32
	CharacterID         uint32
	CharacterZoneID     uint32
	CharacterInstanceID uint32
	CharacterOnline     bool
}

// onlineMembers is the shared variable-length layout of request and reply.
type onlineMembers struct {
	Sender
	Entries []OnlineEntry
}

func (m *onlineMembers) encode(w *writer) {
	m.Sender.encode(w)
	w.u32(uint32(len(m.Entries)))
	for _, e := range m.Entries {
		w.u32(e.ExpeditionID)
		w.u32(e.CharacterID)
		w.u32(e.CharacterZoneID)
		w.u32(e.CharacterInstanceID)
		w.boolean(e.CharacterOnline)
	}
}

// onlineEntrySize bounds the declared count against the payload length.
const onlineEntrySize = 17

func (m *onlineMembers) decode(r *reader) {
	m.Sender.decode(r)
	n := int(r.u32())
	if r.err || n > (len(r.data)-r.off)/onlineEntrySize {
		r.err = true
		return
	}
	m.Entries = make([]OnlineEntry, n)
	for i := range m.Entries {
		e := &m.Entries[i]
		e.ExpeditionID = r.u32()
		e.CharacterID = r.u32()
		e.CharacterZoneID = r.u32()
		e.CharacterInstanceID = r.u32()
		e.CharacterOnline = r.boolean()
	}
}

// OnlineMembersRequest asks the coordinator where the listed characters are.
type OnlineMembersRequest struct{ onlineMembers }

// OnlineMembersReply answers an OnlineMembersRequest to its sender only.
type OnlineMembersReply struct{ onlineMembers }

func (*OnlineMembersRequest) Opcode() Opcode { return OpOnlineMembersRequest }
func (*OnlineMembersReply) Opcode() Opcode   { return OpOnlineMembersReply }

// NewOnlineMembersRequest builds a batched status query.
func NewOnlineMembersRequest(from Sender, entries []OnlineEntry) *OnlineMembersRequest {
	return &OnlineMembersRequest{onlineMembers{Sender: from, Entries: entries}}
}

// NewOnlineMembersReply builds the coordinator's answer.
func NewOnlineMembersReply(entries []OnlineEntry) *OnlineMembersReply {
	return &OnlineMembersReply{onlineMembers{Entries: entries}}
}

// AddPlayerRequest forwards an invite to the zone hosting the target.
// An empty RemoveName is a plain invite, otherwise a swap.
type AddPlayerRequest struct {
	ExpeditionID  uint32
	IsCharOnline  bool
	RequesterName string
	TargetName    string
	RemoveName    string
	Sender
}

func (*AddPlayerRequest) Opcode() Opcode { return OpAddPlayer }

func (m *AddPlayerRequest) encode(w *writer) {
	w.u32(m.ExpeditionID)
	w.boolean(m.IsCharOnline)
	w.text(m.RequesterName, CharacterNameWidth)
	w.text(m.TargetName, CharacterNameWidth)
	w.text(m.RemoveName, CharacterNameWidth)
	m.Sender.encode(w)
}

func (m *AddPlayerRequest) decode(r *reader) {
	m.ExpeditionID = r.u32()
	m.IsCharOnline = r.boolean()
	m.RequesterName = r.text(CharacterNameWidth)
	m.TargetName = r.text(CharacterNameWidth)
	m.RemoveName = r.text(CharacterNameWidth)
	m.Sender.decode(r)
}

// MakeLeaderRequest forwards a leadership transfer to the target's zone
// and carries the outcome back to the requester when Reply is set.
type MakeLeaderRequest struct {
	ExpeditionID uint32
	Sender
	RequesterName string
	TargetName    string
	IsOnline      bool
	IsSuccess     bool
	Reply         bool
}

func (*MakeLeaderRequest) Opcode() Opcode { return OpMakeLeader }

func (m *MakeLeaderRequest) encode(w *writer) {
	w.u32(m.ExpeditionID)
	m.Sender.encode(w)
	w.text(m.RequesterName, CharacterNameWidth)
	w.text(m.TargetName, CharacterNameWidth)
	w.boolean(m.IsOnline)
	w.boolean(m.IsSuccess)
	w.boolean(m.Reply)
}

func (m *MakeLeaderRequest) decode(r *reader) {
	m.ExpeditionID = r.u32()
	m.Sender.decode(r)
	m.RequesterName = r.text(CharacterNameWidth)
	m.TargetName = r.text(CharacterNameWidth)
	m.IsOnline = r.boolean()
	m.IsSuccess = r.boolean()
	m.Reply = r.boolean()
}

// RemoveCharLockouts removes a character's lockouts for an expedition name.
// An empty EventName removes all of them.
type RemoveCharLockouts struct {
	CharacterName  string
	ExpeditionName string
	EventName      string
}

func (*RemoveCharLockouts) Opcode() Opcode { return OpRemoveCharLockouts }

func (m *RemoveCharLockouts) encode(w *writer) {
	w.text(m.CharacterName, CharacterNameWidth)
	w.text(m.ExpeditionName, ExpeditionNameWidth)
	w.text(m.EventName, EventNameWidth)
}

func (m *RemoveCharLockouts) decode(r *reader) {
	m.CharacterName = r.text(CharacterNameWidth)
	m.ExpeditionName = r.text(ExpeditionNameWidth)
	m.EventName = r.text(EventNameWidth)
}

// DurationUpdate sets an instance's total lifetime in seconds.
type DurationUpdate struct {
	ExpeditionID uint32
	Seconds      uint32
}

func (*DurationUpdate) Opcode() Opcode { return OpDurationUpdate }

func (m *DurationUpdate) encode(w *writer) {
	w.u32(m.ExpeditionID)
	w.u32(m.Seconds)
}

func (m *DurationUpdate) decode(r *reader) {
	m.ExpeditionID = r.u32()
	m.Seconds = r.u32()
}

// ExpireWarning tells members how many minutes remain.
type ExpireWarning struct {
	ExpeditionID     uint32
	MinutesRemaining uint32
}

func (*ExpireWarning) Opcode() Opcode { return OpExpireWarning }

func (m *ExpireWarning) encode(w *writer) {
	w.u32(m.ExpeditionID)
	w.u32(m.MinutesRemaining)
}

func (m *ExpireWarning) decode(r *reader) {
	m.ExpeditionID = r.u32()
	m.MinutesRemaining = r.u32()
}

// InstanceAccess grants or revokes one character's access to an instance.
// The zone hosting the instance stops or starts the character's removal
// timer.
type InstanceAccess struct {
	ZoneID      uint32
	InstanceID  uint32
	CharacterID uint32
	Removed     bool
}

func (*InstanceAccess) Opcode() Opcode { return OpInstanceAccess }

// Host returns the identity of the process serving the instance.
func (m *InstanceAccess) Host() Sender {
	return Sender{ZoneID: m.ZoneID, InstanceID: m.InstanceID}
}

func (m *InstanceAccess) encode(w *writer) {
	w.u32(m.ZoneID)
	w.u32(m.InstanceID)
	w.u32(m.CharacterID)
	w.boolean(m.Removed)
}

func (m *InstanceAccess) decode(r *reader) {
	m.ZoneID = r.u32()
	m.InstanceID = r.u32()
	m.CharacterID = r.u32()
	m.Removed = r.boolean()
}

// InstanceAccessCleared revokes every character's access to an instance.
type InstanceAccessCleared struct {
	ZoneID     uint32
	InstanceID uint32
}

func (*InstanceAccessCleared) Opcode() Opcode { return OpInstanceAccessCleared }

// Host returns the identity of the process serving the instance.
func (m *InstanceAccessCleared) Host() Sender {
	return Sender{ZoneID: m.ZoneID, InstanceID: m.InstanceID}
}

func (m *InstanceAccessCleared) encode(w *writer) {
	w.u32(m.ZoneID)
	w.u32(m.InstanceID)
}

func (m *InstanceAccessCleared) decode(r *reader) {
	m.ZoneID = r.u32()
	m.InstanceID = r.u32()
}
