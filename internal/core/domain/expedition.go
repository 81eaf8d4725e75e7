package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Expedition constraints.
const (
	MaxExpeditionNameLength = 127
	MaxCharacterNameLength  = 63
	MaxEventNameLength      = 255
)

// Expedition is a temporary group bound to an exclusive instance.
//
// It is not safe for concurrent use; callers serialize access through the
// owning process's single writer.
//
// @req RQ-0101
// @design DS-0101
type Expedition struct {
	ID   uint32 `json:"id"`
	UUID string `json:"uuid"`
	Name string `json:"name"`

	MinPlayers uint32 `json:"min_players"`
	MaxPlayers uint32 `json:"max_players"`

	IsLocked        bool `json:"is_locked"`
	AddReplayOnJoin bool `json:"add_replay_on_join"`

	Instance InstanceBinding `json:"instance"`

	leader   Member
	members  []Member
	history  map[uint32]struct{}
	lockouts map[string]LockoutTimer
}

// NewExpedition creates an expedition with an empty roster.
func NewExpedition(id uint32, uuid, name string, leader Member, minPlayers, maxPlayers uint32) *Expedition {
	return &Expedition{
		ID:              id,
		UUID:            uuid,
		Name:            name,
		MinPlayers:      minPlayers,
		MaxPlayers:      maxPlayers,
		AddReplayOnJoin: true,
		leader:          leader,
		history:         make(map[uint32]struct{}),
		lockouts:        make(map[string]LockoutTimer),
	}
}

// Validate checks the bounds invariant max >= min >= 1.
func (e *Expedition) Validate() error {
	var violations []string

	if e.Name == "" {
		violations = append(violations, "name is required")
	}
	if len(e.Name) > MaxExpeditionNameLength {
		violations = append(violations, "name exceeds 127 characters")
	}
	if e.MinPlayers < 1 {
		violations = append(violations, "min_players must be at least 1")
	}
	if e.MaxPlayers < e.MinPlayers {
		violations = append(violations, "max_players must be >= min_players")
	}

	if len(violations) > 0 {
		return ErrValidationRejected.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Leader returns the current leader. Zero value when unset.
func (e *Expedition) Leader() Member {
	if m, ok := e.Member(e.leader.CharacterID); ok {
		return m
	}
	return e.leader
}

// LeaderID returns the leader character id, 0 when unset.
func (e *Expedition) LeaderID() uint32 {
	return e.leader.CharacterID
}

// IsLeader reports whether the character leads the expedition.
func (e *Expedition) IsLeader(characterID uint32) bool {
	return characterID != 0 && e.leader.CharacterID == characterID
}

// SetLeader replaces the leader reference.
func (e *Expedition) SetLeader(m Member) {
	e.leader = Member{CharacterID: m.CharacterID, CharacterName: m.CharacterName}
}

// ClearLeader leaves leadership unset.
func (e *Expedition) ClearLeader() {
	e.leader = Member{}
}

// Members returns a copy of the roster in insertion order.
func (e *Expedition) Members() []Member {
	out := make([]Member, len(e.members))
	copy(out, e.members)
	return out
}

// MemberCount returns the roster size.
func (e *Expedition) MemberCount() int {
	return len(e.members)
}

// IsFull reports whether the roster reached MaxPlayers.
func (e *Expedition) IsFull() bool {
	return uint32(len(e.members)) >= e.MaxPlayers
}

func (e *Expedition) indexOf(characterID uint32) int {
	for i, m := range e.members {
		if m.CharacterID == characterID {
			return i
		}
	}
	return -1
}

func (e *Expedition) indexOfName(name string) int {
	for i, m := range e.members {
		if NameEquals(m.CharacterName, name) {
			return i
		}
	}
	return -1
}

// Member returns the roster entry for a character id.
func (e *Expedition) Member(characterID uint32) (Member, bool) {
	if i := e.indexOf(characterID); i >= 0 {
		return e.members[i], true
	}
	return Member{}, false
}

// MemberByName returns the roster entry with a case-insensitive name match.
func (e *Expedition) MemberByName(name string) (Member, bool) {
	if i := e.indexOfName(name); i >= 0 {
		return e.members[i], true
	}
	return Member{}, false
}

// HasMember reports roster membership by id.
func (e *Expedition) HasMember(characterID uint32) bool {
	return e.indexOf(characterID) >= 0
}

// HasMemberName reports roster membership by name.
func (e *Expedition) HasMemberName(name string) bool {
	return e.indexOfName(name) >= 0
}

// AddMember appends a member and records it in the history.
// Returns false if the character is already on the roster.
func (e *Expedition) AddMember(m Member) bool {
	if !m.IsValid() || e.HasMember(m.CharacterID) {
		return false
	}
	if m.Status == StatusUnknown {
		m.Status = StatusOffline
	}
	e.members = append(e.members, m)
	e.AddHistory(m.CharacterID)
	return true
}

// AddHistory records a character as having been admitted at some point.
func (e *Expedition) AddHistory(characterID uint32) {
	if characterID != 0 {
		e.history[characterID] = struct{}{}
	}
}

// InHistory reports whether the character was ever admitted.
func (e *Expedition) InHistory(characterID uint32) bool {
	_, ok := e.history[characterID]
	return ok
}

// RemoveMember drops a member by id, preserving the order of the rest.
func (e *Expedition) RemoveMember(characterID uint32) (Member, bool) {
	i := e.indexOf(characterID)
	if i < 0 {
		return Member{}, false
	}
	removed := e.members[i]
	e.members = append(e.members[:i], e.members[i+1:]...)
	return removed, true
}

// SwapMember replaces the member named removeName with add at the same
// roster position. It fails if removeName is not a member or add already is.
func (e *Expedition) SwapMember(add Member, removeName string) (Member, bool) {
	i := e.indexOfName(removeName)
	if i < 0 || !add.IsValid() || e.HasMember(add.CharacterID) {
		return Member{}, false
	}
	if add.Status == StatusUnknown {
		add.Status = StatusOffline
	}
	removed := e.members[i]
	e.members[i] = add
	e.AddHistory(add.CharacterID)
	return removed, true
}

// RemoveAllMembers clears the roster and returns the removed entries.
func (e *Expedition) RemoveAllMembers() []Member {
	removed := e.members
	e.members = nil
	return removed
}

// SetMemberStatus updates one member's status. Returns false if the
// character is not a member or the status did not change.
func (e *Expedition) SetMemberStatus(characterID uint32, status MemberStatus) bool {
	i := e.indexOf(characterID)
	if i < 0 || e.members[i].Status == status {
		return false
	}
	e.members[i].Status = status
	return true
}

// NextLeader returns the first roster entry that is not the current leader.
func (e *Expedition) NextLeader() (Member, bool) {
	for _, m := range e.members {
		if m.CharacterID != e.leader.CharacterID {
			return m, true
		}
	}
	return Member{}, false
}

// Lockouts returns the lockout set ordered by event name.
func (e *Expedition) Lockouts() []LockoutTimer {
	out := make([]LockoutTimer, 0, len(e.lockouts))
	for _, t := range e.lockouts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventName < out[j].EventName })
	return out
}

// Lockout returns the timer for an event.
func (e *Expedition) Lockout(eventName string) (LockoutTimer, bool) {
	t, ok := e.lockouts[eventName]
	return t, ok
}

// HasLockout reports whether the expedition records a timer for the event.
func (e *Expedition) HasLockout(eventName string) bool {
	_, ok := e.lockouts[eventName]
	return ok
}

// SetLockout inserts or overwrites the timer for its event.
func (e *Expedition) SetLockout(t LockoutTimer) {
	e.lockouts[t.EventName] = t
}

// DeleteLockout removes the timer for an event.
func (e *Expedition) DeleteLockout(eventName string) bool {
	if _, ok := e.lockouts[eventName]; !ok {
		return false
	}
	delete(e.lockouts, eventName)
	return true
}

// Clone returns a deep copy.
func (e *Expedition) Clone() *Expedition {
	c := *e
	c.members = e.Members()
	c.history = make(map[uint32]struct{}, len(e.history))
	for id := range e.history {
		c.history[id] = struct{}{}
	}
	c.lockouts = make(map[string]LockoutTimer, len(e.lockouts))
	for k, v := range e.lockouts {
		c.lockouts[k] = v
	}
	return &c
}

// String implements fmt.Stringer for log lines.
func (e *Expedition) String() string {
	return fmt.Sprintf("expedition %d %q (%d/%d, leader %q)",
		e.ID, e.Name, len(e.members), e.MaxPlayers, e.leader.CharacterName)
}
