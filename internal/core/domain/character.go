package domain

import (
	"sort"
	"time"
)

// PendingInvite marks an outstanding expedition invite on a character.
type PendingInvite struct {
	ExpeditionID   uint32
	InviterName    string
	SwapRemoveName string
}

// IsSwap reports whether accepting replaces an existing member.
func (p PendingInvite) IsSwap() bool {
	return p.SwapRemoveName != ""
}

// Character is the zone-local state of a connected client.
type Character struct {
	ID   uint32
	Name string

	// ExpeditionID is the single expedition the character belongs to, 0 for none.
	ExpeditionID uint32

	ZoneID     uint32
	InstanceID uint32

	// Invite is set while an invite awaits a response.
	Invite *PendingInvite

	// RemovalAt is when the character is sent out of the instance it lost
	// access to. Zero when no removal is scheduled.
	RemovalAt time.Time

	lockouts map[LockoutKey]LockoutTimer
}

// NewCharacter creates a character in the given zone.
func NewCharacter(id uint32, name string, zoneID, instanceID uint32) *Character {
	return &Character{
		ID:         id,
		Name:       name,
		ZoneID:     zoneID,
		InstanceID: instanceID,
		lockouts:   make(map[LockoutKey]LockoutTimer),
	}
}

// Member returns the roster entry for the character with the given status.
func (c *Character) Member(status MemberStatus) Member {
	return Member{CharacterID: c.ID, CharacterName: c.Name, Status: status}
}

// IsInInstance reports whether the character is inside the binding's instance.
func (c *Character) IsInInstance(b InstanceBinding) bool {
	return b.IsSameInstance(c.ZoneID, c.InstanceID)
}

// ScheduleRemoval starts the instance removal timer. A running timer is
// kept.
func (c *Character) ScheduleRemoval(at time.Time) {
	if c.RemovalAt.IsZero() {
		c.RemovalAt = at
	}
}

// CancelRemoval stops the instance removal timer.
func (c *Character) CancelRemoval() {
	c.RemovalAt = time.Time{}
}

// RemovalDue reports whether a scheduled removal has been reached.
func (c *Character) RemovalDue(now time.Time) bool {
	return !c.RemovalAt.IsZero() && !now.Before(c.RemovalAt)
}

// HasPendingInvite reports whether an invite is outstanding.
func (c *Character) HasPendingInvite() bool {
	return c.Invite != nil && c.Invite.ExpeditionID != 0
}

// Lockout returns the character's timer for an expedition event.
func (c *Character) Lockout(expeditionName, eventName string) (LockoutTimer, bool) {
	t, ok := c.lockouts[LockoutTimer{ExpeditionName: expeditionName, EventName: eventName}.Key()]
	return t, ok
}

// HasLockout reports an unexpired timer for the expedition event.
func (c *Character) HasLockout(expeditionName, eventName string, now time.Time) bool {
	t, ok := c.Lockout(expeditionName, eventName)
	return ok && !t.IsExpired(now)
}

// Lockouts returns all timers for an expedition name, ordered by event.
func (c *Character) Lockouts(expeditionName string) []LockoutTimer {
	var out []LockoutTimer
	for _, t := range c.lockouts {
		if NameEquals(t.ExpeditionName, expeditionName) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventName < out[j].EventName })
	return out
}

// SetLockout stores or overwrites a timer.
func (c *Character) SetLockout(t LockoutTimer) {
	c.lockouts[t.Key()] = t
}

// RemoveLockout deletes a timer. An empty event name deletes every timer
// of the expedition name.
func (c *Character) RemoveLockout(expeditionName, eventName string) int {
	if eventName == "" {
		n := 0
		for k, t := range c.lockouts {
			if NameEquals(t.ExpeditionName, expeditionName) {
				delete(c.lockouts, k)
				n++
			}
		}
		return n
	}
	key := LockoutTimer{ExpeditionName: expeditionName, EventName: eventName}.Key()
	if _, ok := c.lockouts[key]; !ok {
		return 0
	}
	delete(c.lockouts, key)
	return 1
}
