package domain

import (
	"strings"
	"time"
)

// ReplayTimerName is the reserved event name of the replay lockout.
// A replay lockout blocks re-entering the expedition's instance itself.
const ReplayTimerName = "Replay Timer"

// LockoutTimer is an expiry record scoped to an expedition uuid and event.
//
// @design DS-0102
type LockoutTimer struct {
	// UUID is the correlation token of the expedition that granted the lockout.
	UUID string `json:"uuid"`

	// ExpeditionName is the display name lockouts are grouped under.
	ExpeditionName string `json:"expedition_name"`

	// EventName is the unique key inside an expedition's lockout set.
	EventName string `json:"event_name"`

	// ExpireTime is the absolute expiry.
	ExpireTime time.Time `json:"expire_time"`

	// Duration is used to restamp ExpireTime on Reset.
	Duration time.Duration `json:"duration"`
}

// NewLockoutTimer builds a timer expiring seconds after now.
func NewLockoutTimer(uuid, expeditionName, eventName string, seconds uint32, now time.Time) LockoutTimer {
	d := time.Duration(seconds) * time.Second
	return LockoutTimer{
		UUID:           uuid,
		ExpeditionName: expeditionName,
		EventName:      eventName,
		ExpireTime:     now.Add(d).Truncate(time.Second),
		Duration:       d,
	}
}

// IsExpired reports whether ExpireTime is at or before now.
func (t LockoutTimer) IsExpired(now time.Time) bool {
	return !t.ExpireTime.After(now)
}

// IsReplay reports whether this is the replay-category timer.
func (t LockoutTimer) IsReplay() bool {
	return t.EventName == ReplayTimerName
}

// IsFromExpedition reports whether the timer was granted by the given uuid.
func (t LockoutTimer) IsFromExpedition(uuid string) bool {
	return t.UUID == uuid
}

// Reset returns a copy restamped with a fresh expiry of Duration from now.
func (t LockoutTimer) Reset(now time.Time) LockoutTimer {
	t.ExpireTime = now.Add(t.Duration).Truncate(time.Second)
	return t
}

// SecondsRemaining returns the whole seconds left, or 0 when expired.
func (t LockoutTimer) SecondsRemaining(now time.Time) uint32 {
	if t.IsExpired(now) {
		return 0
	}
	return uint32(t.ExpireTime.Sub(now) / time.Second)
}

// LockoutKey identifies a character's lockout: one per expedition name and event.
type LockoutKey struct {
	ExpeditionName string
	EventName      string
}

// Key returns the character-scoped key of the timer.
func (t LockoutTimer) Key() LockoutKey {
	return LockoutKey{
		ExpeditionName: strings.ToLower(t.ExpeditionName),
		EventName:      strings.ToLower(t.EventName),
	}
}
