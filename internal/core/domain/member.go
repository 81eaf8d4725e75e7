package domain

import "strings"

// MemberStatus is the presence of a roster member.
type MemberStatus uint8

// Member statuses. Values are part of the wire format.
const (
	StatusUnknown MemberStatus = iota
	StatusOffline
	StatusOnline
	StatusInDynamicZone
)

// String returns the status name.
func (s MemberStatus) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusOnline:
		return "online"
	case StatusInDynamicZone:
		return "in_dynamic_zone"
	default:
		return "unknown"
	}
}

// IsOnline reports whether the member is connected anywhere.
func (s MemberStatus) IsOnline() bool {
	return s == StatusOnline || s == StatusInDynamicZone
}

// Member is a roster entry.
type Member struct {
	CharacterID   uint32       `json:"character_id"`
	CharacterName string       `json:"character_name"`
	Status        MemberStatus `json:"status"`
}

// IsValid reports whether the member references a character.
func (m Member) IsValid() bool {
	return m.CharacterID != 0 && m.CharacterName != ""
}

// NameEquals compares member names case-insensitively.
func NameEquals(a, b string) bool {
	return strings.EqualFold(a, b)
}
