package domain

import "time"

// Location is a saved waypoint: a zone plus position and heading.
type Location struct {
	ZoneID  uint32  `json:"zone_id"`
	X       float32 `json:"x"`
	Y       float32 `json:"y"`
	Z       float32 `json:"z"`
	Heading float32 `json:"heading"`
}

// IsSet reports whether the waypoint points at a zone.
func (l Location) IsSet() bool {
	return l.ZoneID != 0
}

// LocationKind selects one of the three waypoints of a binding.
type LocationKind uint8

// Waypoint kinds.
const (
	LocationCompass LocationKind = iota + 1
	LocationSafeReturn
	LocationZoneIn
)

// String returns the persistence column prefix of the kind.
func (k LocationKind) String() string {
	switch k {
	case LocationCompass:
		return "compass"
	case LocationSafeReturn:
		return "safe_return"
	case LocationZoneIn:
		return "zone_in"
	default:
		return "unknown"
	}
}

// InstanceBinding associates an expedition with its exclusive instance.
//
// @design DS-0102
type InstanceBinding struct {
	// InstanceID is 0 while unbound.
	InstanceID uint32 `json:"instance_id"`
	ZoneID     uint32 `json:"zone_id"`

	Compass    Location `json:"compass"`
	SafeReturn Location `json:"safe_return"`
	ZoneIn     Location `json:"zone_in"`

	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
}

// IsBound reports whether an instance has been allocated.
func (b InstanceBinding) IsBound() bool {
	return b.InstanceID != 0
}

// IsSameInstance reports whether zone and instance identify the bound instance.
func (b InstanceBinding) IsSameInstance(zoneID, instanceID uint32) bool {
	return b.IsBound() && b.ZoneID == zoneID && b.InstanceID == instanceID
}

// ExpireTime returns the absolute end of the instance lifetime.
func (b InstanceBinding) ExpireTime() time.Time {
	return b.StartTime.Add(b.Duration)
}

// IsExpired reports whether the instance lifetime elapsed.
// A binding without a duration never expires.
func (b InstanceBinding) IsExpired(now time.Time) bool {
	if b.Duration <= 0 {
		return false
	}
	return !b.ExpireTime().After(now)
}

// Remaining returns the lifetime left, or 0.
func (b InstanceBinding) Remaining(now time.Time) time.Duration {
	if b.Duration <= 0 || b.IsExpired(now) {
		return 0
	}
	return b.ExpireTime().Sub(now)
}

// Location returns the waypoint of the given kind.
func (b InstanceBinding) Location(kind LocationKind) Location {
	switch kind {
	case LocationCompass:
		return b.Compass
	case LocationSafeReturn:
		return b.SafeReturn
	case LocationZoneIn:
		return b.ZoneIn
	}
	return Location{}
}

// SetLocation replaces the waypoint of the given kind.
func (b *InstanceBinding) SetLocation(kind LocationKind, loc Location) {
	switch kind {
	case LocationCompass:
		b.Compass = loc
	case LocationSafeReturn:
		b.SafeReturn = loc
	case LocationZoneIn:
		b.ZoneIn = loc
	}
}
