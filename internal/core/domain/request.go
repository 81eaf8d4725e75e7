package domain

import (
	"strings"
	"time"
)

// CreateRequest describes a proposed expedition.
//
// @design DS-0103
type CreateRequest struct {
	Name       string
	MinPlayers uint32
	MaxPlayers uint32

	Leader   Member
	Members  []Member
	Lockouts []LockoutTimer

	// ZoneID is the zone the instance is created in.
	ZoneID uint32
	// InstanceID reuses an existing instance when non-zero.
	InstanceID uint32
	// Duration is the instance lifetime.
	Duration time.Duration

	Compass    Location
	SafeReturn Location
	ZoneIn     Location

	AddReplayOnJoin bool
}

// Validate checks the request shape. Business-rule validation such as
// leader availability is done by the service's validator.
func (r *CreateRequest) Validate() error {
	var violations []string

	if r.Name == "" {
		violations = append(violations, "name is required")
	}
	if len(r.Name) > MaxExpeditionNameLength {
		violations = append(violations, "name exceeds 127 characters")
	}
	if r.MinPlayers < 1 {
		violations = append(violations, "min_players must be at least 1")
	}
	if r.MaxPlayers < r.MinPlayers {
		violations = append(violations, "max_players must be >= min_players")
	}
	if !r.Leader.IsValid() {
		violations = append(violations, "leader is required")
	}
	if r.ZoneID == 0 {
		violations = append(violations, "zone_id is required")
	}

	n := uint32(len(r.Members))
	if n < r.MinPlayers || n > r.MaxPlayers {
		violations = append(violations, "member count outside min/max bounds")
	}

	seenID := make(map[uint32]bool, len(r.Members))
	seenName := make(map[string]bool, len(r.Members))
	leaderIncluded := false
	for _, m := range r.Members {
		if !m.IsValid() {
			violations = append(violations, "member without id or name")
			continue
		}
		name := strings.ToLower(m.CharacterName)
		if seenID[m.CharacterID] || seenName[name] {
			violations = append(violations, "duplicate member "+m.CharacterName)
		}
		seenID[m.CharacterID] = true
		seenName[name] = true
		if m.CharacterID == r.Leader.CharacterID {
			leaderIncluded = true
		}
	}
	if r.Leader.IsValid() && !leaderIncluded {
		violations = append(violations, "leader must be a member")
	}

	if len(violations) > 0 {
		return ErrValidationRejected.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}
