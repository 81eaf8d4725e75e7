// Package handler provides the admin HTTP handlers for dzmesh.
package handler

import (
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

// Response is the standard API response envelope.
//
// @design DS-0302 Section 2.1
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// StatusSummary is the body of GET /admin/v1/status/summary.
type StatusSummary struct {
	Role        string         `json:"role"`
	ZoneID      uint32         `json:"zone_id,omitempty"`
	InstanceID  uint32         `json:"instance_id,omitempty"`
	Expeditions int            `json:"expeditions"`
	Zones       *int           `json:"zones,omitempty"`
	LinkUp      *bool          `json:"link_up,omitempty"`
	Build       buildinfo.Info `json:"build"`
}

// ExpeditionSummary is one row of GET /admin/v1/expeditions.
type ExpeditionSummary struct {
	ID         uint32 `json:"id"`
	UUID       string `json:"uuid" table:"wide"`
	Name       string `json:"name"`
	Leader     string `json:"leader"`
	Members    int    `json:"members"`
	MaxPlayers uint32 `json:"max_players"`
	ZoneID     uint32 `json:"zone_id"`
	InstanceID uint32 `json:"instance_id"`
	IsLocked   bool   `json:"is_locked"`
}

// ExpeditionDetail is the body of GET /admin/v1/expeditions/{id}.
type ExpeditionDetail struct {
	ExpeditionSummary
	LeaderID        uint32                 `json:"leader_id"`
	MinPlayers      uint32                 `json:"min_players"`
	AddReplayOnJoin bool                   `json:"add_replay_on_join"`
	Instance        domain.InstanceBinding `json:"instance"`
	Roster          []MemberView           `json:"roster"`
	Lockouts        []LockoutView          `json:"lockouts"`
}

// MemberView is a roster entry.
type MemberView struct {
	CharacterID   uint32 `json:"character_id"`
	CharacterName string `json:"character_name"`
	Status        string `json:"status"`
}

// LockoutView is an expedition lockout.
type LockoutView struct {
	EventName  string    `json:"event_name"`
	ExpireTime time.Time `json:"expire_time"`
	Expired    bool      `json:"expired"`
}

// ZoneView is one linked zone process.
type ZoneView struct {
	ZoneID     uint32 `json:"zone_id"`
	InstanceID uint32 `json:"instance_id"`
}

func summarize(e *domain.Expedition) ExpeditionSummary {
	return ExpeditionSummary{
		ID:         e.ID,
		UUID:       e.UUID,
		Name:       e.Name,
		Leader:     e.Leader().CharacterName,
		Members:    e.MemberCount(),
		MaxPlayers: e.MaxPlayers,
		ZoneID:     e.Instance.ZoneID,
		InstanceID: e.Instance.InstanceID,
		IsLocked:   e.IsLocked,
	}
}

func detail(e *domain.Expedition, now time.Time) ExpeditionDetail {
	d := ExpeditionDetail{
		ExpeditionSummary: summarize(e),
		LeaderID:          e.LeaderID(),
		MinPlayers:        e.MinPlayers,
		AddReplayOnJoin:   e.AddReplayOnJoin,
		Instance:          e.Instance,
		Roster:            []MemberView{},
		Lockouts:          []LockoutView{},
	}
	for _, m := range e.Members() {
		d.Roster = append(d.Roster, MemberView{
			CharacterID:   m.CharacterID,
			CharacterName: m.CharacterName,
			Status:        m.Status.String(),
		})
	}
	for _, t := range e.Lockouts() {
		d.Lockouts = append(d.Lockouts, LockoutView{
			EventName:  t.EventName,
			ExpireTime: t.ExpireTime,
			Expired:    !t.ExpireTime.After(now),
		})
	}
	return d
}

func zoneView(s protocol.Sender) ZoneView {
	return ZoneView{ZoneID: s.ZoneID, InstanceID: s.InstanceID}
}
