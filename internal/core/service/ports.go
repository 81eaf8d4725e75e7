package service

import (
	"context"
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

// ExpeditionRow is one flattened row of the bulk expedition query: the
// expedition columns repeated for each member row. MemberID is 0 for an
// expedition without member rows.
type ExpeditionRow struct {
	ID              uint32
	UUID            string
	InstanceID      uint32 // 0 when the column is NULL
	Name            string
	LeaderID        uint32
	LeaderName      string
	MinPlayers      uint32
	MaxPlayers      uint32
	AddReplayOnJoin bool
	IsLocked        bool

	MemberID        uint32
	MemberName      string
	IsCurrentMember bool
}

// ExpeditionStore persists expedition rows.
//
// @design DS-0103
type ExpeditionStore interface {
	// InsertExpedition persists a new expedition and returns its id.
	InsertExpedition(ctx context.Context, e *domain.Expedition) (uint32, error)

	// LoadExpeditionRows returns flattened rows ordered by expedition id
	// then member row order. A nil ids slice loads every expedition.
	LoadExpeditionRows(ctx context.Context, ids []uint32) ([]ExpeditionRow, error)

	// FindExpeditionIDByInstance returns 0 when no expedition owns the instance.
	FindExpeditionIDByInstance(ctx context.Context, instanceID uint32) (uint32, error)

	DeleteExpedition(ctx context.Context, id uint32) error
	UpdateLeader(ctx context.Context, id uint32, leader domain.Member) error
	UpdateLocked(ctx context.Context, id uint32, locked bool) error
	UpdateReplayOnJoin(ctx context.Context, id uint32, enabled bool) error
}

// MemberStore persists roster rows.
//
// @design DS-0103
type MemberStore interface {
	InsertMember(ctx context.Context, expeditionID uint32, m domain.Member) error
	InsertMembers(ctx context.Context, expeditionID uint32, members []domain.Member) error
	UpdateMemberRemoved(ctx context.Context, expeditionID, characterID uint32) error
	UpdateAllMembersRemoved(ctx context.Context, expeditionID uint32) error

	// SwapMember marks removeID removed and inserts add in one transaction.
	SwapMember(ctx context.Context, expeditionID uint32, add domain.Member, removeID uint32) error
}

// LockoutStore persists expedition-scoped and character-scoped lockouts.
//
// @design DS-0103
type LockoutStore interface {
	// InsertLockout inserts or overwrites the expedition timer for its event.
	InsertLockout(ctx context.Context, expeditionID uint32, t domain.LockoutTimer) error
	InsertLockouts(ctx context.Context, expeditionID uint32, ts []domain.LockoutTimer) error
	DeleteLockout(ctx context.Context, expeditionID uint32, eventName string) error
	LoadLockouts(ctx context.Context, expeditionIDs []uint32) (map[uint32][]domain.LockoutTimer, error)

	// InsertCharacterLockouts upserts every timer for every character.
	InsertCharacterLockouts(ctx context.Context, characters []domain.Member, ts []domain.LockoutTimer, pending bool) error

	// DeleteCharacterLockouts removes timers of an expedition name for the
	// characters. An empty event name removes all of them.
	DeleteCharacterLockouts(ctx context.Context, characterIDs []uint32, expeditionName, eventName string) error
	DeleteCharacterLockoutsByName(ctx context.Context, characterName, expeditionName, eventName string) error

	DeletePendingLockouts(ctx context.Context, characterIDs []uint32) error
	LoadCharacterLockouts(ctx context.Context, characterID uint32, pending bool) ([]domain.LockoutTimer, error)
	ActivatePendingLockouts(ctx context.Context, characterID uint32, uuid string) error
}

// InstanceStore persists instance bindings.
//
// @design DS-0103
type InstanceStore interface {
	InstanceAllocator
	LoadInstanceBindings(ctx context.Context, instanceIDs []uint32) (map[uint32]domain.InstanceBinding, error)
	UpdateLocation(ctx context.Context, instanceID uint32, kind domain.LocationKind, loc domain.Location) error
	UpdateInstanceDuration(ctx context.Context, instanceID uint32, d time.Duration) error
}

// Store is the complete persistence contract.
type Store interface {
	ExpeditionStore
	MemberStore
	LockoutStore
	InstanceStore
}

// InstanceAllocator provisions exclusive instances. A binding with a
// non-zero InstanceID is reused as is. ReleaseInstance frees an instance
// whose expedition was never created.
type InstanceAllocator interface {
	AllocateInstance(ctx context.Context, b domain.InstanceBinding) (uint32, error)
	ReleaseInstance(ctx context.Context, instanceID uint32) error
}

// RequestValidator checks creation requests against business rules.
type RequestValidator interface {
	Validate(ctx context.Context, req *domain.CreateRequest) error
}

// Publisher sends a message toward the world coordinator.
type Publisher interface {
	Publish(ctx context.Context, m protocol.Message) error
}

// Router delivers coordinator messages to zones.
type Router interface {
	Broadcast(ctx context.Context, m protocol.Message) error
	SendTo(ctx context.Context, zone protocol.Sender, m protocol.Message) error
}

// Registry is the per-process expedition cache. It hands out live
// pointers; callers mutate them on the owning Engine only.
type Registry interface {
	Get(id uint32) (*domain.Expedition, bool)
	Put(e *domain.Expedition)
	Delete(id uint32)
	Clear()
	All() []*domain.Expedition
	Len() int
	FindByCharacterID(characterID uint32) (*domain.Expedition, bool)
	FindByCharacterName(name string) (*domain.Expedition, bool)
}

// Clients is the set of characters connected to this zone process.
type Clients interface {
	Add(c *domain.Character)
	Remove(id uint32) (*domain.Character, bool)
	Character(id uint32) (*domain.Character, bool)
	CharacterByName(name string) (*domain.Character, bool)
	InInstance(zoneID, instanceID uint32) []*domain.Character
}
