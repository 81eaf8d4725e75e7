package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

func TestTryCreate(t *testing.T) {
	f := newFixture(t, zoneA)
	a := f.connect(1, "Alice")
	f.pub.reset()

	e := f.create(a, 3)

	if e.ID == 0 || e.UUID == "" {
		t.Fatalf("expedition not persisted: id=%d uuid=%q", e.ID, e.UUID)
	}
	if !e.Instance.IsBound() || e.Instance.ZoneID != 77 {
		t.Errorf("Instance = %+v, want bound in zone 77", e.Instance)
	}
	if got, ok := f.registry.Get(e.ID); !ok || got != e {
		t.Error("expedition not cached")
	}
	if a.ExpeditionID != e.ID {
		t.Errorf("leader ExpeditionID = %d, want %d", a.ExpeditionID, e.ID)
	}
	if !f.notes.has(a.ID, NoticeExpeditionAvailable) {
		t.Error("leader not told the expedition is available")
	}

	created, ok := f.pub.last(protocol.OpExpeditionCreated).(*protocol.ExpeditionCreated)
	if !ok {
		t.Fatalf("published %v, want expedition_created", f.pub.ops())
	}
	if created.ExpeditionID != e.ID || created.From() != zoneA {
		t.Errorf("created = %+v", created)
	}
	if f.pub.last(protocol.OpOnlineMembersRequest) == nil {
		t.Error("online statuses not requested")
	}
	checkInvariants(t, e)
}

func TestTryCreate_InitialLockouts(t *testing.T) {
	f := newFixture(t, zoneA)
	a := f.connect(1, "Alice")

	req := &domain.CreateRequest{
		Name:       "Deepest Vault",
		MinPlayers: 1,
		MaxPlayers: 6,
		Leader:     a.Member(domain.StatusOnline),
		Members:    []domain.Member{a.Member(domain.StatusOnline)},
		ZoneID:     77,
		Lockouts: []domain.LockoutTimer{
			domain.NewLockoutTimer("", "", "Boss", 3600, epoch),
		},
	}
	e, err := f.zone.TryCreate(f.ctx, a, req)
	if err != nil {
		t.Fatalf("TryCreate() error = %v", err)
	}

	got, ok := e.Lockout("Boss")
	if !ok || got.UUID != e.UUID || got.ExpeditionName != e.Name {
		t.Errorf("lockout = %+v, want stamped with expedition", got)
	}
	if !a.HasLockout(e.Name, "Boss", epoch) {
		t.Error("leader did not receive the initial lockout")
	}
	if len(f.store.lockouts[e.ID]) != 1 {
		t.Errorf("stored lockouts = %d, want 1", len(f.store.lockouts[e.ID]))
	}
}

func TestTryCreate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture, a *domain.Character)
		wantErr error
		notice  NoticeID
	}{
		{
			name:    "instance allocation fails",
			setup:   func(f *fixture, _ *domain.Character) { f.store.failAllocate = true },
			wantErr: domain.ErrInstanceUnavailable,
			notice:  NoticeCreateFailed,
		},
		{
			name:    "persistence fails",
			setup:   func(f *fixture, _ *domain.Character) { f.store.failInsert = true },
			wantErr: domain.ErrPersistence,
		},
		{
			name:    "member persistence fails",
			setup:   func(f *fixture, _ *domain.Character) { f.store.failInsertMembers = true },
			wantErr: domain.ErrPersistence,
		},
		{
			name: "leader already in an expedition",
			setup: func(f *fixture, a *domain.Character) {
				f.registry.Put(func() *domain.Expedition {
					e := domain.NewExpedition(99, "u", "Other", a.Member(domain.StatusOnline), 1, 2)
					e.AddMember(a.Member(domain.StatusOnline))
					return e
				}())
			},
			wantErr: domain.ErrValidationRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, zoneA)
			a := f.connect(1, "Alice")
			tt.setup(f, a)
			before := f.registry.Len()
			f.pub.reset()

			_, err := f.zone.TryCreate(f.ctx, a, &domain.CreateRequest{
				Name:       "Deepest Vault",
				MinPlayers: 1,
				MaxPlayers: 3,
				Leader:     a.Member(domain.StatusOnline),
				Members:    []domain.Member{a.Member(domain.StatusOnline)},
				ZoneID:     77,
				Duration:   time.Hour,
			})

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("TryCreate() error = %v, want %v", err, tt.wantErr)
			}
			if f.registry.Len() != before {
				t.Errorf("registry size = %d, want %d", f.registry.Len(), before)
			}
			if len(f.pub.msgs) != 0 {
				t.Errorf("published %v on failure", f.pub.ops())
			}
			if tt.notice != 0 && !f.notes.has(a.ID, tt.notice) {
				t.Errorf("requester missing notice %d", tt.notice)
			}
			if len(f.store.instances) != 0 {
				t.Errorf("instances left allocated = %d", len(f.store.instances))
			}
			if len(f.store.exps) != 0 {
				t.Errorf("expeditions left stored = %d", len(f.store.exps))
			}
		})
	}
}

func TestTryCreate_NilArguments(t *testing.T) {
	f := newFixture(t, zoneA)
	if _, err := f.zone.TryCreate(context.Background(), nil, nil); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("TryCreate(nil) error = %v, want ErrMissingArgument", err)
	}
}

func TestParseRows(t *testing.T) {
	rows := []ExpeditionRow{
		{ID: 1, UUID: "u1", Name: "One", LeaderID: 10, LeaderName: "A", MinPlayers: 1, MaxPlayers: 3, InstanceID: 500,
			MemberID: 10, MemberName: "A", IsCurrentMember: true},
		{ID: 1, UUID: "u1", Name: "One", LeaderID: 10, LeaderName: "A", MinPlayers: 1, MaxPlayers: 3, InstanceID: 500,
			MemberID: 11, MemberName: "B", IsCurrentMember: false},
		{ID: 1, UUID: "u1", Name: "One", LeaderID: 10, LeaderName: "A", MinPlayers: 1, MaxPlayers: 3, InstanceID: 500,
			MemberID: 12, MemberName: "C", IsCurrentMember: true},
		{ID: 2, UUID: "u2", Name: "Two", MinPlayers: 1, MaxPlayers: 2, IsLocked: true},
	}

	exps := ParseRows(rows)
	if len(exps) != 2 {
		t.Fatalf("ParseRows() = %d expeditions, want 2", len(exps))
	}

	one := exps[0]
	if !equalIDs(rosterIDs(one), []uint32{10, 12}) {
		t.Errorf("roster = %v, want [10 12]", rosterIDs(one))
	}
	if !one.InHistory(11) {
		t.Error("removed member missing from history")
	}
	if one.Instance.InstanceID != 500 || one.LeaderID() != 10 {
		t.Errorf("one = %v instance %d", one, one.Instance.InstanceID)
	}
	for _, m := range one.Members() {
		if m.Status != domain.StatusOffline {
			t.Errorf("member %d status = %v, want offline", m.CharacterID, m.Status)
		}
	}

	two := exps[1]
	if two.MemberCount() != 0 || two.Instance.IsBound() || !two.IsLocked {
		t.Errorf("two = %v bound=%v locked=%v", two, two.Instance.IsBound(), two.IsLocked)
	}
}

func TestLoadAll(t *testing.T) {
	store := newFakeStore()
	origin := newFixtureWithStore(t, zoneA, store)
	a := origin.connect(1, "Alice")
	b := origin.connect(2, "Bob")
	e := origin.create(a, 3)
	if err := origin.invite(e, a, b); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if err := origin.zone.AddLockout(origin.ctx, e, "Boss", 3600); err != nil {
		t.Fatalf("AddLockout: %v", err)
	}
	if err := origin.zone.Quit(origin.ctx, b); err != nil {
		t.Fatalf("Quit: %v", err)
	}

	f := newFixtureWithStore(t, zoneB, store)
	if err := f.zone.LoadAll(f.ctx); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	got, ok := f.registry.Get(e.ID)
	if !ok {
		t.Fatal("expedition not loaded")
	}
	if !equalIDs(rosterIDs(got), []uint32{1}) {
		t.Errorf("roster = %v, want [1]", rosterIDs(got))
	}
	if !got.InHistory(2) {
		t.Error("former member missing from history")
	}
	if got.Instance.ZoneID != 77 || got.Instance.Duration != time.Hour {
		t.Errorf("binding = %+v", got.Instance)
	}
	if !got.HasLockout("Boss") {
		t.Error("lockouts not loaded")
	}

	req, ok := f.pub.last(protocol.OpOnlineMembersRequest).(*protocol.OnlineMembersRequest)
	if !ok || len(req.Entries) != 1 || req.Entries[0].CharacterID != 1 {
		t.Fatalf("online request = %+v", req)
	}

	reply := protocol.NewOnlineMembersReply([]protocol.OnlineEntry{{
		ExpeditionID:        e.ID,
		CharacterID:         1,
		CharacterZoneID:     got.Instance.ZoneID,
		CharacterInstanceID: got.Instance.InstanceID,
		CharacterOnline:     true,
	}})
	if err := f.zone.Handle(f.ctx, reply); err != nil {
		t.Fatalf("Handle(reply) error = %v", err)
	}
	if m, _ := got.Member(1); m.Status != domain.StatusInDynamicZone {
		t.Errorf("status = %v, want in_dynamic_zone", m.Status)
	}
}

func TestLoadOne_AndFindByInstance(t *testing.T) {
	store := newFakeStore()
	origin := newFixtureWithStore(t, zoneA, store)
	e := origin.create(origin.connect(1, "Alice"), 2)

	f := newFixtureWithStore(t, zoneB, store)
	if _, err := f.zone.LoadOne(f.ctx, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("LoadOne(0) error = %v", err)
	}
	if _, err := f.zone.LoadOne(f.ctx, 404); !errors.Is(err, domain.ErrExpeditionNotFound) {
		t.Errorf("LoadOne(404) error = %v", err)
	}

	got, err := f.zone.FindByInstanceID(f.ctx, e.Instance.InstanceID)
	if err != nil {
		t.Fatalf("FindByInstanceID() error = %v", err)
	}
	if got.ID != e.ID {
		t.Errorf("FindByInstanceID() = %d, want %d", got.ID, e.ID)
	}
	again, _ := f.zone.LoadOne(f.ctx, e.ID)
	if again != got {
		t.Error("LoadOne did not return the cached expedition")
	}
	if _, err := f.zone.FindByInstanceID(f.ctx, 9999); !errors.Is(err, domain.ErrExpeditionNotFound) {
		t.Errorf("FindByInstanceID(9999) error = %v", err)
	}
}
