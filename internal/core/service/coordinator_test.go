package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

type coordFixture struct {
	ctx      context.Context
	coord    *Coordinator
	registry *fakeRegistry
	store    *fakeStore
	router   *fakeRouter
	clock    *clock
}

func newCoordFixture(t *testing.T) *coordFixture {
	t.Helper()
	f := &coordFixture{
		ctx:      context.Background(),
		registry: newFakeRegistry(),
		store:    newFakeStore(),
		router:   &fakeRouter{},
		clock:    &clock{t: epoch},
	}
	f.coord = NewCoordinator(f.registry, f.store, f.router,
		WithLogger(testLog), WithClock(f.clock.now), WithEmptyShutdownDelay(15*time.Minute), WithLeaderCooldown(30*time.Second))
	return f
}

func (f *coordFixture) handle(t *testing.T, from protocol.Sender, m protocol.Message) {
	t.Helper()
	if err := f.coord.Handle(f.ctx, from, m); err != nil {
		t.Fatalf("Handle(%s) error = %v", m.Opcode(), err)
	}
}

func (f *coordFixture) locate(t *testing.T, id uint32, name string, at protocol.Sender, online bool) {
	t.Helper()
	f.handle(t, at, &protocol.CharacterLocation{
		CharacterID: id, CharacterName: name, ZoneID: at.ZoneID, InstanceID: at.InstanceID, Online: online,
	})
}

// mirror puts an expedition bound to instance 77/101 started at epoch.
func (f *coordFixture) mirror(id uint32, duration time.Duration, members ...domain.Member) *domain.Expedition {
	var leader domain.Member
	if len(members) > 0 {
		leader = members[0]
	}
	e := domain.NewExpedition(id, "uuid", "Deepest Vault", leader, 1, 6)
	for _, m := range members {
		e.AddMember(m)
	}
	e.Instance = domain.InstanceBinding{InstanceID: 101, ZoneID: 77, StartTime: epoch, Duration: duration}
	f.registry.Put(e)
	return e
}

func (f *coordFixture) broadcasts(op protocol.Opcode) []protocol.Message {
	var out []protocol.Message
	for _, r := range f.router.out {
		if r.to.IsWorld() && r.m.Opcode() == op {
			out = append(out, r.m)
		}
	}
	return out
}

func online(id uint32, name string) domain.Member {
	return domain.Member{CharacterID: id, CharacterName: name, Status: domain.StatusOnline}
}

func TestCoordinator_Routing(t *testing.T) {
	f := newCoordFixture(t)
	f.locate(t, 2, "Bob", zoneB, true)
	f.locate(t, 3, "Carol", zoneB, false)

	f.handle(t, zoneA, &protocol.CharacterNotice{CharacterName: "BOB", Notice: uint16(NoticeInviteSent)})
	f.handle(t, zoneA, &protocol.CharacterNotice{CharacterName: "Carol", Notice: uint16(NoticeInviteSent)})
	f.handle(t, zoneA, &protocol.CharacterNotice{CharacterName: "Nobody", Notice: uint16(NoticeInviteSent)})
	if len(f.router.out) != 1 || f.router.out[0].to != zoneB {
		t.Fatalf("routed = %+v, want one message to zone B", f.router.out)
	}

	f.router.out = nil
	f.handle(t, zoneA, &protocol.AddPlayerRequest{ExpeditionID: 1, RequesterName: "Alice", TargetName: "Bob", Sender: zoneA})
	f.handle(t, zoneA, &protocol.AddPlayerRequest{ExpeditionID: 1, RequesterName: "Alice", TargetName: "Carol", Sender: zoneA})
	if len(f.router.out) != 2 {
		t.Fatalf("routed %d messages, want 2", len(f.router.out))
	}
	fwd := f.router.out[0]
	if req := fwd.m.(*protocol.AddPlayerRequest); fwd.to != zoneB || !req.IsCharOnline || !req.From().IsWorld() {
		t.Errorf("forward = %+v to %+v", req, fwd.to)
	}
	bounce := f.router.out[1]
	if req := bounce.m.(*protocol.AddPlayerRequest); bounce.to != zoneA || req.IsCharOnline || !req.From().IsWorld() {
		t.Errorf("bounce = %+v to %+v", req, bounce.to)
	}
}

func TestCoordinator_InstanceAccessRouting(t *testing.T) {
	f := newCoordFixture(t)
	host := protocol.Sender{ZoneID: 77, InstanceID: 101}

	f.handle(t, zoneA, &protocol.InstanceAccess{ZoneID: 77, InstanceID: 101, CharacterID: 2, Removed: true})
	f.handle(t, zoneA, &protocol.InstanceAccessCleared{ZoneID: 77, InstanceID: 101})
	f.handle(t, zoneA, &protocol.InstanceAccess{ZoneID: 77, CharacterID: 2, Removed: true})
	if len(f.router.out) != 2 {
		t.Fatalf("routed %d messages, want 2", len(f.router.out))
	}
	for _, r := range f.router.out {
		if r.to != host {
			t.Errorf("%s routed to %+v, want the hosting zone", r.m.Opcode(), r.to)
		}
	}

	// An instance with no running zone has nobody to remove.
	f.router.out = nil
	f.router.offline = map[protocol.Sender]bool{host: true}
	f.handle(t, zoneA, &protocol.InstanceAccess{ZoneID: 77, InstanceID: 101, CharacterID: 2, Removed: true})
	if len(f.router.out) != 0 {
		t.Errorf("routed = %+v", f.router.out)
	}
}

func TestCoordinator_MakeLeaderRouting(t *testing.T) {
	f := newCoordFixture(t)
	f.locate(t, 1, "Alice", zoneA, true)
	f.locate(t, 2, "Bob", zoneB, true)

	f.handle(t, zoneA, &protocol.MakeLeaderRequest{ExpeditionID: 1, Sender: zoneA, RequesterName: "Alice", TargetName: "Bob"})
	f.handle(t, zoneB, &protocol.MakeLeaderRequest{ExpeditionID: 1, Sender: zoneB, RequesterName: "Alice", TargetName: "Bob",
		Reply: true, IsOnline: true, IsSuccess: true})
	f.handle(t, zoneA, &protocol.MakeLeaderRequest{ExpeditionID: 1, Sender: zoneA, RequesterName: "Alice", TargetName: "Ghost"})

	want := []protocol.Sender{zoneB, zoneA, zoneA}
	if len(f.router.out) != len(want) {
		t.Fatalf("routed %d messages, want %d", len(f.router.out), len(want))
	}
	for i, r := range f.router.out {
		if r.to != want[i] {
			t.Errorf("message %d sent to %+v, want %+v", i, r.to, want[i])
		}
	}
	if last := f.router.out[2].m.(*protocol.MakeLeaderRequest); !last.Reply || last.IsOnline {
		t.Errorf("offline bounce = %+v", last)
	}
}

func TestCoordinator_OnlineMembersReply(t *testing.T) {
	f := newCoordFixture(t)
	inside := protocol.Sender{ZoneID: 77, InstanceID: 101}
	f.locate(t, 1, "Alice", inside, true)

	req := protocol.NewOnlineMembersRequest(zoneA, []protocol.OnlineEntry{
		{ExpeditionID: 5, CharacterID: 1},
		{ExpeditionID: 5, CharacterID: 2},
	})
	f.handle(t, zoneA, req)

	if len(f.router.out) != 1 || f.router.out[0].to != zoneA {
		t.Fatalf("routed = %+v", f.router.out)
	}
	reply := f.router.out[0].m.(*protocol.OnlineMembersReply)
	if len(reply.Entries) != 2 {
		t.Fatalf("entries = %+v", reply.Entries)
	}
	if e := reply.Entries[0]; !e.CharacterOnline || e.CharacterZoneID != 77 || e.CharacterInstanceID != 101 {
		t.Errorf("online entry = %+v", e)
	}
	if reply.Entries[1].CharacterOnline {
		t.Error("unknown character reported online")
	}
}

func TestCoordinator_RelayMirrors(t *testing.T) {
	f := newCoordFixture(t)
	e := f.mirror(1, time.Hour, online(1, "Alice"))

	f.handle(t, zoneA, &protocol.MemberChange{ExpeditionID: 1, Sender: zoneA, CharacterID: 2, CharacterName: "Bob", Status: domain.StatusOnline})
	f.handle(t, zoneA, &protocol.LeaderChanged{ExpeditionID: 1, Sender: zoneA, CharacterID: 2, CharacterName: "Bob"})
	f.handle(t, zoneA, protocol.NewLockState(1, zoneA, true))
	f.handle(t, zoneA, &protocol.LockoutUpdate{ExpeditionID: 1, Sender: zoneA, EventName: "Boss", ExpireTime: epoch.Add(time.Hour).Unix(), Duration: 3600})

	if !equalIDs(rosterIDs(e), []uint32{1, 2}) || e.LeaderID() != 2 || !e.IsLocked || !e.HasLockout("Boss") {
		t.Errorf("mirror = %v locked=%v lockouts=%v", e, e.IsLocked, e.Lockouts())
	}
	if n := len(f.router.out); n != 4 {
		t.Fatalf("relayed %d messages, want 4", n)
	}
	for _, r := range f.router.out {
		if !r.to.IsWorld() {
			t.Errorf("relay of %s was routed, want broadcast", r.m.Opcode())
		}
	}
	if f.router.out[0].m.(*protocol.MemberChange).From() != zoneA {
		t.Error("relay rewrote the originating sender")
	}
}

func TestCoordinator_RejectsWorldOnlyOpcodes(t *testing.T) {
	f := newCoordFixture(t)
	for _, m := range []protocol.Message{
		&protocol.DurationUpdate{ExpeditionID: 1, Seconds: 1},
		&protocol.ExpireWarning{ExpeditionID: 1, MinutesRemaining: 5},
		protocol.NewExpeditionDeleted(1, zoneA),
	} {
		if err := f.coord.Handle(f.ctx, zoneA, m); !errors.Is(err, domain.ErrUnknownOpcode) {
			t.Errorf("Handle(%s) error = %v, want ErrUnknownOpcode", m.Opcode(), err)
		}
	}
}

func TestCoordinator_LoadAllAndCreated(t *testing.T) {
	f := newCoordFixture(t)
	zone := newFixtureWithStore(t, zoneA, f.store)
	e := zone.create(zone.connect(1, "Alice"), 3)

	if err := f.coord.LoadAll(f.ctx); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if got, ok := f.coord.Expedition(e.ID); !ok || got.Name != e.Name {
		t.Fatal("expedition not mirrored")
	}

	e2 := zone.create(zone.connect(2, "Bob"), 2)
	f.handle(t, zoneA, protocol.NewExpeditionCreated(e2.ID, zoneA))
	if _, ok := f.coord.Expedition(e2.ID); !ok {
		t.Error("created expedition not mirrored")
	}
}

func TestProcess_DeletesEmptyAndExpired(t *testing.T) {
	f := newCoordFixture(t)
	empty := f.mirror(1, time.Hour)
	expired := f.mirror(2, 10*time.Minute, online(1, "Alice"))
	active := f.mirror(3, time.Hour, online(2, "Bob"))
	f.clock.advance(20 * time.Minute)

	f.coord.Process(f.ctx)

	for _, e := range []*domain.Expedition{empty, expired} {
		if _, ok := f.registry.Get(e.ID); ok {
			t.Errorf("expedition %d not deleted", e.ID)
		}
	}
	if _, ok := f.registry.Get(active.ID); !ok {
		t.Error("active expedition deleted")
	}
	deleted := f.broadcasts(protocol.OpExpeditionDeleted)
	if len(deleted) != 2 {
		t.Fatalf("deletions broadcast = %d, want 2", len(deleted))
	}
	for _, m := range deleted {
		if !m.(*protocol.ExpeditionDeleted).From().IsWorld() {
			t.Error("deletion not sent as world")
		}
	}
}

func TestProcess_OccupiedInstanceKeepsExpedition(t *testing.T) {
	f := newCoordFixture(t)
	e := f.mirror(1, 2*time.Hour)
	f.locate(t, 9, "Straggler", protocol.Sender{ZoneID: 77, InstanceID: 101}, true)
	f.clock.advance(10 * time.Minute)

	f.coord.Process(f.ctx)

	if _, ok := f.registry.Get(e.ID); !ok {
		t.Fatal("expedition with an occupied instance deleted")
	}
	want := 25 * time.Minute
	if e.Instance.Duration != want {
		t.Errorf("duration = %v, want %v", e.Instance.Duration, want)
	}
	if f.store.instances[101].Duration != want {
		t.Error("shortened duration not persisted")
	}
	upd := f.broadcasts(protocol.OpDurationUpdate)
	if len(upd) != 1 || upd[0].(*protocol.DurationUpdate).Seconds != uint32(want/time.Second) {
		t.Fatalf("duration updates = %+v", upd)
	}

	// Already within the delay: never extended.
	f.router.out = nil
	f.clock.advance(5 * time.Minute)
	f.coord.Process(f.ctx)
	if e.Instance.Duration != want || len(f.broadcasts(protocol.OpDurationUpdate)) != 0 {
		t.Errorf("duration changed to %v", e.Instance.Duration)
	}
}

func TestProcess_ExpiryWarnings(t *testing.T) {
	f := newCoordFixture(t)
	f.mirror(1, time.Hour, online(1, "Alice"))

	steps := []struct {
		advance time.Duration
		want    uint32 // 0 for no warning
	}{
		{advance: 30 * time.Minute},
		{advance: 15*time.Minute + 30*time.Second, want: 15},
		{advance: 30 * time.Second},
		{advance: 9*time.Minute + 30*time.Second, want: 5},
		{advance: 4 * time.Minute, want: 1},
	}
	for i, s := range steps {
		f.router.out = nil
		f.clock.advance(s.advance)
		f.coord.Process(f.ctx)

		warnings := f.broadcasts(protocol.OpExpireWarning)
		if s.want == 0 {
			if len(warnings) != 0 {
				t.Errorf("step %d: unexpected warnings %+v", i, warnings)
			}
			continue
		}
		if len(warnings) != 1 || warnings[0].(*protocol.ExpireWarning).MinutesRemaining != s.want {
			t.Errorf("step %d: warnings = %+v, want %d minutes", i, warnings, s.want)
		}
	}
}

func TestProcess_ElectsLeaderAfterCooldown(t *testing.T) {
	tests := []struct {
		name    string
		members []domain.Member
		want    uint32
	}{
		{
			name:    "first other member",
			members: []domain.Member{online(1, "Alice"), online(2, "Bob")},
			want:    2,
		},
		{
			name: "online member preferred",
			members: []domain.Member{online(1, "Alice"),
				{CharacterID: 2, CharacterName: "Bob", Status: domain.StatusOffline}, online(3, "Carol")},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCoordFixture(t)
			e := f.mirror(1, 0, tt.members...)

			f.handle(t, zoneA, &protocol.MemberStatus{ExpeditionID: 1, Sender: zoneA, CharacterID: 1, Status: domain.StatusOffline})
			f.router.out = nil
			f.coord.Process(f.ctx)
			if e.LeaderID() != 1 {
				t.Fatal("leader replaced before the cooldown")
			}

			f.clock.advance(31 * time.Second)
			f.coord.Process(f.ctx)
			if e.LeaderID() != tt.want {
				t.Fatalf("leader = %d, want %d", e.LeaderID(), tt.want)
			}
			changes := f.broadcasts(protocol.OpLeaderChanged)
			if len(changes) != 1 || changes[0].(*protocol.LeaderChanged).CharacterID != tt.want {
				t.Errorf("leader broadcasts = %+v", changes)
			}
		})
	}
}

func TestProcess_LeaderBackOnlineCancelsElection(t *testing.T) {
	f := newCoordFixture(t)
	e := f.mirror(1, 0, online(1, "Alice"), online(2, "Bob"))

	f.handle(t, zoneA, &protocol.MemberStatus{ExpeditionID: 1, Sender: zoneA, CharacterID: 1, Status: domain.StatusOffline})
	f.handle(t, zoneA, &protocol.MemberStatus{ExpeditionID: 1, Sender: zoneA, CharacterID: 1, Status: domain.StatusOnline})
	f.clock.advance(time.Minute)
	f.coord.Process(f.ctx)

	if e.LeaderID() != 1 {
		t.Errorf("leader = %d, want 1", e.LeaderID())
	}
}

func TestZoneDown(t *testing.T) {
	f := newCoordFixture(t)
	e := f.mirror(1, 0, online(1, "Alice"), online(2, "Bob"))
	f.locate(t, 1, "Alice", zoneA, true)
	f.locate(t, 2, "Bob", zoneB, true)

	f.coord.ZoneDown(f.ctx, zoneB)

	if p, _ := f.coord.Presence("bob"); p.Online {
		t.Error("Bob still online")
	}
	if p, _ := f.coord.Presence("alice"); !p.Online {
		t.Error("Alice marked offline")
	}
	if m, _ := e.Member(2); m.Status != domain.StatusOffline {
		t.Errorf("mirror status = %v", m.Status)
	}
	statuses := f.broadcasts(protocol.OpMemberStatus)
	if len(statuses) != 1 || statuses[0].(*protocol.MemberStatus).CharacterID != 2 {
		t.Errorf("status broadcasts = %+v", statuses)
	}
}
