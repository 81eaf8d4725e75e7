package sqlstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/core/service"
)

var (
	testLog = slog.New(slog.NewTextHandler(io.Discard, nil))
	epoch   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alice   = domain.Member{CharacterID: 1, CharacterName: "Alice"}
	bob     = domain.Member{CharacterID: 2, CharacterName: "Bob"}
	carol   = domain.Member{CharacterID: 3, CharacterName: "Carol"}
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Options{
		Dialect: DialectSQLite,
		DSN:     filepath.Join(t.TempDir(), "dzmesh.db"),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := Migrate(ctx, db, DialectSQLite, testLog); err != nil {
		_ = db.Close()
		t.Fatalf("Migrate() error = %v", err)
	}
	s := New(db, DialectSQLite, WithLogger(testLog))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertExpedition(t *testing.T, s *Store, instanceID uint32, members ...domain.Member) *domain.Expedition {
	t.Helper()
	ctx := context.Background()
	e := domain.NewExpedition(0, "uuid-"+members[0].CharacterName, "Crypt", members[0], 1, 6)
	e.Instance = domain.InstanceBinding{
		InstanceID: instanceID,
		ZoneID:     77,
		StartTime:  epoch,
		Duration:   time.Hour,
	}
	id, err := s.InsertExpedition(ctx, e)
	if err != nil {
		t.Fatalf("InsertExpedition() error = %v", err)
	}
	e.ID = id
	if err := s.InsertMembers(ctx, id, members); err != nil {
		t.Fatalf("InsertMembers() error = %v", err)
	}
	return e
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"pgx", DialectPostgres, false},
		{"Postgres", DialectPostgres, false},
		{" sqlite ", DialectSQLite, false},
		{"mysql", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDialect() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDialect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	q := `UPDATE x SET a = ? WHERE id IN (?,?)`
	if got := DialectSQLite.rebind(q); got != q {
		t.Errorf("sqlite rebind = %q", got)
	}
	want := `UPDATE x SET a = $1 WHERE id IN ($2,$3)`
	if got := DialectPostgres.rebind(q); got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := Migrate(ctx, s.DB(), DialectSQLite, testLog); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	v, err := MigrationVersion(ctx, s.DB(), DialectSQLite)
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}
	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}
}

func TestExpeditionRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e1 := insertExpedition(t, s, 0, alice, bob)
	e2 := insertExpedition(t, s, 0, carol)
	if err := s.UpdateMemberRemoved(ctx, e1.ID, bob.CharacterID); err != nil {
		t.Fatal(err)
	}

	rows, err := s.LoadExpeditionRows(ctx, nil)
	if err != nil {
		t.Fatalf("LoadExpeditionRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0].ID != e1.ID || rows[0].MemberID != alice.CharacterID || !rows[0].IsCurrentMember {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].MemberID != bob.CharacterID || rows[1].IsCurrentMember {
		t.Errorf("row 1 = %+v, want removed Bob", rows[1])
	}
	if rows[2].ID != e2.ID || rows[2].LeaderName != "Carol" || rows[2].InstanceID != 0 {
		t.Errorf("row 2 = %+v", rows[2])
	}
	if !rows[0].AddReplayOnJoin || rows[0].IsLocked {
		t.Errorf("row 0 flags = %+v", rows[0])
	}

	rows, err = s.LoadExpeditionRows(ctx, []uint32{e2.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("filtered rows = %v, %v", rows, err)
	}
	rows, err = s.LoadExpeditionRows(ctx, []uint32{})
	if err != nil || rows != nil {
		t.Errorf("empty id list = %v, %v", rows, err)
	}
}

func TestExpeditionWithoutMembers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := domain.NewExpedition(0, "u-empty", "Vault", alice, 1, 2)
	id, err := s.InsertExpedition(ctx, e)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := s.LoadExpeditionRows(ctx, []uint32{id})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].MemberID != 0 || rows[0].MemberName != "" {
		t.Errorf("rows = %+v, want one row without member", rows)
	}
}

func TestUpdatesAndSwap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := insertExpedition(t, s, 0, alice, bob)

	if err := s.UpdateLeader(ctx, e.ID, bob); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateLocked(ctx, e.ID, true); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateReplayOnJoin(ctx, e.ID, false); err != nil {
		t.Fatal(err)
	}
	if err := s.SwapMember(ctx, e.ID, carol, alice.CharacterID); err != nil {
		t.Fatalf("SwapMember() error = %v", err)
	}

	exps, err := service.LoadExpeditions(ctx, s, []uint32{e.ID})
	if err != nil || len(exps) != 1 {
		t.Fatalf("LoadExpeditions() = %v, %v", exps, err)
	}
	got := exps[0]
	if got.LeaderID() != bob.CharacterID || !got.IsLocked || got.AddReplayOnJoin {
		t.Errorf("expedition = %v locked=%v replay=%v", got, got.IsLocked, got.AddReplayOnJoin)
	}
	if got.HasMember(alice.CharacterID) || !got.HasMember(carol.CharacterID) {
		t.Errorf("roster = %+v, want Bob and Carol", got.Members())
	}
	if !got.InHistory(alice.CharacterID) {
		t.Error("removed member missing from history")
	}

	// Re-adding a former member reuses the row.
	if err := s.InsertMember(ctx, e.ID, alice); err != nil {
		t.Fatal(err)
	}
	rows, _ := s.LoadExpeditionRows(ctx, []uint32{e.ID})
	if len(rows) != 3 || rows[0].MemberID != alice.CharacterID || !rows[0].IsCurrentMember {
		t.Errorf("rows after re-add = %+v", rows)
	}

	if err := s.UpdateAllMembersRemoved(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	exps, _ = service.LoadExpeditions(ctx, s, []uint32{e.ID})
	if n := exps[0].MemberCount(); n != 0 {
		t.Errorf("members after remove all = %d", n)
	}
}

func TestInstances(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b := domain.InstanceBinding{
		ZoneID:    77,
		Compass:   domain.Location{ZoneID: 5, X: 1.5, Y: -2, Z: 3, Heading: 90},
		StartTime: epoch,
		Duration:  90 * time.Minute,
	}
	id, err := s.AllocateInstance(ctx, b)
	if err != nil || id == 0 {
		t.Fatalf("AllocateInstance() = %d, %v", id, err)
	}
	id2, err := s.AllocateInstance(ctx, b)
	if err != nil || id2 == id {
		t.Fatalf("second AllocateInstance() = %d, %v", id2, err)
	}

	b.InstanceID = 500
	if got, err := s.AllocateInstance(ctx, b); err != nil || got != 500 {
		t.Fatalf("AllocateInstance(bound) = %d, %v", got, err)
	}

	zoneIn := domain.Location{ZoneID: 77, X: 10, Y: 20, Z: 30, Heading: 180}
	if err := s.UpdateLocation(ctx, id, domain.LocationZoneIn, zoneIn); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateLocation(ctx, id, domain.LocationKind(9), zoneIn); err == nil {
		t.Error("UpdateLocation(unknown kind) error = nil")
	}
	if err := s.UpdateInstanceDuration(ctx, id, 2*time.Hour); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadInstanceBindings(ctx, []uint32{id, 500, 999})
	if err != nil {
		t.Fatalf("LoadInstanceBindings() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("bindings = %d, want 2", len(got))
	}
	bi := got[id]
	if bi.ZoneID != 77 || bi.Compass != b.Compass || bi.ZoneIn != zoneIn {
		t.Errorf("binding = %+v", bi)
	}
	if !bi.StartTime.Equal(epoch) || bi.Duration != 2*time.Hour {
		t.Errorf("binding time = %v + %v", bi.StartTime, bi.Duration)
	}
}

func TestReleaseInstance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	free, err := s.AllocateInstance(ctx, domain.InstanceBinding{ZoneID: 77, StartTime: epoch, Duration: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	e := insertExpedition(t, s, 101, alice)

	for _, id := range []uint32{free, e.Instance.InstanceID} {
		if err := s.ReleaseInstance(ctx, id); err != nil {
			t.Fatalf("ReleaseInstance(%d) error = %v", id, err)
		}
	}
	got, err := s.LoadInstanceBindings(ctx, []uint32{free, 101})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got[free]; ok {
		t.Error("unreferenced instance still stored")
	}
	if _, ok := got[101]; !ok {
		t.Error("referenced instance was released")
	}
}

func TestInsertExpedition_BoundInstanceAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := insertExpedition(t, s, 101, alice)

	id, err := s.FindExpeditionIDByInstance(ctx, 101)
	if err != nil || id != e.ID {
		t.Fatalf("FindExpeditionIDByInstance(101) = %d, %v", id, err)
	}
	if id, err := s.FindExpeditionIDByInstance(ctx, 102); err != nil || id != 0 {
		t.Errorf("FindExpeditionIDByInstance(102) = %d, %v", id, err)
	}

	exps, err := service.LoadExpeditions(ctx, s, nil)
	if err != nil || len(exps) != 1 {
		t.Fatalf("LoadExpeditions() = %v, %v", exps, err)
	}
	if in := exps[0].Instance; in.InstanceID != 101 || in.ZoneID != 77 || in.Duration != time.Hour {
		t.Errorf("instance = %+v", in)
	}
}

func TestExpeditionLockouts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := insertExpedition(t, s, 0, alice)

	replay := domain.NewLockoutTimer(e.UUID, e.Name, domain.ReplayTimerName, 3600, epoch)
	boss := domain.NewLockoutTimer(e.UUID, e.Name, "Boss", 60, epoch)
	if err := s.InsertLockouts(ctx, e.ID, []domain.LockoutTimer{replay, boss}); err != nil {
		t.Fatal(err)
	}
	boss = domain.NewLockoutTimer(e.UUID, e.Name, "Boss", 30, epoch)
	if err := s.InsertLockout(ctx, e.ID, boss); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadLockouts(ctx, []uint32{e.ID})
	if err != nil {
		t.Fatal(err)
	}
	ts := got[e.ID]
	if len(ts) != 2 {
		t.Fatalf("lockouts = %+v, want 2", ts)
	}
	if ts[1].EventName != "Boss" || ts[1].Duration != 30*time.Second || !ts[1].ExpireTime.Equal(epoch.Add(30*time.Second)) {
		t.Errorf("boss = %+v", ts[1])
	}
	if ts[0].UUID != e.UUID || ts[0].ExpeditionName != e.Name {
		t.Errorf("replay = %+v", ts[0])
	}

	if err := s.DeleteLockout(ctx, e.ID, "Boss"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.LoadLockouts(ctx, []uint32{e.ID})
	if len(got[e.ID]) != 1 {
		t.Errorf("after delete = %+v", got[e.ID])
	}

	if err := s.DeleteExpedition(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = s.LoadLockouts(ctx, []uint32{e.ID})
	if len(got) != 0 {
		t.Errorf("lockouts after expedition delete = %+v", got)
	}
	rows, _ := s.LoadExpeditionRows(ctx, nil)
	if len(rows) != 0 {
		t.Errorf("rows after delete = %+v", rows)
	}
}

func TestCharacterLockouts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	replay := domain.NewLockoutTimer("u1", "Crypt", domain.ReplayTimerName, 3600, epoch)
	boss := domain.NewLockoutTimer("u1", "Crypt", "Boss", 600, epoch)
	other := domain.NewLockoutTimer("u2", "Tomb", "Boss", 600, epoch)

	if err := s.InsertCharacterLockouts(ctx, []domain.Member{alice, bob}, []domain.LockoutTimer{replay, boss}, false); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertCharacterLockouts(ctx, []domain.Member{alice}, []domain.LockoutTimer{other}, true); err != nil {
		t.Fatal(err)
	}

	active, err := s.LoadCharacterLockouts(ctx, alice.CharacterID, false)
	if err != nil || len(active) != 2 {
		t.Fatalf("active = %+v, %v", active, err)
	}
	pending, _ := s.LoadCharacterLockouts(ctx, alice.CharacterID, true)
	if len(pending) != 1 || pending[0].UUID != "u2" {
		t.Fatalf("pending = %+v", pending)
	}

	// Same key in another case overwrites instead of duplicating.
	upper := domain.NewLockoutTimer("u1", "CRYPT", "boss", 60, epoch)
	if err := s.InsertCharacterLockouts(ctx, []domain.Member{alice}, []domain.LockoutTimer{upper}, false); err != nil {
		t.Fatal(err)
	}
	active, _ = s.LoadCharacterLockouts(ctx, alice.CharacterID, false)
	if len(active) != 2 || active[1].Duration != time.Minute {
		t.Errorf("active after overwrite = %+v", active)
	}

	if err := s.ActivatePendingLockouts(ctx, alice.CharacterID, "u2"); err != nil {
		t.Fatal(err)
	}
	active, _ = s.LoadCharacterLockouts(ctx, alice.CharacterID, false)
	if len(active) != 3 {
		t.Errorf("active after activate = %d, want 3", len(active))
	}

	if err := s.DeleteCharacterLockouts(ctx, []uint32{alice.CharacterID, bob.CharacterID}, "crypt", "Boss"); err != nil {
		t.Fatal(err)
	}
	bobs, _ := s.LoadCharacterLockouts(ctx, bob.CharacterID, false)
	if len(bobs) != 1 || !bobs[0].IsReplay() {
		t.Errorf("bob after event delete = %+v", bobs)
	}

	if err := s.DeleteCharacterLockoutsByName(ctx, "BOB", "Crypt", ""); err != nil {
		t.Fatal(err)
	}
	if bobs, _ := s.LoadCharacterLockouts(ctx, bob.CharacterID, false); len(bobs) != 0 {
		t.Errorf("bob after delete by name = %+v", bobs)
	}

	if err := s.InsertCharacterLockouts(ctx, []domain.Member{carol}, []domain.LockoutTimer{boss}, true); err != nil {
		t.Fatal(err)
	}
	if err := s.DeletePendingLockouts(ctx, []uint32{carol.CharacterID, alice.CharacterID}); err != nil {
		t.Fatal(err)
	}
	if p, _ := s.LoadCharacterLockouts(ctx, carol.CharacterID, true); len(p) != 0 {
		t.Errorf("carol pending = %+v", p)
	}
	if a, _ := s.LoadCharacterLockouts(ctx, alice.CharacterID, false); len(a) != 2 {
		t.Errorf("alice active after pending delete = %+v", a)
	}
}
