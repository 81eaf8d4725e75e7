package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
)

var errStoreDown = errors.New("store down")

// ============================================================================
// Registry and clients
// ============================================================================

type fakeRegistry struct {
	m map[uint32]*domain.Expedition
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{m: make(map[uint32]*domain.Expedition)}
}

func (r *fakeRegistry) Get(id uint32) (*domain.Expedition, bool) { e, ok := r.m[id]; return e, ok }
func (r *fakeRegistry) Put(e *domain.Expedition)                 { r.m[e.ID] = e }
func (r *fakeRegistry) Delete(id uint32)                         { delete(r.m, id) }
func (r *fakeRegistry) Clear()                                   { r.m = make(map[uint32]*domain.Expedition) }
func (r *fakeRegistry) Len() int                                 { return len(r.m) }

func (r *fakeRegistry) All() []*domain.Expedition {
	out := make([]*domain.Expedition, 0, len(r.m))
	for _, e := range r.m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeRegistry) FindByCharacterID(id uint32) (*domain.Expedition, bool) {
	for _, e := range r.All() {
		if e.HasMember(id) {
			return e, true
		}
	}
	return nil, false
}

func (r *fakeRegistry) FindByCharacterName(name string) (*domain.Expedition, bool) {
	for _, e := range r.All() {
		if e.HasMemberName(name) {
			return e, true
		}
	}
	return nil, false
}

type fakeClients struct {
	m map[uint32]*domain.Character
}

func newFakeClients() *fakeClients {
	return &fakeClients{m: make(map[uint32]*domain.Character)}
}

func (c *fakeClients) Add(ch *domain.Character) { c.m[ch.ID] = ch }

func (c *fakeClients) Remove(id uint32) (*domain.Character, bool) {
	ch, ok := c.m[id]
	delete(c.m, id)
	return ch, ok
}

func (c *fakeClients) Character(id uint32) (*domain.Character, bool) { ch, ok := c.m[id]; return ch, ok }

func (c *fakeClients) CharacterByName(name string) (*domain.Character, bool) {
	for _, ch := range c.m {
		if strings.EqualFold(ch.Name, name) {
			return ch, true
		}
	}
	return nil, false
}

func (c *fakeClients) InInstance(zoneID, instanceID uint32) []*domain.Character {
	var out []*domain.Character
	for _, ch := range c.m {
		if ch.ZoneID == zoneID && ch.InstanceID == instanceID {
			out = append(out, ch)
		}
	}
	return out
}

// ============================================================================
// Notifier, publisher, router
// ============================================================================

type sent struct {
	to uint32
	n  Notification
}

type fakeNotifier struct {
	sent []sent
}

func (f *fakeNotifier) Notify(c *domain.Character, n Notification) {
	f.sent = append(f.sent, sent{to: c.ID, n: n})
}

func (f *fakeNotifier) notices(to uint32) []NoticeID {
	var out []NoticeID
	for _, s := range f.sent {
		if s.to == to && s.n.Kind == NotifyMessage {
			out = append(out, s.n.Notice)
		}
	}
	return out
}

func (f *fakeNotifier) has(to uint32, id NoticeID) bool {
	for _, n := range f.notices(to) {
		if n == id {
			return true
		}
	}
	return false
}

func (f *fakeNotifier) reset() { f.sent = nil }

type fakePublisher struct {
	msgs []protocol.Message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, m protocol.Message) error {
	p.msgs = append(p.msgs, m)
	return p.err
}

func (p *fakePublisher) ops() []protocol.Opcode {
	out := make([]protocol.Opcode, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Opcode()
	}
	return out
}

func (p *fakePublisher) last(op protocol.Opcode) protocol.Message {
	for i := len(p.msgs) - 1; i >= 0; i-- {
		if p.msgs[i].Opcode() == op {
			return p.msgs[i]
		}
	}
	return nil
}

func (p *fakePublisher) reset() { p.msgs = nil }

type routed struct {
	to protocol.Sender // zero for broadcast
	m  protocol.Message
}

type fakeRouter struct {
	out     []routed
	offline map[protocol.Sender]bool
}

func (r *fakeRouter) Broadcast(_ context.Context, m protocol.Message) error {
	r.out = append(r.out, routed{m: m})
	return nil
}

func (r *fakeRouter) SendTo(_ context.Context, zone protocol.Sender, m protocol.Message) error {
	if r.offline[zone] {
		return domain.ErrLinkDown
	}
	r.out = append(r.out, routed{to: zone, m: m})
	return nil
}

// ============================================================================
// Store
// ============================================================================

type storedMember struct {
	domain.Member
	current bool
}

type storedExpedition struct {
	e       *domain.Expedition
	members []storedMember
}

type charLockout struct {
	t       domain.LockoutTimer
	pending bool
}

type fakeStore struct {
	nextExp  uint32
	nextInst uint32

	exps      map[uint32]*storedExpedition
	instances map[uint32]domain.InstanceBinding
	lockouts  map[uint32]map[string]domain.LockoutTimer
	chars     map[uint32]map[domain.LockoutKey]charLockout
	names     map[string]uint32

	failAllocate      bool
	failInsert        bool
	failInsertMembers bool
	calls             []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		exps:      make(map[uint32]*storedExpedition),
		instances: make(map[uint32]domain.InstanceBinding),
		lockouts:  make(map[uint32]map[string]domain.LockoutTimer),
		chars:     make(map[uint32]map[domain.LockoutKey]charLockout),
		names:     make(map[string]uint32),
	}
}

func (s *fakeStore) call(name string) { s.calls = append(s.calls, name) }

func (s *fakeStore) InsertExpedition(_ context.Context, e *domain.Expedition) (uint32, error) {
	s.call("InsertExpedition")
	if s.failInsert {
		return 0, errStoreDown
	}
	s.nextExp++
	c := e.Clone()
	c.ID = s.nextExp
	s.exps[c.ID] = &storedExpedition{e: c}
	return c.ID, nil
}

func (s *fakeStore) LoadExpeditionRows(_ context.Context, ids []uint32) ([]ExpeditionRow, error) {
	s.call("LoadExpeditionRows")
	var keys []uint32
	for id := range s.exps {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	want := make(map[uint32]bool)
	for _, id := range ids {
		want[id] = true
	}
	var rows []ExpeditionRow
	for _, id := range keys {
		if ids != nil && !want[id] {
			continue
		}
		se := s.exps[id]
		base := ExpeditionRow{
			ID: id, UUID: se.e.UUID, InstanceID: se.e.Instance.InstanceID, Name: se.e.Name,
			LeaderID: se.e.LeaderID(), LeaderName: se.e.Leader().CharacterName,
			MinPlayers: se.e.MinPlayers, MaxPlayers: se.e.MaxPlayers,
			AddReplayOnJoin: se.e.AddReplayOnJoin, IsLocked: se.e.IsLocked,
		}
		if len(se.members) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, m := range se.members {
			r := base
			r.MemberID = m.CharacterID
			r.MemberName = m.CharacterName
			r.IsCurrentMember = m.current
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func (s *fakeStore) FindExpeditionIDByInstance(_ context.Context, instanceID uint32) (uint32, error) {
	for id, se := range s.exps {
		if se.e.Instance.InstanceID == instanceID {
			return id, nil
		}
	}
	return 0, nil
}

func (s *fakeStore) DeleteExpedition(_ context.Context, id uint32) error {
	s.call("DeleteExpedition")
	delete(s.exps, id)
	delete(s.lockouts, id)
	return nil
}

func (s *fakeStore) UpdateLeader(_ context.Context, id uint32, leader domain.Member) error {
	s.call("UpdateLeader")
	if se, ok := s.exps[id]; ok {
		se.e.SetLeader(leader)
	}
	return nil
}

func (s *fakeStore) UpdateLocked(_ context.Context, id uint32, locked bool) error {
	if se, ok := s.exps[id]; ok {
		se.e.IsLocked = locked
	}
	return nil
}

func (s *fakeStore) UpdateReplayOnJoin(_ context.Context, id uint32, enabled bool) error {
	if se, ok := s.exps[id]; ok {
		se.e.AddReplayOnJoin = enabled
	}
	return nil
}

func (s *fakeStore) InsertMember(_ context.Context, id uint32, m domain.Member) error {
	s.call("InsertMember")
	se, ok := s.exps[id]
	if !ok {
		return errStoreDown
	}
	for i := range se.members {
		if se.members[i].CharacterID == m.CharacterID {
			se.members[i].current = true
			return nil
		}
	}
	se.members = append(se.members, storedMember{Member: m, current: true})
	return nil
}

func (s *fakeStore) InsertMembers(ctx context.Context, id uint32, ms []domain.Member) error {
	if s.failInsertMembers {
		return errStoreDown
	}
	for _, m := range ms {
		if err := s.InsertMember(ctx, id, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) UpdateMemberRemoved(_ context.Context, id, characterID uint32) error {
	s.call("UpdateMemberRemoved")
	if se, ok := s.exps[id]; ok {
		for i := range se.members {
			if se.members[i].CharacterID == characterID {
				se.members[i].current = false
			}
		}
	}
	return nil
}

func (s *fakeStore) UpdateAllMembersRemoved(_ context.Context, id uint32) error {
	s.call("UpdateAllMembersRemoved")
	if se, ok := s.exps[id]; ok {
		for i := range se.members {
			se.members[i].current = false
		}
	}
	return nil
}

func (s *fakeStore) SwapMember(ctx context.Context, id uint32, add domain.Member, removeID uint32) error {
	s.call("SwapMember")
	if err := s.UpdateMemberRemoved(ctx, id, removeID); err != nil {
		return err
	}
	return s.InsertMember(ctx, id, add)
}

func (s *fakeStore) InsertLockout(_ context.Context, id uint32, t domain.LockoutTimer) error {
	s.call("InsertLockout")
	if s.lockouts[id] == nil {
		s.lockouts[id] = make(map[string]domain.LockoutTimer)
	}
	s.lockouts[id][t.EventName] = t
	return nil
}

func (s *fakeStore) InsertLockouts(ctx context.Context, id uint32, ts []domain.LockoutTimer) error {
	for _, t := range ts {
		if err := s.InsertLockout(ctx, id, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) DeleteLockout(_ context.Context, id uint32, event string) error {
	s.call("DeleteLockout")
	delete(s.lockouts[id], event)
	return nil
}

func (s *fakeStore) LoadLockouts(_ context.Context, ids []uint32) (map[uint32][]domain.LockoutTimer, error) {
	out := make(map[uint32][]domain.LockoutTimer)
	for _, id := range ids {
		for _, t := range s.lockouts[id] {
			out[id] = append(out[id], t)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertCharacterLockouts(_ context.Context, cs []domain.Member, ts []domain.LockoutTimer, pending bool) error {
	s.call("InsertCharacterLockouts")
	for _, c := range cs {
		s.names[strings.ToLower(c.CharacterName)] = c.CharacterID
		if s.chars[c.CharacterID] == nil {
			s.chars[c.CharacterID] = make(map[domain.LockoutKey]charLockout)
		}
		for _, t := range ts {
			s.chars[c.CharacterID][t.Key()] = charLockout{t: t, pending: pending}
		}
	}
	return nil
}

func (s *fakeStore) DeleteCharacterLockouts(_ context.Context, ids []uint32, expName, event string) error {
	s.call("DeleteCharacterLockouts")
	for _, id := range ids {
		for k, cl := range s.chars[id] {
			if strings.EqualFold(cl.t.ExpeditionName, expName) && (event == "" || strings.EqualFold(cl.t.EventName, event)) {
				delete(s.chars[id], k)
			}
		}
	}
	return nil
}

func (s *fakeStore) DeleteCharacterLockoutsByName(ctx context.Context, name, expName, event string) error {
	id, ok := s.names[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return s.DeleteCharacterLockouts(ctx, []uint32{id}, expName, event)
}

func (s *fakeStore) DeletePendingLockouts(_ context.Context, ids []uint32) error {
	for _, id := range ids {
		for k, cl := range s.chars[id] {
			if cl.pending {
				delete(s.chars[id], k)
			}
		}
	}
	return nil
}

func (s *fakeStore) LoadCharacterLockouts(_ context.Context, id uint32, pending bool) ([]domain.LockoutTimer, error) {
	var out []domain.LockoutTimer
	for _, cl := range s.chars[id] {
		if cl.pending == pending {
			out = append(out, cl.t)
		}
	}
	return out, nil
}

func (s *fakeStore) ActivatePendingLockouts(_ context.Context, id uint32, uuid string) error {
	for k, cl := range s.chars[id] {
		if cl.pending && cl.t.UUID == uuid {
			cl.pending = false
			s.chars[id][k] = cl
		}
	}
	return nil
}

func (s *fakeStore) AllocateInstance(_ context.Context, b domain.InstanceBinding) (uint32, error) {
	s.call("AllocateInstance")
	if s.failAllocate {
		return 0, errStoreDown
	}
	if b.InstanceID == 0 {
		s.nextInst++
		b.InstanceID = 100 + s.nextInst
	}
	s.instances[b.InstanceID] = b
	return b.InstanceID, nil
}

func (s *fakeStore) ReleaseInstance(_ context.Context, id uint32) error {
	s.call("ReleaseInstance")
	delete(s.instances, id)
	return nil
}

func (s *fakeStore) LoadInstanceBindings(_ context.Context, ids []uint32) (map[uint32]domain.InstanceBinding, error) {
	out := make(map[uint32]domain.InstanceBinding)
	for _, id := range ids {
		if b, ok := s.instances[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateLocation(_ context.Context, id uint32, kind domain.LocationKind, loc domain.Location) error {
	b := s.instances[id]
	b.SetLocation(kind, loc)
	s.instances[id] = b
	return nil
}

func (s *fakeStore) UpdateInstanceDuration(_ context.Context, id uint32, d time.Duration) error {
	b := s.instances[id]
	b.Duration = d
	s.instances[id] = b
	return nil
}

// ============================================================================
// Fixture
// ============================================================================

var (
	zoneA   = protocol.Sender{ZoneID: 10}
	zoneB   = protocol.Sender{ZoneID: 20}
	epoch   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testLog = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	t        *testing.T
	ctx      context.Context
	zone     *Zone
	registry *fakeRegistry
	clients  *fakeClients
	store    *fakeStore
	pub      *fakePublisher
	notes    *fakeNotifier
	clock    *clock
}

func newFixture(t *testing.T, self protocol.Sender) *fixture {
	t.Helper()
	return newFixtureWithStore(t, self, newFakeStore())
}

func newFixtureWithStore(t *testing.T, self protocol.Sender, store *fakeStore) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		registry: newFakeRegistry(),
		clients:  newFakeClients(),
		store:    store,
		pub:      &fakePublisher{},
		notes:    &fakeNotifier{},
		clock:    &clock{t: epoch},
	}
	f.zone = NewZone(self, f.registry, f.store, f.pub, f.clients, f.notes,
		WithLogger(testLog), WithClock(f.clock.now))
	return f
}

// connect adds a character to the zone at the zone's own location.
func (f *fixture) connect(id uint32, name string) *domain.Character {
	f.t.Helper()
	self := f.zone.Self()
	c := domain.NewCharacter(id, name, self.ZoneID, self.InstanceID)
	if err := f.zone.Connect(f.ctx, c); err != nil {
		f.t.Fatalf("Connect(%s) error = %v", name, err)
	}
	return c
}

// create makes an expedition led by leader with the given extra members.
func (f *fixture) create(leader *domain.Character, maxPlayers uint32, others ...*domain.Character) *domain.Expedition {
	f.t.Helper()
	req := &domain.CreateRequest{
		Name:            "Deepest Vault",
		MinPlayers:      1,
		MaxPlayers:      maxPlayers,
		Leader:          leader.Member(domain.StatusOnline),
		Members:         []domain.Member{leader.Member(domain.StatusOnline)},
		ZoneID:          77,
		Duration:        time.Hour,
		AddReplayOnJoin: true,
	}
	for _, o := range others {
		req.Members = append(req.Members, o.Member(domain.StatusOnline))
	}
	e, err := f.zone.TryCreate(f.ctx, leader, req)
	if err != nil {
		f.t.Fatalf("TryCreate() error = %v", err)
	}
	return e
}

// invite runs a local invite and accept.
func (f *fixture) invite(e *domain.Expedition, leader, target *domain.Character) error {
	f.t.Helper()
	if err := f.zone.AddPlayer(f.ctx, leader, target.Name, ""); err != nil {
		return err
	}
	return f.zone.InviteResponse(f.ctx, target, true)
}

func rosterIDs(e *domain.Expedition) []uint32 {
	return memberIDs(e.Members())
}

func equalIDs(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// checkInvariants asserts the leader and uniqueness invariants.
func checkInvariants(t *testing.T, e *domain.Expedition) {
	t.Helper()
	seen := make(map[uint32]bool)
	for _, m := range e.Members() {
		if seen[m.CharacterID] {
			t.Fatalf("duplicate member %d in %v", m.CharacterID, rosterIDs(e))
		}
		seen[m.CharacterID] = true
	}
	if e.MemberCount() > 0 && !seen[e.LeaderID()] {
		t.Fatalf("leader %d not in roster %v", e.LeaderID(), rosterIDs(e))
	}
}
