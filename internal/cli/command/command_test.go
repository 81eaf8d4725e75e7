package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
	"github.com/yndnr/dzmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/dzmesh-go/internal/storage/memory"
	"github.com/yndnr/dzmesh-go/internal/storage/sqlstore"
)

type inlineExec struct{}

func (inlineExec) Do(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

// newAdmin serves the real admin handler over a registry with one
// expedition.
func newAdmin(t *testing.T, mutate func(*handler.Config)) string {
	t.Helper()
	reg := memory.NewRegistry()
	leader := domain.Member{CharacterID: 1, CharacterName: "Aria", Status: domain.StatusOnline}
	e := domain.NewExpedition(7, "uuid-7", "Crypt", leader, 1, 6)
	e.AddMember(leader)
	e.AddMember(domain.Member{CharacterID: 2, CharacterName: "Bran"})
	e.Instance = domain.InstanceBinding{InstanceID: 900, ZoneID: 77}
	e.SetLockout(domain.LockoutTimer{UUID: "uuid-7", ExpeditionName: "Crypt", EventName: "Boss",
		ExpireTime: time.Now().Add(time.Hour), Duration: time.Hour})
	reg.Put(e)

	cfg := handler.Config{
		Role:   "world",
		Source: handler.RegistrySource{Registry: reg, Exec: inlineExec{}},
		Zones: func() []protocol.Sender {
			return []protocol.Sender{{ZoneID: 77, InstanceID: 900}, {ZoneID: 12}}
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := httptest.NewServer(handler.New(cfg))
	t.Cleanup(srv.Close)
	return srv.URL
}

// run executes the CLI and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"dzmesh-cli"}, args...))
	return out.String(), err
}

func TestApp_Commands(t *testing.T) {
	app := App()
	names := map[string]bool{}
	for _, c := range app.Commands {
		names[c.Name] = true
	}
	for _, want := range []string{"status", "health", "ready", "expedition", "zone", "db"} {
		if !names[want] {
			t.Errorf("missing command %q", want)
		}
	}
}

func TestApp_RejectsUnknownOutput(t *testing.T) {
	if _, err := run(t, "--output", "xml", "health"); err == nil {
		t.Error("--output xml accepted")
	}
}

func TestStatus(t *testing.T) {
	url := newAdmin(t, nil)

	out, err := run(t, "--server", url, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	for _, want := range []string{"role", "world", "expeditions", "zones"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "--server", url, "-o", "json", "status")
	if err != nil {
		t.Fatal(err)
	}
	var s handler.StatusSummary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("json output: %v\n%s", err, out)
	}
	if s.Role != "world" || s.Expeditions != 1 || s.Zones == nil || *s.Zones != 2 {
		t.Errorf("summary = %+v", s)
	}
}

func TestHealth(t *testing.T) {
	url := newAdmin(t, nil)
	out, err := run(t, "--server", url, "health")
	if err != nil {
		t.Fatalf("health error = %v", err)
	}
	if !strings.Contains(out, "healthy") {
		t.Errorf("output = %q", out)
	}

	if _, err := run(t, "--server", "127.0.0.1:1", "--timeout", "200ms", "health"); err == nil {
		t.Error("health against a closed port succeeded")
	}
}

func TestReady(t *testing.T) {
	url := newAdmin(t, func(c *handler.Config) {
		c.Ready = map[string]handler.ReadyCheck{
			"database":   func(context.Context) error { return nil },
			"world_link": func(context.Context) error { return domain.ErrLinkDown },
		}
	})

	out, err := run(t, "--server", url, "ready")
	var exit cli.ExitCoder
	if !errors.As(err, &exit) || exit.ExitCode() != 2 {
		t.Fatalf("ready error = %v, want exit code 2", err)
	}
	if !strings.Contains(out, "not_ready") || !strings.Contains(out, "world_link") {
		t.Errorf("output = %q", out)
	}

	ok := newAdmin(t, nil)
	if out, err := run(t, "--server", ok, "ready"); err != nil || !strings.Contains(out, "ready") {
		t.Errorf("ready = %q, %v", out, err)
	}
}

func TestExpeditionList(t *testing.T) {
	url := newAdmin(t, nil)

	out, err := run(t, "--server", url, "expedition", "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "NAME") || !strings.Contains(lines[1], "Crypt") {
		t.Errorf("table output:\n%s", out)
	}
	if strings.Contains(out, "uuid-7") {
		t.Error("uuid shown without --wide")
	}

	out, err = run(t, "--server", url, "-o", "yaml", "exp", "ls")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "total: 1") || !strings.Contains(out, "name: Crypt") {
		t.Errorf("yaml output:\n%s", out)
	}
}

func TestExpeditionGet(t *testing.T) {
	url := newAdmin(t, nil)

	out, err := run(t, "--server", url, "expedition", "get", "7")
	if err != nil {
		t.Fatalf("get error = %v", err)
	}
	for _, want := range []string{"Crypt", "Roster (2/6)", "Bran", "Lockouts", "Boss"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	_, err = run(t, "--server", url, "expedition", "get", "99")
	if err == nil || !strings.Contains(err.Error(), "DZ-EXP-4040") {
		t.Errorf("missing expedition error = %v", err)
	}
	if _, err := run(t, "--server", url, "expedition", "get", "abc"); err == nil {
		t.Error("non-numeric id accepted")
	}
	if _, err := run(t, "--server", url, "expedition", "get"); err == nil {
		t.Error("missing id accepted")
	}
}

func TestZoneList(t *testing.T) {
	url := newAdmin(t, nil)
	out, err := run(t, "--server", url, "zone", "list")
	if err != nil {
		t.Fatalf("zone list error = %v", err)
	}
	if !strings.Contains(out, "ZONE_ID") || !strings.Contains(out, "900") {
		t.Errorf("output:\n%s", out)
	}

	zoneOnly := newAdmin(t, func(c *handler.Config) { c.Zones = nil })
	if _, err := run(t, "--server", zoneOnly, "zone", "list"); err == nil {
		t.Error("zone list on a zone process succeeded")
	}
}

func TestDB(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "dzmesh.db")
	db := []string{"--driver", "sqlite", "--dsn", dsn}

	out, err := run(t, append([]string{"db", "migrate"}, db...)...)
	if err != nil {
		t.Fatalf("db migrate error = %v", err)
	}
	if !strings.Contains(out, "schema version") {
		t.Errorf("migrate output = %q", out)
	}

	ctx := context.Background()
	sqlDB, err := sqlstore.Open(ctx, sqlstore.Options{Dialect: sqlstore.DialectSQLite, DSN: dsn})
	if err != nil {
		t.Fatal(err)
	}
	store := sqlstore.New(sqlDB, sqlstore.DialectSQLite)
	leader := domain.Member{CharacterID: 1, CharacterName: "Aria"}
	e := domain.NewExpedition(0, "uuid-a", "Crypt", leader, 1, 6)
	id, err := store.InsertExpedition(ctx, e)
	if err != nil {
		t.Fatalf("InsertExpedition() error = %v", err)
	}
	if err := store.InsertMember(ctx, id, leader); err != nil {
		t.Fatalf("InsertMember() error = %v", err)
	}
	_ = store.Close()

	out, err = run(t, append([]string{"db", "expeditions"}, db...)...)
	if err != nil {
		t.Fatalf("db expeditions error = %v", err)
	}
	if !strings.Contains(out, "Crypt") || !strings.Contains(out, "1 expedition(s)") {
		t.Errorf("expeditions output:\n%s", out)
	}

	out, err = run(t, append([]string{"-o", "json", "db", "version"}, db...)...)
	if err != nil {
		t.Fatal(err)
	}
	var v struct {
		Dialect string `json:"dialect"`
		Version int64  `json:"version"`
	}
	if err := json.Unmarshal([]byte(out), &v); err != nil || v.Dialect != "sqlite" || v.Version < 1 {
		t.Errorf("version output = %q (%v)", out, err)
	}
}

func TestDB_BadDriver(t *testing.T) {
	if _, err := run(t, "db", "version", "--driver", "oracle", "--dsn", "x"); err == nil {
		t.Error("unsupported driver accepted")
	}
}
