package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/protocol"
	"github.com/yndnr/dzmesh-go/internal/storage/memory"
)

type inlineExec struct{}

func (inlineExec) Do(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

func newTestHandler(t *testing.T, mutate func(*Config)) (*Handler, *memory.Registry) {
	t.Helper()
	reg := memory.NewRegistry()

	leader := domain.Member{CharacterID: 1, CharacterName: "Aria", Status: domain.StatusOnline}
	e := domain.NewExpedition(7, "uuid-7", "Crypt", leader, 1, 6)
	e.AddMember(leader)
	e.AddMember(domain.Member{CharacterID: 2, CharacterName: "Bran"})
	e.Instance = domain.InstanceBinding{InstanceID: 900, ZoneID: 77}
	e.SetLockout(domain.LockoutTimer{UUID: "uuid-7", ExpeditionName: "Crypt", EventName: "Boss", ExpireTime: time.Now().Add(time.Hour), Duration: time.Hour})
	reg.Put(e)
	reg.Put(domain.NewExpedition(3, "uuid-3", "Keep", domain.Member{CharacterID: 5, CharacterName: "Cato"}, 1, 6))

	cfg := Config{
		Role:   "zone",
		Self:   protocol.Sender{ZoneID: 77, InstanceID: 900},
		Source: RegistrySource{Registry: reg, Exec: inlineExec{}},
		LinkUp: func() bool { return true },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg), reg
}

func do(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s: %v (%q)", path, err, rec.Body.String())
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rec, resp := do(t, h, "/health")
	if rec.Code != http.StatusOK || resp.Code != "OK" {
		t.Errorf("GET /health = %d %s", rec.Code, resp.Code)
	}
}

func TestReady(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		h, _ := newTestHandler(t, func(c *Config) {
			c.Ready = map[string]ReadyCheck{"database": func(context.Context) error { return nil }}
		})
		if rec, _ := do(t, h, "/ready"); rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("failing check", func(t *testing.T) {
		h, _ := newTestHandler(t, func(c *Config) {
			c.Ready = map[string]ReadyCheck{
				"database":   func(context.Context) error { return nil },
				"world_link": func(context.Context) error { return errors.New("down") },
			}
		})
		rec, resp := do(t, h, "/ready")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		data := resp.Data.(map[string]any)
		failed := data["failed"].(map[string]any)
		if failed["world_link"] != "down" || len(failed) != 1 {
			t.Errorf("failed = %v", failed)
		}
	})
}

func TestStatusSummary(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rec, resp := do(t, h, "/admin/v1/status/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := resp.Data.(map[string]any)
	if data["role"] != "zone" || data["expeditions"] != float64(2) || data["link_up"] != true {
		t.Errorf("summary = %v", data)
	}
	if _, ok := data["zones"]; ok {
		t.Error("zone summary should not report zones")
	}
}

func TestListExpeditions(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	_, resp := do(t, h, "/admin/v1/expeditions")

	data := resp.Data.(map[string]any)
	list := data["expeditions"].([]any)
	if len(list) != 2 {
		t.Fatalf("expeditions = %d, want 2", len(list))
	}
	first := list[0].(map[string]any)
	if first["id"] != float64(3) {
		t.Errorf("first id = %v, want 3 (ordered by id)", first["id"])
	}
	second := list[1].(map[string]any)
	if second["leader"] != "Aria" || second["members"] != float64(2) || second["instance_id"] != float64(900) {
		t.Errorf("second = %v", second)
	}
}

func TestGetExpedition(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec, resp := do(t, h, "/admin/v1/expeditions/7")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := resp.Data.(map[string]any)
	roster := data["roster"].([]any)
	if len(roster) != 2 || roster[1].(map[string]any)["character_name"] != "Bran" {
		t.Errorf("roster = %v", roster)
	}
	lockouts := data["lockouts"].([]any)
	if len(lockouts) != 1 || lockouts[0].(map[string]any)["expired"] != false {
		t.Errorf("lockouts = %v", lockouts)
	}
}

func TestGetExpedition_Errors(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/admin/v1/expeditions/42", http.StatusNotFound, domain.ErrExpeditionNotFound.Code},
		{"/admin/v1/expeditions/abc", http.StatusBadRequest, domain.ErrInvalidArgument.Code},
		{"/admin/v1/expeditions/0", http.StatusBadRequest, domain.ErrInvalidArgument.Code},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec, resp := do(t, h, tt.path)
			if rec.Code != tt.status || resp.Code != tt.code {
				t.Errorf("GET %s = %d %s, want %d %s", tt.path, rec.Code, resp.Code, tt.status, tt.code)
			}
			if rec.Header().Get("X-Error-Code") != tt.code {
				t.Errorf("X-Error-Code = %q", rec.Header().Get("X-Error-Code"))
			}
		})
	}
}

func TestListZones(t *testing.T) {
	t.Run("zone process", func(t *testing.T) {
		h, _ := newTestHandler(t, nil)
		if rec, _ := do(t, h, "/admin/v1/zones"); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("world process", func(t *testing.T) {
		h, _ := newTestHandler(t, func(c *Config) {
			c.Role = "world"
			c.Self = protocol.Sender{}
			c.LinkUp = nil
			c.Zones = func() []protocol.Sender {
				return []protocol.Sender{{ZoneID: 77, InstanceID: 900}, {ZoneID: 12}}
			}
		})
		_, resp := do(t, h, "/admin/v1/zones")
		data := resp.Data.(map[string]any)
		if data["total"] != float64(2) {
			t.Errorf("zones = %v", data)
		}

		_, resp = do(t, h, "/admin/v1/status/summary")
		summary := resp.Data.(map[string]any)
		if summary["zones"] != float64(2) {
			t.Errorf("summary zones = %v", summary["zones"])
		}
	})
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.ErrExpeditionNotFound.Code, http.StatusNotFound},
		{domain.ErrNotMember.Code, http.StatusNotFound},
		{domain.ErrStaleState.Code, http.StatusConflict},
		{domain.ErrNotLeader.Code, http.StatusForbidden},
		{domain.ErrMalformedMessage.Code, http.StatusBadRequest},
		{domain.ErrMissingArgument.Code, http.StatusBadRequest},
		{domain.ErrLinkDown.Code, http.StatusServiceUnavailable},
		{domain.ErrPersistence.Code, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := errorCodeToHTTPStatus(tt.code); got != tt.want {
			t.Errorf("errorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
