package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/coordinator"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/entities"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/events"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/history"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/session"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi/ufanettest"
)

type fixture struct {
	vendor *ufanettest.Server
	coord  *coordinator.Coordinator
	set    *entities.Set
	hist   *history.Store
	router *mux.Router
}

func newFixture(t *testing.T, withHistory bool) *fixture {
	t.Helper()

	vendor := ufanettest.NewServer()
	t.Cleanup(vendor.Close)
	vendor.Respond(ufanetapi.DevicesEndpoint, http.StatusOK, `[{"id": 1, "custom_name": "Front", "cctv_number": 42}]`)
	vendor.Respond(ufanetapi.CamerasEndpoint, http.StatusOK, `[{"number": 42, "title": "Gate", "servers": {"domain": "cam"}, "token_l": "t"}]`)
	vendor.Respond("api/v0/skud/shared/1/open/", http.StatusOK, `{}`)

	api := ufanetapi.NewLiveClient(vendor.BaseURL()).WithTimeout(2 * time.Second)
	coord := coordinator.New(api, session.NewManager(api, ufanettest.Credentials))
	t.Cleanup(func() { coord.Close() })

	f := &fixture{vendor: vendor, coord: coord}

	bus := events.NewBus()
	if withHistory {
		hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { hist.Close() })
		if err := hist.InitSchema(context.Background()); err != nil {
			t.Fatal(err)
		}
		bus.Attach(hist)
		f.hist = hist
	}

	f.set = entities.NewSet(coord, bus)
	t.Cleanup(f.set.Close)

	bh := NewBridgeHandler(coord, f.set)
	if f.hist != nil {
		bh.WithHistory(f.hist)
	}

	f.router = mux.NewRouter()
	bh.Register(f.router)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func TestSnapshotBeforeAndAfterRefresh(t *testing.T) {
	f := newFixture(t, false)

	if rec := f.do(t, http.MethodGet, "/api/v1/snapshot", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before the first cycle, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected unhealthy before the first cycle, got %d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/snapshot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: %d", rec.Code)
	}

	var resp struct {
		Status struct {
			State string `json:"state"`
			Stale bool   `json:"stale"`
		} `json:"status"`
		Snapshot struct {
			Devices    []map[string]interface{} `json:"domofons"`
			Standalone []map[string]interface{} `json:"standalone_cameras"`
			Pairs      map[string]struct {
				Camera *struct {
					StreamSource string `json:"stream_source"`
				} `json:"camera"`
			} `json:"domofon_camera_map"`
		} `json:"snapshot"`
	}
	decode(t, rec, &resp)

	if resp.Status.State != "published" || resp.Status.Stale {
		t.Errorf("unexpected status %+v", resp.Status)
	}
	if len(resp.Snapshot.Devices) != 1 || len(resp.Snapshot.Standalone) != 0 {
		t.Errorf("unexpected snapshot %+v", resp.Snapshot)
	}
	if p := resp.Snapshot.Pairs["1"]; p.Camera == nil || p.Camera.StreamSource != "rtsp://cam/42?token=t" {
		t.Errorf("unexpected pairing %+v", p)
	}

	if rec := f.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("expected healthy, got %d", rec.Code)
	}
}

func TestRefreshAuthFailure(t *testing.T) {
	f := newFixture(t, false)
	f.vendor.Respond(ufanetapi.AuthEndpoint, http.StatusForbidden, `{}`)

	rec := f.do(t, http.MethodPost, "/api/v1/refresh", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	var resp errorResponse
	decode(t, rec, &resp)
	if resp.Class != "authentication" {
		t.Errorf("expected an authentication class, got %+v", resp)
	}
}

func TestEntitiesAndOpen(t *testing.T) {
	f := newFixture(t, true)
	if err := f.coord.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/entities", "")
	var states []entities.State
	decode(t, rec, &states)
	if len(states) != 2 {
		t.Errorf("expected a button and a camera, got %+v", states)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/entities/ufanet_domofon_1_camera", "")
	if rec.Code != http.StatusOK {
		t.Errorf("entity lookup: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/entities/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown entity, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/intercoms/1/open", "")
	var press pressResponse
	decode(t, rec, &press)
	if rec.Code != http.StatusOK || !press.Success {
		t.Errorf("expected the door to open, got %d %+v", rec.Code, press)
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/intercoms/9/open", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown intercom, got %d", rec.Code)
	}

	f.vendor.Respond("api/v0/skud/shared/1/open/", http.StatusInternalServerError, `{}`)
	rec = f.do(t, http.MethodPost, "/api/v1/buttons/press", `{"unique_id": "ufanet_domofon_1_button"}`)
	press = pressResponse{}
	decode(t, rec, &press)
	if rec.Code != http.StatusOK || press.Success {
		t.Errorf("expected a reported failure, got %d %+v", rec.Code, press)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/intercoms/1/history?limit=10", "")
	var openings []history.DoorOpening
	decode(t, rec, &openings)
	if len(openings) != 2 || openings[0].Success || !openings[1].Success {
		t.Errorf("unexpected history %+v", openings)
	}
}

func assertBadRequest(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected a JSON error, got Content-Type %q", ct)
	}

	var resp errorResponse
	decode(t, rec, &resp)
	if resp.Error == "" {
		t.Error("expected an error message")
	}
}

func TestPressButtonBadRequests(t *testing.T) {
	f := newFixture(t, false)

	assertBadRequest(t, f.do(t, http.MethodPost, "/api/v1/buttons/press", `{"unique_id": ""}`))
	assertBadRequest(t, f.do(t, http.MethodPost, "/api/v1/buttons/press", `{"unique_id": "a"}{"unique_id": "b"}`))
	assertBadRequest(t, f.do(t, http.MethodPost, "/api/v1/buttons/press", `{"unique_id": "a", "extra": 1}`))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/buttons/press", strings.NewReader(`unique_id=a`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assertBadRequest(t, rec)
}

func TestHistoryLimits(t *testing.T) {
	f := newFixture(t, true)

	for _, limit := range []string{"x", "-1", "501", "9000000000"} {
		t.Run(limit, func(t *testing.T) {
			assertBadRequest(t, f.do(t, http.MethodGet, "/api/v1/intercoms/1/history?limit="+limit, ""))
		})
	}

	rec := f.do(t, http.MethodGet, "/api/v1/intercoms/1/history?limit=500", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected the maximum limit to be accepted, got %d", rec.Code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t, false)

	if rec := f.do(t, http.MethodGet, "/api/v1/intercoms/1/history", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 with history disabled, got %d", rec.Code)
	}
}
