package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/asgard/telemetry-core/internal/geometry"
	"github.com/asgard/telemetry-core/internal/telemetry"
)

func ptrF(v float64) *float64 { return &v }
func ptrB(v bool) *bool       { return &v }

func newTestHandlers() (*Handlers, *telemetry.Store) {
	clock := func() time.Time { return time.Unix(1000, 0) }
	store := telemetry.NewStore(30*time.Second, clock, nil)
	fusion := telemetry.NewFusionEngine(telemetry.FusionConfig{SmoothingWindow: 3, SensorConfidenceThreshold: 0.6})
	positions := telemetry.NewPositioningEngine(telemetry.PositioningConfig{RSSIMeasuredAt1M: -40, RSSIPathLossExponent: 2, MinBaseStations: 3}, store, clock)
	proximity := telemetry.NewProximityScanner(telemetry.ProximityConfig{WarningDistanceMeters: 5, CollisionDistanceMeters: 2})
	alerts := telemetry.NewAlertBuilder(telemetry.AlertConfig{MaxSpeedMS: 15, DedupWindow: 3 * time.Second}, clock)
	dispatcher := telemetry.NewDispatcher(store, fusion, positions, proximity, alerts, telemetry.MultiSink{})

	return NewHandlers(store, dispatcher), store
}

func TestHealth_Success(t *testing.T) {
	h, _ := newTestHandlers()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	h.Health(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}

	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if _, err := time.Parse(time.RFC3339, body["timestamp"].(string)); err != nil {
		t.Errorf("timestamp not RFC3339: %v", err)
	}
}

func TestIngest_MissingDeviceID(t *testing.T) {
	h, _ := newTestHandlers()

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()

	h.Ingest(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestIngest_Success(t *testing.T) {
	h, store := newTestHandlers()

	payload := ingestRequest{
		DeviceID:      "rover-1",
		Accelerometer: telemetry.Vector3{X: 0, Y: 0, Z: 9.81},
		Magnetometer:  telemetry.Vector3{X: 20, Y: 10, Z: 40},
	}
	data, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(data))
	rr := httptest.NewRecorder()

	h.Ingest(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rr.Code, http.StatusOK, rr.Body.String())
	}

	if _, ok := store.Get("rover-1"); !ok {
		t.Fatal("expected device to be present in store after ingest")
	}
}

func TestRegister_MissingDeviceID(t *testing.T) {
	h, _ := newTestHandlers()

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()

	h.Register(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRegister_SeedsKnownPosition(t *testing.T) {
	h, store := newTestHandlers()

	payload := registerRequest{
		DeviceID:      "anchor-1",
		IsBaseStation: true,
		KnownPosition: &geometry.Point{Lat: 10, Lng: 20},
	}
	data, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(data))
	rr := httptest.NewRecorder()

	h.Register(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rr.Code, http.StatusOK, rr.Body.String())
	}

	state, ok := store.Get("anchor-1")
	if !ok {
		t.Fatal("expected anchor-1 to be present in store after register")
	}
	if !state.IsBaseStation || !state.HasFix || state.Lat != 10 || state.Lng != 20 {
		t.Errorf("state = %+v, want IsBaseStation=true HasFix=true Lat=10 Lng=20", state)
	}
}

func TestScanAlerts_ReturnsProximityEvents(t *testing.T) {
	h, store := newTestHandlers()

	store.Update("dev-A", telemetry.StorePatch{Lat: ptrF(0), Lng: ptrF(0), HasFix: ptrB(true)})
	store.Update("dev-B", telemetry.StorePatch{Lat: ptrF(0), Lng: ptrF(0), HasFix: ptrB(true)})

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	rr := httptest.NewRecorder()

	h.ScanAlerts(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var events []telemetry.ProximityEvent
	if err := json.NewDecoder(rr.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) == 0 {
		t.Error("expected at least one proximity event for coincident devices")
	}
}

func TestDevice_NotFound(t *testing.T) {
	h, _ := newTestHandlers()

	req := httptest.NewRequest(http.MethodGet, "/devices/missing", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "missing")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rr := httptest.NewRecorder()
	h.Device(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
