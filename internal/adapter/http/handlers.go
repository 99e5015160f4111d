// Package http provides the REST adapter: ingestion, device registry,
// and alert/health endpoints, backed by the telemetry dispatcher and
// store.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/asgard/telemetry-core/internal/apierr"
	"github.com/asgard/telemetry-core/internal/geometry"
	"github.com/asgard/telemetry-core/internal/telemetry"
)

// Handlers bundles the dependencies every HTTP handler needs.
type Handlers struct {
	store      *telemetry.Store
	dispatcher *telemetry.Dispatcher
}

// NewHandlers creates the handler set bound to store and dispatcher.
func NewHandlers(store *telemetry.Store, dispatcher *telemetry.Dispatcher) *Handlers {
	return &Handlers{store: store, dispatcher: dispatcher}
}

// ingestRequest is the wire shape of POST /ingest. IsBaseStation is
// optional: omitting it leaves a device's existing flag untouched
// rather than resetting it to false.
type ingestRequest struct {
	DeviceID      string                 `json:"deviceId"`
	IsBaseStation *bool                  `json:"isBaseStation,omitempty"`
	Accelerometer telemetry.Vector3      `json:"accelerometer"`
	Gyroscope     telemetry.Vector3      `json:"gyroscope"`
	Magnetometer  telemetry.Vector3      `json:"magnetometer"`
	GPS           *telemetry.GPSFix      `json:"gps,omitempty"`
	RSSIBeacons   []telemetry.RSSIBeacon `json:"rssiBeacons,omitempty"`
}

// registerRequest is the wire shape of POST /register.
type registerRequest struct {
	DeviceID      string          `json:"deviceId"`
	IsBaseStation bool            `json:"isBaseStation"`
	KnownPosition *geometry.Point `json:"knownPosition,omitempty"`
}

// Ingest handles POST /ingest: decode one sensor packet and run it
// through the dispatcher pipeline.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(err, "INVALID_PAYLOAD", "malformed sensor packet", http.StatusBadRequest))
		return
	}
	if req.DeviceID == "" {
		writeError(w, apierr.New("INVALID_PAYLOAD", "deviceId is required", http.StatusBadRequest))
		return
	}

	state := h.dispatcher.Ingest(r.Context(), telemetry.IngestPacket{
		DeviceID:      req.DeviceID,
		IsBaseStation: req.IsBaseStation,
		Accelerometer: req.Accelerometer,
		Gyroscope:     req.Gyroscope,
		Magnetometer:  req.Magnetometer,
		GPS:           req.GPS,
		RSSIBeacons:   req.RSSIBeacons,
	})

	writeJSON(w, http.StatusOK, state)
}

// Register handles POST /register: upsert a skeleton device record
// ahead of any sensor data, optionally seeding a known fixed position.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(err, "INVALID_PAYLOAD", "malformed register request", http.StatusBadRequest))
		return
	}
	if req.DeviceID == "" {
		writeError(w, apierr.New("INVALID_PAYLOAD", "deviceId is required", http.StatusBadRequest))
		return
	}

	state := h.dispatcher.Register(req.DeviceID, req.IsBaseStation, req.KnownPosition)
	writeJSON(w, http.StatusOK, state)
}

// Devices handles GET /devices.
func (h *Handlers) Devices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetAll())
}

// Device handles GET /devices/{id}.
func (h *Handlers) Device(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, ok := h.store.Get(id)
	if !ok {
		writeError(w, apierr.ErrUnknownDevice)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteDevice handles DELETE /devices/{id}, disconnecting a device
// exactly as if its connection had dropped.
func (h *Handlers) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.dispatcher.Disconnect(id)
	w.WriteHeader(http.StatusNoContent)
}

// Summary handles GET /summary.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dispatcher.ListDevices())
}

// ScanAlerts handles GET /alerts: the current raw, undeduped proximity
// scan, with no dedup table involved, distinct from the per-device
// dispatched alert history exposed at /devices/{id}/alerts.
func (h *Handlers) ScanAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dispatcher.ScanAlerts())
}

// Alerts handles GET /devices/{id}/alerts.
func (h *Handlers) Alerts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, ok := h.store.Get(id)
	if !ok {
		writeError(w, apierr.ErrUnknownDevice)
		return
	}
	writeJSON(w, http.StatusOK, d.Alerts)
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "telemetry-core",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apierr.APIError)
	if !ok {
		apiErr = apierr.Wrap(err, apierr.ErrInternal.Code, apierr.ErrInternal.Message, apierr.ErrInternal.Status)
	}
	writeJSON(w, apiErr.Status, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"status":  apiErr.Status,
		},
	})
}
