// Package telemetry implements the real-time ingestion and inference
// pipeline: sensor fusion, position estimation, the device store,
// proximity/speed analysis, and event dispatch.
package telemetry

import (
	"time"

	"github.com/asgard/telemetry-core/internal/geometry"
)

// maxAlertsPerDevice bounds the ring of recent alerts kept on a device.
const maxAlertsPerDevice = 50

// Vector3 is a generic 3-axis sample (accelerometer, gyroscope, or
// magnetometer reading).
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IndoorPosition is a local-frame (x, y) fix derived from RSSI
// trilateration. Present only when ≥3 anchors were visible.
type IndoorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RawSensorSample is the last accepted accel/gyro/mag triple, kept for
// diagnostics.
type RawSensorSample struct {
	Accelerometer Vector3 `json:"accelerometer"`
	Gyroscope     Vector3 `json:"gyroscope"`
	Magnetometer  Vector3 `json:"magnetometer"`
}

// DeviceState is the authoritative record for one device, keyed by
// DeviceID. Optional fields are explicit: the outdoor fix is flagged by
// HasFix, the indoor fix and raw sample are pointers; presence is never
// inferred from a map key.
type DeviceState struct {
	DeviceID      string `json:"deviceId"`
	IsBaseStation bool   `json:"isBaseStation"`

	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	HasFix bool    `json:"hasFix"`

	IndoorPos *IndoorPosition `json:"indoorPosition,omitempty"`

	Heading    float64 `json:"heading"`
	SpeedMps   float64 `json:"speedMps"`
	Confidence float64 `json:"confidence"`

	LastUpdate int64 `json:"lastUpdate"` // epoch milliseconds

	RSSI map[string]int `json:"rssi,omitempty"`

	LastRawSensor *RawSensorSample `json:"lastRawSensor,omitempty"`

	Alerts []Alert `json:"alerts"`
}

// Position returns the device's outdoor fix as a geometry.Point, along
// with whether one has ever been recorded.
func (d *DeviceState) Position() (geometry.Point, bool) {
	if !d.HasFix {
		return geometry.Point{}, false
	}
	return geometry.Point{Lat: d.Lat, Lng: d.Lng}, true
}

// addAlert prepends an alert to the device's bounded ring, truncating to
// maxAlertsPerDevice.
func (d *DeviceState) addAlert(a Alert) {
	d.Alerts = append([]Alert{a}, d.Alerts...)
	if len(d.Alerts) > maxAlertsPerDevice {
		d.Alerts = d.Alerts[:maxAlertsPerDevice]
	}
}

// Severity classifies a proximity event.
type Severity string

const (
	SeverityWarning   Severity = "warning"
	SeverityCollision Severity = "collision"
)

// ProximityEvent is a transient per-scan record of two devices within
// alerting range of each other.
type ProximityEvent struct {
	A          string   `json:"a"`
	B          string   `json:"b"`
	DistanceM  float64  `json:"distanceM"`
	Severity   Severity `json:"severity"`
}

// AlertKind enumerates the kinds of alert the builder can emit.
type AlertKind string

const (
	AlertProximityWarning AlertKind = "PROXIMITY_WARNING"
	AlertCollisionWarning AlertKind = "COLLISION_WARNING"
	AlertSpeedExceeded    AlertKind = "SPEED_EXCEEDED"
)

// Alert is a transient, dispatched safety alert.
type Alert struct {
	ID           string    `json:"id"`
	Kind         AlertKind `json:"kind"`
	Severity     Severity  `json:"severity"`
	Participants []string  `json:"participants"`
	Measurement  float64   `json:"measurement"`
	Message      string    `json:"message"`
	Timestamp    string    `json:"timestamp"` // ISO-8601
}

// DeviceSummary is the projection returned by Store.Summary for each
// device.
type DeviceSummary struct {
	DeviceID      string   `json:"deviceId"`
	Lat           float64  `json:"lat,omitempty"`
	Lng           float64  `json:"lng,omitempty"`
	HasFix        bool     `json:"hasFix"`
	SpeedMps      float64  `json:"speedMps"`
	IsBaseStation bool     `json:"isBaseStation"`
	LastUpdated   int64    `json:"lastUpdated"`
}

// Summary is the aggregate returned by Store.Summary.
type Summary struct {
	TotalDevices int             `json:"totalDevices"`
	BaseStations int             `json:"baseStations"`
	Devices      []DeviceSummary `json:"devices"`
}

func nowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
