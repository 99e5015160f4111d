package telemetry

import (
	"time"

	"github.com/asgard/telemetry-core/internal/geometry"
)

// GPSFix is an optional GPS reading carried on an ingest payload.
type GPSFix struct {
	Lat      float64
	Lng      float64
	Accuracy float64
}

// RSSIBeacon is one anchor observation carried on an ingest payload,
// used for indoor trilateration once ≥3 are present.
type RSSIBeacon struct {
	DeviceID string
	RSSI     int
	Position geometry.Planar
}

// PositioningInput bundles the per-packet inputs the positioning engine
// needs beyond the fused state and prior store entry. IsBaseStation is
// a tri-state pointer: nil means the packet didn't specify it, and the
// device's existing flag (if any) is left untouched.
type PositioningInput struct {
	DeviceID      string
	IsBaseStation *bool
	GPS           *GPSFix
	RSSIBeacons   []RSSIBeacon
	Raw           *RawSensorSample
}

// PositioningConfig holds the RSSI model constants and anchor minimum.
type PositioningConfig struct {
	RSSIMeasuredAt1M     float64
	RSSIPathLossExponent float64
	MinBaseStations      int
}

// PositioningEngine chooses GPS vs dead-reckoning for the outdoor fix
// and computes the indoor (x, y) position via RSSI trilateration when
// enough anchors are visible. It reads prior state from the store and
// writes the new state back to it.
type PositioningEngine struct {
	cfg   PositioningConfig
	store *Store
	clock Clock
}

// NewPositioningEngine creates a positioning engine bound to store.
func NewPositioningEngine(cfg PositioningConfig, store *Store, clock Clock) *PositioningEngine {
	if clock == nil {
		clock = time.Now
	}
	if cfg.MinBaseStations <= 0 {
		cfg.MinBaseStations = 3
	}
	return &PositioningEngine{cfg: cfg, store: store, clock: clock}
}

// Position resolves the device's new (lat, lng) and optional indoor
// position, then upserts it into the store.
func (pe *PositioningEngine) Position(in PositioningInput, fused FusedState) DeviceState {
	now := nowMillis(pe.clock())

	prev, hadPrev := pe.store.Get(in.DeviceID)

	lat, lng := prev.Lat, prev.Lng
	hasFix := prev.HasFix
	if in.GPS != nil && !hasFix {
		lat, lng = in.GPS.Lat, in.GPS.Lng
		hasFix = true
	}

	switch {
	case fused.ShouldUseGPS && in.GPS != nil:
		lat, lng = in.GPS.Lat, in.GPS.Lng
		hasFix = true
	case hadPrev && prev.LastUpdate > 0:
		dtMs := float64(now - prev.LastUpdate)
		p := geometry.DeadReckon(geometry.Point{Lat: lat, Lng: lng}, fused.Heading, fused.SpeedMps, dtMs)
		lat, lng = p.Lat, p.Lng
	case in.GPS != nil:
		lat, lng = in.GPS.Lat, in.GPS.Lng
		hasFix = true
	}

	var indoor *IndoorPosition
	if len(in.RSSIBeacons) >= pe.cfg.MinBaseStations {
		if p, ok := pe.trilaterate(in.RSSIBeacons); ok {
			indoor = &IndoorPosition{X: p.X, Y: p.Y}
		}
	}

	rssi := make(map[string]int, len(in.RSSIBeacons))
	for _, b := range in.RSSIBeacons {
		rssi[b.DeviceID] = b.RSSI
	}

	patch := StorePatch{
		IsBaseStation: in.IsBaseStation,
		Lat:           &lat,
		Lng:           &lng,
		HasFix:        &hasFix,
		Heading:       &fused.Heading,
		SpeedMps:      &fused.SpeedMps,
		Confidence:    &fused.Confidence,
		LastRawSensor: in.Raw,
	}
	if indoor != nil {
		patch.IndoorPos = indoor
	} else {
		patch.ClearIndoor = true
	}
	if len(rssi) > 0 {
		patch.RSSI = rssi
	}

	return pe.store.Update(in.DeviceID, patch)
}

// trilaterate picks the first three beacons and solves for an indoor
// fix. Degenerate geometry yields (zero, false); the caller leaves
// IndoorPos nil rather than treating this as an error.
func (pe *PositioningEngine) trilaterate(beacons []RSSIBeacon) (geometry.Planar, bool) {
	anchors := make([]geometry.Anchor, 0, 3)
	for i := 0; i < 3 && i < len(beacons); i++ {
		b := beacons[i]
		d := geometry.RSSIToDistance(float64(b.RSSI), pe.cfg.RSSIMeasuredAt1M, pe.cfg.RSSIPathLossExponent)
		anchors = append(anchors, geometry.Anchor{Position: b.Position, RangeM: d})
	}
	if len(anchors) < 3 {
		return geometry.Planar{}, false
	}
	return geometry.Trilaterate2D(anchors[0], anchors[1], anchors[2])
}

// DistanceBetween computes the Haversine distance between two devices'
// outdoor fixes.
func DistanceBetween(a, b DeviceState) (float64, bool) {
	pa, okA := a.Position()
	pb, okB := b.Position()
	if !okA || !okB {
		return 0, false
	}
	return geometry.Haversine(pa, pb), true
}
