package telemetry

import "testing"

func TestProximityScanner_WarningWithinThreshold(t *testing.T) {
	ps := NewProximityScanner(ProximityConfig{WarningDistanceMeters: 10, CollisionDistanceMeters: 2})

	a := DeviceState{DeviceID: "dev-A", HasFix: true, Lat: 0, Lng: 0}
	b := DeviceState{DeviceID: "dev-B", HasFix: true, Lat: 0.00005, Lng: 0} // ~5.5m north

	events := ps.Scan([]DeviceState{a, b})

	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Severity != SeverityWarning {
		t.Errorf("Severity = %v, want warning", events[0].Severity)
	}
}

func TestProximityScanner_CollisionWithinTighterThreshold(t *testing.T) {
	ps := NewProximityScanner(ProximityConfig{WarningDistanceMeters: 10, CollisionDistanceMeters: 5})

	a := DeviceState{DeviceID: "dev-A", HasFix: true, Lat: 0, Lng: 0}
	b := DeviceState{DeviceID: "dev-B", HasFix: true, Lat: 0.00001, Lng: 0} // ~1.1m

	events := ps.Scan([]DeviceState{a, b})

	if len(events) != 1 || events[0].Severity != SeverityCollision {
		t.Fatalf("events = %+v, want one collision event", events)
	}
}

func TestProximityScanner_NoEventBeyondWarningDistance(t *testing.T) {
	ps := NewProximityScanner(ProximityConfig{WarningDistanceMeters: 5, CollisionDistanceMeters: 2})

	a := DeviceState{DeviceID: "dev-A", HasFix: true, Lat: 0, Lng: 0}
	b := DeviceState{DeviceID: "dev-B", HasFix: true, Lat: 1, Lng: 1} // very far

	events := ps.Scan([]DeviceState{a, b})
	if len(events) != 0 {
		t.Errorf("events = %+v, want none", events)
	}
}

func TestProximityScanner_SkipsDevicesWithoutFix(t *testing.T) {
	ps := NewProximityScanner(ProximityConfig{WarningDistanceMeters: 10, CollisionDistanceMeters: 2})

	a := DeviceState{DeviceID: "dev-A", HasFix: false}
	b := DeviceState{DeviceID: "dev-B", HasFix: true, Lat: 0, Lng: 0}

	events := ps.Scan([]DeviceState{a, b})
	if len(events) != 0 {
		t.Errorf("events = %+v, want none (dev-A lacks a fix)", events)
	}
}

func TestProximityScanner_AllPairsScanned(t *testing.T) {
	ps := NewProximityScanner(ProximityConfig{WarningDistanceMeters: 1000, CollisionDistanceMeters: 2})

	devices := []DeviceState{
		{DeviceID: "dev-A", HasFix: true, Lat: 0, Lng: 0},
		{DeviceID: "dev-B", HasFix: true, Lat: 0, Lng: 0},
		{DeviceID: "dev-C", HasFix: true, Lat: 0, Lng: 0},
	}

	events := ps.Scan(devices)
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3 (all pairs of 3 coincident devices)", len(events))
	}
}

func TestProximityScanner_ExcludesBaseStationsFromPairwiseScoring(t *testing.T) {
	ps := NewProximityScanner(ProximityConfig{WarningDistanceMeters: 1000, CollisionDistanceMeters: 2})

	anchor := DeviceState{DeviceID: "anchor-1", HasFix: true, IsBaseStation: true, Lat: 0, Lng: 0}
	rover := DeviceState{DeviceID: "rover-1", HasFix: true, IsBaseStation: false, Lat: 0, Lng: 0}

	events := ps.Scan([]DeviceState{anchor, rover})
	if len(events) != 0 {
		t.Errorf("events = %+v, want none (base station excluded as a mobile target)", events)
	}
}

func TestProximityScanner_NoEventBetweenTwoBaseStations(t *testing.T) {
	ps := NewProximityScanner(ProximityConfig{WarningDistanceMeters: 1000, CollisionDistanceMeters: 2})

	a := DeviceState{DeviceID: "anchor-1", HasFix: true, IsBaseStation: true, Lat: 0, Lng: 0}
	b := DeviceState{DeviceID: "anchor-2", HasFix: true, IsBaseStation: true, Lat: 0, Lng: 0}

	events := ps.Scan([]DeviceState{a, b})
	if len(events) != 0 {
		t.Errorf("events = %+v, want none (both are base stations)", events)
	}
}

func TestProximityScanner_ThresholdIsStrictlyLessThan(t *testing.T) {
	a := DeviceState{DeviceID: "dev-A", HasFix: true, Lat: 0, Lng: 0}
	b := DeviceState{DeviceID: "dev-B", HasFix: true, Lat: 0, Lng: 0.00003} // ~3.3m east

	dist, ok := DistanceBetween(a, b)
	if !ok {
		t.Fatal("expected a distance for two fixed devices")
	}

	// A pair exactly at WarningDistanceMeters is not a warning.
	ps := NewProximityScanner(ProximityConfig{WarningDistanceMeters: dist, CollisionDistanceMeters: 2})
	if events := ps.Scan([]DeviceState{a, b}); len(events) != 0 {
		t.Errorf("events = %+v, want none at exactly the warning threshold", events)
	}

	// A pair exactly at CollisionDistanceMeters is a warning, not a collision.
	ps = NewProximityScanner(ProximityConfig{WarningDistanceMeters: 5, CollisionDistanceMeters: dist})
	events := ps.Scan([]DeviceState{a, b})
	if len(events) != 1 || events[0].Severity != SeverityWarning {
		t.Errorf("events = %+v, want one warning at exactly the collision threshold", events)
	}
}

func TestProximityScanner_DistanceIsRoundedToTwoDecimals(t *testing.T) {
	ps := NewProximityScanner(ProximityConfig{WarningDistanceMeters: 10, CollisionDistanceMeters: 2})

	a := DeviceState{DeviceID: "dev-A", HasFix: true, Lat: 0, Lng: 0}
	b := DeviceState{DeviceID: "dev-B", HasFix: true, Lat: 0.00005, Lng: 0}

	events := ps.Scan([]DeviceState{a, b})
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	rounded := float64(int(events[0].DistanceM*100)) / 100
	if events[0].DistanceM != rounded {
		t.Errorf("DistanceM = %v, not rounded to two decimals", events[0].DistanceM)
	}
}
