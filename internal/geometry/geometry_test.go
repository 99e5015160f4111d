package geometry

import (
	"math"
	"testing"
)

func TestHaversineSymmetry(t *testing.T) {
	a := Point{Lat: 51.5007, Lng: -0.1246}
	b := Point{Lat: 40.6892, Lng: -74.0445}

	if d1, d2 := Haversine(a, b), Haversine(b, a); math.Abs(d1-d2) > 1e-6 {
		t.Errorf("Haversine not symmetric: %v vs %v", d1, d2)
	}
}

func TestHaversineZeroForCoincidentPoints(t *testing.T) {
	p := Point{Lat: 10, Lng: 20}
	if d := Haversine(p, p); d != 0 {
		t.Errorf("Haversine(p, p) = %v, want 0", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Roughly 3.3m apart on the equator.
	a := Point{Lat: 0, Lng: 0}
	b := Point{Lat: 0, Lng: 0.00003}
	d := Haversine(a, b)
	if d < 3.0 || d > 3.6 {
		t.Errorf("Haversine ≈3.3m scenario got %.3f", d)
	}
}

func TestDeadReckonIdentityAtZeroSpeed(t *testing.T) {
	p := Point{Lat: 10, Lng: 20}
	got := DeadReckon(p, 90, 0, 1000)
	if got != p {
		t.Errorf("DeadReckon with speed=0 changed position: %+v", got)
	}
}

func TestDeadReckonIdentityAtZeroDt(t *testing.T) {
	p := Point{Lat: 10, Lng: 20}
	got := DeadReckon(p, 90, 5, 0)
	if got != p {
		t.Errorf("DeadReckon with dt=0 changed position: %+v", got)
	}
}

func TestDeadReckonNorthHeadingMovesLatitude(t *testing.T) {
	p := Point{Lat: 0, Lng: 0}
	got := DeadReckon(p, 0, 10, 1000)
	if got.Lat <= p.Lat {
		t.Errorf("heading 0 (north) should increase latitude, got %+v", got)
	}
	if math.Abs(got.Lng-p.Lng) > 1e-9 {
		t.Errorf("heading 0 (north) should not move longitude, got %+v", got)
	}
}

func TestDeadReckonEastHeadingMovesLongitude(t *testing.T) {
	p := Point{Lat: 0, Lng: 0}
	got := DeadReckon(p, 90, 10, 1000)
	if got.Lng <= p.Lng {
		t.Errorf("heading 90 (east) should increase longitude, got %+v", got)
	}
}

func TestRSSIToDistanceAtReference(t *testing.T) {
	d := RSSIToDistance(-40, -40, 2.0)
	if math.Abs(d-1.0) > 1e-9 {
		t.Errorf("RSSIToDistance at reference rssi = %v, want 1.0", d)
	}
}

func TestRSSIToDistanceFartherIsWeaker(t *testing.T) {
	near := RSSIToDistance(-40, -40, 2.0)
	far := RSSIToDistance(-70, -40, 2.0)
	if far <= near {
		t.Errorf("weaker rssi should imply farther distance: near=%v far=%v", near, far)
	}
}

func TestTrilaterate2DKnownTarget(t *testing.T) {
	target := Planar{X: 3, Y: 4}
	anchors := []Planar{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}}

	var a [3]Anchor
	for i, anchor := range anchors {
		dx := target.X - anchor.X
		dy := target.Y - anchor.Y
		a[i] = Anchor{Position: anchor, RangeM: math.Hypot(dx, dy)}
	}

	got, ok := Trilaterate2D(a[0], a[1], a[2])
	if !ok {
		t.Fatal("Trilaterate2D returned false for a well-posed system")
	}
	if math.Abs(got.X-target.X) > 1e-6 || math.Abs(got.Y-target.Y) > 1e-6 {
		t.Errorf("Trilaterate2D = %+v, want %+v", got, target)
	}
}

func TestTrilaterate2DDegenerateCoincidentAnchors(t *testing.T) {
	a := Anchor{Position: Planar{X: 0, Y: 0}, RangeM: 5}
	b := Anchor{Position: Planar{X: 0, Y: 0}, RangeM: 5} // same as A -> d=0
	c := Anchor{Position: Planar{X: 0, Y: 10}, RangeM: 5}

	_, ok := Trilaterate2D(a, b, c)
	if ok {
		t.Error("Trilaterate2D should report failure for coincident anchors A and B")
	}
}

func TestTrilaterate2DDegenerateCollinearAnchors(t *testing.T) {
	a := Anchor{Position: Planar{X: 0, Y: 0}, RangeM: 5}
	b := Anchor{Position: Planar{X: 10, Y: 0}, RangeM: 5}
	c := Anchor{Position: Planar{X: 20, Y: 0}, RangeM: 5} // collinear with A,B -> j=0

	_, ok := Trilaterate2D(a, b, c)
	if ok {
		t.Error("Trilaterate2D should report failure for collinear anchors")
	}
}
