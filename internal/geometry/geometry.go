// Package geometry implements the pure, total positioning math the
// telemetry core relies on: Haversine distance, dead-reckoning
// integration, RSSI-to-distance conversion, and 2-D trilateration. Every
// function here is total on its documented domain: degenerate inputs
// yield an absent result, never a panic.
package geometry

import "math"

// earthRadiusMeters is the mean Earth radius used by the Haversine model.
const earthRadiusMeters = 6371000.0

// Point is a WGS-84 geographic coordinate in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Planar is a 2-D coordinate in a local metric frame (indoor positioning).
type Planar struct {
	X float64
	Y float64
}

// Haversine returns the great-circle distance in meters between two
// WGS-84 points. It is symmetric and zero for coincident points.
func Haversine(a, b Point) float64 {
	lat1 := degToRad(a.Lat)
	lat2 := degToRad(b.Lat)
	dLat := degToRad(b.Lat - a.Lat)
	dLng := degToRad(b.Lng - a.Lng)

	sinDLat := math.Sin(dLat / 2)
	sinDLng := math.Sin(dLng / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLng*sinDLng
	h = clamp01(h)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// DeadReckon advances a fix by headingDeg/speedMps over dtMs milliseconds.
// Heading 0 is North and increases clockwise; by the source convention
// preserved here, the North component is driven by cos(heading) and the
// East component by sin(heading), not the other way around.
func DeadReckon(p Point, headingDeg, speedMps float64, dtMs float64) Point {
	if dtMs <= 0 || speedMps <= 0 {
		return p
	}

	d := speedMps * dtMs / 1000.0
	headingRad := degToRad(headingDeg)

	latRad := degToRad(p.Lat)
	dLat := (d / earthRadiusMeters) * (180.0 / math.Pi) * math.Cos(headingRad)

	cosLat := math.Cos(latRad)
	var dLng float64
	if math.Abs(cosLat) > 1e-12 {
		dLng = (d / earthRadiusMeters) * (180.0 / math.Pi) * math.Sin(headingRad) / cosLat
	}

	return Point{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}

// RSSIToDistance converts a received signal strength (dBm) into an
// estimated distance in meters using the log-distance path-loss model:
// d = 10^((rssiRef - rssi) / (10*n)).
func RSSIToDistance(rssi, rssiRef, pathLossExponent float64) float64 {
	if pathLossExponent <= 0 {
		return 0
	}
	exp := (rssiRef - rssi) / (10 * pathLossExponent)
	return math.Pow(10, exp)
}

// Anchor is a trilateration anchor: a known planar position and an
// estimated range to the target.
type Anchor struct {
	Position Planar
	RangeM   float64
}

// Trilaterate2D solves for a 2-D point from three anchors with known
// positions and estimated ranges, following the translate-and-rotate
// construction: A becomes the origin, ex is the unit vector toward B,
// and C is projected onto the (ex, ey) basis. i is the scalar projection
// of (C-A) onto ex, a scalar.
//
// Returns false when the basis degenerates (A, B coincident, or A/B/C
// collinear) rather than panicking.
func Trilaterate2D(a, b, c Anchor) (Planar, bool) {
	bx := b.Position.X - a.Position.X
	by := b.Position.Y - a.Position.Y
	d := math.Hypot(bx, by)
	if d == 0 {
		return Planar{}, false
	}

	exX := bx / d
	exY := by / d

	cx := c.Position.X - a.Position.X
	cy := c.Position.Y - a.Position.Y

	i := cx*exX + cy*exY

	eyX := cx - i*exX
	eyY := cy - i*exY
	j := math.Hypot(eyX, eyY)
	if j == 0 {
		return Planar{}, false
	}
	eyX /= j
	eyY /= j

	rA2 := a.RangeM * a.RangeM
	rB2 := b.RangeM * b.RangeM
	rC2 := c.RangeM * c.RangeM

	x := (rA2 - rB2 + d*d) / (2 * d)
	y := (rA2-rC2+i*i+j*j)/(2*j) - (i/j)*x

	resultX := a.Position.X + x*exX + y*eyX
	resultY := a.Position.Y + x*exY + y*eyY

	if math.IsNaN(resultX) || math.IsNaN(resultY) {
		return Planar{}, false
	}

	return Planar{X: resultX, Y: resultY}, true
}

func degToRad(d float64) float64 {
	return d * math.Pi / 180.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
