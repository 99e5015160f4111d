package telemetry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asgard/telemetry-core/internal/observability"
)

// AlertConfig holds the thresholds and throttling window used when
// building alerts.
type AlertConfig struct {
	MaxSpeedMS  float64
	DedupWindow time.Duration
}

// AlertBuilder turns proximity events and speed readings into Alert
// records, suppressing repeats of the same alert within DedupWindow.
// The dedup table is keyed on an alert category ("proximity" for pairs,
// the SPEED_EXCEEDED kind for speed) plus the sorted participants; a sweep
// evicts stale entries so the table never grows unbounded.
type AlertBuilder struct {
	mu   sync.Mutex
	cfg  AlertConfig
	seen map[string]time.Time

	clock Clock
}

// NewAlertBuilder creates an alert builder with the given configuration.
func NewAlertBuilder(cfg AlertConfig, clock Clock) *AlertBuilder {
	if clock == nil {
		clock = time.Now
	}
	return &AlertBuilder{
		cfg:   cfg,
		seen:  make(map[string]time.Time),
		clock: clock,
	}
}

// FromProximity converts proximity events into alerts, deduped against
// the throttle table. Collisions and warnings both surface; the caller
// (dispatcher) decides how to route each severity. The dedup key is
// keyed on participants only ("proximity|<A>|<B>", IDs sorted), not severity:
// a pair escalating from warning to collision within the dedup window
// is still the same alert bucket, not a fresh one.
func (ab *AlertBuilder) FromProximity(events []ProximityEvent) []Alert {
	var out []Alert
	now := ab.clock()

	ab.mu.Lock()
	defer ab.mu.Unlock()

	for _, ev := range events {
		kind := AlertProximityWarning
		if ev.Severity == SeverityCollision {
			kind = AlertCollisionWarning
		}

		key := dedupKey("proximity", ev.A, ev.B)
		if ab.throttled(key, now) {
			observability.RecordAlertSuppressed(string(kind))
			continue
		}
		ab.seen[key] = now
		observability.RecordAlert(string(kind))

		out = append(out, Alert{
			ID:           uuid.NewString(),
			Kind:         kind,
			Severity:     ev.Severity,
			Participants: []string{ev.A, ev.B},
			Measurement:  ev.DistanceM,
			Message:      proximityMessage(kind, ev),
			Timestamp:    now.UTC().Format(time.RFC3339),
		})
	}

	return out
}

// FromSpeed returns a SPEED_EXCEEDED alert for deviceID if speedMps
// exceeds the configured maximum and one has not already fired within
// the dedup window.
func (ab *AlertBuilder) FromSpeed(deviceID string, speedMps float64) (Alert, bool) {
	if speedMps <= ab.cfg.MaxSpeedMS {
		return Alert{}, false
	}

	now := ab.clock()
	key := dedupKey(string(AlertSpeedExceeded), deviceID)

	ab.mu.Lock()
	defer ab.mu.Unlock()

	if ab.throttled(key, now) {
		observability.RecordAlertSuppressed(string(AlertSpeedExceeded))
		return Alert{}, false
	}
	ab.seen[key] = now
	observability.RecordAlert(string(AlertSpeedExceeded))

	return Alert{
		ID:           uuid.NewString(),
		Kind:         AlertSpeedExceeded,
		Severity:     SeverityWarning,
		Participants: []string{deviceID},
		Measurement:  speedMps,
		Message:      fmt.Sprintf("%s exceeded max speed: %.2f m/s", deviceID, speedMps),
		Timestamp:    now.UTC().Format(time.RFC3339),
	}, true
}

// throttled reports whether key fired within the dedup window of now.
// Caller must hold ab.mu.
func (ab *AlertBuilder) throttled(key string, now time.Time) bool {
	last, ok := ab.seen[key]
	if !ok {
		return false
	}
	return now.Sub(last) < ab.cfg.DedupWindow
}

// Sweep evicts dedup entries older than twice the dedup window, bounding
// the table's size under long-running churn. Entries younger than that
// may still be inside a live throttle interval and must survive.
func (ab *AlertBuilder) Sweep() {
	now := ab.clock()
	ab.mu.Lock()
	defer ab.mu.Unlock()
	for k, t := range ab.seen {
		if now.Sub(t) >= 2*ab.cfg.DedupWindow {
			delete(ab.seen, k)
		}
	}
}

func dedupKey(kind string, participants ...string) string {
	p := append([]string(nil), participants...)
	sort.Strings(p)
	key := kind
	for _, id := range p {
		key += "|" + id
	}
	return key
}

func proximityMessage(kind AlertKind, ev ProximityEvent) string {
	if kind == AlertCollisionWarning {
		return fmt.Sprintf("collision risk between %s and %s: %.2fm", ev.A, ev.B, ev.DistanceM)
	}
	return fmt.Sprintf("proximity warning between %s and %s: %.2fm", ev.A, ev.B, ev.DistanceM)
}
