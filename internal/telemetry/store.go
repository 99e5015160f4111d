package telemetry

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asgard/telemetry-core/internal/observability"
	"github.com/asgard/telemetry-core/internal/obslog"
)

// StorePatch is a shallow-merge patch applied by Store.Update. A nil
// field leaves the corresponding DeviceState field unchanged, matching
// the "merges must preserve unchanged fields" invariant.
type StorePatch struct {
	IsBaseStation *bool
	Lat           *float64
	Lng           *float64
	HasFix        *bool
	IndoorPos     *IndoorPosition
	ClearIndoor   bool
	Heading       *float64
	SpeedMps      *float64
	Confidence    *float64
	RSSI          map[string]int
	LastRawSensor *RawSensorSample
}

// SnapshotStore persists and restores the device store's state. The
// default JSON-file implementation lives in internal/persistence; an
// optional MongoDB-backed implementation lives in
// internal/persistence/mongosnapshot. Both satisfy this interface.
type SnapshotStore interface {
	Save(generatedAt int64, devices []DeviceState) error
	Load() (generatedAt int64, devices []DeviceState, err error)
}

// Store is the authoritative in-memory map of device state. It is not a
// process singleton: callers construct one and thread it explicitly
// into the dispatcher, positioning engine, and any adapter.
type Store struct {
	mu      sync.RWMutex
	devices map[string]*DeviceState

	ttl   time.Duration
	clock Clock

	snapshot   SnapshotStore
	persisting atomic.Bool
	log        *obslog.Logger
}

// NewStore creates an empty device store.
func NewStore(ttl time.Duration, clock Clock, snapshot SnapshotStore) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		devices:  make(map[string]*DeviceState),
		ttl:      ttl,
		clock:    clock,
		snapshot: snapshot,
		log:      obslog.New("store"),
	}
}

// Update shallow-merges patch over the existing entry for id (or a fresh
// {deviceId, alerts:[]} if absent), forces LastUpdate to now, and
// returns the merged value.
func (s *Store) Update(id string, patch StorePatch) DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		d = &DeviceState{DeviceID: id, Alerts: []Alert{}}
		s.devices[id] = d
	}

	if patch.IsBaseStation != nil {
		d.IsBaseStation = *patch.IsBaseStation
	}
	if patch.Lat != nil {
		d.Lat = *patch.Lat
	}
	if patch.Lng != nil {
		d.Lng = *patch.Lng
	}
	if patch.HasFix != nil {
		d.HasFix = *patch.HasFix
	}
	if patch.ClearIndoor {
		d.IndoorPos = nil
	} else if patch.IndoorPos != nil {
		ip := *patch.IndoorPos
		d.IndoorPos = &ip
	}
	if patch.Heading != nil {
		d.Heading = *patch.Heading
	}
	if patch.SpeedMps != nil {
		d.SpeedMps = *patch.SpeedMps
	}
	if patch.Confidence != nil {
		d.Confidence = *patch.Confidence
	}
	if patch.RSSI != nil {
		if d.RSSI == nil {
			d.RSSI = make(map[string]int, len(patch.RSSI))
		}
		for k, v := range patch.RSSI {
			d.RSSI[k] = v
		}
	}
	if patch.LastRawSensor != nil {
		raw := *patch.LastRawSensor
		d.LastRawSensor = &raw
	}

	d.LastUpdate = nowMillis(s.clock())
	observability.UpdateStoreSize(len(s.devices))

	merged := *d
	s.persistBestEffort()
	return merged
}

// Get returns a copy of the device state for id, if present.
func (s *Store) Get(id string) (DeviceState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return DeviceState{}, false
	}
	return *d, true
}

// GetAll returns a snapshot copy of every active device.
func (s *Store) GetAll() []DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DeviceState, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// GetBaseStations returns a snapshot copy of every device flagged as a
// base station.
func (s *Store) GetBaseStations() []DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DeviceState
	for _, d := range s.devices {
		if d.IsBaseStation {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// AddAlert prepends alert to the device's bounded ring (≤50), truncating
// the oldest entries.
func (s *Store) AddAlert(id string, alert Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return
	}
	d.addAlert(alert)
}

// Remove unconditionally deletes id from the store.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, id)
	observability.UpdateStoreSize(len(s.devices))
}

// Summary returns device counts plus a projection of each device.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{Devices: make([]DeviceSummary, 0, len(s.devices))}
	for _, d := range s.devices {
		sum.TotalDevices++
		if d.IsBaseStation {
			sum.BaseStations++
		}
		sum.Devices = append(sum.Devices, DeviceSummary{
			DeviceID:      d.DeviceID,
			Lat:           d.Lat,
			Lng:           d.Lng,
			HasFix:        d.HasFix,
			SpeedMps:      d.SpeedMps,
			IsBaseStation: d.IsBaseStation,
			LastUpdated:   d.LastUpdate,
		})
	}
	sort.Slice(sum.Devices, func(i, j int) bool { return sum.Devices[i].DeviceID < sum.Devices[j].DeviceID })
	return sum
}

// Prune drops entries whose LastUpdate is older than the configured TTL,
// except devices flagged IsBaseStation: base stations may hold fixed,
// known positions indefinitely with no periodic updates and are exempt
// from TTL pruning. It returns the IDs
// removed so callers (fusion engine, dispatcher) can tear down any
// per-device state of their own.
func (s *Store) Prune() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMillis(s.clock())
	var removed []string
	for id, d := range s.devices {
		if d.IsBaseStation {
			continue
		}
		if now-d.LastUpdate > s.ttl.Milliseconds() {
			removed = append(removed, id)
			delete(s.devices, id)
		}
	}
	observability.RecordPruned(len(removed))
	observability.UpdateStoreSize(len(s.devices))
	return removed
}

// PersistSnapshot writes the full device set to the configured
// SnapshotStore. I/O failures are logged but never fatal.
func (s *Store) PersistSnapshot() {
	if s.snapshot == nil {
		return
	}
	s.mu.RLock()
	devices := make([]DeviceState, 0, len(s.devices))
	for _, d := range s.devices {
		devices = append(devices, *d)
	}
	now := nowMillis(s.clock())
	s.mu.RUnlock()

	start := time.Now()
	err := s.snapshot.Save(now, devices)
	observability.RecordSnapshotWrite(err == nil, time.Since(start))
	if err != nil {
		s.log.Warn("snapshot save failed: %v", err)
	}
}

// persistBestEffort fires a non-blocking snapshot write after a
// mutation; failures are tolerated exactly like the periodic snapshot.
// At most one best-effort write is in flight at a time: a mutation
// landing mid-write is skipped here and picked up by the periodic
// persistence task, which is the primary path.
func (s *Store) persistBestEffort() {
	if s.snapshot == nil {
		return
	}
	if !s.persisting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.persisting.Store(false)
		s.PersistSnapshot()
	}()
}

// LoadSnapshot restores the device set from the configured
// SnapshotStore, refreshing every LastUpdate to now so a restart does
// not immediately mass-prune devices that were live before the process
// stopped. I/O failures are logged but never fatal.
func (s *Store) LoadSnapshot() {
	if s.snapshot == nil {
		return
	}
	_, devices, err := s.snapshot.Load()
	if err != nil {
		s.log.Warn("snapshot load failed: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := nowMillis(s.clock())
	for i := range devices {
		d := devices[i]
		d.LastUpdate = now
		s.devices[d.DeviceID] = &d
	}
	observability.UpdateStoreSize(len(s.devices))
}

// RunBackgroundTasks registers the prune and persistence sweeps on sch,
// using the given intervals. It returns immediately; the tasks run
// until ctx (bound to sch) is cancelled.
func (s *Store) RunBackgroundTasks(ctx context.Context, sch *Scheduler, pruneEvery, persistEvery time.Duration, onPrune func(removed []string)) {
	sch.Every(ctx, pruneEvery, func() {
		removed := s.Prune()
		if len(removed) > 0 && onPrune != nil {
			onPrune(removed)
		}
	})
	sch.Every(ctx, persistEvery, s.PersistSnapshot)
}
