package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/asgard/telemetry-core/internal/geometry"
	"github.com/asgard/telemetry-core/internal/observability"
	"github.com/asgard/telemetry-core/internal/obslog"
)

// IngestPacket is one decoded sensor packet arriving from a device
// connection, already validated by the transport adapter. IsBaseStation
// is optional on the wire (a packet that omits it must not flip a
// previously registered base station back to a mobile device), so it is
// carried as a tri-state pointer: nil means "unspecified, leave as is".
type IngestPacket struct {
	DeviceID      string
	IsBaseStation *bool
	Accelerometer Vector3
	Gyroscope     Vector3
	Magnetometer  Vector3
	GPS           *GPSFix
	RSSIBeacons   []RSSIBeacon
}

// Dispatcher orchestrates the per-packet pipeline (fuse, position,
// scan, build alerts, emit) and owns the lifecycle of the per-device
// resources the fusion stage holds (smoothing buffers); the alert
// builder's dedup table ages out through its own Sweep instead.
// It is the sole place event topics are named, so adapters never
// invent their own.
//
// mu serializes the per-packet pipeline: one packet is fused,
// positioned, scanned, and dispatched before the next begins, so
// successive packets for a device always observe the prior packet's
// store state.
type Dispatcher struct {
	mu sync.Mutex

	store     *Store
	fusion    *FusionEngine
	positions *PositioningEngine
	proximity *ProximityScanner
	alerts    *AlertBuilder
	sink      Sink
	log       *obslog.Logger
	tracer    trace.Tracer
}

// Topic names published through the dispatcher's Sink.
const (
	TopicPositionUpdate   = "position:update"
	TopicAlert            = "alert"
	TopicDeviceLeft       = "device:left"
	TopicDeviceListReply  = "device:list"
	TopicDeviceRegistered = "registered"
)

// NewDispatcher wires the pipeline stages together behind one entry
// point.
func NewDispatcher(store *Store, fusion *FusionEngine, positions *PositioningEngine, proximity *ProximityScanner, alerts *AlertBuilder, sink Sink) *Dispatcher {
	return &Dispatcher{
		store:     store,
		fusion:    fusion,
		positions: positions,
		proximity: proximity,
		alerts:    alerts,
		sink:      sink,
		log:       obslog.New("dispatcher"),
		tracer:    observability.Tracer("telemetry.dispatcher"),
	}
}

// Ingest runs one packet through fuse -> position -> scan -> alert ->
// emit, in that order. It never returns an error: malformed inputs are
// the transport adapter's responsibility to reject before calling in.
func (d *Dispatcher) Ingest(ctx context.Context, pkt IngestPacket) DeviceState {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "dispatcher.ingest",
		trace.WithAttributes(attribute.String("device.id", pkt.DeviceID)))
	defer span.End()

	observability.GetMetrics().PacketsIngested.WithLabelValues(pkt.DeviceID).Inc()

	d.mu.Lock()
	defer d.mu.Unlock()

	_, fuseSpan := d.tracer.Start(ctx, "dispatcher.fuse")
	fused := d.fusion.Fuse(pkt.DeviceID, pkt.Accelerometer, pkt.Gyroscope, pkt.Magnetometer)
	fuseSpan.End()

	_, posSpan := d.tracer.Start(ctx, "dispatcher.position")
	state := d.positions.Position(PositioningInput{
		DeviceID:      pkt.DeviceID,
		IsBaseStation: pkt.IsBaseStation,
		GPS:           pkt.GPS,
		RSSIBeacons:   pkt.RSSIBeacons,
		Raw: &RawSensorSample{
			Accelerometer: pkt.Accelerometer,
			Gyroscope:     pkt.Gyroscope,
			Magnetometer:  pkt.Magnetometer,
		},
	}, fused)
	posSpan.End()

	d.sink.Emit(TopicPositionUpdate, state)

	_, scanSpan := d.tracer.Start(ctx, "dispatcher.scan")
	events := d.proximity.Scan(d.store.GetAll())
	for _, alert := range d.alerts.FromProximity(events) {
		for _, id := range alert.Participants {
			d.store.AddAlert(id, alert)
		}
		d.sink.Emit(TopicAlert, alert)
	}
	scanSpan.End()

	if alert, ok := d.alerts.FromSpeed(pkt.DeviceID, state.SpeedMps); ok {
		d.store.AddAlert(pkt.DeviceID, alert)
		d.sink.Emit(TopicAlert, alert)
	}

	observability.GetMetrics().FusionCycleSeconds.Observe(time.Since(start).Seconds())
	return state
}

// Register upserts a skeleton record for deviceID: isBaseStation and,
// when present, knownPosition become its initial fix. It never replaces
// an existing device's sensor-derived state beyond these two fields;
// a later ingest packet fills in heading, speed, and confidence.
func (d *Dispatcher) Register(deviceID string, isBaseStation bool, knownPosition *geometry.Point) DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()

	patch := StorePatch{IsBaseStation: &isBaseStation}
	if knownPosition != nil {
		hasFix := true
		patch.Lat = &knownPosition.Lat
		patch.Lng = &knownPosition.Lng
		patch.HasFix = &hasFix
	}

	state := d.store.Update(deviceID, patch)

	d.sink.Emit(TopicDeviceRegistered, map[string]string{
		"deviceId": deviceID,
		"message":  fmt.Sprintf("device %s registered", deviceID),
	})

	return state
}

// ScanAlerts runs the proximity scanner over the current store snapshot
// and returns the raw, undeduped events. Unlike Ingest's pipeline, it
// never builds Alert records or touches the dedup table.
func (d *Dispatcher) ScanAlerts() []ProximityEvent {
	return d.proximity.Scan(d.store.GetAll())
}

// Disconnect tears down the per-device fusion state and removes the
// device from the store, then notifies subscribers it left.
func (d *Dispatcher) Disconnect(deviceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fusion.Teardown(deviceID)
	d.store.Remove(deviceID)
	d.sink.Emit(TopicDeviceLeft, map[string]string{"deviceId": deviceID})
}

// ListDevices answers a device:list:request with the current store
// summary, both returning it to the caller and broadcasting it on the
// sink so every connected subscriber stays in sync.
func (d *Dispatcher) ListDevices() Summary {
	sum := d.store.Summary()
	d.sink.Emit(TopicDeviceListReply, sum)
	return sum
}

// OnPrune is wired onto Store.RunBackgroundTasks so devices evicted by
// TTL also get their fusion state torn down and a departure notice
// emitted, exactly as an explicit Disconnect would.
func (d *Dispatcher) OnPrune(removedIDs []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range removedIDs {
		d.fusion.Teardown(id)
		d.log.Info("pruned stale device %s", id)
		d.sink.Emit(TopicDeviceLeft, map[string]string{"deviceId": id})
	}
}
