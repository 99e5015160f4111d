package telemetry

import "testing"

func TestAxisBuffer_MeanOfSingleSample(t *testing.T) {
	b := newAxisBuffer(5)
	got := b.push(Vector3{X: 1, Y: 2, Z: 3})
	want := Vector3{X: 1, Y: 2, Z: 3}
	if got != want {
		t.Errorf("mean = %+v, want %+v", got, want)
	}
}

func TestAxisBuffer_WindowTrimsOldest(t *testing.T) {
	b := newAxisBuffer(2)
	b.push(Vector3{X: 10})
	b.push(Vector3{X: 20})
	got := b.push(Vector3{X: 30})

	if b.len() != 2 {
		t.Fatalf("len = %d, want 2", b.len())
	}
	want := Vector3{X: 25} // mean of (20, 30), 10 evicted
	if got != want {
		t.Errorf("mean = %+v, want %+v", got, want)
	}
}

func TestAxisBuffer_ZeroWindowClampsToOne(t *testing.T) {
	b := newAxisBuffer(0)
	b.push(Vector3{X: 1})
	got := b.push(Vector3{X: 2})
	if b.len() != 1 {
		t.Fatalf("len = %d, want 1", b.len())
	}
	if got != (Vector3{X: 2}) {
		t.Errorf("mean = %+v, want {X:2}", got)
	}
}

func TestSmoothingBuffer_PushAllThreeAxes(t *testing.T) {
	sb := newSmoothingBuffer(3)

	sAccel, sGyro, sMag := sb.Push(
		Vector3{X: 1},
		Vector3{Y: 2},
		Vector3{Z: 3},
	)

	if sAccel != (Vector3{X: 1}) {
		t.Errorf("sAccel = %+v, want {X:1}", sAccel)
	}
	if sGyro != (Vector3{Y: 2}) {
		t.Errorf("sGyro = %+v, want {Y:2}", sGyro)
	}
	if sMag != (Vector3{Z: 3}) {
		t.Errorf("sMag = %+v, want {Z:3}", sMag)
	}
}

func TestSmoothingBuffer_AccelSamplesReflectsWindow(t *testing.T) {
	sb := newSmoothingBuffer(2)
	sb.Push(Vector3{Z: 1}, Vector3{}, Vector3{})
	sb.Push(Vector3{Z: 2}, Vector3{}, Vector3{})
	sb.Push(Vector3{Z: 3}, Vector3{}, Vector3{})

	samples := sb.AccelSamples()
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2", len(samples))
	}
	if samples[0].Z != 2 || samples[1].Z != 3 {
		t.Errorf("samples = %+v, want [{Z:2} {Z:3}]", samples)
	}
}
