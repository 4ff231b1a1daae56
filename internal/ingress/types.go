// Package ingress implements the bounded, timestamped FIFO queues that
// decouple IMU/feature/image producers from the fusion worker (spec §4.1).
//
// Two locks: L_buf guards imu/feature together (they are drained
// together by the pairer), L_img guards the image queue used for loop
// closure. Push is O(1) and never blocks beyond the critical section;
// L_buf's single condition variable wakes the sole fusion consumer, and
// the image queue has no condition variable (it is popped without
// waiting).
package ingress

import "github.com/kaben/fusion-core/internal/spatial"

// IMUSample is one inertial measurement (spec §3).
type IMUSample struct {
	T     float64        // monotonic seconds
	Accel spatial.Vec3   // body-frame specific force
	Gyro  spatial.Vec3   // body-frame angular rate
}

// FeaturePoint is a single normalized bearing observation (spec §3, §6).
type FeaturePoint struct {
	FeatureID int
	CameraID  int
	Bearing   spatial.Vec3 // z=1 normalized
}

// FeatureFrame is a time-stamped set of bearing observations (spec §3).
type FeatureFrame struct {
	T      float64
	Points []FeaturePoint
}

// ImageSample is a raw mono8 frame retained for loop closure (spec §6).
type ImageSample struct {
	T    float64
	Data []byte
}

// Batch is one synchronized (IMU-batch, feature-frame) tuple as produced
// by the measurement pairer (spec §4.2).
type Batch struct {
	IMUs  []IMUSample
	Frame FeatureFrame
}

// Diagnostic reports why a pairing pass did or didn't emit batches.
type Diagnostic int

const (
	// DiagOK means at least one batch was emitted (or nothing was queued).
	DiagOK Diagnostic = iota
	// DiagWaitForIMU means the newest IMU sample hasn't yet caught up to
	// the oldest queued frame — expected only at startup (spec §4.2 step 2).
	DiagWaitForIMU
	// DiagDroppedStaleFrame means a frame older than all queued IMU was
	// discarded as a startup race (spec §4.2 step 3).
	DiagDroppedStaleFrame
)

// PairFunc is the shape of the measurement-pairer algorithm (spec §4.2):
// a pure function over queue contents that returns emitted batches plus
// whatever must remain queued.
type PairFunc func(imu []IMUSample, frames []FeatureFrame) (batches []Batch, remainingIMU []IMUSample, remainingFrames []FeatureFrame, diag Diagnostic)
