package ingress

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// dropWarnInterval rate-limits the "queue capacity exceeded" warning
// (spec §7) so a sustained overflow doesn't spam the log.
const dropWarnInterval = 1 * time.Second

// BufferStats is a snapshot of ingress queue health, in the spirit of
// the teacher's SupplierStats (framesupplier/internal/types.go).
type BufferStats struct {
	IMUDepth      int
	FrameDepth    int
	IMUPushed     uint64
	FramePushed   uint64
	IMUDropped    uint64
	FrameDropped  uint64
}

// Buffers owns imu_q and feature_q under a single lock L_buf (spec §5):
// they are drained together by the pairer, so one mutex/cond pair is
// enough and matches the teacher's "single buffer lock, awake-one
// signaling" contract (spec §4.1).
type Buffers struct {
	mu   sync.Mutex
	cond *sync.Cond

	imu    []IMUSample
	frames []FeatureFrame

	imuCap   int
	frameCap int

	imuPushed, framePushed   uint64
	imuDropped, frameDropped uint64
	lastIMUWarn, lastFrameWarn time.Time

	closed bool
}

// NewBuffers creates empty queues with the given burst-safety capacities
// (spec §4.1: "~2000" for imu_q).
func NewBuffers(imuCap, frameCap int) *Buffers {
	b := &Buffers{imuCap: imuCap, frameCap: frameCap}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// PushIMU appends a sample, dropping the oldest queued sample if the
// stream is at capacity (spec §7: "drop the oldest measurement of the
// overflowing stream with a rate-limited warning").
func (b *Buffers) PushIMU(s IMUSample) {
	b.mu.Lock()
	if b.imuCap > 0 && len(b.imu) >= b.imuCap {
		b.imu = b.imu[1:]
		b.imuDropped++
		b.rateLimitedWarn(&b.lastIMUWarn, "imu queue overflow, dropping oldest sample")
	}
	b.imu = append(b.imu, s)
	b.imuPushed++
	b.cond.Signal()
	b.mu.Unlock()
}

// PushFeatureFrame appends a feature frame under the same overflow policy.
func (b *Buffers) PushFeatureFrame(f FeatureFrame) {
	b.mu.Lock()
	if b.frameCap > 0 && len(b.frames) >= b.frameCap {
		b.frames = b.frames[1:]
		b.frameDropped++
		b.rateLimitedWarn(&b.lastFrameWarn, "feature queue overflow, dropping oldest frame")
	}
	b.frames = append(b.frames, f)
	b.framePushed++
	b.cond.Signal()
	b.mu.Unlock()
}

func (b *Buffers) rateLimitedWarn(last *time.Time, msg string) {
	now := time.Now()
	if now.Sub(*last) < dropWarnInterval {
		return
	}
	*last = now
	slog.Warn(msg)
}

// Close wakes any waiter permanently; further pushes are still accepted
// (producers never block on shutdown) but NextBatch returns immediately.
func (b *Buffers) Close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// NextBatch blocks until pair yields at least one batch, ctx is
// cancelled, or Close is called — "await until the pairer yields a
// non-empty batch" (spec §9). diag reflects the last pairing attempt.
func (b *Buffers) NextBatch(ctx context.Context, pair PairFunc) ([]Batch, Diagnostic, bool) {
	stop := context.AfterFunc(ctx, func() { b.cond.Broadcast() })
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return nil, DiagOK, false
		}
		batches, remIMU, remFrames, diag := pair(b.imu, b.frames)
		b.imu, b.frames = remIMU, remFrames
		if len(batches) > 0 {
			return batches, diag, true
		}
		if b.closed {
			return nil, diag, false
		}
		b.cond.Wait()
	}
}

// QueuedIMU returns a snapshot of the IMU samples not yet handed to a
// batch — the "tail since the estimator's last consumed frame" spec
// §4.3's reseed must replay to stay current (spec §3: "predictor state
// equals last optimizer output + integration of the queued tail").
func (b *Buffers) QueuedIMU() []IMUSample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]IMUSample, len(b.imu))
	copy(out, b.imu)
	return out
}

// Stats returns a point-in-time snapshot (spec §9 "operational monitoring").
func (b *Buffers) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		IMUDepth:     len(b.imu),
		FrameDepth:   len(b.frames),
		IMUPushed:    b.imuPushed,
		FramePushed:  b.framePushed,
		IMUDropped:   b.imuDropped,
		FrameDropped: b.frameDropped,
	}
}
