// Package fusion implements the fusion worker (C4, spec.md §4.4): the
// single long-lived consumer of paired (IMU-batch, frame) tuples that
// drives the estimator, builds keyframes for loop closure, and reseeds
// the fast predictor. Grounded on the teacher's supplier distribution
// loop (modules/framesupplier/internal/supplier.go) for the
// ctx-driven Run lifecycle shape.
package fusion

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/kaben/fusion-core/internal/collab"
	"github.com/kaben/fusion-core/internal/correction"
	"github.com/kaben/fusion-core/internal/ingress"
	"github.com/kaben/fusion-core/internal/mailbox"
	"github.com/kaben/fusion-core/internal/pairer"
	"github.com/kaben/fusion-core/internal/predictor"
	"github.com/kaben/fusion-core/internal/publish"
	"github.com/kaben/fusion-core/internal/spatial"
)

// maxYawDeltaRad and maxTranslationM are the loop-closure sanity guards
// of spec.md §4.4 step 2c ("|Δyaw|≤30°, |Δt|≤20 m").
const (
	maxYawDeltaRad  = 30 * math.Pi / 180
	maxTranslationM = 20.0
)

// BatchStats is emitted once per processed (IMUs, frame) batch for the
// health/observability surface, grounded on the teacher's
// WorkerStats/idle-detection pattern (framesupplier/internal/stats.go).
type BatchStats struct {
	FrameT       float64
	IMUCount     int
	Latency      time.Duration
	Solver       collab.SolverFlag
	KeyframeSent bool
	LoopAccepted bool
}

// Config bundles the collaborators and channels the worker needs.
type Config struct {
	Buffers    *ingress.Buffers
	Predictor  *predictor.State
	Estimator  collab.Estimator
	Correction *correction.Holder
	Publisher  publish.Publisher

	LoopClosureEnabled bool
	ImageQueue         *ingress.ImageQueue  // nil if loop closure disabled
	KeyframeOut        *mailbox.Mailbox[collab.Keyframe]
	RetrieveIn         *mailbox.Mailbox[collab.RetrieveData]
	PoseGraphQueueOut  *mailbox.Mailbox[int]

	// ClearLoop removes a rejected loop's annotation from the keyframe
	// database (spec.md §7: "bad loop ... keyframe's loop annotation
	// removed"), mirroring the original's cur_kf->removeLoop(). Wired by
	// the caller to the keyframe database's keyframedb.DB.ClearLoop.
	ClearLoop func(index int) error

	// MarkLooped re-confirms a loop the sanity guard accepted (spec.md
	// §4.4 step 2c: "if accepted, attach to the keyframe"). The loop
	// coordinator already marks both keyframes looped provisionally when
	// it finds the candidate; this is a no-op in the common case and
	// only matters if a caller's keyframe database needs the confirmation
	// recorded separately from the provisional mark.
	MarkLooped func(index int) error

	// OnBatch, if set, is called after every processed batch; used by
	// internal/health to aggregate BatchStats without the worker
	// depending on the health package.
	OnBatch func(BatchStats)
}

// Worker is the single long-lived fusion consumer. Its fields besides
// cfg are only ever touched from the Run goroutine, matching spec.md
// §4.4's "a single long-lived worker" — no lock is needed.
type Worker struct {
	cfg Config

	prevIMUT float64
	haveImu  bool

	nextGlobalIndex int
}

// New creates a fusion worker. Call Run to start its loop.
func New(cfg Config) *Worker {
	return &Worker{cfg: cfg}
}

// IngestIMU is the T_imu producer entry point of spec.md §5: the
// transport layer (external, spec.md §1) calls this for every raw IMU
// sample. It pushes into the ingress buffer for batched estimator
// consumption and feeds the fast predictor (C3) for high-rate
// dead-reckoning, in the lock order spec.md §5 fixes (L_buf before
// L_predictor). When the estimator has reached NON_LINEAR it also
// publishes the gated high-rate odometry output of spec.md §6.
func (w *Worker) IngestIMU(sample ingress.IMUSample) {
	w.cfg.Buffers.PushIMU(sample)
	w.cfg.Predictor.OnIMU(sample)

	if w.cfg.Estimator.SolverFlag() != collab.NonLinear {
		return
	}
	if w.cfg.Publisher == nil {
		return
	}
	corr := w.cfg.Correction.Load()
	snap := w.cfg.Predictor.Snapshot()
	worldP, worldQ := correction.Apply(corr, snap.P, snap.Q)
	_ = w.cfg.Publisher.PublishOdometry(publish.Odometry{T: snap.T, P: worldP, Q: worldQ, V: snap.V})
}

// IngestFeatureFrame is the T_feature producer entry point: the
// transport layer calls this for every feature-cloud message.
func (w *Worker) IngestFeatureFrame(frame ingress.FeatureFrame) {
	w.cfg.Buffers.PushFeatureFrame(frame)
}

// Run drains paired batches until ctx is cancelled or the ingress
// buffers close (spec.md §4.4 step 1: "wait on the buffer condvar
// until the pairer yields a non-empty batch").
func (w *Worker) Run(ctx context.Context) {
	for {
		batches, diag, ok := w.cfg.Buffers.NextBatch(ctx, pairer.Pair)
		if !ok {
			return
		}
		if diag == ingress.DiagDroppedStaleFrame {
			slog.Warn("fusion: dropped stale frame during pairing")
		}
		for _, batch := range batches {
			w.processBatch(batch)
		}
	}
}

func (w *Worker) processBatch(batch ingress.Batch) {
	start := time.Now()

	for _, sample := range batch.IMUs {
		dt := 0.0
		if w.haveImu {
			dt = sample.T - w.prevIMUT
		}
		if dt < 0 {
			slog.Warn("fusion: non-increasing imu timestamp in batch, skipping", "t", sample.T)
			continue
		}
		w.cfg.Estimator.ProcessIMU(dt, sample.Accel, sample.Gyro)
		w.prevIMUT = sample.T
		w.haveImu = true
	}

	kf, marginalized := w.cfg.Estimator.ProcessImage(batch.Frame)

	stats := BatchStats{
		FrameT:   batch.Frame.T,
		IMUCount: len(batch.IMUs),
		Solver:   w.cfg.Estimator.SolverFlag(),
	}

	if w.cfg.LoopClosureEnabled && marginalized && stats.Solver == collab.NonLinear {
		w.handleLoopClosure(kf, &stats)
	}

	corr := w.cfg.Correction.Load()
	worldP, worldQ := correction.Apply(corr, kf.P, kf.Q)
	if w.cfg.Publisher != nil {
		refined := publish.Odometry{T: batch.Frame.T, P: worldP, Q: worldQ, V: kf.V}
		_ = w.cfg.Publisher.PublishFrame(publish.FrameOutput{
			T:           batch.Frame.T,
			RefinedPose: refined,
			// No per-camera extrinsics are modeled (spec.md §1 drops
			// camera-intrinsics parsing, and nothing in this module carries
			// tic/ric); CameraPose collapses onto the body pose rather than
			// being left zero-valued (see DESIGN.md).
			CameraPose: refined,
			PointCount: len(batch.Frame.Points),
		})
	}

	stats.Latency = time.Since(start)
	if w.cfg.OnBatch != nil {
		w.cfg.OnBatch(stats)
	}

	// spec.md §4.4 step 3: reseed the fast predictor from the
	// estimator's sliding-window tail, re-based on the sensor timestamp
	// of the last IMU sample the estimator actually consumed (not wall
	// clock), then replay every IMU sample still queued after this frame
	// so the predictor stays current (spec §3, §4.3 "reseed").
	tail := w.cfg.Estimator.SlidingWindowTail()
	queued := w.cfg.Buffers.QueuedIMU()
	w.cfg.Predictor.Reseed(tail.Tail(), predictor.Correction{R: corr.R, T: corr.T}, w.prevIMUT, queued)
}

// handleLoopClosure implements spec.md §4.4 step 2c: pull the oldest
// image at/after the keyframe's timestamp, build a keyframe carrying
// both the VIO pose and the globally-corrected pose, hand it to the
// loop coordinator, and absorb any pending loop candidate from C5.
//
// The absorbed RetrieveData is almost never about the keyframe built in
// this same call — detection runs asynchronously on a keyframe C5
// received earlier, so by the time its RetrieveData comes back, this
// worker is typically several marginalized keyframes further along.
// The candidate is therefore resolved by its own cur_index against the
// keyframe database (via MarkLooped/ClearLoop), not by comparing
// timestamps against whatever keyframe happens to be under
// construction right now.
func (w *Worker) handleLoopClosure(mkf collab.MarginalizedKeyframe, stats *BatchStats) {
	if w.cfg.ImageQueue != nil {
		if _, ok := w.cfg.ImageQueue.PopOldestAtLeast(mkf.T); !ok {
			slog.Debug("fusion: no image available for keyframe", "t", mkf.T)
		}
	}

	corr := w.cfg.Correction.Load()
	worldP, worldQ := correction.Apply(corr, mkf.P, mkf.Q)

	kf := collab.Keyframe{
		GlobalIndex: w.nextGlobalIndex,
		T:           mkf.T,
		VIOPose:     collab.Pose{T: mkf.P, Q: mkf.Q},
		Corrected:   collab.Pose{T: worldP, Q: worldQ},
	}
	w.nextGlobalIndex++

	if rd, ok := w.cfg.RetrieveIn.TryTake(); ok && rd.RelativePose {
		w.resolveLoopCandidate(rd, stats)
	}

	if w.cfg.KeyframeOut != nil {
		w.cfg.KeyframeOut.Put(kf)
		stats.KeyframeSent = true
	}
}

// resolveLoopCandidate applies the sanity guard of spec.md §4.4 step
// 2c / §7 (|Δyaw| ≤ 30°, |Δt| ≤ 20 m) to a candidate C5 already marked
// provisionally looped, and enqueues it for pose-graph optimization on
// acceptance or clears the annotation on rejection.
func (w *Worker) resolveLoopCandidate(rd collab.RetrieveData, stats *BatchStats) {
	if math.Abs(rd.RelativeYaw) > maxYawDeltaRad || spatial.Norm2(rd.RelativeT) > maxTranslationM {
		slog.Debug("fusion: loop candidate rejected by sanity guard", "cur_index", rd.CurIndex)
		if w.cfg.ClearLoop != nil {
			if err := w.cfg.ClearLoop(rd.CurIndex); err != nil {
				slog.Debug("fusion: clear loop annotation failed", "cur_index", rd.CurIndex, "error", err)
			}
		}
		return
	}

	stats.LoopAccepted = true
	if w.cfg.MarkLooped != nil {
		if err := w.cfg.MarkLooped(rd.CurIndex); err != nil {
			slog.Debug("fusion: mark loop annotation failed", "cur_index", rd.CurIndex, "error", err)
		}
	}
	if w.cfg.PoseGraphQueueOut != nil {
		w.cfg.PoseGraphQueueOut.Put(rd.CurIndex)
	}
}
