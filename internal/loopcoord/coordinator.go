// Package loopcoord implements the loop coordinator (C5, spec.md
// §4.5): a detector worker that consumes keyframes and queries the loop
// detector/BoW collaborator, and an optimizer worker that coalesces
// pending pose-graph indices and runs 4-DoF pose-graph optimization.
// Grounded on the teacher's two-worker, mailbox-fed shape
// (modules/framesupplier) generalized from frames to keyframes/indices.
package loopcoord

import (
	"context"
	"log/slog"
	"time"

	"github.com/kaben/fusion-core/internal/collab"
	"github.com/kaben/fusion-core/internal/correction"
	"github.com/kaben/fusion-core/internal/keyframedb"
	"github.com/kaben/fusion-core/internal/mailbox"
	"github.com/kaben/fusion-core/internal/publish"
)

// The temporal guard constants implement spec.md §4.5's "cur - old > 35
// and old > 30"; the inlier rule "> MIN_LOOP_NUM" uses
// Config.MinLoopInliers.
const (
	minTemporalGapNew = 35
	minTemporalGapOld = 30
)

// detectSlowThreshold and Config.MaxKeyframeNum gate downsampling (spec.md
// §4.5: "if detection took long (>1s) or the database exceeds
// MAX_KEYFRAME_NUM, downsample").
const detectSlowThreshold = 1 * time.Second

// Config bundles the collaborators and shared state the coordinator's
// two workers need.
type Config struct {
	DB         *keyframedb.DB
	Detector   collab.LoopDetector
	Optimizer  collab.PoseGraphOptimizer
	Correction *correction.Holder
	Publisher  publish.Publisher

	KeyframeIn  *mailbox.Mailbox[collab.Keyframe]
	PoseGraphIn *mailbox.Mailbox[int]
	RetrieveOut *mailbox.Mailbox[collab.RetrieveData]

	MinLoopInliers int // MIN_LOOP_NUM
	MaxKeyframeNum int // MAX_KEYFRAME_NUM

	// OptimizerIdlePoll holds an idle poll interval; zero becomes 5s.
	// RunOptimizer does not read it: the optimizer worker waits on
	// PoseGraphIn until a value arrives or ctx is cancelled.
	OptimizerIdlePoll time.Duration
}

// Coordinator owns the detector and optimizer workers.
type Coordinator struct {
	cfg Config
}

// New creates a loop coordinator.
func New(cfg Config) *Coordinator {
	if cfg.OptimizerIdlePoll <= 0 {
		cfg.OptimizerIdlePoll = 5 * time.Second
	}
	return &Coordinator{cfg: cfg}
}

// RunDetector implements spec.md §4.5 Detector: consumes keyframe_q,
// registers into the keyframe database, queries the loop detector, and
// on a geometrically and temporally valid match, marks both keyframes
// looped and pushes a RetriveData carrying the PnP-recovered relative
// pose to the fusion worker's inbox. The fusion worker (C4) owns the
// |Δyaw|/|Δt| sanity guard and the pose-graph enqueue that follows it
// (spec.md §4.4 step 2c) — this provisional mark is undone there via
// ClearLoop if the guard rejects the candidate.
func (c *Coordinator) RunDetector(ctx context.Context) {
	for {
		kf, ok := c.cfg.KeyframeIn.Take()
		if !ok {
			return
		}
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		c.cfg.DB.Add(kf)
		match, found := c.cfg.Detector.Detect(kf)
		elapsed := time.Since(start)

		if found && match.Inliers > c.cfg.MinLoopInliers && c.temporalGuardPasses(kf.GlobalIndex, match.OldIndex) {
			old, err := c.cfg.DB.Get(match.OldIndex)
			if err != nil {
				slog.Debug("loopcoord: loop candidate references missing keyframe", "old_index", match.OldIndex)
			} else {
				rd := collab.RetrieveData{
					CurIndex:     kf.GlobalIndex,
					T:            kf.T,
					OldPose:      old.VIOPose,
					RelativePose: true,
					RelativeT:    match.RelativeT,
					RelativeYaw:  match.RelativeYaw,
				}
				_ = c.cfg.DB.MarkLooped(kf.GlobalIndex)
				_ = c.cfg.DB.MarkLooped(match.OldIndex)
				c.cfg.RetrieveOut.Put(rd)
			}
		}

		if elapsed > detectSlowThreshold || c.cfg.DB.Size() > c.cfg.MaxKeyframeNum {
			evicted := c.cfg.DB.Downsample(c.cfg.MaxKeyframeNum)
			if len(evicted) > 0 {
				slog.Info("loopcoord: downsampled keyframe database", "evicted", len(evicted), "took", elapsed)
			}
		}
	}
}

func (c *Coordinator) temporalGuardPasses(curIndex, oldIndex int) bool {
	return curIndex-oldIndex > minTemporalGapNew && oldIndex > minTemporalGapOld
}

// RunOptimizer implements spec.md §4.5 Optimizer: on wake, coalesces
// all pending pose-graph indices (the mailbox already keeps only the
// newest), runs 4-DoF pose-graph optimization anchored there, stores
// the resulting correction, and publishes it as a PoseGraphUpdate.
// Odometry is not republished here. With nothing pending it blocks on
// the mailbox; there is no timed idle poll.
func (c *Coordinator) RunOptimizer(ctx context.Context) {
	for {
		anchor, ok := c.waitForAnchor(ctx)
		if !ok {
			return
		}
		if ctx.Err() != nil {
			return
		}

		r, t, err := c.cfg.Optimizer.Optimize(anchor)
		if err != nil {
			slog.Warn("loopcoord: pose graph optimization failed", "anchor", anchor, "error", err)
			continue
		}

		corr := c.cfg.Correction.Store(r, t)
		if c.cfg.Publisher != nil {
			_ = c.cfg.Publisher.PublishPoseGraph(publish.PoseGraphUpdate{
				AnchorIndex: anchor,
				R:           r,
				T:           t,
				Generation:  corr.Generation,
			})
		}
	}
}

// waitForAnchor blocks on the pose-graph mailbox until a value arrives
// or ctx is cancelled (which closes the mailbox).
func (c *Coordinator) waitForAnchor(ctx context.Context) (int, bool) {
	type result struct {
		v  int
		ok bool
	}
	resultCh := make(chan result, 1)
	go func() {
		v, ok := c.cfg.PoseGraphIn.Take()
		resultCh <- result{v, ok}
	}()

	select {
	case r := <-resultCh:
		return r.v, r.ok
	case <-ctx.Done():
		c.cfg.PoseGraphIn.Close()
		r := <-resultCh
		return r.v, r.ok
	}
}
