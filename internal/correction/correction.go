// Package correction holds the global loop-closure correction
// (R_rel, t_rel) of spec.md §3/§5, published as an atomically-swapped
// immutable snapshot so readers (C3, C4's odometry publish step) never
// block the single writer (C5's optimizer worker), and the writer never
// blocks on readers — the "single-writer/many-reader discipline" design
// note of spec.md §9 in place of an L_correction mutex.
package correction

import (
	"sync/atomic"

	"github.com/kaben/fusion-core/internal/spatial"
)

// Correction is the rigid transform applied on top of the estimator's
// local frame to produce the loop-closed world frame.
type Correction struct {
	R          spatial.Quat
	T          spatial.Vec3
	Generation uint64
}

// Identity is the initial, no-op correction.
var Identity = Correction{R: spatial.Identity}

// Holder is the atomically-swapped snapshot cell.
type Holder struct {
	p atomic.Pointer[Correction]
}

// NewHolder creates a holder seeded with Identity.
func NewHolder() *Holder {
	h := &Holder{}
	c := Identity
	h.p.Store(&c)
	return h
}

// Load returns the current correction. Safe for any number of
// concurrent readers without blocking the writer.
func (h *Holder) Load() Correction {
	return *h.p.Load()
}

// Store publishes a new correction. Only the pose-graph optimizer
// worker calls this (spec.md §5: "written only by T_pose_graph and
// reseed path"); generation increases monotonically so readers can
// detect a fresh correction without comparing R/T by value.
func (h *Holder) Store(r spatial.Quat, t spatial.Vec3) Correction {
	prev := h.Load()
	next := Correction{R: r, T: t, Generation: prev.Generation + 1}
	h.p.Store(&next)
	return next
}

// Apply maps a local-frame pose into the corrected world frame.
func Apply(c Correction, p spatial.Vec3, q spatial.Quat) (spatial.Vec3, spatial.Quat) {
	return spatial.Add(spatial.RotateVec(c.R, p), c.T), spatial.Normalize(spatial.MulQ(c.R, q))
}
