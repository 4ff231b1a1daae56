// Package collab defines the narrow contracts toward the external
// collaborators named in spec.md §6: the nonlinear sliding-window
// estimator, the loop detector, and the pose-graph optimizer. None of
// these are implemented here (spec.md §1 Non-goals) — the contracts are
// in scope because C4/C5 are specified entirely in terms of calls
// across them, grounded on the teacher's StreamProvider/Publisher
// interfaces in References/orion-prototipe/internal/core/interfaces.go.
package collab

import (
	"github.com/kaben/fusion-core/internal/ingress"
	"github.com/kaben/fusion-core/internal/predictor"
	"github.com/kaben/fusion-core/internal/spatial"
)

// SolverFlag is the estimator's externally visible state machine
// (spec.md §4.4): fast-predictor publication is gated on NonLinear.
type SolverFlag int

const (
	Initial SolverFlag = iota
	NonLinear
)

func (f SolverFlag) String() string {
	if f == NonLinear {
		return "NON_LINEAR"
	}
	return "INITIAL"
}

// EstimatorState is the sliding-window tail the fusion worker uses to
// reseed the fast predictor (spec.md §3, §4.3).
type EstimatorState struct {
	P, V, Ba, Bg, G spatial.Vec3
	Q               spatial.Quat
	LastAccel       spatial.Vec3
	LastGyro        spatial.Vec3
}

// Tail adapts an EstimatorState to the predictor's reseed input.
func (s EstimatorState) Tail() predictor.EstimatorTail {
	return predictor.EstimatorTail{
		P: s.P, V: s.V, Ba: s.Ba, Bg: s.Bg, G: s.G, Q: s.Q,
		LastAccel: s.LastAccel, LastGyro: s.LastGyro,
	}
}

// MarginalizedKeyframe describes the keyframe the estimator just
// produced, when it marginalizes the oldest window frame in NonLinear
// mode (spec.md §4.4 step 2c).
type MarginalizedKeyframe struct {
	T      float64
	P, V   spatial.Vec3
	Q      spatial.Quat
	Points []ingress.FeaturePoint
}

// Estimator is the nonlinear sliding-window back end (spec.md §6).
// ProcessIMU/ProcessImage drive it; SlidingWindowTail/SolverFlag/
// MarginalizedKeyframe read back its externally visible state.
type Estimator interface {
	ProcessIMU(dt float64, accel, gyro spatial.Vec3)
	ProcessImage(frame ingress.FeatureFrame) (MarginalizedKeyframe, bool)
	SlidingWindowTail() EstimatorState
	SolverFlag() SolverFlag
}

// Keyframe is the database-facing view of a keyframe (spec.md §3): a
// VIO pose, a globally-corrected pose, and enough identity to be
// referenced by stable index rather than by pointer.
type Keyframe struct {
	GlobalIndex int
	T           float64
	VIOPose     Pose
	Corrected   Pose
	Descriptors []byte
	Looped      bool
}

// Pose is a minimal position+orientation pair; spec.md keeps keyframe
// internals opaque except for identity, so this carries only what the
// loop-closure sanity guards of spec.md §4.4/§4.5 need.
type Pose struct {
	T spatial.Vec3
	Q spatial.Quat
}

// RetrieveData is the loop-closure handshake record of spec.md §3.
type RetrieveData struct {
	CurIndex     int
	T            float64
	OldPose      Pose
	LoopPose     Pose
	FeatureIDs   []int
	RelativePose bool
	RelativeT    spatial.Vec3
	RelativeYaw  float64
	Relocalized  bool
}

// LoopMatch is a loop candidate the bag-of-words index found for a
// keyframe, geometrically verified by PnP (spec.md §4.5 Detector, §3
// RetrieveData's relative_{t,yaw} fields): the inlier count gates
// acceptance against MIN_LOOP_NUM, and RelativeT/RelativeYaw are the
// PnP-recovered displacement between the current keyframe and the
// match, checked against the |Δyaw|≤30°/|Δt|≤20m sanity guard of
// spec.md §4.4 step 2c downstream.
type LoopMatch struct {
	OldIndex    int
	Inliers     int
	RelativeT   spatial.Vec3
	RelativeYaw float64
}

// LoopDetector queries the bag-of-words index for a loop candidate and
// runs the PnP geometric verification behind it (spec.md §4.5
// Detector); both the index and its relative-pose recovery are
// consumed as one external collaborator call.
type LoopDetector interface {
	Detect(kf Keyframe) (match LoopMatch, ok bool)
}

// PoseGraphOptimizer runs 4-DoF pose-graph optimization anchored at the
// given keyframe index (spec.md §4.5 Optimizer).
type PoseGraphOptimizer interface {
	Optimize(anchorIndex int) (R spatial.Quat, T spatial.Vec3, err error)
}
