package collab

import (
	"sync"

	"github.com/kaben/fusion-core/internal/ingress"
	"github.com/kaben/fusion-core/internal/spatial"
)

// FakeEstimator is a deterministic Estimator double for driving C4 end
// to end in tests without a real nonlinear solver. It integrates IMU
// the same way the predictor does (so tests can cross-check), flips to
// NonLinear after warmupFrames processed images, and marginalizes a
// keyframe on every processed image once warmed up.
type FakeEstimator struct {
	mu sync.Mutex

	warmupFrames  int
	framesSeen    int
	solver        SolverFlag
	state         EstimatorState
	lastAccel     spatial.Vec3
	lastGyro      spatial.Vec3
}

// NewFakeEstimator creates a fake that reaches NonLinear after
// warmupFrames calls to ProcessImage.
func NewFakeEstimator(warmupFrames int) *FakeEstimator {
	return &FakeEstimator{warmupFrames: warmupFrames, state: EstimatorState{Q: spatial.Identity}}
}

func (f *FakeEstimator) ProcessIMU(dt float64, accel, gyro spatial.Vec3) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a0 := spatial.Sub(spatial.RotateVec(f.state.Q, spatial.Sub(f.lastAccel, f.state.Ba)), f.state.G)
	omegaBar := spatial.Sub(spatial.Scale(0.5, spatial.Add(f.lastGyro, gyro)), f.state.Bg)
	f.state.Q = spatial.Normalize(spatial.MulQ(f.state.Q, spatial.DeltaQ(spatial.Scale(dt, omegaBar))))
	a1 := spatial.Sub(spatial.RotateVec(f.state.Q, spatial.Sub(accel, f.state.Ba)), f.state.G)
	aAvg := spatial.Scale(0.5, spatial.Add(a0, a1))
	f.state.P = spatial.Add(f.state.P, spatial.Add(spatial.Scale(dt, f.state.V), spatial.Scale(0.5*dt*dt, aAvg)))
	f.state.V = spatial.Add(f.state.V, spatial.Scale(dt, aAvg))

	f.lastAccel, f.lastGyro = accel, gyro
	f.state.LastAccel, f.state.LastGyro = accel, gyro
}

func (f *FakeEstimator) ProcessImage(frame ingress.FeatureFrame) (MarginalizedKeyframe, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.framesSeen++
	if f.framesSeen >= f.warmupFrames {
		f.solver = NonLinear
	}
	if f.solver != NonLinear {
		return MarginalizedKeyframe{}, false
	}
	return MarginalizedKeyframe{T: frame.T, P: f.state.P, V: f.state.V, Q: f.state.Q, Points: frame.Points}, true
}

func (f *FakeEstimator) SlidingWindowTail() EstimatorState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FakeEstimator) SolverFlag() SolverFlag {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.solver
}

// FakeLoopDetector always reports the configured match, letting tests
// drive both the "loop found" and "no loop" branches of spec.md §4.5,
// and both sides of the §4.4/§7 sanity guard, deterministically.
type FakeLoopDetector struct {
	OldIndex    int
	Inliers     int
	Found       bool
	RelativeT   spatial.Vec3
	RelativeYaw float64
}

func (f FakeLoopDetector) Detect(Keyframe) (LoopMatch, bool) {
	return LoopMatch{OldIndex: f.OldIndex, Inliers: f.Inliers, RelativeT: f.RelativeT, RelativeYaw: f.RelativeYaw}, f.Found
}

// FakePoseGraphOptimizer returns a fixed correction, or the configured
// error, regardless of anchor — enough to drive C5's optimizer worker
// deterministically.
type FakePoseGraphOptimizer struct {
	R   spatial.Quat
	T   spatial.Vec3
	Err error
}

func (f FakePoseGraphOptimizer) Optimize(int) (spatial.Quat, spatial.Vec3, error) {
	return f.R, f.T, f.Err
}
