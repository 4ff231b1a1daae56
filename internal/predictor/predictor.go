// Package predictor implements the fast predictor (spec §4.3): high-rate
// midpoint integration of IMU samples between optimizer updates, grounded
// on the original estimator_node.cpp predict()/update() pair and adapted
// to the teacher's single-owner-state discipline (spec §9: "reshape
// process-wide mutable state as a single value owning all state").
package predictor

import (
	"log/slog"
	"sync"

	"github.com/kaben/fusion-core/internal/audit"
	"github.com/kaben/fusion-core/internal/ingress"
	"github.com/kaben/fusion-core/internal/spatial"
)

// dtMax is the gap above which we still integrate but log a warning
// (spec §4.3 "Failure model"): sensor gaps must not stall odometry.
const dtMax = 0.1

// Snapshot is the predictor's published state: a pose+velocity estimate
// gated by the estimator's solver flag at the call site (spec §4.4).
type Snapshot struct {
	T float64
	P spatial.Vec3
	Q spatial.Quat
	V spatial.Vec3
}

// EstimatorTail is what the fusion worker hands to Reseed: the
// optimizer's latest sliding-window tail plus the last raw IMU sample it
// consumed (spec §4.3 "reseed").
type EstimatorTail struct {
	P, V, Ba, Bg, G spatial.Vec3
	Q               spatial.Quat
	LastAccel       spatial.Vec3
	LastGyro        spatial.Vec3
}

// Correction is the rigid transform applied on top of the estimator's
// local frame (spec §3).
type Correction struct {
	R spatial.Quat
	T spatial.Vec3
}

// Identity is the no-op global correction.
var Identity = Correction{R: spatial.Identity}

// State is the predictor's single owned value, mutated only under mu
// (L_predictor in spec §5).
type State struct {
	mu sync.Mutex

	tLatest float64 // -1 sentinel: not yet initialized

	p, v, ba, bg, g  spatial.Vec3
	q                spatial.Quat
	aPrev, omegaPrev spatial.Vec3

	// Audit, if set, mirrors every sample integrated by OnIMU to a
	// persistent sink (spec §6/§9); samples replayed by Reseed are not
	// recorded. It is called after releasing mu so the sink never sits on
	// the predictor's lock.
	Audit *audit.Sink
}

// New creates a predictor with no samples integrated yet.
func New() *State {
	return &State{tLatest: -1, q: spatial.Identity}
}

// OnIMU integrates one sample (spec §4.3). The very first sample after
// construction only initializes t_latest/a_prev/omega_prev and
// contributes no integration step. After a Reseed, t_latest is the
// reseed's now, so the next sample integrates with dt = t - now.
func (s *State) OnIMU(sample ingress.IMUSample) {
	s.mu.Lock()
	row, recorded := s.integrate(sample)
	s.mu.Unlock()

	if recorded && s.Audit != nil {
		s.Audit.Record(row)
	}
}

func (s *State) integrate(sample ingress.IMUSample) (audit.Row, bool) {
	if s.tLatest < 0 {
		s.tLatest = sample.T
		s.aPrev = sample.Accel
		s.omegaPrev = sample.Gyro
		return audit.Row{}, false
	}

	dt := sample.T - s.tLatest
	if dt < 0 {
		slog.Warn("predictor: non-increasing imu timestamp, skipping", "t_latest", s.tLatest, "t", sample.T)
		return audit.Row{}, false
	}
	if dt > dtMax {
		slog.Warn("predictor: large imu gap, integrating anyway", "dt", dt)
	}

	// Step 2: world-frame accel at the previous step.
	a0 := spatial.Sub(spatial.RotateVec(s.q, spatial.Sub(s.aPrev, s.ba)), s.g)

	// Step 3: bias-corrected midpoint gyro.
	omegaBar := spatial.Sub(spatial.Scale(0.5, spatial.Add(s.omegaPrev, sample.Gyro)), s.bg)

	// Step 4: orientation update, renormalized.
	s.q = spatial.Normalize(spatial.MulQ(s.q, spatial.DeltaQ(spatial.Scale(dt, omegaBar))))

	// Step 5: world-frame accel at the new step.
	a1 := spatial.Sub(spatial.RotateVec(s.q, spatial.Sub(sample.Accel, s.ba)), s.g)

	// Step 6-7: average accel, position/velocity update.
	aAvg := spatial.Scale(0.5, spatial.Add(a0, a1))
	s.p = spatial.Add(s.p, spatial.Add(spatial.Scale(dt, s.v), spatial.Scale(0.5*dt*dt, aAvg)))
	s.v = spatial.Add(s.v, spatial.Scale(dt, aAvg))

	s.aPrev = sample.Accel
	s.omegaPrev = sample.Gyro
	s.tLatest = sample.T

	row := audit.Row{
		T: sample.T, Dt: dt,
		Accel: sample.Accel, Gyro: sample.Gyro,
		P: s.p, V: s.v, Q: s.q,
		Ba: s.ba, Bg: s.bg, G: s.g,
	}
	return row, true
}

// Reseed re-bases the predictor onto a fresh optimizer output and
// replays every IMU sample queued since that output was produced (spec
// §4.3 "reseed", §8 "reseed consistency"). now is the sensor timestamp
// of the last IMU sample the estimator consumed before producing tail,
// matching the original's `latest_time = current_time` in update()
// (estimator_node.cpp:626, set from send_imu's sensor time, not the
// wall clock).
func (s *State) Reseed(tail EstimatorTail, corr Correction, now float64, queuedIMU []ingress.IMUSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.p = spatial.Add(spatial.RotateVec(corr.R, tail.P), corr.T)
	s.q = spatial.Normalize(spatial.MulQ(corr.R, tail.Q))
	s.v = tail.V
	s.ba = tail.Ba
	s.bg = tail.Bg
	s.g = tail.G
	s.aPrev = tail.LastAccel
	s.omegaPrev = tail.LastGyro
	s.tLatest = now

	for _, sample := range queuedIMU {
		s.integrate(sample)
	}
}

// Snapshot returns the current state without mutating it.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{T: s.tLatest, P: s.p, Q: s.q, V: s.v}
}

