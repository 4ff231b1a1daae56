// Package publish defines the output contract of spec.md §6 (odometry,
// per-frame poses, point cloud, pose-graph visualization) and a
// zero-config logging implementation. Grounded on the teacher's
// Publisher interface (References/orion-prototipe/internal/core/interfaces.go)
// and its MQTT adapter lifecycle (Connect/Publish/Disconnect); the
// concrete MQTT wiring lives in internal/publish/mqtt so the core never
// imports a transport library directly.
package publish

import (
	"log/slog"

	"github.com/kaben/fusion-core/internal/spatial"
)

// Odometry is the high-rate, per-IMU pose+velocity output gated on the
// estimator's NonLinear solver state (spec.md §4.4, §6).
type Odometry struct {
	T float64
	P spatial.Vec3
	Q spatial.Quat
	V spatial.Vec3
}

// FrameOutput is the per-frame refined output (spec.md §6): refined
// odometry, key pose, camera pose, and the frame's point cloud.
// CameraPose collapses onto RefinedPose in this module — no camera
// extrinsics are modeled (see DESIGN.md).
type FrameOutput struct {
	T           float64
	RefinedPose Odometry
	CameraPose  Odometry
	PointCount  int
}

// PoseGraphUpdate is emitted whenever the loop coordinator's optimizer
// worker produces a fresh global correction (spec.md §4.5, §6).
type PoseGraphUpdate struct {
	AnchorIndex int
	R           spatial.Quat
	T           spatial.Vec3
	Generation  uint64
}

// Publisher is the narrow output contract; cmd/fusion-node wires a
// concrete transport behind it (spec.md §1: "subscriber/publisher
// transport wiring" is an external collaborator).
type Publisher interface {
	PublishOdometry(Odometry) error
	PublishFrame(FrameOutput) error
	PublishPoseGraph(PoseGraphUpdate) error
}

// LogPublisher is the zero-config default: it writes every output
// through slog instead of a transport, matching the teacher's habit of
// keeping a structured-log fallback path alongside the MQTT emitter.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p LogPublisher) PublishOdometry(o Odometry) error {
	p.logger().Debug("odometry", "t", o.T, "p", o.P, "v", o.V)
	return nil
}

func (p LogPublisher) PublishFrame(f FrameOutput) error {
	p.logger().Debug("frame", "t", f.T, "points", f.PointCount)
	return nil
}

func (p LogPublisher) PublishPoseGraph(u PoseGraphUpdate) error {
	p.logger().Info("pose graph updated", "anchor", u.AnchorIndex, "generation", u.Generation)
	return nil
}
