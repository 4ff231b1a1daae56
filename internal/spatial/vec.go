// Package spatial wraps gonum's r3/quat primitives with the handful of
// operations the predictor and estimator contracts need: vector
// arithmetic and quaternion integration of angular rate.
package spatial

import "gonum.org/v1/gonum/spatial/r3"

// Vec3 is a world- or body-frame 3-vector (position, velocity, specific
// force, angular rate, or bias).
type Vec3 = r3.Vec

// Zero3 is the additive identity.
var Zero3 = Vec3{}

// Add returns a+b.
func Add(a, b Vec3) Vec3 { return r3.Add(a, b) }

// Sub returns a-b.
func Sub(a, b Vec3) Vec3 { return r3.Sub(a, b) }

// Scale returns f*v.
func Scale(f float64, v Vec3) Vec3 { return r3.Scale(f, v) }

// Norm2 returns the Euclidean length of v.
func Norm2(v Vec3) float64 { return r3.Norm(v) }
