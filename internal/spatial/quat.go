package spatial

import "gonum.org/v1/gonum/num/quat"

// Quat is a unit quaternion representing a body-to-world rotation.
type Quat = quat.Number

// Identity is the zero-rotation quaternion.
var Identity = Quat{Real: 1}

// DeltaQ builds the first-order rotation increment δq(θ) ≈ [1, θ/2]
// used by the midpoint integrator (spec §4.3 step 4).
func DeltaQ(theta Vec3) Quat {
	return Quat{Real: 1, Imag: theta.X / 2, Jmag: theta.Y / 2, Kmag: theta.Z / 2}
}

// MulQ returns the Hamilton product a⊗b.
func MulQ(a, b Quat) Quat { return quat.Mul(a, b) }

// Conj returns the conjugate of q.
func Conj(q Quat) Quat { return quat.Conj(q) }

// Normalize renormalizes q to unit length. A degenerate (near-zero)
// quaternion resets to identity rather than dividing by ~0.
func Normalize(q Quat) Quat {
	n := quat.Abs(q)
	if n < 1e-12 {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// RotateVec rotates the body-frame vector v into world frame via q·v·q⁻¹,
// treating v as a pure quaternion.
func RotateVec(q Quat, v Vec3) Vec3 {
	qv := Quat{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return Vec3{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// Norm reports |q|, used by tests to check the `|q|=1` invariant.
func Norm(q Quat) float64 { return quat.Abs(q) }
