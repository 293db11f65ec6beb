package math

/**
 * @brief Creates an identity quaternion.
 */
func NewQuatIdentity() Quaternion {
	return Quaternion{0, 0, 0, 1.0}
}

/**
 * @brief Returns the normal of the provided quaternion.
 */
func (q Quaternion) Normal() float32 {
	return ksqrt(
		q.X*q.X +
			q.Y*q.Y +
			q.Z*q.Z +
			q.W*q.W)
}

/**
 * @brief Returns a normalized copy of the provided quaternion. A zero
 * quaternion normalizes to identity.
 */
func (q Quaternion) Normalize() Quaternion {
	normal := q.Normal()
	if normal < K_FLOAT_EPSILON {
		return NewQuatIdentity()
	}
	return Quaternion{
		q.X / normal,
		q.Y / normal,
		q.Z / normal,
		q.W / normal}
}

/**
 * @brief Creates a rotation matrix from the given quaternion, laid out for
 * row vectors (each row is a rotated basis axis).
 */
func (q Quaternion) ToMat4() Mat4 {
	out_matrix := NewMat4Identity()

	n := q.Normalize()

	xx, yy, zz := n.X*n.X, n.Y*n.Y, n.Z*n.Z
	xy, xz, yz := n.X*n.Y, n.X*n.Z, n.Y*n.Z
	wx, wy, wz := n.W*n.X, n.W*n.Y, n.W*n.Z

	out_matrix.Data[0] = 1.0 - 2.0*(yy+zz)
	out_matrix.Data[1] = 2.0 * (xy + wz)
	out_matrix.Data[2] = 2.0 * (xz - wy)

	out_matrix.Data[4] = 2.0 * (xy - wz)
	out_matrix.Data[5] = 1.0 - 2.0*(xx+zz)
	out_matrix.Data[6] = 2.0 * (yz + wx)

	out_matrix.Data[8] = 2.0 * (xz + wy)
	out_matrix.Data[9] = 2.0 * (yz - wx)
	out_matrix.Data[10] = 1.0 - 2.0*(xx+yy)

	return out_matrix
}

/**
 * @brief Compares the quaternions component-wise. q and -q describe the same
 * rotation, so both signs are accepted.
 */
func (q Quaternion) Compare(other Quaternion, tolerance float32) bool {
	if Vec4(q).Compare(Vec4(other), tolerance) {
		return true
	}
	neg := Vec4{-other.X, -other.Y, -other.Z, -other.W}
	return Vec4(q).Compare(neg, tolerance)
}
