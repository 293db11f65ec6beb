package math

func TransformCreate() Transform {
	return TransformFromPositionRotationScale(NewVec3Zero(), NewQuatIdentity(), NewVec3One())
}

func TransformFromPosition(position Vec3) Transform {
	return TransformFromPositionRotationScale(position, NewQuatIdentity(), NewVec3One())
}

func TransformFromPositionRotation(position Vec3, rotation Quaternion) Transform {
	return TransformFromPositionRotationScale(position, rotation, NewVec3One())
}

func TransformFromPositionRotationScale(position Vec3, rotation Quaternion, scale Vec3) Transform {
	return Transform{
		Position: position,
		Rotation: rotation,
		Scale:    scale,
	}
}

// Matrix builds the local matrix: scale, then rotation, then translation.
func (t Transform) Matrix() Mat4 {
	scale := t.Scale
	if scale == (Vec3{}) {
		// A zero scale is treated as "unset".
		scale = NewVec3One()
	}
	m := NewMat4Scale(scale).Mul(t.Rotation.ToMat4())
	return m.Mul(NewMat4Translation(t.Position))
}

// Compare returns true when position, rotation and scale all match within tolerance.
func (t Transform) Compare(other Transform, tolerance float32) bool {
	return t.Position.Compare(other.Position, tolerance) &&
		t.Rotation.Compare(other.Rotation, tolerance) &&
		t.Scale.Compare(other.Scale, tolerance)
}
