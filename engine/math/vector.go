package math

import "github.com/chewxy/math32"

// ------------------------------------------
// Vector 2
// ------------------------------------------

/**
 * @brief Creates and returns a new 2-element vector using the supplied values.
 */
func NewVec2(x, y float32) Vec2 {
	return Vec2{X: x, Y: y}
}

/**
 * @brief Compares all elements of the vectors and ensures the difference
 * is less than tolerance.
 */
func (v Vec2) Compare(other Vec2, tolerance float32) bool {
	return kabs(v.X-other.X) <= tolerance && kabs(v.Y-other.Y) <= tolerance
}

// ------------------------------------------
// Vector 3
// ------------------------------------------

/**
 * @brief Creates and returns a new 3-element vector using the supplied values.
 */
func NewVec3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

/** @brief Creates and returns a 3-component vector with all components set to 0.0f. */
func NewVec3Zero() Vec3 {
	return Vec3{}
}

/** @brief Creates and returns a 3-component vector with all components set to 1.0f. */
func NewVec3One() Vec3 {
	return Vec3{1.0, 1.0, 1.0}
}

/**
 * @brief Adds other to v and returns a copy of the result.
 */
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		v.X + other.X,
		v.Y + other.Y,
		v.Z + other.Z}
}

/**
 * @brief Subtracts other from v and returns a copy of the result.
 */
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		v.X - other.X,
		v.Y - other.Y,
		v.Z - other.Z}
}

/**
 * @brief Multiplies v by other component-wise and returns a copy of the result.
 */
func (v Vec3) Mul(other Vec3) Vec3 {
	return Vec3{
		v.X * other.X,
		v.Y * other.Y,
		v.Z * other.Z}
}

/**
 * @brief Multiplies all elements of v by scalar and returns a copy of the result.
 */
func (v Vec3) MulScalar(scalar float32) Vec3 {
	return Vec3{
		v.X * scalar,
		v.Y * scalar,
		v.Z * scalar}
}

/**
 * @brief Returns the squared length of the provided vector.
 */
func (v Vec3) LengthSquared() float32 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

/**
 * @brief Returns the length of the provided vector.
 */
func (v Vec3) Length() float32 {
	return ksqrt(v.LengthSquared())
}

/**
 * @brief Returns the distance between v and other.
 */
func (v Vec3) Distance(other Vec3) float32 {
	return v.Sub(other).Length()
}

/**
 * @brief Returns the component-wise minimum of v and other.
 */
func (v Vec3) Min(other Vec3) Vec3 {
	return Vec3{
		math32.Min(v.X, other.X),
		math32.Min(v.Y, other.Y),
		math32.Min(v.Z, other.Z)}
}

/**
 * @brief Returns the component-wise maximum of v and other.
 */
func (v Vec3) Max(other Vec3) Vec3 {
	return Vec3{
		math32.Max(v.X, other.X),
		math32.Max(v.Y, other.Y),
		math32.Max(v.Z, other.Z)}
}

/**
 * @brief Compares all elements of v and other and ensures the difference
 * is less than tolerance.
 *
 * @param tolerance The difference tolerance. Typically K_FLOAT_EPSILON or similar.
 * @return True if within tolerance; otherwise false.
 */
func (v Vec3) Compare(other Vec3, tolerance float32) bool {
	if kabs(v.X-other.X) > tolerance {
		return false
	}

	if kabs(v.Y-other.Y) > tolerance {
		return false
	}

	if kabs(v.Z-other.Z) > tolerance {
		return false
	}

	return true
}

/**
 * @brief Transform v by m. NOTE: It is assumed by this function that the
 * vector v is a point, not a direction, and is calculated as if a w component
 * with a value of 1.0f is there.
 */
func (v Vec3) Transform(m Mat4) Vec3 {
	out := Vec3{}
	out.X = v.X*m.Data[0+0] + v.Y*m.Data[4+0] + v.Z*m.Data[8+0] + 1.0*m.Data[12+0]
	out.Y = v.X*m.Data[0+1] + v.Y*m.Data[4+1] + v.Z*m.Data[8+1] + 1.0*m.Data[12+1]
	out.Z = v.X*m.Data[0+2] + v.Y*m.Data[4+2] + v.Z*m.Data[8+2] + 1.0*m.Data[12+2]
	return out
}

// ------------------------------------------
// Vector 4
// ------------------------------------------

/**
 * @brief Creates and returns a new 4-element vector using the supplied values.
 */
func NewVec4(x, y, z, w float32) Vec4 {
	return Vec4{X: x, Y: y, Z: z, W: w}
}

/**
 * @brief Returns a new vec3 containing the x, y and z components of the
 * supplied vec4, essentially dropping the w component.
 */
func (v Vec4) ToVec3() Vec3 {
	return Vec3{v.X, v.Y, v.Z}
}

/**
 * @brief Compares all elements of v and other and ensures the difference
 * is less than tolerance.
 */
func (v Vec4) Compare(other Vec4, tolerance float32) bool {
	return kabs(v.X-other.X) <= tolerance &&
		kabs(v.Y-other.Y) <= tolerance &&
		kabs(v.Z-other.Z) <= tolerance &&
		kabs(v.W-other.W) <= tolerance
}
