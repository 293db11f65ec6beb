package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion Vec4

/**
 * @brief a 4x4 matrix, typically used to represent object transformations.
 * Row-major, row vectors: a point is transformed as p * M and the translation
 * lives in Data[12], Data[13] and Data[14].
 */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

/**
 * @brief Represents the extents of a 3d object.
 */
type Extents3D struct {
	/** @brief The minimum extents of the object. */
	Min Vec3
	/** @brief The maximum extents of the object. */
	Max Vec3
}

/**
 * @brief An axis aligned box and a bounding sphere sharing the same origin.
 */
type BoxSphereBounds struct {
	/** @brief The center of both the box and the sphere. */
	Origin Vec3
	/** @brief Half the size of the box along each axis. */
	BoxExtent Vec3
	/** @brief The radius of the sphere. */
	SphereRadius float32
}

/**
 * @brief Represents a position, rotation and scale relative to a parent space.
 * Bones and sockets store their reference pose as a Transform.
 */
type Transform struct {
	/** @brief The translation relative to the parent. */
	Position Vec3
	/** @brief The rotation relative to the parent. */
	Rotation Quaternion
	/** @brief The scale relative to the parent. */
	Scale Vec3
}
