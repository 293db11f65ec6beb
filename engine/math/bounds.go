package math

import "github.com/chewxy/math32"

// NewBoundsFromExtents builds bounds whose box matches the extents and whose
// sphere encloses the box.
func NewBoundsFromExtents(e Extents3D) BoxSphereBounds {
	origin := e.Min.Add(e.Max).MulScalar(0.5)
	extent := e.Max.Sub(e.Min).MulScalar(0.5)
	return BoxSphereBounds{
		Origin:       origin,
		BoxExtent:    extent,
		SphereRadius: extent.Length(),
	}
}

// NewBoundsFromPoints computes the tightest box around the points. The
// sphere radius is the furthest point from the box center.
func NewBoundsFromPoints(points []Vec3) BoxSphereBounds {
	if len(points) == 0 {
		return BoxSphereBounds{}
	}
	e := Extents3D{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		e.Min = e.Min.Min(p)
		e.Max = e.Max.Max(p)
	}
	b := NewBoundsFromExtents(e)
	radius := float32(0)
	for _, p := range points {
		radius = math32.Max(radius, p.Distance(b.Origin))
	}
	b.SphereRadius = radius
	return b
}

// Extents returns the min/max corners of the box.
func (b BoxSphereBounds) Extents() Extents3D {
	return Extents3D{
		Min: b.Origin.Sub(b.BoxExtent),
		Max: b.Origin.Add(b.BoxExtent),
	}
}

// Union returns bounds enclosing both b and other. The box is the union of
// both boxes and the sphere is grown until it holds both spheres.
func (b BoxSphereBounds) Union(other BoxSphereBounds) BoxSphereBounds {
	be, oe := b.Extents(), other.Extents()
	out := NewBoundsFromExtents(Extents3D{
		Min: be.Min.Min(oe.Min),
		Max: be.Max.Max(oe.Max),
	})
	out.SphereRadius = math32.Max(
		b.Origin.Distance(out.Origin)+b.SphereRadius,
		other.Origin.Distance(out.Origin)+other.SphereRadius,
	)
	return out
}

// Contains reports whether other's box and sphere both lie inside b, allowing
// tolerance for float error.
func (b BoxSphereBounds) Contains(other BoxSphereBounds, tolerance float32) bool {
	be, oe := b.Extents(), other.Extents()
	if oe.Min.X < be.Min.X-tolerance || oe.Min.Y < be.Min.Y-tolerance || oe.Min.Z < be.Min.Z-tolerance {
		return false
	}
	if oe.Max.X > be.Max.X+tolerance || oe.Max.Y > be.Max.Y+tolerance || oe.Max.Z > be.Max.Z+tolerance {
		return false
	}
	return other.Origin.Distance(b.Origin)+other.SphereRadius <= b.SphereRadius+tolerance
}
