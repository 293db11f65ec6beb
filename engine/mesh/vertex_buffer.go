package mesh

import (
	"github.com/spaghettifunk/anima-merge/engine/math"
	"github.com/x448/float16"
)

const (
	/** @brief The maximum number of texture coordinate channels per vertex. */
	MaxTexCoords int = 4
	/** @brief Every vertex buffer carries at least one texture coordinate channel. */
	MinTexCoords int = 1
	/** @brief The maximum number of bones influencing a single vertex. */
	MaxInfluences int = 4
)

/**
 * @brief A GPU skinned vertex. Influence bone indices point into the bone
 * map of the chunk owning the vertex, not into the skeleton.
 */
type SkinVertex struct {
	Position math.Vec3
	/** @brief The tangent. */
	TangentX math.Vec3
	/** @brief The normal, W holds the sign of the binormal. */
	TangentZ math.Vec4

	InfluenceBones   [MaxInfluences]uint8
	InfluenceWeights [MaxInfluences]uint8

	/** @brief Texture coordinates, used when the buffer stores full precision UVs. */
	UVs [MaxTexCoords]math.Vec2
	/** @brief Texture coordinates, used when the buffer stores half precision UVs. */
	HalfUVs [MaxTexCoords][2]float16.Float16
}

/**
 * @brief The vertices of one LOD. NumTexCoords channels are meaningful and
 * UseFullPrecisionUVs selects which UV storage of SkinVertex is used.
 */
type VertexBuffer struct {
	NumTexCoords        int
	UseFullPrecisionUVs bool
	Vertices            []SkinVertex
}

func NewVertexBuffer(numTexCoords int, fullPrecisionUVs bool, capacity int) *VertexBuffer {
	return &VertexBuffer{
		NumTexCoords:        math.Clamp(numTexCoords, MinTexCoords, MaxTexCoords),
		UseFullPrecisionUVs: fullPrecisionUVs,
		Vertices:            make([]SkinVertex, 0, capacity),
	}
}

func (vb *VertexBuffer) Len() int {
	if vb == nil {
		return 0
	}
	return len(vb.Vertices)
}

// UV returns the texture coordinate of a vertex. Channels past NumTexCoords
// read as zero.
func (vb *VertexBuffer) UV(vertex, channel int) math.Vec2 {
	if channel < 0 || channel >= vb.NumTexCoords {
		return math.Vec2{}
	}
	v := &vb.Vertices[vertex]
	if vb.UseFullPrecisionUVs {
		return v.UVs[channel]
	}
	return math.Vec2{
		X: v.HalfUVs[channel][0].Float32(),
		Y: v.HalfUVs[channel][1].Float32(),
	}
}

// SetUV stores a texture coordinate using the buffer precision. Channels past
// NumTexCoords are ignored.
func (vb *VertexBuffer) SetUV(vertex, channel int, uv math.Vec2) {
	if channel < 0 || channel >= vb.NumTexCoords {
		return
	}
	v := &vb.Vertices[vertex]
	if vb.UseFullPrecisionUVs {
		v.UVs[channel] = uv
		return
	}
	v.HalfUVs[channel] = [2]float16.Float16{
		float16.Fromfloat32(uv.X),
		float16.Fromfloat32(uv.Y),
	}
}

// Positions returns a copy of every vertex position.
func (vb *VertexBuffer) Positions() []math.Vec3 {
	out := make([]math.Vec3, vb.Len())
	for i := range out {
		out[i] = vb.Vertices[i].Position
	}
	return out
}
