package mesh

/**
 * @brief A range of triangles drawn with one material. Always paired with
 * exactly one chunk through ChunkIndex.
 */
type Section struct {
	MaterialIndex uint16
	ChunkIndex    int
	/** @brief The first index of the section in the LOD index buffer. */
	BaseIndex    uint32
	NumTriangles uint32
}

/**
 * @brief A range of vertices skinned by the bones listed in BoneMap. Vertex
 * influence indices are positions inside BoneMap.
 */
type Chunk struct {
	BaseVertexIndex   uint32
	NumRigidVertices  int
	NumSoftVertices   int
	MaxBoneInfluences int
	BoneMap           []uint16
}

func (c *Chunk) NumVertices() int {
	return c.NumRigidVertices + c.NumSoftVertices
}

/**
 * @brief The render data of one level of detail.
 */
type LODModel struct {
	Sections []Section
	Chunks   []Chunk
	/** @brief Bones referenced by the chunks of this LOD, sorted. */
	ActiveBoneIndices []uint16
	/** @brief Bones that must be evaluated to skin this LOD, sorted. */
	RequiredBones []uint16
	VertexBuffer  *VertexBuffer
	IndexBuffer   *IndexBuffer
	NumVertices   uint32
}

// NumTexCoords returns the UV channel count of the LOD vertex buffer.
func (l *LODModel) NumTexCoords() int {
	if l == nil || l.VertexBuffer == nil {
		return MinTexCoords
	}
	return l.VertexBuffer.NumTexCoords
}

// NumTriangles sums the triangles of every section.
func (l *LODModel) NumTriangles() uint32 {
	total := uint32(0)
	for _, s := range l.Sections {
		total += s.NumTriangles
	}
	return total
}

/**
 * @brief Per LOD settings that are not render data.
 */
type LODInfo struct {
	/** @brief Screen size at which the LOD is displayed. */
	DisplayFactor float32
	/** @brief Hysteresis applied around DisplayFactor when switching LODs. */
	LODHysteresis float32
	/** @brief Maps a base LOD material index to the material used by this LOD. */
	LODMaterialMap []int
	/** @brief One flag per section of the LOD. */
	EnableShadowCasting []bool
}
