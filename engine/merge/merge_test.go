package merge

import (
	"testing"

	"github.com/spaghettifunk/anima-merge/engine/core"
	"github.com/spaghettifunk/anima-merge/engine/math"
	"github.com/spaghettifunk/anima-merge/engine/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headAndArm(matA, matB *mesh.Material) (*mesh.SkeletalMesh, *mesh.SkeletalMesh) {
	a := newTestMesh("head", 0, skelHead, []*mesh.Material{matA},
		oneLOD(sectionSpec{material: 0, bones: []string{"Root", "Spine", "Head"}, verts: 3, tris: 1, uvs: 1}))
	b := newTestMesh("arm", 10, skelArm, []*mesh.Material{matB},
		oneLOD(sectionSpec{material: 0, bones: []string{"Root", "Spine", "Arm"}, verts: 3, tris: 1, uvs: 1}))
	return a, b
}

// checkMergedMesh asserts the structural properties every merge result holds.
func checkMergedMesh(t *testing.T, dst *mesh.SkeletalMesh, sources []*mesh.SkeletalMesh, maxBones int) {
	t.Helper()
	require.NoError(t, dst.Validate())

	for i, b := range dst.RefSkeleton.Bones {
		if i == 0 {
			assert.Equal(t, mesh.NoParent, b.ParentIndex)
			continue
		}
		assert.Less(t, b.ParentIndex, i, "bone %s", b.Name)
	}
	assert.Len(t, dst.RefBasesInvMatrix, dst.RefSkeleton.Num())

	for lodIdx, lod := range dst.LODModels {
		for _, section := range lod.Sections {
			chunk := lod.Chunks[section.ChunkIndex]
			assert.LessOrEqual(t, len(chunk.BoneMap), maxBones, "LOD %d", lodIdx)

			first := int(chunk.BaseVertexIndex)
			last := first + chunk.NumVertices()
			for v := first; v < last; v++ {
				sv := lod.VertexBuffer.Vertices[v]
				for i := 0; i < mesh.MaxInfluences; i++ {
					if sv.InfluenceWeights[i] > 0 {
						assert.Less(t, int(sv.InfluenceBones[i]), len(chunk.BoneMap))
					}
				}
			}
			for i := 0; i < int(section.NumTriangles)*3; i++ {
				idx := int(lod.IndexBuffer.At(int(section.BaseIndex) + i))
				assert.GreaterOrEqual(t, idx, first)
				assert.Less(t, idx, last)
			}
		}
		for i := 1; i < len(lod.RequiredBones); i++ {
			assert.Less(t, lod.RequiredBones[i-1], lod.RequiredBones[i])
		}
		for i := 1; i < len(lod.ActiveBoneIndices); i++ {
			assert.Less(t, lod.ActiveBoneIndices[i-1], lod.ActiveBoneIndices[i])
		}
	}

	for _, src := range sources {
		if src != nil {
			assert.True(t, dst.Bounds.Contains(src.Bounds, 1e-3), "bounds of %s", src.Name)
		}
	}

	names := map[string]bool{}
	for _, s := range dst.Sockets {
		assert.False(t, names[s.Name], "duplicate socket %s", s.Name)
		names[s.Name] = true
	}
}

func TestMergeSkeletonUnion(t *testing.T) {
	a, b := headAndArm(mesh.NewMaterial("skin"), mesh.NewMaterial("cloth"))
	dst := mesh.NewSkeletalMesh("merged")

	m := NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0)
	require.NoError(t, m.Merge())

	assert.Equal(t, []string{"Root", "Spine", "Head", "Arm"}, boneNames(dst.RefSkeleton))
	assert.Equal(t, []int{-1, 0, 1, 1}, boneParents(dst.RefSkeleton))
	assert.Equal(t, 2, dst.RefSkeleton.Bones[1].NumChildren)
	assert.Equal(t, 3, dst.SkeletalDepth)
	checkMergedMesh(t, dst, []*mesh.SkeletalMesh{a, b}, DefaultMaxBonesPerChunk)
}

func TestMergeSkeletonInsertsAfterDescendants(t *testing.T) {
	skelA := newTestSkeleton(
		boneSpec{name: "Root"},
		boneSpec{name: "Spine", parent: "Root"},
		boneSpec{name: "Head", parent: "Spine"},
		boneSpec{name: "Jaw", parent: "Head"},
		boneSpec{name: "Leg", parent: "Root"},
	)
	mat := mesh.NewMaterial("skin")
	a := newTestMesh("body", 0, skelA, []*mesh.Material{mat},
		oneLOD(sectionSpec{bones: []string{"Root", "Jaw", "Leg"}, verts: 3, tris: 1, uvs: 1}))
	_, b := headAndArm(mat, mat)
	dst := mesh.NewSkeletalMesh("merged")

	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0).Merge())

	assert.Equal(t, []string{"Root", "Spine", "Head", "Jaw", "Arm", "Leg"}, boneNames(dst.RefSkeleton))
	assert.Equal(t, []int{-1, 0, 1, 2, 1, 0}, boneParents(dst.RefSkeleton))

	// Leg moved from 4 to 5, so the first source bone map follows it.
	chunk := dst.LODModels[0].Chunks[0]
	assert.Equal(t, []uint16{0, 3, 5, 1, 4}, chunk.BoneMap)
	checkMergedMesh(t, dst, []*mesh.SkeletalMesh{a, b}, DefaultMaxBonesPerChunk)
}

func TestMergeSameMaterialSharesSection(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	a, b := headAndArm(mat, mat)
	dst := mesh.NewSkeletalMesh("merged")

	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0).Merge())

	require.Len(t, dst.LODModels, 1)
	lod := dst.LODModels[0]
	require.Len(t, lod.Sections, 1)
	require.Len(t, lod.Chunks, 1)
	assert.Equal(t, []*mesh.Material{mat}, dst.Materials)
	assert.Equal(t, []uint16{0, 1, 2, 3}, lod.Chunks[0].BoneMap)
	assert.Equal(t, uint32(2), lod.Sections[0].NumTriangles)
	assert.Equal(t, 6, lod.VertexBuffer.Len())
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5}, lod.IndexBuffer.Indices())

	// The last vertex of the arm mesh is bound to Arm.
	sv := lod.VertexBuffer.Vertices[5]
	assert.Equal(t, uint8(3), sv.InfluenceBones[0])
	assert.Equal(t, "Arm", dst.RefSkeleton.Bones[lod.Chunks[0].BoneMap[sv.InfluenceBones[0]]].Name)
	checkMergedMesh(t, dst, []*mesh.SkeletalMesh{a, b}, DefaultMaxBonesPerChunk)
}

func TestMergeSplitsChunkOverBoneLimit(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	a, b := headAndArm(mat, mat)
	dst := mesh.NewSkeletalMesh("merged")

	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0, WithMaxBonesPerChunk(3)).Merge())

	lod := dst.LODModels[0]
	require.Len(t, lod.Sections, 2)
	assert.Equal(t, lod.Sections[0].MaterialIndex, lod.Sections[1].MaterialIndex)
	assert.Equal(t, []uint16{0, 1, 2}, lod.Chunks[0].BoneMap)
	assert.Equal(t, []uint16{0, 1, 3}, lod.Chunks[1].BoneMap)
	assert.Equal(t, uint32(3), lod.Chunks[1].BaseVertexIndex)
	assert.Equal(t, uint32(3), lod.Sections[1].BaseIndex)

	sv := lod.VertexBuffer.Vertices[5]
	assert.Equal(t, "Arm", dst.RefSkeleton.Bones[lod.Chunks[1].BoneMap[sv.InfluenceBones[0]]].Name)
	checkMergedMesh(t, dst, []*mesh.SkeletalMesh{a, b}, 3)
}

func TestMergeDifferentMaterialsKeepSections(t *testing.T) {
	skin, cloth := mesh.NewMaterial("skin"), mesh.NewMaterial("cloth")
	a, b := headAndArm(skin, cloth)
	dst := mesh.NewSkeletalMesh("merged")

	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0).Merge())

	lod := dst.LODModels[0]
	require.Len(t, lod.Sections, 2)
	assert.Equal(t, []*mesh.Material{skin, cloth}, dst.Materials)
	assert.Equal(t, uint16(0), lod.Sections[0].MaterialIndex)
	assert.Equal(t, uint16(1), lod.Sections[1].MaterialIndex)
	assert.Equal(t, []bool{true, true}, dst.LODInfo[0].EnableShadowCasting)
}

func TestMergeStripTopLODs(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	lods := []lodSpec{
		{sections: []sectionSpec{{bones: []string{"Root"}, verts: 30, tris: 10, uvs: 1}}, displayFactor: 1},
		{sections: []sectionSpec{{bones: []string{"Root"}, verts: 20, tris: 6, uvs: 1}}, displayFactor: 0.5},
		{sections: []sectionSpec{{bones: []string{"Root"}, verts: 10, tris: 3, uvs: 1}}, displayFactor: 0.25},
	}
	src := newTestMesh("body", 0, skelHead, []*mesh.Material{mat}, lods...)

	tests := []struct {
		name  string
		strip int
		verts []int
	}{
		{"none", 0, []int{30, 20, 10}},
		{"one", 1, []int{20, 10}},
		{"all", 3, []int{10}},
		{"more than available", 5, []int{10}},
		{"negative", -2, []int{30, 20, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := mesh.NewSkeletalMesh("merged")
			require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{src}, nil, tt.strip).Merge())
			require.Len(t, dst.LODModels, len(tt.verts))
			require.Len(t, dst.LODInfo, len(tt.verts))
			for i, n := range tt.verts {
				assert.Equal(t, n, dst.LODModels[i].VertexBuffer.Len(), "LOD %d", i)
			}
		})
	}
}

func TestMergeShorterSourceRepeatsLastLOD(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	a := newTestMesh("body", 0, skelHead, []*mesh.Material{mat},
		oneLOD(sectionSpec{bones: []string{"Root"}, verts: 8, tris: 2, uvs: 1}),
		oneLOD(sectionSpec{bones: []string{"Root"}, verts: 4, tris: 1, uvs: 1}),
	)
	b := newTestMesh("arm", 0, skelArm, []*mesh.Material{mat},
		oneLOD(sectionSpec{bones: []string{"Arm"}, verts: 5, tris: 1, uvs: 1}))
	dst := mesh.NewSkeletalMesh("merged")

	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0).Merge())

	require.Len(t, dst.LODModels, 2)
	assert.Equal(t, 13, dst.LODModels[0].VertexBuffer.Len())
	assert.Equal(t, 9, dst.LODModels[1].VertexBuffer.Len())
}

func TestMergeSingleSourceIsIdentity(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	src := newTestMesh("body", 3, skelHead, []*mesh.Material{mat},
		oneLOD(sectionSpec{bones: []string{"Root", "Spine", "Head"}, verts: 6, tris: 4, uvs: 2}))
	dst := mesh.NewSkeletalMesh("merged")

	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{src}, nil, 0).Merge())

	assert.Equal(t, src.RefSkeleton.Bones, dst.RefSkeleton.Bones)
	srcLOD, dstLOD := src.LODModels[0], dst.LODModels[0]
	assert.Equal(t, srcLOD.VertexBuffer.Vertices, dstLOD.VertexBuffer.Vertices)
	assert.Equal(t, srcLOD.IndexBuffer.Indices(), dstLOD.IndexBuffer.Indices())
	assert.Equal(t, srcLOD.Chunks[0].BoneMap, dstLOD.Chunks[0].BoneMap)
	assert.Equal(t, srcLOD.RequiredBones, dstLOD.RequiredBones)
	assert.Equal(t, srcLOD.ActiveBoneIndices, dstLOD.ActiveBoneIndices)
	assert.Equal(t, src.Bounds, dst.Bounds)
	assert.Equal(t, 2, dstLOD.NumTexCoords())
	checkMergedMesh(t, dst, []*mesh.SkeletalMesh{src}, DefaultMaxBonesPerChunk)
}

func TestMergeFailureLeavesDestinationUntouched(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	a, _ := headAndArm(mat, mat)
	pelvis := newTestSkeleton(boneSpec{name: "Pelvis"}, boneSpec{name: "Tail", parent: "Pelvis"})
	other := newTestMesh("tail", 0, pelvis, []*mesh.Material{mat},
		oneLOD(sectionSpec{bones: []string{"Tail"}, verts: 3, tris: 1, uvs: 1}))

	dst := mesh.NewSkeletalMesh("merged")
	dst.RefSkeleton = skelArm.Clone()
	dst.Materials = []*mesh.Material{mesh.NewMaterial("old")}
	before := *dst

	err := NewMeshMerger(dst, []*mesh.SkeletalMesh{a, other}, nil, 0).Merge()
	require.ErrorIs(t, err, core.ErrIncompatibleSkeletons)
	assert.Equal(t, before, *dst)
}

func TestMergeRejectsSourceRootedBelowMergedRoot(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	a, _ := headAndArm(mat, mat)
	spineRooted := newTestSkeleton(boneSpec{name: "Spine"}, boneSpec{name: "Arm", parent: "Spine"})
	b := newTestMesh("arm", 10, spineRooted, []*mesh.Material{mat},
		oneLOD(sectionSpec{bones: []string{"Spine", "Arm"}, verts: 3, tris: 1, uvs: 1}))

	dst := mesh.NewSkeletalMesh("merged")
	before := *dst
	err := NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0).Merge()
	require.ErrorIs(t, err, core.ErrIncompatibleSkeletons)
	assert.Equal(t, before, *dst)
}

func TestMergeGrowsSingleBoneSkeleton(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	a := newTestMesh("root", 0, newTestSkeleton(boneSpec{name: "Root"}), []*mesh.Material{mat},
		oneLOD(sectionSpec{bones: []string{"Root"}, verts: 3, tris: 1, uvs: 1}))
	_, b := headAndArm(mat, mat)
	dst := mesh.NewSkeletalMesh("merged")

	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0).Merge())
	assert.Equal(t, []string{"Root", "Spine", "Arm"}, boneNames(dst.RefSkeleton))
	assert.Equal(t, []int{-1, 0, 1}, boneParents(dst.RefSkeleton))
}

func TestMergeNoSources(t *testing.T) {
	dst := mesh.NewSkeletalMesh("merged")
	assert.ErrorIs(t, NewMeshMerger(dst, nil, nil, 0).Merge(), core.ErrNoSourceMeshes)
	assert.ErrorIs(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{nil, nil}, nil, 0).Merge(), core.ErrNoSourceMeshes)
	assert.Error(t, NewMeshMerger(nil, nil, nil, 0).Merge())
}

func TestMergeSkipsNilSources(t *testing.T) {
	skin, cloth := mesh.NewMaterial("skin"), mesh.NewMaterial("cloth")
	a, b := headAndArm(skin, cloth)
	dst := mesh.NewSkeletalMesh("merged")

	forced := []SectionMapping{{SectionIDs: []int{1}}, {SectionIDs: []int{4}}, {SectionIDs: []int{4}}}
	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, nil, b}, forced, 0).Merge())

	assert.Equal(t, []string{"Root", "Spine", "Head", "Arm"}, boneNames(dst.RefSkeleton))
	assert.Len(t, dst.LODModels[0].Sections, 2)
}

func TestMergeRejectsChunkOverLimit(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	a, b := headAndArm(mat, mat)

	err := NewMeshMerger(mesh.NewSkeletalMesh("merged"), []*mesh.SkeletalMesh{a, b}, nil, 0, WithMaxBonesPerChunk(2)).Merge()
	assert.ErrorIs(t, err, core.ErrChunkBoneLimit)
}

func TestMergeRejectsInvalidSource(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	a, _ := headAndArm(mat, mat)
	a.LODModels[0].Chunks[0].BoneMap = append(a.LODModels[0].Chunks[0].BoneMap, 9)

	err := NewMeshMerger(mesh.NewSkeletalMesh("merged"), []*mesh.SkeletalMesh{a}, nil, 0).Merge()
	assert.ErrorIs(t, err, core.ErrInvalidResource)

	a, _ = headAndArm(mat, mat)
	a.RefSkeleton.Bones[1].ParentIndex = 2
	err = NewMeshMerger(mesh.NewSkeletalMesh("merged"), []*mesh.SkeletalMesh{a}, nil, 0).Merge()
	assert.ErrorIs(t, err, core.ErrInvalidSkeleton)
}

func TestMergeForcedSectionMapping(t *testing.T) {
	skin, cloth := mesh.NewMaterial("skin"), mesh.NewMaterial("cloth")

	t.Run("equal ids merge across materials", func(t *testing.T) {
		a, b := headAndArm(skin, cloth)
		dst := mesh.NewSkeletalMesh("merged")
		forced := []SectionMapping{{SectionIDs: []int{7}}, {SectionIDs: []int{7}}}

		require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, forced, 0).Merge())
		require.Len(t, dst.LODModels[0].Sections, 1)
		assert.Equal(t, []*mesh.Material{skin}, dst.Materials)
	})

	t.Run("different ids split one material", func(t *testing.T) {
		a, b := headAndArm(skin, skin)
		dst := mesh.NewSkeletalMesh("merged")
		forced := []SectionMapping{{SectionIDs: []int{1}}, {SectionIDs: []int{2}}}

		require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, forced, 0).Merge())
		assert.Len(t, dst.LODModels[0].Sections, 2)
	})

	t.Run("negative ids match by material", func(t *testing.T) {
		a, b := headAndArm(skin, skin)
		dst := mesh.NewSkeletalMesh("merged")
		forced := []SectionMapping{{SectionIDs: []int{-1}}, {SectionIDs: nil}}

		require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, forced, 0).Merge())
		assert.Len(t, dst.LODModels[0].Sections, 1)
	})

	t.Run("length mismatch is ignored", func(t *testing.T) {
		a, b := headAndArm(skin, cloth)
		dst := mesh.NewSkeletalMesh("merged")
		forced := []SectionMapping{{SectionIDs: []int{7}}}

		require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, forced, 0).Merge())
		assert.Len(t, dst.LODModels[0].Sections, 2)
	})
}

func TestMergeSelectsIndexWidth(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	small, big := headAndArm(mat, mat)
	dst := mesh.NewSkeletalMesh("merged")
	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{small, big}, nil, 0).Merge())
	assert.Equal(t, 2, dst.LODModels[0].IndexBuffer.DataTypeSize())

	big = newTestMesh("big", 0, skelArm, []*mesh.Material{mat},
		oneLOD(sectionSpec{bones: []string{"Arm"}, verts: 70000, tris: 1, uvs: 1}))
	dst = mesh.NewSkeletalMesh("merged")
	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{small, big}, nil, 0).Merge())
	assert.Equal(t, 4, dst.LODModels[0].IndexBuffer.DataTypeSize())
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5}, dst.LODModels[0].IndexBuffer.Indices())
}

func TestMergeUVChannelsAndPrecision(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	a := newTestMesh("one", 0, skelHead, []*mesh.Material{mat},
		oneLOD(sectionSpec{bones: []string{"Head"}, verts: 3, tris: 1, uvs: 1}))
	b := newTestMesh("three", 0, skelArm, []*mesh.Material{mat},
		oneLOD(sectionSpec{bones: []string{"Arm"}, verts: 3, tris: 1, uvs: 3}))

	for _, full := range []bool{true, false} {
		dst := mesh.NewSkeletalMesh("merged")
		require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0, WithFullPrecisionUVs(full)).Merge())

		vb := dst.LODModels[0].VertexBuffer
		assert.Equal(t, 3, vb.NumTexCoords)
		assert.Equal(t, full, vb.UseFullPrecisionUVs)
		assert.Equal(t, math.NewVec2(0.5, 0.25), vb.UV(0, 0))
		assert.Equal(t, math.Vec2{}, vb.UV(0, 2))
		assert.Equal(t, math.NewVec2(2.5, 0.25), vb.UV(3, 2))
		if !full {
			assert.Equal(t, math.Vec2{}, vb.Vertices[3].UVs[2])
		}
	}
}

func TestMergeTruncatedBuffersWarn(t *testing.T) {
	mat := mesh.NewMaterial("skin")

	t.Run("vertices", func(t *testing.T) {
		src := newTestMesh("body", 0, skelHead, []*mesh.Material{mat},
			oneLOD(sectionSpec{bones: []string{"Root"}, verts: 3, tris: 1, uvs: 1}))
		src.LODModels[0].Chunks[0].NumSoftVertices = 10
		dst := mesh.NewSkeletalMesh("merged")

		m := NewMeshMerger(dst, []*mesh.SkeletalMesh{src}, nil, 0)
		require.NoError(t, m.Merge())
		require.NotEmpty(t, m.Warnings())
		assert.Equal(t, WarningTruncatedVertices, m.Warnings()[0].Kind)
		assert.Equal(t, 3, dst.LODModels[0].VertexBuffer.Len())
		assert.Equal(t, 3, dst.LODModels[0].Chunks[0].NumVertices())
	})

	t.Run("indices", func(t *testing.T) {
		src := newTestMesh("body", 0, skelHead, []*mesh.Material{mat},
			oneLOD(sectionSpec{bones: []string{"Root"}, verts: 3, tris: 1, uvs: 1}))
		src.LODModels[0].Sections[0].NumTriangles = 5
		dst := mesh.NewSkeletalMesh("merged")

		m := NewMeshMerger(dst, []*mesh.SkeletalMesh{src}, nil, 0)
		require.NoError(t, m.Merge())
		require.Len(t, m.Warnings(), 1)
		assert.Equal(t, WarningTruncatedIndices, m.Warnings()[0].Kind)
		assert.Equal(t, uint32(1), dst.LODModels[0].Sections[0].NumTriangles)
	})

	t.Run("triangle outside chunk", func(t *testing.T) {
		src := newTestMesh("body", 0, skelHead, []*mesh.Material{mat}, oneLOD(
			sectionSpec{bones: []string{"Root"}, verts: 3, tris: 1, uvs: 1},
			sectionSpec{bones: []string{"Head"}, verts: 3, tris: 1, uvs: 1},
		))
		src.LODModels[0].IndexBuffer = mesh.NewIndexBuffer([]uint32{0, 1, 4, 3, 4, 5}, false)
		dst := mesh.NewSkeletalMesh("merged")

		m := NewMeshMerger(dst, []*mesh.SkeletalMesh{src}, nil, 0)
		require.NoError(t, m.Merge())
		require.Len(t, m.Warnings(), 1)
		assert.Equal(t, WarningTruncatedIndices, m.Warnings()[0].Kind)
		lod := dst.LODModels[0]
		require.Len(t, lod.Sections, 1)
		assert.Equal(t, uint32(1), lod.Sections[0].NumTriangles)
		assert.Equal(t, []uint32{3, 4, 5}, lod.IndexBuffer.Indices())
		checkMergedMesh(t, dst, []*mesh.SkeletalMesh{src}, DefaultMaxBonesPerChunk)
	})
}

func TestMergeDropsInfluencesOutsideBoneMap(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	src := newTestMesh("body", 0, skelHead, []*mesh.Material{mat},
		oneLOD(sectionSpec{bones: []string{"Head"}, verts: 3, tris: 1, uvs: 1}))
	v := &src.LODModels[0].VertexBuffer.Vertices[1]
	v.InfluenceBones[1] = 7
	v.InfluenceWeights[1] = 40
	dst := mesh.NewSkeletalMesh("merged")

	m := NewMeshMerger(dst, []*mesh.SkeletalMesh{src}, nil, 0)
	require.NoError(t, m.Merge())
	require.Len(t, m.Warnings(), 1)
	assert.Equal(t, WarningDroppedInfluences, m.Warnings()[0].Kind)

	merged := dst.LODModels[0].VertexBuffer.Vertices[1]
	assert.Equal(t, uint8(255), merged.InfluenceWeights[0])
	assert.Zero(t, merged.InfluenceWeights[1])
	assert.Zero(t, merged.InfluenceBones[1])
	checkMergedMesh(t, dst, []*mesh.SkeletalMesh{src}, DefaultMaxBonesPerChunk)
}

func TestMergeKeepsShadowCastingFlags(t *testing.T) {
	skin, cloth := mesh.NewMaterial("skin"), mesh.NewMaterial("cloth")
	a, b := headAndArm(skin, cloth)
	b.LODInfo[0].EnableShadowCasting = []bool{false}
	dst := mesh.NewSkeletalMesh("merged")

	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0).Merge())
	assert.Equal(t, []bool{true, false}, dst.LODInfo[0].EnableShadowCasting)

	b.LODInfo[0].EnableShadowCasting = nil
	dst = mesh.NewSkeletalMesh("merged")
	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0).Merge())
	assert.Equal(t, []bool{true, true}, dst.LODInfo[0].EnableShadowCasting)
}

func TestMergeMaterialResolution(t *testing.T) {
	m0, m1 := mesh.NewMaterial("m0"), mesh.NewMaterial("m1")

	t.Run("clamped index", func(t *testing.T) {
		src := newTestMesh("body", 0, skelHead, []*mesh.Material{m0, m1},
			oneLOD(sectionSpec{material: 5, bones: []string{"Root"}, verts: 3, tris: 1, uvs: 1}))
		dst := mesh.NewSkeletalMesh("merged")

		m := NewMeshMerger(dst, []*mesh.SkeletalMesh{src}, nil, 0)
		require.NoError(t, m.Merge())
		require.Len(t, m.Warnings(), 1)
		assert.Equal(t, WarningMaterialClamped, m.Warnings()[0].Kind)
		assert.Equal(t, []*mesh.Material{m1}, dst.Materials)
	})

	t.Run("LOD material map", func(t *testing.T) {
		lod1 := oneLOD(sectionSpec{material: 0, bones: []string{"Root"}, verts: 3, tris: 1, uvs: 1})
		lod1.materialMap = []int{1}
		src := newTestMesh("body", 0, skelHead, []*mesh.Material{m0, m1},
			oneLOD(sectionSpec{material: 0, bones: []string{"Root"}, verts: 3, tris: 1, uvs: 1}),
			lod1,
		)
		dst := mesh.NewSkeletalMesh("merged")

		require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{src}, nil, 0).Merge())
		assert.Equal(t, []*mesh.Material{m0, m1}, dst.Materials)
		assert.Equal(t, uint16(0), dst.LODModels[0].Sections[0].MaterialIndex)
		assert.Equal(t, uint16(1), dst.LODModels[1].Sections[0].MaterialIndex)
	})
}

func TestMergeLODInfoTakesMinimum(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	a, b := headAndArm(mat, mat)
	b.LODInfo[0].DisplayFactor = 0.5
	b.LODInfo[0].LODHysteresis = 0.01
	dst := mesh.NewSkeletalMesh("merged")

	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0).Merge())
	assert.Equal(t, float32(0.5), dst.LODInfo[0].DisplayFactor)
	assert.Equal(t, float32(0.01), dst.LODInfo[0].LODHysteresis)
	assert.Equal(t, []bool{true}, dst.LODInfo[0].EnableShadowCasting)
}

func TestMergeSockets(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	a, b := headAndArm(mat, mat)
	a.Sockets = []*mesh.Socket{{Name: "hand", BoneName: "Spine", Relative: math.TransformCreate()}}
	b.Sockets = []*mesh.Socket{
		{Name: "hand", BoneName: "Arm", Relative: math.TransformCreate()},
		{Name: "back", BoneName: "Spine", Relative: math.TransformFromPosition(math.NewVec3(0, 1, 0))},
	}
	dst := mesh.NewSkeletalMesh("merged")

	m := NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0)
	require.NoError(t, m.Merge())

	require.Len(t, dst.Sockets, 2)
	assert.Equal(t, "hand", dst.Sockets[0].Name)
	assert.Equal(t, "Spine", dst.Sockets[0].BoneName)
	assert.Equal(t, "back", dst.Sockets[1].Name)
	assert.NotSame(t, a.Sockets[0], dst.Sockets[0])
	assert.Equal(t, *b.Sockets[1], *dst.Sockets[1])

	require.Len(t, m.Warnings(), 1)
	assert.Equal(t, WarningSocketConflict, m.Warnings()[0].Kind)

	// An identical duplicate is not a conflict.
	b.Sockets[0] = &mesh.Socket{Name: "hand", BoneName: "Spine", Relative: math.TransformCreate()}
	m = NewMeshMerger(mesh.NewSkeletalMesh("merged"), []*mesh.SkeletalMesh{a, b}, nil, 0)
	require.NoError(t, m.Merge())
	assert.Empty(t, m.Warnings())
}

func TestMergeMirrorTable(t *testing.T) {
	mat := mesh.NewMaterial("skin")
	arms := newTestSkeleton(
		boneSpec{name: "Root"},
		boneSpec{name: "LArm", parent: "Root"},
		boneSpec{name: "RArm", parent: "Root"},
	)
	tail := newTestSkeleton(boneSpec{name: "Root"}, boneSpec{name: "Tail", parent: "Root"})

	a := newTestMesh("tail", 0, tail, []*mesh.Material{mat},
		oneLOD(sectionSpec{bones: []string{"Tail"}, verts: 3, tris: 1, uvs: 1}))
	b := newTestMesh("arms", 0, arms, []*mesh.Material{mat},
		oneLOD(sectionSpec{bones: []string{"LArm", "RArm"}, verts: 3, tris: 1, uvs: 1}))
	b.SkelMirrorTable = []mesh.BoneMirrorInfo{
		{SourceIndex: 0, BoneFlipAxis: mesh.AxisNone},
		{SourceIndex: 2, BoneFlipAxis: mesh.AxisX},
		{SourceIndex: 1, BoneFlipAxis: mesh.AxisX},
	}
	dst := mesh.NewSkeletalMesh("merged")

	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a, b}, nil, 0).Merge())

	assert.Equal(t, []string{"Root", "Tail", "LArm", "RArm"}, boneNames(dst.RefSkeleton))
	assert.Equal(t, []mesh.BoneMirrorInfo{
		{SourceIndex: 0, BoneFlipAxis: mesh.AxisNone},
		{SourceIndex: 1, BoneFlipAxis: mesh.AxisNone},
		{SourceIndex: 3, BoneFlipAxis: mesh.AxisX},
		{SourceIndex: 2, BoneFlipAxis: mesh.AxisX},
	}, dst.SkelMirrorTable)

	dst = mesh.NewSkeletalMesh("merged")
	require.NoError(t, NewMeshMerger(dst, []*mesh.SkeletalMesh{a}, nil, 0).Merge())
	assert.Nil(t, dst.SkelMirrorTable)
}

func TestMergeManySourcesKeepsInvariants(t *testing.T) {
	skin, cloth := mesh.NewMaterial("skin"), mesh.NewMaterial("cloth")
	full := newTestSkeleton(
		boneSpec{name: "Root"},
		boneSpec{name: "Spine", parent: "Root"},
		boneSpec{name: "Head", parent: "Spine"},
		boneSpec{name: "Arm", parent: "Spine"},
		boneSpec{name: "Hand", parent: "Arm"},
		boneSpec{name: "Leg", parent: "Root"},
	)
	names := boneNames(full)

	var sources []*mesh.SkeletalMesh
	for i := 0; i < 6; i++ {
		mat := skin
		if i%2 == 1 {
			mat = cloth
		}
		bones := []string{names[i%len(names)], names[(i+1)%len(names)], names[(i+3)%len(names)]}
		sources = append(sources, newTestMesh("part", float32(i), full, []*mesh.Material{mat},
			oneLOD(sectionSpec{bones: bones, verts: 4 + i, tris: 2, uvs: 1 + i%4}),
			oneLOD(sectionSpec{bones: bones[:1], verts: 3, tris: 1, uvs: 1}),
		))
	}
	dst := mesh.NewSkeletalMesh("merged")

	require.NoError(t, NewMeshMerger(dst, sources, nil, 0, WithMaxBonesPerChunk(4)).Merge())
	assert.Equal(t, names, boneNames(dst.RefSkeleton))
	assert.Len(t, dst.LODModels, 2)
	checkMergedMesh(t, dst, sources, 4)

	total := 0
	for _, src := range sources {
		total += src.LODModels[0].VertexBuffer.Len()
	}
	assert.Equal(t, total, dst.LODModels[0].VertexBuffer.Len())
	assert.Equal(t, 4, dst.LODModels[0].NumTexCoords())
}

func TestUnionBoneMaps(t *testing.T) {
	merged, remap, ok := unionBoneMaps([]uint16{4, 7}, []uint16{7, 9}, 3)
	require.True(t, ok)
	assert.Equal(t, []uint16{4, 7, 9}, merged)
	assert.Equal(t, []uint8{1, 2}, remap)

	_, _, ok = unionBoneMaps([]uint16{4, 7}, []uint16{8, 9}, 3)
	assert.False(t, ok)
}

func TestWithMaxBonesPerChunkClamps(t *testing.T) {
	m := NewMeshMerger(nil, nil, nil, 0, WithMaxBonesPerChunk(1000))
	assert.Equal(t, MaxBonesPerChunkLimit, m.maxBonesPerChunk)
	m = NewMeshMerger(nil, nil, nil, 0, WithMaxBonesPerChunk(0))
	assert.Equal(t, DefaultMaxBonesPerChunk, m.maxBonesPerChunk)
}
