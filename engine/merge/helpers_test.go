package merge

import (
	"github.com/spaghettifunk/anima-merge/engine/math"
	"github.com/spaghettifunk/anima-merge/engine/mesh"
)

type boneSpec struct {
	name   string
	parent string
}

type sectionSpec struct {
	material int
	bones    []string
	verts    int
	tris     int
	uvs      int
}

type lodSpec struct {
	sections      []sectionSpec
	displayFactor float32
	materialMap   []int
}

// newTestSkeleton builds a skeleton from bones listed parents first.
func newTestSkeleton(bones ...boneSpec) mesh.RefSkeleton {
	s := mesh.RefSkeleton{}
	for i, b := range bones {
		parent := mesh.NoParent
		if i > 0 {
			parent = s.FindBoneIndex(b.parent)
		}
		s.Bones = append(s.Bones, mesh.Bone{
			Name:        b.name,
			ParentIndex: parent,
			Pose:        math.TransformFromPosition(math.NewVec3(0, 0, float32(i))),
		})
	}
	s.RecountChildren()
	return s
}

// newTestMesh builds a mesh whose LODs hold one chunk per section. Every
// vertex is rigidly bound to one bone of its chunk, cycling through the
// bone map, and offset along Y so meshes get distinct bounds.
func newTestMesh(name string, offset float32, skeleton mesh.RefSkeleton, materials []*mesh.Material, lods ...lodSpec) *mesh.SkeletalMesh {
	m := mesh.NewSkeletalMesh(name)
	m.RefSkeleton = skeleton.Clone()
	m.Materials = materials
	m.SkeletalDepth = skeleton.Depth()

	var positions []math.Vec3
	for _, ls := range lods {
		numTexCoords := mesh.MinTexCoords
		for _, s := range ls.sections {
			numTexCoords = max(numTexCoords, s.uvs)
		}
		vb := mesh.NewVertexBuffer(numTexCoords, true, 0)
		lod := &mesh.LODModel{VertexBuffer: vb}
		var indices []uint32
		var bones []uint16

		for _, s := range ls.sections {
			chunk := mesh.Chunk{
				BaseVertexIndex:   uint32(vb.Len()),
				NumSoftVertices:   s.verts,
				MaxBoneInfluences: 1,
			}
			for _, b := range s.bones {
				chunk.BoneMap = append(chunk.BoneMap, uint16(skeleton.FindBoneIndex(b)))
			}
			bones = append(bones, chunk.BoneMap...)

			for v := 0; v < s.verts; v++ {
				sv := mesh.SkinVertex{
					Position: math.NewVec3(float32(v), offset, 0),
					TangentZ: math.NewVec4(0, 0, 1, 1),
				}
				sv.InfluenceBones[0] = uint8(v % len(s.bones))
				sv.InfluenceWeights[0] = 255
				vb.Vertices = append(vb.Vertices, sv)
				for ch := 0; ch < s.uvs; ch++ {
					vb.SetUV(vb.Len()-1, ch, math.NewVec2(float32(ch)+0.5, 0.25))
				}
				positions = append(positions, sv.Position)
			}

			section := mesh.Section{
				MaterialIndex: uint16(s.material),
				ChunkIndex:    len(lod.Chunks),
				BaseIndex:     uint32(len(indices)),
				NumTriangles:  uint32(s.tris),
			}
			for t := 0; t < s.tris; t++ {
				base := chunk.BaseVertexIndex
				a := uint32(t) % uint32(s.verts-2)
				indices = append(indices, base+a, base+a+1, base+a+2)
			}
			lod.Chunks = append(lod.Chunks, chunk)
			lod.Sections = append(lod.Sections, section)
		}

		lod.ActiveBoneIndices = sortedUnique(bones)
		lod.RequiredBones = sortedUnique(append(bones, 0))
		lod.IndexBuffer = mesh.NewIndexBuffer(indices, mesh.Needs32BitIndices(uint32(vb.Len())))
		lod.NumVertices = uint32(vb.Len())
		shadows := make([]bool, len(lod.Sections))
		for i := range shadows {
			shadows[i] = true
		}
		m.LODModels = append(m.LODModels, lod)
		m.LODInfo = append(m.LODInfo, mesh.LODInfo{
			DisplayFactor:       ls.displayFactor,
			LODHysteresis:       0.02,
			LODMaterialMap:      ls.materialMap,
			EnableShadowCasting: shadows,
		})
	}
	m.Bounds = math.NewBoundsFromPoints(positions)
	return m
}

func oneLOD(sections ...sectionSpec) lodSpec {
	return lodSpec{sections: sections, displayFactor: 1}
}

func boneNames(s mesh.RefSkeleton) []string {
	out := make([]string, len(s.Bones))
	for i, b := range s.Bones {
		out[i] = b.Name
	}
	return out
}

func boneParents(s mesh.RefSkeleton) []int {
	out := make([]int, len(s.Bones))
	for i, b := range s.Bones {
		out[i] = b.ParentIndex
	}
	return out
}

var (
	skelHead = newTestSkeleton(
		boneSpec{name: "Root"},
		boneSpec{name: "Spine", parent: "Root"},
		boneSpec{name: "Head", parent: "Spine"},
	)
	skelArm = newTestSkeleton(
		boneSpec{name: "Root"},
		boneSpec{name: "Spine", parent: "Root"},
		boneSpec{name: "Arm", parent: "Spine"},
	)
)
