package loaders

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-merge/engine/core"
	"github.com/spaghettifunk/anima-merge/engine/math"
	"github.com/spaghettifunk/anima-merge/engine/mesh"
	"github.com/spaghettifunk/anima-merge/engine/resources"
	"github.com/x448/float16"
)

// MaterialResolver returns the shared material instance for a name. Meshes
// loaded with the same resolver share material pointers, which is what the
// merge matches sections on.
type MaterialResolver func(name string) *mesh.Material

/** @brief Parameters used when loading a skeletal mesh. */
type SkeletalMeshParams struct {
	/** @brief Resolves material names. When nil every material is a new instance. */
	Materials MaterialResolver
}

type SkeletalMeshLoader struct{}

func (sl *SkeletalMeshLoader) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	if assetType != resources.ResourceTypeSkeletalMesh {
		return nil, fmt.Errorf("skeletal mesh loader cannot load %s resources: %w", assetType, core.ErrUnknownResourceType)
	}
	var resolve MaterialResolver
	switch p := params.(type) {
	case nil:
	case SkeletalMeshParams:
		resolve = p.Materials
	case *SkeletalMeshParams:
		resolve = p.Materials
	default:
		return nil, fmt.Errorf("failed to cast params in skeletal mesh loader")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	m, err := ReadSkeletalMesh(bufio.NewReader(f), resolve)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &resources.Resource{
		Type:     resources.ResourceTypeSkeletalMesh,
		Name:     m.Name,
		FullPath: path,
		DataSize: uint64(info.Size()),
		Data:     m,
	}, nil
}

func (sl *SkeletalMeshLoader) Unload(res *resources.Resource) error {
	if res == nil {
		return nil
	}
	res.Data = nil
	res.DataSize = 0
	return nil
}

// SaveSkeletalMesh writes m to path, creating parent directories. The file
// is written next to path first and renamed, so readers never observe a
// partial mesh.
func SaveSkeletalMesh(path string, m *mesh.SkeletalMesh) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := WriteSkeletalMesh(w, m); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// WriteSkeletalMesh encodes m in the .askm format. Inverse bind matrices
// are not stored, they are rebuilt from the skeleton on read.
func WriteSkeletalMesh(w io.Writer, m *mesh.SkeletalMesh) error {
	bw := &binaryWriter{w: w}
	bw.header(resources.ResourceTypeSkeletalMesh, resources.SkeletalMeshVersion)

	bw.str(m.Name)
	bw.write(m.ID[:])

	bw.count(len(m.RefSkeleton.Bones))
	for _, b := range m.RefSkeleton.Bones {
		bw.str(b.Name)
		bw.i32(int32(b.ParentIndex))
		bw.transform(b.Pose)
	}

	bw.count(len(m.Materials))
	for _, mat := range m.Materials {
		name := ""
		if mat != nil {
			name = mat.Name
		}
		bw.str(name)
	}

	bw.count(len(m.Sockets))
	for _, s := range m.Sockets {
		bw.str(s.Name)
		bw.str(s.BoneName)
		bw.transform(s.Relative)
	}

	bw.vec3(m.Bounds.Origin)
	bw.vec3(m.Bounds.BoxExtent)
	bw.f32(m.Bounds.SphereRadius)
	bw.vec3(m.Origin)
	bw.vec4(math.Vec4(m.RotOrigin))

	bw.u8(uint8(m.SkelMirrorAxis))
	bw.u8(uint8(m.SkelMirrorFlipAxis))
	bw.count(len(m.SkelMirrorTable))
	for _, e := range m.SkelMirrorTable {
		bw.i32(int32(e.SourceIndex))
		bw.u8(uint8(e.BoneFlipAxis))
	}
	bw.u32(uint32(m.SkeletalDepth))

	bw.count(len(m.LODModels))
	for i, lod := range m.LODModels {
		var info mesh.LODInfo
		if i < len(m.LODInfo) {
			info = m.LODInfo[i]
		}
		writeLODInfo(bw, &info)
		writeLODModel(bw, lod)
	}
	return bw.err
}

func writeLODInfo(bw *binaryWriter, info *mesh.LODInfo) {
	bw.f32(info.DisplayFactor)
	bw.f32(info.LODHysteresis)
	bw.count(len(info.LODMaterialMap))
	for _, idx := range info.LODMaterialMap {
		bw.i32(int32(idx))
	}
	bw.count(len(info.EnableShadowCasting))
	for _, v := range info.EnableShadowCasting {
		bw.bool(v)
	}
}

func writeLODModel(bw *binaryWriter, lod *mesh.LODModel) {
	bw.count(len(lod.Sections))
	for _, s := range lod.Sections {
		bw.u16(s.MaterialIndex)
		bw.i32(int32(s.ChunkIndex))
		bw.u32(s.BaseIndex)
		bw.u32(s.NumTriangles)
	}

	bw.count(len(lod.Chunks))
	for _, c := range lod.Chunks {
		bw.u32(c.BaseVertexIndex)
		bw.u32(uint32(c.NumRigidVertices))
		bw.u32(uint32(c.NumSoftVertices))
		bw.u32(uint32(c.MaxBoneInfluences))
		writeBoneList(bw, c.BoneMap)
	}
	writeBoneList(bw, lod.ActiveBoneIndices)
	writeBoneList(bw, lod.RequiredBones)

	vb := lod.VertexBuffer
	if vb == nil {
		vb = mesh.NewVertexBuffer(mesh.MinTexCoords, true, 0)
	}
	bw.u8(uint8(vb.NumTexCoords))
	bw.bool(vb.UseFullPrecisionUVs)
	bw.count(vb.Len())
	for i := range vb.Vertices {
		v := &vb.Vertices[i]
		bw.vec3(v.Position)
		bw.vec3(v.TangentX)
		bw.vec4(v.TangentZ)
		bw.write(v.InfluenceBones[:])
		bw.write(v.InfluenceWeights[:])
		for ch := 0; ch < vb.NumTexCoords; ch++ {
			if vb.UseFullPrecisionUVs {
				bw.vec2(v.UVs[ch])
				continue
			}
			bw.u16(v.HalfUVs[ch][0].Bits())
			bw.u16(v.HalfUVs[ch][1].Bits())
		}
	}

	ib := lod.IndexBuffer
	is32 := ib.DataTypeSize() == 4
	bw.bool(is32)
	bw.count(ib.Len())
	for i := 0; i < ib.Len(); i++ {
		if is32 {
			bw.u32(ib.At(i))
			continue
		}
		bw.u16(uint16(ib.At(i)))
	}
}

func writeBoneList(bw *binaryWriter, bones []uint16) {
	bw.count(len(bones))
	for _, b := range bones {
		bw.u16(b)
	}
}

// ReadSkeletalMesh decodes an .askm stream. Material names go through
// resolve when it is set.
func ReadSkeletalMesh(r io.Reader, resolve MaterialResolver) (*mesh.SkeletalMesh, error) {
	br := &binaryReader{r: r}
	if _, err := br.header(resources.ResourceTypeSkeletalMesh, resources.SkeletalMeshVersion); err != nil {
		return nil, err
	}

	m := mesh.NewSkeletalMesh(br.str())
	var id uuid.UUID
	if br.err == nil {
		_, br.err = io.ReadFull(br.r, id[:])
	}
	m.ID = id

	numBones := br.count()
	m.RefSkeleton.Bones = make([]mesh.Bone, 0, min(numBones, 1024))
	for i := 0; i < numBones && br.err == nil; i++ {
		m.RefSkeleton.Bones = append(m.RefSkeleton.Bones, mesh.Bone{
			Name:        br.str(),
			ParentIndex: int(br.i32()),
			Pose:        br.transform(),
		})
	}

	numMaterials := br.count()
	for i := 0; i < numMaterials && br.err == nil; i++ {
		name := br.str()
		if resolve != nil {
			m.Materials = append(m.Materials, resolve(name))
			continue
		}
		m.Materials = append(m.Materials, mesh.NewMaterial(name))
	}

	numSockets := br.count()
	for i := 0; i < numSockets && br.err == nil; i++ {
		m.Sockets = append(m.Sockets, &mesh.Socket{
			Name:     br.str(),
			BoneName: br.str(),
			Relative: br.transform(),
		})
	}

	m.Bounds = math.BoxSphereBounds{Origin: br.vec3(), BoxExtent: br.vec3(), SphereRadius: br.f32()}
	m.Origin = br.vec3()
	m.RotOrigin = math.Quaternion(br.vec4())

	m.SkelMirrorAxis = mesh.Axis(br.u8())
	m.SkelMirrorFlipAxis = mesh.Axis(br.u8())
	numMirror := br.count()
	for i := 0; i < numMirror && br.err == nil; i++ {
		m.SkelMirrorTable = append(m.SkelMirrorTable, mesh.BoneMirrorInfo{
			SourceIndex:  int(br.i32()),
			BoneFlipAxis: mesh.Axis(br.u8()),
		})
	}
	m.SkeletalDepth = int(br.u32())

	numLODs := br.count()
	for i := 0; i < numLODs && br.err == nil; i++ {
		info := readLODInfo(br)
		lod, err := readLODModel(br)
		if err != nil {
			return nil, err
		}
		m.LODInfo = append(m.LODInfo, info)
		m.LODModels = append(m.LODModels, lod)
	}
	if br.err != nil {
		return nil, fmt.Errorf("%w: skeletal mesh '%s': %v", core.ErrInvalidResource, m.Name, br.err)
	}

	m.RefSkeleton.RecountChildren()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.RefBasesInvMatrix = m.RefSkeleton.InverseBindMatrices()
	return m, nil
}

func readLODInfo(br *binaryReader) mesh.LODInfo {
	info := mesh.LODInfo{
		DisplayFactor: br.f32(),
		LODHysteresis: br.f32(),
	}
	n := br.count()
	for i := 0; i < n && br.err == nil; i++ {
		info.LODMaterialMap = append(info.LODMaterialMap, int(br.i32()))
	}
	n = br.count()
	for i := 0; i < n && br.err == nil; i++ {
		info.EnableShadowCasting = append(info.EnableShadowCasting, br.bool())
	}
	return info
}

func readLODModel(br *binaryReader) (*mesh.LODModel, error) {
	lod := &mesh.LODModel{}

	n := br.count()
	for i := 0; i < n && br.err == nil; i++ {
		lod.Sections = append(lod.Sections, mesh.Section{
			MaterialIndex: br.u16(),
			ChunkIndex:    int(br.i32()),
			BaseIndex:     br.u32(),
			NumTriangles:  br.u32(),
		})
	}

	n = br.count()
	for i := 0; i < n && br.err == nil; i++ {
		lod.Chunks = append(lod.Chunks, mesh.Chunk{
			BaseVertexIndex:   br.u32(),
			NumRigidVertices:  int(br.u32()),
			NumSoftVertices:   int(br.u32()),
			MaxBoneInfluences: int(br.u32()),
			BoneMap:           readBoneList(br),
		})
	}
	lod.ActiveBoneIndices = readBoneList(br)
	lod.RequiredBones = readBoneList(br)

	numTexCoords := int(br.u8())
	if br.err == nil && (numTexCoords < mesh.MinTexCoords || numTexCoords > mesh.MaxTexCoords) {
		return nil, fmt.Errorf("%w: %d texture coordinate channels", core.ErrInvalidResource, numTexCoords)
	}
	vb := mesh.NewVertexBuffer(numTexCoords, br.bool(), 0)
	n = br.count()
	vb.Vertices = make([]mesh.SkinVertex, 0, min(n, 1<<16))
	for i := 0; i < n && br.err == nil; i++ {
		v := mesh.SkinVertex{
			Position: br.vec3(),
			TangentX: br.vec3(),
			TangentZ: br.vec4(),
		}
		for j := range v.InfluenceBones {
			v.InfluenceBones[j] = br.u8()
		}
		for j := range v.InfluenceWeights {
			v.InfluenceWeights[j] = br.u8()
		}
		for ch := 0; ch < vb.NumTexCoords; ch++ {
			if vb.UseFullPrecisionUVs {
				v.UVs[ch] = br.vec2()
				continue
			}
			v.HalfUVs[ch] = [2]float16.Float16{float16.Frombits(br.u16()), float16.Frombits(br.u16())}
		}
		vb.Vertices = append(vb.Vertices, v)
	}
	lod.VertexBuffer = vb
	lod.NumVertices = uint32(vb.Len())

	is32 := br.bool()
	n = br.count()
	indices := make([]uint32, 0, min(n, 1<<16))
	for i := 0; i < n && br.err == nil; i++ {
		if is32 {
			indices = append(indices, br.u32())
			continue
		}
		indices = append(indices, uint32(br.u16()))
	}
	lod.IndexBuffer = mesh.NewIndexBuffer(indices, is32)
	return lod, nil
}

func readBoneList(br *binaryReader) []uint16 {
	n := br.count()
	if n == 0 {
		return nil
	}
	out := make([]uint16, 0, min(n, 1024))
	for i := 0; i < n && br.err == nil; i++ {
		out = append(out, br.u16())
	}
	return out
}
