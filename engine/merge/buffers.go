package merge

import (
	"github.com/chewxy/math32"
	"github.com/spaghettifunk/anima-merge/engine/mesh"
	"golang.org/x/exp/slices"
)

// lodTexCoords returns the widest UV channel count among the source LODs
// read for destination LOD lodIdx.
func (m *MeshMerger) lodTexCoords(lodIdx int) int {
	numTexCoords := mesh.MinTexCoords
	for _, src := range m.sources {
		if src == nil {
			continue
		}
		srcLODIdx := m.sourceLODIndex(src, lodIdx)
		if srcLODIdx < 0 {
			continue
		}
		if n := src.LODModels[srcLODIdx].NumTexCoords(); n > numTexCoords {
			numTexCoords = n
		}
	}
	return min(numTexCoords, mesh.MaxTexCoords)
}

// buildLOD turns the merge candidates of one LOD into a destination chunk
// and section each, with fresh vertex and index buffers.
func (m *MeshMerger) buildLOD(lodIdx int, candidates []*mergeCandidate, materials *materialTable) (*mesh.LODModel, mesh.LODInfo) {
	numTexCoords := m.lodTexCoords(lodIdx)
	vb := mesh.NewVertexBuffer(numTexCoords, m.fullPrecisionUVs, estimateVertices(candidates))
	lod := &mesh.LODModel{VertexBuffer: vb}
	info := mesh.LODInfo{
		DisplayFactor: math32.Inf(1),
		LODHysteresis: math32.Inf(1),
	}

	var indices []uint32
	var maxIndex uint32
	var activeBones, requiredBones []uint16

	for _, c := range candidates {
		info.EnableShadowCasting = append(info.EnableShadowCasting, c.parts[0].castsShadow())
		chunk := mesh.Chunk{
			BaseVertexIndex: uint32(vb.Len()),
			BoneMap:         c.boneMap,
		}
		section := mesh.Section{
			MaterialIndex: materials.slot(c),
			ChunkIndex:    len(lod.Chunks),
			BaseIndex:     uint32(len(indices)),
		}

		for _, p := range c.parts {
			srcVB := p.lod.VertexBuffer
			srcBase := int(p.chunk.BaseVertexIndex)
			srcEnd := srcBase + p.chunk.NumVertices()
			if srcEnd > srcVB.Len() {
				m.warn(WarningTruncatedVertices, "source %d chunk wants vertices [%d, %d) but the buffer holds %d",
					p.meshIndex, srcBase, srcEnd, srcVB.Len())
				srcEnd = srcVB.Len()
			}
			dstBase := uint32(vb.Len())
			copied, dropped := 0, 0
			for v := srcBase; v < srcEnd; v++ {
				dropped += m.copyVertex(vb, srcVB, v, p.boneRemap)
				copied++
			}
			if dropped > 0 {
				m.warn(WarningDroppedInfluences, "source %d section %d dropped %d weighted influences outside its chunk bone map",
					p.meshIndex, p.sectionIndex, dropped)
			}
			if copied > 0 {
				maxIndex = max(maxIndex, uint32(vb.Len()-1))
			}

			var triangles uint32
			indices, triangles = m.copyIndices(indices, p, srcBase, srcBase+copied, dstBase)
			section.NumTriangles += triangles

			rigid := min(p.chunk.NumRigidVertices, copied)
			chunk.NumRigidVertices += rigid
			chunk.NumSoftVertices += copied - rigid
			chunk.MaxBoneInfluences = max(chunk.MaxBoneInfluences, p.chunk.MaxBoneInfluences)

			activeBones = append(activeBones, m.remapBones(p.meshIndex, p.lod.ActiveBoneIndices)...)
			requiredBones = append(requiredBones, m.remapBones(p.meshIndex, p.lod.RequiredBones)...)
			if p.lodInfo != nil {
				info.DisplayFactor = math32.Min(info.DisplayFactor, p.lodInfo.DisplayFactor)
				info.LODHysteresis = math32.Min(info.LODHysteresis, p.lodInfo.LODHysteresis)
			}
		}

		lod.Chunks = append(lod.Chunks, chunk)
		lod.Sections = append(lod.Sections, section)
	}

	lod.ActiveBoneIndices = sortedUnique(activeBones)
	lod.RequiredBones = sortedUnique(requiredBones)
	lod.IndexBuffer = mesh.NewIndexBuffer(indices, mesh.Needs32BitIndices(maxIndex))
	lod.NumVertices = uint32(vb.Len())

	if math32.IsInf(info.DisplayFactor, 1) {
		info.DisplayFactor = 0
	}
	if math32.IsInf(info.LODHysteresis, 1) {
		info.LODHysteresis = 0
	}
	return lod, info
}

// castsShadow returns the shadow flag of the source section, true when the
// source LOD info does not carry one.
func (p mergePart) castsShadow() bool {
	if p.lodInfo == nil || p.sectionIndex >= len(p.lodInfo.EnableShadowCasting) {
		return true
	}
	return p.lodInfo.EnableShadowCasting[p.sectionIndex]
}

// copyVertex appends source vertex v to dst, remapping the bone of every
// weighted influence into the merged chunk bone map. Influences pointing past
// the source chunk bone map are dropped and counted.
func (m *MeshMerger) copyVertex(dst, src *mesh.VertexBuffer, v int, boneRemap []uint8) int {
	sv := &src.Vertices[v]
	dv := mesh.SkinVertex{
		Position: sv.Position,
		TangentX: sv.TangentX,
		TangentZ: sv.TangentZ,
	}
	dropped := 0
	for i := 0; i < mesh.MaxInfluences; i++ {
		weight := sv.InfluenceWeights[i]
		if weight == 0 {
			continue
		}
		bone := int(sv.InfluenceBones[i])
		if bone >= len(boneRemap) {
			dropped++
			continue
		}
		dv.InfluenceBones[i] = boneRemap[bone]
		dv.InfluenceWeights[i] = weight
	}
	dst.Vertices = append(dst.Vertices, dv)
	last := dst.Len() - 1
	for ch := 0; ch < dst.NumTexCoords; ch++ {
		dst.SetUV(last, ch, src.UV(v, ch))
	}
	return dropped
}

// copyIndices appends the triangles of a source section, rebased from the
// source chunk to the destination chunk. Triangles pointing outside the
// copied vertex range [srcBase, srcEnd) are dropped.
func (m *MeshMerger) copyIndices(indices []uint32, p mergePart, srcBase, srcEnd int, dstBase uint32) ([]uint32, uint32) {
	srcIB := p.lod.IndexBuffer
	first := int(p.section.BaseIndex)
	last := first + int(p.section.NumTriangles)*3
	if last > srcIB.Len() {
		m.warn(WarningTruncatedIndices, "source %d section wants indices [%d, %d) but the buffer holds %d",
			p.meshIndex, first, last, srcIB.Len())
		last = srcIB.Len()
	}
	if first >= last {
		return indices, 0
	}
	last = first + (last-first)/3*3

	triangles := uint32(0)
	dropped := 0
	for i := first; i < last; i += 3 {
		tri := [3]uint32{srcIB.At(i), srcIB.At(i + 1), srcIB.At(i + 2)}
		valid := true
		for _, idx := range tri {
			if int(idx) < srcBase || int(idx) >= srcEnd {
				valid = false
				break
			}
		}
		if !valid {
			dropped++
			continue
		}
		for _, idx := range tri {
			indices = append(indices, idx-uint32(srcBase)+dstBase)
		}
		triangles++
	}
	if dropped > 0 {
		m.warn(WarningTruncatedIndices, "source %d section dropped %d triangles referencing vertices outside its chunk", p.meshIndex, dropped)
	}
	return indices, triangles
}

func estimateVertices(candidates []*mergeCandidate) int {
	n := 0
	for _, c := range candidates {
		for _, p := range c.parts {
			n += p.chunk.NumVertices()
		}
	}
	return n
}

func sortedUnique(bones []uint16) []uint16 {
	if len(bones) == 0 {
		return nil
	}
	out := slices.Clone(bones)
	slices.Sort(out)
	return slices.Compact(out)
}
