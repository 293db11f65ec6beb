package merge

import (
	"github.com/spaghettifunk/anima-merge/engine/math"
	"github.com/spaghettifunk/anima-merge/engine/mesh"
	"golang.org/x/exp/slices"
)

type matchKind uint8

const (
	matchByMaterial matchKind = iota
	matchByID
)

// materialKey decides which sections may share a destination section:
// either the same material instance or the same forced material ID.
type materialKey struct {
	kind     matchKind
	material *mesh.Material
	id       int
}

func (k materialKey) equal(other materialKey) bool {
	if k.kind != other.kind {
		return false
	}
	if k.kind == matchByID {
		return k.id == other.id
	}
	return k.material == other.material
}

// mergePart is one source section (and its chunk) feeding a merged section.
type mergePart struct {
	meshIndex int
	lod       *mesh.LODModel
	lodInfo   *mesh.LODInfo
	section   *mesh.Section
	// sectionIndex is the position of section in lod.Sections.
	sectionIndex int
	chunk        *mesh.Chunk
	// boneRemap maps a position in chunk.BoneMap to a position in the
	// bone map of the merged chunk.
	boneRemap []uint8
}

// mergeCandidate accumulates the source sections of one destination
// section. boneMap holds merged skeleton indices.
type mergeCandidate struct {
	key      materialKey
	material *mesh.Material
	boneMap  []uint16
	parts    []mergePart
}

// groupSections assigns every source section of a destination LOD to a merge
// candidate. Candidates are tried in creation order and the first one with
// an equal material key and room for the extra bones wins.
func (m *MeshMerger) groupSections(lodIdx int) []*mergeCandidate {
	var candidates []*mergeCandidate

	for meshIdx, src := range m.sources {
		if src == nil {
			continue
		}
		srcLODIdx := m.sourceLODIndex(src, lodIdx)
		if srcLODIdx < 0 {
			continue
		}
		lod := src.LODModels[srcLODIdx]
		var lodInfo *mesh.LODInfo
		if srcLODIdx < len(src.LODInfo) {
			lodInfo = &src.LODInfo[srcLODIdx]
		}

		for sIdx := range lod.Sections {
			section := &lod.Sections[sIdx]
			chunk := &lod.Chunks[section.ChunkIndex]
			boneMap := m.remapBones(meshIdx, chunk.BoneMap)
			material := m.resolveMaterial(meshIdx, src, srcLODIdx, section)
			key := m.materialKeyFor(meshIdx, sIdx, material)

			part := mergePart{
				meshIndex:    meshIdx,
				lod:          lod,
				lodInfo:      lodInfo,
				section:      section,
				sectionIndex: sIdx,
				chunk:        chunk,
			}

			placed := false
			for _, c := range candidates {
				if !c.key.equal(key) {
					continue
				}
				merged, remap, ok := unionBoneMaps(c.boneMap, boneMap, m.maxBonesPerChunk)
				if !ok {
					continue
				}
				c.boneMap = merged
				part.boneRemap = remap
				c.parts = append(c.parts, part)
				placed = true
				break
			}
			if placed {
				continue
			}

			part.boneRemap = make([]uint8, len(boneMap))
			for i := range part.boneRemap {
				part.boneRemap[i] = uint8(i)
			}
			candidates = append(candidates, &mergeCandidate{
				key:      key,
				material: material,
				boneMap:  slices.Clone(boneMap),
				parts:    []mergePart{part},
			})
		}
	}
	return candidates
}

// unionBoneMaps appends the bones of add missing from existing. It returns
// the merged map, the position of every bone of add inside it, and false when
// the merged map would exceed limit.
func unionBoneMaps(existing, add []uint16, limit int) ([]uint16, []uint8, bool) {
	merged := slices.Clone(existing)
	remap := make([]uint8, len(add))
	for i, b := range add {
		idx := slices.Index(merged, b)
		if idx < 0 {
			merged = append(merged, b)
			idx = len(merged) - 1
		}
		remap[i] = uint8(idx)
	}
	if len(merged) > limit {
		return nil, nil, false
	}
	return merged, remap, true
}

// resolveMaterial returns the material drawn by a source section. LODs past
// the first may remap material indices through their LOD material map;
// indices missing from the map use the section index as is.
func (m *MeshMerger) resolveMaterial(meshIdx int, src *mesh.SkeletalMesh, srcLODIdx int, section *mesh.Section) *mesh.Material {
	idx := int(section.MaterialIndex)
	if srcLODIdx > 0 && srcLODIdx < len(src.LODInfo) {
		lodMap := src.LODInfo[srcLODIdx].LODMaterialMap
		if idx < len(lodMap) && lodMap[idx] >= 0 {
			idx = lodMap[idx]
		}
	}
	if len(src.Materials) == 0 {
		return nil
	}
	clamped := math.Clamp(idx, 0, len(src.Materials)-1)
	if clamped != idx {
		m.warn(WarningMaterialClamped, "source %d '%s' material index %d clamped to %d", meshIdx, src.Name, idx, clamped)
	}
	return src.Materials[clamped]
}

func (m *MeshMerger) materialKeyFor(meshIdx, sectionIdx int, material *mesh.Material) materialKey {
	if m.useForcedMapping {
		ids := m.forced[meshIdx].SectionIDs
		if sectionIdx < len(ids) && ids[sectionIdx] >= 0 {
			return materialKey{kind: matchByID, id: ids[sectionIdx], material: material}
		}
	}
	return materialKey{kind: matchByMaterial, material: material}
}

// materialTable collects the destination materials. Slots are shared by
// every candidate with an equal key.
type materialTable struct {
	keys      []materialKey
	materials []*mesh.Material
}

func (t *materialTable) slot(c *mergeCandidate) uint16 {
	for i, k := range t.keys {
		if k.equal(c.key) {
			return uint16(i)
		}
	}
	t.keys = append(t.keys, c.key)
	t.materials = append(t.materials, c.material)
	return uint16(len(t.materials) - 1)
}
