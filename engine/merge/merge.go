package merge

import (
	"fmt"

	"github.com/spaghettifunk/anima-merge/engine/core"
	"github.com/spaghettifunk/anima-merge/engine/mesh"
)

// DefaultMaxBonesPerChunk is the number of bones a single draw call can skin
// with on the GPU skinning path.
const DefaultMaxBonesPerChunk = 75

// MaxBonesPerChunkLimit is the largest bone map a vertex can address with
// its 8 bit influence indices.
const MaxBonesPerChunkLimit = 256

// SectionMapping lists, for every section of one source mesh, the material
// ID used to decide which destination section it merges into. Negative IDs
// mean the section is matched by material instead.
type SectionMapping struct {
	SectionIDs []int
}

type Option func(*MeshMerger)

// WithMaxBonesPerChunk overrides the bone count limit of a merged chunk.
func WithMaxBonesPerChunk(n int) Option {
	return func(m *MeshMerger) {
		if n > 0 {
			m.maxBonesPerChunk = min(n, MaxBonesPerChunkLimit)
		}
	}
}

// WithFullPrecisionUVs selects 32 bit float UVs (true) or 16 bit half UVs
// (false) for the merged vertex buffers.
func WithFullPrecisionUVs(full bool) Option {
	return func(m *MeshMerger) {
		m.fullPrecisionUVs = full
	}
}

// MeshMerger combines several skeletal meshes into one. The skeleton of the
// result is the union of the source skeletons and sections sharing a
// material are merged while their bone maps fit in one chunk.
//
// A MeshMerger is not safe for concurrent use.
type MeshMerger struct {
	dst          *mesh.SkeletalMesh
	sources      []*mesh.SkeletalMesh
	forced       []SectionMapping
	stripTopLODs int

	maxBonesPerChunk int
	fullPrecisionUVs bool

	useForcedMapping bool
	skeleton         mesh.RefSkeleton
	srcToDstBoneMaps [][]uint16
	warnings         []Warning
}

// NewMeshMerger prepares a merge of sources into dst. Nil sources are
// skipped but keep their slot so forcedSectionMapping stays aligned.
// forcedSectionMapping is ignored unless it has one entry per source.
// stripTopLODs drops that many of the most detailed source LODs.
func NewMeshMerger(dst *mesh.SkeletalMesh, sources []*mesh.SkeletalMesh, forcedSectionMapping []SectionMapping, stripTopLODs int, opts ...Option) *MeshMerger {
	m := &MeshMerger{
		dst:              dst,
		sources:          sources,
		forced:           forcedSectionMapping,
		stripTopLODs:     stripTopLODs,
		maxBonesPerChunk: DefaultMaxBonesPerChunk,
		fullPrecisionUVs: true,
	}
	if m.stripTopLODs < 0 {
		m.stripTopLODs = 0
	}
	for _, opt := range opts {
		opt(m)
	}
	m.useForcedMapping = len(m.forced) > 0 && len(m.forced) == len(m.sources)
	return m
}

// Warnings returns the non fatal problems found by the last Merge.
func (m *MeshMerger) Warnings() []Warning {
	return m.warnings
}

// Merge rebuilds the destination mesh from the sources. On error the
// destination is left untouched.
func (m *MeshMerger) Merge() error {
	m.warnings = nil
	if m.dst == nil {
		return fmt.Errorf("merge: destination mesh is nil")
	}
	if len(m.forced) > 0 && !m.useForcedMapping {
		core.LogDebug("forced section mapping has %d entries for %d sources, ignoring it", len(m.forced), len(m.sources))
	}

	numLODs, err := m.lodCount()
	if err != nil {
		return err
	}
	for i, src := range m.sources {
		if src == nil {
			continue
		}
		if err := m.validateSource(i, src); err != nil {
			return err
		}
	}

	skeleton, err := m.buildMergedSkeleton()
	if err != nil {
		return err
	}
	m.skeleton = skeleton
	if m.srcToDstBoneMaps, err = m.buildSrcToDstBoneMaps(); err != nil {
		return err
	}

	materials := &materialTable{}
	lods := make([]*mesh.LODModel, numLODs)
	infos := make([]mesh.LODInfo, numLODs)
	for lodIdx := 0; lodIdx < numLODs; lodIdx++ {
		candidates := m.groupSections(lodIdx)
		core.LogDebug("LOD %d: %d merged sections", lodIdx, len(candidates))
		lods[lodIdx], infos[lodIdx] = m.buildLOD(lodIdx, candidates, materials)
	}

	sockets, err := m.mergeSockets()
	if err != nil {
		return err
	}

	m.finalize(lods, infos, materials.materials, sockets)
	core.LogInfo("merged %d source meshes into '%s': %d bones, %d LODs, %d materials",
		m.numValidSources(), m.dst.Name, m.dst.RefSkeleton.Num(), len(m.dst.LODModels), len(m.dst.Materials))
	return nil
}

// lodCount returns the number of destination LODs: the largest source LOD
// count minus the stripped LODs, never less than one.
func (m *MeshMerger) lodCount() (int, error) {
	maxLODs := 0
	for _, src := range m.sources {
		if src != nil && len(src.LODModels) > maxLODs {
			maxLODs = len(src.LODModels)
		}
	}
	if maxLODs == 0 {
		return 0, fmt.Errorf("merge: %w", core.ErrNoSourceMeshes)
	}
	numLODs := maxLODs - m.stripTopLODs
	if numLODs < 1 {
		numLODs = 1
	}
	return numLODs, nil
}

// sourceLODIndex maps a destination LOD to the LOD read from src, clamped to
// the LODs src actually has. Returns -1 when src has no LODs.
func (m *MeshMerger) sourceLODIndex(src *mesh.SkeletalMesh, lodIdx int) int {
	idx := lodIdx + m.stripTopLODs
	if idx > len(src.LODModels)-1 {
		idx = len(src.LODModels) - 1
	}
	return idx
}

func (m *MeshMerger) validateSource(meshIdx int, src *mesh.SkeletalMesh) error {
	if err := src.RefSkeleton.Validate(); err != nil {
		return fmt.Errorf("merge: source %d '%s': %w", meshIdx, src.Name, err)
	}
	numBones := src.RefSkeleton.Num()
	for lodIdx, lod := range src.LODModels {
		if lod == nil {
			return fmt.Errorf("merge: source %d '%s' LOD %d: %w", meshIdx, src.Name, lodIdx, core.ErrInvalidResource)
		}
		for sIdx, section := range lod.Sections {
			if section.ChunkIndex < 0 || section.ChunkIndex >= len(lod.Chunks) {
				return fmt.Errorf("merge: source %d '%s' LOD %d section %d has no chunk: %w", meshIdx, src.Name, lodIdx, sIdx, core.ErrInvalidResource)
			}
		}
		for cIdx, chunk := range lod.Chunks {
			if len(chunk.BoneMap) > m.maxBonesPerChunk {
				return fmt.Errorf("merge: source %d '%s' LOD %d chunk %d uses %d bones, limit is %d: %w",
					meshIdx, src.Name, lodIdx, cIdx, len(chunk.BoneMap), m.maxBonesPerChunk, core.ErrChunkBoneLimit)
			}
			for _, b := range chunk.BoneMap {
				if int(b) >= numBones {
					return fmt.Errorf("merge: source %d '%s' LOD %d chunk %d references bone %d of %d: %w",
						meshIdx, src.Name, lodIdx, cIdx, b, numBones, core.ErrInvalidResource)
				}
			}
		}
	}
	return nil
}

func (m *MeshMerger) numValidSources() int {
	n := 0
	for _, src := range m.sources {
		if src != nil {
			n++
		}
	}
	return n
}
