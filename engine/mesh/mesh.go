package mesh

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-merge/engine/core"
	"github.com/spaghettifunk/anima-merge/engine/math"
)

/** @brief An axis used by mirroring. */
type Axis uint8

const (
	AxisNone Axis = iota
	AxisX
	AxisY
	AxisZ
)

/**
 * @brief Mirror information for one bone: the bone it mirrors to and the
 * axis flipped when mirroring.
 */
type BoneMirrorInfo struct {
	SourceIndex  int
	BoneFlipAxis Axis
}

/**
 * @brief A skinned mesh with its skeleton, LODs and attachment sockets.
 */
type SkeletalMesh struct {
	ID          uuid.UUID
	Name        string
	RefSkeleton RefSkeleton
	LODModels   []*LODModel
	LODInfo     []LODInfo
	Materials   []*Material
	Sockets     []*Socket

	Bounds    math.BoxSphereBounds
	Origin    math.Vec3
	RotOrigin math.Quaternion

	SkelMirrorTable    []BoneMirrorInfo
	SkelMirrorAxis     Axis
	SkelMirrorFlipAxis Axis

	SkeletalDepth     int
	RefBasesInvMatrix []math.Mat4
}

func NewSkeletalMesh(name string) *SkeletalMesh {
	return &SkeletalMesh{
		ID:        uuid.New(),
		Name:      name,
		RotOrigin: math.NewQuatIdentity(),
	}
}

// Validate checks the invariants the merge relies on: a valid skeleton,
// one LOD info per LOD, sections paired with existing chunks and chunk
// bone maps referencing existing bones.
func (m *SkeletalMesh) Validate() error {
	if err := m.RefSkeleton.Validate(); err != nil {
		return fmt.Errorf("mesh '%s': %w", m.Name, err)
	}
	if len(m.LODInfo) != len(m.LODModels) {
		return fmt.Errorf("%w: mesh '%s' has %d LODs and %d LOD infos", core.ErrInvalidResource, m.Name, len(m.LODModels), len(m.LODInfo))
	}
	numBones := m.RefSkeleton.Num()
	for lodIdx, lod := range m.LODModels {
		if lod == nil {
			return fmt.Errorf("%w: mesh '%s' LOD %d is nil", core.ErrInvalidResource, m.Name, lodIdx)
		}
		for sIdx, s := range lod.Sections {
			if s.ChunkIndex < 0 || s.ChunkIndex >= len(lod.Chunks) {
				return fmt.Errorf("%w: mesh '%s' LOD %d section %d points at chunk %d", core.ErrInvalidResource, m.Name, lodIdx, sIdx, s.ChunkIndex)
			}
		}
		for cIdx, c := range lod.Chunks {
			for _, b := range c.BoneMap {
				if int(b) >= numBones {
					return fmt.Errorf("%w: mesh '%s' LOD %d chunk %d references bone %d", core.ErrInvalidResource, m.Name, lodIdx, cIdx, b)
				}
			}
		}
	}
	return nil
}
