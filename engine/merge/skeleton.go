package merge

import (
	"fmt"

	"github.com/spaghettifunk/anima-merge/engine/core"
	"github.com/spaghettifunk/anima-merge/engine/mesh"
)

// buildMergedSkeleton starts from the first source skeleton and adds every
// bone of the later sources that is not already present by name. A new bone
// goes right after the last bone already under its parent, so parents keep
// preceding their children.
func (m *MeshMerger) buildMergedSkeleton() (mesh.RefSkeleton, error) {
	var merged mesh.RefSkeleton
	seeded := false

	for meshIdx, src := range m.sources {
		if src == nil {
			continue
		}
		if !seeded {
			merged = src.RefSkeleton.Clone()
			seeded = true
			continue
		}

		srcSkel := &src.RefSkeleton
		rootName := srcSkel.Bones[0].Name
		if rootName != merged.Bones[0].Name {
			return mesh.RefSkeleton{}, fmt.Errorf("merge: source %d '%s' root bone '%s' differs from the merged skeleton root '%s': %w",
				meshIdx, src.Name, rootName, merged.Bones[0].Name, core.ErrIncompatibleSkeletons)
		}

		for i := 1; i < len(srcSkel.Bones); i++ {
			bone := srcSkel.Bones[i]
			if merged.FindBoneIndex(bone.Name) != mesh.IndexNone {
				continue
			}
			parentName := srcSkel.Bones[bone.ParentIndex].Name
			parentIdx := merged.FindBoneIndex(parentName)
			if parentIdx == mesh.IndexNone {
				return mesh.RefSkeleton{}, fmt.Errorf("merge: source %d '%s' bone '%s' parent '%s' missing from merged skeleton: %w",
					meshIdx, src.Name, bone.Name, parentName, core.ErrIncompatibleSkeletons)
			}
			insertBone(&merged, mesh.Bone{
				Name:        bone.Name,
				ParentIndex: parentIdx,
				Pose:        bone.Pose,
			})
		}
	}

	merged.RecountChildren()
	return merged, nil
}

// insertBone places bone after the last descendant of its parent and shifts
// the parent indices that pointed at or past the insertion slot.
func insertBone(skel *mesh.RefSkeleton, bone mesh.Bone) int {
	parentIdx := bone.ParentIndex
	insertAt := parentIdx + 1

	descendant := make([]bool, len(skel.Bones))
	descendant[parentIdx] = true
	for j := parentIdx + 1; j < len(skel.Bones); j++ {
		p := skel.Bones[j].ParentIndex
		if p >= 0 && descendant[p] {
			descendant[j] = true
			insertAt = j + 1
		}
	}

	for j := insertAt; j < len(skel.Bones); j++ {
		if skel.Bones[j].ParentIndex >= insertAt {
			skel.Bones[j].ParentIndex++
		}
	}

	skel.Bones = append(skel.Bones, mesh.Bone{})
	copy(skel.Bones[insertAt+1:], skel.Bones[insertAt:])
	skel.Bones[insertAt] = bone
	return insertAt
}

// buildSrcToDstBoneMaps maps every source bone index to its merged index.
func (m *MeshMerger) buildSrcToDstBoneMaps() ([][]uint16, error) {
	maps := make([][]uint16, len(m.sources))
	for meshIdx, src := range m.sources {
		if src == nil {
			continue
		}
		boneMap := make([]uint16, src.RefSkeleton.Num())
		for i, bone := range src.RefSkeleton.Bones {
			idx := m.skeleton.FindBoneIndex(bone.Name)
			if idx == mesh.IndexNone {
				return nil, fmt.Errorf("merge: source %d '%s' bone '%s' missing from merged skeleton: %w",
					meshIdx, src.Name, bone.Name, core.ErrIncompatibleSkeletons)
			}
			boneMap[i] = uint16(idx)
		}
		maps[meshIdx] = boneMap
	}
	return maps, nil
}

// remapBones translates source skeleton indices through the bone map of
// source meshIdx.
func (m *MeshMerger) remapBones(meshIdx int, bones []uint16) []uint16 {
	boneMap := m.srcToDstBoneMaps[meshIdx]
	out := make([]uint16, 0, len(bones))
	for _, b := range bones {
		if int(b) < len(boneMap) {
			out = append(out, boneMap[b])
		}
	}
	return out
}
