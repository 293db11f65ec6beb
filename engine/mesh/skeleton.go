package mesh

import (
	"fmt"

	"github.com/spaghettifunk/anima-merge/engine/core"
	"github.com/spaghettifunk/anima-merge/engine/math"
)

const (
	/** @brief Parent index of the root bone. */
	NoParent int = -1
	/** @brief Returned by lookups that found nothing. */
	IndexNone int = -1
)

/**
 * @brief A single bone of a reference skeleton.
 */
type Bone struct {
	/** @brief The bone name. Unique within a skeleton. */
	Name string
	/** @brief Index of the parent bone, NoParent for the root. */
	ParentIndex int
	/** @brief Reference pose relative to the parent bone. */
	Pose math.Transform
	/** @brief The number of direct children. */
	NumChildren int
}

/**
 * @brief The bind pose hierarchy of a skeletal mesh. Parents always come
 * before their children and the root is bone 0.
 */
type RefSkeleton struct {
	Bones []Bone
}

func (s *RefSkeleton) Num() int {
	if s == nil {
		return 0
	}
	return len(s.Bones)
}

// FindBoneIndex returns the index of the bone called name, or IndexNone.
func (s *RefSkeleton) FindBoneIndex(name string) int {
	if s == nil {
		return IndexNone
	}
	for i := range s.Bones {
		if s.Bones[i].Name == name {
			return i
		}
	}
	return IndexNone
}

// Clone returns a deep copy of the skeleton.
func (s *RefSkeleton) Clone() RefSkeleton {
	out := RefSkeleton{Bones: make([]Bone, len(s.Bones))}
	copy(out.Bones, s.Bones)
	return out
}

// Validate checks the root and parent-before-child ordering.
func (s *RefSkeleton) Validate() error {
	if s.Num() == 0 {
		return fmt.Errorf("%w: skeleton has no bones", core.ErrInvalidSkeleton)
	}
	if s.Bones[0].ParentIndex != NoParent {
		return fmt.Errorf("%w: root bone '%s' has parent %d", core.ErrInvalidSkeleton, s.Bones[0].Name, s.Bones[0].ParentIndex)
	}
	names := make(map[string]struct{}, len(s.Bones))
	for i, b := range s.Bones {
		if _, dup := names[b.Name]; dup {
			return fmt.Errorf("%w: duplicate bone name '%s'", core.ErrInvalidSkeleton, b.Name)
		}
		names[b.Name] = struct{}{}
		if i == 0 {
			continue
		}
		if b.ParentIndex < 0 || b.ParentIndex >= i {
			return fmt.Errorf("%w: bone %d '%s' has parent %d", core.ErrInvalidSkeleton, i, b.Name, b.ParentIndex)
		}
	}
	return nil
}

// RecountChildren recomputes NumChildren for every bone.
func (s *RefSkeleton) RecountChildren() {
	for i := range s.Bones {
		s.Bones[i].NumChildren = 0
	}
	for i := 1; i < len(s.Bones); i++ {
		if p := s.Bones[i].ParentIndex; p >= 0 && p < len(s.Bones) {
			s.Bones[p].NumChildren++
		}
	}
}

// Depth returns the number of bones on the longest root to leaf chain.
func (s *RefSkeleton) Depth() int {
	depths := make([]int, s.Num())
	max := 0
	for i, b := range s.Bones {
		depths[i] = 1
		if b.ParentIndex >= 0 && b.ParentIndex < i {
			depths[i] = depths[b.ParentIndex] + 1
		}
		if depths[i] > max {
			max = depths[i]
		}
	}
	return max
}

// ComponentSpaceMatrices composes every bone pose with its parents.
func (s *RefSkeleton) ComponentSpaceMatrices() []math.Mat4 {
	out := make([]math.Mat4, s.Num())
	for i, b := range s.Bones {
		local := b.Pose.Matrix()
		if b.ParentIndex >= 0 && b.ParentIndex < i {
			out[i] = local.Mul(out[b.ParentIndex])
		} else {
			out[i] = local
		}
	}
	return out
}

// InverseBindMatrices returns the inverse of every component space bind pose.
func (s *RefSkeleton) InverseBindMatrices() []math.Mat4 {
	cs := s.ComponentSpaceMatrices()
	out := make([]math.Mat4, len(cs))
	for i := range cs {
		out[i] = cs[i].Inverse()
	}
	return out
}
