package mesh

import "github.com/spaghettifunk/anima-merge/engine/math"

/**
 * @brief A named attachment point relative to a bone.
 */
type Socket struct {
	/** @brief The socket name. Unique within a mesh. */
	Name string
	/** @brief The bone the socket is attached to. */
	BoneName string
	/** @brief The transform relative to the bone. */
	Relative math.Transform
}

// SameAttachment reports whether both sockets sit on the same bone with the
// same relative transform.
func (s *Socket) SameAttachment(other *Socket) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.BoneName == other.BoneName && s.Relative.Compare(other.Relative, math.K_KINDA_SMALL_NUMBER)
}

// FindSocket returns the socket called name or nil.
func FindSocket(sockets []*Socket, name string) *Socket {
	for _, s := range sockets {
		if s != nil && s.Name == name {
			return s
		}
	}
	return nil
}
