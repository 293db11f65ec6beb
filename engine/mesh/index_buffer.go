package mesh

import "math"

/**
 * @brief Triangle indices stored with 16 bit indices when every index fits,
 * 32 bit otherwise.
 */
type IndexBuffer struct {
	indices16 []uint16
	indices32 []uint32
	is32      bool
}

// Needs32BitIndices reports whether maxIndex overflows 16 bit storage.
func Needs32BitIndices(maxIndex uint32) bool {
	return maxIndex > math.MaxUint16
}

// NewIndexBuffer stores indices in 32 bit form when needs32 is set. Storing
// an index above 0xFFFF in a 16 bit buffer panics.
func NewIndexBuffer(indices []uint32, needs32 bool) *IndexBuffer {
	ib := &IndexBuffer{is32: needs32}
	if needs32 {
		ib.indices32 = make([]uint32, len(indices))
		copy(ib.indices32, indices)
		return ib
	}
	ib.indices16 = make([]uint16, len(indices))
	for i, idx := range indices {
		if idx > math.MaxUint16 {
			panic("index does not fit in a 16 bit index buffer")
		}
		ib.indices16[i] = uint16(idx)
	}
	return ib
}

// DataTypeSize returns the size of one index in bytes.
func (ib *IndexBuffer) DataTypeSize() int {
	if ib != nil && ib.is32 {
		return 4
	}
	return 2
}

func (ib *IndexBuffer) Len() int {
	if ib == nil {
		return 0
	}
	if ib.is32 {
		return len(ib.indices32)
	}
	return len(ib.indices16)
}

func (ib *IndexBuffer) At(i int) uint32 {
	if ib.is32 {
		return ib.indices32[i]
	}
	return uint32(ib.indices16[i])
}

// Indices returns every index widened to 32 bits.
func (ib *IndexBuffer) Indices() []uint32 {
	out := make([]uint32, ib.Len())
	for i := range out {
		out[i] = ib.At(i)
	}
	return out
}
