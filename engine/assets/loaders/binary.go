package loaders

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/spaghettifunk/anima-merge/engine/core"
	amath "github.com/spaghettifunk/anima-merge/engine/math"
	"github.com/spaghettifunk/anima-merge/engine/resources"
)

// maxElementCount bounds every length prefix read from disk so a corrupt
// file fails instead of allocating gigabytes.
const maxElementCount = 1 << 26

// binaryWriter writes little endian values and keeps the first error.
type binaryWriter struct {
	w       io.Writer
	err     error
	scratch [8]byte
}

func (bw *binaryWriter) write(b []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(b)
}

func (bw *binaryWriter) u8(v uint8) {
	bw.scratch[0] = v
	bw.write(bw.scratch[:1])
}

func (bw *binaryWriter) bool(v bool) {
	if v {
		bw.u8(1)
		return
	}
	bw.u8(0)
}

func (bw *binaryWriter) u16(v uint16) {
	binary.LittleEndian.PutUint16(bw.scratch[:2], v)
	bw.write(bw.scratch[:2])
}

func (bw *binaryWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(bw.scratch[:4], v)
	bw.write(bw.scratch[:4])
}

func (bw *binaryWriter) i32(v int32) {
	bw.u32(uint32(v))
}

func (bw *binaryWriter) f32(v float32) {
	bw.u32(math.Float32bits(v))
}

func (bw *binaryWriter) count(n int) {
	bw.u32(uint32(n))
}

func (bw *binaryWriter) str(s string) {
	bw.count(len(s))
	bw.write([]byte(s))
}

func (bw *binaryWriter) vec2(v amath.Vec2) {
	bw.f32(v.X)
	bw.f32(v.Y)
}

func (bw *binaryWriter) vec3(v amath.Vec3) {
	bw.f32(v.X)
	bw.f32(v.Y)
	bw.f32(v.Z)
}

func (bw *binaryWriter) vec4(v amath.Vec4) {
	bw.f32(v.X)
	bw.f32(v.Y)
	bw.f32(v.Z)
	bw.f32(v.W)
}

func (bw *binaryWriter) transform(t amath.Transform) {
	bw.vec3(t.Position)
	bw.vec4(amath.Vec4(t.Rotation))
	bw.vec3(t.Scale)
}

func (bw *binaryWriter) header(resourceType resources.ResourceType, version uint8) {
	bw.u32(resources.ResourceMagic)
	bw.u8(uint8(resourceType))
	bw.u8(version)
	bw.u16(0)
}

// binaryReader reads little endian values and keeps the first error. Reads
// after an error return zero values.
type binaryReader struct {
	r       io.Reader
	err     error
	scratch [8]byte
}

func (br *binaryReader) read(n int) []byte {
	buf := br.scratch[:n]
	if br.err == nil {
		_, br.err = io.ReadFull(br.r, buf)
		if br.err == nil {
			return buf
		}
	}
	clear(buf)
	return buf
}

func (br *binaryReader) u8() uint8 {
	return br.read(1)[0]
}

func (br *binaryReader) bool() bool {
	return br.u8() != 0
}

func (br *binaryReader) u16() uint16 {
	return binary.LittleEndian.Uint16(br.read(2))
}

func (br *binaryReader) u32() uint32 {
	return binary.LittleEndian.Uint32(br.read(4))
}

func (br *binaryReader) i32() int32 {
	return int32(br.u32())
}

func (br *binaryReader) f32() float32 {
	return math.Float32frombits(br.u32())
}

func (br *binaryReader) count() int {
	n := br.u32()
	if br.err == nil && n > maxElementCount {
		br.err = fmt.Errorf("%w: element count %d exceeds %d", core.ErrInvalidResource, n, maxElementCount)
	}
	if br.err != nil {
		return 0
	}
	return int(n)
}

func (br *binaryReader) str() string {
	n := br.count()
	if n == 0 {
		return ""
	}
	buf := make([]byte, n)
	if br.err == nil {
		if _, err := io.ReadFull(br.r, buf); err != nil {
			br.err = err
			return ""
		}
	}
	return string(buf)
}

func (br *binaryReader) vec2() amath.Vec2 {
	return amath.Vec2{X: br.f32(), Y: br.f32()}
}

func (br *binaryReader) vec3() amath.Vec3 {
	return amath.Vec3{X: br.f32(), Y: br.f32(), Z: br.f32()}
}

func (br *binaryReader) vec4() amath.Vec4 {
	return amath.Vec4{X: br.f32(), Y: br.f32(), Z: br.f32(), W: br.f32()}
}

func (br *binaryReader) transform() amath.Transform {
	return amath.Transform{
		Position: br.vec3(),
		Rotation: amath.Quaternion(br.vec4()),
		Scale:    br.vec3(),
	}
}

// header reads and checks the resource header against the expected type.
// Versions newer than maxVersion are rejected.
func (br *binaryReader) header(resourceType resources.ResourceType, maxVersion uint8) (resources.ResourceHeader, error) {
	h := resources.ResourceHeader{
		MagicNumber:  br.u32(),
		ResourceType: br.u8(),
		Version:      br.u8(),
		Reserved:     br.u16(),
	}
	if br.err != nil {
		return h, fmt.Errorf("%w: reading header: %v", core.ErrInvalidResource, br.err)
	}
	if h.MagicNumber != resources.ResourceMagic {
		return h, fmt.Errorf("%w: bad magic number 0x%08x", core.ErrInvalidResource, h.MagicNumber)
	}
	if resources.ResourceType(h.ResourceType) != resourceType {
		return h, fmt.Errorf("%w: file holds a %s resource, expected %s", core.ErrInvalidResource, resources.ResourceType(h.ResourceType), resourceType)
	}
	if h.Version == 0 || h.Version > maxVersion {
		return h, fmt.Errorf("%w: unsupported version %d", core.ErrInvalidResource, h.Version)
	}
	return h, nil
}
