package math

import (
	"encoding/binary"
	m "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVertexLayout(t *testing.T) {
	assert.Equal(t, uint64(48), VertexSize)
	assert.Equal(t, uint64(4), IndexSize)
}

func TestVertexBytes(t *testing.T) {
	assert.Nil(t, VertexBytes(nil))

	vertices := []Vertex{
		{Position: NewVec3(1, 2, 3), UVX: 0.5, Normal: NewVec3(0, 1, 0), UVY: 0.25, Colour: NewVec4One()},
		{Position: NewVec3(4, 5, 6)},
	}
	raw := VertexBytes(vertices)
	require.Len(t, raw, 96)

	// position.x of the first vertex and uv_x right after the position
	assert.Equal(t, float32(1), m.Float32frombits(binary.NativeEndian.Uint32(raw[0:4])))
	assert.Equal(t, float32(0.5), m.Float32frombits(binary.NativeEndian.Uint32(raw[12:16])))
	// position.x of the second vertex
	assert.Equal(t, float32(4), m.Float32frombits(binary.NativeEndian.Uint32(raw[48:52])))
}

func TestIndexBytes(t *testing.T) {
	raw := IndexBytes([]uint32{7, 9})
	require.Len(t, raw, 8)
	assert.Equal(t, uint32(9), binary.NativeEndian.Uint32(raw[4:8]))
}

func TestVec3Normalize(t *testing.T) {
	n := NewVec3(0, 3, 4).Normalize()
	assert.InDelta(t, 1.0, n.Length(), 1e-6)
	assert.Equal(t, Vec3{}, Vec3{}.Normalize())

	c := NewVec3(1, 0, 0).Cross(NewVec3(0, 1, 0))
	assert.Equal(t, NewVec3(0, 0, 1), c)
}
