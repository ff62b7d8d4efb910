package metadata

import (
	"github.com/spaghettifunk/assetstream/engine/math"
)

type Vertex = math.Vertex

type Submesh struct {
	IndexOffset uint32
	IndexCount  uint32
}

type Mesh struct {
	DebugName string
	/** @brief Skip ClearData once the mesh is device resident. */
	KeepCPUData bool

	Vertices  []Vertex
	Indices   []uint32
	Submeshes []Submesh

	VertexBuffer *DeviceBuffer
	IndexBuffer  *DeviceBuffer
	/** @brief Device address of VertexBuffer, known as soon as the buffer is allocated. */
	VertexBufferAddress uint64
}

func (m *Mesh) SetData(data *MeshData) {
	m.Vertices = data.Vertices
	m.Indices = data.Indices
	m.Submeshes = data.Submeshes
}

func (m *Mesh) VertexBufferSize() uint64 {
	return uint64(len(m.Vertices)) * math.VertexSize
}

func (m *Mesh) IndexBufferSize() uint64 {
	return uint64(len(m.Indices)) * math.IndexSize
}

func (m *Mesh) Type() AssetType {
	return AssetTypeMesh
}

// Footprint is vertices followed by indices, the layout staged in the arena.
func (m *Mesh) Footprint() uint64 {
	return m.VertexBufferSize() + m.IndexBufferSize()
}

// ClearData drops the host geometry. Submeshes stay since draws need them.
func (m *Mesh) ClearData() {
	m.Vertices = nil
	m.Indices = nil
}

func (m *Mesh) KeepsCPUData() bool {
	return m.KeepCPUData
}

func (m *Mesh) isPayload() {}
