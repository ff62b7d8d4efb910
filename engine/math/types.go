package math

import "unsafe"

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/**
 * @brief Represents a single vertex in 3D space, laid out the way the
 * vertex shaders read it through the buffer device address.
 */
type Vertex struct {
	/** @brief The position of the vertex */
	Position Vec3
	/** @brief The u texture coordinate, packed next to the position. */
	UVX float32
	/** @brief The normal of the vertex. */
	Normal Vec3
	/** @brief The v texture coordinate, packed next to the normal. */
	UVY float32
	/** @brief The colour of the vertex. */
	Colour Vec4
}

/** @brief Size in bytes of a Vertex as uploaded to the device. */
const VertexSize = uint64(unsafe.Sizeof(Vertex{}))

/** @brief Size in bytes of a single index as uploaded to the device. */
const IndexSize = uint64(unsafe.Sizeof(uint32(0)))

// VertexBytes views the vertex slice as raw bytes without copying.
func VertexBytes(vertices []Vertex) []byte {
	if len(vertices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), uint64(len(vertices))*VertexSize)
}

// IndexBytes views the index slice as raw bytes without copying.
func IndexBytes(indices []uint32) []byte {
	if len(indices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), uint64(len(indices))*IndexSize)
}
