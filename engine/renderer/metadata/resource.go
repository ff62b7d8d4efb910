package metadata

/** @brief Identifies an asset for the whole process lifetime. Zero is never issued. */
type AssetHandle uint64

/** @brief The handle value that never refers to an asset. */
const InvalidAssetHandle AssetHandle = 0

type AssetType int

/** @brief Asset types the streaming pipeline can upload. */
const (
	/** @brief Mesh asset type (vertices, indices and submeshes). */
	AssetTypeMesh AssetType = iota
	/** @brief Texture asset type (RGBA8 pixels). */
	AssetTypeTexture
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeMesh:
		return "mesh"
	case AssetTypeTexture:
		return "texture"
	default:
		return "unknown"
	}
}

/**
 * @brief A generic structure for a decoded resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The asset type the loader produced. */
	Type AssetType
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data: *MeshData or *ImageData. */
	Data interface{}
}

/**
 * @brief Decoded mesh geometry as returned by a mesh loader.
 */
type MeshData struct {
	Vertices  []Vertex
	Indices   []uint32
	Submeshes []Submesh
}

/**
 * @brief A structure to hold image resource data, always RGBA8.
 */
type ImageData struct {
	/** @brief The width of the image. */
	Width uint32
	/** @brief The height of the image. */
	Height uint32
	/** @brief The pixel data of the image. */
	Pixels []uint8
}
