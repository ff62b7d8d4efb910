package systems

import (
	"fmt"

	"github.com/spaghettifunk/assetstream/engine/assets"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

const (
	meshVertexBufferUsage = metadata.BufferUsageVertex | metadata.BufferUsageStorage | metadata.BufferUsageTransferDst | metadata.BufferUsageDeviceAddress
	meshIndexBufferUsage  = metadata.BufferUsageIndex | metadata.BufferUsageTransferDst
)

// MeshLoaderSystem turns a mesh file into a host resident mesh whose device
// buffers exist but are still empty.
type MeshLoaderSystem struct {
	assetManager *assets.AssetManager
	device       renderer.TransferDevice
}

func NewMeshLoaderSystem(am *assets.AssetManager, device renderer.TransferDevice) (*MeshLoaderSystem, error) {
	if am == nil || device == nil {
		return nil, fmt.Errorf("func NewMeshLoaderSystem - asset manager and device are required")
	}
	return &MeshLoaderSystem{
		assetManager: am,
		device:       device,
	}, nil
}

/**
 * @brief Decodes path into mesh and allocates its vertex and index buffers.
 * Runs on a job worker. The vertex buffer device address is recorded before
 * returning, long before the data is uploaded.
 */
func (mls *MeshLoaderSystem) Load(path string, mesh *metadata.Mesh) error {
	resource, err := mls.assetManager.LoadAsset(path, metadata.AssetTypeMesh)
	if err != nil {
		return err
	}
	data, ok := resource.Data.(*metadata.MeshData)
	if !ok {
		return fmt.Errorf("%w: loader returned %T for mesh %s", core.ErrUnsupportedAsset, resource.Data, path)
	}
	if len(data.Vertices) == 0 {
		return fmt.Errorf("%w: mesh %s has no vertices", core.ErrEmptyAsset, path)
	}

	mesh.SetData(data)
	if mesh.DebugName == "" {
		mesh.DebugName = path
	}

	vb, err := mls.device.CreateBuffer(metadata.BufferDesc{
		Label: mesh.DebugName + " vertices",
		Size:  mesh.VertexBufferSize(),
		Usage: meshVertexBufferUsage,
	})
	if err != nil {
		return fmt.Errorf("failed to create vertex buffer for %s: %w", path, err)
	}
	mesh.VertexBuffer = vb
	mesh.VertexBufferAddress = vb.Address

	if mesh.IndexBufferSize() > 0 {
		ib, err := mls.device.CreateBuffer(metadata.BufferDesc{
			Label: mesh.DebugName + " indices",
			Size:  mesh.IndexBufferSize(),
			Usage: meshIndexBufferUsage,
		})
		if err != nil {
			mls.Unload(mesh)
			return fmt.Errorf("failed to create index buffer for %s: %w", path, err)
		}
		mesh.IndexBuffer = ib
	}

	core.LogDebug("Decoded mesh '%s': %d vertices, %d indices, %d submeshes.", path, len(mesh.Vertices), len(mesh.Indices), len(mesh.Submeshes))
	return nil
}

// Unload destroys the device buffers of mesh.
func (mls *MeshLoaderSystem) Unload(mesh *metadata.Mesh) {
	if mesh.VertexBuffer != nil {
		mls.device.DestroyBuffer(mesh.VertexBuffer)
		mesh.VertexBuffer = nil
		mesh.VertexBufferAddress = 0
	}
	if mesh.IndexBuffer != nil {
		mls.device.DestroyBuffer(mesh.IndexBuffer)
		mesh.IndexBuffer = nil
	}
}
