package systems

import (
	"fmt"

	"github.com/spaghettifunk/assetstream/engine/assets"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

type TextureLoaderSystem struct {
	assetManager *assets.AssetManager
	device       renderer.TransferDevice
}

func NewTextureLoaderSystem(am *assets.AssetManager, device renderer.TransferDevice) (*TextureLoaderSystem, error) {
	if am == nil || device == nil {
		return nil, fmt.Errorf("func NewTextureLoaderSystem - asset manager and device are required")
	}
	return &TextureLoaderSystem{
		assetManager: am,
		device:       device,
	}, nil
}

/**
 * @brief Decodes path into texture and creates a device image of the same extent.
 */
func (tls *TextureLoaderSystem) Load(path string, texture *metadata.Texture) error {
	resource, err := tls.assetManager.LoadAsset(path, metadata.AssetTypeTexture)
	if err != nil {
		return err
	}
	data, ok := resource.Data.(*metadata.ImageData)
	if !ok {
		return fmt.Errorf("%w: loader returned %T for texture %s", core.ErrUnsupportedAsset, resource.Data, path)
	}
	if len(data.Pixels) == 0 {
		return fmt.Errorf("%w: texture %s has no pixels", core.ErrEmptyAsset, path)
	}

	texture.SetData(data)
	if texture.DebugName == "" {
		texture.DebugName = path
	}

	image, err := tls.device.CreateImage(metadata.ImageDesc{
		Label:       texture.DebugName,
		TextureDesc: texture.Desc,
	})
	if err != nil {
		return fmt.Errorf("failed to create image for %s: %w", path, err)
	}
	texture.Image = image

	core.LogDebug("Decoded texture '%s': %dx%d.", path, texture.Desc.Width, texture.Desc.Height)
	return nil
}

func (tls *TextureLoaderSystem) Unload(texture *metadata.Texture) {
	if texture.Image != nil {
		tls.device.DestroyImage(texture.Image)
		texture.Image = nil
	}
}
