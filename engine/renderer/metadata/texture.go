package metadata

/**
 * @brief Pixel formats a streamed texture can have.
 */
type TextureFormat int

const (
	/** @brief 8 bits per channel RGBA, unsigned normalized. */
	TextureFormatRGBA8 TextureFormat = iota
)

func (f TextureFormat) BytesPerPixel() uint32 {
	switch f {
	case TextureFormatRGBA8:
		return 4
	default:
		return 0
	}
}

type TextureDesc struct {
	Width  uint32
	Height uint32
	Format TextureFormat
}

// Size returns the number of bytes of a tightly packed image with this description.
func (d TextureDesc) Size() uint64 {
	return uint64(d.Width) * uint64(d.Height) * uint64(d.Format.BytesPerPixel())
}

/**
 * @brief Represents a streamed texture.
 */
type Texture struct {
	DebugName string
	/** @brief Skip ClearData once the texture is device resident. */
	KeepCPUData bool

	Desc   TextureDesc
	Pixels []uint8

	Image *DeviceImage
}

func (t *Texture) SetData(data *ImageData) {
	t.Desc = TextureDesc{
		Width:  data.Width,
		Height: data.Height,
		Format: TextureFormatRGBA8,
	}
	t.Pixels = data.Pixels
}

func (t *Texture) Type() AssetType {
	return AssetTypeTexture
}

func (t *Texture) Footprint() uint64 {
	return uint64(len(t.Pixels))
}

func (t *Texture) ClearData() {
	t.Pixels = nil
}

func (t *Texture) KeepsCPUData() bool {
	return t.KeepCPUData
}

func (t *Texture) isPayload() {}
