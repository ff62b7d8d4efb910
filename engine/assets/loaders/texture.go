package loaders

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	xdraw "golang.org/x/image/draw"

	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

// TextureLoader decodes any registered image format into tightly packed RGBA8.
type TextureLoader struct {
	// FlipY stores the rows bottom-up.
	FlipY bool
}

func (tl *TextureLoader) Load(path string) (*metadata.Resource, error) {
	src, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	img, format, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	rgba := toRGBA(img)
	if tl.FlipY {
		flipRows(rgba)
	}

	bounds := rgba.Bounds()
	data := &metadata.ImageData{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Pixels: rgba.Pix,
	}

	return &metadata.Resource{
		Name:     format,
		FullPath: path,
		Type:     metadata.AssetTypeTexture,
		DataSize: uint64(len(data.Pixels)),
		Data:     data,
	}, nil
}

// toRGBA returns img as an *image.RGBA whose Pix has no row padding and
// starts at the origin.
func toRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && bounds.Min == (image.Point{}) && rgba.Stride == 4*bounds.Dx() {
		return rgba
	}

	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

func flipRows(img *image.RGBA) {
	stride := img.Stride
	rows := img.Bounds().Dy()
	tmp := make([]byte, stride)
	for top, bottom := 0, rows-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := img.Pix[top*stride : (top+1)*stride]
		b := img.Pix[bottom*stride : (bottom+1)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}
