package renderer

import (
	"testing"

	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
)

func TestStagingExtent(t *testing.T) {
	assert.Zero(t, StagingExtent(nil))

	img := &metadata.DeviceImage{Desc: metadata.TextureDesc{Width: 2, Height: 2, Format: metadata.TextureFormatRGBA8}}
	cmds := []CopyCommand{
		BufferCopy{SrcOffset: 0, Size: 96},
		BufferCopy{SrcOffset: 96, Size: 12},
		ImageCopy{SrcOffset: 108, Dst: img},
	}
	assert.Equal(t, uint64(124), StagingExtent(cmds))
}
