package webgpu

import (
	"bytes"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

func createNoopDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)
	adapters := instance.EnumerateAdapters(nil)
	require.NotEmpty(t, adapters)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	require.NoError(t, err)
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

func TestNewDevice_RequiresDeviceAndQueue(t *testing.T) {
	_, err := NewDevice(nil, nil)
	assert.Error(t, err)
}

func TestDevice_SubmitAndWait(t *testing.T) {
	halDevice, queue := createNoopDevice(t)
	d, err := NewDevice(halDevice, queue)
	require.NoError(t, err)

	staging, err := d.MapStaging(1024)
	require.NoError(t, err)
	assert.Len(t, staging, 1024)
	_, err = d.MapStaging(1024)
	assert.Error(t, err)

	buf, err := d.CreateBuffer(metadata.BufferDesc{Label: "vb", Size: 64, Usage: metadata.BufferUsageVertex | metadata.BufferUsageTransferDst})
	require.NoError(t, err)
	img, err := d.CreateImage(metadata.ImageDesc{Label: "tex", TextureDesc: metadata.TextureDesc{Width: 4, Height: 4}})
	require.NoError(t, err)

	copy(staging, make([]byte, 128))
	fence, err := d.Submit([]renderer.CopyCommand{
		renderer.BufferCopy{SrcOffset: 0, Dst: buf, Size: 64},
		renderer.ImageCopy{SrcOffset: 64, Dst: img},
	})
	require.NoError(t, err)
	require.NoError(t, d.Wait(fence))

	second, err := d.Submit(nil)
	require.NoError(t, err)
	assert.Greater(t, second, fence)
	require.NoError(t, d.Wait(second))

	_, err = d.Submit([]renderer.CopyCommand{renderer.BufferCopy{SrcOffset: 1000, Dst: buf, Size: 64}})
	assert.Error(t, err)

	d.DestroyBuffer(buf)
	d.DestroyImage(img)
	assert.Nil(t, buf.Handle)
	d.UnmapStaging()
	d.UnmapStaging()

	_, err = d.Submit(nil)
	assert.Error(t, err)
}

func TestPlanImageCopies_PadsRowsTo256(t *testing.T) {
	staging := make([]byte, 512)
	// 4x4 RGBA at offset 64: row r holds bytes r+1
	for row := 0; row < 4; row++ {
		for i := 0; i < 16; i++ {
			staging[64+row*16+i] = byte(row + 1)
		}
	}

	narrow := &metadata.DeviceImage{Label: "narrow", Desc: metadata.TextureDesc{Width: 4, Height: 4}}
	wide := &metadata.DeviceImage{Label: "wide", Desc: metadata.TextureDesc{Width: 64, Height: 1}}
	commands := []renderer.CopyCommand{
		renderer.BufferCopy{SrcOffset: 0, Size: 64},
		renderer.ImageCopy{SrcOffset: 64, Dst: narrow},
		renderer.ImageCopy{SrcOffset: 128, Dst: wide},
	}

	layouts, scratch := planImageCopies(commands, staging)
	require.Len(t, layouts, 3)

	assert.True(t, layouts[1].repacked)
	assert.Zero(t, layouts[1].offset)
	assert.Equal(t, uint32(256), layouts[1].bytesPerRow)
	require.Len(t, scratch, 4*256)
	for row := 0; row < 4; row++ {
		assert.Equal(t, bytes.Repeat([]byte{byte(row + 1)}, 16), scratch[row*256:row*256+16], "row %d", row)
		assert.Equal(t, make([]byte, 240), scratch[row*256+16:(row+1)*256], "padding of row %d", row)
	}

	// 64 texels of RGBA8 are already 256 bytes, read in place
	assert.False(t, layouts[2].repacked)
	assert.Equal(t, uint64(128), layouts[2].offset)
	assert.Equal(t, uint32(256), layouts[2].bytesPerRow)

	for i, cmd := range commands {
		if _, ok := cmd.(renderer.ImageCopy); ok {
			assert.Zero(t, layouts[i].bytesPerRow%rowPitchAlignment, "command %d", i)
		}
	}
}

func TestAlignedBytesPerRow(t *testing.T) {
	assert.Equal(t, uint32(256), alignedBytesPerRow(4))
	assert.Equal(t, uint32(256), alignedBytesPerRow(256))
	assert.Equal(t, uint32(512), alignedBytesPerRow(257))
	assert.Zero(t, alignedBytesPerRow(0))
}

func TestDevice_CreateValidation(t *testing.T) {
	halDevice, queue := createNoopDevice(t)
	d, err := NewDevice(halDevice, queue)
	require.NoError(t, err)

	_, err = d.CreateBuffer(metadata.BufferDesc{Label: "empty"})
	assert.Error(t, err)
	_, err = d.CreateImage(metadata.ImageDesc{Label: "empty"})
	assert.Error(t, err)
	_, err = d.CreateImage(metadata.ImageDesc{Label: "odd", TextureDesc: metadata.TextureDesc{Width: 1, Height: 1, Format: 7}})
	assert.Error(t, err)
}

func TestConvertBufferUsage(t *testing.T) {
	got := convertBufferUsage(metadata.BufferUsageVertex | metadata.BufferUsageStorage | metadata.BufferUsageTransferDst | metadata.BufferUsageDeviceAddress)
	assert.Equal(t, gputypes.BufferUsageVertex|gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst, got)
}
