package software

import (
	"errors"
	"testing"
	"time"

	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_BufferCopy(t *testing.T) {
	d := NewDevice(WithLatency(5 * time.Millisecond))

	staging, err := d.MapStaging(64)
	require.NoError(t, err)

	buf, err := d.CreateBuffer(metadata.BufferDesc{Label: "vb", Size: 8, Usage: metadata.BufferUsageVertex | metadata.BufferUsageDeviceAddress})
	require.NoError(t, err)
	assert.NotZero(t, buf.Address)

	copy(staging[16:], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	fence, err := d.Submit([]renderer.CopyCommand{
		renderer.BufferCopy{SrcOffset: 16, Dst: buf, Size: 8},
	})
	require.NoError(t, err)
	require.NoError(t, d.Wait(fence))

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, d.ReadBuffer(buf))

	subs := d.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, uint64(24), subs[0].StagingBytes)
	assert.False(t, subs[0].CompletedAt.Before(subs[0].SubmittedAt))
}

func TestDevice_ImageCopy(t *testing.T) {
	d := NewDevice()

	staging, err := d.MapStaging(16)
	require.NoError(t, err)

	img, err := d.CreateImage(metadata.ImageDesc{
		Label:       "tex",
		TextureDesc: metadata.TextureDesc{Width: 2, Height: 2, Format: metadata.TextureFormatRGBA8},
	})
	require.NoError(t, err)

	for i := range staging {
		staging[i] = byte(i)
	}
	fence, err := d.Submit([]renderer.CopyCommand{renderer.ImageCopy{SrcOffset: 0, Dst: img}})
	require.NoError(t, err)
	require.NoError(t, d.Wait(fence))

	assert.Equal(t, staging, d.ReadImage(img))
}

func TestDevice_Errors(t *testing.T) {
	t.Run("zero size buffer", func(t *testing.T) {
		_, err := NewDevice().CreateBuffer(metadata.BufferDesc{Label: "empty"})
		assert.Error(t, err)
	})

	t.Run("submit before map", func(t *testing.T) {
		_, err := NewDevice().Submit(nil)
		assert.Error(t, err)
	})

	t.Run("copy past staging", func(t *testing.T) {
		d := NewDevice()
		_, err := d.MapStaging(4)
		require.NoError(t, err)
		buf, err := d.CreateBuffer(metadata.BufferDesc{Size: 8})
		require.NoError(t, err)
		_, err = d.Submit([]renderer.CopyCommand{renderer.BufferCopy{Dst: buf, Size: 8}})
		assert.Error(t, err)
	})

	t.Run("injected submit error", func(t *testing.T) {
		boom := errors.New("device lost")
		d := NewDevice(WithSubmitError(boom))
		_, err := d.MapStaging(4)
		require.NoError(t, err)
		_, err = d.Submit(nil)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("double map", func(t *testing.T) {
		d := NewDevice()
		_, err := d.MapStaging(4)
		require.NoError(t, err)
		_, err = d.MapStaging(4)
		assert.Error(t, err)
	})
}

func TestDevice_DestroyReleasesResources(t *testing.T) {
	d := NewDevice()

	buf, err := d.CreateBuffer(metadata.BufferDesc{Size: 4})
	require.NoError(t, err)
	img, err := d.CreateImage(metadata.ImageDesc{TextureDesc: metadata.TextureDesc{Width: 1, Height: 1}})
	require.NoError(t, err)

	buffers, images := d.LiveResources()
	assert.Equal(t, 1, buffers)
	assert.Equal(t, 1, images)

	d.DestroyBuffer(buf)
	d.DestroyImage(img)
	// destroying twice is a no-op
	d.DestroyBuffer(buf)

	buffers, images = d.LiveResources()
	assert.Zero(t, buffers)
	assert.Zero(t, images)
}
