package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertBufferUsage(t *testing.T) {
	usage := convertBufferUsage(metadata.BufferUsageVertex | metadata.BufferUsageTransferDst | metadata.BufferUsageDeviceAddress)
	assert.Equal(t, vk.BufferUsageVertexBufferBit|vk.BufferUsageTransferDstBit, usage)
	assert.Zero(t, convertBufferUsage(0))
}

func TestConvertTextureFormat(t *testing.T) {
	format, err := convertTextureFormat(metadata.TextureFormatRGBA8)
	require.NoError(t, err)
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, format)

	_, err = convertTextureFormat(metadata.TextureFormat(99))
	assert.Error(t, err)
}

func TestCheckResult(t *testing.T) {
	assert.NoError(t, checkResult("vkCreateBuffer", vk.Success))
	err := checkResult("vkQueueSubmit", vk.ErrorDeviceLost)
	assert.EqualError(t, err, "vkQueueSubmit: VK_ERROR_DEVICE_LOST")
}

func TestSafeString(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "app\x00", VulkanSafeString("app"))
	assert.Equal(t, "app\x00", VulkanSafeString("app\x00"))
}

func newHeadlessDevice(t *testing.T) *Device {
	t.Helper()

	headless, err := NewHeadless("assetstream-test")
	if err != nil {
		t.Skipf("no usable Vulkan driver: %v", err)
	}
	t.Cleanup(headless.Destroy)

	device, err := NewDevice(headless.Context)
	require.NoError(t, err)
	t.Cleanup(device.Destroy)
	return device
}

func TestDeviceSubmitAndWait(t *testing.T) {
	device := newHeadlessDevice(t)

	staging, err := device.MapStaging(1024)
	require.NoError(t, err)
	require.Len(t, staging, 1024)
	for i := range staging[:64+16] {
		staging[i] = byte(i)
	}

	buf, err := device.CreateBuffer(metadata.BufferDesc{
		Label: "vertices",
		Size:  64,
		Usage: metadata.BufferUsageVertex | metadata.BufferUsageTransferDst,
	})
	require.NoError(t, err)
	defer device.DestroyBuffer(buf)
	assert.Zero(t, buf.Address)

	img, err := device.CreateImage(metadata.ImageDesc{
		Label:       "albedo",
		TextureDesc: metadata.TextureDesc{Width: 2, Height: 2, Format: metadata.TextureFormatRGBA8},
	})
	require.NoError(t, err)
	defer device.DestroyImage(img)

	fence, err := device.Submit([]renderer.CopyCommand{
		renderer.BufferCopy{SrcOffset: 0, Dst: buf, Size: 64},
		renderer.ImageCopy{SrcOffset: 64, Dst: img},
	})
	require.NoError(t, err)
	require.NoError(t, device.Wait(fence))
	// A second wait on a settled fence returns immediately.
	require.NoError(t, device.Wait(fence))
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, img.Handle.(*VulkanImage).Layout)
	assert.Equal(t, COMMAND_BUFFER_STATE_READY, device.commandBuffer.State)
	assert.False(t, device.fence.IsSignaled)

	// Every batch reuses the same command buffer and fence.
	commandBuffer, vkFence := device.commandBuffer.Handle, device.fence.Handle
	second, err := device.Submit([]renderer.CopyCommand{renderer.BufferCopy{SrcOffset: 16, Dst: buf, Size: 64}})
	require.NoError(t, err)
	assert.Greater(t, second, fence)
	// Submitting while a batch is in flight waits for it first.
	third, err := device.Submit([]renderer.CopyCommand{renderer.BufferCopy{SrcOffset: 0, Dst: buf, Size: 64}})
	require.NoError(t, err)
	require.NoError(t, device.Wait(second))
	require.NoError(t, device.Wait(third))
	assert.Equal(t, commandBuffer, device.commandBuffer.Handle)
	assert.Equal(t, vkFence, device.fence.Handle)
	assert.Error(t, device.Wait(third+1))

	_, err = device.Submit([]renderer.CopyCommand{renderer.BufferCopy{SrcOffset: 1000, Dst: buf, Size: 64}})
	assert.Error(t, err)

	device.UnmapStaging()
	_, err = device.Submit(nil)
	assert.Error(t, err)
}
