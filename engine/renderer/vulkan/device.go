// Package vulkan implements renderer.TransferDevice over a Vulkan device the
// application already created. The staging region is one host visible,
// host coherent buffer mapped for the lifetime of the device.
package vulkan

import (
	"fmt"
	"sync"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

const fenceWaitSlice = 5 * time.Second

var _ renderer.TransferDevice = (*Device)(nil)

// Device keeps one command buffer and one fence for the lifetime of the
// device. At most one batch is in flight; both are reset once it is waited on.
type Device struct {
	context *VulkanContext
	pool    vk.CommandPool

	mu            sync.Mutex
	commandBuffer *VulkanCommandBuffer
	fence         *VulkanFence
	staging       *VulkanBuffer
	mapped        []byte
	lastValue     uint64
	inFlight      uint64
}

func NewDevice(context *VulkanContext) (*Device, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: context.TransferQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit | vk.CommandPoolCreateResetCommandBufferBit),
	}

	var pool vk.CommandPool
	if err := checkResult("vkCreateCommandPool", vk.CreateCommandPool(context.LogicalDevice, &poolCreateInfo, context.Allocator, &pool)); err != nil {
		return nil, err
	}
	core.LogDebug("Transfer command pool created for queue family %d.", context.TransferQueueIndex)

	d := &Device{
		context: context,
		pool:    pool,
	}

	err := context.Locks.SafeCall(CommandBufferManagement, func() error {
		var err error
		d.commandBuffer, err = NewVulkanCommandBuffer(context, pool)
		return err
	})
	if err != nil {
		d.Destroy()
		return nil, err
	}
	if d.fence, err = NewFence(context, false); err != nil {
		d.Destroy()
		return nil, err
	}

	return d, nil
}

func (d *Device) MapStaging(size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.staging != nil {
		return nil, fmt.Errorf("staging region already mapped")
	}

	staging, err := NewVulkanBuffer(
		d.context,
		size,
		vk.BufferUsageTransferSrcBit,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit),
	)
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	mapped, err := staging.Map(d.context)
	if err != nil {
		staging.Destroy(d.context)
		return nil, fmt.Errorf("map staging buffer: %w", err)
	}

	d.staging = staging
	d.mapped = mapped
	return mapped, nil
}

// UnmapStaging waits for the batch in flight, if any, before the staging
// buffer goes away.
func (d *Device) UnmapStaging() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.staging == nil {
		return
	}
	if err := d.settle(); err != nil {
		core.LogError("transfer batch %d did not finish before unmap: %s", d.inFlight, err)
	}
	d.staging.Destroy(d.context)
	d.staging = nil
	d.mapped = nil
}

// Destroy releases the command buffer, the fence and the command pool.
func (d *Device) Destroy() {
	d.UnmapStaging()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.commandBuffer != nil {
		d.context.Locks.SafeCall(CommandBufferManagement, func() error {
			d.commandBuffer.Free(d.context, d.pool)
			return nil
		})
		d.commandBuffer = nil
	}
	if d.fence != nil {
		d.fence.FenceDestroy(d.context)
		d.fence = nil
	}
	if d.pool != nil {
		vk.DestroyCommandPool(d.context.LogicalDevice, d.pool, d.context.Allocator)
		d.pool = nil
	}
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (*metadata.DeviceBuffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("func CreateBuffer - buffer %q has zero size", desc.Label)
	}

	buffer, err := NewVulkanBuffer(d.context, desc.Size, convertBufferUsage(desc.Usage), vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", desc.Label, err)
	}

	// Device addresses need VK_KHR_buffer_device_address on the application's
	// device, which this backend does not require. Address stays zero.
	return &metadata.DeviceBuffer{
		Handle: buffer,
		Label:  desc.Label,
		Size:   desc.Size,
		Usage:  desc.Usage,
	}, nil
}

func (d *Device) DestroyBuffer(buffer *metadata.DeviceBuffer) {
	if buffer == nil {
		return
	}
	if vb, ok := buffer.Handle.(*VulkanBuffer); ok && vb != nil {
		vb.Destroy(d.context)
	}
	buffer.Handle = nil
}

func (d *Device) CreateImage(desc metadata.ImageDesc) (*metadata.DeviceImage, error) {
	format, err := convertTextureFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("func CreateImage - image %q has zero size", desc.Label)
	}

	image, err := NewVulkanImage(d.context, desc.Width, desc.Height, format)
	if err != nil {
		return nil, fmt.Errorf("image %q: %w", desc.Label, err)
	}

	return &metadata.DeviceImage{
		Handle: image,
		Label:  desc.Label,
		Desc:   desc.TextureDesc,
	}, nil
}

func (d *Device) DestroyImage(image *metadata.DeviceImage) {
	if image == nil {
		return
	}
	if vi, ok := image.Handle.(*VulkanImage); ok && vi != nil {
		vi.Destroy(d.context)
	}
	image.Handle = nil
}

// Submit records every copy into the device's command buffer. Images move to
// TRANSFER_DST before their copy and to SHADER_READ_ONLY after it. A batch
// still in flight is waited on first, since the command buffer and fence are
// shared by every batch.
func (d *Device) Submit(commands []renderer.CopyCommand) (renderer.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.staging == nil {
		return 0, fmt.Errorf("func Submit - staging region is not mapped")
	}
	if extent := renderer.StagingExtent(commands); extent > d.staging.Size {
		return 0, fmt.Errorf("func Submit - copies read %d bytes past a %d byte staging region", extent, d.staging.Size)
	}
	if err := d.settle(); err != nil {
		return 0, err
	}
	if d.commandBuffer.State != COMMAND_BUFFER_STATE_READY {
		if err := d.commandBuffer.Reset(d.context); err != nil {
			return 0, err
		}
	}

	if err := d.record(commands); err != nil {
		if resetErr := d.commandBuffer.Reset(d.context); resetErr != nil {
			core.LogError("reset transfer command buffer: %s", resetErr)
		}
		return 0, err
	}
	if err := d.fence.FenceReset(d.context); err != nil {
		return 0, err
	}
	if err := d.commandBuffer.Submit(d.context, d.fence); err != nil {
		return 0, err
	}

	d.lastValue++
	d.inFlight = d.lastValue
	return renderer.Fence(d.lastValue), nil
}

func (d *Device) record(commands []renderer.CopyCommand) error {
	commandBuffer := d.commandBuffer
	if err := commandBuffer.Begin(); err != nil {
		return err
	}

	for _, cmd := range commands {
		switch c := cmd.(type) {
		case renderer.BufferCopy:
			dst, ok := c.Dst.Handle.(*VulkanBuffer)
			if !ok {
				return fmt.Errorf("buffer %q does not belong to this device", c.Dst.Label)
			}
			vk.CmdCopyBuffer(commandBuffer.Handle, d.staging.Handle, dst.Handle, 1, []vk.BufferCopy{{
				SrcOffset: vk.DeviceSize(c.SrcOffset),
				DstOffset: vk.DeviceSize(c.DstOffset),
				Size:      vk.DeviceSize(c.Size),
			}})
		case renderer.ImageCopy:
			dst, ok := c.Dst.Handle.(*VulkanImage)
			if !ok {
				return fmt.Errorf("image %q does not belong to this device", c.Dst.Label)
			}
			if err := dst.recordTransition(commandBuffer, vk.ImageLayoutTransferDstOptimal); err != nil {
				return err
			}
			vk.CmdCopyBufferToImage(commandBuffer.Handle, d.staging.Handle, dst.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
				BufferOffset: vk.DeviceSize(c.SrcOffset),
				ImageSubresource: vk.ImageSubresourceLayers{
					AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
					MipLevel:       0,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				ImageOffset: vk.Offset3D{},
				ImageExtent: vk.Extent3D{Width: dst.Width, Height: dst.Height, Depth: 1},
			}})
			if err := dst.recordTransition(commandBuffer, vk.ImageLayoutShaderReadOnlyOptimal); err != nil {
				return err
			}
		}
	}

	return commandBuffer.End()
}

func (d *Device) Wait(fence renderer.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if uint64(fence) > d.lastValue {
		return fmt.Errorf("func Wait - fence %d was never submitted", fence)
	}
	if uint64(fence) != d.inFlight {
		// Already waited on.
		return nil
	}
	return d.settle()
}

// settle waits for the batch in flight and readies the fence and command
// buffer for the next one. Callers hold d.mu.
func (d *Device) settle() error {
	if d.inFlight == 0 {
		return nil
	}

	for {
		signaled, err := d.fence.FenceWait(d.context, uint64(fenceWaitSlice.Nanoseconds()))
		if err != nil {
			return fmt.Errorf("wait for fence %d: %w", d.inFlight, err)
		}
		if signaled {
			break
		}
		core.LogWarn("still waiting for transfer fence %d", d.inFlight)
	}
	d.inFlight = 0

	if err := d.fence.FenceReset(d.context); err != nil {
		return err
	}
	return d.commandBuffer.Reset(d.context)
}

func convertBufferUsage(usage metadata.BufferUsage) vk.BufferUsageFlagBits {
	var result vk.BufferUsageFlagBits

	if usage&metadata.BufferUsageVertex != 0 {
		result |= vk.BufferUsageVertexBufferBit
	}
	if usage&metadata.BufferUsageIndex != 0 {
		result |= vk.BufferUsageIndexBufferBit
	}
	if usage&metadata.BufferUsageStorage != 0 {
		result |= vk.BufferUsageStorageBufferBit
	}
	if usage&metadata.BufferUsageTransferSrc != 0 {
		result |= vk.BufferUsageTransferSrcBit
	}
	if usage&metadata.BufferUsageTransferDst != 0 {
		result |= vk.BufferUsageTransferDstBit
	}

	return result
}

func convertTextureFormat(format metadata.TextureFormat) (vk.Format, error) {
	switch format {
	case metadata.TextureFormatRGBA8:
		return vk.FormatR8g8b8a8Unorm, nil
	default:
		return vk.FormatUndefined, fmt.Errorf("unsupported texture format %d", format)
	}
}
