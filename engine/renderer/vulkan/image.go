package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	Format vk.Format
	Width  uint32
	Height uint32
	// Layout the image is in once every submitted command has executed.
	Layout vk.ImageLayout
}

func NewVulkanImage(context *VulkanContext, width, height uint32, format vk.Format) (*VulkanImage, error) {
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}

	image := &VulkanImage{
		Format: format,
		Width:  width,
		Height: height,
		Layout: vk.ImageLayoutUndefined,
	}

	err := context.Locks.SafeCall(ResourceManagement, func() error {
		if err := checkResult("vkCreateImage", vk.CreateImage(context.LogicalDevice, &createInfo, context.Allocator, &image.Handle)); err != nil {
			return err
		}

		var requirements vk.MemoryRequirements
		vk.GetImageMemoryRequirements(context.LogicalDevice, image.Handle, &requirements)
		requirements.Deref()

		memory, err := context.allocate(requirements, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
		if err != nil {
			vk.DestroyImage(context.LogicalDevice, image.Handle, context.Allocator)
			return err
		}
		image.Memory = memory

		if err := checkResult("vkBindImageMemory", vk.BindImageMemory(context.LogicalDevice, image.Handle, image.Memory, 0)); err != nil {
			vk.FreeMemory(context.LogicalDevice, image.Memory, context.Allocator)
			vk.DestroyImage(context.LogicalDevice, image.Handle, context.Allocator)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create %dx%d image: %w", width, height, err)
	}
	return image, nil
}

func (i *VulkanImage) Destroy(context *VulkanContext) {
	context.Locks.SafeCall(ResourceManagement, func() error {
		if i.Memory != nil {
			vk.FreeMemory(context.LogicalDevice, i.Memory, context.Allocator)
			i.Memory = nil
		}
		if i.Handle != nil {
			vk.DestroyImage(context.LogicalDevice, i.Handle, context.Allocator)
			i.Handle = nil
		}
		return nil
	})
}

// recordTransition appends a layout barrier for the two transitions an upload
// goes through.
func (i *VulkanImage) recordTransition(commandBuffer *VulkanCommandBuffer, newLayout vk.ImageLayout) error {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           i.Layout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               i.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	switch {
	case newLayout == vk.ImageLayoutTransferDstOptimal:
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case i.Layout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutShaderReadOnlyOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = 0
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	default:
		return fmt.Errorf("unsupported layout transition %d -> %d", i.Layout, newLayout)
	}

	vk.CmdPipelineBarrier(commandBuffer.Handle, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	i.Layout = newLayout
	return nil
}
