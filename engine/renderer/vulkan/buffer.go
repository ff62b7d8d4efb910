package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Usage  vk.BufferUsageFlagBits

	mapped unsafe.Pointer
}

func NewVulkanBuffer(context *VulkanContext, size uint64, usage vk.BufferUsageFlagBits, memoryFlags vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}

	buffer := &VulkanBuffer{Size: size, Usage: usage}

	err := context.Locks.SafeCall(ResourceManagement, func() error {
		if err := checkResult("vkCreateBuffer", vk.CreateBuffer(context.LogicalDevice, &createInfo, context.Allocator, &buffer.Handle)); err != nil {
			return err
		}

		var requirements vk.MemoryRequirements
		vk.GetBufferMemoryRequirements(context.LogicalDevice, buffer.Handle, &requirements)
		requirements.Deref()

		memory, err := context.allocate(requirements, memoryFlags)
		if err != nil {
			vk.DestroyBuffer(context.LogicalDevice, buffer.Handle, context.Allocator)
			return err
		}
		buffer.Memory = memory

		if err := checkResult("vkBindBufferMemory", vk.BindBufferMemory(context.LogicalDevice, buffer.Handle, buffer.Memory, 0)); err != nil {
			vk.FreeMemory(context.LogicalDevice, buffer.Memory, context.Allocator)
			vk.DestroyBuffer(context.LogicalDevice, buffer.Handle, context.Allocator)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer of %d bytes: %w", size, err)
	}
	return buffer, nil
}

// Map maps the whole buffer and returns it as a byte slice. The buffer must
// have been created host visible.
func (b *VulkanBuffer) Map(context *VulkanContext) ([]byte, error) {
	err := context.Locks.SafeCall(MemoryManagement, func() error {
		if b.mapped != nil {
			return nil
		}
		var data unsafe.Pointer
		if err := checkResult("vkMapMemory", vk.MapMemory(context.LogicalDevice, b.Memory, 0, vk.DeviceSize(b.Size), 0, &data)); err != nil {
			return err
		}
		b.mapped = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(b.mapped), b.Size), nil
}

func (b *VulkanBuffer) Unmap(context *VulkanContext) {
	context.Locks.SafeCall(MemoryManagement, func() error {
		if b.mapped != nil {
			vk.UnmapMemory(context.LogicalDevice, b.Memory)
			b.mapped = nil
		}
		return nil
	})
}

func (b *VulkanBuffer) Destroy(context *VulkanContext) {
	b.Unmap(context)
	context.Locks.SafeCall(ResourceManagement, func() error {
		if b.Memory != nil {
			vk.FreeMemory(context.LogicalDevice, b.Memory, context.Allocator)
			b.Memory = nil
		}
		if b.Handle != nil {
			vk.DestroyBuffer(context.LogicalDevice, b.Handle, context.Allocator)
			b.Handle = nil
		}
		return nil
	})
}
