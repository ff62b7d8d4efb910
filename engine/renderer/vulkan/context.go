package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/assetstream/engine/core"
)

// VulkanContext holds the handles the transfer device borrows from the
// application. Instance and device creation stay with the caller.
type VulkanContext struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device
	Allocator      *vk.AllocationCallbacks

	// Queue must support transfer operations. Graphics and compute queues do.
	TransferQueue      vk.Queue
	TransferQueueIndex uint32

	Memory vk.PhysicalDeviceMemoryProperties

	Locks *VulkanLockPool
}

func NewVulkanContext(physicalDevice vk.PhysicalDevice, device vk.Device, queue vk.Queue, queueFamilyIndex uint32) (*VulkanContext, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("func NewVulkanContext - logical device and transfer queue are required")
	}

	ctx := &VulkanContext{
		PhysicalDevice:     physicalDevice,
		LogicalDevice:      device,
		TransferQueue:      queue,
		TransferQueueIndex: queueFamilyIndex,
		Locks:              NewVulkanLockPool(),
	}
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &ctx.Memory)
	ctx.Memory.Deref()
	ctx.Locks.SetQueueFamily(queueFamilyIndex)

	return ctx, nil
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	for i := uint32(0); i < vc.Memory.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		vc.Memory.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (vc.Memory.MemoryTypes[i].PropertyFlags&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// allocate reserves and binds memory matching requirements.
func (vc *VulkanContext) allocate(requirements vk.MemoryRequirements, properties vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	index := vc.FindMemoryIndex(requirements.MemoryTypeBits, properties)
	if index == -1 {
		return nil, fmt.Errorf("required memory type not found")
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}

	var memory vk.DeviceMemory
	if err := checkResult("vkAllocateMemory", vk.AllocateMemory(vc.LogicalDevice, &allocateInfo, vc.Allocator, &memory)); err != nil {
		return nil, err
	}
	return memory, nil
}
