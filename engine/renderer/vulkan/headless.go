package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/assetstream/engine/core"
)

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

// Headless owns a surfaceless instance and logical device with one queue
// that supports transfers. It exists for tools and tests that have no
// renderer of their own.
type Headless struct {
	Instance vk.Instance
	Context  *VulkanContext
}

func NewHeadless(appName string) (*Headless, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, fmt.Errorf("vulkan loader not found: %w", err)
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vk: %w", err)
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("assetstream"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}
	if runtime.GOOS == "darwin" {
		createInfo.Flags |= 1
		createInfo.EnabledExtensionCount = 1
		createInfo.PpEnabledExtensionNames = []string{VulkanSafeString("VK_KHR_portability_enumeration")}
	}

	var instance vk.Instance
	if err := checkResult("vkCreateInstance", vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	physicalDevice, family, err := selectTransferDevice(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: family,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueCreateInfo},
	}

	var device vk.Device
	if err := checkResult("vkCreateDevice", vk.CreateDevice(physicalDevice, &deviceCreateInfo, nil, &device)); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	var queue vk.Queue
	vk.GetDeviceQueue(device, family, 0, &queue)

	context, err := NewVulkanContext(physicalDevice, device, queue, family)
	if err != nil {
		vk.DestroyDevice(device, nil)
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	core.LogInfo("Headless Vulkan device created on queue family %d.", family)
	return &Headless{Instance: instance, Context: context}, nil
}

func (h *Headless) Destroy() {
	if h.Context != nil && h.Context.LogicalDevice != nil {
		vk.DeviceWaitIdle(h.Context.LogicalDevice)
		vk.DestroyDevice(h.Context.LogicalDevice, nil)
		h.Context.LogicalDevice = nil
	}
	if h.Instance != nil {
		vk.DestroyInstance(h.Instance, nil)
		h.Instance = nil
	}
}

// selectTransferDevice picks the first physical device with a queue family
// that supports transfers, preferring a dedicated transfer family.
func selectTransferDevice(instance vk.Instance) (vk.PhysicalDevice, uint32, error) {
	var physicalDeviceCount uint32
	if err := checkResult("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &physicalDeviceCount, nil)); err != nil {
		return nil, 0, err
	}
	if physicalDeviceCount == 0 {
		return nil, 0, fmt.Errorf("no devices which support Vulkan were found")
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := checkResult("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &physicalDeviceCount, physicalDevices)); err != nil {
		return nil, 0, err
	}

	for _, physicalDevice := range physicalDevices {
		var queueFamilyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, nil)
		queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, queueFamilies)

		best := int32(-1)
		for i := range queueFamilies {
			queueFamilies[i].Deref()
			flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)
			// Graphics and compute families implicitly support transfers.
			if flags&(vk.QueueTransferBit|vk.QueueGraphicsBit|vk.QueueComputeBit) == 0 {
				continue
			}
			if flags&(vk.QueueGraphicsBit|vk.QueueComputeBit) == 0 {
				best = int32(i)
				break
			}
			if best == -1 {
				best = int32(i)
			}
		}
		if best != -1 {
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
			properties.Deref()
			end := 0
			for end < len(properties.DeviceName) && properties.DeviceName[end] != 0 {
				end++
			}
			core.LogInfo("Selected device: '%s'.", string(properties.DeviceName[:end]))
			return physicalDevice, uint32(best), nil
		}
	}

	return nil, 0, fmt.Errorf("no physical device exposes a transfer capable queue")
}
