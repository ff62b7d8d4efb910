package cmd

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/software"
	"github.com/spaghettifunk/assetstream/engine/renderer/vulkan"
	"github.com/spaghettifunk/assetstream/engine/renderer/webgpu"
)

// openDevice builds the transfer device for a backend name. The returned
// func releases whatever the backend created and must run after the engine
// shut down.
func openDevice(name string) (renderer.TransferDevice, func(), error) {
	switch name {
	case "", "software":
		return software.NewDevice(), func() {}, nil

	case "noop":
		instance, err := noop.API{}.CreateInstance(nil)
		if err != nil {
			return nil, nil, fmt.Errorf("create noop instance: %w", err)
		}
		adapters := instance.EnumerateAdapters(nil)
		if len(adapters) == 0 {
			instance.Destroy()
			return nil, nil, fmt.Errorf("noop instance exposes no adapter")
		}
		opened, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
		if err != nil {
			instance.Destroy()
			return nil, nil, fmt.Errorf("open noop adapter: %w", err)
		}
		device, err := webgpu.NewDevice(opened.Device, opened.Queue)
		if err != nil {
			opened.Device.Destroy()
			instance.Destroy()
			return nil, nil, err
		}
		return device, func() {
			opened.Device.Destroy()
			instance.Destroy()
		}, nil

	case "vulkan":
		headless, err := vulkan.NewHeadless("assetstream")
		if err != nil {
			return nil, nil, err
		}
		device, err := vulkan.NewDevice(headless.Context)
		if err != nil {
			headless.Destroy()
			return nil, nil, err
		}
		return device, func() {
			device.Destroy()
			headless.Destroy()
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q, expected software, noop or vulkan", name)
	}
}
