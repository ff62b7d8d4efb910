// Package webgpu implements renderer.TransferDevice on top of a gogpu/wgpu
// HAL device. The HAL cannot map buffers yet, so the staging region lives in
// host memory and each submission first writes the bytes it reads into a
// device staging buffer through the queue.
package webgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

// waitSlice bounds a single HAL wait. Wait keeps retrying until the fence
// value is reached, so a transfer is never abandoned on timeout.
const waitSlice = 5 * time.Second

// rowPitchAlignment is the BytesPerRow multiple WebGPU requires for buffer
// to texture copies.
const rowPitchAlignment = 256

// submission keeps what a command buffer reads alive until its fence passes.
type submission struct {
	commandBuffer hal.CommandBuffer
	scratch       hal.Buffer
}

type Device struct {
	device hal.Device
	queue  hal.Queue

	mu         sync.Mutex
	shadow     []byte
	stagingBuf hal.Buffer
	fence      hal.Fence
	lastValue  uint64
	inFlight   map[uint64]*submission
}

func NewDevice(device hal.Device, queue hal.Queue) (*Device, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("func NewDevice - device and queue are required")
	}
	return &Device{
		device:   device,
		queue:    queue,
		inFlight: make(map[uint64]*submission),
	}, nil
}

func (d *Device) MapStaging(size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shadow != nil {
		return nil, fmt.Errorf("staging region already mapped")
	}

	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "assetstream staging",
		Size:  size,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	fence, err := d.device.CreateFence()
	if err != nil {
		d.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("create fence: %w", err)
	}

	d.stagingBuf = buf
	d.fence = fence
	d.shadow = make([]byte, size)
	return d.shadow, nil
}

func (d *Device) UnmapStaging() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shadow == nil {
		return
	}
	for value, sub := range d.inFlight {
		d.release(sub)
		delete(d.inFlight, value)
	}
	d.device.DestroyFence(d.fence)
	d.device.DestroyBuffer(d.stagingBuf)
	d.fence = nil
	d.stagingBuf = nil
	d.shadow = nil
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (*metadata.DeviceBuffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("func CreateBuffer - buffer %q has zero size", desc.Label)
	}

	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: convertBufferUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}

	// WebGPU exposes no buffer device addresses, Address stays zero.
	return &metadata.DeviceBuffer{
		Handle: buf,
		Label:  desc.Label,
		Size:   desc.Size,
		Usage:  desc.Usage,
	}, nil
}

func (d *Device) DestroyBuffer(buffer *metadata.DeviceBuffer) {
	if buffer == nil {
		return
	}
	if buf, ok := buffer.Handle.(hal.Buffer); ok && buf != nil {
		d.device.DestroyBuffer(buf)
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

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}

	return &metadata.DeviceImage{
		Handle: tex,
		Label:  desc.Label,
		Desc:   desc.TextureDesc,
	}, nil
}

func (d *Device) DestroyImage(image *metadata.DeviceImage) {
	if image == nil {
		return
	}
	if tex, ok := image.Handle.(hal.Texture); ok && tex != nil {
		d.device.DestroyTexture(tex)
	}
	image.Handle = nil
}

// Submit uploads the staged bytes the commands read and records every copy
// into a single command buffer signaled on the device fence. Image rows in
// the staging region are tightly packed, so images whose rows are not a
// multiple of 256 bytes are repacked into a scratch buffer first.
func (d *Device) Submit(commands []renderer.CopyCommand) (renderer.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shadow == nil {
		return 0, fmt.Errorf("func Submit - staging region is not mapped")
	}
	extent := renderer.StagingExtent(commands)
	if extent > uint64(len(d.shadow)) {
		return 0, fmt.Errorf("func Submit - copies read %d bytes past a %d byte staging region", extent, len(d.shadow))
	}
	if extent > 0 {
		d.queue.WriteBuffer(d.stagingBuf, 0, d.shadow[:extent])
	}

	layouts, scratchData := planImageCopies(commands, d.shadow)
	sub := &submission{}
	if len(scratchData) > 0 {
		scratch, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "assetstream row repack",
			Size:  uint64(len(scratchData)),
			Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return 0, fmt.Errorf("create repack buffer: %w", err)
		}
		d.queue.WriteBuffer(scratch, 0, scratchData)
		sub.scratch = scratch
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "assetstream transfer"})
	if err != nil {
		d.release(sub)
		return 0, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("assetstream transfer"); err != nil {
		d.release(sub)
		return 0, fmt.Errorf("begin encoding: %w", err)
	}

	for i, cmd := range commands {
		switch c := cmd.(type) {
		case renderer.BufferCopy:
			dst, ok := c.Dst.Handle.(hal.Buffer)
			if !ok {
				encoder.DiscardEncoding()
				d.release(sub)
				return 0, fmt.Errorf("buffer %q does not belong to this device", c.Dst.Label)
			}
			encoder.CopyBufferToBuffer(d.stagingBuf, dst, []hal.BufferCopy{{
				SrcOffset: c.SrcOffset,
				DstOffset: c.DstOffset,
				Size:      c.Size,
			}})
		case renderer.ImageCopy:
			dst, ok := c.Dst.Handle.(hal.Texture)
			if !ok {
				encoder.DiscardEncoding()
				d.release(sub)
				return 0, fmt.Errorf("image %q does not belong to this device", c.Dst.Label)
			}
			layout := layouts[i]
			src := d.stagingBuf
			if layout.repacked {
				src = sub.scratch
			}
			desc := c.Dst.Desc
			encoder.CopyBufferToTexture(src, dst, []hal.BufferTextureCopy{{
				BufferLayout: hal.ImageDataLayout{
					Offset:       layout.offset,
					BytesPerRow:  layout.bytesPerRow,
					RowsPerImage: desc.Height,
				},
				TextureBase: hal.ImageCopyTexture{Texture: dst, MipLevel: 0},
				Size:        hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
			}})
		}
	}

	cb, err := encoder.EndEncoding()
	if err != nil {
		d.release(sub)
		return 0, fmt.Errorf("end encoding: %w", err)
	}
	sub.commandBuffer = cb

	value := d.lastValue + 1
	if err := d.queue.Submit([]hal.CommandBuffer{cb}, d.fence, value); err != nil {
		d.release(sub)
		return 0, fmt.Errorf("submit: %w", err)
	}
	d.lastValue = value
	d.inFlight[value] = sub

	return renderer.Fence(value), nil
}

func (d *Device) Wait(fence renderer.Fence) error {
	d.mu.Lock()
	halFence := d.fence
	d.mu.Unlock()

	if halFence == nil {
		return fmt.Errorf("func Wait - staging region is not mapped")
	}

	for {
		ok, err := d.device.Wait(halFence, uint64(fence), waitSlice)
		if err != nil {
			return fmt.Errorf("wait for fence %d: %w", fence, err)
		}
		if ok {
			break
		}
		core.LogWarn("still waiting for transfer fence %d", fence)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for value, sub := range d.inFlight {
		if value <= uint64(fence) {
			d.release(sub)
			delete(d.inFlight, value)
		}
	}
	return nil
}

func (d *Device) release(sub *submission) {
	if sub.commandBuffer != nil {
		d.device.FreeCommandBuffer(sub.commandBuffer)
	}
	if sub.scratch != nil {
		d.device.DestroyBuffer(sub.scratch)
	}
}

// imageLayout is where one image copy reads its texels from.
type imageLayout struct {
	offset      uint64
	bytesPerRow uint32
	repacked    bool
}

// planImageCopies lays out every image copy for the device. Images whose
// tight rows already meet rowPitchAlignment read the staging buffer in
// place. The rest are copied row by row out of staging into the returned
// scratch bytes, each row padded up to the aligned pitch. Layouts are
// indexed like commands.
func planImageCopies(commands []renderer.CopyCommand, staging []byte) ([]imageLayout, []byte) {
	layouts := make([]imageLayout, len(commands))
	var scratch []byte

	for i, cmd := range commands {
		c, ok := cmd.(renderer.ImageCopy)
		if !ok {
			continue
		}
		desc := c.Dst.Desc
		tight := desc.Width * desc.Format.BytesPerPixel()
		pitch := alignedBytesPerRow(tight)
		if pitch == tight {
			layouts[i] = imageLayout{offset: c.SrcOffset, bytesPerRow: tight}
			continue
		}

		offset := uint64(len(scratch))
		scratch = append(scratch, make([]byte, uint64(pitch)*uint64(desc.Height))...)
		repackRows(scratch[offset:], staging[c.SrcOffset:c.StagingEnd()], tight, pitch, desc.Height)
		layouts[i] = imageLayout{offset: offset, bytesPerRow: pitch, repacked: true}
	}

	return layouts, scratch
}

func alignedBytesPerRow(tight uint32) uint32 {
	return (tight + rowPitchAlignment - 1) &^ (rowPitchAlignment - 1)
}

// repackRows copies the tightly packed rows of src into dst, pitch bytes apart.
func repackRows(dst, src []byte, tight, pitch, rows uint32) {
	for row := uint32(0); row < rows; row++ {
		copy(dst[row*pitch:row*pitch+tight], src[row*tight:(row+1)*tight])
	}
}

func convertBufferUsage(usage metadata.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage

	if usage&metadata.BufferUsageVertex != 0 {
		result |= gputypes.BufferUsageVertex
	}
	if usage&metadata.BufferUsageIndex != 0 {
		result |= gputypes.BufferUsageIndex
	}
	if usage&metadata.BufferUsageStorage != 0 {
		result |= gputypes.BufferUsageStorage
	}
	if usage&metadata.BufferUsageTransferSrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&metadata.BufferUsageTransferDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}

	return result
}

func convertTextureFormat(format metadata.TextureFormat) (gputypes.TextureFormat, error) {
	switch format {
	case metadata.TextureFormatRGBA8:
		return gputypes.TextureFormatRGBA8Unorm, nil
	default:
		return 0, fmt.Errorf("unsupported texture format %d", format)
	}
}
