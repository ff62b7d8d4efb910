// Package software implements renderer.TransferDevice in host memory. Copies
// run on a separate goroutine after an optional latency, the same way a GPU
// queue runs them after submission, so fences behave like device fences.
package software

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

const addressAlignment uint64 = 256

type allocation struct {
	id   uint64
	data []byte
}

// Submission is the record of one Submit call, kept for inspection.
type Submission struct {
	Fence        renderer.Fence
	Commands     []renderer.CopyCommand
	StagingBytes uint64
	SubmittedAt  time.Time
	CompletedAt  time.Time
}

type Option func(*Device)

// WithLatency delays the execution of every submission.
func WithLatency(latency time.Duration) Option {
	return func(d *Device) {
		d.latency = latency
	}
}

// WithSubmitError makes every Submit fail with err.
func WithSubmitError(err error) Option {
	return func(d *Device) {
		d.submitErr = err
	}
}

type Device struct {
	mu   sync.Mutex
	cond *sync.Cond

	latency   time.Duration
	submitErr error

	staging     []byte
	nextID      uint64
	nextAddress uint64
	buffers     map[uint64]*allocation
	images      map[uint64]*allocation

	nextFence   uint64
	signaled    uint64
	submissions []Submission
}

func NewDevice(opts ...Option) *Device {
	d := &Device{
		nextAddress: 0x10000,
		buffers:     make(map[uint64]*allocation),
		images:      make(map[uint64]*allocation),
	}
	d.cond = sync.NewCond(&d.mu)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) MapStaging(size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.staging != nil {
		return nil, fmt.Errorf("staging region already mapped")
	}
	d.staging = make([]byte, size)
	core.LogDebug("software device: mapped %d bytes of staging memory", size)
	return d.staging, nil
}

func (d *Device) UnmapStaging() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staging = nil
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (*metadata.DeviceBuffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("func CreateBuffer - buffer %q has zero size", desc.Label)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	alloc := &allocation{id: d.nextID, data: make([]byte, desc.Size)}
	d.buffers[alloc.id] = alloc

	buffer := &metadata.DeviceBuffer{
		Handle: alloc,
		Label:  desc.Label,
		Size:   desc.Size,
		Usage:  desc.Usage,
	}
	if desc.Usage&metadata.BufferUsageDeviceAddress != 0 {
		buffer.Address = d.nextAddress
		d.nextAddress += (desc.Size + addressAlignment - 1) / addressAlignment * addressAlignment
	}
	return buffer, nil
}

func (d *Device) DestroyBuffer(buffer *metadata.DeviceBuffer) {
	if buffer == nil {
		return
	}
	alloc, ok := buffer.Handle.(*allocation)
	if !ok {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, alloc.id)
	buffer.Handle = nil
}

func (d *Device) CreateImage(desc metadata.ImageDesc) (*metadata.DeviceImage, error) {
	size := desc.TextureDesc.Size()
	if size == 0 {
		return nil, fmt.Errorf("func CreateImage - image %q has zero size", desc.Label)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	alloc := &allocation{id: d.nextID, data: make([]byte, size)}
	d.images[alloc.id] = alloc

	return &metadata.DeviceImage{
		Handle: alloc,
		Label:  desc.Label,
		Desc:   desc.TextureDesc,
	}, nil
}

func (d *Device) DestroyImage(image *metadata.DeviceImage) {
	if image == nil {
		return
	}
	alloc, ok := image.Handle.(*allocation)
	if !ok {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.images, alloc.id)
	image.Handle = nil
}

func (d *Device) Submit(commands []renderer.CopyCommand) (renderer.Fence, error) {
	if d.submitErr != nil {
		return 0, d.submitErr
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.staging == nil {
		return 0, fmt.Errorf("func Submit - staging region is not mapped")
	}
	extent := renderer.StagingExtent(commands)
	if extent > uint64(len(d.staging)) {
		return 0, fmt.Errorf("func Submit - copies read %d bytes past a %d byte staging region", extent, len(d.staging))
	}

	d.nextFence++
	fence := renderer.Fence(d.nextFence)
	d.submissions = append(d.submissions, Submission{
		Fence:        fence,
		Commands:     append([]renderer.CopyCommand(nil), commands...),
		StagingBytes: extent,
		SubmittedAt:  time.Now(),
	})

	go d.execute(fence, commands)

	return fence, nil
}

// execute plays the role of the device queue.
func (d *Device) execute(fence renderer.Fence, commands []renderer.CopyCommand) {
	if d.latency > 0 {
		time.Sleep(d.latency)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// queue order: a submission never overtakes the previous one
	for d.signaled < uint64(fence)-1 {
		d.cond.Wait()
	}

	for _, cmd := range commands {
		if d.staging == nil {
			break
		}
		switch c := cmd.(type) {
		case renderer.BufferCopy:
			if alloc, ok := c.Dst.Handle.(*allocation); ok {
				copy(alloc.data[c.DstOffset:c.DstOffset+c.Size], d.staging[c.SrcOffset:c.SrcOffset+c.Size])
			}
		case renderer.ImageCopy:
			if alloc, ok := c.Dst.Handle.(*allocation); ok {
				copy(alloc.data, d.staging[c.SrcOffset:c.StagingEnd()])
			}
		}
	}

	d.submissions[fence-1].CompletedAt = time.Now()
	d.signaled = uint64(fence)
	d.cond.Broadcast()
}

func (d *Device) Wait(fence renderer.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if uint64(fence) > d.nextFence {
		return fmt.Errorf("func Wait - fence %d was never submitted", fence)
	}
	for d.signaled < uint64(fence) {
		d.cond.Wait()
	}
	return nil
}

// ReadBuffer returns a copy of the device memory behind buffer.
func (d *Device) ReadBuffer(buffer *metadata.DeviceBuffer) []byte {
	alloc, ok := buffer.Handle.(*allocation)
	if !ok {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), alloc.data...)
}

// ReadImage returns a copy of the device memory behind image.
func (d *Device) ReadImage(image *metadata.DeviceImage) []byte {
	alloc, ok := image.Handle.(*allocation)
	if !ok {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), alloc.data...)
}

func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submissions...)
}

// LiveResources returns how many buffers and images have not been destroyed.
func (d *Device) LiveResources() (buffers int, images int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers), len(d.images)
}

func (d *Device) StagingMapped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.staging != nil
}
