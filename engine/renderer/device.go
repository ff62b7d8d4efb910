package renderer

import (
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

// Fence identifies one submission. Waiting on it blocks until the device has
// executed every copy of that submission.
type Fence uint64

// CopyCommand is a single host to device copy sourced from the staging
// region. It is implemented by BufferCopy and ImageCopy.
type CopyCommand interface {
	// StagingEnd is the first staging byte past the region the copy reads.
	StagingEnd() uint64
	isCopyCommand()
}

type BufferCopy struct {
	SrcOffset uint64
	Dst       *metadata.DeviceBuffer
	DstOffset uint64
	Size      uint64
}

func (c BufferCopy) StagingEnd() uint64 {
	return c.SrcOffset + c.Size
}

func (BufferCopy) isCopyCommand() {}

// ImageCopy uploads a tightly packed image covering the full extent of Dst.
type ImageCopy struct {
	SrcOffset uint64
	Dst       *metadata.DeviceImage
}

func (c ImageCopy) StagingEnd() uint64 {
	return c.SrcOffset + c.Dst.Desc.Size()
}

func (ImageCopy) isCopyCommand() {}

// StagingExtent returns how many leading staging bytes the commands read.
func StagingExtent(commands []CopyCommand) uint64 {
	var extent uint64
	for _, cmd := range commands {
		if end := cmd.StagingEnd(); end > extent {
			extent = end
		}
	}
	return extent
}

// StagingMapper maps the host visible staging region. The region is mapped
// once and stays valid until UnmapStaging.
type StagingMapper interface {
	MapStaging(size uint64) ([]byte, error)
	UnmapStaging()
}

// TransferDevice is everything the streaming pipeline needs from a device:
// resource allocation, a staging region, batched copy submission and a
// blocking wait. Create and Destroy calls may come from any goroutine;
// Submit and Wait are only called by the transfer scheduler.
type TransferDevice interface {
	StagingMapper

	CreateBuffer(desc metadata.BufferDesc) (*metadata.DeviceBuffer, error)
	DestroyBuffer(buffer *metadata.DeviceBuffer)
	CreateImage(desc metadata.ImageDesc) (*metadata.DeviceImage, error)
	DestroyImage(image *metadata.DeviceImage)

	// Submit records commands into one command buffer and submits it.
	Submit(commands []CopyCommand) (Fence, error)
	// Wait blocks without timeout until fence has been signaled.
	Wait(fence Fence) error
}
