package metadata

/** @brief How a device buffer is going to be used. */
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageStorage
	BufferUsageTransferSrc
	BufferUsageTransferDst
	/** @brief The buffer exposes a device address readable from shaders. */
	BufferUsageDeviceAddress
)

type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

/**
 * @brief A device resident buffer. Handle is owned by the backend that created it.
 */
type DeviceBuffer struct {
	Handle  interface{}
	Label   string
	Size    uint64
	Usage   BufferUsage
	Address uint64
}

type ImageDesc struct {
	Label string
	TextureDesc
}

/**
 * @brief A device resident image. Handle is owned by the backend that created it.
 */
type DeviceImage struct {
	Handle interface{}
	Label  string
	Desc   TextureDesc
}
