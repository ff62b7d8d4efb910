package metadata

// Payload is the decoded object owned by an asset record. It is implemented
// only by *Mesh and *Texture.
type Payload interface {
	// Type reports which concrete payload this is.
	Type() AssetType
	// Footprint is the number of bytes the payload occupies in the staging arena.
	Footprint() uint64
	// ClearData releases the host side copy once the device copy is valid.
	ClearData()
	// KeepsCPUData reports whether ClearData must be skipped after upload.
	KeepsCPUData() bool

	isPayload()
}

/**
 * @brief A decoded asset waiting for a transfer batch. Created by a decode
 * job, consumed by the transfer scheduler.
 */
type PendingUpload struct {
	Handle  AssetHandle
	Payload Payload
	/** @brief Bytes to reserve in the staging arena. */
	Size uint64
}

func (p PendingUpload) Type() AssetType {
	return p.Payload.Type()
}

/**
 * @brief What the completion channel carries back to the consumer once a
 * batch has been confirmed by the device.
 */
type UploadCompletion struct {
	Handle AssetHandle
	Type   AssetType
	Size   uint64
}

func (p PendingUpload) Completion() UploadCompletion {
	return UploadCompletion{
		Handle: p.Handle,
		Type:   p.Type(),
		Size:   p.Size,
	}
}
