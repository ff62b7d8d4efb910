package systems

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

/**
 * @brief Identity and lifecycle of a single asset. Owned by the registry.
 */
type AssetRecord struct {
	Handle      metadata.AssetHandle
	Type        metadata.AssetType
	Path        string
	Payload     metadata.Payload
	RequestedAt time.Time

	ready atomic.Bool
}

// IsReady reports whether the payload's device resources hold valid data.
func (r *AssetRecord) IsReady() bool {
	return r.ready.Load()
}

// AssetRegistry is a slot map of asset records indexed by handle. Handles
// come from the injected identifier and records live until Release.
type AssetRegistry struct {
	ids *core.Identifier

	mu    sync.RWMutex
	slots []*AssetRecord
}

func NewAssetRegistry(ids *core.Identifier) *AssetRegistry {
	if ids == nil {
		ids = core.NewIdentifier()
	}
	return &AssetRegistry{
		ids: ids,
	}
}

// Register stores payload as a not-ready record and returns its new handle.
func (ar *AssetRegistry) Register(payload metadata.Payload, path string) metadata.AssetHandle {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	// allocating under the lock keeps slot index == handle-1
	handle := metadata.AssetHandle(ar.ids.AquireNewID())
	record := &AssetRecord{
		Handle:      handle,
		Type:        payload.Type(),
		Path:        path,
		Payload:     payload,
		RequestedAt: time.Now(),
	}

	index := ar.slotIndex(handle)
	for len(ar.slots) <= index {
		ar.slots = append(ar.slots, nil)
	}
	ar.slots[index] = record

	return handle
}

// Get looks a record up. Records stay valid until Release.
func (ar *AssetRegistry) Get(handle metadata.AssetHandle) (*AssetRecord, bool) {
	ar.mu.RLock()
	defer ar.mu.RUnlock()

	index := ar.slotIndex(handle)
	if handle == metadata.InvalidAssetHandle || index < 0 || index >= len(ar.slots) || ar.slots[index] == nil {
		return nil, false
	}
	return ar.slots[index], true
}

// MarkReady flips the ready flag. It returns false for unknown handles and
// for records that were already ready.
func (ar *AssetRegistry) MarkReady(handle metadata.AssetHandle) bool {
	record, ok := ar.Get(handle)
	if !ok {
		return false
	}
	return record.ready.CompareAndSwap(false, true)
}

func (ar *AssetRegistry) Len() int {
	ar.mu.RLock()
	defer ar.mu.RUnlock()

	n := 0
	for _, r := range ar.slots {
		if r != nil {
			n++
		}
	}
	return n
}

// Each calls fn for every record in handle order until fn returns false.
func (ar *AssetRegistry) Each(fn func(record *AssetRecord) bool) {
	ar.mu.RLock()
	records := make([]*AssetRecord, 0, len(ar.slots))
	for _, r := range ar.slots {
		if r != nil {
			records = append(records, r)
		}
	}
	ar.mu.RUnlock()

	for _, r := range records {
		if !fn(r) {
			return
		}
	}
}

// Release destroys the device resources of every record and empties the
// registry. Call it only once nothing can upload anymore.
func (ar *AssetRegistry) Release(device renderer.TransferDevice) {
	ar.mu.Lock()
	slots := ar.slots
	ar.slots = nil
	ar.mu.Unlock()

	for _, r := range slots {
		if r == nil {
			continue
		}
		switch p := r.Payload.(type) {
		case *metadata.Mesh:
			device.DestroyBuffer(p.VertexBuffer)
			device.DestroyBuffer(p.IndexBuffer)
			p.VertexBuffer = nil
			p.IndexBuffer = nil
			p.VertexBufferAddress = 0
		case *metadata.Texture:
			device.DestroyImage(p.Image)
			p.Image = nil
		}
		r.Payload.ClearData()
	}
}

// slotIndex maps a handle to its slot. Handles start at 1.
func (ar *AssetRegistry) slotIndex(handle metadata.AssetHandle) int {
	return int(handle) - 1
}
