package systems

import (
	"fmt"

	"github.com/spaghettifunk/assetstream/engine/containers"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer"
)

// DEFAULT_STAGING_CAPACITY is the staging memory mapped when no capacity is configured.
const DEFAULT_STAGING_CAPACITY uint64 = 256 * 1000 * 1000

// DEFAULT_STAGING_ALIGNMENT keeps every reservation on a texel and index boundary.
const DEFAULT_STAGING_ALIGNMENT uint64 = 4

// StagingArena is the host visible region every batch is staged through. It
// is mapped once and bump allocated per batch. Only the transfer scheduler
// goroutine touches it, so it has no locking.
type StagingArena struct {
	mapper    renderer.StagingMapper
	memory    []byte
	capacity  uint64
	alignment uint64
	cursor    uint64
}

func NewStagingArena(mapper renderer.StagingMapper, capacity, alignment uint64) (*StagingArena, error) {
	if capacity == 0 {
		return nil, core.ErrInvalidStagingCapacity
	}
	if alignment == 0 {
		alignment = DEFAULT_STAGING_ALIGNMENT
	}

	memory, err := mapper.MapStaging(capacity)
	if err != nil {
		return nil, fmt.Errorf("func NewStagingArena - failed to map %d bytes of staging memory: %w", capacity, err)
	}
	if uint64(len(memory)) < capacity {
		mapper.UnmapStaging()
		return nil, fmt.Errorf("func NewStagingArena - mapped %d bytes, wanted %d", len(memory), capacity)
	}

	return &StagingArena{
		mapper:    mapper,
		memory:    memory[:capacity],
		capacity:  capacity,
		alignment: alignment,
	}, nil
}

// TryReserve bump allocates size bytes for the current batch. It never
// reserves part of a request.
func (sa *StagingArena) TryReserve(size uint64) (uint64, bool) {
	offset := containers.AlignUp(sa.cursor, sa.alignment)
	if offset > sa.capacity || size > sa.capacity-offset {
		return 0, false
	}
	sa.cursor = offset + size
	return offset, true
}

// Reset reclaims the whole arena. Call it only once the previous batch's
// device copies are confirmed complete.
func (sa *StagingArena) Reset() {
	sa.cursor = 0
}

// Bytes returns the mapped region of the given reservation.
func (sa *StagingArena) Bytes(offset, size uint64) []byte {
	return sa.memory[offset : offset+size]
}

func (sa *StagingArena) Used() uint64 {
	return sa.cursor
}

func (sa *StagingArena) Remaining() uint64 {
	return sa.capacity - sa.cursor
}

func (sa *StagingArena) Capacity() uint64 {
	return sa.capacity
}

// Release unmaps the staging region. The arena is unusable afterwards.
func (sa *StagingArena) Release() {
	if sa.memory == nil {
		return
	}
	sa.mapper.UnmapStaging()
	sa.memory = nil
	sa.cursor = 0
}
