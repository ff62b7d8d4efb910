package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer/software"
)

func TestStagingArena_ZeroCapacity(t *testing.T) {
	_, err := NewStagingArena(software.NewDevice(), 0, 4)
	assert.ErrorIs(t, err, core.ErrInvalidStagingCapacity)
}

func TestStagingArena_BumpAllocation(t *testing.T) {
	d := software.NewDevice()
	arena, err := NewStagingArena(d, 100, 4)
	require.NoError(t, err)
	assert.True(t, d.StagingMapped())

	off, ok := arena.TryReserve(10)
	require.True(t, ok)
	assert.Equal(t, uint64(0), off)

	off, ok = arena.TryReserve(10)
	require.True(t, ok)
	assert.Equal(t, uint64(12), off, "offsets are aligned")

	// 22 used, 24 after alignment: 76 bytes fit exactly
	_, ok = arena.TryReserve(77)
	assert.False(t, ok)
	assert.Equal(t, uint64(22), arena.Used(), "a failed reservation changes nothing")

	off, ok = arena.TryReserve(76)
	require.True(t, ok)
	assert.Equal(t, uint64(24), off)
	assert.Equal(t, uint64(100), arena.Used())
	assert.Equal(t, uint64(0), arena.Remaining())

	arena.Reset()
	assert.Equal(t, uint64(0), arena.Used())

	off, ok = arena.TryReserve(100)
	require.True(t, ok, "a reservation of the full capacity fits")
	assert.Equal(t, uint64(0), off)
	assert.Len(t, arena.Bytes(off, 100), 100)

	arena.Release()
	assert.False(t, d.StagingMapped())
}
