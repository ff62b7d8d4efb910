package systems

import (
	"bytes"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
	"github.com/spaghettifunk/assetstream/engine/renderer/software"
)

func newScheduler(t *testing.T, d *software.Device, capacity uint64) (*TransferScheduler, *CompletionChannel) {
	t.Helper()
	arena, err := NewStagingArena(d, capacity, DEFAULT_STAGING_ALIGNMENT)
	require.NoError(t, err)
	cc := NewCompletionChannel()
	ts, err := NewTransferScheduler(arena, d, cc, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ts.Shutdown()
		arena.Release()
	})
	return ts, cc
}

// drain collects completions until want have arrived.
func drain(t *testing.T, cc *CompletionChannel, want int) []metadata.UploadCompletion {
	t.Helper()
	var got []metadata.UploadCompletion
	require.Eventually(t, func() bool {
		got = append(got, cc.DrainAll()...)
		return len(got) >= want
	}, 5*time.Second, 2*time.Millisecond)
	return got
}

func TestTransferScheduler_SplitsBatchesByCapacity(t *testing.T) {
	d := software.NewDevice()
	ts, cc := newScheduler(t, d, 1000)

	// three 10x10 RGBA textures, 400 bytes each
	for i := 1; i <= 3; i++ {
		require.NoError(t, ts.Enqueue(textureUpload(t, d, metadata.AssetHandle(i), 10, 10, byte(i))))
	}
	assert.Equal(t, 3, ts.Pending())
	ts.Start()

	completions := drain(t, cc, 3)
	assert.Len(t, completions, 3)

	subs := d.Submissions()
	require.Len(t, subs, 2)
	assert.Len(t, subs[0].Commands, 2)
	assert.Equal(t, uint64(800), subs[0].StagingBytes)
	assert.Len(t, subs[1].Commands, 1)
	assert.Equal(t, uint64(400), subs[1].StagingBytes)

	// arrival order is kept across batches
	first := subs[0].Commands[0].(renderer.ImageCopy)
	last := subs[1].Commands[0].(renderer.ImageCopy)
	assert.Equal(t, byte(1), d.ReadImage(first.Dst)[0])
	assert.Equal(t, byte(3), d.ReadImage(last.Dst)[0])
}

func TestTransferScheduler_RejectsOversizeUploads(t *testing.T) {
	d := software.NewDevice()
	ts, cc := newScheduler(t, d, 1000)
	ts.Start()

	// 30x10 RGBA is 1200 bytes
	err := ts.Enqueue(textureUpload(t, d, 1, 30, 10, 1))
	assert.ErrorIs(t, err, core.ErrUploadExceedsArena)
	assert.Zero(t, ts.Pending())

	// an upload of exactly the capacity is fine
	require.NoError(t, ts.Enqueue(textureUpload(t, d, 2, 25, 10, 2)))
	completions := drain(t, cc, 1)
	assert.Equal(t, metadata.AssetHandle(2), completions[0].Handle)
}

func TestTransferScheduler_SizeComesFromPayload(t *testing.T) {
	d := software.NewDevice()
	ts, cc := newScheduler(t, d, 1000)
	ts.Start()

	// 20 vertices and 30 indices stage 1080 bytes, whatever Size claims
	mesh := &metadata.Mesh{
		Vertices: make([]metadata.Vertex, 20),
		Indices:  make([]uint32, 30),
	}
	require.Equal(t, uint64(1080), mesh.Footprint())
	err := ts.Enqueue(metadata.PendingUpload{Handle: 1, Payload: mesh, Size: 16})
	assert.ErrorIs(t, err, core.ErrUploadExceedsArena)
	assert.Zero(t, ts.Pending())

	assert.ErrorIs(t, ts.Enqueue(metadata.PendingUpload{Handle: 2, Size: 16}), core.ErrUnsupportedAsset)

	// undersized declarations still reserve the full 400 bytes each
	uploads := make([]metadata.PendingUpload, 0, 3)
	for i := 3; i <= 5; i++ {
		upload := textureUpload(t, d, metadata.AssetHandle(i), 10, 10, byte(i))
		upload.Size = 16
		require.NoError(t, ts.Enqueue(upload))
		uploads = append(uploads, upload)
	}
	drain(t, cc, 3)
	require.NoError(t, ts.Err())

	for _, s := range d.Submissions() {
		assert.LessOrEqual(t, s.StagingBytes, uint64(1000))
	}
	for i, upload := range uploads {
		pixels := d.ReadImage(upload.Payload.(*metadata.Texture).Image)
		assert.Equal(t, bytes.Repeat([]byte{byte(i + 3)}, 400), pixels, "asset %d", upload.Handle)
	}
}

func TestTransferScheduler_MeshStagesVerticesThenIndices(t *testing.T) {
	d := software.NewDevice()
	ts, cc := newScheduler(t, d, 4096)

	mesh := &metadata.Mesh{
		Vertices: []metadata.Vertex{{UVX: 1}, {UVX: 2}, {UVX: 3}},
		Indices:  []uint32{0, 1, 2},
	}
	vb, err := d.CreateBuffer(metadata.BufferDesc{Size: mesh.VertexBufferSize(), Usage: metadata.BufferUsageVertex})
	require.NoError(t, err)
	ib, err := d.CreateBuffer(metadata.BufferDesc{Size: mesh.IndexBufferSize(), Usage: metadata.BufferUsageIndex})
	require.NoError(t, err)
	mesh.VertexBuffer, mesh.IndexBuffer = vb, ib

	ts.Start()
	require.NoError(t, ts.Enqueue(metadata.PendingUpload{Handle: 7, Payload: mesh, Size: mesh.Footprint()}))
	drain(t, cc, 1)

	subs := d.Submissions()
	require.Len(t, subs, 1)
	require.Len(t, subs[0].Commands, 2)
	vc := subs[0].Commands[0].(renderer.BufferCopy)
	ic := subs[0].Commands[1].(renderer.BufferCopy)
	assert.Equal(t, uint64(0), vc.SrcOffset)
	assert.Equal(t, mesh.VertexBufferSize(), ic.SrcOffset)
	assert.Equal(t, mesh.Footprint(), subs[0].StagingBytes)

	assert.Equal(t, []byte{0, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}, d.ReadBuffer(ib))
	assert.Len(t, d.ReadBuffer(vb), 3*48)
}

func TestTransferScheduler_RandomizedBatchesRespectCapacity(t *testing.T) {
	const capacity = 4000
	rng := rand.New(rand.NewSource(42))

	d := software.NewDevice()
	ts, cc := newScheduler(t, d, capacity)

	const uploads = 200
	for i := 1; i <= uploads; i++ {
		w := uint32(1 + rng.Intn(25))
		h := uint32(1 + rng.Intn(40))
		require.NoError(t, ts.Enqueue(textureUpload(t, d, metadata.AssetHandle(i), w, h, byte(i))))
	}
	ts.Start()

	completions := drain(t, cc, uploads)
	seen := make(map[metadata.AssetHandle]bool)
	for _, c := range completions {
		assert.False(t, seen[c.Handle], "handle %d completed twice", c.Handle)
		seen[c.Handle] = true
	}
	assert.Len(t, seen, uploads)

	total := 0
	for _, s := range d.Submissions() {
		assert.LessOrEqual(t, s.StagingBytes, uint64(capacity))
		assert.NotEmpty(t, s.Commands)
		total += len(s.Commands)
	}
	assert.Equal(t, uploads, total)
}

func TestTransferScheduler_ConcurrentEnqueueWhileRunning(t *testing.T) {
	const (
		capacity  = 3000
		producers = 8
		perWorker = 50
	)

	d := software.NewDevice()
	ts, cc := newScheduler(t, d, capacity)
	ts.Start()

	// uploads are built up front since require must stay on the test goroutine
	batches := make([][]metadata.PendingUpload, producers)
	for p := 0; p < producers; p++ {
		rng := rand.New(rand.NewSource(int64(p)))
		for i := 0; i < perWorker; i++ {
			handle := metadata.AssetHandle(p*perWorker + i + 1)
			w := uint32(1 + rng.Intn(20))
			h := uint32(1 + rng.Intn(30))
			batches[p] = append(batches[p], textureUpload(t, d, handle, w, h, byte(handle)))
		}
	}

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(uploads []metadata.PendingUpload) {
			defer wg.Done()
			for _, upload := range uploads {
				assert.NoError(t, ts.Enqueue(upload))
			}
		}(batches[p])
	}
	wg.Wait()

	completions := drain(t, cc, producers*perWorker)
	require.NoError(t, ts.Err())

	seen := make(map[metadata.AssetHandle]bool)
	for _, c := range completions {
		assert.False(t, seen[c.Handle], "handle %d completed twice", c.Handle)
		seen[c.Handle] = true
	}
	assert.Len(t, seen, producers*perWorker)

	total := 0
	for _, s := range d.Submissions() {
		assert.LessOrEqual(t, s.StagingBytes, uint64(capacity))
		total += len(s.Commands)
	}
	assert.Equal(t, producers*perWorker, total)
}

func TestTransferScheduler_DeviceFailureStopsPipeline(t *testing.T) {
	d := software.NewDevice(software.WithSubmitError(errors.New("device lost")))
	ts, cc := newScheduler(t, d, 1000)
	ts.Start()

	require.NoError(t, ts.Enqueue(textureUpload(t, d, 1, 2, 2, 1)))
	require.Eventually(t, func() bool { return ts.Err() != nil }, 2*time.Second, 2*time.Millisecond)

	assert.ErrorIs(t, ts.Err(), core.ErrDeviceSubmission)
	assert.ErrorIs(t, ts.Enqueue(textureUpload(t, d, 2, 2, 2, 1)), core.ErrTransferSchedulerStopped)
	assert.Nil(t, cc.DrainAll())
	assert.ErrorIs(t, ts.Shutdown(), core.ErrDeviceSubmission)
}

func TestTransferScheduler_ShutdownWithWorkInFlight(t *testing.T) {
	for _, inFlight := range []int{0, 1, 16} {
		d := software.NewDevice(software.WithLatency(10 * time.Millisecond))
		arena, err := NewStagingArena(d, 1000, DEFAULT_STAGING_ALIGNMENT)
		require.NoError(t, err)
		ts, err := NewTransferScheduler(arena, d, NewCompletionChannel(), nil)
		require.NoError(t, err)
		ts.Start()

		for i := 1; i <= inFlight; i++ {
			require.NoError(t, ts.Enqueue(textureUpload(t, d, metadata.AssetHandle(i), 10, 10, 1)))
		}

		require.NoError(t, ts.Shutdown(), "in flight: %d", inFlight)
		require.NoError(t, ts.Shutdown())
		assert.Zero(t, ts.Pending())
		assert.ErrorIs(t, ts.Enqueue(textureUpload(t, d, 99, 1, 1, 1)), core.ErrTransferSchedulerStopped)
		arena.Release()
	}
}

func TestTransferScheduler_ShutdownWithoutStart(t *testing.T) {
	d := software.NewDevice()
	ts, _ := newScheduler(t, d, 64)
	require.NoError(t, ts.Enqueue(textureUpload(t, d, 1, 2, 2, 1)))
	require.NoError(t, ts.Shutdown())
	assert.Empty(t, d.Submissions())
}
