package systems

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/assetstream/engine/containers"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/math"
	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

type stagedUpload struct {
	upload metadata.PendingUpload
	offset uint64
}

// TransferScheduler owns the upload goroutine. Decoded assets are queued with
// Enqueue, packed greedily into batches that fit the staging arena, copied to
// the device and waited on one batch at a time. Completed uploads are
// published on the completion channel.
type TransferScheduler struct {
	arena      *StagingArena
	device     renderer.TransferDevice
	completion *CompletionChannel
	metrics    *core.StreamingMetrics

	mu       sync.Mutex
	cond     *sync.Cond
	pending  *containers.RingQueue[metadata.PendingUpload]
	started  bool
	stopping bool
	err      error

	done     chan struct{}
	stopOnce sync.Once
}

func NewTransferScheduler(arena *StagingArena, device renderer.TransferDevice, completion *CompletionChannel, metrics *core.StreamingMetrics) (*TransferScheduler, error) {
	if arena == nil || device == nil || completion == nil {
		return nil, fmt.Errorf("func NewTransferScheduler - arena, device and completion channel are required")
	}

	ts := &TransferScheduler{
		arena:      arena,
		device:     device,
		completion: completion,
		metrics:    metrics,
		pending:    containers.NewGrowableRingQueue[metadata.PendingUpload](64),
		done:       make(chan struct{}),
	}
	ts.cond = sync.NewCond(&ts.mu)

	return ts, nil
}

// Start launches RunLoop on its own goroutine.
func (ts *TransferScheduler) Start() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started || ts.stopping {
		return
	}
	ts.started = true
	go ts.RunLoop()
}

// Enqueue queues a decoded asset for upload. The reservation size is always
// the payload's footprint; a Size set by the caller is overwritten. An upload
// larger than the whole arena can never be admitted and is rejected here with
// ErrUploadExceedsArena.
func (ts *TransferScheduler) Enqueue(upload metadata.PendingUpload) error {
	if upload.Payload == nil {
		return fmt.Errorf("%w: asset %d has no payload", core.ErrUnsupportedAsset, upload.Handle)
	}
	upload.Size = upload.Payload.Footprint()
	if upload.Size > ts.arena.Capacity() {
		ts.metrics.OversizeRejected()
		return fmt.Errorf("%w: asset %d needs %d bytes, arena holds %d", core.ErrUploadExceedsArena, upload.Handle, upload.Size, ts.arena.Capacity())
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.stopping {
		return core.ErrTransferSchedulerStopped
	}
	// the queue grows on demand, so Enqueue cannot fail
	_ = ts.pending.Enqueue(upload)
	ts.metrics.SetPendingUploads(ts.pending.Len())
	ts.cond.Signal()

	return nil
}

// RunLoop processes batches until Shutdown or a device failure. Start calls
// it; it must never run twice at the same time.
func (ts *TransferScheduler) RunLoop() {
	defer close(ts.done)

	for {
		batch, ok := ts.nextBatch()
		if !ok {
			return
		}
		if err := ts.processBatch(batch); err != nil {
			ts.fail(err)
			return
		}
	}
}

// nextBatch blocks until there is pending work and then admits, in arrival
// order, every upload that still fits the arena. Uploads that do not fit stay
// queued in their original order for the next batch.
func (ts *TransferScheduler) nextBatch() ([]stagedUpload, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for ts.pending.IsEmpty() && !ts.stopping {
		ts.cond.Wait()
	}
	if ts.stopping {
		return nil, false
	}

	ts.arena.Reset()

	n := ts.pending.Len()
	batch := make([]stagedUpload, 0, n)
	for i := 0; i < n; i++ {
		upload, _ := ts.pending.Dequeue()
		if offset, ok := ts.arena.TryReserve(upload.Size); ok {
			batch = append(batch, stagedUpload{upload: upload, offset: offset})
			continue
		}
		_ = ts.pending.Enqueue(upload)
	}
	ts.metrics.SetPendingUploads(ts.pending.Len())

	return batch, true
}

func (ts *TransferScheduler) processBatch(batch []stagedUpload) error {
	batchID := uuid.NewString()
	start := time.Now()

	core.LogWith(core.DebugLevel, "Transfer batch started", "batch", batchID, "assets", len(batch), "bytes", ts.arena.Used())

	commands := make([]renderer.CopyCommand, 0, len(batch)*2)
	for _, staged := range batch {
		commands = append(commands, ts.stage(staged)...)
	}

	fence, err := ts.device.Submit(commands)
	if err != nil {
		return fmt.Errorf("%w: batch %s: %s", core.ErrDeviceSubmission, batchID, err)
	}
	if err := ts.device.Wait(fence); err != nil {
		return fmt.Errorf("%w: waiting on batch %s: %s", core.ErrDeviceSubmission, batchID, err)
	}

	for _, staged := range batch {
		ts.completion.Publish(staged.upload.Completion())
	}

	elapsed := time.Since(start)
	ts.metrics.ObserveBatch(len(batch), ts.arena.Used(), float64(elapsed.Microseconds())/1000.0)
	core.LogWith(core.DebugLevel, "Transfer batch finished", "batch", batchID, "assets", len(batch), "bytes", ts.arena.Used(), "elapsed", elapsed)

	return nil
}

// stage copies the host data of one upload into its arena reservation and
// returns the device copies that read it back out.
func (ts *TransferScheduler) stage(staged stagedUpload) []renderer.CopyCommand {
	switch p := staged.upload.Payload.(type) {
	case *metadata.Mesh:
		vertexSize := p.VertexBufferSize()
		indexSize := p.IndexBufferSize()
		dst := ts.arena.Bytes(staged.offset, vertexSize+indexSize)
		copy(dst, math.VertexBytes(p.Vertices))
		copy(dst[vertexSize:], math.IndexBytes(p.Indices))

		var commands []renderer.CopyCommand
		if vertexSize > 0 {
			commands = append(commands, renderer.BufferCopy{SrcOffset: staged.offset, Dst: p.VertexBuffer, Size: vertexSize})
		}
		if indexSize > 0 {
			commands = append(commands, renderer.BufferCopy{SrcOffset: staged.offset + vertexSize, Dst: p.IndexBuffer, Size: indexSize})
		}
		return commands
	case *metadata.Texture:
		copy(ts.arena.Bytes(staged.offset, uint64(len(p.Pixels))), p.Pixels)
		return []renderer.CopyCommand{renderer.ImageCopy{SrcOffset: staged.offset, Dst: p.Image}}
	default:
		core.LogError("transfer scheduler: asset %d has an unsupported payload %T", staged.upload.Handle, p)
		return nil
	}
}

func (ts *TransferScheduler) fail(err error) {
	ts.mu.Lock()
	ts.err = err
	ts.stopping = true
	dropped := ts.pending.Clear()
	ts.metrics.SetPendingUploads(0)
	ts.mu.Unlock()

	core.LogError("transfer scheduler stopped after a device failure, %d pending uploads dropped: %s", dropped, err)
}

// Err returns the device failure that stopped the scheduler, if any.
func (ts *TransferScheduler) Err() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.err
}

// Pending returns how many uploads wait for a batch.
func (ts *TransferScheduler) Pending() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.pending.Len()
}

// Shutdown stops the loop and waits for it to exit. A batch already submitted
// is waited on; uploads still queued are dropped. Safe to call more than once.
func (ts *TransferScheduler) Shutdown() error {
	ts.stopOnce.Do(func() {
		ts.mu.Lock()
		ts.stopping = true
		started := ts.started
		dropped := ts.pending.Clear()
		ts.metrics.SetPendingUploads(0)
		ts.cond.Broadcast()
		ts.mu.Unlock()

		if started {
			<-ts.done
		}
		if dropped > 0 {
			core.LogWarn("transfer scheduler stopped, %d pending uploads were dropped", dropped)
		} else {
			core.LogInfo("transfer scheduler stopped")
		}
	})

	return ts.Err()
}
