package systems

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/assetstream/engine/assets"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

type StreamingSystemConfig struct {
	/** @brief Number of decode workers. */
	WorkerCount int
	/** @brief Size of the staging region in bytes. */
	StagingCapacity uint64
	/** @brief Alignment of every staging reservation. */
	StagingAlignment uint64
	/** @brief Default keep-host-copy policy for new payloads. */
	KeepCPUData bool
}

type loadOptions struct {
	keepCPUData bool
	debugName   string
}

// LoadOption tweaks a single LoadMesh or LoadTexture request.
type LoadOption func(*loadOptions)

// WithKeepCPUData keeps the host copy of the payload once it is ready.
func WithKeepCPUData(keep bool) LoadOption {
	return func(o *loadOptions) { o.keepCPUData = keep }
}

func WithDebugName(name string) LoadOption {
	return func(o *loadOptions) { o.debugName = name }
}

/**
 * @brief Front door of the pipeline. Load requests register a record and
 * return at once; decode jobs run on the job system, uploads on the transfer
 * scheduler, and PollReadyAssets flips readiness on the caller's goroutine.
 */
type StreamingSystem struct {
	config  StreamingSystemConfig
	device  renderer.TransferDevice
	metrics *core.StreamingMetrics

	registry   *AssetRegistry
	completion *CompletionChannel
	jobSystem  *JobSystem
	meshes     *MeshLoaderSystem
	textures   *TextureLoaderSystem

	// set by Initialize
	arena     *StagingArena
	scheduler *TransferScheduler

	mu           sync.Mutex
	initialized  bool
	shutdownOnce sync.Once
	shutdownErr  error
}

func NewStreamingSystem(config StreamingSystemConfig, am *assets.AssetManager, device renderer.TransferDevice, metrics *core.StreamingMetrics) (*StreamingSystem, error) {
	if config.WorkerCount <= 0 {
		return nil, core.ErrNoWorkers
	}
	if config.StagingCapacity == 0 {
		config.StagingCapacity = DEFAULT_STAGING_CAPACITY
	}
	if config.StagingAlignment == 0 {
		config.StagingAlignment = DEFAULT_STAGING_ALIGNMENT
	}

	meshes, err := NewMeshLoaderSystem(am, device)
	if err != nil {
		return nil, err
	}
	textures, err := NewTextureLoaderSystem(am, device)
	if err != nil {
		return nil, err
	}

	ss := &StreamingSystem{
		config:     config,
		device:     device,
		metrics:    metrics,
		registry:   NewAssetRegistry(core.NewIdentifier()),
		completion: NewCompletionChannel(),
		meshes:     meshes,
		textures:   textures,
	}

	js, err := NewJobSystem(ss, metrics)
	if err != nil {
		return nil, err
	}
	ss.jobSystem = js

	return ss, nil
}

// Initialize maps the staging arena and starts the transfer goroutine and the
// decode workers. Requests made before Initialize stay queued until then.
func (ss *StreamingSystem) Initialize() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.initialized {
		return nil
	}

	arena, err := NewStagingArena(ss.device, ss.config.StagingCapacity, ss.config.StagingAlignment)
	if err != nil {
		return err
	}
	scheduler, err := NewTransferScheduler(arena, ss.device, ss.completion, ss.metrics)
	if err != nil {
		arena.Release()
		return err
	}
	scheduler.Start()

	if err := ss.jobSystem.Start(ss.config.WorkerCount); err != nil {
		_ = scheduler.Shutdown()
		arena.Release()
		return err
	}
	ss.arena = arena
	ss.scheduler = scheduler
	ss.initialized = true

	core.LogInfo("streaming system initialized: %d workers, %s staging", ss.config.WorkerCount, core.ByteSize(ss.config.StagingCapacity))
	return nil
}

/**
 * @brief Requests a mesh. The handle is valid immediately; the mesh becomes
 * ready some PollReadyAssets call later, or never if decoding fails.
 */
func (ss *StreamingSystem) LoadMesh(path string, opts ...LoadOption) metadata.AssetHandle {
	o := ss.loadOptions(opts)
	mesh := &metadata.Mesh{
		DebugName:   o.debugName,
		KeepCPUData: o.keepCPUData,
	}
	return ss.request(mesh, path, metadata.JOB_TYPE_MESH_LOAD)
}

func (ss *StreamingSystem) LoadTexture(path string, opts ...LoadOption) metadata.AssetHandle {
	o := ss.loadOptions(opts)
	texture := &metadata.Texture{
		DebugName:   o.debugName,
		KeepCPUData: o.keepCPUData,
	}
	return ss.request(texture, path, metadata.JOB_TYPE_TEXTURE_LOAD)
}

func (ss *StreamingSystem) loadOptions(opts []LoadOption) loadOptions {
	o := loadOptions{keepCPUData: ss.config.KeepCPUData}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (ss *StreamingSystem) request(payload metadata.Payload, path string, jobType metadata.JobType) metadata.AssetHandle {
	handle := ss.registry.Register(payload, path)
	ss.metrics.AssetRequested(payload.Type().String())

	task := metadata.JobTask{Type: jobType, Handle: handle, Path: path}
	if err := ss.jobSystem.Submit(task); err != nil {
		core.LogWarn("asset %d (%s) will never load: %s", handle, path, err)
	}
	return handle
}

/**
 * @brief Runs one decode job: decode into the payload, allocate its device
 * resources and hand it to the transfer scheduler. Called by job workers.
 */
func (ss *StreamingSystem) Execute(task metadata.JobTask) error {
	record, ok := ss.registry.Get(task.Handle)
	if !ok {
		return fmt.Errorf("%w: %d", core.ErrUnknownAsset, task.Handle)
	}

	var err error
	switch task.Type {
	case metadata.JOB_TYPE_MESH_LOAD:
		mesh, ok := record.Payload.(*metadata.Mesh)
		if !ok {
			return fmt.Errorf("%w: asset %d is a %s", core.ErrUnsupportedAsset, task.Handle, record.Type)
		}
		err = ss.meshes.Load(task.Path, mesh)
	case metadata.JOB_TYPE_TEXTURE_LOAD:
		texture, ok := record.Payload.(*metadata.Texture)
		if !ok {
			return fmt.Errorf("%w: asset %d is a %s", core.ErrUnsupportedAsset, task.Handle, record.Type)
		}
		err = ss.textures.Load(task.Path, texture)
	default:
		return fmt.Errorf("%w: job type %s", core.ErrUnsupportedAsset, task.Type)
	}
	if err != nil {
		ss.metrics.DecodeFailed(record.Type.String())
		return fmt.Errorf("failed to load %s '%s': %w", record.Type, task.Path, err)
	}

	scheduler := ss.transferScheduler()
	if scheduler == nil {
		return fmt.Errorf("%w: streaming system is not initialized", core.ErrTransferSchedulerStopped)
	}

	upload := metadata.PendingUpload{
		Handle:  task.Handle,
		Payload: record.Payload,
		Size:    record.Payload.Footprint(),
	}
	if err := scheduler.Enqueue(upload); err != nil {
		if errors.Is(err, core.ErrTransferSchedulerStopped) {
			core.LogDebug("asset %d decoded after the transfer scheduler stopped", task.Handle)
			return nil
		}
		return err
	}
	return nil
}

func (ss *StreamingSystem) transferScheduler() *TransferScheduler {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.scheduler
}

/**
 * @brief Drains finished uploads and marks their assets ready. Host copies
 * are dropped unless the payload keeps them. Call once per frame.
 * @return How many assets became ready during this call.
 */
func (ss *StreamingSystem) PollReadyAssets() int {
	count := 0
	for _, c := range ss.completion.DrainAll() {
		record, ok := ss.registry.Get(c.Handle)
		if !ok {
			core.LogWarn("completion for unknown asset %d", c.Handle)
			continue
		}
		if !ss.registry.MarkReady(c.Handle) {
			continue
		}
		if !record.Payload.KeepsCPUData() {
			record.Payload.ClearData()
		}
		ss.metrics.AssetReady(c.Type.String())
		count++
	}
	return count
}

func (ss *StreamingSystem) IsReady(handle metadata.AssetHandle) bool {
	record, ok := ss.registry.Get(handle)
	return ok && record.IsReady()
}

// GetPayload returns the payload of handle, ready or not. Device fields must
// not be used before IsReady reports true.
func (ss *StreamingSystem) GetPayload(handle metadata.AssetHandle) metadata.Payload {
	record, ok := ss.registry.Get(handle)
	if !ok {
		return nil
	}
	return record.Payload
}

func (ss *StreamingSystem) GetMesh(handle metadata.AssetHandle) (*metadata.Mesh, bool) {
	mesh, ok := ss.GetPayload(handle).(*metadata.Mesh)
	return mesh, ok
}

func (ss *StreamingSystem) GetTexture(handle metadata.AssetHandle) (*metadata.Texture, bool) {
	texture, ok := ss.GetPayload(handle).(*metadata.Texture)
	return texture, ok
}

// StalledAssets lists not-ready assets requested more than olderThan ago.
// Failed decodes never become ready, so they show up here too.
func (ss *StreamingSystem) StalledAssets(olderThan time.Duration) []metadata.AssetHandle {
	cutoff := time.Now().Add(-olderThan)
	var stalled []metadata.AssetHandle
	ss.registry.Each(func(record *AssetRecord) bool {
		if !record.IsReady() && record.RequestedAt.Before(cutoff) {
			stalled = append(stalled, record.Handle)
		}
		return true
	})
	return stalled
}

// Err reports the device failure that stopped the transfer scheduler, if any.
func (ss *StreamingSystem) Err() error {
	if scheduler := ss.transferScheduler(); scheduler != nil {
		return scheduler.Err()
	}
	return nil
}

// Registry exposes the asset records, mostly for diagnostics.
func (ss *StreamingSystem) Registry() *AssetRegistry {
	return ss.registry
}

/**
 * @brief Stops the pipeline: decode workers first, then the transfer
 * goroutine, then every device resource and finally the staging mapping.
 * Safe to call more than once.
 */
func (ss *StreamingSystem) Shutdown() error {
	ss.shutdownOnce.Do(func() {
		if err := ss.jobSystem.Shutdown(); err != nil {
			ss.shutdownErr = err
		}

		ss.mu.Lock()
		scheduler, arena := ss.scheduler, ss.arena
		ss.mu.Unlock()

		if scheduler != nil {
			if err := scheduler.Shutdown(); err != nil && ss.shutdownErr == nil {
				ss.shutdownErr = err
			}
		}
		ss.registry.Release(ss.device)
		if arena != nil {
			arena.Release()
		}
		core.LogInfo("streaming system shut down")
	})
	return ss.shutdownErr
}
