package systems

import (
	"sync"

	"github.com/spaghettifunk/assetstream/engine/containers"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

// JobExecutor runs a single task. Errors are logged by the job system and go
// no further.
type JobExecutor interface {
	Execute(task metadata.JobTask) error
}

// JobExecutorFunc adapts a plain function to JobExecutor.
type JobExecutorFunc func(task metadata.JobTask) error

func (f JobExecutorFunc) Execute(task metadata.JobTask) error {
	return f(task)
}

/**
 * @brief A FIFO work queue drained by a fixed pool of workers.
 */
type JobSystem struct {
	executor JobExecutor
	metrics  *core.StreamingMetrics

	mu       sync.Mutex
	cond     *sync.Cond
	queue    *containers.RingQueue[metadata.JobTask]
	started  bool
	stopping bool

	numWorkers int
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

func NewJobSystem(executor JobExecutor, metrics *core.StreamingMetrics) (*JobSystem, error) {
	if executor == nil {
		return nil, core.ErrNilExecutor
	}

	js := &JobSystem{
		executor: executor,
		metrics:  metrics,
		queue:    containers.NewGrowableRingQueue[metadata.JobTask](64),
	}
	js.cond = sync.NewCond(&js.mu)

	return js, nil
}

/**
 * @brief Spawns numWorkers workers. May only be called once.
 */
func (js *JobSystem) Start(numWorkers int) error {
	if numWorkers <= 0 {
		return core.ErrNoWorkers
	}

	js.mu.Lock()
	defer js.mu.Unlock()

	if js.stopping {
		return core.ErrJobSystemStopped
	}
	if js.started {
		return core.ErrJobSystemStarted
	}
	js.started = true
	js.numWorkers = numWorkers

	for i := 0; i < numWorkers; i++ {
		js.wg.Add(1)
		go js.worker(i)
	}
	core.LogInfo("job system started with %d workers", numWorkers)

	return nil
}

func (js *JobSystem) worker(index int) {
	defer js.wg.Done()

	for {
		js.mu.Lock()
		for js.queue.IsEmpty() && !js.stopping {
			js.cond.Wait()
		}
		if js.stopping {
			js.mu.Unlock()
			return
		}
		task, _ := js.queue.Dequeue()
		js.metrics.SetQueuedJobs(js.queue.Len())
		js.mu.Unlock()

		if err := js.executor.Execute(task); err != nil {
			core.LogError("job %s for asset %d failed on worker %d: %s", task.Type, task.Handle, index, err)
		}
	}
}

/**
 * @brief Submits the provided job to be queued for execution and wakes one worker.
 * @param task The description of the job to be executed.
 */
func (js *JobSystem) Submit(task metadata.JobTask) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.stopping {
		return core.ErrJobSystemStopped
	}
	// the queue grows on demand, so Enqueue cannot fail
	_ = js.queue.Enqueue(task)
	js.metrics.SetQueuedJobs(js.queue.Len())
	js.cond.Signal()

	return nil
}

// Pending returns how many submitted tasks no worker has picked up yet.
func (js *JobSystem) Pending() int {
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.queue.Len()
}

/**
 * @brief Shuts the job system down. Running tasks finish, queued tasks are
 * dropped. Safe to call more than once.
 */
func (js *JobSystem) Shutdown() error {
	js.stopOnce.Do(func() {
		js.mu.Lock()
		js.stopping = true
		dropped := js.queue.Clear()
		js.metrics.SetQueuedJobs(0)
		js.cond.Broadcast()
		js.mu.Unlock()

		js.wg.Wait()
		if dropped > 0 {
			core.LogWarn("job system stopped, %d queued jobs were dropped", dropped)
		} else {
			core.LogInfo("job system stopped")
		}
	})
	return nil
}
