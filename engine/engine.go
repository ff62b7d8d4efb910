package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer"
	"github.com/spaghettifunk/assetstream/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage  Stage
	sessionID     string
	gameInstance  *Game
	systemManager *systems.SystemManager
	metrics       *core.StreamingMetrics
	clock         *core.Clock
	lastTime      float64
	lastStallScan time.Time
	reportedStall map[uint64]bool
}

func New(g *Game, device renderer.TransferDevice, metrics *core.StreamingMetrics) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("func New - game and application config are required")
	}
	if err := g.ApplicationConfig.Validate(); err != nil {
		return nil, fmt.Errorf("func New - invalid application config: %w", err)
	}

	e := &Engine{
		currentStage:  EngineStageUninitialized,
		sessionID:     uuid.NewString(),
		gameInstance:  g,
		metrics:       metrics,
		clock:         core.NewClock(),
		reportedStall: make(map[uint64]bool),
	}

	e.currentStage = EngineStageBooting
	level, err := core.ParseLogLevel(g.ApplicationConfig.LogLevel)
	if err != nil {
		return nil, err
	}
	core.SetLogLevel(level)

	sm, err := systems.NewSystemManager(g.ApplicationConfig.StreamingSystemConfig(), device, metrics)
	if err != nil {
		core.LogError("%s", err.Error())
		return nil, err
	}
	e.systemManager = sm
	g.SystemManager = sm

	if g.FnBoot != nil {
		if err := g.FnBoot(); err != nil {
			_ = sm.Shutdown()
			return nil, err
		}
	}
	e.currentStage = EngineStageBootComplete

	core.LogInfo("%s booted, session %s", g.ApplicationConfig.Name, e.sessionID)
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if err := e.systemManager.Initialize(e.gameInstance.ApplicationConfig.AssetsDir); err != nil {
		return err
	}
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Run ticks the game at the configured rate until ctx is cancelled, the game
// finishes or the streaming pipeline fails. Ready assets are polled once per
// tick before the game update.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("func Run - engine is not initialized")
	}
	e.currentStage = EngineStageRunning

	tick := time.Second / time.Duration(e.gameInstance.ApplicationConfig.TickRate)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for {
		select {
		case <-ctx.Done():
			core.LogInfo("engine stopping: %s", ctx.Err())
			return nil
		case <-ticker.C:
		}

		if err := e.frame(); err != nil {
			if errors.Is(err, ErrGameFinished) {
				core.LogInfo("game finished, stopping engine")
				return nil
			}
			return err
		}
	}
}

func (e *Engine) frame() error {
	frameStart := time.Now()

	e.clock.Update()
	currentTime := e.clock.Elapsed()
	delta := currentTime - e.lastTime

	streaming := e.systemManager.StreamingSystem
	if n := streaming.PollReadyAssets(); n > 0 {
		core.LogDebug("%d assets became ready", n)
	}
	if err := streaming.Err(); err != nil {
		return fmt.Errorf("streaming pipeline stopped: %w", err)
	}
	e.reportStalled()

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			return err
		}
	}

	e.metrics.ObserveFrame(float64(time.Since(frameStart).Microseconds()) / 1000.0)
	e.lastTime = currentTime
	return nil
}

// reportStalled warns once per asset that stays not-ready past the stall
// timeout. Scans run at most once per second.
func (e *Engine) reportStalled() {
	timeout := e.gameInstance.ApplicationConfig.Streaming.StallTimeout.Std()
	if timeout <= 0 || time.Since(e.lastStallScan) < time.Second {
		return
	}
	e.lastStallScan = time.Now()

	for _, h := range e.systemManager.StreamingSystem.StalledAssets(timeout) {
		if e.reportedStall[uint64(h)] {
			continue
		}
		e.reportedStall[uint64(h)] = true
		if record, ok := e.systemManager.StreamingSystem.Registry().Get(h); ok {
			core.LogWarn("asset %d (%s) is still not ready after %s", h, record.Path, timeout)
		}
	}
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) SystemManager() *systems.SystemManager {
	return e.systemManager
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.clock.Stop()

	var gameErr error
	if e.gameInstance.FnShutdown != nil {
		gameErr = e.gameInstance.FnShutdown()
	}
	if err := e.systemManager.Shutdown(); err != nil {
		return err
	}
	return gameErr
}
