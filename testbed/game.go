package testbed

import (
	"fmt"

	"github.com/spaghettifunk/assetstream/engine"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	// stop the engine once every requested asset settled
	exitWhenDone bool

	handles  []metadata.AssetHandle
	ready    int
	elapsed  float64
	reported bool
}

// NewTestGame builds a game that streams every mesh and texture found under
// the configured assets directory and reports progress as they become ready.
func NewTestGame(config *engine.ApplicationConfig, exitWhenDone bool) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State: &gameState{
				exitWhenDone: exitWhenDone,
			},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Boot() error {
	core.LogInfo("booting testbed...")
	return nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.SystemManager == nil {
		return fmt.Errorf("the engine is not yet initialized with all the system managers")
	}

	state := g.State.(*gameState)
	am := g.SystemManager.AssetManager
	ss := g.SystemManager.StreamingSystem

	for _, info := range am.Assets(metadata.AssetTypeMesh) {
		state.handles = append(state.handles, ss.LoadMesh(info.Path))
	}
	for _, info := range am.Assets(metadata.AssetTypeTexture) {
		state.handles = append(state.handles, ss.LoadTexture(info.Path))
	}
	core.LogInfo("requested %d assets", len(state.handles))

	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	state.elapsed += deltaTime

	ss := g.SystemManager.StreamingSystem
	ready := 0
	for _, h := range state.handles {
		if ss.IsReady(h) {
			ready++
		}
	}
	if ready != state.ready {
		state.ready = ready
		core.LogInfo("%d/%d assets ready after %.2fs", ready, len(state.handles), state.elapsed)
	}

	settled := ready
	if timeout := g.ApplicationConfig.Streaming.StallTimeout.Std(); timeout > 0 {
		// failed decodes never become ready, they only ever stall
		settled += len(ss.StalledAssets(timeout))
	}
	if settled < len(state.handles) {
		return nil
	}
	if !state.reported {
		state.reported = true
		g.logSummary()
	}
	if state.exitWhenDone {
		return engine.ErrGameFinished
	}
	return nil
}

func (g *TestGame) logSummary() {
	state := g.State.(*gameState)
	ss := g.SystemManager.StreamingSystem

	var meshes, textures int
	var vertexBytes, textureBytes uint64
	for _, h := range state.handles {
		if !ss.IsReady(h) {
			continue
		}
		switch p := ss.GetPayload(h).(type) {
		case *metadata.Mesh:
			meshes++
			vertexBytes += p.VertexBuffer.Size
		case *metadata.Texture:
			textures++
			textureBytes += p.Image.Desc.Size()
		}
	}
	core.LogInfo("assets settled: %d meshes (%s of vertices), %d textures (%s)",
		meshes, core.ByteSize(vertexBytes), textures, core.ByteSize(textureBytes))
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	core.LogInfo("testbed shutting down with %d/%d assets ready", state.ready, len(state.handles))
	return nil
}
