package systems

import (
	"github.com/spaghettifunk/assetstream/engine/assets"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer"
)

type SystemManager struct {
	AssetManager    *assets.AssetManager
	StreamingSystem *StreamingSystem
}

func NewSystemManager(config StreamingSystemConfig, device renderer.TransferDevice, metrics *core.StreamingMetrics) (*SystemManager, error) {
	am, err := assets.NewAssetManager()
	if err != nil {
		return nil, err
	}

	ss, err := NewStreamingSystem(config, am, device, metrics)
	if err != nil {
		_ = am.Shutdown()
		return nil, err
	}

	return &SystemManager{
		AssetManager:    am,
		StreamingSystem: ss,
	}, nil
}

func (sm *SystemManager) Initialize(assetsDir string) error {
	if err := sm.AssetManager.Initialize(assetsDir); err != nil {
		return err
	}
	return sm.StreamingSystem.Initialize()
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.StreamingSystem.Shutdown(); err != nil {
		core.LogError("streaming system shut down with error: %s", err)
		_ = sm.AssetManager.Shutdown()
		return err
	}
	return sm.AssetManager.Shutdown()
}
