package engine

import (
	"errors"

	"github.com/spaghettifunk/assetstream/engine/systems"
)

// ErrGameFinished returned from an Update stops the engine without error.
var ErrGameFinished = errors.New("game finished")

type Game struct {
	ApplicationConfig *ApplicationConfig
	SystemManager     *systems.SystemManager
	State             interface{}
	FnBoot            Boot
	FnInitialize      Initialize
	FnUpdate          Update
	FnShutdown        Shutdown
}

type Boot func() error
type Initialize func() error
type Update func(deltaTime float64) error
type Shutdown func() error
