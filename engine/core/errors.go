package core

import (
	"errors"
)

var (
	ErrNoWorkers                = errors.New("job system needs at least one worker")
	ErrNilExecutor              = errors.New("job system needs an executor")
	ErrJobSystemStarted         = errors.New("job system already started")
	ErrJobSystemStopped         = errors.New("job system stopped")
	ErrInvalidStagingCapacity   = errors.New("staging arena capacity must be greater than zero")
	ErrUploadExceedsArena       = errors.New("upload exceeds staging arena capacity")
	ErrTransferSchedulerStopped = errors.New("transfer scheduler stopped")
	ErrDeviceSubmission         = errors.New("device submission failed")
	ErrUnknownAsset             = errors.New("unknown asset handle")
	ErrUnsupportedAsset         = errors.New("unsupported asset type")
	ErrEmptyAsset               = errors.New("asset decoded to zero bytes")
	ErrUnknown                  = errors.New("unknown")
)
