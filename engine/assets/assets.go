package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/assetstream/engine/assets/loaders"
	"github.com/spaghettifunk/assetstream/engine/core"
	"github.com/spaghettifunk/assetstream/engine/renderer/metadata"
)

var errManagerClosed = errors.New("asset manager already closed")

type AssetInfo struct {
	Path    string
	Type    metadata.AssetType
	Size    int64
	ModTime time.Time
}

// AssetManager keeps an index of every loadable file below the assets
// directory, kept current by a recursive fsnotify watch, and owns the loaders
// used by the decode jobs.
type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[metadata.AssetType]Loader

	mutex sync.RWMutex

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}
	started  bool
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[metadata.AssetType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	am.RegisterLoader(metadata.AssetTypeMesh, &loaders.MeshLoader{})
	am.RegisterLoader(metadata.AssetTypeTexture, &loaders.TextureLoader{})

	return am, nil
}

// Initialize indexes assetsDir and starts watching it.
func (am *AssetManager) Initialize(assetsDir string) error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return errManagerClosed
	}
	am.root = filepath.Clean(assetsDir)
	am.mutex.Unlock()

	if err := am.watchRecursive(am.root); err != nil {
		return err
	}

	am.mutex.Lock()
	if !am.started {
		am.started = true
		go am.start()
	}
	am.mutex.Unlock()

	core.LogInfo("asset manager indexed %d assets under %s", am.Len(), am.root)
	return nil
}

// RegisterLoader replaces the loader used for assetType.
func (am *AssetManager) RegisterLoader(assetType metadata.AssetType, loader Loader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.loaders[assetType] = loader
}

// Resolve maps an asset name to a path. Indexed paths and absolute paths are
// returned unchanged, anything else is taken relative to the assets directory.
func (am *AssetManager) Resolve(name string) string {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	if _, ok := am.assets[name]; ok || filepath.IsAbs(name) || am.root == "" {
		return name
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	return filepath.Join(am.root, name)
}

func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[path]
	return info, ok
}

func (am *AssetManager) Len() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// Assets lists the indexed assets of the given type sorted by path.
func (am *AssetManager) Assets(assetType metadata.AssetType) []AssetInfo {
	am.mutex.RLock()
	out := make([]AssetInfo, 0, len(am.assets))
	for _, info := range am.assets {
		if info.Type == assetType {
			out = append(out, info)
		}
	}
	am.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// LoadAsset decodes the asset at path with the loader registered for
// assetType. The file does not need to be indexed yet.
func (am *AssetManager) LoadAsset(path string, assetType metadata.AssetType) (*metadata.Resource, error) {
	path = am.Resolve(path)

	if detected, ok := DetermineAssetType(path); !ok || detected != assetType {
		return nil, fmt.Errorf("%w: %s is not a %s", core.ErrUnsupportedAsset, path, assetType)
	}

	am.mutex.RLock()
	loader, exists := am.loaders[assetType]
	am.mutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: no loader registered for asset type %s", core.ErrUnsupportedAsset, assetType)
	}

	return loader.Load(path)
}

// Shutdown stops the watcher. Safe to call more than once.
func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	started := am.started
	am.mutex.Unlock()

	close(am.done)
	if started {
		<-am.stopped
		return nil
	}
	return am.fsnotify.Close()
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)

		case e, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", e.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		s, err := os.Stat(e.Name)
		if err != nil {
			return
		}
		if s.IsDir() {
			if e.Op&fsnotify.Create != 0 {
				if err := am.watchRecursive(e.Name); err != nil {
					core.LogWarn("failed to watch %s: %s", e.Name, err.Error())
				}
			}
			return
		}
		am.indexFile(e.Name, s)
	}
	// Can't stat a removed path, so treat it as both a file and a directory.
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		am.removeAsset(e.Name)
		_ = am.fsnotify.Remove(e.Name)
	}
}

// watchRecursive adds path and every directory below it to the watch list and
// indexes the files it finds on the way.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.indexFile(walkPath, fi)
		return nil
	})
}

func (am *AssetManager) indexFile(path string, fi os.FileInfo) {
	assetType, ok := DetermineAssetType(path)
	if !ok {
		return
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{
		Path:    path,
		Type:    assetType,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}
}

func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, path)
}

// DetermineAssetType classifies a path by extension. A trailing ".lz4" is
// ignored.
func DetermineAssetType(path string) (metadata.AssetType, bool) {
	switch loaders.SourceExtension(path) {
	case ".obj":
		return metadata.AssetTypeMesh, true
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return metadata.AssetTypeTexture, true
	default:
		return 0, false
	}
}
