package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-merge/engine/assets/loaders"
	"github.com/spaghettifunk/anima-merge/engine/core"
	"github.com/spaghettifunk/anima-merge/engine/resources"
)

// The number of change notifications buffered before new ones are dropped.
const changeBufferSize = 64

type AssetInfo struct {
	Path       string
	Type       resources.ResourceType
	LastLoaded time.Time
	ModTime    time.Time
}

// AssetChange describes a file that was created, written or removed under a
// watched directory.
type AssetChange struct {
	Path    string
	Type    resources.ResourceType
	Removed bool
}

type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[resources.ResourceType]Loader

	mutex sync.RWMutex

	done      chan struct{}
	stopped   chan struct{}
	fsnotify  *fsnotify.Watcher
	closeOnce sync.Once
	isClosed  bool
	changes   chan AssetChange
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[resources.ResourceType]Loader),
		fsnotify: fsWatch,
		changes:  make(chan AssetChange, changeBufferSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	// Register loaders
	am.registerLoader(resources.ResourceTypeSkeletalMesh, &loaders.SkeletalMeshLoader{})
	am.registerLoader(resources.ResourceTypeMergeRecipe, &loaders.RecipeLoader{})

	go am.start()
	return am, nil
}

// Initialize indexes and watches every directory given. Directories that do
// not exist are skipped with a warning.
func (am *AssetManager) Initialize(dirs ...string) error {
	for _, dir := range dirs {
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			core.LogWarn("asset directory '%s' does not exist, skipping", dir)
			continue
		}
		if err := am.addRecursive(dir); err != nil {
			return err
		}
	}
	return nil
}

// Watch starts watching the named file or directory (non-recursively).
func (am *AssetManager) Watch(name string) error {
	if am.closed() {
		return errors.New("asset manager already closed")
	}
	if err := am.fsnotify.Add(name); err != nil {
		return err
	}
	if fi, err := os.Stat(name); err == nil && !fi.IsDir() {
		am.handleFileEvent(name)
	}
	return nil
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.closed() {
		return errors.New("asset manager already closed")
	}
	return am.watchRecursive(name, false)
}

// Unwatch stops watching the named directory and all sub-directories.
func (am *AssetManager) Unwatch(name string) error {
	return am.watchRecursive(name, true)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType resources.ResourceType, loader Loader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.loaders[assetType] = loader
}

// RegisterLoader replaces the loader of assetType. Custom loaders use
// resources.ResourceTypeCustom.
func (am *AssetManager) RegisterLoader(assetType resources.ResourceType, loader Loader) {
	am.registerLoader(assetType, loader)
}

// LoadAsset loads path with the loader registered for resourceType. Paths
// are cleaned and made absolute so they match the watcher index.
func (am *AssetManager) LoadAsset(path string, resourceType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	path = normalizePath(path)

	am.mutex.RLock()
	loader, loaderExists := am.loaders[resourceType]
	am.mutex.RUnlock()
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type %s: %w", resourceType, core.ErrUnknownResourceType)
	}

	res, err := loader.Load(path, resourceType, params)
	if err != nil {
		return nil, err
	}

	info := AssetInfo{Path: path, Type: resourceType, LastLoaded: time.Now()}
	if fi, err := os.Stat(path); err == nil {
		info.ModTime = fi.ModTime()
	}
	am.mutex.Lock()
	am.assets[path] = info
	am.mutex.Unlock()

	return res, nil
}

func (am *AssetManager) UnloadAsset(asset *resources.Resource) error {
	if asset == nil {
		return nil
	}
	am.mutex.RLock()
	loader, ok := am.loaders[asset.Type]
	am.mutex.RUnlock()
	if !ok {
		return nil
	}
	return loader.Unload(asset)
}

// Asset returns the index entry of path.
func (am *AssetManager) Asset(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[normalizePath(path)]
	return info, ok
}

// Assets returns the paths of every indexed asset of the given type.
func (am *AssetManager) Assets(assetType resources.ResourceType) []string {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	var out []string
	for path, info := range am.assets {
		if info.Type == assetType {
			out = append(out, path)
		}
	}
	return out
}

// Changes delivers the asset files created, written or removed while
// watched. Notifications are dropped when nobody drains the channel.
func (am *AssetManager) Changes() <-chan AssetChange {
	return am.changes
}

// Close stops the watcher. It is safe to call more than once.
func (am *AssetManager) Close() error {
	am.closeOnce.Do(func() {
		am.mutex.Lock()
		am.isClosed = true
		am.mutex.Unlock()
		close(am.done)
		<-am.stopped
	})
	return nil
}

func (am *AssetManager) closed() bool {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return am.isClosed
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {

		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			name := normalizePath(e.Name)
			s, err := os.Stat(name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(name, false); err != nil {
						core.LogError(err.Error())
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if info, ok := am.handleFileEvent(name); ok {
					am.notify(AssetChange{Path: name, Type: info.Type})
				}
			}
			// Can't stat a deleted directory, so just pretend that it's always a directory and
			// try to remove from the watch list...  we really have no clue if it's a directory or not...
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if info, ok := am.removeAsset(name); ok {
					am.notify(AssetChange{Path: name, Type: info.Type, Removed: true})
				}
				_ = am.fsnotify.Remove(name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			if err := am.fsnotify.Close(); err != nil {
				core.LogError(err.Error())
			}
			close(am.changes)
			return
		}
	}
}

func (am *AssetManager) notify(change AssetChange) {
	ctx := core.EventContext{}
	ctx.Data.C[0] = change.Path
	core.EventFire(core.EVENT_CODE_SOURCE_CHANGED, am, ctx)

	select {
	case am.changes <- change:
	default:
		core.LogWarn("asset change buffer full, dropping change of '%s'", change.Path)
	}
}

// watchRecursive adds all directories under the given one to the watch list.
// Files created before the watch on their directory is added are picked up
// by the walk itself.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		if !unWatch {
			am.handleFileEvent(normalizePath(walkPath))
		}
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) (AssetInfo, bool) {
	assetType := determineAssetType(path)
	if assetType == resources.ResourceTypeNone {
		return AssetInfo{}, false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()

	info := am.assets[path]
	info.Path = path
	info.Type = assetType
	if fi, err := os.Stat(path); err == nil {
		info.ModTime = fi.ModTime()
	}
	am.assets[path] = info
	return info, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) (AssetInfo, bool) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	info, ok := am.assets[path]
	delete(am.assets, path)
	return info, ok
}

func determineAssetType(path string) resources.ResourceType {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return resources.ResourceTypeNone
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".askm":
		return resources.ResourceTypeSkeletalMesh
	case ".toml":
		return resources.ResourceTypeMergeRecipe
	default:
		return resources.ResourceTypeNone
	}
}

func normalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
