package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/navkagleb/benzin-sub001/engine/core"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrInvalidShader = errors.New("shader byte code is not a multiple of four bytes")
)

type AssetInfo struct {
	Path       string
	LastLoaded time.Time
}

// AssetManager indexes the precompiled SPIR-V shaders (*.spv) under a root
// directory and keeps the index current while files are created or
// removed. Shaders are named by their slash separated path relative to
// the root.
type AssetManager struct {
	root   string
	logger *core.Logger

	mutex  sync.RWMutex
	assets map[string]AssetInfo

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

func NewAssetManager(root string, logger *core.Logger) (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		root:     filepath.Clean(root),
		logger:   logger.Named("assets"),
		assets:   make(map[string]AssetInfo),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}

	if err := am.watchRecursive(am.root); err != nil {
		fsWatch.Close()
		return nil, err
	}
	am.wg.Add(1)
	go am.start()

	am.logger.Info("asset directory indexed", "root", am.root, "assets", am.Len())
	return am, nil
}

func (am *AssetManager) Len() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

func (am *AssetManager) Has(name string) bool {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	_, ok := am.assets[name]
	return ok
}

// Shader returns the SPIR-V byte code of an indexed shader.
func (am *AssetManager) Shader(name string) ([]byte, error) {
	am.mutex.Lock()
	asset, exists := am.assets[name]
	if exists {
		asset.LastLoaded = time.Now()
		am.assets[name] = asset
	}
	am.mutex.Unlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, name)
	}

	data, err := os.ReadFile(asset.Path)
	if err != nil {
		am.logger.Error("failed to load shader", "name", name, "err", err)
		return nil, err
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrInvalidShader)
	}
	am.logger.Debug("shader loaded", "name", name, "size", len(data))
	return data, nil
}

func (am *AssetManager) Close() error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	am.isClosed = true
	close(am.done)
	err := am.fsnotify.Close()
	am.wg.Wait()
	return err
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name); err != nil {
						am.logger.Warn("failed to watch new directory", "path", e.Name, "err", err)
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.index(e.Name)
			}
			// A removed directory cannot be told apart from a removed
			// file, so drop every asset below the path.
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAssets(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			am.logger.Error("asset watcher", "err", err)

		case <-am.done:
			return
		}
	}
}

// watchRecursive watches path and every directory below it and indexes the
// files it finds.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.index(walkPath)
		return nil
	})
}

func (am *AssetManager) index(path string) {
	if !strings.EqualFold(filepath.Ext(path), ".spv") {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if _, ok := am.assets[am.name(path)]; !ok {
		am.assets[am.name(path)] = AssetInfo{Path: path}
	}
}

func (am *AssetManager) removeAssets(path string) {
	name := am.name(path)
	am.mutex.Lock()
	defer am.mutex.Unlock()
	for n := range am.assets {
		if n == name || strings.HasPrefix(n, name+"/") {
			delete(am.assets, n)
		}
	}
}

func (am *AssetManager) name(path string) string {
	rel, err := filepath.Rel(am.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
