package core

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reloads a configuration file whenever it is written and
// hands the parsed result to a callback. Invalid documents are logged and
// ignored.
type ConfigWatcher struct {
	path     string
	onChange func(*Config)
	logger   *Logger

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

func NewConfigWatcher(path string, logger *Logger, onChange func(*Config)) (*ConfigWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors often replace the file instead of
	// writing it in place.
	if err := fsWatch.Add(filepath.Dir(path)); err != nil {
		fsWatch.Close()
		return nil, err
	}

	cw := &ConfigWatcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		logger:   logger,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.start()
	return cw, nil
}

func (cw *ConfigWatcher) start() {
	defer cw.wg.Done()
	for {
		select {
		case e, ok := <-cw.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != cw.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				cw.reload()
			}

		case err, ok := <-cw.fsnotify.Errors:
			if !ok {
				return
			}
			cw.logger.Errorf("config watcher: %s", err)

		case <-cw.done:
			return
		}
	}
}

func (cw *ConfigWatcher) reload() {
	cfg, err := LoadConfig(cw.path)
	if err != nil {
		cw.logger.Warnf("ignoring config change: %s", err)
		return
	}
	cw.logger.Infof("config %s reloaded", cw.path)
	cw.onChange(cfg)
}

func (cw *ConfigWatcher) Close() error {
	if cw.isClosed {
		return errors.New("config watcher already closed")
	}
	cw.isClosed = true
	close(cw.done)
	err := cw.fsnotify.Close()
	cw.wg.Wait()
	return err
}
