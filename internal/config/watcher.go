package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher watches the .env file and invokes a callback when it changes, so
// runtime settings can be reloaded without a restart.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func()

	mu      sync.Mutex
	stopped bool
	done    chan struct{}

	// debounce window: editors often produce several events per save
	debounce time.Duration
}

// NewWatcher creates a watcher for the given .env file path. An empty path
// falls back to NETSEC_ENV_FILE or ./.env.
func NewWatcher(path string, onChange func()) (*Watcher, error) {
	if path == "" {
		path = os.Getenv("NETSEC_ENV_FILE")
	}
	if path == "" {
		path = ".env"
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:     path,
		watcher:  fw,
		onChange: onChange,
		done:     make(chan struct{}),
		debounce: 500 * time.Millisecond,
	}, nil
}

// Start begins watching. Watching the directory rather than the file itself
// survives the rename-and-replace pattern editors and provisioning tools use.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go w.loop()
	log.Info().Str("file", w.path).Msg("Config watcher started")
	return nil
}

func (w *Watcher) loop() {
	var timer *time.Timer
	base := filepath.Base(w.path)

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				log.Info().Str("file", w.path).Msg("Config file changed, reloading")
				if w.onChange != nil {
					w.onChange()
				}
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

// Stop stops watching. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.done)
	w.watcher.Close()
}
