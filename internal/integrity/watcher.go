package integrity

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the photos directory and triggers an integrity audit
// after changes settle. Rapid bursts of file events (an import, a
// cleanup) are debounced into a single audit.
type Watcher struct {
	auditor  *Auditor
	dir      string
	debounce time.Duration
	logger   *log.Logger

	watcher *fsnotify.Watcher
	onDrift func(*Report)

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewWatcher creates a Watcher over the given photos directory.
// onDrift is invoked with each non-clean report; nil means log-only.
func NewWatcher(auditor *Auditor, dir string, onDrift func(*Report), logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[integrity] ", log.LstdFlags)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		auditor:  auditor,
		dir:      dir,
		debounce: 2 * time.Second,
		logger:   logger,
		watcher:  fw,
		onDrift:  onDrift,
	}, nil
}

// Start watches until ctx is cancelled. Blocks.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.logger.Printf("Watching %s for photo drift", w.dir)
	w.wg.Add(1)
	defer w.wg.Done()

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !isImageEvent(event) {
				continue
			}
			schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("Watch error: %v", err)

		case <-fire:
			report, err := w.auditor.Check(ctx)
			if err != nil {
				w.logger.Printf("Audit failed: %v", err)
				continue
			}
			if !report.Clean() && w.onDrift != nil {
				w.onDrift(report)
			}
		}
	}
}

// isImageEvent filters the fsnotify stream down to create/remove/rename
// of image files. Chmod and writes to non-image files are ignored.
func isImageEvent(event fsnotify.Event) bool {
	if !imageExtsWatch[strings.ToLower(filepath.Ext(event.Name))] {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) ||
		event.Has(fsnotify.Rename) || event.Has(fsnotify.Write)
}

var imageExtsWatch = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".heic": true,
}
