package tls

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CertificateWatcher watches a certificate directory and reports changes to
// the files a FileProvider reads. The resolved configuration is never
// reloaded; changes only take effect after a restart.
type CertificateWatcher struct {
	dir          string
	watcher      *fsnotify.Watcher
	onChange     func(path string)
	logger       *TLSLogger
	metrics      *TLSMetricsCollector
	debounceTime time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewCertificateWatcher creates a watcher for dir. onChange may be nil.
func NewCertificateWatcher(dir string, onChange func(path string), metrics *TLSMetricsCollector, logger *slog.Logger) (*CertificateWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, NewFileWatchingError(dir, err)
	}

	return &CertificateWatcher{
		dir:          dir,
		watcher:      watcher,
		onChange:     onChange,
		logger:       NewTLSLogger(logger),
		metrics:      metrics,
		debounceTime: 250 * time.Millisecond,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// SetDebounce changes the quiet period applied per file before reporting.
func (w *CertificateWatcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceTime = d
}

// Start begins watching. The directory is watched rather than the files so
// that atomic replacements via rename are seen.
func (w *CertificateWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return NewFileWatchingError(w.dir, err)
	}
	w.running = true

	w.logger.Logger().Info("Certificate watcher started", "dir", w.dir)

	go w.watchLoop(ctx, w.debounceTime)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *CertificateWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	err := w.watcher.Close()
	<-w.doneCh
	return err
}

func (w *CertificateWatcher) watchLoop(ctx context.Context, debounce time.Duration) {
	defer close(w.doneCh)

	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isCertificateFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			name, op := event.Name, event.Op.String()
			if t, ok := timers[name]; ok {
				t.Stop()
			}
			timers[name] = time.AfterFunc(debounce, func() {
				w.report(ctx, name, op)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Logger().Error("Certificate watcher error", "error", err)

		case <-w.stopCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (w *CertificateWatcher) report(ctx context.Context, path, op string) {
	w.logger.LogCertificateChange(ctx, path, op)
	w.metrics.RecordCertificateChange(ctx, filepath.Base(path))
	if w.onChange != nil {
		w.onChange(path)
	}
}

func isCertificateFile(path string) bool {
	switch filepath.Base(path) {
	case CertFileName, KeyFileName, CAFileName:
		return true
	}
	return false
}
