package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"skupair/internal/sku"
)

// Watcher runs generation for every order sheet dropped into a directory.
// Rapid saves are debounced so editors and sync clients that write in
// chunks trigger one run per file.
type Watcher struct {
	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	dir       string
	opts      WatcherOptions
	log       *zap.Logger
	debounce  map[string]time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
	processed int
}

// WatcherOptions configures a drop-folder watcher. NewGenerator is called
// once per sheet: the registry scopes uniqueness to one batch, so every
// file gets a fresh one.
type WatcherOptions struct {
	// Date applies to sheets without a date column. Empty means the day
	// the sheet is processed.
	Date         string
	ImportTables bool
	Debounce     time.Duration
	NewGenerator func() *sku.Generator
	Log          *zap.Logger
}

// NewWatcher creates a watcher for the given drop directory. The
// directory is created when missing.
func NewWatcher(dir string, opts WatcherOptions) (*Watcher, error) {
	if opts.NewGenerator == nil {
		return nil, fmt.Errorf("watcher needs a generator factory")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create drop directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		fsw:      fsw,
		dir:      dir,
		opts:     opts,
		log:      opts.Log,
		debounce: make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Run sweeps sheets already in the drop directory, then watches until the
// context is cancelled. A clean cancellation returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.sweep(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Start begins watching in a goroutine. Calling Start twice is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("watching drop directory", zap.String("dir", w.dir))
	go w.loop(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.fsw.Close(); err != nil {
		w.log.Warn("failed to close fs watcher", zap.Error(err))
	}
}

// Processed reports how many sheets have been run so far.
func (w *Watcher) Processed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processed
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-ticker.C:
			w.processSettled()
		}
	}
}

// handleEvent records a sheet arrival for debounced processing.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !isInputSheet(event.Name) {
		return
	}
	w.mu.Lock()
	w.debounce[event.Name] = time.Now()
	w.mu.Unlock()
}

// processSettled runs sheets whose last event is older than the debounce
// window.
func (w *Watcher) processSettled() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, last := range w.debounce {
		if now.Sub(last) >= w.opts.Debounce {
			settled = append(settled, path)
			delete(w.debounce, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		w.process(path)
	}
}

// sweep processes sheets that were already in the directory when the
// watcher started.
func (w *Watcher) sweep(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !isInputSheet(entry.Name()) {
			continue
		}
		w.process(filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// process runs one sheet end to end. Failures are logged and isolated:
// one bad file never stops the watcher.
func (w *Watcher) process(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}

	rows, err := ReadFile(path)
	if err != nil {
		w.log.Warn("skipping unreadable sheet", zap.String("file", path), zap.Error(err))
		return
	}
	if len(rows) == 0 {
		w.log.Warn("sheet has no order rows", zap.String("file", path))
		return
	}

	date := w.opts.Date
	if date == "" {
		date = time.Now().Format("0102")
	}

	proc := NewProcessor(w.opts.NewGenerator(), w.log)
	results := proc.Process(rows, date)

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	paths, err := WriteOutputs(filepath.Dir(path), stem, results, w.opts.ImportTables)
	if err != nil {
		w.log.Error("failed to write outputs", zap.String("file", path), zap.Error(err))
		return
	}

	w.mu.Lock()
	w.processed++
	w.mu.Unlock()

	w.log.Info("sheet processed",
		zap.String("file", path),
		zap.Int("rows", len(results)),
		zap.Strings("outputs", paths))
}

// isInputSheet filters watch events down to order sheets. Outputs land
// beside inputs, so generated files must not count or each run would
// trigger the next.
func isInputSheet(path string) bool {
	base := filepath.Base(path)
	if !strings.EqualFold(filepath.Ext(base), ".csv") {
		return false
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	for _, suffix := range []string{
		strings.TrimSuffix(resultsSuffix, ".csv"),
		strings.TrimSuffix(singleSuffix, ".csv"),
		strings.TrimSuffix(comboSuffix, ".csv"),
	} {
		if strings.HasSuffix(stem, suffix) {
			return false
		}
	}
	return true
}
