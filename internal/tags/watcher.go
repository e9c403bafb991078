package tags

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"memalerts/internal/logging"
)

const reloadDebounce = 500 * time.Millisecond

// Canonicalizer serves the current vocabulary and can reload it in place.
type Canonicalizer struct {
	path    string
	maxTags int
	current atomic.Pointer[Vocabulary]
	logger  *slog.Logger
}

// NewCanonicalizer loads the vocabulary at path.
func NewCanonicalizer(path string, maxTags int, logger *slog.Logger) (*Canonicalizer, error) {
	c := &Canonicalizer{
		path:    path,
		maxTags: maxTags,
		logger:  logging.NewComponentLogger(logger, "tags"),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the vocabulary file. On error the previous vocabulary stays active.
func (c *Canonicalizer) Reload() error {
	vocab, err := LoadVocabulary(c.path)
	if err != nil {
		return err
	}
	c.current.Store(vocab)
	c.logger.Info("tag vocabulary loaded",
		logging.String("path", c.path),
		logging.Int("aliases", vocab.Len()),
		logging.EventType("vocabulary_loaded"),
	)
	return nil
}

// Canonicalize maps raw tags using the active vocabulary.
func (c *Canonicalizer) Canonicalize(raw []string) Result {
	return c.current.Load().Canonicalize(raw, c.maxTags)
}

// Watch reloads the vocabulary whenever its file changes until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (c *Canonicalizer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create vocabulary watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch vocabulary directory %s: %w", dir, err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		if err := c.Reload(); err != nil {
			logging.WarnWithContext(c.logger, "vocabulary reload failed", "vocabulary_reload_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix the YAML file; the previous vocabulary stays active"),
			)
		}
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	target := filepath.Clean(c.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, reload)
				mu.Unlock()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("vocabulary watcher error", logging.Error(err))
		case <-ctx.Done():
			return nil
		}
	}
}
