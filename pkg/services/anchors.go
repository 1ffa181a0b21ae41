package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// anchorsFile is the on-disk shape of the known-anchor registry.
type anchorsFile struct {
	Anchors []string `yaml:"anchors"`
}

// AnchorRegistry holds the allow-list of known memory anchors. The list is
// maintained outside this engine (documentation tooling writes it); the
// registry reloads the file when it changes so a running engine picks up new
// anchors without a restart.
type AnchorRegistry struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	anchors []string
	known   map[string]bool
}

// NewAnchorRegistry loads the registry from the given YAML file.
func NewAnchorRegistry(path string, logger *zap.Logger) (*AnchorRegistry, error) {
	r := &AnchorRegistry{
		path:   path,
		logger: logger.Named("anchor-registry"),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the registry file.
func (r *AnchorRegistry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("failed to read anchors file %s: %w", r.path, err)
	}

	var file anchorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse anchors file %s: %w", r.path, err)
	}

	known := make(map[string]bool, len(file.Anchors))
	for _, a := range file.Anchors {
		known[a] = true
	}

	r.mu.Lock()
	r.anchors = file.Anchors
	r.known = known
	r.mu.Unlock()

	r.logger.Info("Loaded anchor registry",
		zap.String("path", r.path),
		zap.Int("anchors", len(file.Anchors)))
	return nil
}

// Known reports whether the anchor is in the allow-list.
func (r *AnchorRegistry) Known(anchor string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.known[anchor]
}

// Anchors returns a copy of the current allow-list.
func (r *AnchorRegistry) Anchors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.anchors))
	copy(out, r.anchors)
	return out
}

// Watch reloads the registry whenever its file changes. Blocks until the
// context is cancelled; run it in its own goroutine. A reload failure keeps
// the previous list.
func (r *AnchorRegistry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file, which drops the
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(r.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Warn("Failed to reload anchor registry; keeping previous list",
					zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("Anchor registry watcher error", zap.Error(err))
		}
	}
}
