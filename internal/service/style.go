package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/joeblew999/plat-climate/internal/layer"
)

const stylesFile = "styles.json"

// ErrNotFound is returned when a resource does not exist.
var ErrNotFound = errors.New("not found")

// StyleService persists per-layer style overrides in styles.json under the
// data directory.
type StyleService struct {
	dataDir string
	styles  map[string]layer.StyleConfig
	mu      sync.RWMutex
	bus     *EventBus
	logger  *slog.Logger
}

// NewStyleService creates a style service and loads any saved overrides.
func NewStyleService(dataDir string, bus *EventBus, logger *slog.Logger) *StyleService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &StyleService{
		dataDir: dataDir,
		styles:  make(map[string]layer.StyleConfig),
		bus:     bus,
		logger:  logger,
	}
	s.loadFromDisk()
	return s
}

// Style returns the override for id, or an empty config when none is saved.
func (s *StyleService) Style(ctx context.Context, id string) (layer.StyleConfig, error) {
	if err := ctx.Err(); err != nil {
		return layer.StyleConfig{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.styles[id], nil
}

// IDs returns the layer ids with a saved override, sorted.
func (s *StyleService) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.styles))
	for id := range s.styles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Put validates and saves an override. An empty override removes the entry.
func (s *StyleService) Put(ctx context.Context, id string, cfg layer.StyleConfig) (layer.StyleConfig, error) {
	if err := ctx.Err(); err != nil {
		return layer.StyleConfig{}, err
	}
	if id == "" {
		return layer.StyleConfig{}, fmt.Errorf("style: empty layer id")
	}
	if err := cfg.Validate(); err != nil {
		return layer.StyleConfig{}, fmt.Errorf("style %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	action := ActionUpdated
	if _, exists := s.styles[id]; !exists {
		action = ActionCreated
	}
	if cfg.IsEmpty() {
		delete(s.styles, id)
		action = ActionDeleted
	} else {
		s.styles[id] = cfg
	}
	if err := s.saveToDisk(); err != nil {
		return layer.StyleConfig{}, err
	}
	s.bus.Publish(ResourceStyles, action, id)
	return cfg, nil
}

// Delete removes the override for id.
func (s *StyleService) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.styles[id]; !exists {
		return fmt.Errorf("style %q: %w", id, ErrNotFound)
	}
	delete(s.styles, id)
	if err := s.saveToDisk(); err != nil {
		return err
	}
	s.bus.Publish(ResourceStyles, ActionDeleted, id)
	return nil
}

func (s *StyleService) configFile() string {
	return filepath.Join(s.dataDir, stylesFile)
}

func (s *StyleService) loadFromDisk() {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("read styles", "file", s.configFile(), "error", err)
		}
		return
	}

	var styles map[string]layer.StyleConfig
	if err := json.Unmarshal(data, &styles); err != nil {
		s.logger.Warn("styles file unreadable, starting empty", "file", s.configFile(), "error", err)
		return
	}
	if styles == nil {
		return
	}
	for id, cfg := range styles {
		if cfg.IsEmpty() || cfg.Validate() != nil {
			s.logger.Warn("discarding saved style", "layer", id)
			delete(styles, id)
		}
	}
	s.styles = styles
}

// saveToDisk writes a temp file and renames it over styles.json.
func (s *StyleService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(s.styles, "", "  ")
	if err != nil {
		return fmt.Errorf("encode styles: %w", err)
	}

	tmp := s.configFile() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write styles: %w", err)
	}
	if err := os.Rename(tmp, s.configFile()); err != nil {
		return fmt.Errorf("replace styles: %w", err)
	}
	return nil
}
