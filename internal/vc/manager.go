package vc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Player124413/PolGen-RVC/internal/index"
	"github.com/Player124413/PolGen-RVC/internal/synth"
)

// VoiceModel is the immutable bundle of one voice: synthesizer weights plus
// an optional retrieval index. Instances are shared read-only across
// conversions.
type VoiceModel struct {
	Name  string
	Synth Synthesizer
	Index *index.Store
}

// Manager loads voice bundles from a models directory, one subdirectory per
// voice. Loads are lazy, deduplicated across concurrent requests, and cached
// until Close.
type Manager struct {
	dir    string
	logger *slog.Logger

	group singleflight.Group

	mu     sync.RWMutex
	models map[string]*VoiceModel
}

func NewManager(dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		dir:    dir,
		logger: logger,
		models: make(map[string]*VoiceModel),
	}
}

// VoiceModel returns the named bundle, loading it on first use. A missing
// bundle directory is ErrModelNotFound; a present but unloadable bundle is
// ErrModelUnavailable.
func (m *Manager) VoiceModel(ctx context.Context, name string) (*VoiceModel, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("%w: invalid model name %q", ErrModelNotFound, name)
	}

	m.mu.RLock()
	cached, ok := m.models[name]
	m.mu.RUnlock()

	if ok {
		return cached, nil
	}

	result, err, _ := m.group.Do(name, func() (any, error) {
		return m.load(name)
	})
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return result.(*VoiceModel), nil
}

func (m *Manager) load(name string) (*VoiceModel, error) {
	dir := filepath.Join(m.dir, name)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	start := time.Now()

	cfg, err := synth.LoadConfig(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, name, err)
	}

	s, err := synth.Load(filepath.Join(dir, "model.safetensors"), cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, name, err)
	}

	model := &VoiceModel{Name: name, Synth: s}

	// The retrieval index is optional; a missing file is a valid bundle.
	indexPath := filepath.Join(dir, "index.safetensors")
	if _, err := os.Stat(indexPath); err == nil {
		store, err := index.Load(indexPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, name, err)
		}

		model.Index = store
	}

	m.mu.Lock()
	m.models[name] = model
	m.mu.Unlock()

	m.logger.Info("voice model loaded",
		"model", name,
		"sample_rate", s.SampleRate(),
		"has_pitch", s.HasPitch(),
		"index_vectors", model.Index.Len(),
		"duration", time.Since(start))

	return model, nil
}

// List names every bundle directory that carries a config.json.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("vc: list models: %w", err)
	}

	var names []string

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		if _, err := os.Stat(filepath.Join(m.dir, e.Name(), "config.json")); err == nil {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}
