package knowledge

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/rectify/internal/model"
)

// Repository persists knowledge sources outside the process
type Repository interface {
	List(ctx context.Context) ([]model.KnowledgeSource, error)
	Upsert(ctx context.Context, sources ...model.KnowledgeSource) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open returns the repository selected by cfg.Backend. For the memory
// backend the repository is seeded from cfg.SeedFile when one is set.
func Open(ctx context.Context, cfg model.KnowledgeConfig) (Repository, error) {
	switch cfg.Backend {
	case "", "memory":
		repo := NewMemoryRepository()
		if cfg.SeedFile != "" {
			sources, err := LoadSeedFile(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
			if err := repo.Upsert(ctx, sources...); err != nil {
				return nil, err
			}
		}
		return repo, nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	case "postgres":
		return OpenPostgres(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unsupported knowledge backend: %s", cfg.Backend)
	}
}

// MemoryRepository keeps sources in process memory
type MemoryRepository struct {
	mu      sync.RWMutex
	sources map[string]model.KnowledgeSource
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sources: make(map[string]model.KnowledgeSource)}
}

// List returns all sources ordered by ID
func (r *MemoryRepository) List(ctx context.Context) ([]model.KnowledgeSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := values(r.sources)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Upsert stores sources, replacing existing IDs
func (r *MemoryRepository) Upsert(ctx context.Context, sources ...model.KnowledgeSource) error {
	prepared, err := prepare(sources)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, src := range prepared {
		r.sources[src.ID] = src
	}
	return nil
}

// Delete removes a source; unknown IDs are not an error
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, id)
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error { return nil }

type seedFile struct {
	Sources []model.KnowledgeSource `yaml:"sources"`
}

// LoadSeedFile reads sources from a YAML file of the form
//
//	sources:
//	  - id: acr-lung-rads
//	    title: Lung-RADS
//	    full_text: ...
func LoadSeedFile(path string) ([]model.KnowledgeSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	return prepare(seed.Sources)
}

// WriteSeedFile writes sources in the format LoadSeedFile reads
func WriteSeedFile(path string, sources []model.KnowledgeSource) error {
	data, err := yaml.Marshal(seedFile{Sources: sources})
	if err != nil {
		return fmt.Errorf("marshal seed file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write seed file: %w", err)
	}
	return nil
}
