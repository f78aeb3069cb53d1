// Package knowledge holds the reference documents available for retrieval.
//
// Readers take an immutable Snapshot and never block. Writers build a new
// snapshot and swap it in atomically, so maintenance never corrupts a
// ranking that is already in flight.
package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/rectify/internal/model"
)

// Snapshot is an immutable view of the knowledge store with precomputed
// term statistics. Safe for concurrent reads.
type Snapshot struct {
	version uint64
	builtAt time.Time
	sources []model.KnowledgeSource // Sorted by ID
	terms   []map[string]int        // Per-source term frequencies, parallel to sources
	docFreq map[string]int
}

// Version increases with every write to the index
func (s *Snapshot) Version() uint64 { return s.version }

// BuiltAt is when this snapshot was built
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Len returns the number of sources
func (s *Snapshot) Len() int { return len(s.sources) }

// Source returns the i-th source in ID order
func (s *Snapshot) Source(i int) model.KnowledgeSource { return s.sources[i] }

// Terms returns the term frequencies of the i-th source. The map must not be modified.
func (s *Snapshot) Terms(i int) map[string]int { return s.terms[i] }

// DocFreq returns how many sources contain term
func (s *Snapshot) DocFreq(term string) int { return s.docFreq[term] }

// Sources returns a copy of all sources in ID order
func (s *Snapshot) Sources() []model.KnowledgeSource {
	out := make([]model.KnowledgeSource, len(s.sources))
	copy(out, s.sources)
	return out
}

// Get looks up a source by ID
func (s *Snapshot) Get(id string) (model.KnowledgeSource, bool) {
	i := sort.Search(len(s.sources), func(i int) bool { return s.sources[i].ID >= id })
	if i < len(s.sources) && s.sources[i].ID == id {
		return s.sources[i], true
	}
	return model.KnowledgeSource{}, false
}

func buildSnapshot(version uint64, sources []model.KnowledgeSource) *Snapshot {
	sorted := make([]model.KnowledgeSource, len(sources))
	copy(sorted, sources)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	snap := &Snapshot{
		version: version,
		builtAt: time.Now().UTC(),
		sources: sorted,
		terms:   make([]map[string]int, len(sorted)),
		docFreq: make(map[string]int),
	}
	for i, src := range sorted {
		tf := TermFrequencies(src.Text())
		snap.terms[i] = tf
		for term := range tf {
			snap.docFreq[term]++
		}
	}
	return snap
}

// Index is the in-memory knowledge store used for ranking
type Index struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // Serializes writers
	logger  zerolog.Logger
}

// NewIndex creates an index holding the given sources
func NewIndex(sources ...model.KnowledgeSource) (*Index, error) {
	idx := &Index{logger: zerolog.Nop()}
	idx.current.Store(buildSnapshot(0, nil))
	if len(sources) > 0 {
		if err := idx.Replace(sources); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// SetLogger attaches a logger for maintenance events
func (idx *Index) SetLogger(logger zerolog.Logger) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.logger = logger
}

// Snapshot returns the current immutable view
func (idx *Index) Snapshot() *Snapshot {
	return idx.current.Load()
}

// Replace swaps in a new set of sources
func (idx *Index) Replace(sources []model.KnowledgeSource) error {
	prepared, err := prepare(sources)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.swap(prepared)
	return nil
}

// Upsert adds or replaces sources by ID
func (idx *Index) Upsert(sources ...model.KnowledgeSource) error {
	prepared, err := prepare(sources)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	merged := make(map[string]model.KnowledgeSource)
	for _, src := range idx.current.Load().sources {
		merged[src.ID] = src
	}
	for _, src := range prepared {
		merged[src.ID] = src
	}
	idx.swap(values(merged))
	return nil
}

// Remove deletes sources by ID; unknown IDs are ignored
func (idx *Index) Remove(ids ...string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []model.KnowledgeSource
	for _, src := range idx.current.Load().sources {
		if !drop[src.ID] {
			kept = append(kept, src)
		}
	}
	idx.swap(kept)
}

// Reload replaces the index contents with everything in repo
func (idx *Index) Reload(ctx context.Context, repo Repository) error {
	sources, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list knowledge sources: %w", err)
	}
	if err := idx.Replace(sources); err != nil {
		return err
	}
	idx.logger.Debug().Int("sources", len(sources)).Uint64("version", idx.Snapshot().Version()).Msg("knowledge index reloaded")
	return nil
}

// Watch reloads from repo every interval until ctx is done. Reload errors
// are logged and the previous snapshot stays in service.
func (idx *Index) Watch(ctx context.Context, repo Repository, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := idx.Reload(ctx, repo); err != nil {
				idx.logger.Warn().Err(err).Msg("knowledge reload failed, keeping previous snapshot")
			}
		}
	}
}

// swap must be called with mu held
func (idx *Index) swap(sources []model.KnowledgeSource) {
	next := buildSnapshot(idx.current.Load().version+1, sources)
	idx.current.Store(next)
}

// prepare validates sources and fills in bounded excerpts
func prepare(sources []model.KnowledgeSource) ([]model.KnowledgeSource, error) {
	seen := make(map[string]bool, len(sources))
	out := make([]model.KnowledgeSource, 0, len(sources))
	for _, src := range sources {
		src.ID = strings.TrimSpace(src.ID)
		if src.ID == "" {
			return nil, fmt.Errorf("knowledge source %q has no id", src.Title)
		}
		if seen[src.ID] {
			return nil, fmt.Errorf("duplicate knowledge source id %q", src.ID)
		}
		seen[src.ID] = true

		src.Title = strings.TrimSpace(src.Title)
		if src.Excerpt == "" {
			src.Excerpt = model.MakeExcerpt(src.FullText, model.MaxExcerptRunes)
		} else {
			src.Excerpt = model.MakeExcerpt(src.Excerpt, model.MaxExcerptRunes)
		}
		out = append(out, src)
	}
	return out, nil
}

func values(m map[string]model.KnowledgeSource) []model.KnowledgeSource {
	out := make([]model.KnowledgeSource, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
