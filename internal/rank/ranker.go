// Package rank scores knowledge sources against a report by weighted
// lexical overlap.
package rank

import (
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/rectify/internal/knowledge"
	"github.com/ppiankov/rectify/internal/model"
)

// DefaultShardThreshold is the corpus size above which scoring is split
// across goroutines
const DefaultShardThreshold = 256

// Ranker ranks the current knowledge snapshot against reports
type Ranker struct {
	index          *knowledge.Index
	shardThreshold int
}

// NewRanker creates a ranker over index
func NewRanker(index *knowledge.Index) *Ranker {
	return &Ranker{
		index:          index,
		shardThreshold: DefaultShardThreshold,
	}
}

// CorpusSize returns the number of sources currently indexed
func (r *Ranker) CorpusSize() int {
	return r.index.Snapshot().Len()
}

// Rank returns up to k sources ordered by descending relevance, ties
// broken by ascending ID. An empty store yields an empty list.
func (r *Ranker) Rank(report model.Report, k int) []model.RankedSource {
	return rankSnapshot(r.index.Snapshot(), report.RawText, k, r.shardThreshold)
}

// weightedTerm is a report term with its weight against the corpus
type weightedTerm struct {
	term   string
	weight float64
}

// reportWeights returns the weighted report terms that occur somewhere in
// the corpus, in lexical order so float sums are reproducible.
func reportWeights(snap *knowledge.Snapshot, text string) ([]weightedTerm, float64) {
	tf := knowledge.TermFrequencies(text)
	n := float64(snap.Len())

	terms := make([]string, 0, len(tf))
	for term := range tf {
		if snap.DocFreq(term) > 0 {
			terms = append(terms, term)
		}
	}
	sort.Strings(terms)

	weights := make([]weightedTerm, len(terms))
	total := 0.0
	for i, term := range terms {
		w := float64(tf[term]) * math.Log(1+n/float64(snap.DocFreq(term)))
		weights[i] = weightedTerm{term: term, weight: w}
		total += w
	}
	return weights, total
}

func rankSnapshot(snap *knowledge.Snapshot, text string, k, shardThreshold int) []model.RankedSource {
	ranked := []model.RankedSource{}
	if k <= 0 || snap.Len() == 0 {
		return ranked
	}

	weights, total := reportWeights(snap, text)
	if total == 0 {
		return ranked
	}

	scores := make([]float64, snap.Len())
	scoreRange := func(lo, hi int) {
		for i := lo; i < hi; i++ {
			scores[i] = relevance(snap.Terms(i), weights, total)
		}
	}

	if snap.Len() <= shardThreshold {
		scoreRange(0, snap.Len())
	} else {
		workers := runtime.GOMAXPROCS(0)
		size := (snap.Len() + workers - 1) / workers

		var g errgroup.Group
		for lo := 0; lo < snap.Len(); lo += size {
			lo, hi := lo, min(lo+size, snap.Len())
			g.Go(func() error {
				scoreRange(lo, hi)
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, score := range scores {
		if score <= 0 {
			continue
		}
		src := snap.Source(i)
		ranked = append(ranked, model.RankedSource{
			SourceID:  src.ID,
			Title:     src.Title,
			Excerpt:   src.Excerpt,
			Relevance: score,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		return ranked[i].SourceID < ranked[j].SourceID
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// relevance is the share of report weight covered by a source, in [0,1]
func relevance(sourceTerms map[string]int, weights []weightedTerm, total float64) float64 {
	covered := 0.0
	for _, wt := range weights {
		if sourceTerms[wt.term] > 0 {
			covered += wt.weight
		}
	}
	return math.Min(1, covered/total)
}
