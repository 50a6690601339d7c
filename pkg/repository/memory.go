package repository

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/model"
)

// Memory is a brute-force cosine store kept in process memory
type Memory struct {
	mu        sync.RWMutex
	dimension int
	chunks    []*model.Chunk
	index     map[model.ChunkID]int
}

var _ Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{index: map[model.ChunkID]int{}}
}

func (m *Memory) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return goerr.New("dimension must be positive", goerr.V("dimension", dimension))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimension == 0 {
		m.dimension = dimension
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, vector []float32, limit int) ([]*model.Passage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dimension != 0 && len(vector) != m.dimension {
		return nil, goerr.New("vector dimension mismatch",
			goerr.V("expected", m.dimension), goerr.V("actual", len(vector)))
	}

	type scored struct {
		chunk *model.Chunk
		score float32
	}
	results := make([]scored, 0, len(m.chunks))
	for _, c := range m.chunks {
		results = append(results, scored{chunk: c, score: cosine(vector, c.Embedding)})
	}
	slices.SortStableFunc(results, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})

	if limit < len(results) {
		results = results[:limit]
	}

	passages := make([]*model.Passage, 0, len(results))
	for _, r := range results {
		passages = append(passages, &model.Passage{
			Text:     r.chunk.Text,
			Metadata: r.chunk.Metadata,
			Score:    r.score,
		})
	}
	return passages, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func (m *Memory) PutChunks(ctx context.Context, chunks []*model.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chunks {
		if m.dimension != 0 && len(c.Embedding) != m.dimension {
			return goerr.New("vector dimension mismatch",
				goerr.V("id", c.ID), goerr.V("expected", m.dimension), goerr.V("actual", len(c.Embedding)))
		}
	}

	for _, c := range chunks {
		copied := *c
		if i, ok := m.index[c.ID]; ok {
			m.chunks[i] = &copied
			continue
		}
		m.index[c.ID] = len(m.chunks)
		m.chunks = append(m.chunks, &copied)
	}
	return nil
}

func (m *Memory) ListSources(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sources []string
	for _, c := range m.chunks {
		sources = append(sources, c.Metadata.Source)
	}
	slices.Sort(sources)
	return slices.Compact(sources), nil
}

func (m *Memory) CountChunks(ctx context.Context, source string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, c := range m.chunks {
		if c.Metadata.Source == source {
			n++
		}
	}
	return n, nil
}

func (m *Memory) DeleteSource(ctx context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.Metadata.Source != source {
			kept = append(kept, c)
		}
	}
	clear(m.chunks[len(kept):])
	m.chunks = kept

	m.index = make(map[model.ChunkID]int, len(m.chunks))
	for i, c := range m.chunks {
		m.index[c.ID] = i
	}
	return nil
}

func (m *Memory) Close() error { return nil }
