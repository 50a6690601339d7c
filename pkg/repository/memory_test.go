package repository_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/thairag/thairag/pkg/model"
	"github.com/thairag/thairag/pkg/repository"
)

func newChunk(source string, page int, text string, vec ...float32) *model.Chunk {
	return &model.Chunk{
		ID:        model.NewChunkID(),
		Text:      text,
		Metadata:  model.Metadata{Source: source, Page: page, EffectiveDate: "2024-01-01"},
		Embedding: vec,
	}
}

func TestMemorySearch(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	gt.NoError(t, repo.EnsureCollection(ctx, 2))

	gt.NoError(t, repo.PutChunks(ctx, []*model.Chunk{
		newChunk("law.pdf", 50, "มาตรา 51", 1, 0),
		newChunk("law.pdf", 10, "มาตรา 11", 0.7, 0.7),
		newChunk("drug.pdf", 3, "ยาแก้ปวด", 0, 1),
	}))

	passages, err := repo.Search(ctx, []float32{1, 0.1}, 2)
	gt.NoError(t, err)
	gt.A(t, passages).Length(2)
	gt.Equal(t, passages[0].Text, "มาตรา 51")
	gt.Equal(t, passages[0].Metadata.Page, 50)
	gt.Equal(t, passages[1].Text, "มาตรา 11")
	gt.True(t, passages[0].Score >= passages[1].Score)

	again, err := repo.Search(ctx, []float32{1, 0.1}, 2)
	gt.NoError(t, err)
	for i := range passages {
		gt.Equal(t, again[i].Text, passages[i].Text)
	}
}

func TestMemorySearchEmpty(t *testing.T) {
	passages, err := repository.NewMemory().Search(context.Background(), []float32{1, 0}, 10)
	gt.NoError(t, err)
	gt.A(t, passages).Length(0)
}

func TestMemoryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	gt.NoError(t, repo.EnsureCollection(ctx, 3))

	gt.Error(t, repo.PutChunks(ctx, []*model.Chunk{newChunk("a.pdf", 0, "x", 1, 0)}))

	_, err := repo.Search(ctx, []float32{1, 0}, 1)
	gt.Error(t, err)

	gt.Error(t, repo.EnsureCollection(ctx, 0))
}

func TestMemorySources(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()

	gt.NoError(t, repo.PutChunks(ctx, []*model.Chunk{
		newChunk("b.pdf", 0, "b0", 1, 0),
		newChunk("a.pdf", 0, "a0", 0, 1),
		newChunk("a.pdf", 1, "a1", 1, 1),
	}))

	sources, err := repo.ListSources(ctx)
	gt.NoError(t, err)
	gt.Equal(t, sources, []string{"a.pdf", "b.pdf"})

	n, err := repo.CountChunks(ctx, "a.pdf")
	gt.NoError(t, err)
	gt.Equal(t, n, 2)

	gt.NoError(t, repo.DeleteSource(ctx, "a.pdf"))

	n, err = repo.CountChunks(ctx, "a.pdf")
	gt.NoError(t, err)
	gt.Equal(t, n, 0)

	sources, err = repo.ListSources(ctx)
	gt.NoError(t, err)
	gt.Equal(t, sources, []string{"b.pdf"})
}

func TestMemoryUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()

	c := newChunk("a.pdf", 0, "old", 1, 0)
	gt.NoError(t, repo.PutChunks(ctx, []*model.Chunk{c}))

	updated := *c
	updated.Text = "new"
	gt.NoError(t, repo.PutChunks(ctx, []*model.Chunk{&updated}))

	n, err := repo.CountChunks(ctx, "a.pdf")
	gt.NoError(t, err)
	gt.Equal(t, n, 1)

	passages, err := repo.Search(ctx, []float32{1, 0}, 1)
	gt.NoError(t, err)
	gt.Equal(t, passages[0].Text, "new")
}

func TestMemoryRepository(t *testing.T) {
	testRepository(t, repository.NewMemory())
}
