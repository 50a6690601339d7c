package retrieve_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/thairag/thairag/pkg/embedding"
	"github.com/thairag/thairag/pkg/model"
	"github.com/thairag/thairag/pkg/repository"
	"github.com/thairag/thairag/pkg/tool"
	"github.com/thairag/thairag/pkg/tool/retrieve"
	"google.golang.org/genai"
)

// keywordEmbedder maps texts containing a keyword to fixed axes
type keywordEmbedder struct {
	err error
}

func (e *keywordEmbedder) Name() string { return "keyword" }

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	switch {
	case strings.Contains(text, "51"), strings.Contains(text, "๕๑"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(text, "ยา"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

type failingRepo struct {
	repository.Repository
}

func (r *failingRepo) Search(ctx context.Context, vector []float32, limit int) ([]*model.Passage, error) {
	return nil, errors.Join(repository.ErrUnreachable, errors.New("connection refused"))
}

func setupStore(t *testing.T) repository.Repository {
	ctx := context.Background()
	repo := repository.NewMemory()
	gt.NoError(t, repo.EnsureCollection(ctx, 3))
	gt.NoError(t, repo.PutChunks(ctx, []*model.Chunk{
		{
			ID:        model.NewChunkID(),
			Text:      "มาตรา 51 ผู้ป่วยมีสิทธิได้รับข้อมูล",
			Metadata:  model.Metadata{Source: "law.pdf", Page: 50, EffectiveDate: "2024-01-01"},
			Embedding: []float32{1, 0, 0},
		},
		{
			ID:        model.NewChunkID(),
			Text:      "ยาแก้ปวดพาราเซตามอล",
			Metadata:  model.Metadata{Source: "drug.pdf", Page: 2},
			Embedding: []float32{0, 1, 0},
		},
		{
			ID:        model.NewChunkID(),
			Text:      "มาตรา 52",
			Metadata:  model.Metadata{Source: "law.pdf", Page: 51, EffectiveDate: "2024-01-01"},
			Embedding: []float32{0.8, 0.2, 0},
		},
	}))
	return repo
}

func newTool(t *testing.T, repo repository.Repository, emb embedding.Embedder) *retrieve.Tool {
	rt := retrieve.New()
	ok, err := rt.Init(context.Background(), &tool.Client{Repo: repo, Embedder: emb})
	gt.NoError(t, err)
	gt.True(t, ok)
	return rt
}

func TestRetrieve(t *testing.T) {
	rt := newTool(t, setupStore(t), &keywordEmbedder{})

	content, passages, err := rt.Retrieve(context.Background(), "มาตรา 51", 2)
	gt.NoError(t, err)
	gt.A(t, passages).Length(2)
	gt.Equal(t, passages[0].Metadata.Source, "law.pdf")
	gt.Equal(t, passages[0].Metadata.Page, 50)
	gt.Equal(t, passages[1].Metadata.Page, 51)

	gt.S(t, content).Contains("Rank: 1 | source: law.pdf | page: 51 | effective_date: 2024-01-01\nมาตรา 51")
	gt.S(t, content).Contains("Rank: 2 | source: law.pdf | page: 52")

	again, _, err := rt.Retrieve(context.Background(), "มาตรา 51", 2)
	gt.NoError(t, err)
	gt.Equal(t, again, content)
}

func TestRetrieveDefaultTopK(t *testing.T) {
	rt := newTool(t, setupStore(t), &keywordEmbedder{})

	_, passages, err := rt.Retrieve(context.Background(), "ยา", 0)
	gt.NoError(t, err)
	gt.A(t, passages).Length(3)
	gt.Equal(t, passages[0].Metadata.Source, "drug.pdf")
}

func TestRetrieveErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty query", func(t *testing.T) {
		rt := newTool(t, setupStore(t), &keywordEmbedder{})
		_, _, err := rt.Retrieve(ctx, "  ", 1)
		gt.True(t, errors.Is(err, retrieve.ErrInvalidQuery))
	})

	t.Run("embedding unavailable", func(t *testing.T) {
		rt := newTool(t, setupStore(t), &keywordEmbedder{err: embedding.ErrUnavailable})
		_, _, err := rt.Retrieve(ctx, "มาตรา 51", 1)
		gt.True(t, errors.Is(err, retrieve.ErrEmbedFailed))
		gt.True(t, errors.Is(err, embedding.ErrUnavailable))
	})

	t.Run("store unreachable", func(t *testing.T) {
		rt := newTool(t, &failingRepo{}, &keywordEmbedder{})
		_, _, err := rt.Retrieve(ctx, "มาตรา 51", 1)
		gt.True(t, errors.Is(err, retrieve.ErrSearchFailed))
		gt.True(t, repository.IsUnreachable(err))
	})
}

func TestExecute(t *testing.T) {
	rt := newTool(t, setupStore(t), &keywordEmbedder{})

	res, err := rt.Execute(context.Background(), genai.FunctionCall{
		Name: retrieve.FunctionName,
		Args: map[string]any{"query": "มาตรา 51", "top_k": float64(1)},
	})
	gt.NoError(t, err)
	gt.A(t, res.Artifact).Length(1)
	gt.S(t, res.Content).Contains("source: law.pdf")
	gt.S(t, res.Content).NotContains("Rank: 2")
}

func TestInit(t *testing.T) {
	_, err := retrieve.New().Init(context.Background(), &tool.Client{})
	gt.Error(t, err)
}

func TestSpec(t *testing.T) {
	rt := newTool(t, setupStore(t), &keywordEmbedder{})
	spec := rt.Spec()

	gt.A(t, spec.FunctionDeclarations).Length(1)
	fd := spec.FunctionDeclarations[0]
	gt.Equal(t, fd.Name, "retrieve")
	gt.V(t, fd.Parameters).NotNil()
	gt.Equal(t, fd.Parameters.Required, []string{"query"})
	gt.S(t, rt.Prompt(context.Background())).Contains("retrieve")
}

func TestSerialize(t *testing.T) {
	gt.Equal(t, retrieve.Serialize(nil), "")

	out := retrieve.Serialize([]*model.Passage{
		{Text: "a", Metadata: model.Metadata{Source: "x.pdf", Page: 0}},
		{Text: "b", Metadata: model.Metadata{Source: "y.pdf", Page: 4, EffectiveDate: "2023-05-01"}},
		{Text: "c", Metadata: model.Metadata{Source: "z.pdf", Page: 1, EffectiveDate: "1 พ.ค. 2566"}},
	})
	gt.Equal(t, out, "Rank: 1 | source: x.pdf | page: 1\na\n\n"+
		"Rank: 2 | source: y.pdf | page: 5 | effective_date: 2023-05-01\nb\n\n"+
		"Rank: 3 | source: z.pdf | page: 2\nc")
}
