package ingest_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/thairag/thairag/pkg/embedding"
	"github.com/thairag/thairag/pkg/model"
	"github.com/thairag/thairag/pkg/repository"
	"github.com/thairag/thairag/pkg/textproc"
	"github.com/thairag/thairag/pkg/usecase/ingest"
)

const lawText = "มาตรา 1 ผู้ป่วยมีสิทธิ\n\nมาตรา 2 แพทย์มีหน้าที่\n\nมาตรา 3 ยาต้องมีฉลาก"

type mockEmbedder struct {
	embedFn func(text string) ([]float32, error)
	calls   int
}

func (m *mockEmbedder) Name() string { return "mock" }

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.embedFn != nil {
		return m.embedFn(text)
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

type countingRepo struct {
	repository.Repository
	puts []int
}

func (r *countingRepo) PutChunks(ctx context.Context, chunks []*model.Chunk) error {
	r.puts = append(r.puts, len(chunks))
	return r.Repository.PutChunks(ctx, chunks)
}

type mockStorage struct {
	objects map[string][]byte
}

func (m *mockStorage) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	data, ok := m.objects[url]
	if !ok {
		return nil, goerr.New("object not found", goerr.V("url", url))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockStorage) Close() error { return nil }

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newIngester(t *testing.T, repo repository.Repository, emb embedding.Embedder, opts ...ingest.Option) *ingest.Ingester {
	splitter, err := textproc.NewSplitter(textproc.WithChunkSize(25), textproc.WithOverlap(0))
	gt.NoError(t, err)

	opts = append([]ingest.Option{ingest.WithSplitter(splitter), ingest.WithClock(func() time.Time { return fixedNow })}, opts...)
	x, err := ingest.New(repo, emb, opts...)
	gt.NoError(t, err)
	return x
}

func TestAddDocument(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	emb := &mockEmbedder{}
	x := newIngester(t, repo, emb)

	path := writeFile(t, "law.txt", lawText)
	result, err := x.AddDocument(ctx, path, "2024-01-01")
	gt.NoError(t, err)
	gt.False(t, result.AlreadyIndexed)
	gt.Equal(t, result.Source, ingest.SourceName(path))
	gt.Equal(t, result.Pages, 1)
	gt.Equal(t, result.Chunks, 3)
	gt.Equal(t, result.Skipped, 0)
	gt.Equal(t, result.EffectiveDate, "2024-01-01")

	n, err := repo.CountChunks(ctx, result.Source)
	gt.NoError(t, err)
	gt.Equal(t, n, 3)

	passages, err := repo.Search(ctx, []float32{1, 0, 0}, 10)
	gt.NoError(t, err)
	gt.A(t, passages).Length(3)
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		gt.Equal(t, p.Metadata.Page, 0)
		gt.Equal(t, p.Metadata.EffectiveDate, "2024-01-01")
		gt.S(t, p.Text).NotContains(" ")
		texts = append(texts, p.Text)
	}
	gt.S(t, strings.Join(texts, "|")).Contains("มาตรา1ผู้ป่วยมีสิทธิ")

	t.Run("second add is skipped", func(t *testing.T) {
		calls := emb.calls
		again, err := x.AddDocument(ctx, path, "2024-01-01")
		gt.NoError(t, err)
		gt.True(t, again.AlreadyIndexed)
		gt.Equal(t, again.Chunks, 0)
		gt.Equal(t, emb.calls, calls)

		n, err := repo.CountChunks(ctx, result.Source)
		gt.NoError(t, err)
		gt.Equal(t, n, 3)
	})
}

func TestAddDocumentEffectiveDateFallback(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	x := newIngester(t, repo, &mockEmbedder{})

	result, err := x.AddDocument(ctx, writeFile(t, "law.md", lawText), "1 ม.ค. 2567")
	gt.NoError(t, err)
	gt.Equal(t, result.EffectiveDate, "2025-03-01")
}

func TestAddDocumentSkipsUnembeddable(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	emb := &mockEmbedder{
		embedFn: func(text string) ([]float32, error) {
			if strings.Contains(text, "มาตรา3") {
				return nil, embedding.ErrUnavailable
			}
			return []float32{1, 0}, nil
		},
	}
	x := newIngester(t, repo, emb)

	result, err := x.AddDocument(ctx, writeFile(t, "law.txt", lawText), "")
	gt.NoError(t, err)
	gt.Equal(t, result.Chunks, 2)
	gt.Equal(t, result.Skipped, 1)
}

func TestAddDocumentEmbedFailure(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	emb := &mockEmbedder{
		embedFn: func(text string) ([]float32, error) {
			return nil, errors.New("quota exceeded")
		},
	}
	x := newIngester(t, repo, emb)

	_, err := x.AddDocument(ctx, writeFile(t, "law.txt", lawText), "")
	gt.Error(t, err)

	sources, err := repo.ListSources(ctx)
	gt.NoError(t, err)
	gt.A(t, sources).Length(0)
}

func TestAddDocumentFailureRemovesWrittenChunks(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	path := writeFile(t, "law.txt", lawText)

	emb := &mockEmbedder{}
	emb.embedFn = func(text string) ([]float32, error) {
		if emb.calls == 2 {
			return nil, errors.New("quota exceeded")
		}
		return []float32{float32(len(text)), 1, 0}, nil
	}
	x := newIngester(t, repo, emb, ingest.WithBatchSize(1))

	_, err := x.AddDocument(ctx, path, "")
	gt.Error(t, err)

	n, err := repo.CountChunks(ctx, ingest.SourceName(path))
	gt.NoError(t, err)
	gt.Equal(t, n, 0)

	// the next add indexes the whole document
	result, err := x.AddDocument(ctx, path, "")
	gt.NoError(t, err)
	gt.False(t, result.AlreadyIndexed)
	gt.Equal(t, result.Chunks, 3)
}

type failingPutRepo struct {
	repository.Repository
	puts   int
	failAt int
}

func (r *failingPutRepo) PutChunks(ctx context.Context, chunks []*model.Chunk) error {
	r.puts++
	if r.puts == r.failAt {
		return errors.New("connection reset")
	}
	return r.Repository.PutChunks(ctx, chunks)
}

func TestAddDocumentPutFailureRemovesWrittenChunks(t *testing.T) {
	ctx := context.Background()
	repo := &failingPutRepo{Repository: repository.NewMemory(), failAt: 2}
	path := writeFile(t, "law.txt", lawText)
	x := newIngester(t, repo, &mockEmbedder{}, ingest.WithBatchSize(1))

	_, err := x.AddDocument(ctx, path, "")
	gt.Error(t, err)

	n, err := repo.CountChunks(ctx, ingest.SourceName(path))
	gt.NoError(t, err)
	gt.Equal(t, n, 0)
}

func TestAddDocumentBatches(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{Repository: repository.NewMemory()}
	x := newIngester(t, repo, &mockEmbedder{}, ingest.WithBatchSize(2))

	result, err := x.AddDocument(ctx, writeFile(t, "law.txt", lawText), "")
	gt.NoError(t, err)
	gt.Equal(t, result.Chunks, 3)
	gt.Equal(t, repo.puts, []int{2, 1})
}

func TestAddDocumentFromStorage(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	url := "gs://docs/laws/law.txt"

	t.Run("with storage", func(t *testing.T) {
		storage := &mockStorage{objects: map[string][]byte{url: []byte(lawText)}}
		x := newIngester(t, repo, &mockEmbedder{}, ingest.WithStorage(storage))

		result, err := x.AddDocument(ctx, url, "")
		gt.NoError(t, err)
		gt.Equal(t, result.Source, url)
		gt.Equal(t, result.Chunks, 3)
	})

	t.Run("without storage", func(t *testing.T) {
		x := newIngester(t, repository.NewMemory(), &mockEmbedder{})
		_, err := x.AddDocument(ctx, url, "")
		gt.Error(t, err)
	})
}

func TestAddDocumentUnsupported(t *testing.T) {
	x := newIngester(t, repository.NewMemory(), &mockEmbedder{})

	_, err := x.AddDocument(context.Background(), writeFile(t, "law.docx", "x"), "")
	gt.True(t, errors.Is(err, ingest.ErrUnsupportedFormat))

	_, err = x.AddDocument(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), "")
	gt.Error(t, err)
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	x := newIngester(t, repo, &mockEmbedder{})

	a := writeFile(t, "a.txt", lawText)
	b := writeFile(t, "b.txt", "ยาพาราเซตามอล")
	_, err := x.AddDocument(ctx, a, "")
	gt.NoError(t, err)
	_, err = x.AddDocument(ctx, b, "")
	gt.NoError(t, err)

	sources, err := x.ListSources(ctx)
	gt.NoError(t, err)
	gt.A(t, sources).Length(2)

	gt.NoError(t, x.DeleteSource(ctx, a))

	sources, err = x.ListSources(ctx)
	gt.NoError(t, err)
	gt.Equal(t, sources, []string{ingest.SourceName(b)})
}

func TestNewValidation(t *testing.T) {
	_, err := ingest.New(nil, &mockEmbedder{})
	gt.Error(t, err)

	_, err = ingest.New(repository.NewMemory(), &mockEmbedder{}, ingest.WithBatchSize(0))
	gt.Error(t, err)
}

func TestLoadPDF(t *testing.T) {
	t.Run("not a pdf", func(t *testing.T) {
		data := []byte("plain text")
		_, err := ingest.LoadPDF(bytes.NewReader(data), int64(len(data)))
		gt.Error(t, err)
	})

	t.Run("file", func(t *testing.T) {
		path := os.Getenv("TEST_PDF_PATH")
		if path == "" {
			t.Skip("TEST_PDF_PATH is not set")
		}
		data, err := os.ReadFile(path)
		gt.NoError(t, err)

		pages, err := ingest.LoadPDF(bytes.NewReader(data), int64(len(data)))
		gt.NoError(t, err)
		gt.A(t, pages).Longer(0)
		gt.Equal(t, pages[0].Number, 0)
	})
}
