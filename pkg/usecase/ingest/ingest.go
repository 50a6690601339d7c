package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/adapter"
	"github.com/thairag/thairag/pkg/embedding"
	"github.com/thairag/thairag/pkg/model"
	"github.com/thairag/thairag/pkg/repository"
	"github.com/thairag/thairag/pkg/textproc"
	"github.com/thairag/thairag/pkg/utils/logging"
)

const DefaultBatchSize = 64

// Ingester adds documents to the vector store
type Ingester struct {
	repo     repository.Repository
	embedder embedding.Embedder
	storage  adapter.Storage
	splitter *textproc.Splitter

	batchSize int
	now       func() time.Time
}

type Option func(*Ingester)

// WithStorage enables gs:// documents
func WithStorage(storage adapter.Storage) Option {
	return func(x *Ingester) {
		x.storage = storage
	}
}

func WithSplitter(splitter *textproc.Splitter) Option {
	return func(x *Ingester) {
		x.splitter = splitter
	}
}

func WithBatchSize(n int) Option {
	return func(x *Ingester) {
		x.batchSize = n
	}
}

// WithClock replaces the time used for missing effective dates
func WithClock(now func() time.Time) Option {
	return func(x *Ingester) {
		x.now = now
	}
}

func New(repo repository.Repository, embedder embedding.Embedder, opts ...Option) (*Ingester, error) {
	x := &Ingester{
		repo:      repo,
		embedder:  embedder,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}

	if x.repo == nil || x.embedder == nil {
		return nil, goerr.New("ingester needs a repository and an embedder")
	}
	if x.batchSize <= 0 {
		return nil, goerr.New("batch size must be positive", goerr.V("batch_size", x.batchSize))
	}
	if x.splitter == nil {
		splitter, err := textproc.NewSplitter()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create splitter")
		}
		x.splitter = splitter
	}

	return x, nil
}

// Result summarizes one AddDocument call
type Result struct {
	Source        string
	EffectiveDate string
	// AlreadyIndexed is true when the source had chunks and nothing was added
	AlreadyIndexed bool
	Pages          int
	Chunks         int
	// Skipped counts chunks that could not be embedded
	Skipped int
}

// SourceName is the value stored as metadata.source for a document path
func SourceName(path string) string {
	if adapter.IsGCSURL(path) {
		return path
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// AddDocument loads, splits, embeds and stores a document. A source that already has chunks
// is skipped.
func (x *Ingester) AddDocument(ctx context.Context, path, effectiveDate string) (*Result, error) {
	source := SourceName(path)
	ctx, logger := logging.Extend(ctx, "source", source)

	result := &Result{
		Source:        source,
		EffectiveDate: ParseEffectiveDate(ctx, effectiveDate, x.now()).Format(model.EffectiveDateLayout),
	}

	n, err := x.repo.CountChunks(ctx, source)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count chunks", goerr.V("source", source))
	}
	if n > 0 {
		logger.Info("document already indexed", "chunks", n)
		result.AlreadyIndexed = true
		return result, nil
	}

	pages, err := x.loadPages(ctx, path)
	if err != nil {
		return nil, err
	}
	result.Pages = len(pages)

	if written, err := x.index(ctx, pages, result); err != nil {
		if written {
			x.rollback(ctx, source)
		}
		return nil, err
	}

	logger.Info("document indexed",
		"pages", result.Pages, "chunks", result.Chunks, "skipped", result.Skipped,
		"effective_date", result.EffectiveDate)
	return result, nil
}

// index embeds and stores the pages. written reports whether any chunk may have reached the
// store, including by a failed write.
func (x *Ingester) index(ctx context.Context, pages []Page, result *Result) (written bool, err error) {
	logger := logging.From(ctx)
	source := result.Source

	var batch []*model.Chunk
	dimension := 0

	for _, page := range pages {
		for _, piece := range x.splitter.Split(page.Text) {
			text := textproc.Preprocess(piece)
			if strings.TrimSpace(text) == "" {
				continue
			}

			vec, err := x.embedder.Embed(ctx, text)
			if errors.Is(err, embedding.ErrUnavailable) {
				logger.Debug("chunk skipped", "page", page.Number, "error", err)
				result.Skipped++
				continue
			}
			if err != nil {
				return written, goerr.Wrap(err, "failed to embed chunk", goerr.V("source", source), goerr.V("page", page.Number))
			}

			if dimension == 0 {
				dimension = len(vec)
				if err := x.repo.EnsureCollection(ctx, dimension); err != nil {
					return written, goerr.Wrap(err, "failed to ensure collection", goerr.V("dimension", dimension))
				}
			}

			batch = append(batch, &model.Chunk{
				ID:   model.NewChunkID(),
				Text: text,
				Metadata: model.Metadata{
					Source:        source,
					Page:          page.Number,
					EffectiveDate: result.EffectiveDate,
				},
				Embedding: vec,
				CreatedAt: x.now(),
			})

			if len(batch) >= x.batchSize {
				written = true
				if err := x.repo.PutChunks(ctx, batch); err != nil {
					return written, goerr.Wrap(err, "failed to put chunks", goerr.V("source", source))
				}
				result.Chunks += len(batch)
				batch = nil
			}
		}
	}

	if len(batch) > 0 {
		written = true
		if err := x.repo.PutChunks(ctx, batch); err != nil {
			return written, goerr.Wrap(err, "failed to put chunks", goerr.V("source", source))
		}
		result.Chunks += len(batch)
	}
	return written, nil
}

// rollback removes the chunks of a partly indexed source so that a later add starts over
func (x *Ingester) rollback(ctx context.Context, source string) {
	ctx = context.WithoutCancel(ctx)
	if err := x.repo.DeleteSource(ctx, source); err != nil {
		logging.From(ctx).Error("failed to remove partly indexed source", "source", source, "error", err)
		return
	}
	logging.From(ctx).Warn("partly indexed source removed", "source", source)
}

// ListSources returns the indexed sources in lexical order
func (x *Ingester) ListSources(ctx context.Context) ([]string, error) {
	sources, err := x.repo.ListSources(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list sources")
	}
	return sources, nil
}

// DeleteSource removes every chunk of a source
func (x *Ingester) DeleteSource(ctx context.Context, path string) error {
	source := SourceName(path)
	if err := x.repo.DeleteSource(ctx, source); err != nil {
		return goerr.Wrap(err, "failed to delete source", goerr.V("source", source))
	}
	logging.From(ctx).Info("source deleted", "source", source)
	return nil
}
