package repository

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrUnreachable is joined to errors caused by the vector store not answering
var ErrUnreachable = goerr.New("vector store unreachable")

// Repository is a vector store of document chunks. Implementations are safe for concurrent use.
type Repository interface {
	// EnsureCollection creates the collection for vectors of the given dimension unless it
	// already exists
	EnsureCollection(ctx context.Context, dimension int) error

	// Search returns up to limit passages nearest to vector, best first. A missing
	// collection yields no passages.
	Search(ctx context.Context, vector []float32, limit int) ([]*model.Passage, error)

	// PutChunks upserts chunks with their embeddings
	PutChunks(ctx context.Context, chunks []*model.Chunk) error

	// ListSources returns the distinct source paths, sorted
	ListSources(ctx context.Context) ([]string, error)

	// CountChunks returns the number of chunks of a source
	CountChunks(ctx context.Context, source string) (int, error)

	// DeleteSource removes every chunk of a source
	DeleteSource(ctx context.Context, source string) error

	Close() error
}

// IsUnreachable reports whether err was caused by the vector store not answering
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// classify marks transport failures with ErrUnreachable
func classify(err error) error {
	if unreachableCode(err) {
		return errors.Join(ErrUnreachable, err)
	}
	return err
}

func unreachableCode(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

func isNotFound(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.NotFound
}
