package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

// ErrUnavailable means no vector can be produced for the text. Callers treat it as "no
// relevant context" rather than a failure.
var ErrUnavailable = goerr.New("embedding unavailable")

// Embedder converts text into a fixed-size vector. Implementations are safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}
