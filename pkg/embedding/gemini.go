package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/adapter"
	"github.com/thairag/thairag/pkg/textproc"
)

// Gemini embeds text with the embedding model of the Gemini client
type Gemini struct {
	client adapter.Gemini
}

func NewGemini(client adapter.Gemini) *Gemini {
	return &Gemini{client: client}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	cleaned := textproc.Preprocess(text)
	if cleaned == "" {
		return nil, goerr.Wrap(ErrUnavailable, "text is empty after cleaning")
	}

	resp, err := g.client.Embedding(ctx, cleaned)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed text", goerr.V("length", len(cleaned)))
	}

	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.Wrap(ErrUnavailable, "no embedding values returned")
	}

	return resp.Embeddings[0].Values, nil
}
