package tool

import (
	"github.com/thairag/thairag/pkg/embedding"
	"github.com/thairag/thairag/pkg/repository"
)

// Client contains shared resources that tools can use
type Client struct {
	Repo     repository.Repository
	Embedder embedding.Embedder
}
