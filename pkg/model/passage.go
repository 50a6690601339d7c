package model

import (
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
)

// EffectiveDateLayout is the storage format of Metadata.EffectiveDate
const EffectiveDateLayout = "2006-01-02"

// Metadata is the provenance of a chunk of source text
type Metadata struct {
	// Source is the originating document path
	Source string `json:"source" firestore:"source"`
	// Page is zero-based
	Page          int    `json:"page" firestore:"page"`
	EffectiveDate string `json:"effective_date,omitempty" firestore:"effective_date,omitempty"`
}

// EffectiveTime parses EffectiveDate. Zero time is returned if it is missing or malformed.
func (m Metadata) EffectiveTime() time.Time {
	t, err := time.Parse(EffectiveDateLayout, m.EffectiveDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Passage is a retrieved unit of source text. Passages are not modified after retrieval.
type Passage struct {
	Text     string
	Metadata Metadata
	Score    float32
}

type ChunkID string

// NewChunkID generates a new unique ChunkID. Qdrant accepts only UUID or integer point ids.
func NewChunkID() ChunkID {
	return ChunkID(uuid.New().String())
}

// Chunk is an ingested piece of a document with its embedding
type Chunk struct {
	ID        ChunkID            `firestore:"id"`
	Text      string             `firestore:"page_content"`
	Metadata  Metadata           `firestore:"metadata"`
	Embedding firestore.Vector32 `firestore:"embedding"`
	CreatedAt time.Time          `firestore:"created_at"`
}
