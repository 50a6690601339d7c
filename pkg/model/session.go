package model

import "github.com/google/uuid"

type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// Origin tells which engine state produced a fragment
type Origin string

const (
	// OriginLLM marks text produced while the model decides whether to retrieve
	OriginLLM Origin = "LLM"
	// OriginRAG marks text of an answer grounded on retrieved passages
	OriginRAG Origin = "RAG"
)

// Fragment is one piece of streamed output
type Fragment struct {
	Text   string
	Origin Origin
	// Citations is set only for OriginRAG fragments
	Citations CitationMap
}
