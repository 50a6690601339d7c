package server

import (
	"errors"

	"github.com/thairag/thairag/pkg/model"
	"github.com/thairag/thairag/pkg/usecase/chat"
)

const (
	SourceLLM   = string(model.OriginLLM)
	SourceRAG   = string(model.OriginRAG)
	SourceEnd   = "END"
	SourceError = "ERROR"
)

// Frame is one JSON message sent to the client. Metadata is the citation map of RAG
// fragments and of the end frame, and null otherwise.
type Frame struct {
	Response string            `json:"response"`
	Source   string            `json:"source"`
	Metadata model.CitationMap `json:"metadata"`
	Error    string            `json:"error,omitempty"`
}

func fragmentFrame(f *model.Fragment) Frame {
	frame := Frame{Response: f.Text, Source: string(f.Origin)}
	if f.Origin == model.OriginRAG {
		frame.Metadata = f.Citations
	}
	return frame
}

func endFrame(citations model.CitationMap) Frame {
	if citations == nil {
		citations = model.CitationMap{}
	}
	return Frame{Source: SourceEnd, Metadata: citations}
}

func errorFrame(err error) Frame {
	return Frame{Source: SourceError, Error: errorMessage(err)}
}

// errorMessage is the text shown to the client. Causes stay in the server log.
func errorMessage(err error) string {
	var te *chat.TurnError
	switch {
	case errors.As(err, &te):
		return te.Kind.Error()
	case errors.Is(err, chat.ErrEmptyMessage):
		return chat.ErrEmptyMessage.Error()
	case errors.Is(err, chat.ErrSessionClosed):
		return chat.ErrSessionClosed.Error()
	default:
		return "internal error"
	}
}
