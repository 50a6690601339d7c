package tool

import (
	"context"

	"github.com/thairag/thairag/pkg/model"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// Tool represents a capability that can be called by the LLM
type Tool interface {
	// Spec returns the tool specification for Gemini function calling
	Spec() *genai.Tool

	// Init prepares the tool with shared resources. A tool returning false is not registered.
	Init(ctx context.Context, client *Client) (bool, error)

	// Execute runs the tool with the given function call
	Execute(ctx context.Context, fc genai.FunctionCall) (*Result, error)

	// Prompt returns additional information to be added to the system prompt
	// Returns empty string if no additional prompt is needed
	Prompt(ctx context.Context) string

	// Flags returns CLI flags for this tool
	// Returns nil if no flags are needed
	Flags() []cli.Flag
}

// Result is the outcome of a tool call. Content is sent back to the model and Artifact is kept
// with the tool message.
type Result struct {
	Content  string
	Artifact []*model.Passage
}
