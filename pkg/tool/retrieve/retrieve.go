package retrieve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/embedding"
	"github.com/thairag/thairag/pkg/model"
	"github.com/thairag/thairag/pkg/repository"
	"github.com/thairag/thairag/pkg/tool"
	"github.com/thairag/thairag/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// FunctionName is the name the model calls the tool by
const FunctionName = "retrieve"

const (
	DefaultTopK    = 10
	DefaultMaxTopK = 50
)

var (
	// ErrInvalidQuery is returned for an empty query
	ErrInvalidQuery = goerr.New("query must not be empty")
	// ErrEmbedFailed marks failures of the embedding provider
	ErrEmbedFailed = goerr.New("failed to embed query")
	// ErrSearchFailed marks failures of the vector store
	ErrSearchFailed = goerr.New("failed to search passages")
)

type input struct {
	Query string `json:"query" jsonschema:"Search query in Thai. Rewrite the user's question into the key terms to look up."`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Number of passages to return. Omit to use the default."`
}

// Tool searches the document store for passages relevant to a query. It is read-only.
type Tool struct {
	topK    int64
	maxTopK int64

	repo     repository.Repository
	embedder embedding.Embedder
	schema   *genai.Schema
}

var _ tool.Tool = (*Tool)(nil)

// New creates a new retrieve tool
func New() *Tool {
	return &Tool{
		topK:    DefaultTopK,
		maxTopK: DefaultMaxTopK,
	}
}

// Flags returns CLI flags for the retrieve tool
func (t *Tool) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "retrieve-top-k",
			Usage:       "Default number of passages returned by a retrieval",
			Value:       DefaultTopK,
			Sources:     cli.EnvVars("THAIRAG_RETRIEVE_TOP_K"),
			Destination: &t.topK,
		},
		&cli.IntFlag{
			Name:        "retrieve-max-top-k",
			Usage:       "Upper bound of top_k the model may request",
			Value:       DefaultMaxTopK,
			Sources:     cli.EnvVars("THAIRAG_RETRIEVE_MAX_TOP_K"),
			Destination: &t.maxTopK,
		},
	}
}

// Init initializes the retrieve tool
func (t *Tool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	if client == nil || client.Repo == nil || client.Embedder == nil {
		return false, goerr.New("retrieve tool needs a repository and an embedder")
	}
	if t.topK <= 0 {
		return false, goerr.New("retrieve-top-k must be positive", goerr.V("top_k", t.topK))
	}
	if t.maxTopK < t.topK {
		return false, goerr.New("retrieve-max-top-k must not be less than retrieve-top-k",
			goerr.V("top_k", t.topK), goerr.V("max_top_k", t.maxTopK))
	}

	schema, err := tool.SchemaFor[input]()
	if err != nil {
		return false, goerr.Wrap(err, "failed to build retrieve schema")
	}

	t.repo = client.Repo
	t.embedder = client.Embedder
	t.schema = schema
	return true, nil
}

// Spec returns the tool specification for Gemini function calling
func (t *Tool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name: FunctionName,
				Description: fmt.Sprintf("Search the indexed Thai documents (laws, regulations, announcements) "+
					"and return the most relevant passages with their source file, page and effective date. "+
					"Returns %d passages unless top_k is given (max %d).", t.topK, t.maxTopK),
				Parameters: t.schema,
			},
		},
	}
}

// Prompt returns additional information to be added to the system prompt
func (t *Tool) Prompt(ctx context.Context) string {
	return fmt.Sprintf("### Tool `%s`\n\n"+
		"Call `%s` for any question that may be answered by the indexed documents, "+
		"such as a section number, a regulation, a drug or a procedure. "+
		"Answer greetings and small talk directly without calling it.", FunctionName, FunctionName)
}

// Execute runs the tool with the given function call
func (t *Tool) Execute(ctx context.Context, fc genai.FunctionCall) (*tool.Result, error) {
	raw, err := json.Marshal(fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal arguments")
	}

	var in input
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, goerr.Wrap(err, "failed to parse input parameters", goerr.V("args", string(raw)))
	}

	content, passages, err := t.Retrieve(ctx, in.Query, in.TopK)
	if err != nil {
		return nil, err
	}
	return &tool.Result{Content: content, Artifact: passages}, nil
}

// Retrieve embeds the query and returns the nearest passages, best first, with their
// serialized form. Zero topK selects the configured default.
func (t *Tool) Retrieve(ctx context.Context, query string, topK int) (string, []*model.Passage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil, ErrInvalidQuery
	}

	limit := t.limit(topK)
	logger := logging.From(ctx).With("query", query, "top_k", limit)

	vec, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return "", nil, errors.Join(ErrEmbedFailed, err)
	}

	passages, err := t.repo.Search(ctx, vec, limit)
	if err != nil {
		return "", nil, errors.Join(ErrSearchFailed, err)
	}

	logger.Debug("passages retrieved", "count", len(passages))
	return Serialize(passages), passages, nil
}

func (t *Tool) limit(topK int) int {
	switch {
	case topK <= 0:
		return int(t.topK)
	case int64(topK) > t.maxTopK:
		return int(t.maxTopK)
	default:
		return topK
	}
}

// Serialize renders passages in order, one block per passage. Pages are shown one-based. An
// effective date that does not parse is left out.
func Serialize(passages []*model.Passage) string {
	blocks := make([]string, 0, len(passages))
	for i, p := range passages {
		if p == nil {
			continue
		}
		header := fmt.Sprintf("Rank: %d | source: %s | page: %d", i+1, p.Metadata.Source, p.Metadata.Page+1)
		if effective := p.Metadata.EffectiveTime(); !effective.IsZero() {
			header += " | effective_date: " + effective.Format(model.EffectiveDateLayout)
		}
		blocks = append(blocks, header+"\n"+p.Text)
	}
	return strings.Join(blocks, "\n\n")
}
