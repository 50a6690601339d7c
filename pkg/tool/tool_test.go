package tool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/gt"
	"github.com/thairag/thairag/pkg/model"
	"github.com/thairag/thairag/pkg/tool"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

type mockTool struct {
	name    string
	enabled bool
	initErr error
	prompt  string
	flags   []cli.Flag
	execute func(ctx context.Context, fc genai.FunctionCall) (*tool.Result, error)
}

func (m *mockTool) Spec() *genai.Tool {
	return &genai.Tool{FunctionDeclarations: []*genai.FunctionDeclaration{{Name: m.name}}}
}

func (m *mockTool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return m.enabled, m.initErr
}

func (m *mockTool) Execute(ctx context.Context, fc genai.FunctionCall) (*tool.Result, error) {
	return m.execute(ctx, fc)
}

func (m *mockTool) Prompt(ctx context.Context) string { return m.prompt }

func (m *mockTool) Flags() []cli.Flag { return m.flags }

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	enabled := &mockTool{
		name:    "retrieve",
		enabled: true,
		prompt:  "use retrieve",
		flags:   []cli.Flag{&cli.StringFlag{Name: "a"}},
		execute: func(ctx context.Context, fc genai.FunctionCall) (*tool.Result, error) {
			return &tool.Result{
				Content:  "ok:" + fc.Args["query"].(string),
				Artifact: []*model.Passage{{Text: "p"}},
			}, nil
		},
	}
	disabled := &mockTool{
		name:   "other",
		prompt: "never shown",
		flags:  []cli.Flag{&cli.StringFlag{Name: "b"}},
	}

	r := tool.New(enabled, disabled)
	gt.A(t, r.Flags()).Length(2)
	gt.NoError(t, r.Init(ctx, &tool.Client{}))

	gt.A(t, r.Specs()).Length(1)
	gt.Equal(t, r.Specs()[0].FunctionDeclarations[0].Name, "retrieve")
	gt.True(t, r.Has("retrieve"))
	gt.False(t, r.Has("other"))
	gt.Equal(t, r.Prompts(ctx), "use retrieve")

	res, err := r.Execute(ctx, genai.FunctionCall{Name: "retrieve", Args: map[string]any{"query": "ยา"}})
	gt.NoError(t, err)
	gt.Equal(t, res.Content, "ok:ยา")
	gt.A(t, res.Artifact).Length(1)

	_, err = r.Execute(ctx, genai.FunctionCall{Name: "other"})
	gt.Error(t, err)
}

func TestRegistryInitError(t *testing.T) {
	r := tool.New(&mockTool{name: "x", initErr: errors.New("boom")})
	gt.Error(t, r.Init(context.Background(), &tool.Client{}))
}

type schemaInput struct {
	Query string   `json:"query" jsonschema:"search query"`
	TopK  int      `json:"top_k,omitempty" jsonschema:"number of passages"`
	Tags  []string `json:"tags,omitempty"`
}

func TestSchemaFor(t *testing.T) {
	schema, err := tool.SchemaFor[schemaInput]()
	gt.NoError(t, err)

	gt.Equal(t, schema.Type, genai.TypeObject)
	gt.Equal(t, schema.Required, []string{"query"})
	gt.Map(t, schema.Properties).HasKey("query")
	gt.Map(t, schema.Properties).HasKey("top_k")
	gt.Equal(t, schema.Properties["query"].Type, genai.TypeString)
	gt.Equal(t, schema.Properties["query"].Description, "search query")
	gt.Equal(t, schema.Properties["top_k"].Type, genai.TypeInteger)
	gt.Equal(t, schema.Properties["tags"].Type, genai.TypeArray)
	gt.Equal(t, schema.Properties["tags"].Items.Type, genai.TypeString)
}

func TestConvertJSONSchemaToGenai(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		s, err := tool.ConvertJSONSchemaToGenaiForTest(nil)
		gt.NoError(t, err)
		gt.True(t, s == nil)
	})

	t.Run("enum", func(t *testing.T) {
		s, err := tool.ConvertJSONSchemaToGenaiForTest(&jsonschema.Schema{
			Type: "string",
			Enum: []any{"LLM", "RAG"},
		})
		gt.NoError(t, err)
		gt.Equal(t, s.Enum, []string{"LLM", "RAG"})
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := tool.ConvertJSONSchemaToGenaiForTest(&jsonschema.Schema{Type: "null"})
		gt.Error(t, err)
	})
}
