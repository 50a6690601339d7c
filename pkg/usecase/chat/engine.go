package chat

import (
	"bytes"
	"context"
	_ "embed"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/adapter"
	"github.com/thairag/thairag/pkg/tool"
	"google.golang.org/genai"
)

//go:embed prompt/decide.md
var decidePromptRaw string

//go:embed prompt/respond.md
var respondPromptRaw string

var (
	decidePromptTmpl  = template.Must(template.New("decide").Parse(decidePromptRaw))
	respondPromptTmpl = template.Must(template.New("respond").Parse(respondPromptRaw))
)

const (
	DefaultMaxWords        = 80
	DefaultMaxOutputTokens = 1024
	DefaultTemperature     = 0.5
)

// Engine runs turns of all sessions. It holds no per-session state and is safe for
// concurrent use.
type Engine struct {
	gemini   adapter.Gemini
	registry *tool.Registry

	maxWords        int
	maxOutputTokens int32
	temperature     float32
}

type EngineOption func(*Engine)

// WithMaxWords sets the answer length asked of the model in RESPOND
func WithMaxWords(n int) EngineOption {
	return func(e *Engine) {
		e.maxWords = n
	}
}

// WithMaxOutputTokens bounds the answer generated in RESPOND
func WithMaxOutputTokens(n int32) EngineOption {
	return func(e *Engine) {
		e.maxOutputTokens = n
	}
}

func WithTemperature(t float32) EngineOption {
	return func(e *Engine) {
		e.temperature = t
	}
}

// NewEngine creates an engine. The registry must be initialized.
func NewEngine(gemini adapter.Gemini, registry *tool.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		gemini:          gemini,
		registry:        registry,
		maxWords:        DefaultMaxWords,
		maxOutputTokens: DefaultMaxOutputTokens,
		temperature:     DefaultTemperature,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = tool.New()
	}
	return e
}

func (e *Engine) decideConfig(ctx context.Context, system []*genai.Part) (*genai.GenerateContentConfig, error) {
	var buf bytes.Buffer
	if err := decidePromptTmpl.Execute(&buf, map[string]any{
		"Today": time.Now().Format("2006-01-02"),
		"Tools": e.registry.Prompts(ctx),
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute decide prompt template")
	}

	thinkingBudget := int32(0)
	return &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(buf.String(), system),
		Temperature:       genai.Ptr(e.temperature),
		Tools:             e.registry.Specs(),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}, nil
}

func (e *Engine) respondConfig(docs string, system []*genai.Part) (*genai.GenerateContentConfig, error) {
	var buf bytes.Buffer
	if err := respondPromptTmpl.Execute(&buf, map[string]any{
		"Context":  docs,
		"MaxWords": e.maxWords,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute respond prompt template")
	}

	thinkingBudget := int32(0)
	return &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(buf.String(), system),
		Temperature:       genai.Ptr(e.temperature),
		MaxOutputTokens:   e.maxOutputTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}, nil
}

func systemInstruction(prompt string, extra []*genai.Part) *genai.Content {
	parts := append([]*genai.Part{{Text: prompt}}, extra...)
	return &genai.Content{Parts: parts}
}
