package adapter_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/thairag/thairag/pkg/adapter"
	"google.golang.org/genai"
)

func newTestGemini(t *testing.T, opts ...adapter.GeminiOption) *adapter.GeminiClient {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}
	location := os.Getenv("TEST_GEMINI_LOCATION")
	if location == "" {
		location = "us-central1"
	}

	client, err := adapter.NewGemini(context.Background(), projectID, location, opts...)
	gt.NoError(t, err)
	return client
}

func TestGenerateContent(t *testing.T) {
	client := newTestGemini(t)
	ctx := context.Background()

	contents := []*genai.Content{
		genai.NewContentFromText("กรุงเทพมหานครเป็นเมืองหลวงของประเทศอะไร", genai.RoleUser),
	}

	resp, err := client.GenerateContent(ctx, contents, nil)
	gt.NoError(t, err)

	if resp == nil ||
		len(resp.Candidates) == 0 ||
		resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 ||
		resp.Candidates[0].Content.Parts[0].Text == "" {
		t.Fatal("unexpected response")
	}

	t.Log("response:", resp.Candidates[0].Content.Parts[0].Text)
}

func TestGenerateContentStream(t *testing.T) {
	client := newTestGemini(t)
	ctx := context.Background()

	contents := []*genai.Content{
		genai.NewContentFromText("นับเลขหนึ่งถึงห้าเป็นภาษาไทย", genai.RoleUser),
	}

	var sb strings.Builder
	chunks := 0
	for resp, err := range client.GenerateContentStream(ctx, contents, nil) {
		gt.NoError(t, err)
		chunks++
		sb.WriteString(resp.Text())
	}

	gt.Number(t, chunks).GreaterOrEqual(1)
	gt.NotEqual(t, sb.String(), "")
	t.Log("streamed:", sb.String())
}

func TestEmbedding(t *testing.T) {
	client := newTestGemini(t, adapter.WithEmbeddingDimension(768))
	ctx := context.Background()

	resp, err := client.Embedding(ctx, "มาตรา51")
	gt.NoError(t, err)
	gt.A(t, resp.Embeddings).Length(1)
	gt.A(t, resp.Embeddings[0].Values).Length(768)
}
