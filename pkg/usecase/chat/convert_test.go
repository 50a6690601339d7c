package chat_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/thairag/thairag/pkg/model"
	"github.com/thairag/thairag/pkg/usecase/chat"
	"google.golang.org/genai"
)

func TestToContents(t *testing.T) {
	call := model.ToolCall{
		ID:        "call-1",
		Name:      "retrieve",
		Args:      map[string]any{"query": "มาตรา 51"},
		Signature: []byte("sig"),
	}
	msgs := []*model.Message{
		{Role: model.RoleSystem, Content: "be brief"},
		model.NewUserMessage("สวัสดี"),
		model.NewUserMessage("มาตรา 51"),
		model.NewAssistantMessage("", call),
		model.NewToolMessage(call, "Rank: 1 | source: law.pdf | page: 51\nมาตรา 51", nil),
		model.NewAssistantMessage("คำตอบ"),
		model.NewAssistantMessage(""),
	}

	system, contents := chat.ToContentsForTest(msgs)

	gt.A(t, system).Length(1)
	gt.Equal(t, system[0].Text, "be brief")

	gt.A(t, contents).Length(4)

	gt.Equal(t, contents[0].Role, genai.RoleUser)
	gt.A(t, contents[0].Parts).Length(2)
	gt.Equal(t, contents[0].Parts[1].Text, "มาตรา 51")

	gt.Equal(t, contents[1].Role, genai.RoleModel)
	gt.A(t, contents[1].Parts).Length(1)
	fc := contents[1].Parts[0].FunctionCall
	gt.V(t, fc).NotNil()
	gt.Equal(t, fc.ID, "call-1")
	gt.Equal(t, fc.Name, "retrieve")
	gt.Equal(t, contents[1].Parts[0].ThoughtSignature, []byte("sig"))

	gt.Equal(t, contents[2].Role, genai.RoleUser)
	fr := contents[2].Parts[0].FunctionResponse
	gt.V(t, fr).NotNil()
	gt.Equal(t, fr.ID, "call-1")
	gt.Equal(t, fr.Name, "retrieve")
	gt.Equal(t, fr.Response["output"], any("Rank: 1 | source: law.pdf | page: 51\nมาตรา 51"))

	gt.Equal(t, contents[3].Role, genai.RoleModel)
	gt.A(t, contents[3].Parts).Length(1)
	gt.Equal(t, contents[3].Parts[0].Text, "คำตอบ")
}

func TestConversationMessages(t *testing.T) {
	call := model.ToolCall{ID: "call-1", Name: "retrieve"}
	user := model.NewUserMessage("มาตรา 51")
	request := model.NewAssistantMessage("กำลังค้นหา", call)
	result := model.NewToolMessage(call, "ctx", nil)
	answer := model.NewAssistantMessage("คำตอบ")
	system := &model.Message{Role: model.RoleSystem, Content: "sys"}

	got := chat.ConversationMessagesForTest([]*model.Message{system, user, request, result, answer})
	gt.Equal(t, got, []*model.Message{system, user, answer})
}

func TestTrailingToolMessages(t *testing.T) {
	call := model.ToolCall{ID: "c", Name: "retrieve"}
	first := model.NewToolMessage(call, "old", nil)
	a := model.NewToolMessage(call, "a", nil)
	b := model.NewToolMessage(call, "b", nil)

	msgs := []*model.Message{
		model.NewUserMessage("q1"),
		model.NewAssistantMessage("", call),
		first,
		model.NewAssistantMessage("answer"),
		model.NewUserMessage("q2"),
		model.NewAssistantMessage("", call),
		a,
		b,
	}
	gt.Equal(t, chat.TrailingToolMessagesForTest(msgs), []*model.Message{a, b})

	gt.A(t, chat.TrailingToolMessagesForTest(msgs[:4])).Length(0)
	gt.A(t, chat.TrailingToolMessagesForTest(nil)).Length(0)
}
