package chat

import (
	"github.com/thairag/thairag/pkg/model"
	"google.golang.org/genai"
)

// toContents converts a message log into Gemini contents. System messages are returned
// separately as parts of the system instruction. Consecutive messages of the same Gemini
// role are merged into one content.
func toContents(msgs []*model.Message) ([]*genai.Part, []*genai.Content) {
	var system []*genai.Part
	var contents []*genai.Content

	for _, msg := range msgs {
		if msg == nil {
			continue
		}

		var role string
		var parts []*genai.Part

		switch msg.Role {
		case model.RoleSystem:
			if msg.Content != "" {
				system = append(system, &genai.Part{Text: msg.Content})
			}
			continue

		case model.RoleUser:
			role = genai.RoleUser
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}

		case model.RoleAssistant:
			role = genai.RoleModel
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   string(call.ID),
						Name: call.Name,
						Args: call.Args,
					},
					ThoughtSignature: call.Signature,
				})
			}

		case model.RoleTool:
			role = genai.RoleUser
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       string(msg.ToolCallID),
					Name:     msg.Name,
					Response: map[string]any{"output": msg.Content},
				},
			})
		}

		if len(parts) == 0 {
			continue
		}

		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	return system, contents
}

// conversationMessages keeps user and system messages and assistant messages that did not
// request a tool. Tool traffic is dropped since its content reaches the model as context.
func conversationMessages(msgs []*model.Message) []*model.Message {
	out := make([]*model.Message, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case model.RoleUser, model.RoleSystem:
			out = append(out, msg)
		case model.RoleAssistant:
			if !msg.HasToolCalls() {
				out = append(out, msg)
			}
		}
	}
	return out
}

// trailingToolMessages returns the maximal run of tool messages at the end of the log, in log order
func trailingToolMessages(msgs []*model.Message) []*model.Message {
	i := len(msgs)
	for i > 0 && msgs[i-1].Role == model.RoleTool {
		i--
	}
	return msgs[i:]
}
