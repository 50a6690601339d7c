package chat

import (
	"github.com/thairag/thairag/pkg/model"
	"google.golang.org/genai"
)

const StateInvalidForTest = stateInvalid

func NextForTest(s State, e Event) State {
	return next(s, e)
}

func ToContentsForTest(msgs []*model.Message) ([]*genai.Part, []*genai.Content) {
	return toContents(msgs)
}

func ConversationMessagesForTest(msgs []*model.Message) []*model.Message {
	return conversationMessages(msgs)
}

func TrailingToolMessagesForTest(msgs []*model.Message) []*model.Message {
	return trailingToolMessages(msgs)
}
