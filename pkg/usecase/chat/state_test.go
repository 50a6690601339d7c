package chat_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/thairag/thairag/pkg/usecase/chat"
)

func TestNext(t *testing.T) {
	testCases := []struct {
		name  string
		state chat.State
		event chat.Event
		want  chat.State
	}{
		{"decide to retrieve", chat.StateDecide, chat.EventToolRequested, chat.StateRetrieve},
		{"decide to respond", chat.StateDecide, chat.EventAnswered, chat.StateRespond},
		{"retrieve to respond", chat.StateRetrieve, chat.EventRetrieved, chat.StateRespond},
		{"respond to done", chat.StateRespond, chat.EventResponded, chat.StateDone},
		{"decide cannot finish", chat.StateDecide, chat.EventResponded, chat.StateInvalidForTest},
		{"retrieve cannot request again", chat.StateRetrieve, chat.EventToolRequested, chat.StateInvalidForTest},
		{"respond cannot retrieve", chat.StateRespond, chat.EventToolRequested, chat.StateInvalidForTest},
		{"respond cannot loop", chat.StateRespond, chat.EventRetrieved, chat.StateInvalidForTest},
		{"done is terminal", chat.StateDone, chat.EventAnswered, chat.StateInvalidForTest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, chat.NextForTest(tc.state, tc.event), tc.want)
		})
	}
}

func TestNoCycles(t *testing.T) {
	events := []chat.Event{chat.EventToolRequested, chat.EventAnswered, chat.EventRetrieved, chat.EventResponded}

	// every path from decide reaches done or an invalid state within three transitions
	var walk func(s chat.State, depth int)
	walk = func(s chat.State, depth int) {
		if s == chat.StateDone || s == chat.StateInvalidForTest {
			return
		}
		gt.True(t, depth < 3)
		for _, e := range events {
			walk(chat.NextForTest(s, e), depth+1)
		}
	}
	walk(chat.StateDecide, 0)
}

func TestStateString(t *testing.T) {
	gt.Equal(t, chat.StateDecide.String(), "decide")
	gt.Equal(t, chat.StateRetrieve.String(), "retrieve")
	gt.Equal(t, chat.StateRespond.String(), "respond")
	gt.Equal(t, chat.StateInvalidForTest.String(), "invalid")
	gt.Equal(t, chat.EventToolRequested.String(), "tool_requested")
}
