package chat

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/embedding"
	"github.com/thairag/thairag/pkg/model"
	"github.com/thairag/thairag/pkg/repository"
	"github.com/thairag/thairag/pkg/tool"
	"github.com/thairag/thairag/pkg/tool/retrieve"
	"github.com/thairag/thairag/pkg/utils/logging"
	"google.golang.org/genai"
)

// turn carries the state of one user turn. Messages produced by the turn are staged and
// reach the session log only when the turn completes.
type turn struct {
	session *Session
	engine  *Engine
	emit    func(*model.Fragment) bool

	// history is the committed log including the new user message
	history []*model.Message
	staged  []*model.Message

	calls   []model.ToolCall
	answer  string
	stopped bool
	reply   *Reply
}

func (t *turn) log() []*model.Message {
	return append(slices.Clone(t.history), t.staged...)
}

func (t *turn) run(ctx context.Context) (*Reply, error) {
	logger := logging.From(ctx)

	state := StateDecide
	for state != StateDone {
		var ev Event
		var err error

		switch state {
		case StateDecide:
			ev, err = t.decide(ctx)
		case StateRetrieve:
			ev, err = t.retrieve(ctx)
		case StateRespond:
			ev, err = t.respond(ctx)
		}

		if t.stopped || (err != nil && errors.Is(ctx.Err(), context.Canceled)) {
			logger.Debug("turn stopped", "state", state)
			return nil, nil
		}
		if err != nil {
			logger.Warn("turn failed", "state", state, "error", err)
			return nil, err
		}

		to := next(state, ev)
		if to == stateInvalid {
			return nil, goerr.New("invalid state transition",
				goerr.V("state", state.String()), goerr.V("event", ev.String()))
		}
		logger.Debug("state transition", "from", state, "event", ev, "to", to)
		state = to
	}

	return t.reply, nil
}

// decide asks the model to answer or to request retrieval. Text is emitted as LLM fragments.
func (t *turn) decide(ctx context.Context) (Event, error) {
	system, contents := toContents(t.log())
	config, err := t.engine.decideConfig(ctx, system)
	if err != nil {
		return 0, err
	}

	var text strings.Builder
	var calls []model.ToolCall

	for resp, err := range t.engine.gemini.GenerateContentStream(ctx, contents, config) {
		if err != nil {
			return 0, &TurnError{Kind: ErrModelInvocation, State: StateDecide,
				Err: goerr.Wrap(err, "failed to generate decision")}
		}

		for _, part := range responseParts(resp) {
			switch {
			case part.Thought:
				continue

			case part.FunctionCall != nil:
				call := model.ToolCall{
					ID:        model.ToolCallID(part.FunctionCall.ID),
					Name:      part.FunctionCall.Name,
					Args:      part.FunctionCall.Args,
					Signature: part.ThoughtSignature,
				}
				if call.ID == "" {
					call.ID = model.NewToolCallID()
				}
				calls = append(calls, call)

			case part.Text != "":
				text.WriteString(part.Text)
				if !t.emit(&model.Fragment{Text: part.Text, Origin: model.OriginLLM}) {
					t.stopped = true
					return 0, nil
				}
			}
		}
	}

	if len(calls) == 0 {
		if text.Len() == 0 {
			return 0, &TurnError{Kind: ErrModelInvocation, State: StateDecide,
				Err: goerr.New("model returned neither an answer nor a tool call")}
		}
		t.answer = text.String()
		t.staged = append(t.staged, model.NewAssistantMessage(t.answer))
		return EventAnswered, nil
	}

	t.calls = calls
	t.staged = append(t.staged, model.NewAssistantMessage(text.String(), calls...))
	return EventToolRequested, nil
}

// retrieve runs each requested call once and stages one tool message per call
func (t *turn) retrieve(ctx context.Context) (Event, error) {
	logger := logging.From(ctx)

	for _, call := range t.calls {
		if !t.engine.registry.Has(call.Name) {
			return 0, &TurnError{Kind: ErrModelInvocation, State: StateRetrieve,
				Err: goerr.New("model requested an unknown tool", goerr.V("tool", call.Name))}
		}

		res, err := t.engine.registry.Execute(ctx, genai.FunctionCall{
			ID:   string(call.ID),
			Name: call.Name,
			Args: call.Args,
		})

		switch {
		case err == nil:

		case errors.Is(err, embedding.ErrUnavailable), errors.Is(err, retrieve.ErrInvalidQuery):
			logger.Warn("no context available for retrieval", "tool", call.Name, "error", err)
			res = &tool.Result{}

		case repository.IsUnreachable(err):
			return 0, &TurnError{Kind: ErrVectorStoreUnreachable, State: StateRetrieve, Err: err}

		case errors.Is(err, retrieve.ErrSearchFailed):
			return 0, &TurnError{Kind: ErrRetrievalFailed, State: StateRetrieve, Err: err}

		default:
			return 0, &TurnError{Kind: ErrModelInvocation, State: StateRetrieve,
				Err: goerr.Wrap(err, "failed to execute tool", goerr.V("tool", call.Name))}
		}

		logger.Debug("tool executed", "tool", call.Name, "passages", len(res.Artifact))
		t.staged = append(t.staged, model.NewToolMessage(call, res.Content, res.Artifact))
	}

	return EventRetrieved, nil
}

// respond finishes the turn. A direct answer from decide is committed as is. Otherwise the
// model answers from the passages of the trailing tool messages, emitted as RAG fragments.
func (t *turn) respond(ctx context.Context) (Event, error) {
	if len(t.calls) == 0 {
		t.session.commit(t.staged, nil)
		t.reply = &Reply{Text: t.answer, Origin: model.OriginLLM}
		return EventResponded, nil
	}

	log := t.log()

	var passages []*model.Passage
	var docs []string
	for _, msg := range trailingToolMessages(log) {
		passages = append(passages, msg.Passages...)
		if msg.Content != "" {
			docs = append(docs, msg.Content)
		}
	}
	citations := model.NewCitationMap(passages)

	system, contents := toContents(conversationMessages(log))
	config, err := t.engine.respondConfig(strings.Join(docs, "\n\n"), system)
	if err != nil {
		return 0, err
	}

	fragmentCitations := citations.Clone()
	var text strings.Builder

	for resp, err := range t.engine.gemini.GenerateContentStream(ctx, contents, config) {
		if err != nil {
			return 0, &TurnError{Kind: ErrModelInvocation, State: StateRespond,
				Err: goerr.Wrap(err, "failed to generate answer")}
		}

		for _, part := range responseParts(resp) {
			if part.Thought || part.Text == "" {
				continue
			}
			text.WriteString(part.Text)
			if !t.emit(&model.Fragment{Text: part.Text, Origin: model.OriginRAG, Citations: fragmentCitations}) {
				t.stopped = true
				return 0, nil
			}
		}
	}

	if text.Len() == 0 {
		return 0, &TurnError{Kind: ErrModelInvocation, State: StateRespond,
			Err: goerr.New("model returned an empty answer")}
	}

	answer := model.NewAssistantMessage(text.String())
	t.session.commit(append(t.staged, answer), citations)
	t.reply = &Reply{Text: answer.Content, Origin: model.OriginRAG, Citations: citations.Clone()}
	return EventResponded, nil
}

func responseParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}
