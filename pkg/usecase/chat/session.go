package chat

import (
	"context"
	"iter"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/model"
	"github.com/thairag/thairag/pkg/utils/logging"
)

// ErrEmptyMessage is returned for a blank user message. No turn is started.
var ErrEmptyMessage = goerr.New("message must not be empty")

// Session is one conversation with its own message log and citations. Turns of a session
// run one at a time; a turn started while another runs fails with ErrTurnInProgress.
type Session struct {
	id        model.SessionID
	engine    *Engine
	createdAt time.Time
	closed    atomic.Bool

	// turn is held for the whole duration of a turn
	turn sync.Mutex

	mu        sync.RWMutex
	messages  []*model.Message
	citations model.CitationMap
}

// Reply is the outcome of a completed turn
type Reply struct {
	Text   string
	Origin model.Origin
	// Citations is set when the turn retrieved passages
	Citations model.CitationMap
}

func newSession(id model.SessionID, engine *Engine) *Session {
	return &Session{
		id:        id,
		engine:    engine,
		createdAt: time.Now(),
		citations: model.CitationMap{},
	}
}

func (s *Session) ID() model.SessionID { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Messages returns a snapshot of the log
func (s *Session) Messages() []*model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Citations returns a copy of the citations of the latest retrieval
func (s *Session) Citations() model.CitationMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.citations.Clone()
}

func (s *Session) append(msgs ...*model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
}

// commit appends the messages of a completed turn. A nil citations keeps the current map.
func (s *Session) commit(msgs []*model.Message, citations model.CitationMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	if citations != nil {
		s.citations = citations
	}
}

// Stream runs one turn and yields its fragments as they are generated. Every call starts a
// new turn. A failed turn yields one error and ends. Stopping the iteration or cancelling ctx
// ends the turn without committing it.
func (s *Session) Stream(ctx context.Context, query string) iter.Seq2[*model.Fragment, error] {
	return func(yield func(*model.Fragment, error) bool) {
		_, err := s.run(ctx, query, func(f *model.Fragment) bool {
			return yield(f, nil)
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

// Send runs one turn to completion and returns the reply
func (s *Session) Send(ctx context.Context, query string) (*Reply, error) {
	reply, err := s.run(ctx, query, func(*model.Fragment) bool { return true })
	if err != nil {
		return nil, err
	}
	if reply == nil {
		cause := context.Cause(ctx)
		if cause == nil {
			cause = context.Canceled
		}
		return nil, goerr.Wrap(cause, "turn cancelled", goerr.V("session_id", s.id))
	}
	return reply, nil
}

// run returns a nil reply and a nil error when the turn was cancelled or emit returned false
func (s *Session) run(ctx context.Context, query string, emit func(*model.Fragment) bool) (*Reply, error) {
	if s.closed.Load() {
		return nil, goerr.Wrap(ErrSessionClosed, "session is closed", goerr.V("session_id", s.id))
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyMessage
	}

	if !s.turn.TryLock() {
		return nil, &TurnError{Kind: ErrTurnInProgress}
	}
	defer s.turn.Unlock()

	ctx, logger := logging.Extend(ctx, "session_id", s.id)
	logger.Debug("turn started", "query", query)

	s.append(model.NewUserMessage(query))

	t := &turn{
		session: s,
		engine:  s.engine,
		history: s.Messages(),
		emit:    emit,
	}
	return t.run(ctx)
}
