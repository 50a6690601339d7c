package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thairag/thairag/pkg/usecase/chat"
	"github.com/thairag/thairag/pkg/utils/logging"
)

const inboxSize = 4

// connection binds one websocket to one session. readPump feeds the inbox, the turn runner
// executes turns one by one and writePump owns every write to the socket.
type connection struct {
	server  *Server
	ws      *websocket.Conn
	session *chat.Session

	ctx    context.Context
	cancel context.CancelFunc

	inbox chan string
	send  chan Frame
}

func (s *Server) serve(parent context.Context, ws *websocket.Conn) {
	session := s.manager.Open(parent)
	ctx, cancel := context.WithCancel(parent)
	ctx, logger := logging.Extend(ctx, "session_id", session.ID())

	c := &connection{
		server:  s,
		ws:      ws,
		session: session,
		ctx:     ctx,
		cancel:  cancel,
		inbox:   make(chan string, inboxSize),
		send:    make(chan Frame, 64),
	}

	go func() {
		select {
		case <-s.closing:
		case <-ctx.Done():
		}
		cancel()
		_ = ws.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	go func() {
		defer wg.Done()
		c.runTurns()
		close(c.send)
	}()

	c.readPump()
	cancel()
	close(c.inbox)
	wg.Wait()

	if err := s.manager.Close(parent, session.ID()); err != nil {
		logger.Warn("failed to close session", "error", err)
	}
}

func (c *connection) readPump() {
	logger := logging.From(c.ctx)

	c.ws.SetReadLimit(c.server.maxMessageSize)
	pongWait := 2 * c.server.pingInterval
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				c.ctx.Err() == nil {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if mt != websocket.TextMessage {
			c.push(Frame{Source: SourceError, Error: "only text messages are accepted"})
			continue
		}

		select {
		case c.inbox <- string(data):
		default:
			c.push(errorFrame(&chat.TurnError{Kind: chat.ErrTurnInProgress}))
		}
	}
}

func (c *connection) writePump() {
	logger := logging.From(c.ctx)
	ticker := time.NewTicker(c.server.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.server.writeTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			raw, err := json.Marshal(frame)
			if err != nil {
				logger.Error("failed to marshal frame", "error", err)
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				logger.Debug("websocket write failed", "error", err)
				c.cancel()
				c.drain()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.server.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				c.drain()
				return
			}
		}
	}
}

// drain discards frames until the runner stops so that it never blocks on a dead socket
func (c *connection) drain() {
	for range c.send {
	}
}

// push queues a frame. It returns false once the connection is gone.
func (c *connection) push(frame Frame) bool {
	select {
	case c.send <- frame:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *connection) runTurns() {
	for query := range c.inbox {
		if c.ctx.Err() != nil {
			continue
		}
		c.runTurn(query)
	}
}

func (c *connection) runTurn(query string) {
	logger := logging.From(c.ctx)
	ctx, cancel := context.WithTimeout(c.ctx, c.server.turnTimeout)
	defer cancel()

	for fragment, err := range c.session.Stream(ctx, strings.TrimSpace(query)) {
		if err != nil {
			logger.Warn("turn failed", "error", err)
			c.push(errorFrame(err))
			return
		}
		if !c.push(fragmentFrame(fragment)) {
			return
		}
	}

	switch {
	case c.ctx.Err() != nil:
		return
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		c.push(errorFrame(&chat.TurnError{Kind: chat.ErrModelInvocation, Err: ctx.Err()}))
		return
	}

	c.push(endFrame(c.session.Citations()))
}
