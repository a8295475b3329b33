package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fontserve/fontserve/fonthandler"
	"github.com/fontserve/fontserve/logging"
)

// WebSocket keepalive constants: time allowed to write a message, time
// allowed to wait for a pong before the peer is considered gone, and the
// ping period, which must stay under pongWait.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Session binds one websocket connection to one fonthandler.Connection for
// the lifetime of a client. It has no inbound message routing to do:
// fonthandler.Proxy is a one-way server-to-client notification contract,
// so the read side exists only to drive the pong handler and detect
// disconnects.
type Session struct {
	wsConn     *websocket.Conn
	proxy      *WSProxy
	connection *fonthandler.Connection
	closeOnce  sync.Once
	done       chan struct{}
}

// NewSession wraps wsConn as a fonthandler.Connection identified by
// clientUUID. Call Serve to register it with h and block until the
// connection drops.
func NewSession(wsConn *websocket.Conn, clientUUID string) *Session {
	proxy := NewWSProxy(wsConn)
	return &Session{
		wsConn:     wsConn,
		proxy:      proxy,
		connection: fonthandler.NewConnection(clientUUID, proxy),
		done:       make(chan struct{}),
	}
}

// Connection returns the fonthandler.Connection backing this session, for
// callers that need it before or after Serve (e.g. to subscribe it to
// patterns as part of an initial handshake).
func (s *Session) Connection() *fonthandler.Connection { return s.connection }

// Serve registers the session with h, runs the keepalive ping loop and the
// read pump until the connection drops or ctx is cancelled, then
// unregisters and closes it. It blocks until the session ends.
func (s *Session) Serve(ctx context.Context, h *fonthandler.Handler) error {
	return h.UseConnection(ctx, s.connection, func() error {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.pingLoop(ctx)
		}()

		s.readPump()
		s.Close()
		wg.Wait()
		return nil
	})
}

// readPump keeps the read deadline alive via pong frames and blocks until
// the connection errors or closes. There is no message decode/route step:
// nothing flows from client to server besides pongs.
func (s *Session) readPump() {
	s.wsConn.SetReadLimit(maxMessageSize)
	_ = s.wsConn.SetReadDeadline(time.Now().Add(pongWait))
	s.wsConn.SetPongHandler(func(string) error {
		return s.wsConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.wsConn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				logging.Logger.Warnw("websocket read error",
					logging.FieldClientUUID, s.connection.ClientUUID, logging.FieldError, err)
			}
			return
		}
	}
}

// pingLoop sends a ping at pingPeriod until the session closes or ctx is
// cancelled. It shares proxy.writeMu with WSProxy's JSON writes: gorilla's
// connection does not tolerate concurrent writers, and fonthandler
// dispatches Proxy calls from its own goroutines at any time.
func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.proxy.writeMu.Lock()
			_ = s.wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.wsConn.WriteMessage(websocket.PingMessage, nil)
			s.proxy.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close closes the underlying connection exactly once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.wsConn.Close()
	})
	return err
}
