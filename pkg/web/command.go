package web

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/protocol"
)

const (
	// maxAuthAttempts closes a connection that keeps sending bad credentials.
	maxAuthAttempts = 5

	// commandTimeout bounds one command, including get_info sampling.
	commandTimeout = 5 * time.Second
)

// session is one authenticated command-channel connection.
type session struct {
	id        string
	conn      *websocket.Conn
	connected time.Time
}

func (s *session) send(data []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// commandHandler serves /ws: a user:password handshake, then one
// response per request frame.
func (s *Server) commandHandler() fiber.Handler {
	return websocket.New(s.handleCommandWS)
}

func (s *Server) handleCommandWS(conn *websocket.Conn) {
	sess := &session{
		id:        uuid.NewString(),
		conn:      conn,
		connected: time.Now(),
	}
	log := s.log.With("session", sess.id, "remote", conn.RemoteAddr().String())

	if !s.authenticate(sess) {
		log.Warn("command session rejected")
		return
	}

	count := s.sessions.Add(1)
	log.Info("command session opened", "sessions", count)
	defer func() {
		count := s.sessions.Add(-1)
		log.Info("command session closed",
			"sessions", count,
			"duration", time.Since(sess.connected).Round(time.Second),
		)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Debug("command session read ended", "error", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		resp := s.deps.Dispatcher.Dispatch(ctx, raw)
		cancel()

		data, err := resp.Bytes()
		if err != nil {
			log.Error("encode response failed", "title", resp.Title, "error", err)
			continue
		}
		if err := sess.send(data); err != nil {
			log.Debug("command session write failed", "error", err)
			return
		}
	}
}

// authenticate runs the credential handshake. Every wrong attempt gets
// the rejection text and another try, up to maxAuthAttempts.
func (s *Server) authenticate(sess *session) bool {
	for attempt := 0; attempt < maxAuthAttempts; attempt++ {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			return false
		}
		if s.credentialsOK(raw) {
			return sess.send([]byte(protocol.AuthAccepted)) == nil
		}
		if err := sess.send([]byte(protocol.AuthRejected)); err != nil {
			return false
		}
	}
	return false
}

func (s *Server) credentialsOK(raw []byte) bool {
	req, err := protocol.ParseRequest(raw)
	if err != nil || req.Structured() {
		return false
	}
	user, password, ok := protocol.ParseCredentials(req.Command)
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.User)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Password)) == 1
	return userOK && passOK
}
