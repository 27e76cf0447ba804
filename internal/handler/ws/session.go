package ws

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/helphub/relay-service/internal/domain/model"
	"github.com/helphub/relay-service/internal/domain/registry"
)

const (
	sinkBuffer   = 256
	writeTimeout = 10 * time.Second
	sendTimeout  = 5 * time.Second
	pongTimeout  = 60 * time.Second
	pingPeriod   = 54 * time.Second
)

// session is one push connection. The write pump is the only writer on the
// websocket; the event loop in the handler feeds inbound frames.
type session struct {
	identity     string
	conn         *websocket.Conn
	logger       *slog.Logger
	out          chan []byte
	closed       chan struct{}
	closeOnce    sync.Once
	lastActivity atomic.Int64
}

var _ registry.Session = (*session)(nil)

func newSession(identity string, conn *websocket.Conn, logger *slog.Logger) *session {
	s := &session{
		identity: identity,
		conn:     conn,
		logger:   logger,
		out:      make(chan []byte, sinkBuffer),
		closed:   make(chan struct{}),
	}
	s.Touch()
	return s
}

func (s *session) Identity() string              { return s.identity }
func (s *session) Transport() registry.Transport { return registry.TransportPush }

func (s *session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *session) Touch() {
	now := time.Now().UnixNano()
	for {
		prev := s.lastActivity.Load()
		if prev >= now || s.lastActivity.CompareAndSwap(prev, now) {
			return
		}
	}
}

func (s *session) Send(rec model.Record) error {
	// Checked first: a select with a closed channel and a ready sink picks
	// at random.
	select {
	case <-s.closed:
		return fmt.Errorf("session %s is closed", s.identity)
	default:
	}
	select {
	case <-s.closed:
		return fmt.Errorf("session %s is closed", s.identity)
	case s.out <- model.Marshal(rec):
		return nil
	case <-time.After(sendTimeout):
		return fmt.Errorf("session %s sink saturated", s.identity)
	}
}

// writePump owns the outbound side of the websocket and keeps the
// connection alive with periodic pings.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case frame := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Info("push write failed, marking session dead",
					slog.String("client_id", s.identity), slog.Any("err", err))
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
	return nil
}
