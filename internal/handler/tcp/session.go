package tcp

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/helphub/relay-service/internal/domain/model"
	"github.com/helphub/relay-service/internal/domain/registry"
)

const (
	sinkBuffer   = 256
	writeTimeout = 10 * time.Second
	sendTimeout  = 5 * time.Second
)

// session is one framed connection. Exactly one writer goroutine owns the
// outbound sink; the inbound loop runs on the accept handler's goroutine.
type session struct {
	identity     string
	conn         net.Conn
	logger       *slog.Logger
	out          chan []byte
	closed       chan struct{}
	closeOnce    sync.Once
	lastActivity atomic.Int64 // unix nanos; never moves backwards
}

var _ registry.Session = (*session)(nil)

func newSession(identity string, conn net.Conn, logger *slog.Logger) *session {
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
func (s *session) Transport() registry.Transport { return registry.TransportFramed }

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
	return s.enqueue(model.Marshal(rec))
}

func (s *session) enqueue(frame []byte) error {
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
	case s.out <- frame:
		return nil
	case <-time.After(sendTimeout):
		return fmt.Errorf("session %s sink saturated", s.identity)
	}
}

// writePump drains the sink onto the wire. A write failure marks the
// session dead; the inbound loop then terminates on the closed connection.
func (s *session) writePump() {
	for {
		select {
		case <-s.closed:
			return
		case frame := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := s.conn.Write(append(frame, '\n')); err != nil {
				s.logger.Info("write failed, marking session dead",
					slog.String("client_id", s.identity), slog.Any("err", err))
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
