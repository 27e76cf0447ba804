// Package tcp implements the framed-stream listener: long-lived TLS
// connections carrying newline-delimited records, one inbound worker per
// session.
package tcp

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helphub/relay-service/config"
	"github.com/helphub/relay-service/internal/domain/model"
	"github.com/helphub/relay-service/internal/domain/registry"
	"github.com/helphub/relay-service/internal/observability"
	"github.com/helphub/relay-service/internal/security"
	"github.com/helphub/relay-service/internal/service"
)

const (
	handshakeTimeout = 15 * time.Second
	identityTimeout  = 30 * time.Second
	// maxLine bounds one wire record; bodies are short operator text.
	maxLine = 64 * 1024
)

type Server struct {
	cfg     *config.Config
	router  *service.Router
	metrics *observability.Metrics
	logger  *slog.Logger

	ln net.Listener
	g  *errgroup.Group

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	stopping bool
}

func NewServer(
	cfg *config.Config,
	router *service.Router,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Server {
	return &Server{
		cfg:     cfg,
		router:  router,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "tcp")),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start binds the TLS listener and launches the accept loop. A failure to
// unlock the keystore or bind the port is fatal for startup.
func (s *Server) Start() error {
	cert, err := security.LoadTLS(s.cfg.KeystorePath, s.cfg.KeystorePassword)
	if err != nil {
		return fmt.Errorf("load keystore: %w", err)
	}
	ln, err := tls.Listen("tcp", fmt.Sprintf(":%d", s.cfg.TCPPort), &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("bind framed listener: %w", err)
	}
	s.ln = ln
	s.g = &errgroup.Group{}
	s.g.Go(s.acceptLoop)
	s.logger.Info("listening for secure client connections",
		slog.Int("port", s.cfg.TCPPort))
	return nil
}

// Stop closes the listener, terminates every live connection and waits for
// the session workers to drain. Connections are closed here rather than left
// to a later teardown hook: the workers block in their read loops until the
// socket dies.
func (s *Server) Stop(ctx context.Context) error {
	if s.ln != nil {
		s.ln.Close()
	}
	s.mu.Lock()
	s.stopping = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	done := make(chan struct{})
	go func() {
		s.g.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.g.Go(func() error {
			s.handle(conn)
			return nil
		})
	}
}

// track registers conn for shutdown teardown. A connection racing Stop is
// closed on the spot so the worker drain cannot miss it.
func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	if s.stopping {
		conn.Close()
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// handle runs one session from handshake to disconnect cleanup.
func (s *Server) handle(conn net.Conn) {
	s.track(conn)
	defer s.untrack(conn)
	defer conn.Close()

	// Complete the handshake before any application read so a plaintext
	// prober cannot occupy a session slot.
	if tc, ok := conn.(*tls.Conn); ok {
		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		err := tc.HandshakeContext(ctx)
		cancel()
		if err != nil {
			s.logger.Info("tls handshake failed",
				slog.String("remote", conn.RemoteAddr().String()), slog.Any("err", err))
			return
		}
	}

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(identityTimeout))
	idLine, err := reader.ReadString('\n')
	if err != nil {
		s.logger.Info("client closed before sending an identity",
			slog.String("remote", conn.RemoteAddr().String()))
		return
	}
	conn.SetReadDeadline(time.Time{})
	identity := strings.TrimSpace(idLine)

	sess := newSession(identity, conn, s.logger)
	go sess.writePump()
	defer sess.Close()

	// Until registration succeeds nothing is enqueued on the sink, so the
	// rejection writes below still own the socket.
	switch s.router.Attach(identity, sess) {
	case registry.RejectedEmpty:
		s.logger.Warn("registration rejected: empty identity",
			slog.String("remote", conn.RemoteAddr().String()))
		s.reject(conn, "INVALID_ID")
		return
	case registry.RejectedDuplicate:
		s.logger.Warn("registration rejected: identity taken",
			slog.String("client_id", identity))
		s.reject(conn, "ID_TAKEN")
		return
	}
	defer s.router.Detach(identity, sess)

	s.readLoop(sess, reader)
}

func (s *Server) reject(conn net.Conn, reason string) {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	conn.Write(append(model.ErrorFrame(reason), '\n'))
}

func (s *Server) readLoop(sess *session, reader *bufio.Reader) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 4096), maxLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		sess.Touch()
		rec, err := model.Unmarshal(line)
		if err != nil {
			s.metrics.ParseFailures.Inc()
			s.logger.Warn("discarding malformed record",
				slog.String("client_id", sess.Identity()),
				slog.String("payload", string(line)))
			continue
		}
		s.router.HandleInbound(sess, rec)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Info("connection lost",
			slog.String("client_id", sess.Identity()), slog.Any("err", err))
	}
}
