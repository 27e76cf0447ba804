// Package admin implements the control-plane listener: a line-oriented
// request/response channel for the monitoring dashboard and operator
// automation. One request per connection, authenticated by a shared secret.
package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/helphub/relay-service/config"
	"github.com/helphub/relay-service/internal/domain/model"
	"github.com/helphub/relay-service/internal/service"
)

const (
	requestTimeout = 30 * time.Second

	authFailed     = "ERROR:AUTH_FAILED"
	unknownCommand = "ERROR:UNKNOWN_COMMAND"
)

type Server struct {
	cfg    *config.Config
	router *service.Router
	logger *slog.Logger
	ln     net.Listener
	wg     sync.WaitGroup
}

func NewServer(cfg *config.Config, router *service.Router, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		router: router,
		logger: logger.With(slog.String("component", "admin")),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.AdminPort))
	if err != nil {
		return fmt.Errorf("bind admin listener: %w", err)
	}
	s.ln = ln
	if s.cfg.AdminPassword == "" {
		s.logger.Warn("ADMIN_PASSWORD is unset; every control-plane request will be rejected")
	}
	s.wg.Add(1)
	go s.acceptLoop()
	s.logger.Info("admin control plane listening", slog.Int("port", s.cfg.AdminPort))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.ln != nil {
		s.ln.Close()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Error("admin accept failed", slog.Any("err", err))
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// handle serves one two-line request: password, then VERB [ARG].
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(requestTimeout))
	reader := bufio.NewReader(conn)

	password, err := readLine(reader)
	if err != nil {
		return
	}
	if s.cfg.AdminPassword == "" || password != s.cfg.AdminPassword {
		s.logger.Warn("control-plane auth failure",
			slog.String("remote", conn.RemoteAddr().String()))
		fmt.Fprintln(conn, authFailed)
		return
	}

	request, err := readLine(reader)
	if err != nil {
		return
	}
	verb, arg, _ := strings.Cut(request, " ")
	response := s.dispatch(verb, strings.TrimSpace(arg))
	fmt.Fprintln(conn, response)
}

func (s *Server) dispatch(verb, arg string) string {
	switch verb {
	case "GET_DATA":
		return s.getData()
	case "GET_PENDING":
		return s.getPending(arg)
	case "ADMIN_BROADCAST":
		rec := model.New(model.KindBroadcast, service.AdminIdentity, "", arg, model.PriorityHigh)
		if err := s.router.Route(rec); err != nil {
			return "ERROR:BROADCAST_FAILED"
		}
		return "OK"
	case "ADMIN_KICK":
		s.router.ForceDisconnect(arg)
		return "OK"
	}
	return unknownCommand
}

type statsPayload struct {
	OnlineClients   int   `json:"onlineClients"`
	PendingMessages int64 `json:"pendingMessages"`
}

type clientPayload struct {
	ClientID string `json:"clientId"`
	Type     string `json:"type"`
	LastSeen int64  `json:"lastSeen"`
}

type dataPayload struct {
	Stats              statsPayload    `json:"stats"`
	Clients            []clientPayload `json:"clients"`
	ClientsWithPending []string        `json:"clientsWithPending"`
}

func (s *Server) getData() string {
	stats, err := s.router.Stats()
	if err != nil {
		return "ERROR:INTERNAL"
	}
	withPending, err := s.router.ClientsWithPending()
	if err != nil {
		return "ERROR:INTERNAL"
	}
	if withPending == nil {
		withPending = []string{}
	}
	clients := make([]clientPayload, 0)
	for _, c := range s.router.Clients() {
		clients = append(clients, clientPayload{
			ClientID: c.ID,
			Type:     string(c.Transport),
			LastSeen: c.LastSeen.UnixMilli(),
		})
	}
	data, _ := json.Marshal(dataPayload{
		Stats: statsPayload{
			OnlineClients:   stats.OnlineClients,
			PendingMessages: stats.PendingMessages,
		},
		Clients:            clients,
		ClientsWithPending: withPending,
	})
	return string(data)
}

type pendingPayload struct {
	From     string `json:"from"`
	Priority string `json:"priority"`
	Body     string `json:"body"`
}

func (s *Server) getPending(identity string) string {
	rows, err := s.router.Pending(identity)
	if err != nil {
		return "ERROR:INTERNAL"
	}
	out := make([]pendingPayload, 0, len(rows))
	for _, rec := range rows {
		out = append(out, pendingPayload{
			From:     rec.From,
			Priority: rec.Priority.String(),
			Body:     rec.Body,
		})
	}
	data, _ := json.Marshal(out)
	return string(data)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
