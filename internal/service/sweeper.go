package service

import (
	"log/slog"
	"time"

	"github.com/helphub/relay-service/config"
	"github.com/helphub/relay-service/internal/domain/registry"
)

// Sweeper periodically disconnects framed sessions whose last activity
// exceeds the configured timeout. Push sessions are not swept; their
// liveness is driven by the transport's own close events.
type Sweeper struct {
	registry *registry.Registry
	cfg      *config.Config
	logger   *slog.Logger
	done     chan struct{}
	stopped  chan struct{}
}

func NewSweeper(reg *registry.Registry, cfg *config.Config, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		registry: reg,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "sweeper")),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) Stop() {
	close(s.done)
	<-s.stopped
}

func (s *Sweeper) run() {
	defer close(s.stopped)
	for {
		// The period tracks the timeout so a config reload takes effect on
		// the next tick.
		timeout := s.cfg.ConnectionTimeout()
		select {
		case <-s.done:
			return
		case <-time.After(timeout):
			s.sweep(timeout)
		}
	}
}

// sweep gathers victims from a lock-free snapshot, then disconnects them
// outside any registry critical section. Closing a session triggers its
// normal disconnect cleanup on the session's own worker.
func (s *Sweeper) sweep(timeout time.Duration) {
	now := time.Now()
	var victims []registry.Session
	for _, sess := range s.registry.FramedSnapshot() {
		if now.Sub(sess.LastActivity()) > timeout {
			victims = append(victims, sess)
		}
	}
	for _, sess := range victims {
		s.logger.Info("client timed out, disconnecting",
			slog.String("client_id", sess.Identity()))
		_ = sess.Close()
	}
}
