// Package service implements the routing core: the single authority that
// mediates between the durable queue, the live-identity tables and the two
// transport personalities.
package service

import (
	"errors"
	"log/slog"
	"time"

	"github.com/helphub/relay-service/internal/adapter/msglog"
	"github.com/helphub/relay-service/internal/domain/model"
	"github.com/helphub/relay-service/internal/domain/registry"
	"github.com/helphub/relay-service/internal/observability"
)

// Store is the durable-queue surface the router depends on.
type Store interface {
	Store(rec model.Record) error
	MarkDelivered(id string) error
	PendingFor(identity string) ([]model.Record, error)
	UpsertLastSeen(identity string) error
	PendingCount() (int64, error)
	TotalCount() (int64, error)
	IdentitiesWithPendingDirect() ([]string, error)
}

// AdminIdentity originates operator broadcasts on the control plane.
const AdminIdentity = "_admin_"

var ErrNotRoutable = errors.New("record kind is not routable")

type Router struct {
	registry *registry.Registry
	store    Store
	audit    *msglog.Log
	metrics  *observability.Metrics
	logger   *slog.Logger
}

func NewRouter(
	reg *registry.Registry,
	store Store,
	audit *msglog.Log,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Router {
	return &Router{
		registry: reg,
		store:    store,
		audit:    audit,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "router")),
	}
}

// Attach registers a new session and, on success, replays its pending
// backlog before the caller starts reading inbound records.
func (r *Router) Attach(identity string, s registry.Session) registry.RegisterResult {
	res := r.registry.Register(identity, s)
	if res != registry.Accepted {
		r.metrics.RegistrationsRejected.Inc()
		return res
	}
	r.metrics.OnlineSessions.WithLabelValues(string(s.Transport())).Inc()
	if err := r.store.UpsertLastSeen(identity); err != nil {
		r.logger.Warn("failed to update client directory",
			slog.String("client_id", identity), slog.Any("err", err))
	}
	r.logger.Info("client connected",
		slog.String("client_id", identity),
		slog.String("transport", string(s.Transport())))
	r.FlushPending(identity)
	return registry.Accepted
}

// Detach runs the registry side of disconnect cleanup. Safe against a late
// cleanup racing a re-registration: only the current session is removed.
func (r *Router) Detach(identity string, s registry.Session) {
	if r.registry.Unregister(identity, s) {
		r.metrics.OnlineSessions.WithLabelValues(string(s.Transport())).Dec()
		r.logger.Info("client disconnected",
			slog.String("client_id", identity),
			slog.Int("online", r.registry.Count()))
	}
}

// IsTaken consults both transport tables.
func (r *Router) IsTaken(identity string) bool {
	return r.registry.IsTaken(identity)
}

// Route persists rec and fans it out. The record is never transmitted when
// persistence fails: the error is returned and the record is lost, which is
// preferred over inconsistent partial delivery.
func (r *Router) Route(rec model.Record) error {
	if !rec.Routable() {
		return ErrNotRoutable
	}
	if err := r.store.Store(rec); err != nil {
		r.logger.Error("record not persisted, routing aborted",
			slog.String("record_id", rec.ID), slog.Any("err", err))
		return err
	}
	r.audit.Record(rec.From, rec.To, rec.Body)
	r.metrics.RecordsRouted.WithLabelValues(string(rec.Kind)).Inc()

	switch rec.Kind {
	case model.KindDirect:
		s, ok := r.registry.Get(rec.To)
		if !ok {
			r.logger.Info("direct record queued for offline client",
				slog.String("to", rec.To))
			return nil
		}
		if err := s.Send(rec); err != nil {
			r.logger.Info("best-effort delivery failed, row stays pending",
				slog.String("to", rec.To), slog.Any("err", err))
		}
	case model.KindBroadcast:
		for _, s := range r.registry.Snapshot() {
			if s.Identity() == rec.From {
				continue
			}
			if err := s.Send(rec); err != nil {
				r.logger.Info("broadcast delivery failed for one session",
					slog.String("to", s.Identity()), slog.Any("err", err))
			}
		}
	}
	return nil
}

// FlushPending writes the pending batch for identity to its current session
// in (priority desc, timestamp asc) order.
func (r *Router) FlushPending(identity string) {
	s, ok := r.registry.Get(identity)
	if !ok {
		return
	}
	pending, err := r.store.PendingFor(identity)
	if err != nil {
		r.logger.Error("failed to load pending batch",
			slog.String("client_id", identity), slog.Any("err", err))
		return
	}
	if len(pending) == 0 {
		return
	}
	r.logger.Info("replaying pending records",
		slog.String("client_id", identity), slog.Int("count", len(pending)))
	for _, rec := range pending {
		if err := s.Send(rec); err != nil {
			r.logger.Warn("replay interrupted",
				slog.String("client_id", identity), slog.Any("err", err))
			return
		}
		r.metrics.RecordsReplayed.Inc()
	}
}

// HandleInbound processes one parsed record from a registered session.
// ACK, HEARTBEAT and STATUS are consumed here; everything else is routed.
func (r *Router) HandleInbound(s registry.Session, rec model.Record) {
	switch rec.Kind {
	case model.KindHeartbeat:
		if err := r.store.UpsertLastSeen(s.Identity()); err != nil {
			r.logger.Warn("heartbeat upsert failed",
				slog.String("client_id", s.Identity()), slog.Any("err", err))
		}
	case model.KindAck:
		if err := r.store.MarkDelivered(rec.Body); err != nil {
			r.logger.Warn("ack processing failed",
				slog.String("record_id", rec.Body), slog.Any("err", err))
		}
	case model.KindStatus:
		// Pure presence signal; never persisted, never routed.
	default:
		if err := r.Route(rec); err != nil && !errors.Is(err, ErrNotRoutable) {
			r.logger.Error("routing failed",
				slog.String("record_id", rec.ID), slog.Any("err", err))
		}
	}
}

// ForceDisconnect terminates identity's session if one is live.
func (r *Router) ForceDisconnect(identity string) bool {
	s, ok := r.registry.Get(identity)
	if !ok {
		return false
	}
	r.logger.Info("operator force-disconnect", slog.String("client_id", identity))
	_ = s.Close()
	return true
}

// Stats is the snapshot consumed by the admin surfaces.
type Stats struct {
	OnlineClients   int
	PendingMessages int64
	TotalMessages   int64
}

func (r *Router) Stats() (Stats, error) {
	pending, err := r.store.PendingCount()
	if err != nil {
		return Stats{}, err
	}
	total, err := r.store.TotalCount()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		OnlineClients:   r.registry.Count(),
		PendingMessages: pending,
		TotalMessages:   total,
	}, nil
}

// ClientInfo describes one live session for the admin surfaces.
type ClientInfo struct {
	ID        string
	Transport registry.Transport
	LastSeen  time.Time
}

func (r *Router) Clients() []ClientInfo {
	sessions := r.registry.Snapshot()
	out := make([]ClientInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, ClientInfo{
			ID:        s.Identity(),
			Transport: s.Transport(),
			LastSeen:  s.LastActivity(),
		})
	}
	return out
}

// Pending exposes targeted queue inspection without touching delivery state.
func (r *Router) Pending(identity string) ([]model.Record, error) {
	return r.store.PendingFor(identity)
}

func (r *Router) ClientsWithPending() ([]string, error) {
	return r.store.IdentitiesWithPendingDirect()
}

// Tail reads the last n lines of the message audit log.
func (r *Router) Tail(n int) ([]string, error) {
	return r.audit.Tail(n)
}
