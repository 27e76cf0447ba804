// Package ws implements the push-socket listener: browser-initiated
// sessions upgraded from the plaintext HTTP endpoint, sharing the identity
// space and routing policy with the framed transport.
package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/helphub/relay-service/internal/domain/model"
	"github.com/helphub/relay-service/internal/domain/registry"
	"github.com/helphub/relay-service/internal/observability"
	"github.com/helphub/relay-service/internal/service"
)

const registrationTimeout = 30 * time.Second

type WSHandler struct {
	logger   *slog.Logger
	router   *service.Router
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, router *service.Router, metrics *observability.Metrics) *WSHandler {
	return &WSHandler{
		logger:  logger.With(slog.String("component", "ws")),
		router:  router,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			// The relay serves a LAN; the web client is loaded from this
			// same host.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", slog.Any("err", err))
		return
	}

	// The first frame carries the identity. It may be a pure STATUS
	// registration or already a routable record.
	conn.SetReadDeadline(time.Now().Add(registrationTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}
	first, err := model.Unmarshal(data)
	if err != nil {
		h.metrics.ParseFailures.Inc()
		h.logger.Warn("malformed registration frame", slog.String("payload", string(data)))
		conn.Close()
		return
	}

	identity := first.From
	sess := newSession(identity, conn, h.logger)

	// The pump must be draining before Attach so a large replay backlog
	// cannot saturate the sink. Until registration succeeds nothing is
	// enqueued, so the rejection write below still owns the socket.
	go sess.writePump()
	defer sess.Close()

	switch h.router.Attach(identity, sess) {
	case registry.RejectedEmpty:
		h.logger.Warn("web client registration rejected: empty identity")
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		conn.WriteMessage(websocket.TextMessage, model.ErrorFrame("INVALID_ID"))
		return
	case registry.RejectedDuplicate:
		h.logger.Warn("web client registration rejected: identity taken",
			slog.String("client_id", identity))
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		conn.WriteMessage(websocket.TextMessage, model.ErrorFrame("ID_TAKEN"))
		return
	}
	defer h.router.Detach(identity, sess)

	h.logger.Info("web client registered", slog.String("client_id", identity))

	if first.Routable() {
		h.router.HandleInbound(sess, first)
	}

	h.eventLoop(sess)
}

func (h *WSHandler) eventLoop(sess *session) {
	conn := sess.conn
	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info("push session error",
					slog.String("client_id", sess.Identity()), slog.Any("err", err))
			}
			return
		}
		sess.Touch()
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		rec, err := model.Unmarshal(data)
		if err != nil {
			h.metrics.ParseFailures.Inc()
			h.logger.Warn("discarding malformed frame",
				slog.String("client_id", sess.Identity()),
				slog.String("payload", string(data)))
			continue
		}
		h.router.HandleInbound(sess, rec)
	}
}
