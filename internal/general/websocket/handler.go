package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"bus-tracker/internal/general/contracts"
	"bus-tracker/internal/general/jwt"
	"bus-tracker/internal/general/logger"
	"bus-tracker/internal/tracker/domain"
	"bus-tracker/internal/tracker/service"
	"bus-tracker/internal/tracker/session"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	ctrlTimeout    = 5 * time.Second
)

// Handler upgrades HTTP requests to websocket sessions and bridges inbound
// frames to the tracker service. Outbound traffic flows through each
// session's writer pump, never directly from here.
type Handler struct {
	logger       *logger.Logger
	svc          *service.TrackerService
	jwtMgr       *jwt.Manager // nil disables token checks on register
	sendBuffer   int
	pingInterval time.Duration
	pongWait     time.Duration
	upgrader     websocket.Upgrader
	nextID       atomic.Uint64
}

func NewHandler(log *logger.Logger, svc *service.TrackerService, jwtMgr *jwt.Manager, sendBuffer int, pingInterval, pongWait time.Duration) *Handler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	return &Handler{
		logger:       log,
		svc:          svc,
		jwtMgr:       jwtMgr,
		sendBuffer:   sendBuffer,
		pingInterval: pingInterval,
		pongWait:     pongWait,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// wsConn adapts a gorilla connection to the session transport surface. The
// session pump is the only JSON writer; control frames go through
// WriteControl which gorilla allows concurrently.
type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) WriteJSON(v any) error {
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.c.WriteJSON(v)
}

func (w wsConn) Close() error { return w.c.Close() }

// HandleWS is the single transport endpoint. Role and identity arrive in the
// first register frame, not in the URL.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}

	ctx := r.Context()
	sess := session.New(h.nextID.Add(1), wsConn{c: conn}, h.sendBuffer)
	sess.Start(func(s *session.Session) {
		h.svc.Disconnect(context.WithoutCancel(ctx), s)
	})
	defer h.svc.Disconnect(ctx, sess)
	defer sess.Close()

	conn.SetReadLimit(1 << 20) // 1 MiB
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		sess.Touch()
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	// ping loop keeps liveness flowing; a failed ping closes the socket to
	// unblock the reader
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-sess.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	h.logger.Info(ctx, "ws_connected", "WebSocket session opened", map[string]any{"session_id": sess.ID()})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Error(ctx, "ws_unexpected_close", "Session closed unexpectedly", err, map[string]any{"session_id": sess.ID()})
			} else {
				h.logger.Info(ctx, "ws_connection_closed", "Session closed", map[string]any{"session_id": sess.ID()})
			}
			return
		}

		h.svc.Touch(sess)
		h.dispatch(ctx, sess, payload)
	}
}

// dispatch decodes one frame and routes it. Malformed or unknown frames get a
// non-fatal error reply; they never tear down the session.
func (h *Handler) dispatch(ctx context.Context, sess *session.Session, payload []byte) {
	msg, err := contracts.Decode(payload)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownMessageType):
			_ = sess.Enqueue(contracts.NewError("unknown message type"))
		default:
			_ = sess.Enqueue(contracts.NewError("malformed payload"))
		}
		h.logger.Debug(ctx, "ws_bad_frame", "Rejected inbound frame", map[string]any{
			"session_id": sess.ID(), "error": err.Error(),
		})
		return
	}

	switch m := msg.(type) {
	case contracts.Register:
		h.handleRegister(ctx, sess, m)
	case contracts.LocationUpdate:
		h.handleLocationUpdate(ctx, sess, m)
	case contracts.RequestPredictions:
		preds := h.svc.Predictions(ctx)
		_ = sess.Enqueue(contracts.Predictions{Type: contracts.TypePredictions, Predictions: preds})
	}
}

func (h *Handler) handleRegister(ctx context.Context, sess *session.Session, m contracts.Register) {
	role, err := domain.ParseRole(m.UserType)
	if err != nil {
		_ = sess.Enqueue(contracts.NewError("invalid role"))
		return
	}

	identity := m.Identity
	if identity == "" {
		identity = m.UserID
	}
	if identity == "" {
		_ = sess.Enqueue(contracts.NewError("missing identity"))
		return
	}

	if h.jwtMgr != nil {
		if _, err := jwt.ValidateRegistration(h.jwtMgr, m.Token, role, m.UserID); err != nil {
			h.logger.Error(ctx, "ws_auth_failed", "Register token rejected", err, map[string]any{
				"session_id": sess.ID(), "user_id": m.UserID,
			})
			_ = sess.Enqueue(contracts.NewError("authentication failed"))
			return
		}
	}

	if err := h.svc.Register(ctx, sess, role, identity); err != nil {
		switch {
		case errors.Is(err, domain.ErrRoleConflict):
			_ = sess.Enqueue(contracts.NewError("session already registered with a different role"))
		case errors.Is(err, domain.ErrInvalidRole):
			_ = sess.Enqueue(contracts.NewError("invalid role"))
		default:
			h.logger.Error(ctx, "register_failed", "Registration failed", err, map[string]any{"session_id": sess.ID()})
		}
	}
}

func (h *Handler) handleLocationUpdate(ctx context.Context, sess *session.Session, m contracts.LocationUpdate) {
	ts := time.Now()
	if m.Timestamp > 0 {
		ts = time.UnixMilli(m.Timestamp)
	}

	sample := domain.VehicleLocationSample{
		VehicleID:      sess.Identity(),
		Latitude:       m.Location.Latitude,
		Longitude:      m.Location.Longitude,
		SpeedKmh:       m.SpeedKmh,
		HeadingDegrees: m.Heading,
		Timestamp:      ts,
	}

	vctx := h.logger.WithVehicleID(ctx, sample.VehicleID)
	err := h.svc.UpdateLocation(vctx, sess, sample)
	switch {
	case err == nil:
		_ = sess.Enqueue(contracts.LocationUpdateAck{Type: contracts.TypeLocationUpdateAck, Accepted: true})
	case errors.Is(err, domain.ErrStaleUpdate):
		// dropped from storage but still acknowledged: drivers must not see
		// request failures for ordinary network jitter
		_ = sess.Enqueue(contracts.LocationUpdateAck{Type: contracts.TypeLocationUpdateAck, Accepted: false})
	case errors.Is(err, domain.ErrUnauthorized):
		_ = sess.Enqueue(contracts.NewError("location updates require a driver session"))
	default:
		_ = sess.Enqueue(contracts.NewError("invalid location data"))
		h.logger.Debug(vctx, "location_update_rejected", "Invalid location sample", map[string]any{
			"session_id": sess.ID(), "error": err.Error(),
		})
	}
}
