package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/pairline/internal/config"
	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/immxrtalbeast/pairline/internal/service"
	"github.com/immxrtalbeast/pairline/lib/logger/sl"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // enough for any SDP payload
	sendBuffer     = 64
)

var errConnClosed = errors.New("connection closed")

// SignalController owns the websocket endpoint: it authenticates the
// identity, registers presence, and dispatches every inbound event to the
// matchmaking, relay and room services.
type SignalController struct {
	presence   *service.PresenceService
	match      service.MatchInteractor
	rooms      service.RoomInteractor
	relay      service.RelayInteractor
	users      service.UserInteractor
	iceServers []map[string]any
	log        *slog.Logger
	upgrader   websocket.Upgrader
}

func NewSignalController(
	presence *service.PresenceService,
	match service.MatchInteractor,
	rooms service.RoomInteractor,
	relay service.RelayInteractor,
	users service.UserInteractor,
	rtc config.WebRTCConfig,
	log *slog.Logger,
) *SignalController {
	if log == nil {
		log = slog.Default()
	}
	return &SignalController{
		presence:   presence,
		match:      match,
		rooms:      rooms,
		relay:      relay,
		users:      users,
		iceServers: iceServerList(rtc),
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxMessageSize,
			WriteBufferSize: maxMessageSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect upgrades the request and runs the connection's read loop.
// Identity verification is delegated to the user collaborator: a known
// user_id or a fresh guest. No state is created on a failed handshake.
func (c *SignalController) Connect(ctx *gin.Context) {
	var user *domain.User
	if userIDStr := ctx.Query("user_id"); userIDStr != "" {
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			return
		}
		u, err := c.users.GetUser(ctx.Request.Context(), userID)
		if err != nil {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		user = u
	} else {
		u, err := c.users.CreateGuest(ctx.Request.Context(), ctx.Query("name"))
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		user = u
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Error("websocket upgrade failed", sl.Err(err))
		return
	}

	identity := user.Identity()
	wsc := newWSConnection(conn)
	go wsc.writePump()

	c.presence.Register(identity, wsc)

	// The connected status carries the ICE servers the client should dial
	// through, so TURN credentials never have to be baked into clients.
	_ = wsc.Send(domain.EventStatus, map[string]any{
		"message":     "connected",
		"identity":    identity,
		"ice_servers": c.iceServers,
	})

	c.readLoop(identity, wsc)
}

func (c *SignalController) readLoop(identity string, wsc *wsConnection) {
	defer func() {
		c.disconnect(identity, wsc)
	}()

	wsc.conn.SetReadLimit(maxMessageSize)
	wsc.conn.SetReadDeadline(time.Now().Add(pongWait))
	wsc.conn.SetPongHandler(func(string) error {
		wsc.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg domain.SignalMessage
		if err := wsc.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read loop ended", slog.String("identity", identity), sl.Err(err))
			}
			return
		}
		c.dispatch(identity, wsc, &msg)
	}
}

// dispatch handles one inbound event. Every failure is converted to a
// single error event with a kind; nothing here tears the connection down.
func (c *SignalController) dispatch(identity string, wsc *wsConnection, msg *domain.SignalMessage) {
	ctx := context.Background()

	switch msg.Type {
	case domain.EventJoinQueue:
		prefs, err := decodePreferences(msg.Payload)
		if err != nil {
			c.sendError(wsc, "BadRequest", err.Error())
			return
		}
		room, err := c.match.Enqueue(ctx, identity, prefs)
		if err != nil {
			c.sendError(wsc, service.ErrorKind(err), err.Error())
			return
		}
		if room == nil {
			_ = wsc.Send(domain.EventStatus, map[string]any{"message": "waiting"})
		}

	case domain.EventCancelQueue:
		c.match.Cancel(identity)
		_ = wsc.Send(domain.EventStatus, map[string]any{"message": "cancelled"})

	case domain.EventOffer, domain.EventAnswer, domain.EventCandidate:
		msg.From = identity
		if err := c.relay.Relay(ctx, msg); err != nil {
			// Violations are dropped silently at the protocol level,
			// already logged by the relay.
			if !errors.Is(err, service.ErrSignalingViolation) {
				c.sendError(wsc, service.ErrorKind(err), err.Error())
			}
		}

	case domain.EventEndCall:
		if err := c.rooms.EndRoomByUser(ctx, identity, service.EndReasonPeer); err != nil {
			c.sendError(wsc, service.ErrorKind(err), err.Error())
		}

	case domain.EventHeartbeat:
		c.presence.Touch(identity)

	default:
		c.sendError(wsc, "UnsupportedEvent", "unsupported event type: "+msg.Type)
	}
}

func (c *SignalController) disconnect(identity string, wsc *wsConnection) {
	ctx := context.Background()

	c.presence.Unregister(identity, wsc.ID())
	c.match.Cancel(identity)
	c.rooms.HandleDisconnect(ctx, identity)
	wsc.Close()
}

func (c *SignalController) sendError(wsc *wsConnection, kind, message string) {
	_ = wsc.Send(domain.EventError, domain.ErrorPayload{Kind: kind, Message: message})
}

// iceServerList shapes the configured STUN/TURN servers as RTCIceServer
// entries ready for a client's peer connection configuration.
func iceServerList(rtc config.WebRTCConfig) []map[string]any {
	servers := []map[string]any{}
	if len(rtc.STUNServers) > 0 {
		servers = append(servers, map[string]any{"urls": rtc.STUNServers})
	}
	if len(rtc.TURNServers) > 0 {
		servers = append(servers, map[string]any{
			"urls":       rtc.TURNServers,
			"username":   rtc.TURNUsername,
			"credential": rtc.TURNPassword,
		})
	}
	return servers
}

func decodePreferences(payload map[string]any) (domain.Preferences, error) {
	var prefs domain.Preferences
	if payload == nil {
		return prefs, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return prefs, err
	}
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return prefs, errors.New("invalid preferences payload")
	}
	return prefs, nil
}

// wsConnection adapts a websocket to domain.Connection. All writes funnel
// through the send channel so there is exactly one writer goroutine.
type wsConnection struct {
	id   string
	conn *websocket.Conn
	send chan any
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newWSConnection(conn *websocket.Conn) *wsConnection {
	return &wsConnection{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan any, sendBuffer),
		done: make(chan struct{}),
	}
}

func (w *wsConnection) ID() string {
	return w.id
}

// wireEvent is the envelope for server-emitted events; relayed signal
// messages are written as-is so their payload stays verbatim.
type wireEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func (w *wsConnection) Send(event string, payload any) error {
	var out any
	if msg, ok := payload.(*domain.SignalMessage); ok {
		out = msg
	} else {
		out = wireEvent{Type: event, Payload: payload}
	}

	select {
	case <-w.done:
		return errConnClosed
	case w.send <- out:
		return nil
	}
}

func (w *wsConnection) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()
	return nil
}

func (w *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		w.conn.Close()
	}()

	for {
		select {
		case out := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteJSON(out); err != nil {
				w.Close()
				return
			}

		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.Close()
				return
			}

		case <-w.done:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
