package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/identity"
	"messaging-service/internal/observability"
)

// Handler upgrades authenticated requests into registered connections.
type Handler struct {
	hub        *Hub
	dispatcher *Dispatcher
	verifier   *identity.Verifier
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, dispatcher *Dispatcher, verifier *identity.Verifier) *Handler {
	return &Handler{hub: hub, dispatcher: dispatcher, verifier: verifier}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the upgrade and runs the connection's read loop.
// Unauthenticated upgrades are rejected before any connection state exists.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	id, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      id.UserID,
		Username:    id.Username,
		UserType:    id.UserType,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := NewClient(info, conn)
	h.hub.Register(client)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	publishWSEvent(ctx, "ws_connect", info, 0, "")

	go func() {
		var closeReason string
		defer func() {
			h.hub.Unregister(client)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			publishWSEvent(ctx, "ws_disconnect", info, time.Since(info.ConnectedAt), closeReason)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
					publishWSEvent(ctx, "ws_error", info, time.Since(info.ConnectedAt), closeReason)
				}
				return
			}
			h.dispatcher.Dispatch(ctx, client, data)
		}
	}()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}
