package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chatsync/internal/auth"
	"chatsync/internal/docstore"
	"chatsync/internal/subscribe"
)

// SnapshotEvent is the wire envelope for one live conversation snapshot.
type SnapshotEvent struct {
	Type         string               `json:"type"`
	Conversation ConversationResponse `json:"conversation"`
}

// WSHandler streams live conversation snapshots over a WebSocket. One
// connection serves one conversation; closing the socket tears down the
// subscription, so no listener outlives its view.
type WSHandler struct {
	store      docstore.Store
	subscriber *subscribe.Subscriber
	auth       *auth.Service
	log        *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(st docstore.Store, subscriber *subscribe.Subscriber, authService *auth.Service, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		store:      st,
		subscriber: subscriber,
		auth:       authService,
		log:        logger,
	}
}

// Handle upgrades the connection and streams snapshots until the client
// disconnects.
// GET /ws?conversation=<id>&token=<jwt>
func (h *WSHandler) Handle(c *gin.Context) {
	claims, ok := h.authenticate(c)
	if !ok {
		return
	}

	convID := docstore.ConversationID(c.Query("conversation"))
	if convID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "conversation is required"})
		return
	}

	conv, err := h.store.GetConversation(c.Request.Context(), convID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		return
	}
	if !conv.HasParticipant(claims.UserID) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Snapshot writes happen on the subscription goroutine, one at a time.
	sub, err := h.subscriber.Subscribe(ctx, convID, func(snap *docstore.Conversation) {
		if writeErr := wsjson.Write(ctx, conn, SnapshotEvent{
			Type:         "snapshot",
			Conversation: conversationToResponse(snap),
		}); writeErr != nil {
			h.log.Debug().Err(writeErr).Str("conversation_id", string(convID)).Msg("ws write failed")
			cancel()
		}
	})
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", string(convID)).Msg("ws subscribe failed")
		return
	}
	defer sub.Stop()

	h.log.Debug().
		Str("conversation_id", string(convID)).
		Str("user_id", string(claims.UserID)).
		Msg("ws subscription opened")

	// Drain client frames only to observe disconnect; the stream is one-way.
	for {
		if _, _, readErr := conn.Read(ctx); readErr != nil {
			break
		}
	}

	conn.Close(websocket.StatusNormalClosure, "closing")
}

func (h *WSHandler) authenticate(c *gin.Context) (*auth.Claims, bool) {
	token := c.Query("token")
	if token == "" {
		// Fall back to the Authorization header for non-browser clients.
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing token"})
		return nil, false
	}

	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
		return nil, false
	}
	return claims, true
}
