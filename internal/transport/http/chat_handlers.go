package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chatsync/internal/docstore"
	"chatsync/internal/send"
)

// ChatHandlers provides HTTP handlers for conversations and sends.
type ChatHandlers struct {
	store    docstore.Store
	pipeline *send.Pipeline
	log      *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(st docstore.Store, pipeline *send.Pipeline, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		store:    st,
		pipeline: pipeline,
		log:      logger,
	}
}

// CreateConversationRequest represents the request body for opening a conversation.
type CreateConversationRequest struct {
	PeerID string `json:"peer_id" binding:"required"`
}

// SendMessageRequest represents the JSON request body for sending a message.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// CreateConversation opens an empty conversation with another user.
// POST /api/conversations
func (h *ChatHandlers) CreateConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create conversation request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	peerID := docstore.UserID(req.PeerID)
	if peerID == userID {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot open a conversation with yourself"})
		return
	}
	if _, err := h.store.GetUserByID(c.Request.Context(), peerID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	}

	conv, err := h.store.CreateConversation(c.Request.Context(), userID, peerID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", string(userID)).Str("peer_id", string(peerID)).Msg("failed to create conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, conversationToResponse(conv))
}

// ListSummaries returns the authenticated user's conversation list.
// GET /api/conversations
func (h *ChatHandlers) ListSummaries(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	summaries, err := h.store.ListSummaries(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", string(userID)).Msg("failed to list summaries")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := summariesToResponse(summaries)
	if resp == nil {
		resp = []SummaryResponse{}
	}
	c.JSON(http.StatusOK, resp)
}

// ListMessages returns the full snapshot of one conversation.
// GET /api/conversations/:id/messages
func (h *ChatHandlers) ListMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conv, ok := h.loadConversation(c, userID)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, conversationToResponse(conv))
}

// SendMessage runs the send pipeline for one outgoing message. Accepts a JSON
// body with text, or a multipart form with a "text" field and an optional
// "image" file.
// POST /api/conversations/:id/messages
func (h *ChatHandlers) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conv, ok := h.loadConversation(c, userID)
	if !ok {
		return
	}

	req := send.Request{
		ConversationID: conv.ID,
		SenderID:       userID,
		RecipientID:    conv.Other(userID),
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req.Text = c.PostForm("text")
		fileHeader, err := c.FormFile("image")
		if err == nil {
			file, openErr := fileHeader.Open()
			if openErr != nil {
				h.log.Error().Err(openErr).Msg("failed to open uploaded image")
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid image upload"})
				return
			}
			defer file.Close()
			req.Attachment = file
			req.AttachmentType = fileHeader.Header.Get("Content-Type")
		}
	} else {
		var body SendMessageRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			h.log.Debug().Err(err).Msg("invalid send request")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
		req.Text = body.Text
	}

	result, err := h.pipeline.Send(c.Request.Context(), req)
	if err != nil && !errors.Is(err, send.ErrFanOutPartial) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, send.ErrBlocked):
			status = http.StatusForbidden
		case errors.Is(err, send.ErrEmptyMessage):
			status = http.StatusBadRequest
		case errors.Is(err, send.ErrUploadFailed), errors.Is(err, send.ErrAppendFailed):
			status = http.StatusBadGateway
		default:
			h.log.Error().Err(err).Str("conversation_id", string(conv.ID)).Msg("send failed")
		}
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: send.ErrorCode(err)})
		return
	}

	// Degraded success: the message is durable, only summaries lag. Callers
	// must not re-send; retry the summaries with the idempotency key instead.
	degraded := errors.Is(err, send.ErrFanOutPartial)
	c.JSON(http.StatusCreated, sendResultToResponse(result, degraded))
}

// MarkRead clears the unread flag on the caller's summary.
// POST /api/conversations/:id/read
func (h *ChatHandlers) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chatID := docstore.ConversationID(c.Param("id"))
	err := h.store.MarkSeen(c.Request.Context(), userID, chatID)
	if err != nil {
		if errors.Is(err, docstore.ErrSummaryNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
			return
		}
		h.log.Error().Err(err).Str("chat_id", string(chatID)).Msg("failed to mark read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// loadConversation fetches the conversation from the path parameter and
// checks that the caller participates in it.
func (h *ChatHandlers) loadConversation(c *gin.Context, userID docstore.UserID) (*docstore.Conversation, bool) {
	id := docstore.ConversationID(c.Param("id"))
	conv, err := h.store.GetConversation(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, docstore.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
			return nil, false
		}
		h.log.Error().Err(err).Str("conversation_id", string(id)).Msg("failed to load conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant"})
		return nil, false
	}
	return conv, true
}
