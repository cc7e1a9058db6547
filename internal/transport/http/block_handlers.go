package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"chatsync/internal/block"
	"chatsync/internal/docstore"
)

// BlockHandlers provides HTTP handlers for block management endpoints.
type BlockHandlers struct {
	registry *block.Registry
	log      *zerolog.Logger
}

// NewBlockHandlers creates a new block handlers instance.
func NewBlockHandlers(registry *block.Registry, logger *zerolog.Logger) *BlockHandlers {
	return &BlockHandlers{
		registry: registry,
		log:      logger,
	}
}

// BlockedListResponse represents the list of blocked users.
type BlockedListResponse struct {
	Blocked []string `json:"blocked"`
}

// Block records a block against another user.
// POST /api/blocks/:user_id
func (h *BlockHandlers) Block(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	target := docstore.UserID(c.Param("user_id"))
	err := h.registry.Block(c.Request.Context(), userID, target)
	if err != nil {
		switch {
		case errors.Is(err, block.ErrCannotBlockSelf):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot block yourself"})
		case errors.Is(err, block.ErrUserNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		default:
			h.log.Error().Err(err).Str("blocker_id", string(userID)).Str("target_id", string(target)).Msg("failed to block user")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// Unblock removes a previously recorded block.
// DELETE /api/blocks/:user_id
func (h *BlockHandlers) Unblock(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	target := docstore.UserID(c.Param("user_id"))
	err := h.registry.Unblock(c.Request.Context(), userID, target)
	if err != nil {
		if errors.Is(err, block.ErrNotBlocked) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user is not blocked"})
			return
		}
		h.log.Error().Err(err).Str("blocker_id", string(userID)).Str("target_id", string(target)).Msg("failed to unblock user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// List returns all users blocked by the caller.
// GET /api/blocks
func (h *BlockHandlers) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	blocked, err := h.registry.ListBlocked(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", string(userID)).Msg("failed to list blocked users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, BlockedListResponse{
		Blocked: lo.Map(blocked, func(id docstore.UserID, _ int) string { return string(id) }),
	})
}
