package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/repositories"
)

// ConversationHandler serves the REST surface of the messaging core: durable
// history reads and participation-state changes. Conversation creation itself
// belongs to an external workflow.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	participants  repositories.ParticipantRepository
	messages      repositories.MessageRepository
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(
	conversations repositories.ConversationRepository,
	participants repositories.ParticipantRepository,
	messages repositories.MessageRepository,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		participants:  participants,
		messages:      messages,
	}
}

// ListConversations returns the caller's active conversations, most recently
// active first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt("userID")

	convs, err := h.conversations.ListConversationsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// GetConversationMessages returns durable message history. Deleted messages
// come back as tombstones.
func (h *ConversationHandler) GetConversationMessages(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.participants.IsActiveParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	msgs, err := h.messages.ListConversationMessages(c.Request.Context(), conversationID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// ArchiveConversation marks the caller's participation inactive.
func (h *ConversationHandler) ArchiveConversation(c *gin.Context) {
	h.setParticipation(c, false)
}

// UnarchiveConversation reactivates the caller's participation.
func (h *ConversationHandler) UnarchiveConversation(c *gin.Context) {
	h.setParticipation(c, true)
}

func (h *ConversationHandler) setParticipation(c *gin.Context, active bool) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	userID := c.GetInt("userID")

	_, err = h.conversations.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}

	if active {
		err = h.participants.Unarchive(c.Request.Context(), conversationID, userID)
	} else {
		err = h.participants.Archive(c.Request.Context(), conversationID, userID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update participation"})
		return
	}

	c.Status(http.StatusNoContent)
}
