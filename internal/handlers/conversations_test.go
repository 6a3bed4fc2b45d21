package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type handlerFixture struct {
	conversations *mocks.ConversationRepositoryMock
	participants  *mocks.ParticipantRepositoryMock
	messages      *mocks.MessageRepositoryMock
	router        *gin.Engine
}

func newHandlerFixture(userID int) *handlerFixture {
	gin.SetMode(gin.TestMode)
	f := &handlerFixture{
		conversations: new(mocks.ConversationRepositoryMock),
		participants:  new(mocks.ParticipantRepositoryMock),
		messages:      new(mocks.MessageRepositoryMock),
	}
	h := NewConversationHandler(f.conversations, f.participants, f.messages)

	f.router = gin.New()
	f.router.Use(func(c *gin.Context) {
		c.Set("userID", userID)
	})
	f.router.GET("/conversations", h.ListConversations)
	f.router.GET("/conversations/:conversation_id/messages", h.GetConversationMessages)
	f.router.POST("/conversations/:conversation_id/archive", h.ArchiveConversation)
	f.router.POST("/conversations/:conversation_id/unarchive", h.UnarchiveConversation)
	return f
}

func (f *handlerFixture) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	f.router.ServeHTTP(w, req)
	return w
}

func TestListConversations(t *testing.T) {
	f := newHandlerFixture(1)
	f.conversations.On("ListConversationsForUser", mock.Anything, 1).
		Return([]models.Conversation{{ID: 42, Title: "Checkup follow-up"}}, nil).Once()

	w := f.do(http.MethodGet, "/conversations")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Conversations, 1)
	assert.Equal(t, 42, body.Conversations[0].ID)
}

func TestGetConversationMessagesRequiresMembership(t *testing.T) {
	f := newHandlerFixture(9)
	f.participants.On("IsActiveParticipant", mock.Anything, 42, 9).Return(false, nil).Once()

	w := f.do(http.MethodGet, "/conversations/42/messages")
	assert.Equal(t, http.StatusForbidden, w.Code)
	f.messages.AssertNotCalled(t, "ListConversationMessages", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetConversationMessagesReturnsHistory(t *testing.T) {
	f := newHandlerFixture(1)
	f.participants.On("IsActiveParticipant", mock.Anything, 42, 1).Return(true, nil).Once()
	f.messages.On("ListConversationMessages", mock.Anything, 42, 50).
		Return([]models.Message{
			{ID: 1, ConversationID: 42, SenderID: 1, Content: "hello"},
			{ID: 2, ConversationID: 42, SenderID: 2, Content: models.DeletedMessageContent, IsDeleted: true},
		}, nil).Once()

	w := f.do(http.MethodGet, "/conversations/42/messages")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.True(t, body.Messages[1].IsDeleted)
	assert.Equal(t, models.DeletedMessageContent, body.Messages[1].Content)
}

func TestGetConversationMessagesHonorsLimit(t *testing.T) {
	f := newHandlerFixture(1)
	f.participants.On("IsActiveParticipant", mock.Anything, 42, 1).Return(true, nil).Once()
	f.messages.On("ListConversationMessages", mock.Anything, 42, 10).
		Return([]models.Message{}, nil).Once()

	w := f.do(http.MethodGet, "/conversations/42/messages?limit=10")
	assert.Equal(t, http.StatusOK, w.Code)
	f.messages.AssertExpectations(t)
}

func TestGetConversationMessagesRejectsBadID(t *testing.T) {
	f := newHandlerFixture(1)
	w := f.do(http.MethodGet, "/conversations/abc/messages")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArchiveConversation(t *testing.T) {
	f := newHandlerFixture(1)
	f.conversations.On("GetConversation", mock.Anything, 42).
		Return(models.Conversation{ID: 42}, nil).Once()
	f.participants.On("Archive", mock.Anything, 42, 1).Return(nil).Once()

	w := f.do(http.MethodPost, "/conversations/42/archive")
	assert.Equal(t, http.StatusNoContent, w.Code)
	f.participants.AssertExpectations(t)
}

func TestUnarchiveConversation(t *testing.T) {
	f := newHandlerFixture(1)
	f.conversations.On("GetConversation", mock.Anything, 42).
		Return(models.Conversation{ID: 42}, nil).Once()
	f.participants.On("Unarchive", mock.Anything, 42, 1).Return(nil).Once()

	w := f.do(http.MethodPost, "/conversations/42/unarchive")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestArchiveUnknownConversation(t *testing.T) {
	f := newHandlerFixture(1)
	f.conversations.On("GetConversation", mock.Anything, 404).
		Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()

	w := f.do(http.MethodPost, "/conversations/404/archive")
	assert.Equal(t, http.StatusNotFound, w.Code)
	f.participants.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything, mock.Anything)
}
