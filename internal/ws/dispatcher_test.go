package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/messaging"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

type dispatcherFixture struct {
	hub           *Hub
	participants  *mocks.ParticipantRepositoryMock
	messages      *mocks.MessageRepositoryMock
	conversations *mocks.ConversationRepositoryMock
	receipts      *mocks.ReceiptRepositoryMock
	blocks        *mocks.BlockRepositoryMock
	dispatcher    *Dispatcher
}

func newDispatcherFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		participants:  new(mocks.ParticipantRepositoryMock),
		messages:      new(mocks.MessageRepositoryMock),
		conversations: new(mocks.ConversationRepositoryMock),
		receipts:      new(mocks.ReceiptRepositoryMock),
		blocks:        new(mocks.BlockRepositoryMock),
	}
	f.hub = NewHub(f.participants, f.receipts)
	svc := messaging.NewService(
		f.messages,
		f.conversations,
		f.participants,
		f.receipts,
		f.blocks,
		f.hub,
		nil,
	)
	f.dispatcher = NewDispatcher(f.hub, svc)
	return f
}

func TestDispatchPingAnswersPong(t *testing.T) {
	f := newDispatcherFixture()
	c := testClient(1)
	f.hub.Register(c)

	f.dispatcher.Dispatch(context.Background(), c, []byte(`{"type":"ping","request_id":"req-1"}`))

	events := receivedEvents(c)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPong, events[0].Type)
	assert.Equal(t, "req-1", events[0].RequestID)
}

func TestDispatchUnknownFrameSendsValidationError(t *testing.T) {
	f := newDispatcherFixture()
	c := testClient(1)
	f.hub.Register(c)

	f.dispatcher.Dispatch(context.Background(), c, []byte(`{"type":"presence_probe","request_id":"req-2"}`))

	events := receivedEvents(c)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventError, events[0].Type)
	assert.Equal(t, messaging.CodeValidation, events[0].Code)
	assert.Equal(t, "req-2", events[0].RequestID)
	assert.False(t, events[0].Retryable)
}

func TestDispatchJoinDeniedForNonParticipant(t *testing.T) {
	f := newDispatcherFixture()
	f.participants.On("IsActiveParticipant", mock.Anything, 42, 9).Return(false, nil).Once()

	c := testClient(9)
	f.hub.Register(c)

	f.dispatcher.Dispatch(context.Background(), c, []byte(`{"type":"join_conversation","conversation_id":42}`))

	events := receivedEvents(c)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventError, events[0].Type)
	assert.Equal(t, messaging.CodePermissionDenied, events[0].Code)
}

func TestDispatchPersistenceErrorsAreSanitized(t *testing.T) {
	f := newDispatcherFixture()
	f.participants.On("IsActiveParticipant", mock.Anything, 42, 1).
		Return(false, assert.AnError).Once()

	c := testClient(1)
	f.hub.Register(c)

	f.dispatcher.Dispatch(context.Background(), c, []byte(`{"type":"join_conversation","conversation_id":42,"request_id":"req-3"}`))

	events := receivedEvents(c)
	require.Len(t, events, 1)
	assert.Equal(t, messaging.CodePersistence, events[0].Code)
	assert.True(t, events[0].Retryable)
	assert.Equal(t, "temporary failure, retry later", events[0].Error)
	assert.NotContains(t, events[0].Error, assert.AnError.Error())
}

func TestDispatchGetOnlineUsers(t *testing.T) {
	f := newDispatcherFixture()
	f.hub.Register(testClient(3))
	f.hub.Register(testClient(2))
	c := testClient(1)
	f.hub.Register(c)

	f.dispatcher.Dispatch(context.Background(), c, []byte(`{"type":"get_online_users","request_id":"req-4"}`))

	events := receivedEvents(c)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventOnlineUsers, events[0].Type)
	assert.Equal(t, "req-4", events[0].RequestID)
	assert.Equal(t, []int{1, 2, 3}, events[0].UserIDs)
}

func TestDispatchSendMessageDeliversAck(t *testing.T) {
	f := newDispatcherFixture()
	sender := testClient(1)
	f.hub.Register(sender)

	stored := models.Message{ID: 10, ConversationID: 42, SenderID: 1, Content: "hi", SentAt: time.Now()}
	f.participants.On("IsActiveParticipant", mock.Anything, 42, 1).Return(true, nil).Once()
	f.messages.On("CreateMessage", mock.Anything, mock.Anything).Return(stored, nil).Once()
	f.participants.On("ActiveUserIDs", mock.Anything, 42).Return([]int{1}, nil).Twice()
	f.conversations.On("TouchLastMessageAt", mock.Anything, 42, mock.Anything).Return(nil).Once()
	f.receipts.On("CreateDelivered", mock.Anything, 10, []int{}, mock.Anything).Return(nil).Once()

	f.dispatcher.Dispatch(context.Background(), sender, []byte(`{"type":"send_message","request_id":"req-5","conversation_id":42,"content":"hi"}`))

	events := receivedEvents(sender)
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventMessageSent, events[0].Type)
	assert.Equal(t, "req-5", events[0].RequestID)
	require.NotNil(t, events[0].Message)
	assert.Equal(t, 10, events[0].Message.ID)
}

func TestDispatchTouchesActivity(t *testing.T) {
	f := newDispatcherFixture()
	c := testClient(1)
	f.hub.Register(c)
	c.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())

	f.dispatcher.Dispatch(context.Background(), c, []byte(`{"type":"ping"}`))
	assert.WithinDuration(t, time.Now(), c.LastActivity(), time.Second)
}
