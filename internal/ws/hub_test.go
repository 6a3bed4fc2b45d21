package ws

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

func newTestHub() *Hub {
	receipts := new(mocks.ReceiptRepositoryMock)
	receipts.On("MarkDelivered", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return NewHub(new(mocks.ParticipantRepositoryMock), receipts)
}

func testClient(userID int) *Client {
	return NewClient(ConnInfo{
		ConnID:      fmt.Sprintf("conn-%d-%d", userID, time.Now().UnixNano()),
		UserID:      userID,
		Username:    fmt.Sprintf("user%d", userID),
		ConnectedAt: time.Now(),
	}, nil)
}

// receivedEvents drains everything currently buffered on the client.
func receivedEvents(c *Client) []models.Event {
	var events []models.Event
	for {
		select {
		case ev := <-c.send:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestRegisterTracksMultipleDevices(t *testing.T) {
	hub := newTestHub()

	phone := testClient(1)
	laptop := testClient(1)
	hub.Register(phone)
	hub.Register(laptop)

	assert.True(t, hub.IsOnline(1))
	assert.Len(t, hub.ConnectionsFor(1), 2)

	hub.Unregister(phone)
	assert.True(t, hub.IsOnline(1), "one device left")

	hub.Unregister(laptop)
	assert.False(t, hub.IsOnline(1))
	assert.Empty(t, hub.ConnectionsFor(1))
}

func TestPresenceBroadcastOnFirstAndLastConnection(t *testing.T) {
	hub := newTestHub()

	observer := testClient(2)
	hub.Register(observer)

	phone := testClient(1)
	laptop := testClient(1)
	hub.Register(phone)
	hub.Register(laptop) // second device, no broadcast

	events := receivedEvents(observer)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUserOnline, events[0].Type)
	assert.Equal(t, 1, events[0].UserID)

	hub.Unregister(phone) // still online, no broadcast
	assert.Empty(t, receivedEvents(observer))

	hub.Unregister(laptop)
	events = receivedEvents(observer)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUserOffline, events[0].Type)
	assert.Equal(t, 1, events[0].UserID)
	require.NotNil(t, events[0].LastSeen)
}

func TestRegisteringUserDoesNotReceiveOwnPresence(t *testing.T) {
	hub := newTestHub()

	c := testClient(1)
	hub.Register(c)
	assert.Empty(t, receivedEvents(c))
}

func TestOnlineUsersSorted(t *testing.T) {
	hub := newTestHub()

	for _, id := range []int{5, 1, 3} {
		hub.Register(testClient(id))
	}
	assert.Equal(t, []int{1, 3, 5}, hub.OnlineUsers())
}

func TestSubscribersFallsBackToParticipantRows(t *testing.T) {
	participants := new(mocks.ParticipantRepositoryMock)
	participants.On("ActiveUserIDs", mock.Anything, 42).Return([]int{3, 1, 2}, nil).Once()
	hub := NewHub(participants, new(mocks.ReceiptRepositoryMock))

	ids, err := hub.Subscribers(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2}, ids)

	// Second lookup is served from the cache; the mock would fail a re-call.
	ids, err = hub.Subscribers(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)
	participants.AssertExpectations(t)
}

func TestJoinRequiresActiveMembership(t *testing.T) {
	participants := new(mocks.ParticipantRepositoryMock)
	participants.On("IsActiveParticipant", mock.Anything, 42, 1).Return(true, nil).Once()
	participants.On("IsActiveParticipant", mock.Anything, 42, 9).Return(false, nil).Once()
	hub := NewHub(participants, new(mocks.ReceiptRepositoryMock))

	ok, err := hub.Join(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hub.Join(context.Background(), 42, 9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJoinAndLeaveMaintainCachedSet(t *testing.T) {
	participants := new(mocks.ParticipantRepositoryMock)
	participants.On("ActiveUserIDs", mock.Anything, 42).Return([]int{1, 2}, nil).Once()
	participants.On("IsActiveParticipant", mock.Anything, 42, 3).Return(true, nil).Once()
	hub := NewHub(participants, new(mocks.ReceiptRepositoryMock))

	// Populate the cache, then grow it via Join.
	_, err := hub.Subscribers(context.Background(), 42)
	require.NoError(t, err)

	ok, err := hub.Join(context.Background(), 42, 3)
	require.NoError(t, err)
	require.True(t, ok)

	ids, err := hub.Subscribers(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)

	hub.Leave(42, 2)
	ids, err = hub.Subscribers(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, ids)
}

func TestDeliverToOfflineUserQueues(t *testing.T) {
	hub := newTestHub()

	hub.DeliverToUser(1, models.Event{Type: models.EventNewMessage})
	hub.DeliverToUser(1, models.Event{Type: models.EventNewMessage})
	assert.Equal(t, 2, hub.QueuedFor(1))
}

func TestOfflineQueueCapDropsOldest(t *testing.T) {
	hub := newTestHub()

	for i := 0; i < OfflineQueueCapacity+5; i++ {
		hub.DeliverToUser(1, models.Event{Type: models.EventNewMessage, MessageID: i})
	}
	assert.Equal(t, OfflineQueueCapacity, hub.QueuedFor(1))

	c := testClient(1)
	hub.Register(c)

	events := receivedEvents(c)
	require.Len(t, events, OfflineQueueCapacity)
	// The five oldest were dropped; delivery preserves arrival order.
	assert.Equal(t, 5, events[0].MessageID)
	assert.Equal(t, OfflineQueueCapacity+4, events[len(events)-1].MessageID)
	assert.Equal(t, 0, hub.QueuedFor(1))
}

func TestReconnectDrainsQueueOnce(t *testing.T) {
	hub := newTestHub()

	hub.DeliverToUser(1, models.Event{Type: models.EventNewMessage, MessageID: 7})

	first := testClient(1)
	hub.Register(first)
	events := receivedEvents(first)
	require.Len(t, events, 1)
	assert.Equal(t, 7, events[0].MessageID)

	// A second device registering must not replay the queue.
	second := testClient(1)
	hub.Register(second)
	assert.Empty(t, receivedEvents(second))
}

func TestDeliverFansOutToAllDevices(t *testing.T) {
	hub := newTestHub()

	phone := testClient(1)
	laptop := testClient(1)
	hub.Register(phone)
	hub.Register(laptop)

	hub.DeliverToUser(1, models.Event{Type: models.EventNewMessage, MessageID: 9})
	for _, c := range []*Client{phone, laptop} {
		events := receivedEvents(c)
		require.Len(t, events, 1)
		assert.Equal(t, 9, events[0].MessageID)
	}
}

func TestSlowClientIsTornDown(t *testing.T) {
	hub := newTestHub()

	c := testClient(1)
	hub.Register(c)
	for i := 0; i < sendBufferSize; i++ {
		hub.DeliverToUser(1, models.Event{Type: models.EventNewMessage})
	}
	// Buffer is full; the next delivery closes the connection.
	hub.DeliverToUser(1, models.Event{Type: models.EventNewMessage})
	assert.False(t, hub.IsOnline(1))
}

func TestTypingSweepExpiresStaleEntries(t *testing.T) {
	hub := newTestHub()

	hub.SetTyping(42, 1, true)
	hub.SetTyping(42, 2, true)
	hub.mu.Lock()
	hub.typing[typingKey{conversationID: 42, userID: 1}] = time.Now().Add(-time.Minute)
	hub.mu.Unlock()

	assert.Equal(t, 1, hub.sweepTyping(10*time.Second))
	assert.Equal(t, 0, hub.sweepTyping(10*time.Second))
}

func TestStopTypingClearsEntry(t *testing.T) {
	hub := newTestHub()

	hub.SetTyping(42, 1, true)
	hub.SetTyping(42, 1, false)
	assert.Equal(t, 0, hub.sweepTyping(0))
}

func TestDisconnectClearsTypingState(t *testing.T) {
	hub := newTestHub()

	c := testClient(1)
	hub.Register(c)
	hub.SetTyping(42, 1, true)
	hub.Unregister(c)

	// The sweep finds nothing to expire because unregister already cleared it.
	assert.Equal(t, 0, hub.sweepTyping(0))
}

func TestIdleSweepClosesStaleConnections(t *testing.T) {
	hub := newTestHub()

	idle := testClient(1)
	active := testClient(2)
	hub.Register(idle)
	hub.Register(active)

	idle.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())

	assert.Equal(t, 1, hub.sweepIdle(5*time.Minute))
	assert.False(t, hub.IsOnline(1))
	assert.True(t, hub.IsOnline(2))
}

func TestDrainStampsDeliveredReceiptsForQueuedMessages(t *testing.T) {
	receipts := new(mocks.ReceiptRepositoryMock)
	receipts.On("MarkDelivered", mock.Anything, 10, 1, mock.Anything).Return(nil).Once()
	receipts.On("MarkDelivered", mock.Anything, 11, 1, mock.Anything).Return(nil).Once()
	hub := NewHub(new(mocks.ParticipantRepositoryMock), receipts)

	typing := true
	hub.DeliverToUser(1, models.Event{Type: models.EventNewMessage, Message: &models.Message{ID: 10, ConversationID: 42}})
	hub.DeliverToUser(1, models.Event{Type: models.EventUserTyping, ConversationID: 42, UserID: 2, IsTyping: &typing})
	hub.DeliverToUser(1, models.Event{Type: models.EventNewMessage, Message: &models.Message{ID: 11, ConversationID: 42}})

	hub.Register(testClient(1))

	// Only the two queued messages get receipts; the typing event has none.
	receipts.AssertExpectations(t)
	receipts.AssertNumberOfCalls(t, "MarkDelivered", 2)
}

func TestDeliverNeverStrandsEventsWhileUserIsOnline(t *testing.T) {
	hub := newTestHub()

	const total = 60
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			hub.DeliverToUser(1, models.Event{Type: models.EventNewMessage, MessageID: i})
		}
	}()

	c := testClient(1)
	hub.Register(c)
	<-done

	// Every event either reached the connection directly or rode the queue
	// through the drain; none may sit queued while the user is online.
	assert.Equal(t, 0, hub.QueuedFor(1))
	assert.Len(t, receivedEvents(c), total)
}
