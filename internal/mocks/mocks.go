package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListConversationsForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) TouchLastMessageAt(ctx context.Context, conversationID int, at time.Time) error {
	args := m.Called(ctx, conversationID, at)
	return args.Error(0)
}

type ParticipantRepositoryMock struct {
	mock.Mock
}

func (m *ParticipantRepositoryMock) IsActiveParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ParticipantRepositoryMock) ActiveUserIDs(ctx context.Context, conversationID int) ([]int, error) {
	args := m.Called(ctx, conversationID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *ParticipantRepositoryMock) Archive(ctx context.Context, conversationID int, userID int) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func (m *ParticipantRepositoryMock) Unarchive(ctx context.Context, conversationID int, userID int) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, in repositories.NewMessage) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListConversationMessages(ctx context.Context, conversationID int, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateContent(ctx context.Context, messageID int, content string, editedAt time.Time) error {
	args := m.Called(ctx, messageID, content, editedAt)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkDeleted(ctx context.Context, messageID int, deletedAt time.Time) error {
	args := m.Called(ctx, messageID, deletedAt)
	return args.Error(0)
}

type ReceiptRepositoryMock struct {
	mock.Mock
}

func (m *ReceiptRepositoryMock) CreateDelivered(ctx context.Context, messageID int, userIDs []int, deliveredAt time.Time) error {
	args := m.Called(ctx, messageID, userIDs, deliveredAt)
	return args.Error(0)
}

func (m *ReceiptRepositoryMock) MarkDelivered(ctx context.Context, messageID int, userID int, at time.Time) error {
	args := m.Called(ctx, messageID, userID, at)
	return args.Error(0)
}

func (m *ReceiptRepositoryMock) MarkRead(ctx context.Context, messageID int, userID int, at time.Time) (bool, error) {
	args := m.Called(ctx, messageID, userID, at)
	return args.Bool(0), args.Error(1)
}

func (m *ReceiptRepositoryMock) MarkConversationRead(ctx context.Context, conversationID int, userID int, at time.Time) (int, error) {
	args := m.Called(ctx, conversationID, userID, at)
	return args.Int(0), args.Error(1)
}

type BlockRepositoryMock struct {
	mock.Mock
}

func (m *BlockRepositoryMock) Block(ctx context.Context, blockerID int, blockedID int) error {
	args := m.Called(ctx, blockerID, blockedID)
	return args.Error(0)
}

func (m *BlockRepositoryMock) Unblock(ctx context.Context, blockerID int, blockedID int) error {
	args := m.Called(ctx, blockerID, blockedID)
	return args.Error(0)
}

func (m *BlockRepositoryMock) IsBlocked(ctx context.Context, blockerID int, blockedID int) (bool, error) {
	args := m.Called(ctx, blockerID, blockedID)
	return args.Bool(0), args.Error(1)
}

// FanoutRecorder records deliveries in call order. It stands in for the
// ConnectionHub in service tests.
type FanoutRecorder struct {
	SubscriberSets map[int][]int
	SubscribersErr error

	Delivered []Delivery
	Typing    []TypingCall
}

type Delivery struct {
	UserID int
	Event  models.Event
}

type TypingCall struct {
	ConversationID int
	UserID         int
	Typing         bool
}

func NewFanoutRecorder() *FanoutRecorder {
	return &FanoutRecorder{SubscriberSets: map[int][]int{}}
}

func (f *FanoutRecorder) DeliverToUser(userID int, ev models.Event) {
	f.Delivered = append(f.Delivered, Delivery{UserID: userID, Event: ev})
}

func (f *FanoutRecorder) Subscribers(ctx context.Context, conversationID int) ([]int, error) {
	if f.SubscribersErr != nil {
		return nil, f.SubscribersErr
	}
	return f.SubscriberSets[conversationID], nil
}

func (f *FanoutRecorder) SetTyping(conversationID int, userID int, typing bool) {
	f.Typing = append(f.Typing, TypingCall{ConversationID: conversationID, UserID: userID, Typing: typing})
}

// EventsFor returns the events delivered to one user, in order.
func (f *FanoutRecorder) EventsFor(userID int) []models.Event {
	var events []models.Event
	for _, d := range f.Delivered {
		if d.UserID == userID {
			events = append(events, d.Event)
		}
	}
	return events
}
