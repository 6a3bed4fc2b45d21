package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// Mutation windows on authored messages.
const (
	EditWindow   = 15 * time.Minute
	DeleteWindow = 24 * time.Hour
)

// Fanout delivers outbound events to live connections, spilling to per-user
// offline queues for absent recipients. The ConnectionHub implements it.
type Fanout interface {
	DeliverToUser(userID int, ev models.Event)
	Subscribers(ctx context.Context, conversationID int) ([]int, error)
	SetTyping(conversationID int, userID int, typing bool)
}

// Service owns message semantics: validation, persistence, receipts, fan-out
// ordering, and the time-windowed edit/delete policy.
type Service struct {
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
	participants  repositories.ParticipantRepository
	receipts      repositories.ReceiptRepository
	blocks        repositories.BlockRepository
	fanout        Fanout
	audit         *telemetry.AuditEmitter

	now func() time.Time
}

// NewService wires a Service.
func NewService(
	messages repositories.MessageRepository,
	conversations repositories.ConversationRepository,
	participants repositories.ParticipantRepository,
	receipts repositories.ReceiptRepository,
	blocks repositories.BlockRepository,
	fanout Fanout,
	audit *telemetry.AuditEmitter,
) *Service {
	return &Service{
		messages:      messages,
		conversations: conversations,
		participants:  participants,
		receipts:      receipts,
		blocks:        blocks,
		fanout:        fanout,
		audit:         audit,
		now:           time.Now,
	}
}

// SendInput carries an inbound send_message request.
type SendInput struct {
	ConversationID  int
	Content         string
	MessageType     string
	ReceiverID      *int
	ParentMessageID *int
	Attachments     []models.Attachment
	RequestID       string
}

// Send validates, persists, and fans out a message. The sender's own
// message_sent ack is delivered before any new_message broadcast, so the
// sender never observes its ack after the fan-out. Receipt creation and the
// last-message-at bump are fallible but non-fatal: missing receipts are
// recreated lazily and the next send repairs the timestamp.
func (s *Service) Send(ctx context.Context, senderID int, in SendInput) (models.Message, error) {
	if in.ConversationID <= 0 {
		return models.Message{}, validationf("conversation id is required")
	}
	if strings.TrimSpace(in.Content) == "" && len(in.Attachments) == 0 {
		return models.Message{}, validationf("message content is required")
	}
	for _, a := range in.Attachments {
		if err := validateAttachment(a); err != nil {
			return models.Message{}, err
		}
	}
	if in.MessageType == "" {
		in.MessageType = "text"
	}

	member, err := s.participants.IsActiveParticipant(ctx, in.ConversationID, senderID)
	if err != nil {
		return models.Message{}, persistence(err)
	}
	if !member {
		return models.Message{}, ErrPermissionDenied
	}

	if in.ParentMessageID != nil {
		parent, err := s.messages.GetMessage(ctx, *in.ParentMessageID)
		if err != nil {
			if errors.Is(err, repositories.ErrMessageNotFound) {
				return models.Message{}, validationf("parent message does not exist")
			}
			return models.Message{}, persistence(err)
		}
		if parent.ConversationID != in.ConversationID {
			return models.Message{}, validationf("parent message belongs to another conversation")
		}
	}

	msg, err := s.messages.CreateMessage(ctx, repositories.NewMessage{
		ConversationID:  in.ConversationID,
		SenderID:        senderID,
		ReceiverID:      in.ReceiverID,
		ParentMessageID: in.ParentMessageID,
		Content:         in.Content,
		MessageType:     in.MessageType,
		Attachments:     in.Attachments,
	})
	if err != nil {
		return models.Message{}, persistence(err)
	}

	// Ack the sender before anyone else sees the message.
	s.fanout.DeliverToUser(senderID, models.Event{
		Type:      models.EventMessageSent,
		RequestID: in.RequestID,
		Message:   &msg,
	})

	recipients, err := s.fanout.Subscribers(ctx, in.ConversationID)
	if err != nil {
		log.Printf("fan-out recipient lookup failed conversation=%d: %v", in.ConversationID, err)
		recipients = nil
	}
	broadcast := models.Event{Type: models.EventNewMessage, Message: &msg}
	for _, userID := range recipients {
		if userID == senderID {
			continue
		}
		blocked, err := s.blocks.IsBlocked(ctx, userID, senderID)
		if err != nil {
			log.Printf("block lookup failed blocker=%d blocked=%d: %v", userID, senderID, err)
		}
		if blocked {
			continue
		}
		s.fanout.DeliverToUser(userID, broadcast)
	}

	now := s.now()
	if err := s.conversations.TouchLastMessageAt(ctx, in.ConversationID, now); err != nil {
		log.Printf("last-message-at update failed conversation=%d: %v", in.ConversationID, err)
	}

	participantIDs, err := s.participants.ActiveUserIDs(ctx, in.ConversationID)
	if err != nil {
		log.Printf("receipt participant lookup failed conversation=%d: %v", in.ConversationID, err)
		participantIDs = nil
	}
	receiptUsers := make([]int, 0, len(participantIDs))
	for _, userID := range participantIDs {
		if userID != senderID {
			receiptUsers = append(receiptUsers, userID)
		}
	}
	if err := s.receipts.CreateDelivered(ctx, msg.ID, receiptUsers, now); err != nil {
		log.Printf("delivered receipt insert failed message=%d: %v", msg.ID, err)
	}

	publishMessageEvent(ctx, "message.sent", msg)
	return msg, nil
}

// Edit mutates the content of an authored message inside the edit window and
// broadcasts message_edited to every subscriber, the actor included, so all
// of the actor's devices converge.
func (s *Service) Edit(ctx context.Context, actorID int, messageID int, content string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, validationf("message content is required")
	}

	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, persistence(err)
	}
	if msg.IsDeleted {
		return models.Message{}, ErrNotFound
	}
	if msg.SenderID != actorID {
		return models.Message{}, ErrPermissionDenied
	}
	now := s.now()
	if now.Sub(msg.SentAt) > EditWindow {
		return models.Message{}, ErrWindowExpired
	}

	if err := s.messages.UpdateContent(ctx, messageID, content, now); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, persistence(err)
	}

	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &now

	s.broadcastToSubscribers(ctx, msg.ConversationID, models.Event{
		Type:    models.EventMessageEdited,
		Message: &msg,
	})
	publishMessageEvent(ctx, "message.edited", msg)
	return msg, nil
}

// Delete tombstones an authored message inside the delete window. The
// transition is terminal; afterwards neither edit nor delete can succeed.
func (s *Service) Delete(ctx context.Context, actorID int, messageID int) error {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return ErrNotFound
		}
		return persistence(err)
	}
	if msg.IsDeleted {
		return ErrNotFound
	}
	if msg.SenderID != actorID {
		return ErrPermissionDenied
	}
	now := s.now()
	if now.Sub(msg.SentAt) > DeleteWindow {
		return ErrWindowExpired
	}

	if err := s.messages.MarkDeleted(ctx, messageID, now); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return ErrNotFound
		}
		return persistence(err)
	}

	s.broadcastToSubscribers(ctx, msg.ConversationID, models.Event{
		Type:           models.EventMessageDeleted,
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
		UserID:         actorID,
	})
	publishMessageEvent(ctx, "message.deleted", msg)
	s.audit.Emit(ctx, "info", fmt.Sprintf("message %d deleted by sender %d", messageID, actorID), "", nil)
	return nil
}

// MarkRead sets the reader's read timestamp once. Re-reads are no-ops and the
// sender is notified only on the first transition.
func (s *Service) MarkRead(ctx context.Context, readerID int, messageID int) error {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return ErrNotFound
		}
		return persistence(err)
	}
	if msg.SenderID == readerID {
		return nil
	}

	transitioned, err := s.receipts.MarkRead(ctx, messageID, readerID, s.now())
	if err != nil {
		return persistence(err)
	}
	if transitioned {
		s.fanout.DeliverToUser(msg.SenderID, models.Event{
			Type:           models.EventMessageRead,
			MessageID:      messageID,
			ConversationID: msg.ConversationID,
			ReaderID:       readerID,
		})
	}
	return nil
}

// MarkConversationRead closes every outstanding receipt in one update and
// emits a single conversation_read event instead of one per message, keeping
// reconnect catch-up traffic bounded.
func (s *Service) MarkConversationRead(ctx context.Context, readerID int, conversationID int) (int, error) {
	member, err := s.participants.IsActiveParticipant(ctx, conversationID, readerID)
	if err != nil {
		return 0, persistence(err)
	}
	if !member {
		return 0, ErrPermissionDenied
	}

	count, err := s.receipts.MarkConversationRead(ctx, conversationID, readerID, s.now())
	if err != nil {
		return 0, persistence(err)
	}

	s.broadcastToSubscribers(ctx, conversationID, models.Event{
		Type:           models.EventConversationRead,
		ConversationID: conversationID,
		ReaderID:       readerID,
		ReadCount:      count,
	})
	return count, nil
}

// SetTyping records/clears ephemeral typing state and tells the other
// subscribers. The actor is excluded; their own keystrokes are signal enough.
func (s *Service) SetTyping(ctx context.Context, userID int, conversationID int, typing bool) error {
	if conversationID <= 0 {
		return validationf("conversation id is required")
	}
	s.fanout.SetTyping(conversationID, userID, typing)

	recipients, err := s.fanout.Subscribers(ctx, conversationID)
	if err != nil {
		return persistence(err)
	}
	ev := models.Event{
		Type:           models.EventUserTyping,
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       &typing,
	}
	for _, id := range recipients {
		if id != userID {
			s.fanout.DeliverToUser(id, ev)
		}
	}
	return nil
}

// Block stops message delivery from the blocked user to the blocker. The
// blocked user is not informed.
func (s *Service) Block(ctx context.Context, blockerID int, blockedID int) error {
	if blockedID <= 0 || blockedID == blockerID {
		return validationf("invalid user to block")
	}
	if err := s.blocks.Block(ctx, blockerID, blockedID); err != nil {
		return persistence(err)
	}
	s.audit.Emit(ctx, "info", fmt.Sprintf("user %d blocked user %d", blockerID, blockedID), "", nil)
	return nil
}

// Unblock lifts a block; unblocking someone never blocked is a no-op.
func (s *Service) Unblock(ctx context.Context, blockerID int, blockedID int) error {
	if blockedID <= 0 {
		return validationf("invalid user to unblock")
	}
	if err := s.blocks.Unblock(ctx, blockerID, blockedID); err != nil {
		return persistence(err)
	}
	return nil
}

func (s *Service) broadcastToSubscribers(ctx context.Context, conversationID int, ev models.Event) {
	recipients, err := s.fanout.Subscribers(ctx, conversationID)
	if err != nil {
		log.Printf("fan-out recipient lookup failed conversation=%d: %v", conversationID, err)
		return
	}
	for _, userID := range recipients {
		s.fanout.DeliverToUser(userID, ev)
	}
}

func publishMessageEvent(ctx context.Context, routingKey string, msg models.Message) {
	_ = observability.PublishEvent(ctx, routingKey, observability.EventEnvelope{
		EventType: "message_events",
		EventName: routingKey,
		Payload: map[string]interface{}{
			"message_id":      msg.ID,
			"conversation_id": msg.ConversationID,
			"sender_id":       msg.SenderID,
			"sent_at":         msg.SentAt,
		},
	}, nil)
}
