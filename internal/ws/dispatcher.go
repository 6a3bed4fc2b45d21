package ws

import (
	"context"

	"messaging-service/internal/messaging"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// Dispatcher routes decoded inbound frames to the messaging service and the
// hub. Every per-action error goes back to the requesting connection only,
// tagged with the original request id.
type Dispatcher struct {
	hub *Hub
	svc *messaging.Service
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(hub *Hub, svc *messaging.Service) *Dispatcher {
	return &Dispatcher{hub: hub, svc: svc}
}

// Dispatch handles one inbound frame from the client.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, data []byte) {
	c.Touch()

	frame, err := DecodeFrame(data)
	if err != nil {
		observability.IncFrame(frame.Type, "rejected")
		d.sendError(c, frame.RequestID, messaging.ErrValidation, err.Error())
		return
	}

	if err := d.handle(ctx, c, frame); err != nil {
		observability.IncFrame(frame.Type, "error")
		d.sendError(c, frame.RequestID, err, "")
		return
	}
	observability.IncFrame(frame.Type, "ok")
}

func (d *Dispatcher) handle(ctx context.Context, c *Client, frame Frame) error {
	userID := c.Info.UserID

	switch frame.Type {
	case FramePing:
		c.Deliver(models.Event{Type: models.EventPong, RequestID: frame.RequestID})
		return nil

	case FrameSendMessage:
		_, err := d.svc.Send(ctx, userID, messaging.SendInput{
			ConversationID:  frame.Send.ConversationID,
			Content:         frame.Send.Content,
			MessageType:     frame.Send.MessageType,
			ReceiverID:      frame.Send.ReceiverID,
			ParentMessageID: frame.Send.ParentMessageID,
			Attachments:     frame.Send.Attachments,
			RequestID:       frame.RequestID,
		})
		return err

	case FrameTypingStart:
		return d.svc.SetTyping(ctx, userID, frame.Conversation.ConversationID, true)

	case FrameTypingStop:
		return d.svc.SetTyping(ctx, userID, frame.Conversation.ConversationID, false)

	case FrameMarkRead:
		return d.svc.MarkRead(ctx, userID, frame.Message.MessageID)

	case FrameMarkConversationRead:
		_, err := d.svc.MarkConversationRead(ctx, userID, frame.Conversation.ConversationID)
		return err

	case FrameJoinConversation:
		joined, err := d.hub.Join(ctx, frame.Conversation.ConversationID, userID)
		if err != nil {
			return messaging.ErrPersistence
		}
		if !joined {
			return messaging.ErrPermissionDenied
		}
		return nil

	case FrameLeaveConversation:
		d.hub.Leave(frame.Conversation.ConversationID, userID)
		return nil

	case FrameEditMessage:
		_, err := d.svc.Edit(ctx, userID, frame.Message.MessageID, frame.Message.Content)
		return err

	case FrameDeleteMessage:
		return d.svc.Delete(ctx, userID, frame.Message.MessageID)

	case FrameGetOnlineUsers:
		c.Deliver(models.Event{
			Type:      models.EventOnlineUsers,
			RequestID: frame.RequestID,
			UserIDs:   d.hub.OnlineUsers(),
		})
		return nil

	case FrameBlockUser:
		return d.svc.Block(ctx, userID, frame.User.UserID)

	case FrameUnblockUser:
		return d.svc.Unblock(ctx, userID, frame.User.UserID)
	}
	return nil
}

func (d *Dispatcher) sendError(c *Client, requestID string, err error, detail string) {
	code, retryable := messaging.CodeOf(err)
	text := detail
	if text == "" {
		text = err.Error()
	}
	if code == messaging.CodePersistence {
		// Never leak store internals to the client.
		text = "temporary failure, retry later"
	}
	c.Deliver(models.Event{
		Type:      models.EventError,
		RequestID: requestID,
		Code:      code,
		Error:     text,
		Retryable: retryable,
	})
}
