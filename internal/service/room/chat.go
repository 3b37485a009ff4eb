package room

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/oklog/ulid/v2"
	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/repository/chat"
)

const defaultHistoryLimit = 50

type SendMessageParams struct {
	ConnId string
	Sender domain.Identity
	RoomId string
	Text   string
	Type   domain.MessageKind
}

type SendMessageResponse struct {
	Message domain.Message
}

// SendMessage relays a chat message to every connection bound to the room, the sender's included,
// and then stores it. A storage failure does not undo the delivery.
func (s service) SendMessage(ctx context.Context, params *SendMessageParams) (SendMessageResponse, error) {
	s.logger.DebugContext(ctx, "called", "params", params)

	if params.Type == "" {
		params.Type = domain.MessageText
	}
	params.Text = strings.TrimSpace(params.Text)
	if err := validation.ValidateStructWithContext(ctx, params,
		validation.Field(&params.RoomId, RoomIdRule...),
		validation.Field(&params.Text, MessageTextRule...),
		validation.Field(&params.Type, MessageTypeRule...),
	); err != nil {
		return SendMessageResponse{}, fmt.Errorf("failed to validate params: %w", err)
	}

	var msg domain.Message
	err := s.withRoomLock(params.RoomId, func() error {
		if err := s.checkBound(params.ConnId, params.RoomId); err != nil {
			return err
		}

		rm, err := s.getActiveRoom(ctx, params.RoomId)
		if err != nil {
			return err
		}
		if !rm.IsActiveParticipant(params.Sender.Id) {
			return domain.ErrNotParticipant
		}
		if !rm.Settings.ChatEnabled {
			return domain.ErrChatDisabled
		}

		msg = domain.Message{
			Id:        ulid.Make().String(),
			RoomId:    rm.Id,
			User:      params.Sender.User(),
			Text:      params.Text,
			Type:      params.Type,
			Timestamp: s.now(),
		}

		s.broadcast(ctx, rm.Id, &Output{
			Type:    EventNewMessage,
			Payload: msg,
		})

		return nil
	})
	if err != nil {
		return SendMessageResponse{}, fmt.Errorf("failed to send message: %w", err)
	}

	if err := s.chatRepo.SaveMessage(ctx, &msg); err != nil {
		s.logger.WarnContext(ctx, "failed to save message", "message_id", msg.Id, "error", err)
	}

	return SendMessageResponse{Message: msg}, nil
}

type SetTypingParams struct {
	ConnId   string
	Sender   domain.Identity
	RoomId   string
	IsTyping bool
}

// SetTyping tells the other connections in the room that the sender started or stopped typing.
// It is refused while chat is disabled.
func (s service) SetTyping(ctx context.Context, params *SetTypingParams) error {
	s.logger.DebugContext(ctx, "called", "params", params)

	if err := validateRoomId(params.RoomId); err != nil {
		return err
	}

	return s.withRoomLock(params.RoomId, func() error {
		if err := s.checkBound(params.ConnId, params.RoomId); err != nil {
			return err
		}

		rm, err := s.getActiveRoom(ctx, params.RoomId)
		if err != nil {
			return err
		}
		if !rm.Settings.ChatEnabled {
			return domain.ErrChatDisabled
		}

		s.broadcast(ctx, params.RoomId, &Output{
			Type: EventUserTyping,
			Payload: UserTypingPayload{
				User:     params.Sender.User(),
				IsTyping: params.IsTyping,
			},
		}, params.ConnId)

		return nil
	})
}

type ChatHistoryParams struct {
	RoomRef string
	UserId  string
	Before  string
	Limit   int
}

type ChatHistoryResponse struct {
	Messages []domain.Message
}

// ChatHistory pages through stored messages, newest first.
func (s service) ChatHistory(ctx context.Context, params *ChatHistoryParams) (ChatHistoryResponse, error) {
	s.logger.DebugContext(ctx, "called", "params", params)

	if params.Limit == 0 {
		params.Limit = defaultHistoryLimit
	}
	if err := validation.Validate(params.Limit, HistoryLimitRule...); err != nil {
		return ChatHistoryResponse{}, fmt.Errorf("failed to validate limit: %w", err)
	}

	roomId, err := s.resolveRoomId(ctx, params.RoomRef)
	if err != nil {
		return ChatHistoryResponse{}, err
	}

	rm, err := s.getRoom(ctx, roomId)
	if err != nil {
		return ChatHistoryResponse{}, err
	}
	if !rm.IsHost(params.UserId) && !rm.IsActiveParticipant(params.UserId) {
		return ChatHistoryResponse{}, domain.ErrNotParticipant
	}

	messages, err := s.chatRepo.ListMessages(ctx, rm.Id, params.Before, params.Limit)
	if err != nil {
		return ChatHistoryResponse{}, fmt.Errorf("failed to list messages: %w", err)
	}

	return ChatHistoryResponse{Messages: messages}, nil
}

type DeleteMessageParams struct {
	RoomRef   string
	UserId    string
	MessageId string
}

// DeleteMessage removes a message from history. Authors may delete their own messages, the host any.
func (s service) DeleteMessage(ctx context.Context, params *DeleteMessageParams) error {
	s.logger.DebugContext(ctx, "called", "params", params)

	roomId, err := s.resolveRoomId(ctx, params.RoomRef)
	if err != nil {
		return err
	}

	return s.withRoomLock(roomId, func() error {
		rm, err := s.getActiveRoom(ctx, roomId)
		if err != nil {
			return err
		}

		msg, err := s.chatRepo.GetMessage(ctx, rm.Id, params.MessageId)
		if err != nil {
			if errors.Is(err, chat.ErrMessageNotFound) {
				return domain.ErrMessageNotFound
			}
			return fmt.Errorf("failed to get message: %w", err)
		}

		if msg.User.Id != params.UserId && !rm.IsHost(params.UserId) {
			return domain.ErrPermissionDenied
		}

		if err := s.chatRepo.DeleteMessage(ctx, rm.Id, msg.Id); err != nil {
			if errors.Is(err, chat.ErrMessageNotFound) {
				return domain.ErrMessageNotFound
			}
			return fmt.Errorf("failed to delete message: %w", err)
		}

		s.broadcast(ctx, rm.Id, &Output{
			Type:    EventMessageDeleted,
			Payload: MessageDeletedPayload{MessageId: msg.Id},
		})

		return nil
	})
}
