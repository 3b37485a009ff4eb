package controller

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/service/room"
)

type RoomInput struct {
	RoomId string `json:"roomId" validate:"required,uuid"`
}

func (c controller) handleJoinRoom(ctx context.Context, _ *websocket.Conn, input RoomInput) error {
	conn := c.getConnFromCtx(ctx)

	if _, err := c.roomService.BindConn(ctx, &room.BindConnParams{
		ConnId: conn.Id,
		RoomId: input.RoomId,
	}); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	return nil
}

func (c controller) handleLeaveRoom(ctx context.Context, _ *websocket.Conn, input RoomInput) error {
	conn := c.getConnFromCtx(ctx)

	if err := c.roomService.UnbindConn(ctx, &room.UnbindConnParams{
		ConnId: conn.Id,
		RoomId: input.RoomId,
	}); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	return nil
}

type PlaybackInput struct {
	RoomId      string   `json:"roomId" validate:"required,uuid"`
	CurrentTime *float64 `json:"currentTime" validate:"required,gte=0"`
}

func (c controller) playbackParams(ctx context.Context, input PlaybackInput) *room.PlaybackParams {
	conn := c.getConnFromCtx(ctx)

	return &room.PlaybackParams{
		ConnId:      conn.Id,
		Sender:      conn.Identity,
		RoomId:      input.RoomId,
		CurrentTime: *input.CurrentTime,
	}
}

func (c controller) handlePlayVideo(ctx context.Context, _ *websocket.Conn, input PlaybackInput) error {
	if err := c.roomService.PlayVideo(ctx, c.playbackParams(ctx, input)); err != nil {
		return fmt.Errorf("failed to play video: %w", err)
	}

	return nil
}

func (c controller) handlePauseVideo(ctx context.Context, _ *websocket.Conn, input PlaybackInput) error {
	if err := c.roomService.PauseVideo(ctx, c.playbackParams(ctx, input)); err != nil {
		return fmt.Errorf("failed to pause video: %w", err)
	}

	return nil
}

func (c controller) handleSeekVideo(ctx context.Context, _ *websocket.Conn, input PlaybackInput) error {
	if err := c.roomService.SeekVideo(ctx, c.playbackParams(ctx, input)); err != nil {
		return fmt.Errorf("failed to seek video: %w", err)
	}

	return nil
}

type VideoInput struct {
	Type     string   `json:"type" validate:"omitempty,oneof=youtube direct upload"`
	Url      string   `json:"url" validate:"required,max=2048"`
	Id       string   `json:"id" validate:"max=64"`
	Title    string   `json:"title" validate:"max=200"`
	Duration *float64 `json:"duration" validate:"omitempty,gt=0"`
}

func (v VideoInput) descriptor() domain.VideoDescriptor {
	return domain.VideoDescriptor{
		Type:       domain.SourceKind(v.Type),
		Url:        v.Url,
		ExternalId: v.Id,
		Title:      v.Title,
		Duration:   v.Duration,
	}
}

type ChangeVideoInput struct {
	RoomId string     `json:"roomId" validate:"required,uuid"`
	Video  VideoInput `json:"video" validate:"required"`
}

func (c controller) handleChangeVideo(ctx context.Context, _ *websocket.Conn, input ChangeVideoInput) error {
	conn := c.getConnFromCtx(ctx)

	if _, err := c.roomService.SetVideo(ctx, &room.SetVideoParams{
		ConnId:  conn.Id,
		RoomRef: input.RoomId,
		Sender:  conn.Identity.User(),
		Video:   input.Video.descriptor(),
	}); err != nil {
		return fmt.Errorf("failed to change video: %w", err)
	}

	return nil
}

func (c controller) handleSyncVideoState(ctx context.Context, _ *websocket.Conn, input RoomInput) error {
	conn := c.getConnFromCtx(ctx)

	if err := c.roomService.SyncVideoState(ctx, &room.SyncVideoStateParams{
		ConnId: conn.Id,
		RoomId: input.RoomId,
	}); err != nil {
		return fmt.Errorf("failed to sync video state: %w", err)
	}

	return nil
}

type VideoDurationInput struct {
	RoomId   string  `json:"roomId" validate:"required,uuid"`
	Duration float64 `json:"duration" validate:"required,gt=0"`
}

func (c controller) handleVideoDuration(ctx context.Context, _ *websocket.Conn, input VideoDurationInput) error {
	conn := c.getConnFromCtx(ctx)

	if err := c.roomService.ReportDuration(ctx, &room.ReportDurationParams{
		ConnId:   conn.Id,
		Sender:   conn.Identity,
		RoomId:   input.RoomId,
		Duration: input.Duration,
	}); err != nil {
		return fmt.Errorf("failed to report duration: %w", err)
	}

	return nil
}

type MessageInput struct {
	Text string `json:"text" validate:"required,max=500"`
	Type string `json:"type" validate:"omitempty,oneof=text emoji"`
}

type SendMessageInput struct {
	RoomId  string       `json:"roomId" validate:"required,uuid"`
	Message MessageInput `json:"message" validate:"required"`
}

func (c controller) handleSendMessage(ctx context.Context, _ *websocket.Conn, input SendMessageInput) error {
	conn := c.getConnFromCtx(ctx)

	if _, err := c.roomService.SendMessage(ctx, &room.SendMessageParams{
		ConnId: conn.Id,
		Sender: conn.Identity,
		RoomId: input.RoomId,
		Text:   input.Message.Text,
		Type:   domain.MessageKind(input.Message.Type),
	}); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (c controller) handleTypingStart(ctx context.Context, _ *websocket.Conn, input RoomInput) error {
	return c.setTyping(ctx, input.RoomId, true)
}

func (c controller) handleTypingStop(ctx context.Context, _ *websocket.Conn, input RoomInput) error {
	return c.setTyping(ctx, input.RoomId, false)
}

func (c controller) setTyping(ctx context.Context, roomId string, isTyping bool) error {
	conn := c.getConnFromCtx(ctx)

	if err := c.roomService.SetTyping(ctx, &room.SetTypingParams{
		ConnId:   conn.Id,
		Sender:   conn.Identity,
		RoomId:   roomId,
		IsTyping: isTyping,
	}); err != nil {
		return fmt.Errorf("failed to set typing: %w", err)
	}

	return nil
}
