package controller

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/repository/upload"
	"github.com/scenesync/server/internal/service/room"
	"github.com/scenesync/server/pkg/rest"
)

const uploadFormField = "video"

type SettingsInput struct {
	HostOnlyControl *bool `json:"hostOnlyControl"`
	AllowAnonymous  *bool `json:"allowAnonymous"`
	ChatEnabled     *bool `json:"chatEnabled"`
	MaxParticipants *int  `json:"maxParticipants" validate:"omitempty,gte=1"`
}

func (s SettingsInput) patch() domain.SettingsPatch {
	return domain.SettingsPatch{
		HostOnlyControl: s.HostOnlyControl,
		AllowAnonymous:  s.AllowAnonymous,
		ChatEnabled:     s.ChatEnabled,
		MaxParticipants: s.MaxParticipants,
	}
}

type createRoomInput struct {
	Name        string        `json:"name" validate:"required,max=100"`
	Description string        `json:"description" validate:"max=500"`
	Settings    SettingsInput `json:"settings"`
}

// readInput decodes and validates a JSON body, writing the error response itself when it fails.
func (c controller) readInput(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := rest.ReadJSON(r, v); err != nil {
		c.writeError(w, r, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return false
	}

	if validationErrors, ok := c.validate.Validate(v); !ok {
		c.writeError(w, r, &payloadError{errors: validationErrors})
		return false
	}

	return true
}

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	var input createRoomInput
	if !c.readInput(w, r, &input) {
		return
	}

	resp, err := c.roomService.CreateRoom(r.Context(), &room.CreateRoomParams{
		Owner:       c.getIdentityFromCtx(r.Context()),
		Name:        input.Name,
		Description: input.Description,
		Settings:    input.Settings.patch(),
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusCreated, resp.Room)
}

func (c controller) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := c.roomService.ListUserRooms(r.Context(), c.getIdentityFromCtx(r.Context()).Id)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusOK, rooms)
}

func (c controller) getRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := c.roomService.RoomDetails(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusOK, rm)
}

func (c controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	resp, err := c.roomService.JoinRoom(r.Context(), &room.JoinRoomParams{
		RoomRef: chi.URLParam(r, "room"),
		User:    c.getIdentityFromCtx(r.Context()),
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusOK, resp.Room)
}

type leaveRoomResponse struct {
	Room        room.Room `json:"room"`
	NewHostId   string    `json:"newHostId,omitempty"`
	Deactivated bool      `json:"deactivated"`
}

func (c controller) leaveRoom(w http.ResponseWriter, r *http.Request) {
	resp, err := c.roomService.LeaveRoom(r.Context(), &room.LeaveRoomParams{
		RoomRef: chi.URLParam(r, "room"),
		User:    c.getIdentityFromCtx(r.Context()),
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusOK, leaveRoomResponse{
		Room:        resp.Room,
		NewHostId:   resp.NewHostId,
		Deactivated: resp.Deactivated,
	})
}

func (c controller) updateSettings(w http.ResponseWriter, r *http.Request) {
	var input SettingsInput
	if !c.readInput(w, r, &input) {
		return
	}

	resp, err := c.roomService.UpdateSettings(r.Context(), &room.UpdateSettingsParams{
		RoomRef:  chi.URLParam(r, "room"),
		SenderId: c.getIdentityFromCtx(r.Context()).Id,
		Patch:    input.patch(),
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusOK, resp.Room)
}

func (c controller) setVideo(w http.ResponseWriter, r *http.Request) {
	var input VideoInput
	if !c.readInput(w, r, &input) {
		return
	}

	resp, err := c.roomService.SetVideo(r.Context(), &room.SetVideoParams{
		RoomRef: chi.URLParam(r, "room"),
		Sender:  c.getIdentityFromCtx(r.Context()).User(),
		Video:   input.descriptor(),
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusOK, resp.Video)
}

// uploadVideo stores the multipart "video" field and makes it the room's video.
// The host check runs before anything is written to disk.
func (c controller) uploadVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := c.getIdentityFromCtx(ctx)

	roomId, err := c.roomService.AuthorizeVideoChange(ctx, chi.URLParam(r, "room"), identity.Id)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	if c.uploadMaxSize > 0 {
		// leave room for the multipart framing around the file
		r.Body = http.MaxBytesReader(w, r.Body, c.uploadMaxSize+1<<20)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		c.writeError(w, r, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	for {
		part, err := mr.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.writeError(w, r, fmt.Errorf("%w: missing %q field", upload.ErrEmpty, uploadFormField))
				return
			}
			c.writeError(w, r, fmt.Errorf("%w: %w", ErrBadRequest, err))
			return
		}

		if part.FormName() != uploadFormField {
			part.Close()
			continue
		}

		filename := part.FileName()
		stored, err := c.uploads.Store(ctx, part, filename)
		part.Close()
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		if filename == "" {
			filename = stored.Name
		}

		resp, err := c.roomService.SetVideo(ctx, &room.SetVideoParams{
			RoomRef: roomId,
			Sender:  identity.User(),
			Video: domain.VideoDescriptor{
				Type:  domain.SourceUpload,
				Url:   stored.Url,
				Title: filename,
			},
		})
		if err != nil {
			c.writeError(w, r, err)
			return
		}

		c.writeData(w, r, http.StatusCreated, resp.Video)
		return
	}
}

func (c controller) listMessages(w http.ResponseWriter, r *http.Request) {
	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.writeError(w, r, fmt.Errorf("%w: limit must be a number", ErrBadRequest))
			return
		}
		limit = n
	}

	resp, err := c.roomService.ChatHistory(r.Context(), &room.ChatHistoryParams{
		RoomRef: chi.URLParam(r, "room"),
		UserId:  c.getIdentityFromCtx(r.Context()).Id,
		Before:  r.URL.Query().Get("before"),
		Limit:   limit,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusOK, resp.Messages)
}

type deleteMessageResponse struct {
	MessageId string `json:"messageId"`
}

func (c controller) deleteMessage(w http.ResponseWriter, r *http.Request) {
	messageId := chi.URLParam(r, "message-id")

	if err := c.roomService.DeleteMessage(r.Context(), &room.DeleteMessageParams{
		RoomRef:   chi.URLParam(r, "room"),
		UserId:    c.getIdentityFromCtx(r.Context()).Id,
		MessageId: messageId,
	}); err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeData(w, r, http.StatusOK, deleteMessageResponse{MessageId: messageId})
}
