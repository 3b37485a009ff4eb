package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/scenesync/server/pkg/wsrouter"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(c.requestIdMw)
	r.Use(c.recovererMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		r.Get("/ws", c.connect)

		r.Group(func(r chi.Router) {
			r.Use(c.authMw)

			r.Route("/rooms", func(r chi.Router) {
				r.Post("/", c.createRoom)
				r.Get("/", c.listRooms)
				r.Route("/{room}", func(r chi.Router) {
					r.Get("/", c.getRoom)
					r.Post("/join", c.joinRoom)
					r.Post("/leave", c.leaveRoom)
					r.Patch("/settings", c.updateSettings)
					r.Post("/video", c.setVideo)
					r.Post("/video/upload", c.uploadVideo)
					r.Get("/messages", c.listMessages)
					r.Delete("/messages/{message-id}", c.deleteMessage)
				})
			})
		})
	})

	if c.uploadDir != "" {
		r.Handle(c.uploadPath+"/*", http.StripPrefix(c.uploadPath, http.FileServer(http.Dir(c.uploadDir))))
	}

	return r
}

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(
		c.wsRequestIdWSMw(),
		c.loggerWSMw(),
		c.rateLimitWSMw(),
		c.validateWSMw(),
	)
	mux.OnError(c.handleWSError)

	// session
	wsrouter.Handle(mux, "join-room", c.handleJoinRoom)
	wsrouter.Handle(mux, "leave-room", c.handleLeaveRoom)

	// player
	wsrouter.Handle(mux, "play-video", c.handlePlayVideo)
	wsrouter.Handle(mux, "pause-video", c.handlePauseVideo)
	wsrouter.Handle(mux, "seek-video", c.handleSeekVideo)
	wsrouter.Handle(mux, "video-changed", c.handleChangeVideo)
	wsrouter.Handle(mux, "video-state-sync", c.handleSyncVideoState)
	wsrouter.Handle(mux, "video-duration", c.handleVideoDuration)

	// chat
	wsrouter.Handle(mux, "send-message", c.handleSendMessage)
	wsrouter.Handle(mux, "typing-start", c.handleTypingStart)
	wsrouter.Handle(mux, "typing-stop", c.handleTypingStop)

	return mux
}
