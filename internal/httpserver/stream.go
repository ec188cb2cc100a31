// internal/httpserver/stream.go
//
// GET /rooms/{room}/stream upgrades to a websocket and forwards every room event as one JSON
// ChatMessage per text frame. Frames sent by the client are ignored; closing the socket ends
// the subscription.

package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == s.opts.ClientOrigin || sameHost(r, origin)
		},
	}
}

func sameHost(r *http.Request, origin string) bool {
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	sub, err := s.rooms.Subscribe(room)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer s.rooms.Unsubscribe(room, sub)

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		log.Warn().Str("module", "http.stream").Str("room", room).Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	logger := log.With().Str("module", "http.stream").Str("room", room).Str("subscription", sub.ID()).Logger()
	logger.Debug().Msg("stream opened")

	// Reader: keeps pong handling alive and notices client close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(4 << 10)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Msg("stream write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			logger.Debug().Msg("stream closed by client")
			return
		case <-s.stopping:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
			return
		case <-r.Context().Done():
			return
		}
	}
}
