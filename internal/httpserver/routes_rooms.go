// internal/httpserver/routes_rooms.go
//
// HTTP routes for rooms and scores:
//   - POST /rooms/{room}/join       → add a member, returns the stream key
//   - POST /rooms/{room}/leave      → remove a member
//   - POST /rooms/{room}/start      → start the first round when enough members joined
//   - POST /rooms/{room}/messages   → post chat text (numbers count as guesses)
//   - GET  /rooms/{room}/members    → membership snapshot
//   - GET  /rooms/{room}/history    → most recent messages (?limit=n)
//   - GET  /rooms/{room}/round      → round phase and number
//   - GET  /players/{player}/points → durable score

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) mountRooms(r chi.Router) {
	r.Route("/rooms/{room}", func(r chi.Router) {
		r.Post("/join", s.handleJoin)
		r.Post("/leave", s.handleLeave)
		r.Post("/start", s.handleStart)
		r.Post("/messages", s.handleMessage)
		r.Get("/members", s.handleMembers)
		r.Get("/history", s.handleHistory)
		r.Get("/round", s.handleRound)
	})
}

type memberReq struct {
	Nickname string `json:"nickname"`
}

type streamRes struct {
	Stream string `json:"stream"`
}

type messageReq struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

var errBadJSON = errors.New("bad_json")

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req memberReq
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	key, err := s.rooms.Join(r.Context(), chi.URLParam(r, "room"), req.Nickname)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = json.NewEncoder(w).Encode(streamRes{Stream: key})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req memberReq
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	key, err := s.rooms.Leave(r.Context(), chi.URLParam(r, "room"), req.Nickname)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = json.NewEncoder(w).Encode(streamRes{Stream: key})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	started, err := s.rooms.StartRound(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"started": started})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageReq
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	ok, err := s.rooms.PostMessage(r.Context(), chi.URLParam(r, "room"), req.Author, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": ok})
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.rooms.GetMembers(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = json.NewEncoder(w).Encode(members)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.opts.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: "limit must be a non-negative integer"})
			return
		}
		limit = min(n, s.opts.HistoryLimit)
	}
	msgs, err := s.rooms.ReadHistory(r.Context(), chi.URLParam(r, "room"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = json.NewEncoder(w).Encode(msgs)
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	state, err := s.rooms.RoundState(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = json.NewEncoder(w).Encode(state)
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")
	points, err := s.rooms.GetPoints(r.Context(), player)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"playerId": player, "points": points})
}
