// internal/httpserver/server.go
//
// HTTP server wiring for the guessroom backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs, access log).
//   - Public endpoints: "/", "/health", "/metrics".
//   - Room endpoints under /rooms/{room} and score lookups under /players/{player}.
//   - Map domain errors to HTTP status codes with JSON bodies.
//
// Notes:
//   - The websocket stream route is mounted outside the request timeout; it lives as long
//     as the client stays connected.
//   - Handlers only call room service operations; no game state lives here.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/guessroom/internal/actor"
	"github.com/robalobadob/guessroom/internal/game"
	"github.com/robalobadob/guessroom/internal/ledger"
)

// Rooms is the room service surface the HTTP layer needs.
type Rooms interface {
	Join(ctx context.Context, room, nickname string) (string, error)
	Leave(ctx context.Context, room, nickname string) (string, error)
	StartRound(ctx context.Context, room string) (bool, error)
	PostMessage(ctx context.Context, room, author, text string) (bool, error)
	GetMembers(ctx context.Context, room string) ([]game.Member, error)
	ReadHistory(ctx context.Context, room string, maxCount int) ([]game.ChatMessage, error)
	RoundState(ctx context.Context, room string) (game.RoundState, error)
	Subscribe(room string) (*game.Subscription, error)
	Unsubscribe(room string, sub *game.Subscription)
	GetPoints(ctx context.Context, playerID string) (int, error)
}

// Options configure the server.
type Options struct {
	ClientOrigin   string        // CORS origin (default http://localhost:5173)
	HistoryLimit   int           // max ?limit for history reads (default 100)
	RequestTimeout time.Duration // per-request bound for non-stream routes (default 10s)
	Metrics        http.Handler  // served on /metrics when set
}

// Server bundles router and room service.
type Server struct {
	r     *chi.Mux
	rooms Rooms
	opts  Options

	stopping chan struct{} // closed when graceful shutdown begins
	stopOnce sync.Once
}

// New constructs a Server, installs middleware, and registers routes.
func New(rooms Rooms, opts Options) *Server {
	if opts.ClientOrigin == "" {
		opts.ClientOrigin = "http://localhost:5173"
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 100
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	s := &Server{r: chi.NewRouter(), rooms: rooms, opts: opts, stopping: make(chan struct{})}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(requestLogger)
	s.r.Use(chimw.Recoverer)
	s.r.Use(cors(opts.ClientOrigin))

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"service":"guessroom","endpoints":["/health","/metrics","/rooms/{room}/*","/players/{player}/points"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	if opts.Metrics != nil {
		s.r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// Stream: no timeout, no forced content type (websocket upgrade).
	s.r.Get("/rooms/{room}/stream", s.handleStream)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(opts.RequestTimeout))
		r.Use(jsonContentType)
		s.mountRooms(r)
		r.Get("/players/{player}/points", s.handlePoints)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: r.URL.Path})
	})

	return s
}

// Handler exposes the router (tests, http.Server).
func (s *Server) Handler() http.Handler { return s.r }

// Router exposes the internal router.
func (s *Server) Router() chi.Router { return s.r }

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then stops accepting and waits for
// in-flight requests. Requests are not cancelled by ctx; open streams are closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv.RegisterOnShutdown(func() {
		s.stopOnce.Do(func() { close(s.stopping) })
	})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for a single origin.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger writes one zerolog line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("module", "http").
				Str("requestId", chimw.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// ------------------------------- errors ------------------------------------

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Str("module", "http").Str("requestId", chimw.GetReqID(r.Context())).Err(err).Msg(code)
	}
	writeJSON(w, status, errorBody{Error: code, Message: err.Error()})
}

func classify(err error) (int, string) {
	var (
		activation  *actor.ActivationError
		unavailable *ledger.UnavailableError
	)
	switch {
	case errors.Is(err, game.ErrDuplicateMember):
		return http.StatusConflict, "duplicate_member"
	case errors.Is(err, game.ErrMemberNotFound):
		return http.StatusNotFound, "member_not_found"
	case errors.Is(err, game.ErrInvalidNickname), errors.Is(err, game.ErrInvalidRoom), errors.Is(err, ledger.ErrInvalidPlayer):
		return http.StatusBadRequest, "invalid_input"
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, "score_ledger_unavailable"
	case errors.As(err, &activation):
		return http.StatusServiceUnavailable, "activation_failed"
	case errors.Is(err, actor.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
