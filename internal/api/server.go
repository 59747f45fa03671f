// Package api exposes the persistence and conversation layers as a JSON API
// for the browser UI and the research-admin tooling.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Taoreunda/ptsd-homework-agent/internal/chat"
	"github.com/Taoreunda/ptsd-homework-agent/internal/participant"
	"github.com/Taoreunda/ptsd-homework-agent/internal/session"
)

// ParticipantDirectory is the slice of the participant store the API needs.
type ParticipantDirectory interface {
	Authenticate(ctx context.Context, userID, password string) (*participant.Participant, error)
	Get(ctx context.Context, userID string) (*participant.Participant, error)
	List(ctx context.Context) ([]*participant.Participant, error)
	Create(ctx context.Context, p *participant.Participant, password string) error
	Apply(ctx context.Context, userID string, u participant.Update) error
	Delete(ctx context.Context, userID string) error
	Stats(ctx context.Context, userID string) (*participant.Stats, error)
	Summary(ctx context.Context) (*participant.Summary, error)
}

// SessionDirectory is the slice of the session store the API needs.
type SessionDirectory interface {
	ResolveOrCreate(ctx context.Context, userID string) (session.Resolution, error)
	Get(ctx context.Context, sessionID uuid.UUID) (*session.Session, error)
	History(ctx context.Context, sessionID uuid.UUID) ([]*session.Message, error)
	EndSession(ctx context.Context, sessionID uuid.UUID) error
	ExpireInactive(ctx context.Context, olderThan time.Duration) (int64, error)
	Window() time.Duration
}

// TokenResolver maps opaque resumption tokens back to identities.
type TokenResolver interface {
	Resolve(ctx context.Context, token uuid.UUID) (session.Identity, error)
	Touch(ctx context.Context, token uuid.UUID) error
}

// TurnRunner executes one logical exchange end to end.
type TurnRunner interface {
	Run(ctx context.Context, ex chat.Exchange) (chat.Result, error)
	Greeting(participantName string) string
}

// Pinger reports backend liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig wires the HTTP surface to its collaborators.
type ServerConfig struct {
	Logger       *slog.Logger
	Participants ParticipantDirectory
	Sessions     SessionDirectory
	Tokens       TokenResolver
	Flow         TurnRunner
	Pinger       Pinger

	CORSOrigins []string
	TrustProxy  bool
	RatePerSec  float64
	RateBurst   int
}

// Server is the HTTP API.
type Server struct {
	logger       *slog.Logger
	participants ParticipantDirectory
	sessions     SessionDirectory
	tokens       TokenResolver
	flow         TurnRunner
	pinger       Pinger
	handler      http.Handler
}

// NewServer builds the routing table and middleware chain.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		logger:       logger,
		participants: cfg.Participants,
		sessions:     cfg.Sessions,
		tokens:       cfg.Tokens,
		flow:         cfg.Flow,
		pinger:       cfg.Pinger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /api/v1/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/resume", s.handleResume)
	mux.HandleFunc("POST /api/v1/sessions/{id}/turns", s.handleTurn)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", s.handleMessages)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleEndSession)

	mux.HandleFunc("GET /api/v1/participants", s.admin(s.handleListParticipants))
	mux.HandleFunc("POST /api/v1/participants", s.admin(s.handleCreateParticipant))
	mux.HandleFunc("GET /api/v1/participants/{id}", s.admin(s.handleGetParticipant))
	mux.HandleFunc("PATCH /api/v1/participants/{id}", s.admin(s.handleUpdateParticipant))
	mux.HandleFunc("DELETE /api/v1/participants/{id}", s.admin(s.handleDeleteParticipant))
	mux.HandleFunc("GET /api/v1/participants/{id}/stats", s.admin(s.handleParticipantStats))
	mux.HandleFunc("GET /api/v1/stats", s.admin(s.handleStudySummary))
	mux.HandleFunc("POST /api/v1/maintenance/expire", s.admin(s.handleExpire))

	var h http.Handler = mux
	if cfg.RatePerSec > 0 {
		rl := newRateLimiter(cfg.RatePerSec, cfg.RateBurst)
		h = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(h)
	}
	if len(cfg.CORSOrigins) > 0 {
		h = corsMiddleware(cfg.CORSOrigins)(h)
	}
	h = requestLogMiddleware(logger)(h)
	h = recoveryMiddleware(logger)(h)

	s.handler = h
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Warn("readiness probe failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
