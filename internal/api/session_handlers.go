package api

import (
	"net/http"
	"time"

	"github.com/Taoreunda/ptsd-homework-agent/internal/chat"
	"github.com/Taoreunda/ptsd-homework-agent/internal/session"
)

type loginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	Created   bool   `json:"created"`
	Greeting  string `json:"greeting,omitempty"`
}

// handleLogin authenticates a participant and resolves their single active
// session, minting one when none is resumable. A fresh session carries the
// assistant's opening line so the UI can render it without a model call.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	p, err := s.participants.Authenticate(r.Context(), req.UserID, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.sessions.ResolveOrCreate(r.Context(), p.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := loginResponse{
		SessionID: res.SessionID.String(),
		Token:     res.Token.String(),
		Created:   res.Created,
	}
	if res.Created && s.flow != nil {
		resp.Greeting = s.flow.Greeting(p.Name)
	}
	writeJSON(w, http.StatusOK, resp)
}

type resumeResponse struct {
	UserID    string        `json:"user_id"`
	SessionID string        `json:"session_id"`
	Messages  []messageBody `json:"messages"`
}

// handleResume maps a resumption token back to its identity and returns the
// session's history, so a reloaded page can restore the conversation.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := s.tokens.Resolve(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	history, err := s.sessions.History(r.Context(), id.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.tokens.Touch(r.Context(), token); err != nil {
		s.logger.Warn("session touch on resume failed",
			"session_id", id.SessionID, "error", err)
	}

	writeJSON(w, http.StatusOK, resumeResponse{
		UserID:    id.UserID,
		SessionID: id.SessionID.String(),
		Messages:  messageBodies(history),
	})
}

type turnRequest struct {
	ExchangeKey string     `json:"exchange_key"`
	Text        string     `json:"text"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
}

type turnResponse struct {
	AssistantText string `json:"assistant_text"`
	Duplicate     bool   `json:"duplicate"`
}

// handleTurn runs one logical exchange. Duplicate submissions with the same
// exchange key return the recorded reply instead of a second model call.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	sessionID, err := s.authorizeSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	ex := chat.Exchange{
		SessionID:   sessionID,
		ExchangeKey: req.ExchangeKey,
		UserText:    req.Text,
	}
	if req.StartedAt != nil {
		ex.StartedAt = *req.StartedAt
	}

	res, err := s.flow.Run(r.Context(), ex)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{
		AssistantText: res.AssistantText,
		Duplicate:     res.Duplicate,
	})
}

type messageBody struct {
	ID             string    `json:"id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	SequenceNumber int       `json:"sequence_number"`
	ExchangeKey    string    `json:"exchange_key,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	ResponseTime   *float64  `json:"response_time_seconds,omitempty"`
}

func messageBodies(msgs []*session.Message) []messageBody {
	out := make([]messageBody, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageBody{
			ID:             m.ID.String(),
			Role:           m.Role,
			Content:        m.Content,
			SequenceNumber: m.SequenceNumber,
			ExchangeKey:    m.ExchangeKey,
			Timestamp:      m.Timestamp,
			ResponseTime:   m.ResponseTime,
		})
	}
	return out
}

// handleMessages returns the full ordered log of a session.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	sessionID, err := s.authorizeSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	history, err := s.sessions.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID.String(),
		"messages":   messageBodies(history),
	})
}

// handleEndSession deactivates the caller's session (explicit logout).
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := s.authorizeSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.sessions.EndSession(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}
