package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Taoreunda/ptsd-homework-agent/internal/participant"
	"github.com/Taoreunda/ptsd-homework-agent/internal/session"
)

// bearerToken extracts the resumption token from the Authorization header.
func bearerToken(r *http.Request) (uuid.UUID, error) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return uuid.Nil, session.ErrTokenNotFound
	}
	token, err := uuid.Parse(strings.TrimSpace(auth[len(prefix):]))
	if err != nil {
		return uuid.Nil, session.ErrTokenNotFound
	}
	return token, nil
}

// identify resolves the caller's token to an identity.
func (s *Server) identify(r *http.Request) (session.Identity, error) {
	token, err := bearerToken(r)
	if err != nil {
		return session.Identity{}, err
	}
	return s.tokens.Resolve(r.Context(), token)
}

// authorizeSession checks that the caller's token belongs to the session
// named in the URL. Returns the session ID on success.
func (s *Server) authorizeSession(r *http.Request) (uuid.UUID, error) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, session.ErrUnknownSession
	}

	id, err := s.identify(r)
	if err != nil {
		return uuid.Nil, err
	}
	if id.SessionID != sessionID {
		// A valid token for a different session reveals nothing about
		// whether the requested one exists.
		return uuid.Nil, session.ErrUnknownSession
	}
	return sessionID, nil
}

// admin wraps a handler so only participants in the admin group reach it.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.identify(r)
		if err != nil {
			writeError(w, err)
			return
		}

		p, err := s.participants.Get(r.Context(), id.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		if p.Group != participant.GroupAdmin {
			s.logger.Warn("admin endpoint refused", "user_id", id.UserID, "path", r.URL.Path)
			writeError(w, errForbidden)
			return
		}
		next(w, r)
	}
}
