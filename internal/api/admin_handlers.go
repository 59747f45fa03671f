package api

import (
	"net/http"
	"time"

	"github.com/Taoreunda/ptsd-homework-agent/internal/participant"
)

type participantBody struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username,omitempty"`
	Name         string    `json:"name"`
	Group        string    `json:"group"`
	Status       string    `json:"status"`
	Phone        string    `json:"phone,omitempty"`
	Gender       string    `json:"gender,omitempty"`
	Age          int       `json:"age,omitempty"`
	EnrolledDate time.Time `json:"enrolled_date"`
	SessionLimit int       `json:"session_limit,omitempty"`
}

func participantView(p *participant.Participant) participantBody {
	return participantBody{
		UserID:       p.UserID,
		Username:     p.Username,
		Name:         p.Name,
		Group:        p.Group,
		Status:       p.Status,
		Phone:        p.Phone,
		Gender:       p.Gender,
		Age:          p.Age,
		EnrolledDate: p.EnrolledDate,
		SessionLimit: p.SessionLimit,
	}
}

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	list, err := s.participants.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]participantBody, 0, len(list))
	for _, p := range list {
		out = append(out, participantView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": out})
}

type createParticipantRequest struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	Group        string `json:"group"`
	Status       string `json:"status,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Gender       string `json:"gender,omitempty"`
	Age          int    `json:"age,omitempty"`
	SessionLimit int    `json:"session_limit,omitempty"`
}

func (s *Server) handleCreateParticipant(w http.ResponseWriter, r *http.Request) {
	var req createParticipantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if req.UserID == "" || req.Password == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "user_id, password and name are required"})
		return
	}

	p := &participant.Participant{
		UserID:       req.UserID,
		Username:     req.Username,
		Name:         req.Name,
		Group:        req.Group,
		Status:       req.Status,
		Phone:        req.Phone,
		Gender:       req.Gender,
		Age:          req.Age,
		SessionLimit: req.SessionLimit,
	}
	if err := s.participants.Create(r.Context(), p, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": req.UserID})
}

func (s *Server) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := s.participants.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participantView(p))
}

type updateParticipantRequest struct {
	Name         *string `json:"name,omitempty"`
	Password     *string `json:"password,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Gender       *string `json:"gender,omitempty"`
	Age          *int    `json:"age,omitempty"`
	Status       *string `json:"status,omitempty"`
	SessionLimit *int    `json:"session_limit,omitempty"`
}

func (s *Server) handleUpdateParticipant(w http.ResponseWriter, r *http.Request) {
	var req updateParticipantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	u := participant.Update{
		Name:         req.Name,
		Password:     req.Password,
		Phone:        req.Phone,
		Gender:       req.Gender,
		Age:          req.Age,
		Status:       req.Status,
		SessionLimit: req.SessionLimit,
	}
	if err := s.participants.Apply(r.Context(), r.PathValue("id"), u); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteParticipant(w http.ResponseWriter, r *http.Request) {
	if err := s.participants.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleParticipantStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.participants.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":            st.UserID,
		"name":               st.Name,
		"group":              st.Group,
		"status":             st.Status,
		"completed_sessions": st.CompletedSessions,
		"total_messages":     st.TotalMessages,
		"last_session_at":    st.LastSessionAt,
	})
}

func (s *Server) handleStudySummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.participants.Summary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_participants":  sum.TotalParticipants,
		"active_participants": sum.ActiveParticipants,
		"treatment_group":     sum.TreatmentGroup,
		"control_group":       sum.ControlGroup,
		"completed_count":     sum.CompletedCount,
		"dropout_count":       sum.DropoutCount,
		"avg_sessions_each":   sum.AvgSessionsEach,
	})
}

type expireRequest struct {
	OlderThan string `json:"older_than,omitempty"` // Go duration; default = inactivity window
}

// handleExpire runs the stale-session sweep on demand.
func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	olderThan := s.sessions.Window()

	var req expireRequest
	if err := decodeJSON(r, &req); err == nil && req.OlderThan != "" {
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid older_than duration"})
			return
		}
		olderThan = d
	}

	n, err := s.sessions.ExpireInactive(r.Context(), olderThan)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"expired":    n,
		"older_than": olderThan.String(),
	})
}
