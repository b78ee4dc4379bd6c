package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/retroproto/msnpd/internal/logger"
	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/store"
	"github.com/retroproto/msnpd/pkg/store/models"
)

// TicketRequest is the request body for POST /api/v1/tickets.
type TicketRequest struct {
	Identity   string `json:"identity"`
	Credential string `json:"credential"`
}

// TicketResponse is the response body for POST /api/v1/tickets.
type TicketResponse struct {
	Ticket    string    `json:"ticket"`
	TokenType string    `json:"token_type"`
	ExpiresIn int64     `json:"expires_in"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  string    `json:"identity"`
}

// UserResponse is a sanitized user representation for API responses.
type UserResponse struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateUserRequest is the request body for POST /api/v1/users.
type CreateUserRequest struct {
	Identity    string `json:"identity"`
	Credential  string `json:"credential"`
	DisplayName string `json:"display_name,omitempty"`
}

// SessionResponse is one online session in GET /api/v1/sessions.
type SessionResponse struct {
	Identity    string `json:"identity"`
	Status      string `json:"status"`
	DisplayName string `json:"display_name,omitempty"`
}

// issueTicket handles POST /api/v1/tickets: verify a credential and return
// a signed ticket.
func (s *Server) issueTicket(w http.ResponseWriter, r *http.Request) {
	var req TicketRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Identity == "" || req.Credential == "" {
		badRequest(w, "Identity and credential are required")
		return
	}

	identity := msnp.NormalizeIdentity(req.Identity)
	user, err := s.store.GetUser(r.Context(), identity)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			unauthorized(w, "Invalid identity or credential")
			return
		}
		internalServerError(w, "Authentication failed")
		return
	}

	if subtle.ConstantTimeCompare([]byte(user.Credential), []byte(req.Credential)) != 1 {
		logger.Info("ticket request rejected", "identity", identity)
		unauthorized(w, "Invalid identity or credential")
		return
	}

	ticket, expiresAt, err := s.tickets.Issue(identity)
	if err != nil {
		internalServerError(w, "Failed to issue ticket")
		return
	}

	writeJSON(w, http.StatusOK, TicketResponse{
		Ticket:    ticket,
		TokenType: "Bearer",
		ExpiresIn: int64(s.tickets.TTL().Seconds()),
		ExpiresAt: expiresAt,
		Identity:  identity,
	})
}

// listUsers handles GET /api/v1/users.
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		internalServerError(w, "Failed to list users")
		return
	}

	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, userToResponse(&users[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// createUser handles POST /api/v1/users.
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	identity := msnp.NormalizeIdentity(req.Identity)
	if !msnp.ValidIdentity(identity) {
		badRequest(w, "Identity must be an email-shaped account name")
		return
	}
	if req.Credential == "" {
		badRequest(w, "Credential is required")
		return
	}

	user := &models.User{
		Identity:    identity,
		Credential:  req.Credential,
		DisplayName: req.DisplayName,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			conflict(w, "User already exists")
			return
		}
		internalServerError(w, "Failed to create user")
		return
	}

	logger.Info("user created via API", "identity", identity,
		"by", claimsFromContext(r.Context()).Identity)
	writeJSON(w, http.StatusCreated, userToResponse(user))
}

// getUser handles GET /api/v1/users/{identity}.
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	identity := msnp.NormalizeIdentity(chi.URLParam(r, "identity"))

	user, err := s.store.GetUser(r.Context(), identity)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			notFound(w, "User not found")
			return
		}
		internalServerError(w, "Failed to fetch user")
		return
	}

	writeJSON(w, http.StatusOK, userToResponse(user))
}

// deleteUser handles DELETE /api/v1/users/{identity}.
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	identity := msnp.NormalizeIdentity(chi.URLParam(r, "identity"))

	if _, err := s.store.GetUser(r.Context(), identity); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			notFound(w, "User not found")
			return
		}
		internalServerError(w, "Failed to fetch user")
		return
	}

	if err := s.store.DeleteUser(r.Context(), identity); err != nil {
		internalServerError(w, "Failed to delete user")
		return
	}

	logger.Info("user deleted via API", "identity", identity,
		"by", claimsFromContext(r.Context()).Identity)
	w.WriteHeader(http.StatusNoContent)
}

// listSessions handles GET /api/v1/sessions: the current online sessions and
// their presence states.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	out := []SessionResponse{}
	if s.presence != nil {
		for _, entry := range s.presence.Presences() {
			out = append(out, SessionResponse{
				Identity:    entry.Identity,
				Status:      string(entry.Status),
				DisplayName: entry.DisplayName,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// health handles GET /health. Liveness only: the process is up and serving.
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func userToResponse(user *models.User) UserResponse {
	return UserResponse{
		Identity:    user.Identity,
		DisplayName: user.DisplayName,
		CreatedAt:   user.CreatedAt,
	}
}
