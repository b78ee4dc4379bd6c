package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/adapter/notification"
	"github.com/retroproto/msnpd/pkg/config"
	"github.com/retroproto/msnpd/pkg/store/memory"
	"github.com/retroproto/msnpd/pkg/store/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakePresence struct {
	entries []notification.PresenceEntry
}

func (f *fakePresence) Presences() []notification.PresenceEntry {
	return f.entries
}

func newTestServer(t *testing.T, presence PresenceSource) (*Server, *memory.Store) {
	t.Helper()

	st := memory.New()
	require.NoError(t, st.CreateUser(context.Background(), &models.User{
		Identity:   "a@x",
		Credential: "secret",
	}))

	srv, err := NewServer(config.APIConfig{
		Port:      8080,
		JWTSecret: testSecret,
		TicketTTL: time.Minute,
	}, st, presence)
	require.NoError(t, err)
	return srv, st
}

func doJSON(t *testing.T, handler http.Handler, method, path, ticket string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if ticket != "" {
		req.Header.Set("Authorization", "Bearer "+ticket)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func obtainTicket(t *testing.T, handler http.Handler) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/tickets", "",
		TicketRequest{Identity: "a@x", Credential: "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TicketResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Ticket)
	return resp.Ticket
}

func TestIssueTicket(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/tickets", "",
		TicketRequest{Identity: "A@X", Credential: "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TicketResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "a@x", resp.Identity)
	assert.Equal(t, int64(60), resp.ExpiresIn)

	claims, err := srv.tickets.Validate(resp.Ticket)
	require.NoError(t, err)
	assert.Equal(t, "a@x", claims.Identity)
}

func TestIssueTicketBadCredential(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/tickets", "",
		TicketRequest{Identity: "a@x", Credential: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/tickets", "",
		TicketRequest{Identity: "nobody@x", Credential: "secret"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireTicket(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/users", "not-a-ticket", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserCRUD(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()
	ticket := obtainTicket(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/users", ticket,
		CreateUserRequest{Identity: "b@x", Credential: "pw", DisplayName: "Bob"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Duplicate create conflicts.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/users", ticket,
		CreateUserRequest{Identity: "b@x", Credential: "pw"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Malformed identity is rejected.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/users", ticket,
		CreateUserRequest{Identity: "not-an-identity", Credential: "pw"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/users/b@x", ticket, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var user UserResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "b@x", user.Identity)
	assert.Equal(t, "Bob", user.DisplayName)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/users", ticket, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []UserResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&users))
	assert.Len(t, users, 2)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/users/b@x", ticket, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/users/b@x", ticket, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessions(t *testing.T) {
	presence := &fakePresence{entries: []notification.PresenceEntry{
		{Identity: "a@x", Status: msnp.StatusBusy, DisplayName: "Alice"},
	}}
	srv, _ := newTestServer(t, presence)
	h := srv.Handler()
	ticket := obtainTicket(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/sessions", ticket, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "a@x", sessions[0].Identity)
	assert.Equal(t, "BSY", sessions[0].Status)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTicketServiceSecretLength(t *testing.T) {
	_, err := NewTicketService(TicketConfig{Secret: "short"})
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
}

func TestTicketServiceExpiry(t *testing.T) {
	svc, err := NewTicketService(TicketConfig{Secret: testSecret, TTL: -time.Minute})
	require.NoError(t, err)

	ticket, _, err := svc.Issue("a@x")
	require.NoError(t, err)

	_, err = svc.Validate(ticket)
	assert.ErrorIs(t, err, ErrExpiredTicket)
}

func TestTicketServiceRejectsForeignSignature(t *testing.T) {
	svc, err := NewTicketService(TicketConfig{Secret: testSecret})
	require.NoError(t, err)
	other, err := NewTicketService(TicketConfig{Secret: "ffffffffffffffffffffffffffffffff"})
	require.NoError(t, err)

	ticket, _, err := other.Issue("a@x")
	require.NoError(t, err)

	_, err = svc.Validate(ticket)
	assert.ErrorIs(t, err, ErrInvalidTicket)
}
