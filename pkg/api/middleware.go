package api

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const claimsContextKey contextKey = "ticket_claims"

// requireTicket rejects requests without a valid Bearer ticket and stores
// the validated claims in the request context.
func (s *Server) requireTicket(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			unauthorized(w, "Authorization required")
			return
		}

		ticket, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || ticket == "" {
			unauthorized(w, "Authorization header must be a Bearer ticket")
			return
		}

		claims, err := s.tickets.Validate(ticket)
		if err != nil {
			if err == ErrExpiredTicket {
				unauthorized(w, "Ticket has expired")
				return
			}
			unauthorized(w, "Invalid ticket")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFromContext returns the validated ticket claims, or nil when the
// request did not pass through requireTicket.
func claimsFromContext(ctx context.Context) *TicketClaims {
	claims, _ := ctx.Value(claimsContextKey).(*TicketClaims)
	return claims
}
