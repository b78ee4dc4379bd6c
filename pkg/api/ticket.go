package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Ticket validation errors.
var (
	ErrInvalidTicket       = errors.New("invalid ticket")
	ErrExpiredTicket       = errors.New("ticket has expired")
	ErrTicketSigningFailed = errors.New("failed to sign ticket")
	ErrInvalidSecretLength = errors.New("ticket secret must be at least 32 characters")
)

// TicketConfig holds configuration for ticket issuance.
type TicketConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the ticket issuer claim. Default: "msnpd"
	Issuer string

	// TTL is the lifetime of issued tickets. Default: 15 minutes.
	TTL time.Duration
}

// TicketService issues and validates signed login tickets. A ticket stands
// in for a Passport-style token: the HTTP API issues it against a verified
// credential, and holders present it as a Bearer token on admin endpoints.
type TicketService struct {
	config TicketConfig
}

// TicketClaims are the claims embedded in an issued ticket.
type TicketClaims struct {
	jwt.RegisteredClaims

	// Identity is the account the ticket was issued for.
	Identity string `json:"identity"`
}

// NewTicketService creates a ticket service with the given configuration.
func NewTicketService(config TicketConfig) (*TicketService, error) {
	if len(config.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}

	if config.Issuer == "" {
		config.Issuer = "msnpd"
	}
	if config.TTL == 0 {
		config.TTL = 15 * time.Minute
	}

	return &TicketService{config: config}, nil
}

// Issue creates a signed ticket for the identity.
func (s *TicketService) Issue(identity string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.TTL)

	claims := &TicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Identity: identity,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, ErrTicketSigningFailed
	}

	return signed, expiresAt, nil
}

// Validate checks a ticket's signature and expiry and returns its claims.
func (s *TicketService) Validate(ticket string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(ticket, &TicketClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredTicket
		}
		return nil, ErrInvalidTicket
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidTicket
	}

	return claims, nil
}

// TTL returns the configured ticket lifetime.
func (s *TicketService) TTL() time.Duration {
	return s.config.TTL
}
