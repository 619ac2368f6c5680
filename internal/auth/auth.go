package auth

import (
	"errors"
	"time"
)

const (
	// RoleClient may only act on invoices whose client_id matches the token subject.
	RoleClient = "client"
	RoleStaff  = "staff"
)

var ErrInvalidClaims = errors.New("token claims are invalid")

// Principal is the caller identified by a bearer token.
type Principal struct {
	ClientID string
	Role     string
}

func (p *Principal) CanAccessClient(clientID string) bool {
	return p.Role == RoleStaff || (p.ClientID != "" && p.ClientID == clientID)
}

type Authenticator interface {
	GenerateToken(clientID, role string, ttl time.Duration) (string, error)
	ValidateToken(token string) (*Principal, error)
}
