package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Identity is who a token was issued to.
// AgentID is set when the user is also a routable agent in the directory.
type Identity struct {
	UserID  string
	OrgID   string
	Role    string
	AgentID string
}

// Claims are the only supported JWT claims shape for this service.
// Multi-tenant invariant: OrgID must be present on every token.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	OrgID     string    `json:"org_id"`
	Role      string    `json:"role,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	TokenType TokenType `json:"token_type"`
}

func (c Claims) Identity() Identity {
	return Identity{UserID: c.UserID, OrgID: c.OrgID, Role: c.Role, AgentID: c.AgentID}
}
