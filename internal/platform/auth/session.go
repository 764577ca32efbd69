package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role values carried by user accounts and token claims.
const (
	RoleAssistant    = "assistant"
	RoleDoctor       = "doctor"
	RoleMasterDoctor = "master_doctor"
)

// Session is the identity resolved from a verified token. It is an explicit
// value passed into every service operation that needs identity; nothing in
// this codebase reads auth state from globals.
type Session struct {
	UserID           uuid.UUID
	Role             string
	AssignedDoctorID *uuid.UUID
}

// IsDoctor reports whether the session holds clinical authority.
func (s Session) IsDoctor() bool {
	return s.Role == RoleDoctor || s.Role == RoleMasterDoctor
}

type contextKey string

const sessionKey contextKey = "session"

// WithSession returns a context carrying the session.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext retrieves the session placed by the middleware.
// The second return is false on unauthenticated contexts.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}
