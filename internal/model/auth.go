package model

// AuthState is the admin console's view of the session.
type AuthState int

const (
	AuthUnknown AuthState = iota
	AuthAuthenticated
	AuthUnauthenticated
)

func (s AuthState) String() string {
	switch s {
	case AuthAuthenticated:
		return "authenticated"
	case AuthUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

func (s AuthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SessionStatus is the body of /api/check-auth.
type SessionStatus struct {
	Authenticated bool `json:"authenticated"`
}

// LoginPath is where unauthenticated admins are sent.
const LoginPath = "/admin-login"
