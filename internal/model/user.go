package model

import "time"

// Role names used in the users table and in the JWT "role" claim.
// STUDENT accounts link to a students row; MANAGER and ADMIN are staff.
const (
	RoleStudent = "STUDENT"
	RoleManager = "MANAGER"
	RoleAdmin   = "ADMIN"
)

// User is a login account as stored in the `users` table.  Handlers
// never expose PasswordHash; response types are defined separately.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// RefreshToken models a row in the `refresh_tokens` table.  Only the
// SHA-256 hash of the raw token is stored; the raw value is returned to
// the client exactly once at issuance.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
