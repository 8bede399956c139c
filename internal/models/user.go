package models

import "time"

// Roles for the minimal internal-user concept that backs actor identity and
// the admin/refresh/review auth gate. Login/signup UX is out of scope (§1);
// this exists only so those endpoints have something to authenticate against.
const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
	RoleService = "service"
)

// InternalUser is a minimal account record for gating administrative
// operations (refresh trigger, review claim/complete) and for Rate Governor
// login backoff bookkeeping.
type InternalUser struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
