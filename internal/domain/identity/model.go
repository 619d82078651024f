package identity

import (
	"time"

	"github.com/google/uuid"
)

// User is an account holder. PasswordHash never leaves the service.
type User struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Role           string    `json:"role"`
	Phone          *string   `json:"phone,omitempty"`
	Specialization *string   `json:"specialization,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type RegisterInput struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Phone    *string `json:"phone,omitempty"`
}

// CreateUserInput is the admin form; it may set any role.
type CreateUserInput struct {
	RegisterInput
	Role           string  `json:"role"`
	Specialization *string `json:"specialization,omitempty"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}
