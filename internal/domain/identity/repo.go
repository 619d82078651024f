package identity

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository stores accounts. Create returns ErrEmailTaken when the email
// is already in use; lookups return ErrNotFound.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, role string, limit, offset int) ([]*User, int, error)
}
