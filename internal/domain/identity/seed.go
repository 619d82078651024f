package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medcare/medcare/internal/platform/auth"
)

// DemoPassword is the password of every seeded demo account.
const DemoPassword = "medcare-demo"

func strPtr(s string) *string { return &s }

var demoAccounts = []CreateUserInput{
	{RegisterInput: RegisterInput{Name: "Demo Admin", Email: "admin@medcare.local"}, Role: auth.RoleAdmin},
	{RegisterInput: RegisterInput{Name: "Dr. Demo Doctor", Email: "doctor@medcare.local"}, Role: auth.RoleDoctor,
		Specialization: strPtr("General Practice")},
	{RegisterInput: RegisterInput{Name: "Demo Patient", Email: "patient@medcare.local"}, Role: auth.RolePatient},
}

// SeedDemo creates one admin, one doctor and one patient. Accounts that
// already exist are skipped, so it is safe to call on every start.
func (s *Service) SeedDemo(ctx context.Context) ([]*User, error) {
	var created []*User
	for _, acct := range demoAccounts {
		acct.Password = DemoPassword
		u, err := s.CreateUser(ctx, acct)
		if errors.Is(err, ErrEmailTaken) {
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, u)
	}
	return created, nil
}

// DevAccountEmail is the account behind the development identity that
// unauthenticated requests assume.
const DevAccountEmail = "dev@medcare.local"

// SeedDevUser makes sure auth.DevUserID is a real admin account, so rows that
// reference their author resolve in development. It returns the account.
func (s *Service) SeedDevUser(ctx context.Context) (*User, error) {
	u, err := s.users.GetByID(ctx, auth.DevUserID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	// Nobody logs in as the dev user; the password only has to be unguessable.
	return s.createUser(ctx, CreateUserInput{
		RegisterInput: RegisterInput{Name: "Development Admin", Email: DevAccountEmail, Password: uuid.NewString()},
		Role:          auth.RoleAdmin,
	}, auth.DevUserID)
}
