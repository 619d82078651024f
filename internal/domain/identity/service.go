package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medcare/medcare/internal/platform/auth"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt ignores anything past 72 bytes
	maxNameLen     = 100
)

// Service manages accounts and issues access tokens.
type Service struct {
	users  UserRepository
	tokens *auth.TokenIssuer
	logger zerolog.Logger
	cost   int
	// dummyHash is compared against when the email is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

func NewService(users UserRepository, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	s := &Service{users: users, tokens: tokens, logger: logger, cost: bcrypt.DefaultCost}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(in *RegisterInput) *ValidationError {
	verr := &ValidationError{}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)

	switch {
	case in.Name == "":
		verr.add("name", "is required")
	case len(in.Name) > maxNameLen:
		verr.add("name", fmt.Sprintf("must be at most %d characters", maxNameLen))
	}
	if in.Email == "" {
		verr.add("email", "is required")
	} else if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		verr.add("email", "is not a valid address")
	}
	if len(in.Password) < minPasswordLen {
		verr.add("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	} else if len(in.Password) > maxPasswordLen {
		verr.add("password", fmt.Sprintf("must be at most %d bytes", maxPasswordLen))
	}
	return verr
}

// Register creates a patient account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	return s.CreateUser(ctx, CreateUserInput{RegisterInput: in, Role: auth.RolePatient})
}

// CreateUser creates an account with any role. Only doctors keep a
// specialization.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	return s.createUser(ctx, in, uuid.Nil)
}

// createUser creates the account under id, or under a fresh id when id is
// uuid.Nil.
func (s *Service) createUser(ctx context.Context, in CreateUserInput, id uuid.UUID) (*User, error) {
	verr := validateRegistration(&in.RegisterInput)
	if !auth.ValidRole(in.Role) {
		verr.add("role", "must be one of patient, doctor, admin")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           id,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		Phone:        in.Phone,
		Active:       true,
	}
	if in.Role == auth.RoleDoctor {
		u.Specialization = in.Specialization
	}

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", u.Role).Msg("user created")
	return u, nil
}

// Login verifies the password and issues a token carrying the user's role.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(in.Email))
	if errors.Is(err, ErrNotFound) {
		bcrypt.CompareHashAndPassword(s.dummyHash, []byte(in.Password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.Active {
		return nil, ErrInactive
	}

	token, exp, err := s.tokens.Issue(u.ID, u.Name, u.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// Me returns the account of the caller.
func (s *Service) Me(ctx context.Context, actor auth.Actor) (*User, error) {
	return s.users.GetByID(ctx, actor.ID)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, auth.RoleDoctor, limit, offset)
}

// ListUsers lists accounts, optionally filtered by role.
func (s *Service) ListUsers(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	if role != "" && !auth.ValidRole(role) {
		verr := &ValidationError{}
		verr.add("role", "must be one of patient, doctor, admin")
		return nil, 0, verr
	}
	return s.users.List(ctx, role, limit, offset)
}
