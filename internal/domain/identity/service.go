package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/intake/internal/platform/apperr"
	"github.com/clinicore/intake/internal/platform/auth"
)

// ErrBadCredentials is returned for both unknown emails and wrong
// passwords so login failures are indistinguishable to a caller.
var ErrBadCredentials = errors.New("invalid email or password")

type Service struct {
	repo  Repository
	token *auth.TokenIssuer
}

func NewService(repo Repository, token *auth.TokenIssuer) *Service {
	return &Service{repo: repo, token: token}
}

// Authenticate verifies credentials and mints a bearer token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, *User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil, apperr.Validation("email", "is required")
	}
	if password == "" {
		return "", nil, apperr.Validation("password", "is required")
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", nil, ErrBadCredentials
		}
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrBadCredentials
	}

	token, err := s.token.Issue(auth.Session{
		UserID:           u.ID,
		Role:             u.Role,
		AssignedDoctorID: u.AssignedDoctorID,
	})
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// ListDoctors lists doctor accounts for the master doctor's dashboard.
func (s *Service) ListDoctors(ctx context.Context, session auth.Session, limit, offset int) ([]*User, int, error) {
	if session.Role != auth.RoleMasterDoctor {
		return nil, 0, apperr.ErrPermissionDenied
	}
	return s.repo.ListByRole(ctx, auth.RoleDoctor, limit, offset)
}

// CreateUser registers an account. It backs the operator CLI only; there
// is deliberately no HTTP surface for it.
func (s *Service) CreateUser(ctx context.Context, email, password, fullName, role string, assignedDoctorID *uuid.UUID) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperr.Validation("email", "is required")
	}
	if len(password) < 8 {
		return nil, apperr.Validation("password", "must be at least 8 characters")
	}
	switch role {
	case auth.RoleAssistant, auth.RoleDoctor, auth.RoleMasterDoctor:
	default:
		return nil, apperr.Validation("role", "must be assistant, doctor or master_doctor")
	}
	// Submission routing needs a target doctor for every assistant.
	if role == auth.RoleAssistant && assignedDoctorID == nil {
		return nil, apperr.Validation("assigned_doctor_id", "is required for assistants")
	}
	if assignedDoctorID != nil {
		doctor, err := s.repo.GetByID(ctx, *assignedDoctorID)
		if err != nil {
			return nil, fmt.Errorf("resolve assigned doctor: %w", err)
		}
		if doctor.Role != auth.RoleDoctor && doctor.Role != auth.RoleMasterDoctor {
			return nil, apperr.Validation("assigned_doctor_id", "must reference a doctor")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Email:            email,
		PasswordHash:     string(hash),
		FullName:         fullName,
		Role:             role,
		AssignedDoctorID: assignedDoctorID,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
