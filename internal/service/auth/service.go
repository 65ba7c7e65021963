package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/patientflow/internal/email"
	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
	"github.com/jwalitptl/patientflow/internal/service/audit"
	"github.com/jwalitptl/patientflow/pkg/auth"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
	"github.com/jwalitptl/patientflow/pkg/security"
)

var errInvalidCredentials = &apperrors.AppError{
	Code:    apperrors.ErrUnauthorized,
	Message: "invalid email or password",
}

// SessionHooks reacts to staff signing in and out. It is satisfied by *queue.Engine.
type SessionHooks interface {
	OnLogin(ctx context.Context, userID uuid.UUID) error
	OnLogout(ctx context.Context, userID uuid.UUID) error
}

type Service struct {
	hospitals repository.HospitalRepository
	users     repository.UserRepository
	hasher    security.PasswordHasher
	tokens    auth.JWTService
	sessions  SessionHooks
	mailer    email.Service
	auditor   *audit.AuditLogger
	now       func() time.Time
}

func NewService(
	hospitals repository.HospitalRepository,
	users repository.UserRepository,
	hasher security.PasswordHasher,
	tokens auth.JWTService,
	sessions SessionHooks,
	mailer email.Service,
	auditor *audit.AuditLogger,
) *Service {
	return &Service{
		hospitals: hospitals,
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		sessions:  sessions,
		mailer:    mailer,
		auditor:   auditor,
		now:       time.Now,
	}
}

// RegisterHospital creates a hospital together with its first admin.
func (s *Service) RegisterHospital(ctx context.Context, req model.RegisterHospitalRequest) (*model.RegisterHospitalResponse, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	var registrationNo *string
	if r := strings.TrimSpace(req.RegistrationNo); r != "" {
		registrationNo = &r
	}
	hospitalEmail := strings.ToLower(strings.TrimSpace(req.HospitalEmail))
	adminEmail := strings.ToLower(strings.TrimSpace(req.AdminEmail))

	exists, err := s.hospitals.ExistsByEmailOrRegistration(ctx, hospitalEmail, registrationNo)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if exists {
		return nil, apperrors.NewAlreadyExists("a hospital with this email or registration number already exists")
	}
	if _, err := s.users.GetByEmail(ctx, adminEmail); err == nil {
		return nil, apperrors.NewAlreadyExists("a user with this email already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternal(err)
	}

	hash, err := s.hasher.Hash(req.AdminPassword)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	hospital := &model.Hospital{
		Base:           model.Base{ID: uuid.New()},
		Name:           strings.TrimSpace(req.HospitalName),
		Email:          hospitalEmail,
		Phone:          strings.TrimSpace(req.HospitalPhone),
		Address:        strings.TrimSpace(req.Address),
		RegistrationNo: registrationNo,
		IsActive:       true,
	}
	admin := &model.User{
		Base:         model.Base{ID: uuid.New()},
		Email:        adminEmail,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.AdminFirstName),
		LastName:     strings.TrimSpace(req.AdminLastName),
		Phone:        strings.TrimSpace(req.AdminPhone),
		Role:         model.RoleAdmin,
		IsActive:     true,
	}
	if err := s.hospitals.CreateWithAdmin(ctx, hospital, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewAlreadyExists("a hospital or user with these details already exists")
		}
		return nil, apperrors.NewInternal(err)
	}

	s.auditor.Log(ctx, admin.ID, hospital.ID, model.AuditActionRegister, model.AuditEntityHospital, hospital.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"hospital_name": hospital.Name},
	})
	log.Info().Str("hospital_id", hospital.ID.String()).Msg("hospital registered")

	return &model.RegisterHospitalResponse{Hospital: hospital, Admin: admin}, nil
}

func validateRegistration(req model.RegisterHospitalRequest) error {
	required := []struct{ name, value string }{
		{"hospital_name", req.HospitalName},
		{"hospital_email", req.HospitalEmail},
		{"hospital_phone", req.HospitalPhone},
		{"admin_first_name", req.AdminFirstName},
		{"admin_last_name", req.AdminLastName},
		{"admin_email", req.AdminEmail},
		{"admin_password", req.AdminPassword},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return apperrors.NewValidation(f.name + " is required")
		}
	}
	if len(req.AdminPassword) < security.MinPasswordLen {
		return apperrors.NewValidation(security.ErrPasswordTooShort.Error())
	}
	return nil
}

// Login verifies credentials, marks doctors available and issues a token.
func (s *Service) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, apperrors.NewInternal(err)
	}
	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		return nil, apperrors.Forbidden("account is deactivated")
	}

	hospital, err := s.hospitals.Get(ctx, user.HospitalID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !hospital.IsActive {
		return nil, apperrors.Forbidden("hospital is deactivated")
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to record last login")
	}
	if err := s.sessions.OnLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	if user.IsDoctor() {
		// OnLogin changed availability; return the stored state.
		if fresh, err := s.users.Get(ctx, user.ID); err == nil {
			user = fresh
		}
	}

	token, expiresAt, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	s.auditor.Log(ctx, user.ID, user.HospitalID, model.AuditActionLogin, model.AuditEntityUser, user.ID, nil)
	return &model.LoginResponse{Token: token, ExpiresAt: expiresAt, User: user, Hospital: hospital}, nil
}

// Logout marks doctors unavailable and revokes the caller's token. Availability
// failures are logged and never block the logout.
func (s *Service) Logout(ctx context.Context, principal *model.Principal) error {
	if principal == nil {
		return apperrors.Unauthorized(nil)
	}
	if err := s.sessions.OnLogout(ctx, principal.UserID); err != nil {
		log.Warn().Err(err).Str("user_id", principal.UserID.String()).Msg("failed to update availability on logout")
	}
	s.tokens.Revoke(principal.TokenID, principal.ExpiresAt)

	s.auditor.Log(ctx, principal.UserID, principal.HospitalID, model.AuditActionLogout, model.AuditEntityUser, principal.UserID, nil)
	return nil
}

// VerifyToken checks signature, expiry and revocation.
func (s *Service) VerifyToken(ctx context.Context, token string) (*model.Principal, error) {
	principal, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return principal, nil
}

// CreateStaff adds a user to the admin's hospital.
func (s *Service) CreateStaff(ctx context.Context, actor *model.Principal, req model.CreateStaffRequest) (*model.User, error) {
	if actor == nil || !actor.HasRole(model.RoleAdmin) {
		return nil, apperrors.Forbidden("only admins can create staff")
	}
	if !req.Role.Valid() {
		return nil, apperrors.NewValidation("invalid role")
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return nil, apperrors.NewValidation("email, first_name and last_name are required")
	}
	if len(req.Password) < security.MinPasswordLen {
		return nil, apperrors.NewValidation(security.ErrPasswordTooShort.Error())
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	user := &model.User{
		Base:         model.Base{ID: uuid.New()},
		HospitalID:   actor.HospitalID,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        strings.TrimSpace(req.Phone),
		Role:         req.Role,
		Specialty:    strings.TrimSpace(req.Specialty),
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewAlreadyExists("a user with this email already exists")
		}
		return nil, apperrors.NewInternal(err)
	}

	s.auditor.Log(ctx, actor.UserID, actor.HospitalID, model.AuditActionCreate, model.AuditEntityUser, user.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"role": user.Role},
	})
	if s.mailer != nil {
		if err := s.mailer.SendWelcome(ctx, user.Email, user.FullName(), string(user.Role)); err != nil {
			log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to send welcome email")
		}
	}
	return user, nil
}

// Me returns the caller's stored profile.
func (s *Service) Me(ctx context.Context, principal *model.Principal) (*model.User, error) {
	if principal == nil {
		return nil, apperrors.Unauthorized(nil)
	}
	user, err := s.users.Get(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", err)
		}
		return nil, apperrors.NewInternal(err)
	}
	return user, nil
}
