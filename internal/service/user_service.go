package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/pkg/database"
	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, q database.Querier, id string) (*models.User, error)
	FindDetailByID(ctx context.Context, id string) (*models.UserDetail, error)
	Create(ctx context.Context, q database.Querier, user *models.User) error
	Update(ctx context.Context, q database.Querier, user *models.User) error
	UpdatePassword(ctx context.Context, q database.Querier, id, passwordHash string) error
	Delete(ctx context.Context, q database.Querier, id string) error
}

// Actor identifies who performs a mutation, for the audit trail.
type Actor struct {
	UserID    string
	IP        string
	UserAgent string
}

// CreateUserRequest describes account creation.
type CreateUserRequest struct {
	Email     string          `json:"email" validate:"required,email"`
	Username  *string         `json:"username" validate:"omitempty,min=3,max=50"`
	Password  string          `json:"password" validate:"required,min=8"`
	Role      models.UserRole `json:"role" validate:"required,oneof=ADMIN SCOLARITE STUDENT"`
	StudentID *string         `json:"student_id" validate:"omitempty"`
	IsActive  *bool           `json:"is_active"`
}

// UpdateUserRequest is a partial update. Username and password are managed by
// dedicated flows; values supplied here are discarded before the update is
// resolved.
type UpdateUserRequest struct {
	Email     *string          `json:"email" validate:"omitempty,email"`
	Username  *string          `json:"username"`
	Password  *string          `json:"password"`
	Role      *models.UserRole `json:"role" validate:"omitempty,oneof=ADMIN SCOLARITE STUDENT"`
	StudentID *string          `json:"student_id"`
	IsActive  *bool            `json:"is_active"`
}

// ResetPasswordRequest carries the replacement password.
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

// UserService manages accounts and the role to student linkage.
type UserService struct {
	repo      userRepository
	runner    database.AtomicRunner
	refs      *ReferenceValidator
	guard     *UniquenessGuard
	audit     AuditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs UserService.
func NewUserService(repo userRepository, runner database.AtomicRunner, refs *ReferenceValidator, guard *UniquenessGuard, audit AuditRecorder, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, runner: runner, refs: refs, guard: guard, audit: audit, validator: validate, logger: logger}
}

// List returns users with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a user with the linked student's code and name when present.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return detail, nil
}

// Create provisions an account. A STUDENT account must reference an existing
// student not already bound to another user; any other role has its
// student_id discarded before the insert.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actor Actor) (*models.UserDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
		Role:         req.Role,
		StudentID:    req.StudentID,
		IsActive:     true,
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if user.Role != models.RoleStudent {
		user.StudentID = nil
	}
	if user.Role == models.RoleStudent && user.StudentID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student accounts require student_id")
	}

	err = s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if user.StudentID != nil {
			if err := s.refs.Validate(ctx, q,
				ReferenceCheck{Field: "student_id", Kind: RefStudent, Value: *user.StudentID},
			); err != nil {
				return err
			}
		}
		if err := s.guard.UserEmail(ctx, q, user.Email, ""); err != nil {
			return err
		}
		if user.Username != nil {
			if err := s.guard.UserUsername(ctx, q, *user.Username, ""); err != nil {
				return err
			}
		}
		if user.StudentID != nil {
			if err := s.guard.UserStudent(ctx, q, *user.StudentID, ""); err != nil {
				return err
			}
		}
		return s.repo.Create(ctx, q, user)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(actor, models.AuditActionUserCreate, user.ID, nil, user)
	return s.Get(ctx, user.ID)
}

// Update applies a partial update. Username and password fields in the patch
// are dropped before resolution; a resolved role other than STUDENT clears
// the student link regardless of what the patch carried.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actor Actor) (*models.UserDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	req.Username = nil
	req.Password = nil

	var before, after *models.User
	err := s.runner.RunAtomic(ctx, func(q database.Querier) error {
		current, err := s.repo.FindByID(ctx, q, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "user not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
		}

		effective := resolveEffectiveUser(current, req)

		if effective.Role == models.RoleStudent && effective.StudentID == nil {
			return appErrors.Clone(appErrors.ErrValidation, "student accounts require student_id")
		}
		if req.Email != nil {
			if err := s.guard.UserEmail(ctx, q, effective.Email, id); err != nil {
				return err
			}
		}
		studentChanged := effective.StudentID != nil &&
			(current.StudentID == nil || *current.StudentID != *effective.StudentID)
		if studentChanged {
			if err := s.refs.Validate(ctx, q,
				ReferenceCheck{Field: "student_id", Kind: RefStudent, Value: *effective.StudentID},
			); err != nil {
				return err
			}
			if err := s.guard.UserStudent(ctx, q, *effective.StudentID, id); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, q, effective); err != nil {
			return err
		}
		before, after = current, effective
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(actor, models.AuditActionUserUpdate, id, before, after)
	return s.Get(ctx, id)
}

// ResetPassword replaces a user's password.
func (s *UserService) ResetPassword(ctx context.Context, id string, req ResetPasswordRequest, actor Actor) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid password payload")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	err = s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if _, err := s.repo.FindByID(ctx, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "user not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
		}
		return s.repo.UpdatePassword(ctx, q, id, string(hash))
	})
	if err != nil {
		return err
	}

	s.recordAudit(actor, models.AuditActionUserResetPassword, id, nil, nil)
	return nil
}

// Delete removes a user account.
func (s *UserService) Delete(ctx context.Context, id string) error {
	return s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if _, err := s.repo.FindByID(ctx, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "user not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
		}
		return s.repo.Delete(ctx, q, id)
	})
}

// resolveEffectiveUser merges the patch over the current record, then applies
// the role dependent rules: any role other than STUDENT never keeps a
// student link.
func resolveEffectiveUser(current *models.User, patch UpdateUserRequest) *models.User {
	effective := *current
	if patch.Email != nil {
		effective.Email = *patch.Email
	}
	if patch.Role != nil {
		effective.Role = *patch.Role
	}
	if patch.StudentID != nil {
		effective.StudentID = patch.StudentID
	}
	if patch.IsActive != nil {
		effective.IsActive = *patch.IsActive
	}
	if effective.Role != models.RoleStudent {
		effective.StudentID = nil
	}
	return &effective
}

func (s *UserService) recordAudit(actor Actor, action, resourceID string, before, after *models.User) {
	if s.audit == nil {
		return
	}
	entry := models.AuditLog{
		Action:    action,
		Resource:  "users",
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}
	if actor.UserID != "" {
		entry.UserID = &actor.UserID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if before != nil {
		if data, err := json.Marshal(before); err == nil {
			entry.OldValues = data
		}
	}
	if after != nil {
		if data, err := json.Marshal(after); err == nil {
			entry.NewValues = data
		}
	}
	s.audit.Record(entry)
}
