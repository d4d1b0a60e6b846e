package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/pkg/database"
	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

var studentCodePattern = regexp.MustCompile(`^STD-\d{4}-\d{4}$`)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, q database.Querier, id string) (*models.Student, error)
	Create(ctx context.Context, q database.Querier, student *models.Student) error
	Update(ctx context.Context, q database.Querier, student *models.Student) error
	Delete(ctx context.Context, q database.Querier, id string) error
	CountEnrollments(ctx context.Context, q database.Querier, id string) (int, error)
}

// CreateStudentRequest describes student creation.
type CreateStudentRequest struct {
	FirstName   string    `json:"first_name" validate:"required,min=2,max=100"`
	LastName    string    `json:"last_name" validate:"required,min=2,max=100"`
	StudentCode string    `json:"student_code" validate:"required"`
	DateOfBirth time.Time `json:"date_of_birth" validate:"required"`
	Sex         string    `json:"sex" validate:"required,oneof=M F"`
	Phone       string    `json:"phone" validate:"omitempty,max=30"`
	Address     string    `json:"address" validate:"omitempty,max=255"`
}

// UpdateStudentRequest is a partial update; absent fields keep their current
// value.
type UpdateStudentRequest struct {
	FirstName   *string    `json:"first_name" validate:"omitempty,min=2,max=100"`
	LastName    *string    `json:"last_name" validate:"omitempty,min=2,max=100"`
	StudentCode *string    `json:"student_code" validate:"omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Sex         *string    `json:"sex" validate:"omitempty,oneof=M F"`
	Phone       *string    `json:"phone" validate:"omitempty,max=30"`
	Address     *string    `json:"address" validate:"omitempty,max=255"`
}

// StudentService manages student records.
type StudentService struct {
	repo      studentRepository
	runner    database.AtomicRunner
	guard     *UniquenessGuard
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, runner database.AtomicRunner, guard *UniquenessGuard, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, runner: runner, guard: guard, validator: validate, logger: logger}
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create adds a student after checking the code format and uniqueness.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if !studentCodePattern.MatchString(req.StudentCode) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student code must match STD-YYYY-NNNN")
	}

	student := &models.Student{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		StudentCode: req.StudentCode,
		DateOfBirth: req.DateOfBirth,
		Sex:         req.Sex,
		Phone:       req.Phone,
		Address:     req.Address,
	}
	err := s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if err := s.guard.StudentCode(ctx, q, req.StudentCode, ""); err != nil {
			return err
		}
		return s.repo.Create(ctx, q, student)
	})
	if err != nil {
		return nil, err
	}
	return student, nil
}

// Update applies a partial update. A changed code is format-checked and
// re-checked for uniqueness against the merged state.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if req.StudentCode != nil && !studentCodePattern.MatchString(*req.StudentCode) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student code must match STD-YYYY-NNNN")
	}

	var updated *models.Student
	err := s.runner.RunAtomic(ctx, func(q database.Querier) error {
		current, err := s.repo.FindByID(ctx, q, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}

		effective := resolveEffectiveStudent(current, req)

		if req.StudentCode != nil {
			if err := s.guard.StudentCode(ctx, q, effective.StudentCode, id); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, q, effective); err != nil {
			return err
		}
		updated = effective
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a student unless enrollments still reference them.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	return s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if _, err := s.repo.FindByID(ctx, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		enrollments, err := s.repo.CountEnrollments(ctx, q, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
		}
		if enrollments > 0 {
			return appErrors.Clone(appErrors.ErrConflict, "student still has enrollments")
		}
		return s.repo.Delete(ctx, q, id)
	})
}

func resolveEffectiveStudent(current *models.Student, patch UpdateStudentRequest) *models.Student {
	effective := *current
	if patch.FirstName != nil {
		effective.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		effective.LastName = *patch.LastName
	}
	if patch.StudentCode != nil {
		effective.StudentCode = *patch.StudentCode
	}
	if patch.DateOfBirth != nil {
		effective.DateOfBirth = *patch.DateOfBirth
	}
	if patch.Sex != nil {
		effective.Sex = *patch.Sex
	}
	if patch.Phone != nil {
		effective.Phone = *patch.Phone
	}
	if patch.Address != nil {
		effective.Address = *patch.Address
	}
	return &effective
}
