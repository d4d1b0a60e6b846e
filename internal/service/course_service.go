package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/pkg/database"
	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, q database.Querier, id string) (*models.Course, error)
	Create(ctx context.Context, q database.Querier, course *models.Course) error
	Update(ctx context.Context, q database.Querier, course *models.Course) error
	Delete(ctx context.Context, q database.Querier, id string) error
	CountEnrollments(ctx context.Context, q database.Querier, id string) (int, error)
}

// CreateCourseRequest describes course creation.
type CreateCourseRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=150"`
	Code    string `json:"code" validate:"required,min=2,max=20,uppercase"`
	Credits int    `json:"credits" validate:"required,min=1,max=30"`
}

// UpdateCourseRequest is a partial update; absent fields keep their current
// value.
type UpdateCourseRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=2,max=150"`
	Code    *string `json:"code" validate:"omitempty,min=2,max=20,uppercase"`
	Credits *int    `json:"credits" validate:"omitempty,min=1,max=30"`
}

// CourseService manages the course catalogue.
type CourseService struct {
	repo      courseRepository
	runner    database.AtomicRunner
	guard     *UniquenessGuard
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, runner database.AtomicRunner, guard *UniquenessGuard, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, runner: runner, guard: guard, validator: validate, logger: logger}
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns one course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a course after checking code uniqueness.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{Name: req.Name, Code: req.Code, Credits: req.Credits}
	err := s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if err := s.guard.CourseCode(ctx, q, req.Code, ""); err != nil {
			return err
		}
		return s.repo.Create(ctx, q, course)
	})
	if err != nil {
		return nil, err
	}
	return course, nil
}

// Update applies a partial update. A changed code is re-checked for
// uniqueness against the merged state.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	var updated *models.Course
	err := s.runner.RunAtomic(ctx, func(q database.Querier) error {
		current, err := s.repo.FindByID(ctx, q, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}

		effective := *current
		if req.Name != nil {
			effective.Name = *req.Name
		}
		if req.Code != nil {
			effective.Code = *req.Code
		}
		if req.Credits != nil {
			effective.Credits = *req.Credits
		}

		if req.Code != nil {
			if err := s.guard.CourseCode(ctx, q, effective.Code, id); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, q, &effective); err != nil {
			return err
		}
		updated = &effective
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a course unless enrollments still reference it.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	return s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if _, err := s.repo.FindByID(ctx, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
		enrollments, err := s.repo.CountEnrollments(ctx, q, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
		}
		if enrollments > 0 {
			return appErrors.Clone(appErrors.ErrConflict, "course still has enrollments")
		}
		return s.repo.Delete(ctx, q, id)
	})
}
