package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/pkg/database"
	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

type gradeRepository interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error)
	FindByID(ctx context.Context, q database.Querier, id string) (*models.Grade, error)
	FindDetailByID(ctx context.Context, id string) (*models.GradeDetail, error)
	Create(ctx context.Context, q database.Querier, grade *models.Grade) error
	Update(ctx context.Context, q database.Querier, grade *models.Grade) error
	Delete(ctx context.Context, q database.Querier, id string) error
}

// CreateGradeRequest describes grade creation. The grader comes from the
// authenticated request context, never from the payload.
type CreateGradeRequest struct {
	EnrollmentID string  `json:"enrollment_id" validate:"required"`
	Value        float64 `json:"value"`
}

// UpdateGradeRequest is a partial update; absent fields keep their current
// value.
type UpdateGradeRequest struct {
	EnrollmentID *string  `json:"enrollment_id" validate:"omitempty"`
	Value        *float64 `json:"value" validate:"omitempty"`
}

// GradeService orchestrates grade workflows atomically.
type GradeService struct {
	repo      gradeRepository
	runner    database.AtomicRunner
	refs      *ReferenceValidator
	guard     *UniquenessGuard
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewGradeService constructs GradeService.
func NewGradeService(repo gradeRepository, runner database.AtomicRunner, refs *ReferenceValidator, guard *UniquenessGuard, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, runner: runner, refs: refs, guard: guard, validator: validate, logger: logger, now: time.Now}
}

// List returns grades with pagination metadata.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, *models.Pagination, error) {
	grades, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a grade with contextual info.
func (s *GradeService) Get(ctx context.Context, id string) (*models.GradeDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return detail, nil
}

// Create records a grade for an enrollment. gradedByID identifies the acting
// user; an empty value means the request carried no authenticated actor and
// is rejected before anything else runs.
func (s *GradeService) Create(ctx context.Context, req CreateGradeRequest, gradedByID string) (*models.GradeDetail, error) {
	if gradedByID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "grade creation requires an authenticated user")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if err := validateGradeValue(req.Value); err != nil {
		return nil, err
	}

	grade := &models.Grade{
		EnrollmentID: req.EnrollmentID,
		Value:        req.Value,
		GradedAt:     s.now().UTC(),
		GradedByID:   gradedByID,
	}

	err := s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if err := s.refs.Validate(ctx, q,
			ReferenceCheck{Field: "enrollment_id", Kind: RefEnrollment, Value: req.EnrollmentID},
		); err != nil {
			return err
		}
		if err := s.guard.GradePerEnrollment(ctx, q, req.EnrollmentID, ""); err != nil {
			return err
		}
		return s.repo.Create(ctx, q, grade)
	})
	if err != nil {
		return nil, err
	}

	detail, err := s.repo.FindDetailByID(ctx, grade.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade detail")
	}
	return detail, nil
}

// Update applies a partial update. References and the one-grade-per-enrollment
// key are checked against the merged post-update state.
func (s *GradeService) Update(ctx context.Context, id string, req UpdateGradeRequest) (*models.GradeDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if req.Value != nil {
		if err := validateGradeValue(*req.Value); err != nil {
			return nil, err
		}
	}

	err := s.runner.RunAtomic(ctx, func(q database.Querier) error {
		current, err := s.repo.FindByID(ctx, q, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
		}

		effective := *current
		if req.EnrollmentID != nil {
			effective.EnrollmentID = *req.EnrollmentID
		}
		if req.Value != nil {
			effective.Value = *req.Value
			effective.GradedAt = s.now().UTC()
		}

		if req.EnrollmentID != nil {
			if err := s.refs.Validate(ctx, q,
				ReferenceCheck{Field: "enrollment_id", Kind: RefEnrollment, Value: effective.EnrollmentID},
			); err != nil {
				return err
			}
			if err := s.guard.GradePerEnrollment(ctx, q, effective.EnrollmentID, id); err != nil {
				return err
			}
		}
		return s.repo.Update(ctx, q, &effective)
	})
	if err != nil {
		return nil, err
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade detail")
	}
	return detail, nil
}

// Delete removes a grade.
func (s *GradeService) Delete(ctx context.Context, id string) error {
	return s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if _, err := s.repo.FindByID(ctx, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
		}
		return s.repo.Delete(ctx, q, id)
	})
}

// validateGradeValue bounds-checks explicitly so that 0 is a legal grade.
func validateGradeValue(value float64) error {
	if value < 0 || value > 100 {
		return appErrors.Clone(appErrors.ErrValidation, "grade value must be between 0 and 100")
	}
	return nil
}
