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

type semesterRepository interface {
	List(ctx context.Context, filter models.SemesterFilter) ([]models.SemesterDetail, int, error)
	FindByID(ctx context.Context, q database.Querier, id string) (*models.Semester, error)
	FindDetailByID(ctx context.Context, id string) (*models.SemesterDetail, error)
	Create(ctx context.Context, q database.Querier, semester *models.Semester) error
	Update(ctx context.Context, q database.Querier, semester *models.Semester) error
	Delete(ctx context.Context, q database.Querier, id string) error
	CountEnrollments(ctx context.Context, q database.Querier, id string) (int, error)
}

// CreateSemesterRequest describes semester creation.
type CreateSemesterRequest struct {
	AcademicYearID string              `json:"academic_year_id" validate:"required"`
	Name           models.SemesterName `json:"name" validate:"required,oneof=S1 S2"`
	StartDate      time.Time           `json:"start_date" validate:"required"`
	EndDate        time.Time           `json:"end_date" validate:"required"`
	IsActive       *bool               `json:"is_active"`
}

// UpdateSemesterRequest is a partial update; absent fields keep their current
// value.
type UpdateSemesterRequest struct {
	AcademicYearID *string              `json:"academic_year_id" validate:"omitempty"`
	Name           *models.SemesterName `json:"name" validate:"omitempty,oneof=S1 S2"`
	StartDate      *time.Time           `json:"start_date"`
	EndDate        *time.Time           `json:"end_date"`
	IsActive       *bool                `json:"is_active"`
}

// SemesterService orchestrates semester workflows atomically.
type SemesterService struct {
	repo      semesterRepository
	runner    database.AtomicRunner
	refs      *ReferenceValidator
	guard     *UniquenessGuard
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSemesterService constructs SemesterService.
func NewSemesterService(repo semesterRepository, runner database.AtomicRunner, refs *ReferenceValidator, guard *UniquenessGuard, validate *validator.Validate, logger *zap.Logger) *SemesterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemesterService{repo: repo, runner: runner, refs: refs, guard: guard, validator: validate, logger: logger}
}

// List returns semesters with pagination metadata.
func (s *SemesterService) List(ctx context.Context, filter models.SemesterFilter) ([]models.SemesterDetail, *models.Pagination, error) {
	semesters, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semesters")
	}
	return semesters, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a semester with its owning year's name.
func (s *SemesterService) Get(ctx context.Context, id string) (*models.SemesterDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	return detail, nil
}

// Create adds a semester to an academic year. The year reference and the
// (year, name) pair are checked inside the insert transaction.
func (s *SemesterService) Create(ctx context.Context, req CreateSemesterRequest) (*models.SemesterDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
	}

	semester := &models.Semester{
		AcademicYearID: req.AcademicYearID,
		Name:           req.Name,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
	}
	if req.IsActive != nil {
		semester.IsActive = *req.IsActive
	}

	err := s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if err := s.refs.Validate(ctx, q,
			ReferenceCheck{Field: "academic_year_id", Kind: RefAcademicYear, Value: req.AcademicYearID},
		); err != nil {
			return err
		}
		if err := s.guard.SemesterYearName(ctx, q, req.AcademicYearID, req.Name, ""); err != nil {
			return err
		}
		return s.repo.Create(ctx, q, semester)
	})
	if err != nil {
		return nil, err
	}

	detail, err := s.repo.FindDetailByID(ctx, semester.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester detail")
	}
	return detail, nil
}

// Update applies a partial update. The (year, name) pair is re-checked
// whenever either half of it changes, against the merged state.
func (s *SemesterService) Update(ctx context.Context, id string, req UpdateSemesterRequest) (*models.SemesterDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}

	err := s.runner.RunAtomic(ctx, func(q database.Querier) error {
		current, err := s.repo.FindByID(ctx, q, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "semester not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
		}

		effective := resolveEffectiveSemester(current, req)
		if !effective.EndDate.After(effective.StartDate) {
			return appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
		}

		if req.AcademicYearID != nil {
			if err := s.refs.Validate(ctx, q,
				ReferenceCheck{Field: "academic_year_id", Kind: RefAcademicYear, Value: effective.AcademicYearID},
			); err != nil {
				return err
			}
		}
		if req.AcademicYearID != nil || req.Name != nil {
			if err := s.guard.SemesterYearName(ctx, q, effective.AcademicYearID, effective.Name, id); err != nil {
				return err
			}
		}
		return s.repo.Update(ctx, q, effective)
	})
	if err != nil {
		return nil, err
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester detail")
	}
	return detail, nil
}

// Delete removes a semester unless enrollments still reference it.
func (s *SemesterService) Delete(ctx context.Context, id string) error {
	return s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if _, err := s.repo.FindByID(ctx, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "semester not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
		}
		enrollments, err := s.repo.CountEnrollments(ctx, q, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
		}
		if enrollments > 0 {
			return appErrors.Clone(appErrors.ErrConflict, "semester still has enrollments")
		}
		return s.repo.Delete(ctx, q, id)
	})
}

func resolveEffectiveSemester(current *models.Semester, patch UpdateSemesterRequest) *models.Semester {
	effective := *current
	if patch.AcademicYearID != nil {
		effective.AcademicYearID = *patch.AcademicYearID
	}
	if patch.Name != nil {
		effective.Name = *patch.Name
	}
	if patch.StartDate != nil {
		effective.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		effective.EndDate = *patch.EndDate
	}
	if patch.IsActive != nil {
		effective.IsActive = *patch.IsActive
	}
	return &effective
}
