package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/pkg/database"
	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
	"github.com/scolahub/scolarite-api/pkg/export"
)

var yearNamePattern = regexp.MustCompile(`^\d{4}-\d{4}$`)

type academicYearRepository interface {
	List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error)
	FindByID(ctx context.Context, q database.Querier, id string) (*models.AcademicYear, error)
	Create(ctx context.Context, q database.Querier, year *models.AcademicYear) error
	Update(ctx context.Context, q database.Querier, year *models.AcademicYear) error
	Delete(ctx context.Context, q database.Querier, id string) error
	CountSemesters(ctx context.Context, q database.Querier, id string) (int, error)
	SemesterRollups(ctx context.Context, yearID string) ([]models.SemesterRollup, error)
}

// CreateAcademicYearRequest describes academic year creation.
type CreateAcademicYearRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	IsActive  *bool     `json:"is_active"`
}

// UpdateAcademicYearRequest is a partial update; absent fields keep their
// current value.
type UpdateAcademicYearRequest struct {
	Name      *string    `json:"name" validate:"omitempty"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	IsActive  *bool      `json:"is_active"`
}

// AcademicYearService orchestrates academic year workflows and serves the
// per-year rollup view.
type AcademicYearService struct {
	repo      academicYearRepository
	runner    database.AtomicRunner
	guard     *UniquenessGuard
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewAcademicYearService constructs AcademicYearService.
func NewAcademicYearService(repo academicYearRepository, runner database.AtomicRunner, guard *UniquenessGuard, validate *validator.Validate, logger *zap.Logger) *AcademicYearService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicYearService{repo: repo, runner: runner, guard: guard, validator: validate, logger: logger}
}

// WithMetrics attaches rollup instrumentation.
func (s *AcademicYearService) WithMetrics(metrics *MetricsService) *AcademicYearService {
	s.metrics = metrics
	return s
}

// List returns academic years with pagination metadata.
func (s *AcademicYearService) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, *models.Pagination, error) {
	years, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic years")
	}
	return years, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a single academic year.
func (s *AcademicYearService) Get(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	return year, nil
}

// Details returns the year with its semesters in name order, each carrying
// live enrollment and grade counts, plus year-level totals. A year with no
// semesters yields an empty list and zero totals, not an error.
func (s *AcademicYearService) Details(ctx context.Context, id string) (*models.AcademicYearDetail, error) {
	year, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	rollups, err := s.repo.SemesterRollups(ctx, id)
	s.metrics.ObserveRollup(time.Since(started))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate semesters")
	}

	detail := &models.AcademicYearDetail{
		AcademicYear: *year,
		Semesters:    rollups,
	}
	for _, rollup := range rollups {
		detail.Totals.Enrollments += rollup.EnrollmentsCount
		detail.Totals.Grades += rollup.GradesCount
	}
	return detail, nil
}

// ExportDetails renders the rollup view as CSV or PDF.
func (s *AcademicYearService) ExportDetails(ctx context.Context, id, format string) ([]byte, string, error) {
	detail, err := s.Details(ctx, id)
	if err != nil {
		return nil, "", err
	}

	table := export.Table{
		Title:   fmt.Sprintf("Academic year %s", detail.AcademicYear.Name),
		Headers: []string{"Semester", "Start", "End", "Active", "Enrollments", "Grades"},
	}
	for _, rollup := range detail.Semesters {
		table.Rows = append(table.Rows, []string{
			rollup.Name,
			rollup.StartDate.Format("2006-01-02"),
			rollup.EndDate.Format("2006-01-02"),
			strconv.FormatBool(rollup.IsActive),
			strconv.Itoa(rollup.EnrollmentsCount),
			strconv.Itoa(rollup.GradesCount),
		})
	}
	table.Rows = append(table.Rows, []string{
		"TOTAL", "", "", "",
		strconv.Itoa(detail.Totals.Enrollments),
		strconv.Itoa(detail.Totals.Grades),
	})

	switch format {
	case "csv":
		data, err := export.RenderCSV(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return data, "text/csv", nil
	case "pdf":
		data, err := export.RenderPDF(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return data, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

// Create adds an academic year after checking the name format and uniqueness.
func (s *AcademicYearService) Create(ctx context.Context, req CreateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}
	if err := validateYearName(req.Name); err != nil {
		return nil, err
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
	}

	year := &models.AcademicYear{
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if req.IsActive != nil {
		year.IsActive = *req.IsActive
	}

	err := s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if err := s.guard.YearName(ctx, q, req.Name, ""); err != nil {
			return err
		}
		return s.repo.Create(ctx, q, year)
	})
	if err != nil {
		return nil, err
	}
	return year, nil
}

// Update applies a partial update; a changed name is re-validated and
// re-checked for uniqueness against the merged state.
func (s *AcademicYearService) Update(ctx context.Context, id string, req UpdateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}
	if req.Name != nil {
		if err := validateYearName(*req.Name); err != nil {
			return nil, err
		}
	}

	var updated *models.AcademicYear
	err := s.runner.RunAtomic(ctx, func(q database.Querier) error {
		current, err := s.repo.FindByID(ctx, q, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
		}

		effective := *current
		if req.Name != nil {
			effective.Name = *req.Name
		}
		if req.StartDate != nil {
			effective.StartDate = *req.StartDate
		}
		if req.EndDate != nil {
			effective.EndDate = *req.EndDate
		}
		if req.IsActive != nil {
			effective.IsActive = *req.IsActive
		}
		if !effective.EndDate.After(effective.StartDate) {
			return appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
		}

		if req.Name != nil {
			if err := s.guard.YearName(ctx, q, effective.Name, id); err != nil {
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

// Delete removes an academic year unless semesters still reference it.
func (s *AcademicYearService) Delete(ctx context.Context, id string) error {
	return s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if _, err := s.repo.FindByID(ctx, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
		}
		semesters, err := s.repo.CountSemesters(ctx, q, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count semesters")
		}
		if semesters > 0 {
			return appErrors.Clone(appErrors.ErrConflict, "academic year still has semesters")
		}
		return s.repo.Delete(ctx, q, id)
	})
}

// validateYearName enforces the YYYY-YYYY form with consecutive years.
func validateYearName(name string) error {
	if !yearNamePattern.MatchString(name) {
		return appErrors.Clone(appErrors.ErrValidation, "academic year name must match YYYY-YYYY")
	}
	first, _ := strconv.Atoi(name[:4])
	second, _ := strconv.Atoi(name[5:])
	if second != first+1 {
		return appErrors.Clone(appErrors.ErrValidation, "academic year must span two consecutive years")
	}
	return nil
}
