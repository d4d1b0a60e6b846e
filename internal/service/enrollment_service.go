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

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, q database.Querier, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Create(ctx context.Context, q database.Querier, enrollment *models.Enrollment) error
	Update(ctx context.Context, q database.Querier, enrollment *models.Enrollment) error
	Delete(ctx context.Context, q database.Querier, id string) error
	CountGrades(ctx context.Context, q database.Querier, id string) (int, error)
}

// CreateEnrollmentRequest describes enrollment creation.
type CreateEnrollmentRequest struct {
	StudentID  string                  `json:"student_id" validate:"required"`
	CourseID   string                  `json:"course_id" validate:"required"`
	SemesterID string                  `json:"semester_id" validate:"required"`
	Status     models.EnrollmentStatus `json:"status" validate:"omitempty,oneof=ENROLLED DROPPED COMPLETED"`
}

// UpdateEnrollmentRequest is a partial update; absent fields keep their
// current value.
type UpdateEnrollmentRequest struct {
	StudentID  *string                  `json:"student_id" validate:"omitempty"`
	CourseID   *string                  `json:"course_id" validate:"omitempty"`
	SemesterID *string                  `json:"semester_id" validate:"omitempty"`
	Status     *models.EnrollmentStatus `json:"status" validate:"omitempty,oneof=ENROLLED DROPPED COMPLETED"`
}

// EnrollmentService orchestrates enrollment workflows atomically.
type EnrollmentService struct {
	repo      enrollmentRepository
	runner    database.AtomicRunner
	refs      *ReferenceValidator
	guard     *UniquenessGuard
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, runner database.AtomicRunner, refs *ReferenceValidator, guard *UniquenessGuard, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, runner: runner, refs: refs, guard: guard, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns an enrollment with contextual info.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Create registers a student to a course for a semester. References and the
// (student, course, semester) key are checked inside the same transaction as
// the insert so no partial state ever becomes visible.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	enrollment := &models.Enrollment{
		StudentID:  req.StudentID,
		CourseID:   req.CourseID,
		SemesterID: req.SemesterID,
		Status:     req.Status,
	}

	err := s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if err := s.refs.Validate(ctx, q,
			ReferenceCheck{Field: "student_id", Kind: RefStudent, Value: req.StudentID},
			ReferenceCheck{Field: "course_id", Kind: RefCourse, Value: req.CourseID},
			ReferenceCheck{Field: "semester_id", Kind: RefSemester, Value: req.SemesterID},
		); err != nil {
			return err
		}
		if err := s.guard.EnrollmentTriple(ctx, q, req.StudentID, req.CourseID, req.SemesterID, ""); err != nil {
			return err
		}
		return s.repo.Create(ctx, q, enrollment)
	})
	if err != nil {
		return nil, err
	}

	// Response shaping only; reads committed data outside the transaction.
	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Update applies a partial update. The patch is merged over the current
// record first so references and the uniqueness key are always checked
// against the effective post-update state.
func (s *EnrollmentService) Update(ctx context.Context, id string, req UpdateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	err := s.runner.RunAtomic(ctx, func(q database.Querier) error {
		current, err := s.repo.FindByID(ctx, q, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}

		effective := resolveEffectiveEnrollment(current, req)

		var checks []ReferenceCheck
		if req.StudentID != nil {
			checks = append(checks, ReferenceCheck{Field: "student_id", Kind: RefStudent, Value: effective.StudentID})
		}
		if req.CourseID != nil {
			checks = append(checks, ReferenceCheck{Field: "course_id", Kind: RefCourse, Value: effective.CourseID})
		}
		if req.SemesterID != nil {
			checks = append(checks, ReferenceCheck{Field: "semester_id", Kind: RefSemester, Value: effective.SemesterID})
		}
		if err := s.refs.Validate(ctx, q, checks...); err != nil {
			return err
		}
		if err := s.guard.EnrollmentTriple(ctx, q, effective.StudentID, effective.CourseID, effective.SemesterID, id); err != nil {
			return err
		}
		return s.repo.Update(ctx, q, effective)
	})
	if err != nil {
		return nil, err
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Delete removes an enrollment unless a grade still references it.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	return s.runner.RunAtomic(ctx, func(q database.Querier) error {
		if _, err := s.repo.FindByID(ctx, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		grades, err := s.repo.CountGrades(ctx, q, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count grades")
		}
		if grades > 0 {
			return appErrors.Clone(appErrors.ErrConflict, "enrollment still has a grade")
		}
		return s.repo.Delete(ctx, q, id)
	})
}

// resolveEffectiveEnrollment merges the patch over the current record: a
// field explicitly present in the patch wins, everything else keeps its
// current value.
func resolveEffectiveEnrollment(current *models.Enrollment, patch UpdateEnrollmentRequest) *models.Enrollment {
	effective := *current
	if patch.StudentID != nil {
		effective.StudentID = *patch.StudentID
	}
	if patch.CourseID != nil {
		effective.CourseID = *patch.CourseID
	}
	if patch.SemesterID != nil {
		effective.SemesterID = *patch.SemesterID
	}
	if patch.Status != nil {
		effective.Status = *patch.Status
	}
	return &effective
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
