package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/pkg/database"
	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

// fakeRunner executes the closure directly without a transaction. Repositories
// treat a nil Querier as "use the default handle", so service logic runs
// unchanged.
type fakeRunner struct {
	calls int
}

func (f *fakeRunner) RunAtomic(ctx context.Context, fn func(q database.Querier) error) error {
	f.calls++
	return fn(nil)
}

func newTestValidator(existing map[RefKind][]string) *ReferenceValidator {
	refs := NewReferenceValidator()
	for _, kind := range []RefKind{RefAcademicYear, RefSemester, RefCourse, RefStudent, RefEnrollment} {
		kind := kind
		refs.Register(kind, func(ctx context.Context, q database.Querier, id string) (bool, error) {
			for _, known := range existing[kind] {
				if known == id {
					return true, nil
				}
			}
			return false, nil
		})
	}
	return refs
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return appErrors.FromError(err).Code
}

func TestReferenceValidatorRejectsMalformedID(t *testing.T) {
	refs := newTestValidator(nil)

	err := refs.Validate(context.Background(), nil, ReferenceCheck{
		Field: "student_id", Kind: RefStudent, Value: "not-a-uuid",
	})
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(t, err))
}

func TestReferenceValidatorReportsMissingReference(t *testing.T) {
	refs := newTestValidator(nil)

	missing := uuid.NewString()
	err := refs.Validate(context.Background(), nil, ReferenceCheck{
		Field: "course_id", Kind: RefCourse, Value: missing,
	})
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(t, err))
	assert.Contains(t, err.Error(), missing)
}

func TestReferenceValidatorStopsAtFirstFailure(t *testing.T) {
	student := uuid.NewString()
	refs := newTestValidator(map[RefKind][]string{RefStudent: {student}})

	err := refs.Validate(context.Background(), nil,
		ReferenceCheck{Field: "student_id", Kind: RefStudent, Value: student},
		ReferenceCheck{Field: "course_id", Kind: RefCourse, Value: "garbage"},
		ReferenceCheck{Field: "semester_id", Kind: RefSemester, Value: uuid.NewString()},
	)
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(t, err))
	assert.Contains(t, err.Error(), "course_id")
}

func TestReferenceValidatorPassesWhenAllExist(t *testing.T) {
	student, course := uuid.NewString(), uuid.NewString()
	refs := newTestValidator(map[RefKind][]string{
		RefStudent: {student},
		RefCourse:  {course},
	})

	err := refs.Validate(context.Background(), nil,
		ReferenceCheck{Field: "student_id", Kind: RefStudent, Value: student},
		ReferenceCheck{Field: "course_id", Kind: RefCourse, Value: course},
	)
	assert.NoError(t, err)
}

type stubKeyChecker struct {
	exists bool
}

func (s stubKeyChecker) ExistsTriple(ctx context.Context, q database.Querier, studentID, courseID, semesterID, excludeID string) (bool, error) {
	return s.exists, nil
}

func (s stubKeyChecker) ExistsByEnrollment(ctx context.Context, q database.Querier, enrollmentID, excludeID string) (bool, error) {
	return s.exists, nil
}

func (s stubKeyChecker) ExistsByYearAndName(ctx context.Context, q database.Querier, yearID string, name models.SemesterName, excludeID string) (bool, error) {
	return s.exists, nil
}

func (s stubKeyChecker) ExistsByName(ctx context.Context, q database.Querier, name, excludeID string) (bool, error) {
	return s.exists, nil
}

func (s stubKeyChecker) ExistsByCode(ctx context.Context, q database.Querier, code, excludeID string) (bool, error) {
	return s.exists, nil
}

func (s stubKeyChecker) ExistsByEmail(ctx context.Context, q database.Querier, email, excludeID string) (bool, error) {
	return s.exists, nil
}

func (s stubKeyChecker) ExistsByUsername(ctx context.Context, q database.Querier, username, excludeID string) (bool, error) {
	return s.exists, nil
}

func (s stubKeyChecker) ExistsByStudent(ctx context.Context, q database.Querier, studentID, excludeID string) (bool, error) {
	return s.exists, nil
}

func newTestGuard(exists bool) *UniquenessGuard {
	checker := stubKeyChecker{exists: exists}
	return NewUniquenessGuard(UniquenessGuardParams{
		Enrollments: checker,
		Grades:      checker,
		Semesters:   checker,
		Years:       checker,
		Courses:     checker,
		Students:    checker,
		Users:       checker,
	})
}

func TestUniquenessGuardReportsConflicts(t *testing.T) {
	guard := newTestGuard(true)
	ctx := context.Background()

	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, guard.EnrollmentTriple(ctx, nil, "s", "c", "m", "")))
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, guard.GradePerEnrollment(ctx, nil, "e", "")))
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, guard.SemesterYearName(ctx, nil, "y", models.SemesterS1, "")))
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, guard.YearName(ctx, nil, "2025-2026", "")))
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, guard.CourseCode(ctx, nil, "MATH101", "")))
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, guard.StudentCode(ctx, nil, "STD-2025-0001", "")))
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, guard.UserEmail(ctx, nil, "a@b.c", "")))
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, guard.UserStudent(ctx, nil, "stu", "")))
}

func TestUniquenessGuardPassesWhenKeyFree(t *testing.T) {
	guard := newTestGuard(false)
	ctx := context.Background()

	assert.NoError(t, guard.EnrollmentTriple(ctx, nil, "s", "c", "m", ""))
	assert.NoError(t, guard.GradePerEnrollment(ctx, nil, "e", ""))
	assert.NoError(t, guard.YearName(ctx, nil, "2025-2026", ""))
}
