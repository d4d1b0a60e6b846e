package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/pkg/database"
	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

// RefKind names a referenced collection for validation messages.
type RefKind string

const (
	RefAcademicYear RefKind = "academic year"
	RefSemester     RefKind = "semester"
	RefCourse       RefKind = "course"
	RefStudent      RefKind = "student"
	RefEnrollment   RefKind = "enrollment"
)

// ReferenceCheck pairs a request field with the collection its value must
// exist in.
type ReferenceCheck struct {
	Field string
	Kind  RefKind
	Value string
}

// ExistsProbe reports whether an entity exists, scoped to q so the probe
// observes uncommitted writes made earlier in the same transaction.
type ExistsProbe func(ctx context.Context, q database.Querier, id string) (bool, error)

// ReferenceValidator simulates the referential-integrity checks a relational
// engine would give for free over real foreign keys: malformed identifiers
// fail before any query is issued, then an existence probe runs per check.
type ReferenceValidator struct {
	probes map[RefKind]ExistsProbe
}

// NewReferenceValidator builds an empty validator; probes are registered per
// collection kind at wiring time.
func NewReferenceValidator() *ReferenceValidator {
	return &ReferenceValidator{probes: make(map[RefKind]ExistsProbe)}
}

// Register installs the existence probe for a collection kind.
func (v *ReferenceValidator) Register(kind RefKind, probe ExistsProbe) {
	v.probes[kind] = probe
}

// Validate runs the checks in the declared order and surfaces the first
// failure, keeping error messages deterministic. A syntactically invalid
// identifier short-circuits before the existence query so the driver never
// sees it.
func (v *ReferenceValidator) Validate(ctx context.Context, q database.Querier, checks ...ReferenceCheck) error {
	for _, check := range checks {
		if _, err := uuid.Parse(check.Value); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid %s identifier", check.Field))
		}
		probe, ok := v.probes[check.Kind]
		if !ok {
			return appErrors.Wrap(fmt.Errorf("no probe registered for %s", check.Kind), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
		}
		exists, err := probe(ctx, q, check.Value)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to resolve %s reference", check.Field))
		}
		if !exists {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found: %s", check.Kind, check.Value))
		}
	}
	return nil
}

type enrollmentKeyChecker interface {
	ExistsTriple(ctx context.Context, q database.Querier, studentID, courseID, semesterID, excludeID string) (bool, error)
}

type gradeKeyChecker interface {
	ExistsByEnrollment(ctx context.Context, q database.Querier, enrollmentID, excludeID string) (bool, error)
}

type semesterKeyChecker interface {
	ExistsByYearAndName(ctx context.Context, q database.Querier, yearID string, name models.SemesterName, excludeID string) (bool, error)
}

type yearKeyChecker interface {
	ExistsByName(ctx context.Context, q database.Querier, name, excludeID string) (bool, error)
}

type courseKeyChecker interface {
	ExistsByCode(ctx context.Context, q database.Querier, code, excludeID string) (bool, error)
}

type studentKeyChecker interface {
	ExistsByCode(ctx context.Context, q database.Querier, code, excludeID string) (bool, error)
}

type userKeyChecker interface {
	ExistsByEmail(ctx context.Context, q database.Querier, email, excludeID string) (bool, error)
	ExistsByUsername(ctx context.Context, q database.Querier, username, excludeID string) (bool, error)
	ExistsByStudent(ctx context.Context, q database.Querier, studentID, excludeID string) (bool, error)
}

// UniquenessGuard checks invariant keys before a write. It is a fast-fail
// courtesy layer producing friendly conflict messages; the composite unique
// indexes declared in the schema remain the real mutual-exclusion mechanism
// for transactions that race past it.
type UniquenessGuard struct {
	enrollments enrollmentKeyChecker
	grades      gradeKeyChecker
	semesters   semesterKeyChecker
	years       yearKeyChecker
	courses     courseKeyChecker
	students    studentKeyChecker
	users       userKeyChecker
}

// UniquenessGuardParams groups the per-entity key checkers.
type UniquenessGuardParams struct {
	Enrollments enrollmentKeyChecker
	Grades      gradeKeyChecker
	Semesters   semesterKeyChecker
	Years       yearKeyChecker
	Courses     courseKeyChecker
	Students    studentKeyChecker
	Users       userKeyChecker
}

// NewUniquenessGuard constructs the guard.
func NewUniquenessGuard(params UniquenessGuardParams) *UniquenessGuard {
	return &UniquenessGuard{
		enrollments: params.Enrollments,
		grades:      params.Grades,
		semesters:   params.Semesters,
		years:       params.Years,
		courses:     params.Courses,
		students:    params.Students,
		users:       params.Users,
	}
}

// EnrollmentTriple enforces the (student, course, semester) key.
func (g *UniquenessGuard) EnrollmentTriple(ctx context.Context, q database.Querier, studentID, courseID, semesterID, excludeID string) error {
	exists, err := g.enrollments.ExistsTriple(ctx, q, studentID, courseID, semesterID, excludeID)
	if err != nil {
		return wrapGuardErr(err)
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "student already enrolled in this course for this semester")
	}
	return nil
}

// GradePerEnrollment enforces the one-grade-per-enrollment key.
func (g *UniquenessGuard) GradePerEnrollment(ctx context.Context, q database.Querier, enrollmentID, excludeID string) error {
	exists, err := g.grades.ExistsByEnrollment(ctx, q, enrollmentID, excludeID)
	if err != nil {
		return wrapGuardErr(err)
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "a grade already exists for this enrollment")
	}
	return nil
}

// SemesterYearName enforces the (academic year, name) key.
func (g *UniquenessGuard) SemesterYearName(ctx context.Context, q database.Querier, yearID string, name models.SemesterName, excludeID string) error {
	exists, err := g.semesters.ExistsByYearAndName(ctx, q, yearID, name, excludeID)
	if err != nil {
		return wrapGuardErr(err)
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("semester %s already exists for this academic year", name))
	}
	return nil
}

// YearName enforces the academic year name key.
func (g *UniquenessGuard) YearName(ctx context.Context, q database.Querier, name, excludeID string) error {
	exists, err := g.years.ExistsByName(ctx, q, name, excludeID)
	if err != nil {
		return wrapGuardErr(err)
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("academic year %s already exists", name))
	}
	return nil
}

// CourseCode enforces the course code key.
func (g *UniquenessGuard) CourseCode(ctx context.Context, q database.Querier, code, excludeID string) error {
	exists, err := g.courses.ExistsByCode(ctx, q, code, excludeID)
	if err != nil {
		return wrapGuardErr(err)
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("course code %s already exists", code))
	}
	return nil
}

// StudentCode enforces the student code key.
func (g *UniquenessGuard) StudentCode(ctx context.Context, q database.Querier, code, excludeID string) error {
	exists, err := g.students.ExistsByCode(ctx, q, code, excludeID)
	if err != nil {
		return wrapGuardErr(err)
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("student code %s already exists", code))
	}
	return nil
}

// UserEmail enforces the email key.
func (g *UniquenessGuard) UserEmail(ctx context.Context, q database.Querier, email, excludeID string) error {
	exists, err := g.users.ExistsByEmail(ctx, q, email, excludeID)
	if err != nil {
		return wrapGuardErr(err)
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already in use")
	}
	return nil
}

// UserUsername enforces the optional username key.
func (g *UniquenessGuard) UserUsername(ctx context.Context, q database.Querier, username, excludeID string) error {
	exists, err := g.users.ExistsByUsername(ctx, q, username, excludeID)
	if err != nil {
		return wrapGuardErr(err)
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "username already in use")
	}
	return nil
}

// UserStudent enforces the at-most-one-user-per-student key. The invariant
// spans two collections, so it is keyed on the referenced student rather than
// a property of the user record alone.
func (g *UniquenessGuard) UserStudent(ctx context.Context, q database.Querier, studentID, excludeID string) error {
	exists, err := g.users.ExistsByStudent(ctx, q, studentID, excludeID)
	if err != nil {
		return wrapGuardErr(err)
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "another user already references this student")
	}
	return nil
}

func wrapGuardErr(err error) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check uniqueness")
}
