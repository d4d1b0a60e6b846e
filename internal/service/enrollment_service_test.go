package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/pkg/database"
	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

type fakeEnrollmentRepo struct {
	byID        map[string]*models.Enrollment
	gradeCounts map[string]int

	created *models.Enrollment
	updated *models.Enrollment
	deleted []string
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{
		byID:        make(map[string]*models.Enrollment),
		gradeCounts: make(map[string]int),
	}
}

func (f *fakeEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (f *fakeEnrollmentRepo) FindByID(ctx context.Context, q database.Querier, id string) (*models.Enrollment, error) {
	enrollment, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *enrollment
	return &copied, nil
}

func (f *fakeEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, ok := f.byID[id]
	if !ok && f.created != nil && f.created.ID == id {
		enrollment, ok = f.created, true
	}
	if !ok && f.updated != nil && f.updated.ID == id {
		enrollment, ok = f.updated, true
	}
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.EnrollmentDetail{Enrollment: *enrollment}, nil
}

func (f *fakeEnrollmentRepo) Create(ctx context.Context, q database.Querier, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	f.created = enrollment
	return nil
}

func (f *fakeEnrollmentRepo) Update(ctx context.Context, q database.Querier, enrollment *models.Enrollment) error {
	f.updated = enrollment
	return nil
}

func (f *fakeEnrollmentRepo) Delete(ctx context.Context, q database.Querier, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeEnrollmentRepo) CountGrades(ctx context.Context, q database.Querier, id string) (int, error) {
	return f.gradeCounts[id], nil
}

func TestEnrollmentServiceCreate(t *testing.T) {
	student, course, semester := uuid.NewString(), uuid.NewString(), uuid.NewString()
	repo := newFakeEnrollmentRepo()
	refs := newTestValidator(map[RefKind][]string{
		RefStudent:  {student},
		RefCourse:   {course},
		RefSemester: {semester},
	})
	runner := &fakeRunner{}
	svc := NewEnrollmentService(repo, runner, refs, newTestGuard(false), nil, nil)

	detail, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID:  student,
		CourseID:   course,
		SemesterID: semester,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, detail.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, detail.Status)
	assert.Equal(t, 1, runner.calls)
}

func TestEnrollmentServiceCreateRejectsUnknownCourse(t *testing.T) {
	student, semester := uuid.NewString(), uuid.NewString()
	repo := newFakeEnrollmentRepo()
	refs := newTestValidator(map[RefKind][]string{
		RefStudent:  {student},
		RefSemester: {semester},
	})
	svc := NewEnrollmentService(repo, &fakeRunner{}, refs, newTestGuard(false), nil, nil)

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID:  student,
		CourseID:   uuid.NewString(),
		SemesterID: semester,
	})

	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(t, err))
	assert.Nil(t, repo.created)
}

func TestEnrollmentServiceCreateRejectsDuplicateTriple(t *testing.T) {
	student, course, semester := uuid.NewString(), uuid.NewString(), uuid.NewString()
	repo := newFakeEnrollmentRepo()
	refs := newTestValidator(map[RefKind][]string{
		RefStudent:  {student},
		RefCourse:   {course},
		RefSemester: {semester},
	})
	svc := NewEnrollmentService(repo, &fakeRunner{}, refs, newTestGuard(true), nil, nil)

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID:  student,
		CourseID:   course,
		SemesterID: semester,
	})

	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))
	assert.Contains(t, err.Error(), "already enrolled")
	assert.Nil(t, repo.created)
}

func TestEnrollmentServiceUpdateStatusOnlySkipsReferenceChecks(t *testing.T) {
	id := uuid.NewString()
	repo := newFakeEnrollmentRepo()
	repo.byID[id] = &models.Enrollment{
		ID:         id,
		StudentID:  uuid.NewString(),
		CourseID:   uuid.NewString(),
		SemesterID: uuid.NewString(),
		Status:     models.EnrollmentStatusEnrolled,
	}
	// No probes would pass: the references are unknown to the validator, so
	// the update only succeeds if untouched fields are not re-validated.
	refs := newTestValidator(nil)
	svc := NewEnrollmentService(repo, &fakeRunner{}, refs, newTestGuard(false), nil, nil)

	status := models.EnrollmentStatusCompleted
	detail, err := svc.Update(context.Background(), id, UpdateEnrollmentRequest{Status: &status})

	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, detail.Status)
	require.NotNil(t, repo.updated)
	assert.Equal(t, repo.byID[id].StudentID, repo.updated.StudentID)
}

func TestEnrollmentServiceUpdateMissingEnrollment(t *testing.T) {
	svc := NewEnrollmentService(newFakeEnrollmentRepo(), &fakeRunner{}, newTestValidator(nil), newTestGuard(false), nil, nil)

	status := models.EnrollmentStatusDropped
	_, err := svc.Update(context.Background(), uuid.NewString(), UpdateEnrollmentRequest{Status: &status})

	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(t, err))
}

func TestEnrollmentServiceDeleteBlockedByGrade(t *testing.T) {
	id := uuid.NewString()
	repo := newFakeEnrollmentRepo()
	repo.byID[id] = &models.Enrollment{ID: id}
	repo.gradeCounts[id] = 1
	svc := NewEnrollmentService(repo, &fakeRunner{}, newTestValidator(nil), newTestGuard(false), nil, nil)

	err := svc.Delete(context.Background(), id)

	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))
	assert.Empty(t, repo.deleted)
}

func TestEnrollmentServiceDelete(t *testing.T) {
	id := uuid.NewString()
	repo := newFakeEnrollmentRepo()
	repo.byID[id] = &models.Enrollment{ID: id}
	svc := NewEnrollmentService(repo, &fakeRunner{}, newTestValidator(nil), newTestGuard(false), nil, nil)

	require.NoError(t, svc.Delete(context.Background(), id))
	assert.Equal(t, []string{id}, repo.deleted)
}
