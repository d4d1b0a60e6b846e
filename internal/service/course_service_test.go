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

type fakeCourseRepo struct {
	byID             map[string]*models.Course
	enrollmentCounts map[string]int

	created *models.Course
	deleted []string
}

func newFakeCourseRepo() *fakeCourseRepo {
	return &fakeCourseRepo{
		byID:             make(map[string]*models.Course),
		enrollmentCounts: make(map[string]int),
	}
}

func (f *fakeCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	return nil, 0, nil
}

func (f *fakeCourseRepo) FindByID(ctx context.Context, q database.Querier, id string) (*models.Course, error) {
	course, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *course
	return &copied, nil
}

func (f *fakeCourseRepo) Create(ctx context.Context, q database.Querier, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	f.created = course
	return nil
}

func (f *fakeCourseRepo) Update(ctx context.Context, q database.Querier, course *models.Course) error {
	return nil
}

func (f *fakeCourseRepo) Delete(ctx context.Context, q database.Querier, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCourseRepo) CountEnrollments(ctx context.Context, q database.Querier, id string) (int, error) {
	return f.enrollmentCounts[id], nil
}

func TestCourseServiceCreate(t *testing.T) {
	repo := newFakeCourseRepo()
	svc := NewCourseService(repo, &fakeRunner{}, newTestGuard(false), nil, nil)

	course, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:    "Linear Algebra",
		Code:    "MATH201",
		Credits: 6,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, course.ID)
	assert.Equal(t, "MATH201", course.Code)
}

func TestCourseServiceCreateRejectsInvalidPayloads(t *testing.T) {
	svc := NewCourseService(newFakeCourseRepo(), &fakeRunner{}, newTestGuard(false), nil, nil)

	cases := []CreateCourseRequest{
		{Name: "Linear Algebra", Code: "math201", Credits: 6},
		{Name: "Linear Algebra", Code: "MATH201", Credits: 0},
		{Name: "Linear Algebra", Code: "MATH201", Credits: 31},
		{Name: "L", Code: "MATH201", Credits: 6},
	}
	for _, req := range cases {
		_, err := svc.Create(context.Background(), req)
		assert.Equal(t, appErrors.ErrValidation.Code, errCode(t, err), "%+v", req)
	}
}

func TestCourseServiceCreateDuplicateCode(t *testing.T) {
	svc := NewCourseService(newFakeCourseRepo(), &fakeRunner{}, newTestGuard(true), nil, nil)

	_, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:    "Linear Algebra",
		Code:    "MATH201",
		Credits: 6,
	})

	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))
	assert.Contains(t, err.Error(), "MATH201")
}

func TestCourseServiceDeleteBlockedByEnrollments(t *testing.T) {
	repo := newFakeCourseRepo()
	id := uuid.NewString()
	repo.byID[id] = &models.Course{ID: id}
	repo.enrollmentCounts[id] = 5
	svc := NewCourseService(repo, &fakeRunner{}, newTestGuard(false), nil, nil)

	err := svc.Delete(context.Background(), id)

	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))
	assert.Empty(t, repo.deleted)
}
