package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/pkg/database"
	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

type fakeStudentRepo struct {
	byID             map[string]*models.Student
	enrollmentCounts map[string]int

	created *models.Student
	updated *models.Student
	deleted []string
}

func newFakeStudentRepo() *fakeStudentRepo {
	return &fakeStudentRepo{
		byID:             make(map[string]*models.Student),
		enrollmentCounts: make(map[string]int),
	}
}

func (f *fakeStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	return nil, 0, nil
}

func (f *fakeStudentRepo) FindByID(ctx context.Context, q database.Querier, id string) (*models.Student, error) {
	student, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *student
	return &copied, nil
}

func (f *fakeStudentRepo) Create(ctx context.Context, q database.Querier, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	f.created = student
	return nil
}

func (f *fakeStudentRepo) Update(ctx context.Context, q database.Querier, student *models.Student) error {
	f.updated = student
	return nil
}

func (f *fakeStudentRepo) Delete(ctx context.Context, q database.Querier, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStudentRepo) CountEnrollments(ctx context.Context, q database.Querier, id string) (int, error) {
	return f.enrollmentCounts[id], nil
}

func validStudentRequest() CreateStudentRequest {
	return CreateStudentRequest{
		FirstName:   "Awa",
		LastName:    "Diop",
		StudentCode: "STD-2025-0042",
		DateOfBirth: time.Date(2006, 4, 12, 0, 0, 0, 0, time.UTC),
		Sex:         "F",
	}
}

func TestStudentServiceCreate(t *testing.T) {
	repo := newFakeStudentRepo()
	svc := NewStudentService(repo, &fakeRunner{}, newTestGuard(false), nil, nil)

	student, err := svc.Create(context.Background(), validStudentRequest())

	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.Equal(t, "STD-2025-0042", student.StudentCode)
}

func TestStudentServiceCreateValidatesCodeFormat(t *testing.T) {
	svc := NewStudentService(newFakeStudentRepo(), &fakeRunner{}, newTestGuard(false), nil, nil)

	for _, code := range []string{"STD-25-0042", "2025-0042", "STD-2025-42", "std-2025-0042", "STD-2025-00421"} {
		req := validStudentRequest()
		req.StudentCode = code
		_, err := svc.Create(context.Background(), req)
		assert.Equal(t, appErrors.ErrValidation.Code, errCode(t, err), "code %q", code)
	}
}

func TestStudentServiceCreateDuplicateCode(t *testing.T) {
	svc := NewStudentService(newFakeStudentRepo(), &fakeRunner{}, newTestGuard(true), nil, nil)

	_, err := svc.Create(context.Background(), validStudentRequest())

	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))
	assert.Contains(t, err.Error(), "already exists")
}

func TestStudentServiceUpdateKeepsUntouchedFields(t *testing.T) {
	repo := newFakeStudentRepo()
	id := uuid.NewString()
	repo.byID[id] = &models.Student{
		ID:          id,
		FirstName:   "Awa",
		LastName:    "Diop",
		StudentCode: "STD-2025-0042",
		Sex:         "F",
		Phone:       "770000000",
	}
	svc := NewStudentService(repo, &fakeRunner{}, newTestGuard(false), nil, nil)

	last := "Ndiaye"
	student, err := svc.Update(context.Background(), id, UpdateStudentRequest{LastName: &last})

	require.NoError(t, err)
	assert.Equal(t, "Ndiaye", student.LastName)
	assert.Equal(t, "Awa", student.FirstName)
	assert.Equal(t, "770000000", student.Phone)
}

func TestStudentServiceDeleteBlockedByEnrollments(t *testing.T) {
	repo := newFakeStudentRepo()
	id := uuid.NewString()
	repo.byID[id] = &models.Student{ID: id}
	repo.enrollmentCounts[id] = 1
	svc := NewStudentService(repo, &fakeRunner{}, newTestGuard(false), nil, nil)

	err := svc.Delete(context.Background(), id)

	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))
	assert.Empty(t, repo.deleted)
}
