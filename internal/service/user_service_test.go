package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/pkg/database"
	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

type fakeUserRepo struct {
	byID map[string]*models.User

	created      *models.User
	updated      *models.User
	passwordHash string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: make(map[string]*models.User)}
}

func (f *fakeUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return nil, 0, nil
}

func (f *fakeUserRepo) FindByID(ctx context.Context, q database.Querier, id string) (*models.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserRepo) FindDetailByID(ctx context.Context, id string) (*models.UserDetail, error) {
	user, ok := f.byID[id]
	if !ok && f.created != nil && f.created.ID == id {
		user, ok = f.created, true
	}
	if !ok && f.updated != nil && f.updated.ID == id {
		user, ok = f.updated, true
	}
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.UserDetail{User: *user}, nil
}

func (f *fakeUserRepo) Create(ctx context.Context, q database.Querier, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	f.created = user
	return nil
}

func (f *fakeUserRepo) Update(ctx context.Context, q database.Querier, user *models.User) error {
	f.updated = user
	return nil
}

func (f *fakeUserRepo) UpdatePassword(ctx context.Context, q database.Querier, id, passwordHash string) error {
	f.passwordHash = passwordHash
	return nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, q database.Querier, id string) error {
	return nil
}

type recordingAudit struct {
	entries []models.AuditLog
}

func (r *recordingAudit) Record(entry models.AuditLog) {
	r.entries = append(r.entries, entry)
}

func newUserService(repo *fakeUserRepo, refs *ReferenceValidator, guard *UniquenessGuard, audit AuditRecorder) *UserService {
	return NewUserService(repo, &fakeRunner{}, refs, guard, audit, nil, nil)
}

func TestUserServiceCreateDiscardsStudentIDForStaffRoles(t *testing.T) {
	repo := newFakeUserRepo()
	student := uuid.NewString()
	svc := newUserService(repo, newTestValidator(nil), newTestGuard(false), nil)

	detail, err := svc.Create(context.Background(), CreateUserRequest{
		Email:     "staff@school.test",
		Password:  "supersecret",
		Role:      models.RoleScolarite,
		StudentID: &student,
	}, Actor{})

	require.NoError(t, err)
	assert.Nil(t, detail.User.StudentID)
}

func TestUserServiceCreateStudentRequiresStudentID(t *testing.T) {
	svc := newUserService(newFakeUserRepo(), newTestValidator(nil), newTestGuard(false), nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "student@school.test",
		Password: "supersecret",
		Role:     models.RoleStudent,
	}, Actor{})

	assert.Equal(t, appErrors.ErrValidation.Code, errCode(t, err))
}

func TestUserServiceCreateStudentBoundToExistingStudent(t *testing.T) {
	repo := newFakeUserRepo()
	student := uuid.NewString()
	refs := newTestValidator(map[RefKind][]string{RefStudent: {student}})
	audit := &recordingAudit{}
	svc := newUserService(repo, refs, newTestGuard(false), audit)

	detail, err := svc.Create(context.Background(), CreateUserRequest{
		Email:     "student@school.test",
		Password:  "supersecret",
		Role:      models.RoleStudent,
		StudentID: &student,
	}, Actor{UserID: uuid.NewString(), IP: "10.0.0.1"})

	require.NoError(t, err)
	require.NotNil(t, detail.User.StudentID)
	assert.Equal(t, student, *detail.User.StudentID)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionUserCreate, audit.entries[0].Action)
	assert.Equal(t, "10.0.0.1", audit.entries[0].IPAddress)
}

func TestUserServiceCreateHashesPassword(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newUserService(repo, newTestValidator(nil), newTestGuard(false), nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "admin@school.test",
		Password: "supersecret",
		Role:     models.RoleAdmin,
	}, Actor{})

	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.NotEqual(t, "supersecret", repo.created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.created.PasswordHash), []byte("supersecret")))
}

func TestUserServiceCreateDuplicateEmail(t *testing.T) {
	svc := newUserService(newFakeUserRepo(), newTestValidator(nil), newTestGuard(true), nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "dup@school.test",
		Password: "supersecret",
		Role:     models.RoleAdmin,
	}, Actor{})

	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))
	assert.Contains(t, err.Error(), "email already in use")
}

func TestUserServiceCreateChecksStudentReferenceBeforeUniqueness(t *testing.T) {
	student := uuid.NewString()
	// The student reference is unknown and every uniqueness check would also
	// conflict. The missing reference must win.
	svc := newUserService(newFakeUserRepo(), newTestValidator(nil), newTestGuard(true), nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:     "student@school.test",
		Password:  "supersecret",
		Role:      models.RoleStudent,
		StudentID: &student,
	}, Actor{})

	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(t, err))
	assert.Contains(t, err.Error(), student)
}

func TestUserServiceUpdateDropsUsernameAndPassword(t *testing.T) {
	repo := newFakeUserRepo()
	id := uuid.NewString()
	username := "original"
	repo.byID[id] = &models.User{
		ID:           id,
		Email:        "u@school.test",
		Username:     &username,
		PasswordHash: "hash",
		Role:         models.RoleScolarite,
		IsActive:     true,
	}
	svc := newUserService(repo, newTestValidator(nil), newTestGuard(false), nil)

	sneaky := "hijacked"
	inactive := false
	_, err := svc.Update(context.Background(), id, UpdateUserRequest{
		Username: &sneaky,
		Password: &sneaky,
		IsActive: &inactive,
	}, Actor{})

	require.NoError(t, err)
	require.NotNil(t, repo.updated)
	require.NotNil(t, repo.updated.Username)
	assert.Equal(t, "original", *repo.updated.Username)
	assert.Equal(t, "hash", repo.updated.PasswordHash)
	assert.False(t, repo.updated.IsActive)
}

func TestUserServiceUpdateRoleChangeClearsStudentLink(t *testing.T) {
	repo := newFakeUserRepo()
	id := uuid.NewString()
	student := uuid.NewString()
	repo.byID[id] = &models.User{
		ID:        id,
		Email:     "s@school.test",
		Role:      models.RoleStudent,
		StudentID: &student,
		IsActive:  true,
	}
	svc := newUserService(repo, newTestValidator(nil), newTestGuard(false), nil)

	role := models.RoleAdmin
	detail, err := svc.Update(context.Background(), id, UpdateUserRequest{Role: &role}, Actor{})

	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, detail.User.Role)
	assert.Nil(t, detail.User.StudentID)
}

func TestUserServiceUpdateAuditsBeforeAndAfter(t *testing.T) {
	repo := newFakeUserRepo()
	id := uuid.NewString()
	repo.byID[id] = &models.User{
		ID:       id,
		Email:    "before@school.test",
		Role:     models.RoleAdmin,
		IsActive: true,
	}
	audit := &recordingAudit{}
	svc := newUserService(repo, newTestValidator(nil), newTestGuard(false), audit)

	email := "after@school.test"
	_, err := svc.Update(context.Background(), id, UpdateUserRequest{Email: &email}, Actor{UserID: uuid.NewString()})

	require.NoError(t, err)
	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, models.AuditActionUserUpdate, entry.Action)
	assert.Contains(t, string(entry.OldValues), "before@school.test")
	assert.Contains(t, string(entry.NewValues), "after@school.test")
}

func TestUserServiceResetPassword(t *testing.T) {
	repo := newFakeUserRepo()
	id := uuid.NewString()
	repo.byID[id] = &models.User{ID: id, Email: "u@school.test", Role: models.RoleAdmin}
	audit := &recordingAudit{}
	svc := newUserService(repo, newTestValidator(nil), newTestGuard(false), audit)

	err := svc.ResetPassword(context.Background(), id, ResetPasswordRequest{Password: "freshsecret"}, Actor{})

	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.passwordHash), []byte("freshsecret")))
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionUserResetPassword, audit.entries[0].Action)
}

func TestUserServiceResetPasswordTooShort(t *testing.T) {
	svc := newUserService(newFakeUserRepo(), newTestValidator(nil), newTestGuard(false), nil)

	err := svc.ResetPassword(context.Background(), uuid.NewString(), ResetPasswordRequest{Password: "short"}, Actor{})

	assert.Equal(t, appErrors.ErrValidation.Code, errCode(t, err))
}
