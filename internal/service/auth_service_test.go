package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/scolahub/scolarite-api/internal/models"
	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

type fakeAuthRepo struct {
	byEmail map[string]*models.User

	lastLoginID string
	lastLoginAt time.Time
}

func newFakeAuthRepo() *fakeAuthRepo {
	return &fakeAuthRepo{byEmail: make(map[string]*models.User)}
}

func (f *fakeAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (f *fakeAuthRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	f.lastLoginID = id
	f.lastLoginAt = at
	return nil
}

func seedAuthUser(repo *fakeAuthRepo, email, password string, active bool) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleScolarite,
		IsActive:     active,
	}
	repo.byEmail[email] = user
	return user
}

func TestAuthServiceLoginIssuesVerifiableToken(t *testing.T) {
	repo := newFakeAuthRepo()
	user := seedAuthUser(repo, "staff@school.test", "supersecret", true)
	svc := NewAuthService(repo, "test-secret", time.Hour, nil, nil)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "staff@school.test",
		Password: "supersecret",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.Equal(t, user.ID, repo.lastLoginID)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleScolarite, claims.Role)
	assert.Equal(t, "staff@school.test", claims.Email)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newFakeAuthRepo()
	seedAuthUser(repo, "staff@school.test", "supersecret", true)
	svc := NewAuthService(repo, "test-secret", time.Hour, nil, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "staff@school.test",
		Password: "wrong-password",
	})

	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, errCode(t, err))
}

func TestAuthServiceLoginUnknownEmailSameError(t *testing.T) {
	repo := newFakeAuthRepo()
	seedAuthUser(repo, "staff@school.test", "supersecret", true)
	svc := NewAuthService(repo, "test-secret", time.Hour, nil, nil)

	_, unknownErr := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@school.test",
		Password: "supersecret",
	})
	_, wrongErr := svc.Login(context.Background(), models.LoginRequest{
		Email:    "staff@school.test",
		Password: "wrong-password",
	})

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.Equal(t, wrongErr.Error(), unknownErr.Error())
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	repo := newFakeAuthRepo()
	seedAuthUser(repo, "gone@school.test", "supersecret", false)
	svc := NewAuthService(repo, "test-secret", time.Hour, nil, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "gone@school.test",
		Password: "supersecret",
	})

	assert.Equal(t, appErrors.ErrInactiveAccount.Code, errCode(t, err))
}

func TestAuthServiceValidateTokenRejectsExpired(t *testing.T) {
	repo := newFakeAuthRepo()
	seedAuthUser(repo, "staff@school.test", "supersecret", true)
	svc := NewAuthService(repo, "test-secret", time.Hour, nil, nil)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "staff@school.test",
		Password: "supersecret",
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errCode(t, err))
}

func TestAuthServiceValidateTokenWrongSecret(t *testing.T) {
	repo := newFakeAuthRepo()
	seedAuthUser(repo, "staff@school.test", "supersecret", true)
	issuer := NewAuthService(repo, "secret-a", time.Hour, nil, nil)
	verifier := NewAuthService(repo, "secret-b", time.Hour, nil, nil)

	resp, err := issuer.Login(context.Background(), models.LoginRequest{
		Email:    "staff@school.test",
		Password: "supersecret",
	})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(resp.AccessToken)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errCode(t, err))
}

func TestAuthServiceValidateTokenGarbage(t *testing.T) {
	svc := NewAuthService(newFakeAuthRepo(), "test-secret", time.Hour, nil, nil)

	_, err := svc.ValidateToken("not.a.token")

	assert.Equal(t, appErrors.ErrUnauthorized.Code, errCode(t, err))
}
