package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scolahub/scolarite-api/internal/middleware"
	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/internal/service"
	appErrors "github.com/scolahub/scolarite-api/pkg/errors"
)

func newGradeRouter(claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if claims != nil {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.ContextUserKey, claims)
			c.Next()
		})
	}
	handler := NewGradeHandler(service.NewGradeService(nil, nil, nil, nil, nil, nil))
	router.POST("/grades", handler.Create)
	return router
}

func TestGradeCreateWithoutAuthenticatedUser(t *testing.T) {
	router := newGradeRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/grades",
		strings.NewReader(`{"enrollment_id":"7b0c4a14-9a7e-4d4e-a8a2-2f6f3c2f9b10","value":14}`))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Contains(t, recorder.Body.String(), appErrors.ErrUnauthorized.Code)
}

func TestGradeCreateRejectsMalformedBody(t *testing.T) {
	router := newGradeRouter(&models.JWTClaims{UserID: "admin-id", Role: models.RoleAdmin})

	req := httptest.NewRequest(http.MethodPost, "/grades", strings.NewReader(`{"value":`))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), appErrors.ErrValidation.Code)
}
