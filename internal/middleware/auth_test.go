package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/auth"
	"marketplace-service/internal/models"
)

type recordingDirectory struct {
	accounts []models.Account
}

func (d *recordingDirectory) UpsertUser(_ context.Context, account models.Account) error {
	d.accounts = append(d.accounts, account)
	return nil
}

func setupAuthRouter(verifier *auth.Verifier, users UserDirectory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	r := gin.New()
	r.Use(RequestID(), AuthMiddleware(verifier, users, logger))
	r.GET("/me", func(c *gin.Context) {
		account, ok := AccountFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.GetString(ContextUserID), "role": account.AccountRole()})
	})
	return r
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	verifier := auth.NewVerifier("secret", time.Hour)
	users := &recordingDirectory{}
	router := setupAuthRouter(verifier, users)

	token, err := verifier.Issue(models.Specialist{ID: "s-1", Name: "Sam"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"s-1","role":"specialist"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	require.Len(t, users.accounts, 1)
	assert.Equal(t, "Sam", users.accounts[0].DisplayName())
}

func TestAuthMiddlewareRejects(t *testing.T) {
	router := setupAuthRouter(auth.NewVerifier("secret", time.Hour), nil)

	cases := map[string]string{
		"missing":   "",
		"scheme":    "Basic abc",
		"malformed": "Bearer nope",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	verifier := auth.NewVerifier("secret", time.Hour)
	router := setupAuthRouter(verifier, nil)
	token, err := verifier.Issue(models.Admin{ID: "a"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}
