package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/mocks"
	"marketplace-service/internal/models"
	"marketplace-service/internal/webhook"
)

func setupWebhookRouter(notifier *mocks.NotifierMock, caller models.Account) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewWebhookHandler(notifier)
	r := gin.New()
	r.Use(withAccount(caller))
	r.POST("/jobs/:job_id/match", handler.RequestJobMatch)
	r.POST("/profiles/me/completed", handler.ProfileCompleted)
	return r
}

func TestRequestJobMatchAccepted(t *testing.T) {
	notifier := new(mocks.NotifierMock)
	router := setupWebhookRouter(notifier, models.Company{ID: "acme"})

	notifier.On("JobMatch", mock.MatchedBy(func(req webhook.JobMatchRequest) bool {
		return req.JobID == "j1" && req.RequestedBy == "acme" && len(req.Candidates) == 1
	})).Once()

	rec := serve(router, http.MethodPost, "/jobs/j1/match", `{"title":"Go developer","candidates":[{"id":"fran","skills":["go"]}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	notifier.AssertExpectations(t)
}

func TestRequestJobMatchValidation(t *testing.T) {
	notifier := new(mocks.NotifierMock)
	router := setupWebhookRouter(notifier, models.Company{ID: "acme"})

	rec := serve(router, http.MethodPost, "/jobs/j1/match", `{"title":"Go developer","candidates":[{"name":"no id"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPost, "/jobs/j1/match", `{"candidates":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	notifier.AssertNotCalled(t, "JobMatch", mock.Anything)
}

func TestProfileCompletedAccepted(t *testing.T) {
	notifier := new(mocks.NotifierMock)
	router := setupWebhookRouter(notifier, models.Professional{ID: "fran", Name: "Fran"})

	notifier.On("ProfileCompleted", mock.MatchedBy(func(ev webhook.ProfileCompleted) bool {
		return ev.UserID == "fran" && ev.Role == string(models.RoleProfessional) && !ev.CompletedAt.IsZero()
	})).Once()

	rec := serve(router, http.MethodPost, "/profiles/me/completed", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	notifier.AssertExpectations(t)
}
