package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

const testSvixSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

type stubProfiles struct {
	created []string
	deleted []string
	err     error
}

func (s *stubProfiles) HandleUserCreated(_ context.Context, userID string) (*models.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, userID)
	return &models.Profile{ID: userID, Plan: models.PlanFree}, nil
}

func (s *stubProfiles) HandleUserDeleted(_ context.Context, userID string) {
	s.deleted = append(s.deleted, userID)
}

func postAuthWebhook(t *testing.T, h *AuthWebhookHandler, body string, signed bool) *httptest.ResponseRecorder {
	t.Helper()

	msgID := "msg_test_1"
	now := time.Now()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/auth", strings.NewReader(body))
	req.Header.Set("svix-id", msgID)
	req.Header.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))

	if signed {
		wh, err := svix.NewWebhook(testSvixSecret)
		require.NoError(t, err)
		sig, err := wh.Sign(msgID, now, []byte(body))
		require.NoError(t, err)
		req.Header.Set("svix-signature", sig)
	} else {
		req.Header.Set("svix-signature", "v1,aW52YWxpZA==")
	}

	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)
	return rec
}

func newAuthWebhook(t *testing.T, profiles ProfileLifecycle) *AuthWebhookHandler {
	t.Helper()
	h, err := NewAuthWebhookHandler(testSvixSecret, profiles, testLogger())
	require.NoError(t, err)
	return h
}

func TestAuthWebhook_UserCreated(t *testing.T) {
	profiles := &stubProfiles{}
	h := newAuthWebhook(t, profiles)

	rec := postAuthWebhook(t, h, `{"type":"user.created","data":{"id":"user_1","email":"a@example.com"}}`, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"user_1"}, profiles.created)
}

func TestAuthWebhook_UserDeleted(t *testing.T) {
	profiles := &stubProfiles{}
	h := newAuthWebhook(t, profiles)

	rec := postAuthWebhook(t, h, `{"type":"user.deleted","data":{"id":"user_1"}}`, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"user_1"}, profiles.deleted)
	assert.Empty(t, profiles.created)
}

func TestAuthWebhook_UnknownTypeAcked(t *testing.T) {
	profiles := &stubProfiles{}
	h := newAuthWebhook(t, profiles)

	rec := postAuthWebhook(t, h, `{"type":"session.created","data":{"id":"sess_1"}}`, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, profiles.created)
	assert.Empty(t, profiles.deleted)
}

func TestAuthWebhook_BadSignature(t *testing.T) {
	profiles := &stubProfiles{}
	h := newAuthWebhook(t, profiles)

	rec := postAuthWebhook(t, h, `{"type":"user.created","data":{"id":"user_1"}}`, false)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, profiles.created)
}

func TestAuthWebhook_MissingUserID(t *testing.T) {
	h := newAuthWebhook(t, &stubProfiles{})

	rec := postAuthWebhook(t, h, `{"type":"user.created","data":{}}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthWebhook_StoreFailureRetried(t *testing.T) {
	h := newAuthWebhook(t, &stubProfiles{err: errors.New("db down")})

	rec := postAuthWebhook(t, h, `{"type":"user.created","data":{"id":"user_1"}}`, true)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewAuthWebhookHandler_InvalidSecret(t *testing.T) {
	_, err := NewAuthWebhookHandler("whsec_!!!not-base64", &stubProfiles{}, testLogger())
	assert.Error(t, err)
}
