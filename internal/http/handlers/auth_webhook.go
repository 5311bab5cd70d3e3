package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

// Auth provider event types.
const (
	AuthEventUserCreated = "user.created"
	AuthEventUserDeleted = "user.deleted"
)

// ProfileLifecycle reacts to auth provider user events.
type ProfileLifecycle interface {
	HandleUserCreated(ctx context.Context, userID string) (*models.Profile, error)
	HandleUserDeleted(ctx context.Context, userID string)
}

// AuthWebhookEvent represents an auth provider webhook event.
type AuthWebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AuthUserData is the user object carried by user.* events.
type AuthUserData struct {
	ID string `json:"id"`
}

// AuthWebhookHandler handles auth provider webhooks signed with Standard Webhooks (svix).
type AuthWebhookHandler struct {
	wh       *svix.Webhook
	profiles ProfileLifecycle
	logger   *slog.Logger
}

// NewAuthWebhookHandler creates a new auth webhook handler. secret is the
// "whsec_" prefixed signing secret.
func NewAuthWebhookHandler(secret string, profiles ProfileLifecycle, logger *slog.Logger) (*AuthWebhookHandler, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, err
	}
	return &AuthWebhookHandler{
		wh:       wh,
		profiles: profiles,
		logger:   logger.With("component", "auth_webhook"),
	}, nil
}

// HandleWebhook processes incoming auth provider webhooks.
func (h *AuthWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	headers := http.Header{}
	headers.Set("svix-id", r.Header.Get("svix-id"))
	headers.Set("svix-timestamp", r.Header.Get("svix-timestamp"))
	headers.Set("svix-signature", r.Header.Get("svix-signature"))

	if err := h.wh.Verify(payload, headers); err != nil {
		h.logger.Warn("failed to verify webhook signature", "error", err)
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	var event AuthWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Warn("failed to parse webhook event", "error", err)
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	var user AuthUserData
	if event.Type == AuthEventUserCreated || event.Type == AuthEventUserDeleted {
		if err := json.Unmarshal(event.Data, &user); err != nil || user.ID == "" {
			h.logger.Warn("webhook event missing user id", "type", event.Type)
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}

	switch event.Type {
	case AuthEventUserCreated:
		if _, err := h.profiles.HandleUserCreated(r.Context(), user.ID); err != nil {
			h.logger.Error("failed to create profile", "user_id", user.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	case AuthEventUserDeleted:
		h.profiles.HandleUserDeleted(r.Context(), user.ID)
	default:
		h.logger.Debug("ignoring auth webhook", "type", event.Type)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
