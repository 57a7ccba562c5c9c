package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/losol/eventuras-sub008/internal/domain/external"
	"github.com/losol/eventuras-sub008/internal/domain/registration"
)

var ErrRemoteEventNotFound = errors.New("event not found in remote system")

type WebhookConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// WebhookIntegration talks to a course system over a small JSON API:
//
//	POST {base}/accounts                          -> {"id": "..."}
//	GET  {base}/events/{externalEventId}          -> 200 | 404
//	POST {base}/events/{externalEventId}/enrollments -> 2xx | 409
type WebhookIntegration struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *slog.Logger
}

func NewWebhookIntegration(cfg WebhookConfig, log *slog.Logger) (*WebhookIntegration, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("webhook: invalid base url %q: %w", cfg.BaseURL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &WebhookIntegration{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With("adapter", "webhook"),
	}, nil
}

type createAccountRequest struct {
	UserID         string `json:"userId"`
	RegistrationID string `json:"registrationId"`
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
}

type createAccountResponse struct {
	ID string `json:"id"`
}

type enrollmentRequest struct {
	AccountID      string `json:"accountId"`
	RegistrationID string `json:"registrationId"`
}

func (w *WebhookIntegration) CreateExternalAccount(ctx context.Context, reg registration.Registration) (string, error) {
	body := createAccountRequest{UserID: reg.UserID, RegistrationID: reg.ID}
	if reg.User != nil {
		body.Name = reg.User.Name
		body.Email = reg.User.Email
		body.PhoneNumber = reg.User.PhoneNumber
	}

	resp, err := w.do(ctx, http.MethodPost, "/accounts", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", unexpectedStatus(resp)
	}

	var out createAccountResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("webhook: decode account: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("webhook: account response without id")
	}
	return out.ID, nil
}

func (w *WebhookIntegration) CheckExternalEvent(ctx context.Context, ev external.Event) error {
	resp, err := w.do(ctx, http.MethodGet, "/events/"+url.PathEscape(ev.ExternalEventID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrRemoteEventNotFound, ev.ExternalEventID)
	case resp.StatusCode >= 300:
		return unexpectedStatus(resp)
	}
	return nil
}

// RegisterUserToExternalEvent treats 409 as success: the remote side already
// has the enrollment.
func (w *WebhookIntegration) RegisterUserToExternalEvent(ctx context.Context, ev external.Event, acc external.Account, reg registration.Registration) error {
	path := "/events/" + url.PathEscape(ev.ExternalEventID) + "/enrollments"
	resp, err := w.do(ctx, http.MethodPost, path, enrollmentRequest{
		AccountID:      acc.ExternalAccountID,
		RegistrationID: reg.ID,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		w.log.DebugContext(ctx, "webhook enrollment exists",
			slog.String("external_event_id", ev.ExternalEventID),
			slog.String("account_id", acc.ExternalAccountID),
		)
		return nil
	}
	if resp.StatusCode >= 300 {
		return unexpectedStatus(resp)
	}
	return nil
}

func (w *WebhookIntegration) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("webhook: encode body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.log.ErrorContext(ctx, "webhook request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("webhook: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func unexpectedStatus(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("webhook: %s %s: unexpected status %d: %s",
		resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
