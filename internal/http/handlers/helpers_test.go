package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/external"
	"github.com/losol/eventuras-sub008/internal/domain/job"
	"github.com/losol/eventuras-sub008/internal/domain/notification"
	"github.com/losol/eventuras-sub008/internal/externalsync"
	"github.com/losol/eventuras-sub008/internal/notifications"
	"github.com/losol/eventuras-sub008/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newUUID() string {
	return uuid.NewString()
}

type errorResponse struct {
	Error struct {
		Code      string          `json:"code"`
		Message   string          `json:"message"`
		RequestID string          `json:"requestId"`
		Details   json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v body=%s", err, w.Body.String())
	}
	return resp
}

func doRequest(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// Fakes with function fields; a nil func returns zero values.

type fakeSync struct {
	names  []string
	syncFn func(ctx context.Context, eventID, provider string) ([]*externalsync.Result, error)
}

func (f *fakeSync) SyncEvent(ctx context.Context, eventID, provider string) ([]*externalsync.Result, error) {
	if f.syncFn != nil {
		return f.syncFn(ctx, eventID, provider)
	}
	return nil, nil
}

func (f *fakeSync) ProviderNames() []string { return f.names }

func (f *fakeSync) HasProvider(name string) bool {
	for _, n := range f.names {
		if n == name {
			return true
		}
	}
	return false
}

type fakeEvents struct {
	getFn func(ctx context.Context, id string) (event.Event, error)
}

func (f *fakeEvents) GetByID(ctx context.Context, id string) (event.Event, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return event.Event{ID: id}, nil
}

type fakeJobs struct {
	createFn func(ctx context.Context, req job.CreateRequest) (job.Job, error)
}

func (f *fakeJobs) Create(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return job.New(req), nil
}

type fakeExternalEvents struct {
	createFn func(ctx context.Context, ev external.Event) error
	listFn   func(ctx context.Context, eventID string) ([]external.Event, error)
	deleteFn func(ctx context.Context, id string) error
}

func (f *fakeExternalEvents) Create(ctx context.Context, ev external.Event) error {
	if f.createFn != nil {
		return f.createFn(ctx, ev)
	}
	return nil
}

func (f *fakeExternalEvents) ListByEvent(ctx context.Context, eventID string) ([]external.Event, error) {
	if f.listFn != nil {
		return f.listFn(ctx, eventID)
	}
	return nil, nil
}

func (f *fakeExternalEvents) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

type fakeNotificationCreator struct {
	createFn func(ctx context.Context, req notifications.Request) (notification.Notification, error)
}

func (f *fakeNotificationCreator) CreateAndSend(ctx context.Context, req notifications.Request) (notification.Notification, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return notification.New(req.Kind, req.Subject, req.Body), nil
}

type fakeNotificationReader struct {
	getFn        func(ctx context.Context, id string) (notification.Notification, error)
	listFn       func(ctx context.Context, f notification.ListFilter, limit int, after utils.Cursor) ([]notification.Notification, *string, bool, error)
	recipientsFn func(ctx context.Context, id string) ([]notification.Recipient, error)
}

func (f *fakeNotificationReader) GetByID(ctx context.Context, id string) (notification.Notification, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return notification.Notification{ID: id}, nil
}

func (f *fakeNotificationReader) ListCursor(ctx context.Context, filter notification.ListFilter, limit int, after utils.Cursor) ([]notification.Notification, *string, bool, error) {
	if f.listFn != nil {
		return f.listFn(ctx, filter, limit, after)
	}
	return []notification.Notification{}, nil, false, nil
}

func (f *fakeNotificationReader) ListRecipients(ctx context.Context, id string) ([]notification.Recipient, error) {
	if f.recipientsFn != nil {
		return f.recipientsFn(ctx, id)
	}
	return []notification.Recipient{}, nil
}

type fakeAdminJobs struct {
	listFn      func(ctx context.Context, status *string, limit int, after utils.Cursor) ([]job.Job, *string, bool, error)
	getFn       func(ctx context.Context, id string) (job.Job, error)
	retryFn     func(ctx context.Context, id string) error
	retryManyFn func(ctx context.Context, limit int) (int64, error)
}

func (f *fakeAdminJobs) ListCursor(ctx context.Context, status *string, limit int, after utils.Cursor) ([]job.Job, *string, bool, error) {
	if f.listFn != nil {
		return f.listFn(ctx, status, limit, after)
	}
	return []job.Job{}, nil, false, nil
}

func (f *fakeAdminJobs) GetByID(ctx context.Context, id string) (job.Job, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return job.Job{ID: id}, nil
}

func (f *fakeAdminJobs) Retry(ctx context.Context, id string) error {
	if f.retryFn != nil {
		return f.retryFn(ctx, id)
	}
	return nil
}

func (f *fakeAdminJobs) RetryManyFailed(ctx context.Context, limit int) (int64, error) {
	if f.retryManyFn != nil {
		return f.retryManyFn(ctx, limit)
	}
	return 0, nil
}
