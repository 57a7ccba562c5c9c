package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/losol/eventuras-sub008/internal/domain/event"
	"github.com/losol/eventuras-sub008/internal/domain/external"
	"github.com/losol/eventuras-sub008/internal/http/handlers"
)

func externalEventsRouter(store *fakeExternalEvents, ev *fakeEvents) *gin.Engine {
	h := handlers.NewExternalEventsHandler(store, ev, &fakeSync{names: []string{"moodle"}})
	r := gin.New()
	r.POST("/admin/events/:id/external-events", h.Create)
	r.GET("/admin/events/:id/external-events", h.List)
	r.DELETE("/admin/external-events/:id", h.Delete)
	return r
}

func TestCreateExternalEventHandler(t *testing.T) {
	eventID := newUUID()

	tests := []struct {
		name       string
		body       string
		createFn   func(ctx context.Context, ev external.Event) error
		getFn      func(ctx context.Context, id string) (event.Event, error)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			body:       `{"providerName":"moodle","externalEventId":"course-42"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing fields",
			body:       `{"providerName":"moodle"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "unknown provider",
			body:       `{"providerName":"canvas","externalEventId":"c-1"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name: "duplicate mapping",
			body: `{"providerName":"moodle","externalEventId":"course-42"}`,
			createFn: func(ctx context.Context, ev external.Event) error {
				return external.ErrDuplicateEvent
			},
			wantStatus: http.StatusConflict,
			wantCode:   "DuplicateExternalEvent",
		},
		{
			name: "event not found",
			body: `{"providerName":"moodle","externalEventId":"course-42"}`,
			getFn: func(ctx context.Context, id string) (event.Event, error) {
				return event.Event{}, event.ErrNotFound
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := externalEventsRouter(&fakeExternalEvents{createFn: tt.createFn}, &fakeEvents{getFn: tt.getFn})

			w := doRequest(r, http.MethodPost, "/admin/events/"+eventID+"/external-events", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantCode != "" {
				if got := decodeError(t, w).Error.Code; got != tt.wantCode {
					t.Fatalf("code = %q, want %q", got, tt.wantCode)
				}
				return
			}

			var ev external.Event
			if err := json.Unmarshal(w.Body.Bytes(), &ev); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if ev.EventID != eventID || ev.ServiceName != "moodle" || ev.ExternalEventID != "course-42" || ev.ID == "" {
				t.Fatalf("unexpected event: %+v", ev)
			}
		})
	}
}

func TestListExternalEventsHandler(t *testing.T) {
	eventID := newUUID()
	store := &fakeExternalEvents{listFn: func(ctx context.Context, id string) ([]external.Event, error) {
		return []external.Event{external.NewEvent(id, "moodle", "course-1")}, nil
	}}
	r := externalEventsRouter(store, &fakeEvents{})

	w := doRequest(r, http.MethodGet, "/admin/events/"+eventID+"/external-events", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("ETag") == "" {
		t.Fatal("missing ETag")
	}

	var body struct {
		Count int              `json:"count"`
		Items []external.Event `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Items[0].EventID != eventID {
		t.Fatalf("body = %+v", body)
	}
}

func TestDeleteExternalEventHandler(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		deleteFn   func(ctx context.Context, id string) error
		wantStatus int
	}{
		{name: "deleted", id: newUUID(), wantStatus: http.StatusNoContent},
		{name: "invalid id", id: "x", wantStatus: http.StatusBadRequest},
		{
			name: "missing",
			id:   newUUID(),
			deleteFn: func(ctx context.Context, id string) error {
				return external.ErrEventNotFound
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := externalEventsRouter(&fakeExternalEvents{deleteFn: tt.deleteFn}, &fakeEvents{})

			w := doRequest(r, http.MethodDelete, "/admin/external-events/"+tt.id, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
