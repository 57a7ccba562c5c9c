package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/losol/eventuras-sub008/internal/http/handlers"
)

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		ping       func(ctx context.Context) error
		wantStatus int
	}{
		{name: "no readiness check", wantStatus: http.StatusOK},
		{name: "db up", ping: func(ctx context.Context) error { return nil }, wantStatus: http.StatusOK},
		{name: "db down", ping: func(ctx context.Context) error { return errors.New("dial tcp: refused") }, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewHealthHandler(tt.ping)
			r := gin.New()
			r.GET("/readyz", h.Readyz)
			r.GET("/healthz", h.Healthz)

			if w := doRequest(r, http.MethodGet, "/readyz", ""); w.Code != tt.wantStatus {
				t.Fatalf("readyz = %d, want %d", w.Code, tt.wantStatus)
			}
			if w := doRequest(r, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
				t.Fatalf("healthz = %d", w.Code)
			}
		})
	}
}
