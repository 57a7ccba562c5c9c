package middlewares

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		ctx.Writer.Header().Set(RequestIDHeader, id)
		ctx.Set(CtxRequestID, id)

		ctx.Next()
	}
}

func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx *gin.Context) {
		start := time.Now()

		route := ctx.FullPath()
		if route == "" {
			route = ctx.Request.URL.Path // 404s have no route
		}
		method := ctx.Request.Method

		ctx.Next()

		attrs := []any{
			"method", method,
			"route", route,
			"status", ctx.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", ctx.GetString(CtxRequestID),
		}
		if jobID := ctx.GetString(CtxJobID); jobID != "" {
			attrs = append(attrs, "job_id", jobID)
		}
		if userID, ok := UserIDFromContext(ctx); ok && userID != "" {
			attrs = append(attrs, "user_id", userID)
		}

		if ctx.Writer.Status() >= 500 {
			log.ErrorContext(ctx.Request.Context(), "http_request", attrs...)
			return
		}
		log.InfoContext(ctx.Request.Context(), "http_request", attrs...)
	}
}
