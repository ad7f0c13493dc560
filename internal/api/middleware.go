package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/seedhypermedia/wxr-importer/internal/http/response"
)

// EnvelopeVersion is sent as "v" in every response body.
const EnvelopeVersion = response.Version

// APIEnvelope wraps successful responses and plain errors.
type APIEnvelope = response.Envelope

// APIErrorEnvelope wraps coded errors.
type APIErrorEnvelope = response.ErrorEnvelope

// EnvelopeTransformer is a huma transformer that wraps every response body
// in the envelope that plain handlers write through the response package.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	if status != "" && status[0] != '4' && status[0] != '5' {
		return APIEnvelope{Version: EnvelopeVersion, Success: true, Data: v}, nil
	}

	var apiErr *APIError
	if err, ok := v.(error); ok && errors.As(err, &apiErr) && apiErr.Code != "" {
		return APIErrorEnvelope{
			Version: EnvelopeVersion,
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		}, nil
	}
	if err, ok := v.(error); ok {
		return APIEnvelope{Version: EnvelopeVersion, Error: err.Error()}, nil
	}
	return APIEnvelope{Version: EnvelopeVersion, Data: v}, nil
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				level := slog.LevelInfo
				if status >= http.StatusInternalServerError {
					level = slog.LevelError
				}
				logger.LogAttrs(r.Context(), level, "http request",
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", status),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// requireToken rejects requests without a valid API token. It guards plain
// handlers such as the event stream. Browsers cannot set headers on an
// EventSource, so the token may also arrive as the access_token query parameter.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			token = strings.TrimSpace(r.URL.Query().Get("access_token"))
		}
		if token == "" {
			response.Unauthorized(w, "missing API token", s.logger)
			return
		}

		claims, err := s.services.Tokens.VerifyAPIToken(token)
		if err != nil {
			response.Unauthorized(w, "invalid or expired token", s.logger)
			return
		}

		next.ServeHTTP(w, r.WithContext(setOperator(r.Context(), claims.Operator)))
	})
}
