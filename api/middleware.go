package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/barstock/inventory"
)

// =============================================================================
// REQUEST LOGGING
// =============================================================================

type loggerKey struct{}

// RequestLogger logs one entry per request. 5xx log at error, 4xx at warn,
// everything else at info. Handlers reach the same entry via requestLog.
func RequestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), loggerKey{}, entry)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry = entry.WithFields(logrus.Fields{
				"status":     status,
				"latency":    time.Since(start).String(),
				"bytes":      ww.BytesWritten(),
				"client_ip":  r.RemoteAddr,
				"user_agent": r.UserAgent(),
			})
			switch {
			case status >= 500:
				entry.Error("request processed")
			case status >= 400:
				entry.Warn("request processed")
			default:
				entry.Info("request processed")
			}
		})
	}
}

func requestLog(r *http.Request) logrus.FieldLogger {
	if entry, ok := r.Context().Value(loggerKey{}).(logrus.FieldLogger); ok {
		return entry
	}
	return logrus.StandardLogger()
}

// =============================================================================
// RESPONSES
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps inventory errors to HTTP statuses:
//
//	ValidationError, body shape          400
//	AccessDeniedError                    403
//	NotFoundError                        404
//	InsufficientStock, NotPending,
//	AlreadyReconciled, concurrent write  409
//	IncompleteReconciliationError        422
//	UpstreamError                        502
//	anything else                        500
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve         *inventory.ValidationError
		incomplete *inventory.IncompleteReconciliationError
		fieldErrs  validator.ValidationErrors
	)
	switch {
	case errors.As(err, &fieldErrs):
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			ns := fe.Namespace()
			if _, rest, ok := strings.Cut(ns, "."); ok {
				ns = rest
			}
			fields[ns] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Fields: fields})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.As(err, &incomplete):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: incomplete.Error(), Missing: incomplete.Missing})
	case errors.Is(err, inventory.ErrAccessDenied):
		writeError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, inventory.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrNotPending),
		errors.Is(err, inventory.ErrAlreadyReconciled),
		errors.Is(err, inventory.ErrConcurrentModification):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, inventory.ErrUpstream):
		requestLog(r).WithError(err).Error("upstream failure")
		writeError(w, http.StatusBadGateway, "upstream service unavailable, retry", err)
	default:
		requestLog(r).WithError(err).Error("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}
