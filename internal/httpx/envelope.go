package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5/middleware"
)

// Envelope is the public error body returned by every endpoint:
//
//	{ "success": false, "error": "...", "details": {...} }
//
// details is only populated for structured validation failures. Code and
// requestId are extensions that help support correlate a report with logs.
type Envelope struct {
	Status    int    `json:"-"`
	Success   bool   `json:"success"`
	Message   string `json:"error"`
	Details   any    `json:"details,omitempty"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Error implements the error interface.
func (e *Envelope) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.GetStatus())
}

// GetStatus implements huma.StatusError to set the HTTP response status.
func (e *Envelope) GetStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// DomainProblem is a minimal interface for domain errors so the formatter
// can build envelopes without enumerating all domain error types.
//
// Any domain error type across modules can satisfy this.
type DomainProblem interface {
	ProblemCode() string
	ProblemStatus() int
	ProblemTitle() string
	ProblemDetail() string
	ProblemTypeURI() string
	ProblemContext() any
}

// ToEnvelope converts any error into an Envelope.
//
// Behavior:
//   - If err already implements huma.StatusError it is returned as-is.
//   - If err implements DomainProblem, it is formatted into an Envelope. Context is only
//     exposed for 400 responses (validation field maps).
//   - Otherwise, returns a generic internal envelope; the cause stays in the server logs.
func ToEnvelope(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}

	var dp DomainProblem
	if errors.As(err, &dp) {
		status := dp.ProblemStatus()
		env := &Envelope{
			Status:    status,
			Message:   defaultDetail(dp.ProblemDetail(), status),
			Code:      dp.ProblemCode(),
			RequestID: middleware.GetReqID(ctx),
		}
		if status == http.StatusBadRequest {
			env.Details = dp.ProblemContext()
		}
		return env
	}

	return InternalEnvelope(ctx, "")
}

// InternalEnvelope builds a generic 500 envelope. If detail is empty,
// a safe user-friendly message will be used.
func InternalEnvelope(ctx context.Context, detail string) *Envelope {
	if detail == "" {
		detail = "Something went wrong. Please try again later."
	}
	return &Envelope{
		Status:    http.StatusInternalServerError,
		Message:   detail,
		Code:      "ErrInternal",
		RequestID: middleware.GetReqID(ctx),
	}
}

// InstallErrorFormat replaces huma's default RFC 7807 errors so request parsing and
// schema failures use the same envelope as domain errors. Schema failures are
// reported as 400 rather than 422.
func InstallErrorFormat() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		env := &Envelope{Status: status, Message: msg}
		if status == http.StatusBadRequest && len(errs) > 0 {
			env.Message = "Invalid request"
			env.Code = "ErrValidation"
			env.Details = map[string]any{"fields": fieldsFromDetails(errs)}
		}
		return env
	}
}

func fieldsFromDetails(errs []error) map[string][]string {
	fields := make(map[string][]string)
	for _, err := range errs {
		if err == nil {
			continue
		}
		name := "body"
		msg := err.Error()
		var d *huma.ErrorDetail
		if errors.As(err, &d) {
			msg = d.Message
			if d.Location != "" {
				name = strings.TrimPrefix(strings.TrimPrefix(d.Location, "body."), "body")
				if name == "" {
					name = "body"
				}
			}
		}
		fields[name] = append(fields[name], msg)
	}
	return fields
}

func defaultDetail(detail string, status int) string {
	if detail != "" {
		return detail
	}
	switch status {
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "Not found"
	case http.StatusConflict:
		return "Conflict"
	case http.StatusBadRequest:
		return "Bad request"
	default:
		return http.StatusText(status)
	}
}
