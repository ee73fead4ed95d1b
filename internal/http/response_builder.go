// Package http provides the JSON API server and its handlers.
//
// This file implements the builder used by every handler to write JSON
// responses, so mutation envelopes and error bodies share one shape.

package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
)

const contentTypeJSON = "application/json; charset=utf-8"

// JSONResponseBuilder provides a fluent API for building JSON responses.
// It writes either an envelope built from fields or an arbitrary payload.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	fields     map[string]any
	payload    any
	hasPayload bool
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
		fields:     make(map[string]any),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Success marks the envelope as successful with a human readable message.
func (b *JSONResponseBuilder) Success(message string) *JSONResponseBuilder {
	b.fields["success"] = true
	b.fields["message"] = message
	return b
}

// Failure marks the envelope as failed with a human readable message.
func (b *JSONResponseBuilder) Failure(message string) *JSONResponseBuilder {
	b.fields["success"] = false
	b.fields["message"] = message
	return b
}

// Field adds a key to the envelope, e.g. product_id.
func (b *JSONResponseBuilder) Field(key string, value any) *JSONResponseBuilder {
	b.fields[key] = value
	return b
}

// Payload replaces the envelope with v.
func (b *JSONResponseBuilder) Payload(v any) *JSONResponseBuilder {
	b.payload = v
	b.hasPayload = true
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	var body any = b.fields
	if b.hasPayload {
		body = b.payload
	}

	// Encode first so a marshalling failure can still produce a clean 500.
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		slog.Error("Failed to encode JSON response", "error", err, "status_code", b.statusCode)
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"internal error"}` + "\n"))
		return
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(buf.Bytes())
}

// ErrorResponse creates a failed envelope with the given status.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Failure(message)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// ConflictError creates a 409 Conflict error response.
func ConflictError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}

// InternalServerError creates a 500 response that never leaks the cause.
func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal error")
}

// NotFoundError creates a 404 envelope for mutations on unknown entities.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// EntityNotFound creates the 404 body used by single-entity reads:
// {"error": "..."}.
func EntityNotFound(message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(http.StatusNotFound).Payload(map[string]string{"error": message})
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later")
}

// writeJSON writes v with a 200 status.
func writeJSON(w http.ResponseWriter, v any) {
	NewJSONResponse().Payload(v).Write(w)
}
