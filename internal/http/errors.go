package http

import (
	"errors"
	"net/http"

	"cassa/internal/core"
	"cassa/internal/log"
)

// statusFor maps a domain or request error to an HTTP status. ok is false
// for infrastructure faults.
func statusFor(err error) (status int, ok bool) {
	if isRequestError(err) {
		return http.StatusBadRequest, true
	}
	if !core.IsDomainError(err) {
		return http.StatusInternalServerError, false
	}

	var stockErr *core.InsufficientStockError
	switch {
	case core.IsNotFound(err), errors.Is(err, core.ErrNothingToExport):
		return http.StatusNotFound, true
	case errors.As(err, &stockErr),
		errors.Is(err, core.ErrDuplicateName),
		errors.Is(err, core.ErrProductInCart),
		errors.Is(err, core.ErrEmptyCart):
		return http.StatusConflict, true
	}
	return http.StatusUnprocessableEntity, true
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return log.ErrorTypeValidation
	case http.StatusNotFound:
		return log.ErrorTypeNotFound
	case http.StatusConflict:
		return log.ErrorTypeConflict
	}
	return log.ErrorTypeInternal
}

// writeError answers a failed mutation or listing with the failure envelope.
// Infrastructure faults are logged and reported as a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, component, op string, err error) {
	status, ok := statusFor(err)
	if !ok {
		s.events.LogError(r.Context(), "Request failed", err, component, op,
			log.NewFields().WithErrorType(log.ErrorTypeInternal))
		InternalServerError().Write(w)
		return
	}

	log.FromContext(r.Context()).DebugContext(r.Context(), "Request rejected",
		log.FieldError, err.Error(),
		log.FieldErrorType, errorType(status),
		log.FieldOperation, op)

	resp := ErrorResponse(status, err.Error())
	var stockErr *core.InsufficientStockError
	if errors.As(err, &stockErr) {
		resp.Field("product_id", stockErr.ProductID).
			Field("requested", stockErr.Requested).
			Field("available", stockErr.Available)
	}
	resp.Write(w)
}

// writeReadError answers a failed single-entity read. Unknown entities get
// {"error": "..."} so clients can tell them apart from an empty list.
func (s *Server) writeReadError(w http.ResponseWriter, r *http.Request, component string, err error) {
	if core.IsNotFound(err) {
		EntityNotFound(err.Error()).Write(w)
		return
	}
	s.writeError(w, r, component, log.OpRead, err)
}
