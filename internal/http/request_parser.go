// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating HTTP request data:
// path identifiers, query parameters and JSON bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cassa/internal/core"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// requestError is a malformed request. It maps to 400.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func isRequestError(err error) bool {
	var re *requestError
	return errors.As(err, &re)
}

// parseID reads a positive integer path value.
func parseID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

// parseIntQuery reads an integer query parameter, returning def when it is
// absent. Range checks are left to the services.
func parseIntQuery(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("invalid %s %q: must be an integer", key, v)
	}
	return n, nil
}

// parseDays reads the trailing window length.
func parseDays(r *http.Request, def int) (int, error) {
	return parseIntQuery(r, "days", def)
}

// parseDate accepts YYYY-MM-DD or RFC 3339 timestamps. Empty input yields
// the zero time so the services apply their default.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: "date", Message: "must be YYYY-MM-DD or RFC 3339"}
	}
	return t.UTC(), nil
}

// decodeJSON decodes a single JSON object from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, strict bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, core.ErrInvalidAmount):
			return err
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		case errors.As(err, &maxErr):
			return badRequest("request body too large")
		case errors.As(err, &syntaxErr):
			return badRequest("malformed JSON at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return badRequest("invalid value for field %q", typeErr.Field)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return badRequest("unsupported field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
		default:
			return badRequest("malformed JSON: %v", err)
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

// sanitizeInput removes potentially dangerous characters and trims whitespace
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		// Remove control characters except tab, newline, carriage return
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}

type createProductRequest struct {
	Name        string      `json:"name"`
	Price       *core.Money `json:"price"`
	Quantity    int         `json:"quantity"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
}

func (req createProductRequest) toDomain() (core.NewProduct, error) {
	if req.Price == nil {
		return core.NewProduct{}, &core.ValidationError{Field: "price", Message: "is required"}
	}
	return core.NewProduct{
		Name:        sanitizeInput(req.Name),
		Price:       *req.Price,
		Quantity:    req.Quantity,
		Category:    sanitizeInput(req.Category),
		Description: sanitizeInput(req.Description),
	}, nil
}

// updateProductRequest is decoded strictly: only these fields are accepted.
type updateProductRequest struct {
	Name        *string     `json:"name"`
	Price       *core.Money `json:"price"`
	Quantity    *int        `json:"quantity"`
	Category    *string     `json:"category"`
	Description *string     `json:"description"`
}

func (req updateProductRequest) toDomain() core.ProductUpdate {
	return core.ProductUpdate{
		Name:        sanitizePtr(req.Name),
		Price:       req.Price,
		Quantity:    req.Quantity,
		Category:    sanitizePtr(req.Category),
		Description: sanitizePtr(req.Description),
	}
}

type createExpenseRequest struct {
	Category      string      `json:"category"`
	Amount        *core.Money `json:"amount"`
	Description   string      `json:"description"`
	PaymentMethod string      `json:"payment_method"`
	Date          string      `json:"date"`
}

func (req createExpenseRequest) toDomain() (core.NewExpense, error) {
	if req.Amount == nil {
		return core.NewExpense{}, &core.ValidationError{Field: "amount", Message: "is required"}
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.NewExpense{}, err
	}
	return core.NewExpense{
		Category:      sanitizeInput(req.Category),
		Amount:        *req.Amount,
		Description:   sanitizeInput(req.Description),
		PaymentMethod: sanitizeInput(req.PaymentMethod),
		Date:          date,
	}, nil
}

type createIncomeRequest struct {
	Source      string      `json:"source"`
	Amount      *core.Money `json:"amount"`
	Description string      `json:"description"`
	IncomeType  string      `json:"income_type"`
	Date        string      `json:"date"`
}

func (req createIncomeRequest) toDomain() (core.NewIncome, error) {
	if req.Amount == nil {
		return core.NewIncome{}, &core.ValidationError{Field: "amount", Message: "is required"}
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.NewIncome{}, err
	}
	return core.NewIncome{
		Source:      sanitizeInput(req.Source),
		Amount:      *req.Amount,
		Description: sanitizeInput(req.Description),
		IncomeType:  sanitizeInput(req.IncomeType),
		Date:        date,
	}, nil
}

type addToCartRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  *int  `json:"quantity"`
}

// quantity defaults to 1 when omitted.
func (req addToCartRequest) quantity() int {
	if req.Quantity == nil {
		return 1
	}
	return *req.Quantity
}

type updateCartLineRequest struct {
	Quantity int `json:"quantity"`
}
