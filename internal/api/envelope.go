package api

import (
	"encoding/json"
	"math"

	"github.com/jofan-cah/logistik-core/internal/core/apperror"
)

// Pagination is the normalized pagination block.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// Page is a normalized page of a remote collection. List endpoints answer
// either a flat {success, data} envelope or a paginated one; the client
// always normalizes to this shape.
type Page[T any] struct {
	Items      []T
	Pagination Pagination
}

// envelope covers every response shape the backend produces. Which fields
// are set depends on the endpoint; Data stays raw until the caller knows
// the target type.
type envelope struct {
	Success    *bool           `json:"success,omitempty"`
	Message    string          `json:"message,omitempty"`
	Code       string          `json:"code,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Details    map[string]any  `json:"details,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}

// domainError converts a success:false envelope into an AppError.
// A 2xx response with success:false is still a domain error.
func (e *envelope) domainError(httpStatus int) *apperror.AppError {
	code := e.Code
	if code == "" {
		code = apperror.CodeBusinessRule
	}
	msg := e.Message
	if msg == "" {
		msg = "operation rejected by backend"
	}
	return &apperror.AppError{
		Code:       code,
		Message:    msg,
		Details:    e.Details,
		HTTPStatus: httpStatus,
	}
}

// normalizePage builds a Page from a decoded envelope. Flat list responses
// carry no pagination block and become a single page holding everything.
func normalizePage[T any](env *envelope, items []T, requestedPage, requestedLimit int) Page[T] {
	if env.Pagination != nil {
		return Page[T]{Items: items, Pagination: *env.Pagination}
	}
	limit := requestedLimit
	if limit <= 0 {
		limit = len(items)
		if limit == 0 {
			limit = 1
		}
	}
	total := int64(len(items))
	return Page[T]{
		Items: items,
		Pagination: Pagination{
			Page:       maxInt(requestedPage, 1),
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages(total, limit),
		},
	}
}

// totalPages computes ceil(total / limit), minimum 1 page.
func totalPages(total int64, limit int) int {
	if limit <= 0 {
		return 1
	}
	pages := int(math.Ceil(float64(total) / float64(limit)))
	if pages < 1 {
		pages = 1
	}
	return pages
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
