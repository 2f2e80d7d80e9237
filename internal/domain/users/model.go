// Package users provides the back-office user model for the users resource
// store. Authentication and session storage live outside the core.
package users

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jofan-cah/logistik-core/internal/core/apperror"
)

// User is one back-office account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the stable identifier used by resource stores.
func (u User) Key() int64 { return u.ID }

// CreateInput carries the fields for a new user.
type CreateInput struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Validate checks the input before any network call.
func (in CreateInput) Validate() error {
	var fields []apperror.FieldError
	if strings.TrimSpace(in.Username) == "" {
		fields = append(fields, apperror.FieldError{Field: "username", Message: "is required"})
	}
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		fields = append(fields, apperror.FieldError{Field: "email", Message: "is not a valid address"})
	}
	if strings.TrimSpace(in.Role) == "" {
		fields = append(fields, apperror.FieldError{Field: "role", Message: "is required"})
	}
	if len(fields) > 0 {
		return apperror.NewFieldValidation(fields)
	}
	return nil
}

// UpdateInput carries a partial user update.
type UpdateInput struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Role     *string `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// Validate checks the patch before any network call.
func (in UpdateInput) Validate() error {
	if in.Email != nil && *in.Email != "" && !strings.Contains(*in.Email, "@") {
		return apperror.NewFieldValidation([]apperror.FieldError{
			{Field: "email", Message: "is not a valid address"},
		})
	}
	return nil
}

// Query is the closed filter set for user listings.
type Query struct {
	Search   string
	Role     string
	IsActive *bool
}

// Params serializes the query for the transport layer.
func (q Query) Params() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Role != "" {
		v.Set("role", q.Role)
	}
	if q.IsActive != nil {
		v.Set("is_active", strconv.FormatBool(*q.IsActive))
	}
	return v
}
