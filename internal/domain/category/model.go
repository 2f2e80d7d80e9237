// Package category provides the stock-tracked category model and the
// append-only stock ledger that is the only sanctioned way to change a
// category's current stock.
package category

import (
	"net/url"
	"strconv"
	"time"

	"github.com/jofan-cah/logistik-core/internal/core/apperror"
	"github.com/jofan-cah/logistik-core/internal/core/id"
)

// Category represents a stock-keeping unit type. Some categories (licenses,
// services) are non-physical and never track quantity; for those HasStock is
// false and the stock levels are meaningless.
type Category struct {
	ID   int64  `json:"id"`
	Code string `json:"code"` // 3-character unique short code
	Name string `json:"name"`

	HasStock     bool   `json:"has_stock"`
	CurrentStock int    `json:"current_stock"`
	MinStock     int    `json:"min_stock"`
	MaxStock     int    `json:"max_stock"`
	ReorderPoint int    `json:"reorder_point"`
	Unit         string `json:"unit"`

	// IsLowStock is derived from CurrentStock and ReorderPoint.
	// Never assigned independently; see RecomputeLowStock.
	IsLowStock bool `json:"is_low_stock"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the stable identifier used by resource stores.
func (c Category) Key() int64 { return c.ID }

// LowStock reports whether current stock is at or below the reorder point.
func LowStock(c *Category) bool {
	return c.CurrentStock <= c.ReorderPoint
}

// RecomputeLowStock re-derives IsLowStock from the current values.
// Called after every adjustment and every receipt-driven increment.
func RecomputeLowStock(c *Category) {
	c.IsLowStock = LowStock(c)
}

// --- Movements ---

// MovementType defines the direction of a stock movement.
type MovementType string

const (
	MovementIn  MovementType = "in"
	MovementOut MovementType = "out"
)

// ReferenceType records what caused a movement.
type ReferenceType string

const (
	RefManualAdjustment ReferenceType = "manual_adjustment"
	RefPurchaseReceipt  ReferenceType = "purchase_receipt"
	RefTransaction      ReferenceType = "transaction"
)

// Reference ties a movement back to the operation that produced it.
type Reference struct {
	Type ReferenceType `json:"reference_type"`
	ID   string        `json:"reference_id"`
	Note string        `json:"note,omitempty"`
}

// ManualReference builds a reference for a user-initiated adjustment.
func ManualReference(note string) Reference {
	return Reference{Type: RefManualAdjustment, Note: note}
}

// StockMovement is one append-only ledger entry. Movements are immutable;
// a correction is a new movement, never an edit or delete.
type StockMovement struct {
	LineID     id.ID `json:"line_id"`
	CategoryID int64 `json:"category_id"`

	MovementType MovementType `json:"movement_type"`
	Quantity     int          `json:"quantity"` // always positive, direction in MovementType

	ReferenceType ReferenceType `json:"reference_type"`
	ReferenceID   string        `json:"reference_id"`
	Note          string        `json:"note,omitempty"`

	BeforeStock int `json:"before_stock"`
	AfterStock  int `json:"after_stock"`

	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// SignedQuantity returns the quantity with direction applied.
func (m *StockMovement) SignedQuantity() int {
	if m.MovementType == MovementOut {
		return -m.Quantity
	}
	return m.Quantity
}

// --- Inputs ---

// CreateInput carries the fields a caller may set when creating a category.
type CreateInput struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	HasStock     bool   `json:"has_stock"`
	MinStock     int    `json:"min_stock"`
	MaxStock     int    `json:"max_stock"`
	ReorderPoint int    `json:"reorder_point"`
	Unit         string `json:"unit,omitempty"`
}

// Validate checks the input before any network call. Note that current
// stock is absent on purpose: it is only ever set through the ledger.
func (in CreateInput) Validate() error {
	var fields []apperror.FieldError
	if len(in.Code) != 3 {
		fields = append(fields, apperror.FieldError{Field: "code", Message: "must be exactly 3 characters"})
	}
	if in.Name == "" {
		fields = append(fields, apperror.FieldError{Field: "name", Message: "is required"})
	}
	if in.MinStock < 0 || in.MaxStock < 0 || in.ReorderPoint < 0 {
		fields = append(fields, apperror.FieldError{Field: "stock_levels", Message: "must not be negative"})
	}
	if in.MaxStock > 0 && in.MinStock > in.MaxStock {
		fields = append(fields, apperror.FieldError{Field: "min_stock", Message: "must not exceed max_stock"})
	}
	if len(fields) > 0 {
		return apperror.NewFieldValidation(fields)
	}
	return nil
}

// UpdateInput carries a partial category update. Nil fields are left
// untouched by the server. CurrentStock is intentionally not patchable.
type UpdateInput struct {
	Code         *string `json:"code,omitempty"`
	Name         *string `json:"name,omitempty"`
	HasStock     *bool   `json:"has_stock,omitempty"`
	MinStock     *int    `json:"min_stock,omitempty"`
	MaxStock     *int    `json:"max_stock,omitempty"`
	ReorderPoint *int    `json:"reorder_point,omitempty"`
	Unit         *string `json:"unit,omitempty"`
}

// Validate checks the patch before any network call.
func (in UpdateInput) Validate() error {
	var fields []apperror.FieldError
	if in.Code != nil && len(*in.Code) != 3 {
		fields = append(fields, apperror.FieldError{Field: "code", Message: "must be exactly 3 characters"})
	}
	if in.Name != nil && *in.Name == "" {
		fields = append(fields, apperror.FieldError{Field: "name", Message: "must not be empty"})
	}
	if len(fields) > 0 {
		return apperror.NewFieldValidation(fields)
	}
	return nil
}

// Query is the closed filter set for category listings.
type Query struct {
	Search   string
	HasStock *bool
	LowStock *bool
}

// Params serializes the query for the transport layer.
func (q Query) Params() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.HasStock != nil {
		v.Set("has_stock", strconv.FormatBool(*q.HasStock))
	}
	if q.LowStock != nil {
		v.Set("low_stock", strconv.FormatBool(*q.LowStock))
	}
	return v
}
