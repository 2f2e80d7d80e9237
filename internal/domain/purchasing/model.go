// Package purchasing provides purchase receipts and the intake pipeline
// that turns a batch of receipt line items into generated product units,
// stock increments and an audit trail of movements.
package purchasing

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jofan-cah/logistik-core/internal/core/apperror"
	"github.com/jofan-cah/logistik-core/internal/core/id"
	"github.com/jofan-cah/logistik-core/internal/core/types"
)

// ReceiptStatus is the lifecycle state of a purchase receipt.
type ReceiptStatus string

const (
	StatusPending   ReceiptStatus = "pending"
	StatusCompleted ReceiptStatus = "completed"
	StatusCancelled ReceiptStatus = "cancelled"
)

// CanTransition reports whether a status change is allowed.
// Pending can complete or cancel; completed can still cancel (cancellation
// reverses stock, it is not an edit); cancelled is terminal.
func (s ReceiptStatus) CanTransition(to ReceiptStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusCompleted || to == StatusCancelled
	case StatusCompleted:
		return to == StatusCancelled
	default:
		return false
	}
}

// Editable reports whether the receipt header and items may still change.
func (s ReceiptStatus) Editable() bool {
	return s == StatusPending
}

// PurchaseReceipt is a recorded intake event from a supplier.
type PurchaseReceipt struct {
	ID            int64         `json:"id"`
	ReceiptNumber string        `json:"receipt_number"`
	PONumber      string        `json:"po_number"`
	SupplierID    int64         `json:"supplier_id"`
	ReceiptDate   time.Time     `json:"receipt_date"`
	Status        ReceiptStatus `json:"status"`
	TotalAmount   types.Money   `json:"total_amount"` // derived, sum of item totals
	Notes         string        `json:"notes,omitempty"`

	Items []ReceiptItem `json:"items"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the stable identifier used by resource stores.
func (r PurchaseReceipt) Key() int64 { return r.ID }

// ReceiptItem is one category/quantity/price line within a receipt.
type ReceiptItem struct {
	ID         int64       `json:"id"`
	CategoryID int64       `json:"category_id"`
	Quantity   int         `json:"quantity"`
	UnitPrice  types.Money `json:"unit_price"`
	TotalPrice types.Money `json:"total_price"` // quantity * unit_price

	SerialNumber string `json:"serial_number,omitempty"`
	Condition    string `json:"condition,omitempty"`

	// GenerateProducts requests one unit-level product record per quantity.
	GenerateProducts bool `json:"generate_products"`
}

// Product is one generated unit-level record. The pipeline owns it only at
// creation time; afterwards it belongs to downstream asset tracking.
type Product struct {
	ProductID  string `json:"product_id"`
	CategoryID int64  `json:"category_id"`
	SupplierID int64  `json:"supplier_id"`

	ReceiptID     int64 `json:"receipt_id"`
	ReceiptItemID int64 `json:"receipt_item_id"`

	Condition     string      `json:"condition,omitempty"`
	PurchaseDate  time.Time   `json:"purchase_date"`
	PurchasePrice types.Money `json:"purchase_price"`
}

// --- Inputs ---

// ReceiptDraft is the full creation payload: header plus items, submitted
// to the backend in one call.
type ReceiptDraft struct {
	ReceiptNumber string        `json:"receipt_number,omitempty"` // generated if empty
	PONumber      string        `json:"po_number"`
	SupplierID    int64         `json:"supplier_id"`
	ReceiptDate   time.Time     `json:"receipt_date"`
	Status        ReceiptStatus `json:"status,omitempty"` // defaults to pending
	Notes         string        `json:"notes,omitempty"`
	Items         []ItemDraft   `json:"items"`
	TotalAmount   types.Money   `json:"total_amount"`
}

// ItemDraft is one line of a receipt draft.
type ItemDraft struct {
	CategoryID       int64       `json:"category_id"`
	Quantity         int         `json:"quantity"`
	UnitPrice        types.Money `json:"unit_price"`
	TotalPrice       types.Money `json:"total_price"`
	SerialNumber     string      `json:"serial_number,omitempty"`
	Condition        string      `json:"condition,omitempty"`
	GenerateProducts bool        `json:"generate_products"`
}

// Validate checks the complete draft and collects every violation, so the
// caller can surface the full error list instead of fixing one field per
// round trip.
func (d *ReceiptDraft) Validate() error {
	var fields []apperror.FieldError
	add := func(field, message string) {
		fields = append(fields, apperror.FieldError{Field: field, Message: message})
	}

	if d.SupplierID <= 0 {
		add("supplier_id", "supplier is required")
	}
	if strings.TrimSpace(d.PONumber) == "" {
		add("po_number", "is required")
	}
	if d.ReceiptDate.IsZero() {
		add("receipt_date", "is required")
	}
	if d.Status != "" && d.Status != StatusPending && d.Status != StatusCompleted {
		add("status", "new receipts may only be pending or completed")
	}
	if len(d.Items) == 0 {
		add("items", "at least one item is required")
	}
	for i, item := range d.Items {
		if item.CategoryID <= 0 {
			add(fmt.Sprintf("items[%d].category_id", i), "category is required")
		}
		if item.Quantity <= 0 {
			add(fmt.Sprintf("items[%d].quantity", i), "must be greater than zero")
		}
		if item.UnitPrice.IsNegative() {
			add(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
		}
	}

	if len(fields) > 0 {
		return apperror.NewFieldValidation(fields)
	}
	return nil
}

// Finalize fills derived fields: line totals, the receipt total, the
// default status and a generated receipt number when absent.
func (d *ReceiptDraft) Finalize(now time.Time) {
	if d.Status == "" {
		d.Status = StatusPending
	}
	if d.ReceiptNumber == "" {
		d.ReceiptNumber = GenerateReceiptNumber(now)
	}
	total := types.Zero()
	for i := range d.Items {
		d.Items[i].TotalPrice = types.LineTotal(d.Items[i].Quantity, d.Items[i].UnitPrice)
		total = total.Add(d.Items[i].TotalPrice)
	}
	d.TotalAmount = total
}

// GenerateReceiptNumber builds a unique RCPT-YYYYMMDD-XXXXXX number from
// UUID entropy.
func GenerateReceiptNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id.New().String(), "-", ""))[:6]
	return fmt.Sprintf("RCPT-%s-%s", now.Format("20060102"), suffix)
}

// Query is the closed filter set for receipt listings.
type Query struct {
	Search     string
	Status     ReceiptStatus
	SupplierID int64
	DateFrom   time.Time
	DateTo     time.Time
}

// Params serializes the query for the transport layer.
func (q Query) Params() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.SupplierID > 0 {
		v.Set("supplier_id", strconv.FormatInt(q.SupplierID, 10))
	}
	if !q.DateFrom.IsZero() {
		v.Set("date_from", q.DateFrom.Format(time.DateOnly))
	}
	if !q.DateTo.IsZero() {
		v.Set("date_to", q.DateTo.Format(time.DateOnly))
	}
	return v
}

// UpdatePatch carries header-level edits for a pending receipt.
type UpdatePatch struct {
	PONumber    *string    `json:"po_number,omitempty"`
	SupplierID  *int64     `json:"supplier_id,omitempty"`
	ReceiptDate *time.Time `json:"receipt_date,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}
