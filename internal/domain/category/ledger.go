package category

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jofan-cah/logistik-core/internal/core/apperror"
	appctx "github.com/jofan-cah/logistik-core/internal/core/context"
	"github.com/jofan-cah/logistik-core/pkg/logger"
)

// AdjustmentRequest is the wire payload of the stock adjustment endpoint.
// Quantity is signed; MovementType mirrors its sign for the backend's audit
// trail.
type AdjustmentRequest struct {
	Quantity      int           `json:"quantity"`
	MovementType  MovementType  `json:"movement_type"`
	Notes         string        `json:"notes,omitempty"`
	ReferenceType ReferenceType `json:"reference_type,omitempty"`
	ReferenceID   string        `json:"reference_id,omitempty"`
}

// AdjustmentAPI is the remote mutation the ledger delegates persistence to.
// The endpoint returns the updated category plus the movement it recorded.
type AdjustmentAPI interface {
	AdjustStock(ctx context.Context, categoryID int64, req AdjustmentRequest) (*Category, *StockMovement, error)
}

// Adjustment is one entry of a bulk stock change.
type Adjustment struct {
	CategoryID int64
	Delta      int
	Ref        Reference
}

// Ledger owns the client-side reflection of category stock state and the
// append-only movement log. All current-stock mutations flow through it;
// nothing else in the core writes CurrentStock.
//
// The ledger serializes adjustments with a single mutex held across the
// remote call, which keeps each category's movement chain linear:
// every movement's BeforeStock equals the previous movement's AfterStock.
type Ledger struct {
	mu  sync.Mutex
	api AdjustmentAPI

	categories map[int64]*Category
	movements  map[int64][]StockMovement
}

// NewLedger creates a ledger backed by the given remote adjustment endpoint.
func NewLedger(api AdjustmentAPI) *Ledger {
	return &Ledger{
		api:        api,
		categories: make(map[int64]*Category),
		movements:  make(map[int64][]StockMovement),
	}
}

// Load seeds or refreshes the ledger's category reflection from a fetch.
// IsLowStock is re-derived rather than trusted from the payload.
func (l *Ledger) Load(cats []Category) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range cats {
		c := cats[i]
		RecomputeLowStock(&c)
		l.categories[c.ID] = &c
	}
}

// Category returns a copy of the tracked category, if loaded.
func (l *Ledger) Category(categoryID int64) (Category, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.categories[categoryID]
	if !ok {
		return Category{}, false
	}
	return *c, true
}

// Categories returns a copy of every loaded category, ordered by id.
func (l *Ledger) Categories() []Category {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Category, 0, len(l.categories))
	for _, c := range l.categories {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LowStock returns the loaded categories currently at or below their
// reorder point, limited to those that track stock.
func (l *Ledger) LowStock() []Category {
	var out []Category
	for _, c := range l.Categories() {
		if c.HasStock && c.IsLowStock {
			out = append(out, c)
		}
	}
	return out
}

// AdjustStock applies a signed stock change to a category and appends one
// movement. This is the only sanctioned mutation path for CurrentStock.
// A delta that would drive stock negative is rejected before any remote
// call, with no movement and no state change.
func (l *Ledger) AdjustStock(ctx context.Context, categoryID int64, delta int, ref Reference) (*StockMovement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.adjustLocked(ctx, categoryID, delta, ref)
}

func (l *Ledger) adjustLocked(ctx context.Context, categoryID int64, delta int, ref Reference) (*StockMovement, error) {
	cat, ok := l.categories[categoryID]
	if !ok {
		return nil, apperror.NewNotFound("category", categoryID)
	}
	if err := validateAdjustment(cat, delta); err != nil {
		return nil, err
	}

	updated, movement, err := l.api.AdjustStock(ctx, categoryID, AdjustmentRequest{
		Quantity:      delta,
		MovementType:  movementTypeFor(delta),
		Notes:         ref.Note,
		ReferenceType: ref.Type,
		ReferenceID:   ref.ID,
	})
	if err != nil {
		return nil, err
	}

	l.applyLocked(ctx, cat, updated, movement, delta)
	return movement, nil
}

// AdjustStockBulk applies a list of adjustments as one logical batch.
// Validation is all-or-nothing: every entry is checked against the running
// simulated balances first, and a single violation rejects the whole batch
// before any ledger entry is written.
func (l *Ledger) AdjustStockBulk(ctx context.Context, entries []Adjustment) ([]StockMovement, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Simulate the batch first so later entries see earlier deltas.
	running := make(map[int64]int, len(entries))
	var fields []apperror.FieldError
	for i, e := range entries {
		cat, ok := l.categories[e.CategoryID]
		if !ok {
			fields = append(fields, apperror.FieldError{
				Field:   fmt.Sprintf("entries[%d].category_id", i),
				Message: fmt.Sprintf("category %d is not loaded", e.CategoryID),
			})
			continue
		}
		if _, seen := running[e.CategoryID]; !seen {
			running[e.CategoryID] = cat.CurrentStock
		}
		if err := validateAdjustmentAt(cat, running[e.CategoryID], e.Delta); err != nil {
			fields = append(fields, apperror.FieldError{
				Field:   fmt.Sprintf("entries[%d].delta", i),
				Message: err.Error(),
			})
			continue
		}
		running[e.CategoryID] += e.Delta
	}
	if len(fields) > 0 {
		return nil, apperror.NewFieldValidation(fields)
	}

	movements := make([]StockMovement, 0, len(entries))
	for i, e := range entries {
		m, err := l.adjustLocked(ctx, e.CategoryID, e.Delta, e.Ref)
		if err != nil {
			return movements, fmt.Errorf("bulk adjustment entry %d: %w", i, err)
		}
		movements = append(movements, *m)
	}
	return movements, nil
}

func (l *Ledger) applyLocked(ctx context.Context, cat *Category, updated *Category, movement *StockMovement, delta int) {
	expectedBefore := cat.CurrentStock
	if movement.BeforeStock != expectedBefore || movement.AfterStock-movement.BeforeStock != movement.SignedQuantity() {
		// The local reflection drifted from the remote ledger. The remote
		// value wins; surface the drift for investigation.
		logger.Warn(ctx, "stock movement chain drift",
			"category_id", cat.ID,
			"expected_before", expectedBefore,
			"movement_before", movement.BeforeStock,
			"movement_after", movement.AfterStock,
		)
	}
	if movement.Actor == "" {
		movement.Actor = appctx.ActorName(ctx)
	}

	*cat = *updated
	RecomputeLowStock(cat)
	l.movements[cat.ID] = append(l.movements[cat.ID], *movement)

	logger.Info(ctx, "stock adjusted",
		"category_id", cat.ID,
		"delta", delta,
		"before", movement.BeforeStock,
		"after", movement.AfterStock,
		"reference_type", movement.ReferenceType,
	)
}

// Movements returns a copy of the recorded movement log for a category,
// oldest first.
func (l *Ledger) Movements(categoryID int64) []StockMovement {
	l.mu.Lock()
	defer l.mu.Unlock()
	src := l.movements[categoryID]
	out := make([]StockMovement, len(src))
	copy(out, src)
	return out
}

// NetChange sums the signed quantities of every recorded movement for a
// category. It equals current stock minus the stock at ledger load time.
func (l *Ledger) NetChange(categoryID int64) int {
	total := 0
	for _, m := range l.Movements(categoryID) {
		mm := m
		total += mm.SignedQuantity()
	}
	return total
}

func validateAdjustment(cat *Category, delta int) error {
	return validateAdjustmentAt(cat, cat.CurrentStock, delta)
}

func validateAdjustmentAt(cat *Category, current, delta int) error {
	if !cat.HasStock {
		return apperror.NewStockNotTracked(cat.ID)
	}
	if delta == 0 {
		return apperror.NewValidation("adjustment delta must not be zero")
	}
	if current+delta < 0 {
		return apperror.NewInvalidAdjustment(cat.ID, delta, current)
	}
	return nil
}

func movementTypeFor(delta int) MovementType {
	if delta < 0 {
		return MovementOut
	}
	return MovementIn
}
