package category

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jofan-cah/logistik-core/internal/core/apperror"
	"github.com/jofan-cah/logistik-core/internal/core/id"
)

// fakeAdjustAPI plays the backend: it keeps its own authoritative copy of
// category stock and answers adjustments the way the real endpoint does.
type fakeAdjustAPI struct {
	state map[int64]*Category
	calls int
	fail  error
}

func newFakeAdjustAPI(cats ...Category) *fakeAdjustAPI {
	f := &fakeAdjustAPI{state: make(map[int64]*Category)}
	for i := range cats {
		c := cats[i]
		f.state[c.ID] = &c
	}
	return f
}

func (f *fakeAdjustAPI) AdjustStock(_ context.Context, categoryID int64, req AdjustmentRequest) (*Category, *StockMovement, error) {
	f.calls++
	if f.fail != nil {
		err := f.fail
		f.fail = nil
		return nil, nil, err
	}
	cat := f.state[categoryID]
	before := cat.CurrentStock
	cat.CurrentStock += req.Quantity
	RecomputeLowStock(cat)

	quantity := req.Quantity
	movementType := MovementIn
	if quantity < 0 {
		quantity = -quantity
		movementType = MovementOut
	}
	movement := &StockMovement{
		LineID:        id.New(),
		CategoryID:    categoryID,
		MovementType:  movementType,
		Quantity:      quantity,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Note:          req.Notes,
		BeforeStock:   before,
		AfterStock:    cat.CurrentStock,
		Actor:         "tester",
		CreatedAt:     time.Now().UTC(),
	}
	updated := *cat
	return &updated, movement, nil
}

func trackedCategory(catID int64, stock, reorder int) Category {
	return Category{
		ID:           catID,
		Code:         "CAT",
		Name:         "Cables",
		HasStock:     true,
		CurrentStock: stock,
		ReorderPoint: reorder,
		Unit:         "pcs",
	}
}

func TestAdjustStock(t *testing.T) {
	ctx := context.Background()

	t.Run("applies delta and appends one movement", func(t *testing.T) {
		cat := trackedCategory(1, 20, 10)
		api := newFakeAdjustAPI(cat)
		ledger := NewLedger(api)
		ledger.Load([]Category{cat})

		movement, err := ledger.AdjustStock(ctx, 1, 5, ManualReference("recount"))
		require.NoError(t, err)
		require.NotNil(t, movement)

		assert.Equal(t, 20, movement.BeforeStock)
		assert.Equal(t, 25, movement.AfterStock)
		assert.Equal(t, MovementIn, movement.MovementType)
		assert.Equal(t, RefManualAdjustment, movement.ReferenceType)

		got, ok := ledger.Category(1)
		require.True(t, ok)
		assert.Equal(t, 25, got.CurrentStock)
		assert.False(t, got.IsLowStock)
		assert.Len(t, ledger.Movements(1), 1)
	})

	t.Run("recomputes low stock after each adjustment", func(t *testing.T) {
		cat := trackedCategory(1, 20, 10)
		api := newFakeAdjustAPI(cat)
		ledger := NewLedger(api)
		ledger.Load([]Category{cat})

		_, err := ledger.AdjustStock(ctx, 1, -12, ManualReference("damage write-off"))
		require.NoError(t, err)

		got, _ := ledger.Category(1)
		assert.Equal(t, 8, got.CurrentStock)
		assert.True(t, got.IsLowStock)

		_, err = ledger.AdjustStock(ctx, 1, 4, ManualReference("found in back room"))
		require.NoError(t, err)

		got, _ = ledger.Category(1)
		assert.Equal(t, 12, got.CurrentStock)
		assert.False(t, got.IsLowStock)
	})

	t.Run("rejects delta that would go negative without any state change", func(t *testing.T) {
		cat := trackedCategory(1, 3, 10)
		api := newFakeAdjustAPI(cat)
		ledger := NewLedger(api)
		ledger.Load([]Category{cat})

		_, err := ledger.AdjustStock(ctx, 1, -4, ManualReference("oops"))
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeInvalidAdjustment, appErr.Code)

		// No remote call, no movement, no state change.
		assert.Equal(t, 0, api.calls)
		assert.Empty(t, ledger.Movements(1))
		got, _ := ledger.Category(1)
		assert.Equal(t, 3, got.CurrentStock)
	})

	t.Run("rejects categories without stock tracking", func(t *testing.T) {
		cat := Category{ID: 2, Code: "LIC", Name: "Licenses", HasStock: false}
		api := newFakeAdjustAPI(cat)
		ledger := NewLedger(api)
		ledger.Load([]Category{cat})

		_, err := ledger.AdjustStock(ctx, 2, 1, ManualReference("n/a"))
		require.Error(t, err)
		appErr, _ := apperror.AsAppError(err)
		assert.Equal(t, apperror.CodeStockNotTracked, appErr.Code)
		assert.Equal(t, 0, api.calls)
	})

	t.Run("unknown category is not found", func(t *testing.T) {
		ledger := NewLedger(newFakeAdjustAPI())
		_, err := ledger.AdjustStock(ctx, 99, 1, ManualReference(""))
		assert.True(t, apperror.IsNotFound(err))
	})
}

func TestAdjustStockChainInvariant(t *testing.T) {
	ctx := context.Background()
	cat := trackedCategory(1, 10, 2)
	ledger := NewLedger(newFakeAdjustAPI(cat))
	ledger.Load([]Category{cat})

	deltas := []int{5, -3, 7, -9, 1}
	for _, d := range deltas {
		_, err := ledger.AdjustStock(ctx, 1, d, ManualReference("cycle"))
		require.NoError(t, err)
	}

	movements := ledger.Movements(1)
	require.Len(t, movements, len(deltas))
	for i := 1; i < len(movements); i++ {
		assert.Equal(t, movements[i-1].AfterStock, movements[i].BeforeStock,
			"movement %d must continue the chain", i)
	}
	for i := range movements {
		assert.Equal(t, movements[i].SignedQuantity(), movements[i].AfterStock-movements[i].BeforeStock)
	}

	// Net change of the whole log equals current minus initial stock.
	got, _ := ledger.Category(1)
	assert.Equal(t, got.CurrentStock-10, ledger.NetChange(1))
}

func TestAdjustStockBulk(t *testing.T) {
	ctx := context.Background()

	t.Run("one invalid entry rejects the whole batch", func(t *testing.T) {
		a := trackedCategory(1, 10, 2)
		b := trackedCategory(2, 1, 2)
		api := newFakeAdjustAPI(a, b)
		ledger := NewLedger(api)
		ledger.Load([]Category{a, b})

		_, err := ledger.AdjustStockBulk(ctx, []Adjustment{
			{CategoryID: 1, Delta: 5, Ref: ManualReference("ok")},
			{CategoryID: 2, Delta: -3, Ref: ManualReference("would go negative")},
		})
		require.Error(t, err)
		require.True(t, apperror.IsValidation(err))

		fields := apperror.FieldErrors(err)
		require.Len(t, fields, 1)
		assert.Equal(t, "entries[1].delta", fields[0].Field)

		// Nothing was written, not even the valid entry.
		assert.Equal(t, 0, api.calls)
		assert.Empty(t, ledger.Movements(1))
		assert.Empty(t, ledger.Movements(2))
	})

	t.Run("later entries see earlier deltas of the same category", func(t *testing.T) {
		a := trackedCategory(1, 10, 2)
		ledger := NewLedger(newFakeAdjustAPI(a))
		ledger.Load([]Category{a})

		// -8 then -3 would pass individually but not in sequence.
		_, err := ledger.AdjustStockBulk(ctx, []Adjustment{
			{CategoryID: 1, Delta: -8, Ref: ManualReference("first")},
			{CategoryID: 1, Delta: -3, Ref: ManualReference("second")},
		})
		require.Error(t, err)
		assert.True(t, apperror.IsValidation(err))
		assert.Empty(t, ledger.Movements(1))
	})

	t.Run("valid batch applies in order", func(t *testing.T) {
		a := trackedCategory(1, 10, 2)
		b := trackedCategory(2, 5, 2)
		ledger := NewLedger(newFakeAdjustAPI(a, b))
		ledger.Load([]Category{a, b})

		movements, err := ledger.AdjustStockBulk(ctx, []Adjustment{
			{CategoryID: 1, Delta: 3, Ref: ManualReference("batch")},
			{CategoryID: 2, Delta: -5, Ref: ManualReference("batch")},
			{CategoryID: 1, Delta: -1, Ref: ManualReference("batch")},
		})
		require.NoError(t, err)
		require.Len(t, movements, 3)

		gotA, _ := ledger.Category(1)
		gotB, _ := ledger.Category(2)
		assert.Equal(t, 12, gotA.CurrentStock)
		assert.Equal(t, 0, gotB.CurrentStock)
		assert.True(t, gotB.IsLowStock)
	})
}

func TestRecomputeLowStockIdempotent(t *testing.T) {
	cat := trackedCategory(1, 7, 7)
	RecomputeLowStock(&cat)
	first := cat.IsLowStock
	RecomputeLowStock(&cat)
	assert.Equal(t, first, cat.IsLowStock)
	assert.True(t, cat.IsLowStock, "stock equal to reorder point is low")
}

func TestLowStockListing(t *testing.T) {
	a := trackedCategory(1, 1, 5)
	b := trackedCategory(2, 50, 5)
	b.Code = "SRV"
	c := Category{ID: 3, Code: "LIC", Name: "Licenses", HasStock: false}

	ledger := NewLedger(newFakeAdjustAPI(a, b, c))
	ledger.Load([]Category{a, b, c})

	low := ledger.LowStock()
	require.Len(t, low, 1)
	assert.Equal(t, int64(1), low[0].ID)
}
