package apitest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jofan-cah/logistik-core/internal/api"
	"github.com/jofan-cah/logistik-core/internal/apitest"
	"github.com/jofan-cah/logistik-core/internal/core/types"
	"github.com/jofan-cah/logistik-core/internal/domain/category"
	"github.com/jofan-cah/logistik-core/internal/domain/purchasing"
	"github.com/jofan-cah/logistik-core/internal/store"
)

// TestReceiptIntakeEndToEnd drives the full intake path with real wiring:
// HTTP client, stock ledger, intake pipeline and resource stores against
// the fake backend.
func TestReceiptIntakeEndToEnd(t *testing.T) {
	ctx := context.Background()
	srv := apitest.NewServer()
	defer srv.Close()

	client, err := api.New(api.Config{BaseURL: srv.URL()})
	require.NoError(t, err)

	router := srv.SeedCategory(category.Category{
		Code: "RTR", Name: "Router", HasStock: true,
		CurrentStock: 20, ReorderPoint: 10, Unit: "pcs",
	})
	license := srv.SeedCategory(category.Category{
		Code: "LIC", Name: "License", HasStock: false,
	})

	ledger := category.NewLedger(client.Categories())
	page, err := client.Categories().List(ctx, category.Query{}, 1, 50)
	require.NoError(t, err)
	ledger.Load(page.Items)

	pipeline := purchasing.NewPipeline(client.Receipts(), client.Products(), ledger)
	receipts := store.NewReceiptStore(client, 10)
	require.NoError(t, receipts.Fetch(ctx))

	var firstReceipt *purchasing.PurchaseReceipt

	t.Run("intake persists receipt, products and stock", func(t *testing.T) {
		result, err := pipeline.Intake(ctx, &purchasing.ReceiptDraft{
			PONumber:    "PO-2026-001",
			SupplierID:  3,
			ReceiptDate: time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
			Items: []purchasing.ItemDraft{
				{CategoryID: router.ID, Quantity: 5, UnitPrice: types.MustMoney("100"), GenerateProducts: true, Condition: "new"},
				{CategoryID: license.ID, Quantity: 1, UnitPrice: types.MustMoney("10")},
			},
		})
		require.NoError(t, err)
		require.NotNil(t, result.Receipt)
		assert.False(t, result.PartiallyApplied())
		firstReceipt = result.Receipt

		stored, found := srv.Receipt(result.Receipt.ID)
		require.True(t, found)
		assert.True(t, stored.TotalAmount.Equal(types.MustMoney("510")))
		assert.Equal(t, purchasing.StatusPending, stored.Status)

		// Five serialized products, one per generated unit.
		assert.Len(t, srv.Products(), 5)

		// The backend ledger and the client reflection agree: 20 -> 25.
		serverCat, _ := srv.Category(router.ID)
		assert.Equal(t, 25, serverCat.CurrentStock)
		localCat, _ := ledger.Category(router.ID)
		assert.Equal(t, 25, localCat.CurrentStock)

		movements := srv.Movements(router.ID)
		require.Len(t, movements, 1)
		assert.Equal(t, 20, movements[0].BeforeStock)
		assert.Equal(t, 25, movements[0].AfterStock)
		assert.Equal(t, category.RefPurchaseReceipt, movements[0].ReferenceType)

		// The untracked license line produced no movement anywhere.
		assert.Empty(t, srv.Movements(license.ID))

		// Fold the persisted receipt into the list without a second create.
		require.NoError(t, receipts.ApplyCreated(ctx, *result.Receipt))
		items := receipts.Items()
		require.NotEmpty(t, items)
		assert.Equal(t, result.Receipt.ID, items[0].ID)
		assert.Equal(t, int64(1), receipts.TotalItems())
	})

	t.Run("interrupted intake resumes without duplicate effects", func(t *testing.T) {
		srv.FailNext("products.create")

		result, err := pipeline.Intake(ctx, &purchasing.ReceiptDraft{
			PONumber:    "PO-2026-002",
			SupplierID:  3,
			ReceiptDate: time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC),
			Items: []purchasing.ItemDraft{
				{CategoryID: router.ID, Quantity: 3, UnitPrice: types.MustMoney("50"), GenerateProducts: true, Condition: "new"},
			},
		})
		require.Error(t, err)
		require.NotNil(t, result)
		assert.True(t, result.PartiallyApplied())
		assert.Equal(t, purchasing.StepProducts, result.FailedStep)

		// Receipt survived the failed side effect; nothing else applied.
		_, found := srv.Receipt(result.Receipt.ID)
		assert.True(t, found)
		assert.Len(t, srv.Products(), 5)
		serverCat, _ := srv.Category(router.ID)
		assert.Equal(t, 25, serverCat.CurrentStock)

		require.NoError(t, pipeline.ApplyEffects(ctx, result))
		assert.Len(t, srv.Products(), 8, "retry must not duplicate the first receipt's products")
		serverCat, _ = srv.Category(router.ID)
		assert.Equal(t, 28, serverCat.CurrentStock)

		t.Run("cancellation reverses through a new movement", func(t *testing.T) {
			cancelResult, err := pipeline.Cancel(ctx, result.Receipt)
			require.NoError(t, err)
			assert.Equal(t, purchasing.StatusCancelled, cancelResult.Receipt.Status)

			serverCat, _ := srv.Category(router.ID)
			assert.Equal(t, 25, serverCat.CurrentStock)

			movements := srv.Movements(router.ID)
			require.Len(t, movements, 3, "the reversal appends, nothing is edited")
			last := movements[len(movements)-1]
			assert.Equal(t, category.MovementOut, last.MovementType)
			assert.Equal(t, 28, last.BeforeStock)
			assert.Equal(t, 25, last.AfterStock)
		})
	})

	t.Run("completion freezes the receipt", func(t *testing.T) {
		completed, err := pipeline.Complete(ctx, firstReceipt)
		require.NoError(t, err)
		assert.Equal(t, purchasing.StatusCompleted, completed.Status)

		// Completion changes no stock; intake already applied it.
		serverCat, _ := srv.Category(router.ID)
		assert.Equal(t, 25, serverCat.CurrentStock)

		// A frozen receipt rejects edits.
		po := "PO-REWRITE"
		_, err = client.Receipts().Update(ctx, completed.ID, purchasing.UpdatePatch{PONumber: &po})
		require.Error(t, err)
	})

	t.Run("low stock surfaces after drawdown", func(t *testing.T) {
		_, err := ledger.AdjustStock(ctx, router.ID, -16, category.ManualReference("audit shrinkage"))
		require.NoError(t, err)

		localCat, _ := ledger.Category(router.ID)
		assert.Equal(t, 9, localCat.CurrentStock)
		assert.True(t, localCat.IsLowStock)

		low := ledger.LowStock()
		require.Len(t, low, 1)
		assert.Equal(t, router.ID, low[0].ID)

		// The store's fetch sees the same backend state.
		categories := store.NewCategoryStore(client, 10)
		require.NoError(t, categories.Fetch(ctx))
		for _, c := range categories.Items() {
			if c.ID == router.ID {
				assert.Equal(t, 9, c.CurrentStock)
				assert.True(t, c.IsLowStock)
			}
		}
	})
}
