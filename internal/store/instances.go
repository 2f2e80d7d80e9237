package store

import (
	"context"
	"time"

	"github.com/jofan-cah/logistik-core/internal/api"
	"github.com/jofan-cah/logistik-core/internal/domain/category"
	"github.com/jofan-cah/logistik-core/internal/domain/purchasing"
	"github.com/jofan-cah/logistik-core/internal/domain/users"
)

// NewCategoryStore builds the categories resource store.
func NewCategoryStore(client *api.Client, pageSize int) *Store[category.Category, category.Query, category.CreateInput, category.UpdateInput] {
	return New[category.Category, category.Query, category.CreateInput, category.UpdateInput]("categories", client.Categories(), pageSize)
}

// NewUserStore builds the users resource store.
func NewUserStore(client *api.Client, pageSize int) *Store[users.User, users.Query, users.CreateInput, users.UpdateInput] {
	return New[users.User, users.Query, users.CreateInput, users.UpdateInput]("users", client.Users(), pageSize)
}

// NewReceiptStore builds the purchase receipt resource store. Its Create
// persists the draft only; intake screens that also need product
// generation and stock application go through purchasing.Pipeline and fold
// the persisted receipt in with ApplyCreated.
func NewReceiptStore(client *api.Client, pageSize int) *Store[purchasing.PurchaseReceipt, purchasing.Query, *purchasing.ReceiptDraft, purchasing.UpdatePatch] {
	return New[purchasing.PurchaseReceipt, purchasing.Query, *purchasing.ReceiptDraft, purchasing.UpdatePatch]("purchase_receipts", receiptCollection{client.Receipts()}, pageSize)
}

// receiptCollection adapts ReceiptsClient to the store's Collection shape:
// the create path validates and finalizes the draft before persisting.
type receiptCollection struct {
	*api.ReceiptsClient
}

func (rc receiptCollection) Create(ctx context.Context, draft *purchasing.ReceiptDraft) (purchasing.PurchaseReceipt, error) {
	if err := draft.Validate(); err != nil {
		return purchasing.PurchaseReceipt{}, err
	}
	draft.Finalize(time.Now())
	receipt, err := rc.CreateReceipt(ctx, draft)
	if err != nil {
		return purchasing.PurchaseReceipt{}, err
	}
	return *receipt, nil
}
