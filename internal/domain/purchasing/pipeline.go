package purchasing

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jofan-cah/logistik-core/internal/core/apperror"
	"github.com/jofan-cah/logistik-core/internal/core/id"
	"github.com/jofan-cah/logistik-core/internal/domain/category"
	"github.com/jofan-cah/logistik-core/pkg/logger"
)

// ReceiptAPI is the remote persistence surface for receipts.
type ReceiptAPI interface {
	// CreateReceipt persists the header and items as one logical unit.
	CreateReceipt(ctx context.Context, draft *ReceiptDraft) (*PurchaseReceipt, error)

	// UpdateReceiptStatus transitions the receipt's lifecycle state.
	UpdateReceiptStatus(ctx context.Context, receiptID int64, status ReceiptStatus) (*PurchaseReceipt, error)
}

// ProductAPI creates generated unit-level product records.
type ProductAPI interface {
	// CreateProducts persists a batch of products. The batch is treated as
	// atomic on the backend; a failed call is retried whole.
	CreateProducts(ctx context.Context, products []Product) error
}

// StockLedger is the slice of the category ledger the pipeline needs.
// Movements is what lets cancellation reverse exactly what intake applied.
type StockLedger interface {
	Category(categoryID int64) (category.Category, bool)
	Movements(categoryID int64) []category.StockMovement
	AdjustStock(ctx context.Context, categoryID int64, delta int, ref category.Reference) (*category.StockMovement, error)
}

// Step identifies one stage of the intake sequence.
type Step string

const (
	StepPersist  Step = "persist_receipt"
	StepProducts Step = "generate_products"
	StepStock    Step = "apply_stock"
)

// IntakeResult reports what the pipeline managed to apply. The receipt
// persists as soon as StepPersist succeeds; the remaining steps are side
// effects that can fail and be retried independently via ApplyEffects.
type IntakeResult struct {
	Receipt   *PurchaseReceipt
	Products  []Product
	Movements []category.StockMovement

	// FailedStep names the first step that failed, empty when fully applied.
	FailedStep Step
	StepErr    error

	productsDone bool
	stockApplied map[int]bool // item index -> increment applied (or no-op'd)
}

// PartiallyApplied reports whether the receipt exists but some side effect
// is still outstanding.
func (r *IntakeResult) PartiallyApplied() bool { return r.FailedStep != "" }

// CancelResult mirrors IntakeResult for the reversal path.
type CancelResult struct {
	Receipt   *PurchaseReceipt
	Movements []category.StockMovement

	FailedStep Step
	StepErr    error
}

// PartiallyApplied reports whether some reversal or the status change is
// still outstanding.
func (r *CancelResult) PartiallyApplied() bool { return r.FailedStep != "" }

// Pipeline sequences receipt intake: persist, generate products, apply
// stock. Steps run strictly in order; there is no internal parallelism,
// because stock application depends on ledger state and partial-failure
// reporting depends on knowing exactly which step failed.
type Pipeline struct {
	receipts ReceiptAPI
	products ProductAPI
	ledger   StockLedger
}

// NewPipeline creates a receipt intake pipeline.
func NewPipeline(receipts ReceiptAPI, products ProductAPI, ledger StockLedger) *Pipeline {
	return &Pipeline{
		receipts: receipts,
		products: products,
		ledger:   ledger,
	}
}

// Intake validates and persists a receipt draft, then applies its side
// effects. When the returned error is non-nil but the result carries a
// receipt, the receipt was persisted and the result reports which side
// effect failed; call ApplyEffects to retry from there. A validation error
// persists nothing.
func (p *Pipeline) Intake(ctx context.Context, draft *ReceiptDraft) (*IntakeResult, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	draft.Finalize(time.Now())

	receipt, err := p.receipts.CreateReceipt(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("persist receipt: %w", err)
	}

	logger.Info(ctx, "purchase receipt persisted",
		"receipt_id", receipt.ID,
		"receipt_number", receipt.ReceiptNumber,
		"items", len(receipt.Items),
		"total_amount", receipt.TotalAmount.String(),
	)

	result := &IntakeResult{
		Receipt:      receipt,
		stockApplied: make(map[int]bool),
	}
	if err := p.applyEffects(ctx, result); err != nil {
		return result, err
	}
	return result, nil
}

// ApplyEffects retries the side effects of a persisted receipt, resuming
// from the step that last failed. Already-applied item increments and an
// already-generated product batch are not repeated.
func (p *Pipeline) ApplyEffects(ctx context.Context, result *IntakeResult) error {
	if result == nil || result.Receipt == nil {
		return apperror.NewValidation("no persisted receipt to apply effects for")
	}
	if result.stockApplied == nil {
		result.stockApplied = make(map[int]bool)
	}
	return p.applyEffects(ctx, result)
}

func (p *Pipeline) applyEffects(ctx context.Context, result *IntakeResult) error {
	result.FailedStep = ""
	result.StepErr = nil
	receipt := result.Receipt

	if !result.productsDone {
		products := buildProducts(receipt)
		if len(products) > 0 {
			if err := p.products.CreateProducts(ctx, products); err != nil {
				result.FailedStep = StepProducts
				result.StepErr = err
				return fmt.Errorf("generate products: %w", err)
			}
		}
		result.Products = products
		result.productsDone = true
		logger.Info(ctx, "products generated",
			"receipt_id", receipt.ID,
			"count", len(products),
		)
	}

	for i, item := range receipt.Items {
		if result.stockApplied[i] {
			continue
		}
		cat, ok := p.ledger.Category(item.CategoryID)
		if !ok {
			result.FailedStep = StepStock
			result.StepErr = apperror.NewNotFound("category", item.CategoryID)
			return fmt.Errorf("apply stock: %w", result.StepErr)
		}
		if !cat.HasStock {
			// Explicit no-op for non-physical categories, never a failure.
			result.stockApplied[i] = true
			continue
		}
		movement, err := p.ledger.AdjustStock(ctx, item.CategoryID, item.Quantity, receiptReference(receipt, "receipt intake"))
		if err != nil {
			result.FailedStep = StepStock
			result.StepErr = err
			return fmt.Errorf("apply stock for item %d: %w", i, err)
		}
		result.Movements = append(result.Movements, *movement)
		result.stockApplied[i] = true
	}

	return nil
}

// Complete transitions a pending receipt to completed, freezing the header
// and items against further edits. Stock was already applied at intake
// time, so completion itself changes no stock.
func (p *Pipeline) Complete(ctx context.Context, receipt *PurchaseReceipt) (*PurchaseReceipt, error) {
	if receipt.Status != StatusPending {
		return nil, apperror.NewBusinessRule(apperror.CodeReceiptFinalized,
			fmt.Sprintf("receipt %s cannot be completed from status %s", receipt.ReceiptNumber, receipt.Status))
	}
	updated, err := p.receipts.UpdateReceiptStatus(ctx, receipt.ID, StatusCompleted)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "purchase receipt completed", "receipt_id", receipt.ID)
	return updated, nil
}

// Cancel reverses the stock increments the receipt actually applied, as
// new reversing ledger entries, then transitions the receipt to cancelled.
// The reversal set is derived from the ledger's recorded movements for
// this receipt, so an intake whose stock step never ran (or only partially
// ran) is never over-reversed. Allowed from pending and from completed;
// completion freezes edits, not reversal. On partial failure the result
// reports the outstanding work and ResumeCancel picks it back up.
func (p *Pipeline) Cancel(ctx context.Context, receipt *PurchaseReceipt) (*CancelResult, error) {
	if !receipt.Status.CanTransition(StatusCancelled) {
		return nil, apperror.NewBusinessRule(apperror.CodeReceiptFinalized,
			fmt.Sprintf("receipt %s cannot be cancelled from status %s", receipt.ReceiptNumber, receipt.Status))
	}
	result := &CancelResult{Receipt: receipt}
	if err := p.cancel(ctx, result); err != nil {
		return result, err
	}
	return result, nil
}

// ResumeCancel retries an interrupted cancellation. Already-reversed
// increments net out of the outstanding set, so nothing reverses twice.
func (p *Pipeline) ResumeCancel(ctx context.Context, result *CancelResult) error {
	if result == nil || result.Receipt == nil {
		return apperror.NewValidation("no receipt to resume cancellation for")
	}
	return p.cancel(ctx, result)
}

func (p *Pipeline) cancel(ctx context.Context, result *CancelResult) error {
	result.FailedStep = ""
	result.StepErr = nil
	receipt := result.Receipt

	outstanding := p.appliedNetByCategory(receipt)
	categoryIDs := make([]int64, 0, len(outstanding))
	for categoryID := range outstanding {
		categoryIDs = append(categoryIDs, categoryID)
	}
	sort.Slice(categoryIDs, func(i, j int) bool { return categoryIDs[i] < categoryIDs[j] })

	for _, categoryID := range categoryIDs {
		net := outstanding[categoryID]
		if net <= 0 {
			continue
		}
		movement, err := p.ledger.AdjustStock(ctx, categoryID, -net, receiptReference(receipt, "receipt cancelled"))
		if err != nil {
			result.FailedStep = StepStock
			result.StepErr = err
			return fmt.Errorf("reverse stock for category %d: %w", categoryID, err)
		}
		result.Movements = append(result.Movements, *movement)
	}

	updated, err := p.receipts.UpdateReceiptStatus(ctx, receipt.ID, StatusCancelled)
	if err != nil {
		result.FailedStep = StepPersist
		result.StepErr = err
		return fmt.Errorf("mark receipt cancelled: %w", err)
	}
	result.Receipt = updated

	logger.Info(ctx, "purchase receipt cancelled",
		"receipt_id", updated.ID,
		"reversed_movements", len(result.Movements),
	)
	return nil
}

// appliedNetByCategory sums the signed quantities of every ledger movement
// this receipt produced, per category. Intake increments raise the net,
// earlier reversals lower it; a positive net is stock still to reverse.
func (p *Pipeline) appliedNetByCategory(receipt *PurchaseReceipt) map[int64]int {
	refID := strconv.FormatInt(receipt.ID, 10)
	out := make(map[int64]int, len(receipt.Items))
	for _, item := range receipt.Items {
		if _, seen := out[item.CategoryID]; seen {
			continue
		}
		net := 0
		for _, m := range p.ledger.Movements(item.CategoryID) {
			if m.ReferenceType == category.RefPurchaseReceipt && m.ReferenceID == refID {
				net += m.SignedQuantity()
			}
		}
		out[item.CategoryID] = net
	}
	return out
}

func buildProducts(receipt *PurchaseReceipt) []Product {
	var products []Product
	for _, item := range receipt.Items {
		if !item.GenerateProducts {
			continue
		}
		for n := 0; n < item.Quantity; n++ {
			products = append(products, Product{
				ProductID:     id.New().String(),
				CategoryID:    item.CategoryID,
				SupplierID:    receipt.SupplierID,
				ReceiptID:     receipt.ID,
				ReceiptItemID: item.ID,
				Condition:     item.Condition,
				PurchaseDate:  receipt.ReceiptDate,
				PurchasePrice: item.UnitPrice,
			})
		}
	}
	return products
}

func receiptReference(receipt *PurchaseReceipt, note string) category.Reference {
	return category.Reference{
		Type: category.RefPurchaseReceipt,
		ID:   strconv.FormatInt(receipt.ID, 10),
		Note: note,
	}
}
