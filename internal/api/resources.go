package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jofan-cah/logistik-core/internal/domain/category"
	"github.com/jofan-cah/logistik-core/internal/domain/dashboard"
	"github.com/jofan-cah/logistik-core/internal/domain/purchasing"
	"github.com/jofan-cah/logistik-core/internal/domain/users"
)

// --- Categories ---

// CategoriesClient talks to the category endpoints.
type CategoriesClient struct {
	c *Client
}

// Categories returns the category endpoint client.
func (c *Client) Categories() *CategoriesClient { return &CategoriesClient{c: c} }

// List fetches one page of categories.
func (cc *CategoriesClient) List(ctx context.Context, q category.Query, page, limit int) (Page[category.Category], error) {
	var items []category.Category
	env, err := cc.c.do(ctx, http.MethodGet, "/categories", listParams(q.Params(), page, limit), nil, &items)
	if err != nil {
		return Page[category.Category]{}, err
	}
	return normalizePage(env, items, page, limit), nil
}

// Create creates a category.
func (cc *CategoriesClient) Create(ctx context.Context, in category.CreateInput) (category.Category, error) {
	var out category.Category
	if err := in.Validate(); err != nil {
		return out, err
	}
	_, err := cc.c.do(ctx, http.MethodPost, "/categories", nil, in, &out)
	return out, err
}

// Update patches a category. Stock levels can move this way; current stock
// cannot, the backend rejects it and the patch type does not carry it.
func (cc *CategoriesClient) Update(ctx context.Context, categoryID int64, patch category.UpdateInput) (category.Category, error) {
	var out category.Category
	if err := patch.Validate(); err != nil {
		return out, err
	}
	_, err := cc.c.do(ctx, http.MethodPut, fmt.Sprintf("/categories/%d", categoryID), nil, patch, &out)
	return out, err
}

// Delete removes a category.
func (cc *CategoriesClient) Delete(ctx context.Context, categoryID int64) error {
	_, err := cc.c.do(ctx, http.MethodDelete, fmt.Sprintf("/categories/%d", categoryID), nil, nil, nil)
	return err
}

// adjustStockResponse is the payload of the stock adjustment endpoint.
type adjustStockResponse struct {
	Category category.Category      `json:"category"`
	Movement category.StockMovement `json:"movement"`
}

// AdjustStock posts a signed stock adjustment and returns the updated
// category plus the movement the backend recorded.
// Implements category.AdjustmentAPI.
func (cc *CategoriesClient) AdjustStock(ctx context.Context, categoryID int64, req category.AdjustmentRequest) (*category.Category, *category.StockMovement, error) {
	var out adjustStockResponse
	_, err := cc.c.do(ctx, http.MethodPost, fmt.Sprintf("/categories/%d/stock-adjustment", categoryID), nil, req, &out)
	if err != nil {
		return nil, nil, err
	}
	return &out.Category, &out.Movement, nil
}

var _ category.AdjustmentAPI = (*CategoriesClient)(nil)

// --- Purchase receipts ---

// ReceiptsClient talks to the purchase receipt endpoints.
type ReceiptsClient struct {
	c *Client
}

// Receipts returns the purchase receipt endpoint client.
func (c *Client) Receipts() *ReceiptsClient { return &ReceiptsClient{c: c} }

// List fetches one page of receipts.
func (rc *ReceiptsClient) List(ctx context.Context, q purchasing.Query, page, limit int) (Page[purchasing.PurchaseReceipt], error) {
	var items []purchasing.PurchaseReceipt
	env, err := rc.c.do(ctx, http.MethodGet, "/purchase-receipts", listParams(q.Params(), page, limit), nil, &items)
	if err != nil {
		return Page[purchasing.PurchaseReceipt]{}, err
	}
	return normalizePage(env, items, page, limit), nil
}

// CreateReceipt persists a receipt draft, header and items in one call.
// Implements purchasing.ReceiptAPI.
func (rc *ReceiptsClient) CreateReceipt(ctx context.Context, draft *purchasing.ReceiptDraft) (*purchasing.PurchaseReceipt, error) {
	var out purchasing.PurchaseReceipt
	if _, err := rc.c.do(ctx, http.MethodPost, "/purchase-receipts", nil, draft, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateReceiptStatus transitions receipt lifecycle state.
// Implements purchasing.ReceiptAPI.
func (rc *ReceiptsClient) UpdateReceiptStatus(ctx context.Context, receiptID int64, status purchasing.ReceiptStatus) (*purchasing.PurchaseReceipt, error) {
	var out purchasing.PurchaseReceipt
	body := map[string]any{"status": status}
	if _, err := rc.c.do(ctx, http.MethodPatch, fmt.Sprintf("/purchase-receipts/%d/status", receiptID), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update patches a pending receipt's header.
func (rc *ReceiptsClient) Update(ctx context.Context, receiptID int64, patch purchasing.UpdatePatch) (purchasing.PurchaseReceipt, error) {
	var out purchasing.PurchaseReceipt
	_, err := rc.c.do(ctx, http.MethodPut, fmt.Sprintf("/purchase-receipts/%d", receiptID), nil, patch, &out)
	return out, err
}

// Delete removes a receipt. The backend only allows this for drafts that
// never applied stock.
func (rc *ReceiptsClient) Delete(ctx context.Context, receiptID int64) error {
	_, err := rc.c.do(ctx, http.MethodDelete, fmt.Sprintf("/purchase-receipts/%d", receiptID), nil, nil, nil)
	return err
}

var _ purchasing.ReceiptAPI = (*ReceiptsClient)(nil)

// --- Products ---

// ProductsClient talks to the generated product endpoints.
type ProductsClient struct {
	c *Client
}

// Products returns the product endpoint client.
func (c *Client) Products() *ProductsClient { return &ProductsClient{c: c} }

// CreateProducts persists a batch of generated unit records in one call.
// Implements purchasing.ProductAPI.
func (pc *ProductsClient) CreateProducts(ctx context.Context, products []purchasing.Product) error {
	if len(products) == 0 {
		return nil
	}
	_, err := pc.c.do(ctx, http.MethodPost, "/products/bulk", nil, map[string]any{"products": products}, nil)
	return err
}

var _ purchasing.ProductAPI = (*ProductsClient)(nil)

// --- Users ---

// UsersClient talks to the user endpoints.
type UsersClient struct {
	c *Client
}

// Users returns the user endpoint client.
func (c *Client) Users() *UsersClient { return &UsersClient{c: c} }

// List fetches one page of users. The backend answers this one with the
// flat {success, data} envelope; normalization turns it into a page.
func (uc *UsersClient) List(ctx context.Context, q users.Query, page, limit int) (Page[users.User], error) {
	var items []users.User
	env, err := uc.c.do(ctx, http.MethodGet, "/users", listParams(q.Params(), page, limit), nil, &items)
	if err != nil {
		return Page[users.User]{}, err
	}
	return normalizePage(env, items, page, limit), nil
}

// Create creates a user.
func (uc *UsersClient) Create(ctx context.Context, in users.CreateInput) (users.User, error) {
	var out users.User
	if err := in.Validate(); err != nil {
		return out, err
	}
	_, err := uc.c.do(ctx, http.MethodPost, "/users", nil, in, &out)
	return out, err
}

// Update patches a user.
func (uc *UsersClient) Update(ctx context.Context, userID int64, patch users.UpdateInput) (users.User, error) {
	var out users.User
	if err := patch.Validate(); err != nil {
		return out, err
	}
	_, err := uc.c.do(ctx, http.MethodPut, fmt.Sprintf("/users/%d", userID), nil, patch, &out)
	return out, err
}

// Delete removes a user.
func (uc *UsersClient) Delete(ctx context.Context, userID int64) error {
	_, err := uc.c.do(ctx, http.MethodDelete, fmt.Sprintf("/users/%d", userID), nil, nil, nil)
	return err
}

// --- Dashboard ---

// DashboardClient talks to the statistics endpoints.
type DashboardClient struct {
	c *Client
}

// Dashboard returns the statistics endpoint client.
func (c *Client) Dashboard() *DashboardClient { return &DashboardClient{c: c} }

// Stats fetches the raw backend summary payload.
func (dc *DashboardClient) Stats(ctx context.Context) (dashboard.RawStats, error) {
	var out dashboard.RawStats
	_, err := dc.c.do(ctx, http.MethodGet, "/dashboard/stats", nil, nil, &out)
	return out, err
}

// CategoryRows fetches the raw per-record rows behind the category
// histogram.
func (dc *DashboardClient) CategoryRows(ctx context.Context) ([]dashboard.CategoryRow, error) {
	var out []dashboard.CategoryRow
	_, err := dc.c.do(ctx, http.MethodGet, "/dashboard/category-rows", nil, nil, &out)
	return out, err
}

// TransactionRows fetches the raw per-record rows behind the monthly
// trend.
func (dc *DashboardClient) TransactionRows(ctx context.Context) ([]dashboard.TransactionRow, error) {
	var out []dashboard.TransactionRow
	_, err := dc.c.do(ctx, http.MethodGet, "/dashboard/transaction-rows", nil, nil, &out)
	return out, err
}
