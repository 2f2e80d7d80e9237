package apitest

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jofan-cah/logistik-core/internal/core/apperror"
	appid "github.com/jofan-cah/logistik-core/internal/core/id"
	"github.com/jofan-cah/logistik-core/internal/domain/category"
	"github.com/jofan-cah/logistik-core/internal/domain/dashboard"
	"github.com/jofan-cah/logistik-core/internal/domain/purchasing"
	"github.com/jofan-cah/logistik-core/internal/domain/users"
)

// --- Categories ---

func (s *Server) listCategories(c *gin.Context) {
	if s.shouldFail("categories.list") {
		failInternal(c)
		return
	}
	page, limit := pageParams(c)
	search := c.Query("search")
	hasStock := c.Query("has_stock")
	lowStock := c.Query("low_stock")

	s.mu.Lock()
	var all []category.Category
	for _, cat := range s.categories {
		if search != "" && !containsFold(cat.Name, search) && !containsFold(cat.Code, search) {
			continue
		}
		if hasStock != "" && strconv.FormatBool(cat.HasStock) != hasStock {
			continue
		}
		if lowStock != "" && strconv.FormatBool(cat.IsLowStock) != lowStock {
			continue
		}
		all = append(all, *cat)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	okPage(c, paginate(all, page, limit), page, limit, int64(len(all)))
}

func (s *Server) createCategory(c *gin.Context) {
	var in category.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, apperror.CodeValidation, err.Error())
		return
	}
	if err := in.Validate(); err != nil {
		fail(c, http.StatusBadRequest, apperror.CodeValidation, err.Error())
		return
	}

	s.mu.Lock()
	for _, existing := range s.categories {
		if existing.Code == in.Code {
			s.mu.Unlock()
			fail(c, http.StatusConflict, apperror.CodeDuplicate, "category with this code already exists")
			return
		}
	}
	s.nextCategoryID++
	now := time.Now().UTC()
	cat := &category.Category{
		ID:           s.nextCategoryID,
		Code:         in.Code,
		Name:         in.Name,
		HasStock:     in.HasStock,
		MinStock:     in.MinStock,
		MaxStock:     in.MaxStock,
		ReorderPoint: in.ReorderPoint,
		Unit:         in.Unit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	category.RecomputeLowStock(cat)
	s.categories[cat.ID] = cat
	out := *cat
	s.mu.Unlock()

	ok(c, out)
}

func (s *Server) updateCategory(c *gin.Context) {
	catID, valid := paramID(c)
	if !valid {
		return
	}
	var patch category.UpdateInput
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, apperror.CodeValidation, err.Error())
		return
	}

	s.mu.Lock()
	cat, found := s.categories[catID]
	if !found {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, apperror.CodeNotFound, "category not found")
		return
	}
	if patch.Code != nil {
		cat.Code = *patch.Code
	}
	if patch.Name != nil {
		cat.Name = *patch.Name
	}
	if patch.HasStock != nil {
		cat.HasStock = *patch.HasStock
	}
	if patch.MinStock != nil {
		cat.MinStock = *patch.MinStock
	}
	if patch.MaxStock != nil {
		cat.MaxStock = *patch.MaxStock
	}
	if patch.ReorderPoint != nil {
		cat.ReorderPoint = *patch.ReorderPoint
	}
	if patch.Unit != nil {
		cat.Unit = *patch.Unit
	}
	category.RecomputeLowStock(cat)
	cat.UpdatedAt = time.Now().UTC()
	out := *cat
	s.mu.Unlock()

	ok(c, out)
}

func (s *Server) deleteCategory(c *gin.Context) {
	catID, valid := paramID(c)
	if !valid {
		return
	}
	s.mu.Lock()
	_, found := s.categories[catID]
	delete(s.categories, catID)
	s.mu.Unlock()
	if !found {
		fail(c, http.StatusNotFound, apperror.CodeNotFound, "category not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) adjustStock(c *gin.Context) {
	if s.shouldFail("stock.adjust") {
		failInternal(c)
		return
	}
	catID, valid := paramID(c)
	if !valid {
		return
	}
	var req category.AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, apperror.CodeValidation, err.Error())
		return
	}

	s.mu.Lock()
	cat, found := s.categories[catID]
	if !found {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, apperror.CodeNotFound, "category not found")
		return
	}
	if !cat.HasStock {
		s.mu.Unlock()
		fail(c, http.StatusUnprocessableEntity, apperror.CodeStockNotTracked, "category does not track stock")
		return
	}
	if cat.CurrentStock+req.Quantity < 0 {
		s.mu.Unlock()
		fail(c, http.StatusUnprocessableEntity, apperror.CodeInvalidAdjustment, "stock would go negative")
		return
	}

	before := cat.CurrentStock
	cat.CurrentStock += req.Quantity
	category.RecomputeLowStock(cat)
	cat.UpdatedAt = time.Now().UTC()

	movementType := req.MovementType
	if movementType == "" {
		movementType = category.MovementIn
		if req.Quantity < 0 {
			movementType = category.MovementOut
		}
	}
	quantity := req.Quantity
	if quantity < 0 {
		quantity = -quantity
	}
	movement := category.StockMovement{
		LineID:        appid.New(),
		CategoryID:    catID,
		MovementType:  movementType,
		Quantity:      quantity,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Note:          req.Notes,
		BeforeStock:   before,
		AfterStock:    cat.CurrentStock,
		Actor:         "apitest",
		CreatedAt:     time.Now().UTC(),
	}
	s.movements[catID] = append(s.movements[catID], movement)
	updated := *cat
	s.mu.Unlock()

	ok(c, gin.H{"category": updated, "movement": movement})
}

// --- Purchase receipts ---

func (s *Server) listReceipts(c *gin.Context) {
	page, limit := pageParams(c)
	status := c.Query("status")

	s.mu.Lock()
	var all []purchasing.PurchaseReceipt
	for _, r := range s.receipts {
		if status != "" && string(r.Status) != status {
			continue
		}
		all = append(all, *r)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	okPage(c, paginate(all, page, limit), page, limit, int64(len(all)))
}

func (s *Server) createReceipt(c *gin.Context) {
	if s.shouldFail("receipts.create") {
		failInternal(c)
		return
	}
	var draft purchasing.ReceiptDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		fail(c, http.StatusBadRequest, apperror.CodeValidation, err.Error())
		return
	}
	if err := draft.Validate(); err != nil {
		fail(c, http.StatusBadRequest, apperror.CodeValidation, err.Error())
		return
	}
	draft.Finalize(time.Now())

	s.mu.Lock()
	s.nextReceiptID++
	now := time.Now().UTC()
	receipt := &purchasing.PurchaseReceipt{
		ID:            s.nextReceiptID,
		ReceiptNumber: draft.ReceiptNumber,
		PONumber:      draft.PONumber,
		SupplierID:    draft.SupplierID,
		ReceiptDate:   draft.ReceiptDate,
		Status:        draft.Status,
		TotalAmount:   draft.TotalAmount,
		Notes:         draft.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, item := range draft.Items {
		s.nextItemID++
		receipt.Items = append(receipt.Items, purchasing.ReceiptItem{
			ID:               s.nextItemID,
			CategoryID:       item.CategoryID,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice,
			TotalPrice:       item.TotalPrice,
			SerialNumber:     item.SerialNumber,
			Condition:        item.Condition,
			GenerateProducts: item.GenerateProducts,
		})
	}
	s.receipts[receipt.ID] = receipt
	out := *receipt
	s.mu.Unlock()

	ok(c, out)
}

func (s *Server) updateReceipt(c *gin.Context) {
	receiptID, valid := paramID(c)
	if !valid {
		return
	}
	var patch purchasing.UpdatePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, apperror.CodeValidation, err.Error())
		return
	}

	s.mu.Lock()
	receipt, found := s.receipts[receiptID]
	if !found {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, apperror.CodeNotFound, "receipt not found")
		return
	}
	if !receipt.Status.Editable() {
		s.mu.Unlock()
		fail(c, http.StatusUnprocessableEntity, apperror.CodeReceiptFinalized, "receipt is no longer editable")
		return
	}
	if patch.PONumber != nil {
		receipt.PONumber = *patch.PONumber
	}
	if patch.SupplierID != nil {
		receipt.SupplierID = *patch.SupplierID
	}
	if patch.ReceiptDate != nil {
		receipt.ReceiptDate = *patch.ReceiptDate
	}
	if patch.Notes != nil {
		receipt.Notes = *patch.Notes
	}
	receipt.UpdatedAt = time.Now().UTC()
	out := *receipt
	s.mu.Unlock()

	ok(c, out)
}

func (s *Server) updateReceiptStatus(c *gin.Context) {
	if s.shouldFail("receipts.status") {
		failInternal(c)
		return
	}
	receiptID, valid := paramID(c)
	if !valid {
		return
	}
	var body struct {
		Status purchasing.ReceiptStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, apperror.CodeValidation, err.Error())
		return
	}

	s.mu.Lock()
	receipt, found := s.receipts[receiptID]
	if !found {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, apperror.CodeNotFound, "receipt not found")
		return
	}
	if !receipt.Status.CanTransition(body.Status) {
		s.mu.Unlock()
		fail(c, http.StatusUnprocessableEntity, apperror.CodeReceiptFinalized, "status transition not allowed")
		return
	}
	receipt.Status = body.Status
	receipt.UpdatedAt = time.Now().UTC()
	out := *receipt
	s.mu.Unlock()

	ok(c, out)
}

func (s *Server) deleteReceipt(c *gin.Context) {
	receiptID, valid := paramID(c)
	if !valid {
		return
	}
	s.mu.Lock()
	receipt, found := s.receipts[receiptID]
	if found && receipt.Status != purchasing.StatusPending {
		s.mu.Unlock()
		fail(c, http.StatusUnprocessableEntity, apperror.CodeReceiptFinalized, "only pending receipts can be deleted")
		return
	}
	delete(s.receipts, receiptID)
	s.mu.Unlock()
	if !found {
		fail(c, http.StatusNotFound, apperror.CodeNotFound, "receipt not found")
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Products ---

func (s *Server) createProducts(c *gin.Context) {
	if s.shouldFail("products.create") {
		failInternal(c)
		return
	}
	var body struct {
		Products []purchasing.Product `json:"products"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, apperror.CodeValidation, err.Error())
		return
	}

	s.mu.Lock()
	s.products = append(s.products, body.Products...)
	s.mu.Unlock()

	ok(c, gin.H{"created": len(body.Products)})
}

// --- Users ---

// listUsers answers with the flat {success, data} envelope on purpose:
// the real backend never paginated this endpoint and the client must
// normalize the shape.
func (s *Server) listUsers(c *gin.Context) {
	if s.shouldFail("users.list") {
		failInternal(c)
		return
	}
	role := c.Query("role")

	s.mu.Lock()
	var all []users.User
	for _, u := range s.users {
		if role != "" && u.Role != role {
			continue
		}
		all = append(all, *u)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	ok(c, all)
}

func (s *Server) createUser(c *gin.Context) {
	var in users.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, apperror.CodeValidation, err.Error())
		return
	}
	if err := in.Validate(); err != nil {
		fail(c, http.StatusBadRequest, apperror.CodeValidation, err.Error())
		return
	}

	s.mu.Lock()
	s.nextUserID++
	now := time.Now().UTC()
	u := &users.User{
		ID:        s.nextUserID,
		Username:  in.Username,
		FullName:  in.FullName,
		Email:     in.Email,
		Role:      in.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[u.ID] = u
	out := *u
	s.mu.Unlock()

	ok(c, out)
}

func (s *Server) updateUser(c *gin.Context) {
	userID, valid := paramID(c)
	if !valid {
		return
	}
	var patch users.UpdateInput
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, apperror.CodeValidation, err.Error())
		return
	}

	s.mu.Lock()
	u, found := s.users[userID]
	if !found {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, apperror.CodeNotFound, "user not found")
		return
	}
	if patch.FullName != nil {
		u.FullName = *patch.FullName
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}
	u.UpdatedAt = time.Now().UTC()
	out := *u
	s.mu.Unlock()

	ok(c, out)
}

func (s *Server) deleteUser(c *gin.Context) {
	userID, valid := paramID(c)
	if !valid {
		return
	}
	s.mu.Lock()
	_, found := s.users[userID]
	delete(s.users, userID)
	s.mu.Unlock()
	if !found {
		fail(c, http.StatusNotFound, apperror.CodeNotFound, "user not found")
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Dashboard ---

func (s *Server) dashboardStats(c *gin.Context) {
	s.mu.Lock()
	out := s.stats
	s.mu.Unlock()
	ok(c, out)
}

func (s *Server) dashboardCategoryRows(c *gin.Context) {
	s.mu.Lock()
	out := make([]dashboard.CategoryRow, len(s.categoryRows))
	copy(out, s.categoryRows)
	s.mu.Unlock()
	ok(c, out)
}

func (s *Server) dashboardTransactionRows(c *gin.Context) {
	s.mu.Lock()
	out := make([]dashboard.TransactionRow, len(s.transactionRows))
	copy(out, s.transactionRows)
	s.mu.Unlock()
	ok(c, out)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
