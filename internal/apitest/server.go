// Package apitest provides an in-memory implementation of the back-office
// API for tests: the same envelope dialects, pagination and stock rules as
// the real backend, plus fault injection for partial-failure scenarios.
package apitest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"

	"github.com/jofan-cah/logistik-core/internal/core/apperror"
	"github.com/jofan-cah/logistik-core/internal/domain/category"
	"github.com/jofan-cah/logistik-core/internal/domain/dashboard"
	"github.com/jofan-cah/logistik-core/internal/domain/purchasing"
	"github.com/jofan-cah/logistik-core/internal/domain/users"
)

// Server is a fake backend bound to an httptest listener.
type Server struct {
	mu sync.Mutex

	categories map[int64]*category.Category
	receipts   map[int64]*purchasing.PurchaseReceipt
	users      map[int64]*users.User
	products   []purchasing.Product
	movements  map[int64][]category.StockMovement

	nextCategoryID int64
	nextReceiptID  int64
	nextItemID     int64
	nextUserID     int64

	stats           dashboard.RawStats
	categoryRows    []dashboard.CategoryRow
	transactionRows []dashboard.TransactionRow

	// failNext holds operations that should fail once with a 500.
	failNext map[string]int

	httpServer *httptest.Server
}

// NewServer starts a fake backend.
func NewServer() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		categories: make(map[int64]*category.Category),
		receipts:   make(map[int64]*purchasing.PurchaseReceipt),
		users:      make(map[int64]*users.User),
		movements:  make(map[int64][]category.StockMovement),
		failNext:   make(map[string]int),
	}

	engine := gin.New()
	engine.Use(gzipResponses())

	engine.GET("/categories", s.listCategories)
	engine.POST("/categories", s.createCategory)
	engine.PUT("/categories/:id", s.updateCategory)
	engine.DELETE("/categories/:id", s.deleteCategory)
	engine.POST("/categories/:id/stock-adjustment", s.adjustStock)

	engine.GET("/purchase-receipts", s.listReceipts)
	engine.POST("/purchase-receipts", s.createReceipt)
	engine.PUT("/purchase-receipts/:id", s.updateReceipt)
	engine.PATCH("/purchase-receipts/:id/status", s.updateReceiptStatus)
	engine.DELETE("/purchase-receipts/:id", s.deleteReceipt)

	engine.POST("/products/bulk", s.createProducts)

	engine.GET("/users", s.listUsers)
	engine.POST("/users", s.createUser)
	engine.PUT("/users/:id", s.updateUser)
	engine.DELETE("/users/:id", s.deleteUser)

	engine.GET("/dashboard/stats", s.dashboardStats)
	engine.GET("/dashboard/category-rows", s.dashboardCategoryRows)
	engine.GET("/dashboard/transaction-rows", s.dashboardTransactionRows)

	s.httpServer = httptest.NewServer(engine)
	return s
}

// URL returns the backend's base URL.
func (s *Server) URL() string { return s.httpServer.URL }

// Close shuts the backend down.
func (s *Server) Close() { s.httpServer.Close() }

// FailNext makes the named operation fail once with a 500. Operations:
// "categories.list", "stock.adjust", "receipts.create", "receipts.status",
// "products.create", "users.list".
func (s *Server) FailNext(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[op]++
}

func (s *Server) shouldFail(op string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext[op] > 0 {
		s.failNext[op]--
		return true
	}
	return false
}

// --- Seeding and inspection ---

// SeedCategory inserts a category, assigning an id when absent, and
// returns the stored value.
func (s *Server) SeedCategory(c category.Category) category.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.nextCategoryID++
		c.ID = s.nextCategoryID
	} else if c.ID > s.nextCategoryID {
		s.nextCategoryID = c.ID
	}
	category.RecomputeLowStock(&c)
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	s.categories[c.ID] = &c
	return c
}

// SeedUser inserts a user, assigning an id when absent.
func (s *Server) SeedUser(u users.User) users.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		s.nextUserID++
		u.ID = s.nextUserID
	} else if u.ID > s.nextUserID {
		s.nextUserID = u.ID
	}
	s.users[u.ID] = &u
	return u
}

// SetStats configures the dashboard summary payload.
func (s *Server) SetStats(stats dashboard.RawStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

// SetCategoryRows configures the raw histogram rows.
func (s *Server) SetCategoryRows(rows []dashboard.CategoryRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categoryRows = rows
}

// SetTransactionRows configures the raw trend rows.
func (s *Server) SetTransactionRows(rows []dashboard.TransactionRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactionRows = rows
}

// Category returns the stored category.
func (s *Server) Category(categoryID int64) (category.Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[categoryID]
	if !ok {
		return category.Category{}, false
	}
	return *c, true
}

// Movements returns the recorded movements for a category, oldest first.
func (s *Server) Movements(categoryID int64) []category.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]category.StockMovement, len(s.movements[categoryID]))
	copy(out, s.movements[categoryID])
	return out
}

// Products returns every product created so far.
func (s *Server) Products() []purchasing.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]purchasing.Product, len(s.products))
	copy(out, s.products)
	return out
}

// Receipt returns the stored receipt.
func (s *Server) Receipt(receiptID int64) (purchasing.PurchaseReceipt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[receiptID]
	if !ok {
		return purchasing.PurchaseReceipt{}, false
	}
	return *r, true
}

// --- Envelope helpers ---

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func okPage(c *gin.Context, data any, page, limit int, total int64) {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if totalPages < 1 {
		totalPages = 1
	}
	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"pagination": gin.H{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": totalPages,
			"hasNext":    page < totalPages,
			"hasPrev":    page > 1,
		},
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"success": false, "code": code, "message": message})
}

func failInternal(c *gin.Context) {
	fail(c, http.StatusInternalServerError, apperror.CodeInternal, "injected backend failure")
}

func pageParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return page, limit
}

func paginate[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func paramID(c *gin.Context) (int64, bool) {
	v, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, apperror.CodeValidation, "invalid id")
		return 0, false
	}
	return v, true
}

// gzipResponses compresses response bodies for clients that accept gzip,
// exercising the client's decompression path. The Content-Encoding header
// is set on first write only, so bodyless responses (204) stay unmarked.
func gzipResponses() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}
		gw := &gzipResponseWriter{ResponseWriter: c.Writer, gz: gzip.NewWriter(c.Writer)}
		c.Writer = gw
		c.Next()
		if gw.wrote {
			gw.gz.Close()
		}
	}
}

type gzipResponseWriter struct {
	gin.ResponseWriter
	gz    *gzip.Writer
	wrote bool
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.Header().Set("Content-Encoding", "gzip")
		w.wrote = true
	}
	return w.gz.Write(b)
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}
