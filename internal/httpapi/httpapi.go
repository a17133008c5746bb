package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"draqua/backend/internal/domain"
	"draqua/backend/internal/metrics"
	"draqua/backend/internal/revenue"
	"draqua/backend/internal/service"
)

const (
	defaultLowStockThreshold = 10
	maxBodyBytes             = 1 << 20
)

// Reminders exposes the latest computed reminder set.
type Reminders interface {
	Current() domain.ReminderResponse
}

// Persistence reports whether the in-memory state has been written out.
type Persistence interface {
	Status() domain.PersistenceStatus
}

type Config struct {
	AllowedOrigin     string
	LowStockThreshold int
	Logger            *slog.Logger
	Metrics           *metrics.Metrics
	Now               func() time.Time
}

type API struct {
	service     *service.Service
	reminders   Reminders
	persistence Persistence

	allowedOrigin     string
	lowStockThreshold int
	logger            *slog.Logger
	metrics           *metrics.Metrics
	now               func() time.Time
}

var bindingOnce sync.Once

// initBinding makes gin's validator report JSON field names and reject
// unknown request fields.
func initBinding() {
	bindingOnce.Do(func() {
		binding.EnableDecoderDisallowUnknownFields = true
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(domain.JSONFieldName)
		}
	})
}

func New(svc *service.Service, reminders Reminders, persistence Persistence, cfg Config) *API {
	initBinding()

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LowStockThreshold < 1 {
		cfg.LowStockThreshold = defaultLowStockThreshold
	}
	return &API{
		service:           svc,
		reminders:         reminders,
		persistence:       persistence,
		allowedOrigin:     cfg.AllowedOrigin,
		lowStockThreshold: cfg.LowStockThreshold,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		now:               cfg.Now,
	}
}

func (a *API) Handler() http.Handler {
	router := gin.New()
	router.Use(a.recovery())
	router.Use(cors.New(a.corsConfig()))
	router.Use(a.secureHeaders())
	router.Use(a.requestLogger("/healthz", "/metrics"))
	router.Use(a.observe())

	router.NoRoute(func(c *gin.Context) {
		a.writeError(c, http.StatusNotFound, codeNotFound, "route not found", nil)
	})

	router.GET("/healthz", a.handleHealth)
	router.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/inventory", a.handleListInventory)
		api.POST("/inventory", a.handleAddItem)
		api.GET("/inventory/low-stock", a.handleLowStock)
		api.GET("/inventory/:id", a.handleGetItem)
		api.PATCH("/inventory/:id", a.handleEditItem)
		api.DELETE("/inventory/:id", a.handleDeleteItem)
		api.POST("/inventory/:id/stock-in", a.handleStockIn)
		api.POST("/inventory/:id/stock-out", a.handleStockOut)

		api.GET("/customers", a.handleListCustomers)
		api.POST("/customers", a.handleAddCustomer)
		api.GET("/customers/:id", a.handleGetCustomer)
		api.DELETE("/customers/:id", a.handleDeleteCustomer)

		api.GET("/sales", a.handleListSales)
		api.GET("/sales/:invoice", a.handleGetSale)
		api.POST("/sales", a.handleCommitSale)

		api.GET("/reminders", a.handleReminders)
		api.GET("/revenue", a.handleRevenue)
		api.GET("/summary", a.handleSummary)
		api.GET("/persistence", a.handlePersistence)
	}

	return router
}

func (a *API) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	origin := strings.TrimSpace(a.allowedOrigin)
	if origin == "" || origin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = []string{origin}
	}
	return cfg
}

func (a *API) secureHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")

		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}
		c.Next()
	}
}

func (a *API) requestLogger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, path := range skip {
		skipped[path] = true
	}
	return func(c *gin.Context) {
		if skipped[c.Request.URL.Path] {
			c.Next()
			return
		}
		startedAt := time.Now()
		c.Next()
		a.logger.InfoContext(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(startedAt).String(),
		)
	}
}

func (a *API) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		startedAt := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		a.metrics.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(startedAt))
	}
}

func (a *API) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.ErrorContext(c.Request.Context(), "panic recovered",
					"error", rec,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
				)
				a.writeError(c, http.StatusInternalServerError, codeInternal, "internal server error", nil)
			}
		}()
		c.Next()
	}
}

func (a *API) handleHealth(c *gin.Context) {
	status := a.persistence.Status()
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"durable": status.Durable,
		"at":      a.now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleListInventory(c *gin.Context) {
	c.JSON(http.StatusOK, a.service.Inventory())
}

func (a *API) handleAddItem(c *gin.Context) {
	var req domain.ItemCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondBindError(c, err)
		return
	}

	item, err := a.service.AddItem(c.Request.Context(), req)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (a *API) handleLowStock(c *gin.Context) {
	threshold := parsePositive(c.Query("threshold"), a.lowStockThreshold, 0)
	c.JSON(http.StatusOK, domain.LowStockResponse{
		Threshold: threshold,
		Items:     a.service.LowStock(threshold),
	})
}

func (a *API) handleGetItem(c *gin.Context) {
	item, err := a.service.Item(domain.ID(c.Param("id")))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (a *API) handleEditItem(c *gin.Context) {
	var req domain.ItemUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondBindError(c, err)
		return
	}

	item, err := a.service.EditItem(c.Request.Context(), domain.ID(c.Param("id")), req)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (a *API) handleDeleteItem(c *gin.Context) {
	if err := a.service.DeleteItem(c.Request.Context(), domain.ID(c.Param("id"))); err != nil {
		a.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleStockIn(c *gin.Context) {
	a.handleStockAdjust(c, a.service.StockIn)
}

func (a *API) handleStockOut(c *gin.Context) {
	a.handleStockAdjust(c, a.service.StockOut)
}

func (a *API) handleStockAdjust(c *gin.Context, adjust func(ctx context.Context, id domain.ID, amount int) (domain.InventoryItem, error)) {
	var req domain.StockAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondBindError(c, err)
		return
	}

	item, err := adjust(c.Request.Context(), domain.ID(c.Param("id")), req.Amount)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (a *API) handleListCustomers(c *gin.Context) {
	c.JSON(http.StatusOK, a.service.Customers())
}

func (a *API) handleAddCustomer(c *gin.Context) {
	var req domain.CustomerCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondBindError(c, err)
		return
	}

	customer, err := a.service.AddCustomer(c.Request.Context(), req)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (a *API) handleGetCustomer(c *gin.Context) {
	customer, err := a.service.Customer(domain.ID(c.Param("id")))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (a *API) handleDeleteCustomer(c *gin.Context) {
	if err := a.service.DeleteCustomer(c.Request.Context(), domain.ID(c.Param("id"))); err != nil {
		a.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleListSales(c *gin.Context) {
	sales := a.service.Sales()
	if raw, ok := c.GetQuery("recent"); ok {
		sales = revenue.Recent(sales, parsePositive(raw, 5, 100))
	}
	c.JSON(http.StatusOK, domain.SaleListResponse{Sales: sales})
}

func (a *API) handleGetSale(c *gin.Context) {
	sale, err := a.service.Sale(c.Param("invoice"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *API) handleCommitSale(c *gin.Context) {
	var req domain.CommitSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.respondBindError(c, err)
		return
	}

	receipt, err := a.service.CommitSale(c.Request.Context(), req)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

func (a *API) handleReminders(c *gin.Context) {
	c.JSON(http.StatusOK, a.reminders.Current())
}

func (a *API) handleRevenue(c *gin.Context) {
	c.JSON(http.StatusOK, revenue.Summarize(a.service.Sales(), a.now()))
}

func (a *API) handleSummary(c *gin.Context) {
	c.JSON(http.StatusOK, a.service.Counts())
}

func (a *API) handlePersistence(c *gin.Context) {
	c.JSON(http.StatusOK, a.persistence.Status())
}

func parsePositive(raw string, fallback int, max int) int {
	value := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			value = parsed
		}
	}
	if max > 0 && value > max {
		return max
	}
	return value
}
