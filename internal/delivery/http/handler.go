package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/quotedesk/backend/internal/domain"
	"github.com/quotedesk/backend/internal/usecase"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	orgs     domain.OrganizationRepository
	catalog  *usecase.CatalogService
	matcher  *usecase.MatchingService
	quotes   *usecase.QuoteService
	products domain.CatalogRepository
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orgs domain.OrganizationRepository,
	catalog *usecase.CatalogService,
	matcher *usecase.MatchingService,
	quotes *usecase.QuoteService,
	products domain.CatalogRepository,
) *Handler {
	return &Handler{
		orgs:     orgs,
		catalog:  catalog,
		matcher:  matcher,
		quotes:   quotes,
		products: products,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "quotedesk-backend",
		"version": "1.0.0",
	})
}

// CreateOrganization handles POST /api/v1/orgs
func (h *Handler) CreateOrganization(c *gin.Context) {
	var req struct {
		Name                string  `json:"name" binding:"required"`
		ConfidenceThreshold float64 `json:"confidenceThreshold"`
		MarginThreshold     float64 `json:"marginThreshold"`
		DefaultTaxRate      string  `json:"defaultTaxRate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taxRate := decimal.Zero
	if req.DefaultTaxRate != "" {
		parsed, err := decimal.NewFromString(req.DefaultTaxRate)
		if err != nil || parsed.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "defaultTaxRate must be a non-negative decimal"})
			return
		}
		taxRate = parsed
	}

	org := &domain.Organization{
		Name:                req.Name,
		ConfidenceThreshold: req.ConfidenceThreshold,
		MarginThreshold:     req.MarginThreshold,
		DefaultTaxRate:      taxRate,
	}
	if err := h.orgs.Create(c.Request.Context(), org); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

// ImportCatalog handles POST /api/v1/orgs/:orgID/catalog/import
// Accepts a multipart "file" field or a raw CSV body.
func (h *Handler) ImportCatalog(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}

	reader := c.Request.Body
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
			return
		}
		defer f.Close()
		reader = f
	}

	summary, err := h.catalog.ImportCSV(c.Request.Context(), orgID, reader)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListCatalog handles GET /api/v1/orgs/:orgID/catalog
func (h *Handler) ListCatalog(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	products, err := h.products.ListProducts(c.Request.Context(), orgID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": products, "total": len(products)})
}

// UploadCompetitorRefs handles POST /api/v1/orgs/:orgID/competitor-refs
func (h *Handler) UploadCompetitorRefs(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var req struct {
		Refs []usecase.CompetitorRefInput `json:"refs" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.catalog.UploadCompetitorRefs(c.Request.Context(), orgID, req.Refs)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upserted": n})
}

// MatchItem handles POST /api/v1/orgs/:orgID/match
func (h *Handler) MatchItem(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var item domain.RawLineItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	org, err := h.orgs.GetByID(c.Request.Context(), orgID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	snapshot, err := h.quotes.Snapshot(c.Request.Context(), orgID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	result := h.matcher.Match(item, snapshot, h.matcher.Threshold(org))
	c.JSON(http.StatusOK, result)
}

// MatchBatch handles POST /api/v1/orgs/:orgID/match/batch
func (h *Handler) MatchBatch(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var req struct {
		Items []domain.RawLineItem `json:"items" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	org, err := h.orgs.GetByID(c.Request.Context(), orgID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	snapshot, err := h.quotes.Snapshot(c.Request.Context(), orgID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	results, err := h.matcher.MatchBatch(c.Request.Context(), req.Items, snapshot, h.matcher.Threshold(org))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Suggestions handles GET /api/v1/orgs/:orgID/suggestions?q=...&sku=...&limit=N
func (h *Handler) Suggestions(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	query := c.Query("q")
	if query == "" && c.Query("sku") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q or sku query parameter required"})
		return
	}
	limit := 5
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	snapshot, err := h.quotes.Snapshot(c.Request.Context(), orgID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"suggestions": h.matcher.Suggest(query, c.Query("sku"), snapshot, limit),
	})
}

// CreateQuote handles POST /api/v1/orgs/:orgID/quotes
func (h *Handler) CreateQuote(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var req struct {
		CustomerName  string               `json:"customerName" binding:"required"`
		CustomerEmail string               `json:"customerEmail"`
		SourceEmailID string               `json:"sourceEmailId"`
		TaxRate       *string              `json:"taxRate"`
		Items         []domain.RawLineItem `json:"items" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := usecase.CreateQuoteInput{
		OrganizationID: orgID,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		SourceEmailID:  req.SourceEmailID,
		Items:          req.Items,
	}
	if req.TaxRate != nil {
		rate, err := decimal.NewFromString(*req.TaxRate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "taxRate must be a decimal"})
			return
		}
		in.TaxRate = &rate
	}

	result, err := h.quotes.CreateFromExtraction(c.Request.Context(), in)
	if err != nil {
		h.renderError(c, err)
		return
	}
	status := http.StatusCreated
	if !result.Created {
		// Replay of an already-processed source email
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// GetQuote handles GET /api/v1/orgs/:orgID/quotes/:quoteID
func (h *Handler) GetQuote(c *gin.Context) {
	orgID, quoteID, ok := h.orgAndQuoteID(c)
	if !ok {
		return
	}
	quote, flags, err := h.quotes.Get(c.Request.Context(), orgID, quoteID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": quote, "marginFlags": flags})
}

// AddQuoteItem handles POST /api/v1/orgs/:orgID/quotes/:quoteID/items
func (h *Handler) AddQuoteItem(c *gin.Context) {
	orgID, quoteID, ok := h.orgAndQuoteID(c)
	if !ok {
		return
	}
	in, ok := h.bindItemInput(c)
	if !ok {
		return
	}
	quote, err := h.quotes.AddItem(c.Request.Context(), orgID, quoteID, in)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// UpdateQuoteItem handles PUT /api/v1/orgs/:orgID/quotes/:quoteID/items/:itemID
func (h *Handler) UpdateQuoteItem(c *gin.Context) {
	orgID, quoteID, ok := h.orgAndQuoteID(c)
	if !ok {
		return
	}
	itemID, ok := h.uintParam(c, "itemID")
	if !ok {
		return
	}
	in, ok := h.bindItemInput(c)
	if !ok {
		return
	}
	quote, err := h.quotes.UpdateItem(c.Request.Context(), orgID, quoteID, itemID, in)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// RemoveQuoteItem handles DELETE /api/v1/orgs/:orgID/quotes/:quoteID/items/:itemID
func (h *Handler) RemoveQuoteItem(c *gin.Context) {
	orgID, quoteID, ok := h.orgAndQuoteID(c)
	if !ok {
		return
	}
	itemID, ok := h.uintParam(c, "itemID")
	if !ok {
		return
	}
	quote, err := h.quotes.RemoveItem(c.Request.Context(), orgID, quoteID, itemID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// AutoMatch handles POST /api/v1/orgs/:orgID/quotes/:quoteID/auto-match
func (h *Handler) AutoMatch(c *gin.Context) {
	orgID, quoteID, ok := h.orgAndQuoteID(c)
	if !ok {
		return
	}
	result, err := h.quotes.AutoMatchAll(c.Request.Context(), orgID, quoteID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// bindItemInput parses an item add/edit body with decimal fields as strings
func (h *Handler) bindItemInput(c *gin.Context) (usecase.ItemInput, bool) {
	var req struct {
		ProductID   *uint  `json:"productId"`
		Description string `json:"description"`
		Quantity    string `json:"quantity" binding:"required"`
		UnitPrice   string `json:"unitPrice" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return usecase.ItemInput{}, false
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be a decimal"})
		return usecase.ItemInput{}, false
	}
	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unitPrice must be a decimal"})
		return usecase.ItemInput{}, false
	}
	return usecase.ItemInput{
		ProductID:   req.ProductID,
		Description: req.Description,
		Quantity:    qty,
		UnitPrice:   price,
	}, true
}

func (h *Handler) orgID(c *gin.Context) (uint, bool) {
	return h.uintParam(c, "orgID")
}

func (h *Handler) orgAndQuoteID(c *gin.Context) (uint, uint, bool) {
	orgID, ok := h.uintParam(c, "orgID")
	if !ok {
		return 0, 0, false
	}
	quoteID, ok := h.uintParam(c, "quoteID")
	if !ok {
		return 0, 0, false
	}
	return orgID, quoteID, true
}

func (h *Handler) uintParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(n), true
}

// renderError maps domain errors to HTTP responses
func (h *Handler) renderError(c *gin.Context, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, domain.ErrOrganizationNotFound),
		errors.Is(err, domain.ErrQuoteNotFound),
		errors.Is(err, domain.ErrQuoteItemNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrCustomerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "requestId": RequestID(c)})
	}
}
