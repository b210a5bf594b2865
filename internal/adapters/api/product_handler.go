package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/floroz/winbid/internal/domain/products"
	"github.com/floroz/winbid/internal/validation"
)

type ProductService interface {
	CreateProduct(ctx context.Context, cmd products.CreateProductCommand) (*products.Product, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*products.Product, error)
	ListProducts(ctx context.Context, query products.ListProductsQuery) ([]*products.Product, error)
	UpdateProduct(ctx context.Context, cmd products.UpdateProductCommand) (*products.Product, error)
	DeleteProduct(ctx context.Context, productID, requesterID uuid.UUID, requesterAdmin bool) error
}

type CreateProductRequest struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	ImageURL        string          `json:"imageUrl"`
	TotalBidsTarget int             `json:"totalBids"`
	UnitBidPrice    decimal.Decimal `json:"bidPrice"`
}

// UpdateProductRequest leaves absent fields untouched
type UpdateProductRequest struct {
	Name            *string          `json:"name"`
	Description     *string          `json:"description"`
	ImageURL        *string          `json:"imageUrl"`
	TotalBidsTarget *int             `json:"totalBids"`
	UnitBidPrice    *decimal.Decimal `json:"bidPrice"`
}

type ProductHandler struct {
	responder
	service ProductService
}

func NewProductHandler(service ProductService, r responder) *ProductHandler {
	return &ProductHandler{responder: r, service: service}
}

// ListProducts handles GET /api/products?limit&offset&open
func (h *ProductHandler) ListProducts(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		h.fail(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		h.fail(c, err)
		return
	}
	openOnly, _ := strconv.ParseBool(c.Query("open"))

	list, err := h.service.ListProducts(c.Request.Context(), products.ListProductsQuery{
		Limit:    limit,
		Offset:   offset,
		OpenOnly: openOnly,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, nonNil(list), "")
}

// GetProduct handles GET /api/products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := parseParam(c, h.responder, "id")
	if !ok {
		return
	}
	product, err := h.service.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, product, "")
}

// CreateProduct handles POST /api/products
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		h.fail(c, errUnauthenticated)
		return
	}

	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, validation.Field("body", "invalid request payload"))
		return
	}

	product, err := h.service.CreateProduct(c.Request.Context(), products.CreateProductCommand{
		Name:            req.Name,
		Description:     req.Description,
		ImageURL:        req.ImageURL,
		TotalBidsTarget: req.TotalBidsTarget,
		UnitBidPrice:    req.UnitBidPrice,
		OwnerID:         userID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("Product created", "product_id", product.ID, "owner_id", userID)
	JSONResponse(c, http.StatusCreated, product, "product created")
}

// UpdateProduct handles PUT /api/products/:id
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	userID, isAdmin, ok := currentUser(c)
	if !ok {
		h.fail(c, errUnauthenticated)
		return
	}
	id, ok := parseParam(c, h.responder, "id")
	if !ok {
		return
	}

	var req UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, validation.Field("body", "invalid request payload"))
		return
	}

	product, err := h.service.UpdateProduct(c.Request.Context(), products.UpdateProductCommand{
		ProductID:       id,
		RequesterID:     userID,
		RequesterAdmin:  isAdmin,
		Name:            req.Name,
		Description:     req.Description,
		ImageURL:        req.ImageURL,
		UnitBidPrice:    req.UnitBidPrice,
		TotalBidsTarget: req.TotalBidsTarget,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, product, "product updated")
}

// DeleteProduct handles DELETE /api/products/:id
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	userID, isAdmin, ok := currentUser(c)
	if !ok {
		h.fail(c, errUnauthenticated)
		return
	}
	id, ok := parseParam(c, h.responder, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(c.Request.Context(), id, userID, isAdmin); err != nil {
		h.fail(c, err)
		return
	}
	JSONResponse(c, http.StatusOK, nil, "product deleted")
}

// parseParam reads a uuid path parameter, answering 400 when it is malformed
func parseParam(c *gin.Context, r responder, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		r.fail(c, validation.Field(name, "must be a valid id"))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, validation.Field(name, "must be a non-negative integer")
	}
	return n, nil
}
