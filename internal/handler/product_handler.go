package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ProductHandler struct {
	productService service.ProductService
}

func NewProductHandler(productService service.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

func (h *ProductHandler) RegisterRoutes(router *gin.RouterGroup) {
	products := router.Group("/products")
	{
		products.GET("", middleware.RequireRole(model.RoleCustomer, model.RoleStaff, model.RoleAdmin), h.ListProducts)
		products.GET("/:id", middleware.RequireRole(model.RoleCustomer, model.RoleStaff, model.RoleAdmin), h.GetProduct)
		products.POST("", middleware.RequireRole(model.RoleStaff, model.RoleAdmin), h.CreateProduct)
		products.POST("/:id/details", middleware.RequireRole(model.RoleStaff, model.RoleAdmin), h.AddDetail)
	}
}

// CreateProduct adds a product (optionally with variants) to the catalog
// @Summary      Create product
// @Description  Creates a catalog product with optional detail variants
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateProductRequest  true  "Create Product Payload"
// @Success      201      {object}  response.Response{data=service.ProductResponse}
// @Failure      400      {object}  response.Response
// @Router       /products [post]
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	product, err := h.productService.CreateProduct(c.Request.Context(), userIDStr, req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, product))
}

// AddDetail adds a sellable variant to an existing product
// @Summary      Add product detail
// @Description  Adds a detail variant (price, units) to a product
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                              true  "Product ID"
// @Param        payload  body      service.CreateProductDetailRequest  true  "Create Detail Payload"
// @Success      201      {object}  response.Response{data=service.ProductDetailResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /products/{id}/details [post]
func (h *ProductHandler) AddDetail(c *gin.Context) {
	var req service.CreateProductDetailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	detail, err := h.productService.AddDetail(c.Request.Context(), c.Param("id"), userIDStr, req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, detail))
}

// GetProduct returns one product with its details
// @Summary      Get product
// @Description  Fetch a single product with its detail variants
// @Tags         products
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Product ID"
// @Success      200  {object}  response.Response{data=service.ProductResponse}
// @Failure      404  {object}  response.Response
// @Router       /products/{id} [get]
func (h *ProductHandler) GetProduct(c *gin.Context) {
	product, err := h.productService.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, product))
}

// ListProducts returns the paginated catalog
// @Summary      List products
// @Description  Retrieves a paginated list of catalog products
// @Tags         products
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Router       /products [get]
func (h *ProductHandler) ListProducts(c *gin.Context) {
	params := pagination.Parse(c)

	products, total, err := h.productService.ListProducts(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"products": products,
		"total":    total,
		"page":     params.Page,
		"limit":    params.Limit,
	}))
}
