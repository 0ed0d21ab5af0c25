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

type QuotationHandler struct {
	quotationService service.QuotationService
}

func NewQuotationHandler(quotationService service.QuotationService) *QuotationHandler {
	return &QuotationHandler{quotationService: quotationService}
}

func (h *QuotationHandler) RegisterRoutes(router *gin.RouterGroup) {
	quotations := router.Group("/quotations")
	{
		quotations.POST("", middleware.RequireRole(model.RoleCustomer), h.CreateQuotation)
		quotations.GET("", middleware.RequireRole(model.RoleCustomer, model.RoleStaff, model.RoleAdmin), h.ListQuotations)
		quotations.GET("/:id", middleware.RequireRole(model.RoleCustomer, model.RoleStaff, model.RoleAdmin), h.GetQuotation)
		quotations.POST("/:id/items", middleware.RequireRole(model.RoleCustomer), h.AddLineItem)
		quotations.DELETE("/:id/items/:itemId", middleware.RequireRole(model.RoleCustomer), h.RemoveLineItem)
		quotations.GET("/:id/items/:itemId/revisions", middleware.RequireRole(model.RoleCustomer, model.RoleStaff, model.RoleAdmin), h.ListRevisions)
		quotations.PUT("/:id/cancel", middleware.RequireRole(model.RoleCustomer), h.CancelQuotation)
	}
}

// CreateQuotation opens an empty draft quotation for the authenticated customer
// @Summary      Create quotation
// @Description  Opens a draft quotation owned by the authenticated customer
// @Tags         quotations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateQuotationRequest  true  "Create Quotation Payload"
// @Success      201      {object}  response.Response{data=service.QuotationResponse}
// @Failure      400      {object}  response.Response
// @Router       /quotations [post]
func (h *QuotationHandler) CreateQuotation(c *gin.Context) {
	var req service.CreateQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Note is optional; allow an empty body
		req = service.CreateQuotationRequest{}
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	quotation, err := h.quotationService.CreateQuotation(c.Request.Context(), userIDStr, req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, quotation))
}

// ListQuotations returns quotations, optionally filtered by status or customer
// @Summary      List quotations
// @Description  Retrieves a paginated list of quotations; customers only see their own
// @Tags         quotations
// @Produce      json
// @Security     BearerAuth
// @Param        status       query     string  false  "Filter by status"
// @Param        customer_id  query     string  false  "Filter by customer (staff/admin only)"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Number of items per page (default 20)"
// @Success      200          {object}  response.Response{data=object}
// @Router       /quotations [get]
func (h *QuotationHandler) ListQuotations(c *gin.Context) {
	params := pagination.Parse(c)

	filter := service.QuotationFilter{
		Status:     c.Query("status"),
		CustomerID: c.Query("customer_id"),
		Page:       params.Page,
		Limit:      params.Limit,
	}

	// Customers are pinned to their own quotations regardless of the filter
	if role, _ := c.Get("userRole"); role == model.RoleCustomer {
		userID, _ := c.Get("userID")
		filter.CustomerID, _ = userID.(string)
	}

	quotations, total, err := h.quotationService.ListQuotations(c.Request.Context(), filter)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"quotations": quotations,
		"total":      total,
		"page":       params.Page,
		"limit":      params.Limit,
	}))
}

// GetQuotation returns the full snapshot of one quotation
// @Summary      Get quotation snapshot
// @Description  Returns the quotation with its line items at their current revisions and the full round history
// @Tags         quotations
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Quotation ID"
// @Success      200  {object}  response.Response{data=service.QuotationSnapshot}
// @Failure      404  {object}  response.Response
// @Router       /quotations/{id} [get]
func (h *QuotationHandler) GetQuotation(c *gin.Context) {
	snapshot, err := h.quotationService.GetSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, snapshot))
}

// AddLineItem adds a catalog product detail to a quotation
// @Summary      Add line item
// @Description  Adds a product detail to the quotation; fails if it is already listed
// @Tags         quotations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true  "Quotation ID"
// @Param        payload  body      service.AddLineItemRequest  true  "Add Line Item Payload"
// @Success      201      {object}  response.Response{data=service.LineItemResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /quotations/{id}/items [post]
func (h *QuotationHandler) AddLineItem(c *gin.Context) {
	var req service.AddLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	item, err := h.quotationService.AddLineItem(c.Request.Context(), c.Param("id"), userIDStr, req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, item))
}

// RemoveLineItem removes a line item and its revision history
// @Summary      Remove line item
// @Description  Removes a line item; a submitted quotation must keep at least one
// @Tags         quotations
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      string  true  "Quotation ID"
// @Param        itemId  path      string  true  "Line Item ID"
// @Success      200     {object}  response.Response
// @Failure      404     {object}  response.Response
// @Failure      409     {object}  response.Response
// @Router       /quotations/{id}/items/{itemId} [delete]
func (h *QuotationHandler) RemoveLineItem(c *gin.Context) {
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	err := h.quotationService.RemoveLineItem(c.Request.Context(), c.Param("id"), c.Param("itemId"), userIDStr)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Line item removed"))
}

// ListRevisions returns a line item's full price history
// @Summary      List line item revisions
// @Description  Retrieves every revision of a line item in version order
// @Tags         quotations
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      string  true  "Quotation ID"
// @Param        itemId  path      string  true  "Line Item ID"
// @Success      200     {object}  response.Response{data=[]service.RevisionResponse}
// @Failure      404     {object}  response.Response
// @Router       /quotations/{id}/items/{itemId}/revisions [get]
func (h *QuotationHandler) ListRevisions(c *gin.Context) {
	revisions, err := h.quotationService.ListRevisions(c.Request.Context(), c.Param("id"), c.Param("itemId"))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, revisions))
}

// CancelQuotation archives the quotation on the customer's request
// @Summary      Cancel quotation
// @Description  Moves the quotation to CANCELLED; any open round is closed as rejected
// @Tags         quotations
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Quotation ID"
// @Success      200  {object}  response.Response{data=service.QuotationResponse}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /quotations/{id}/cancel [put]
func (h *QuotationHandler) CancelQuotation(c *gin.Context) {
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	quotation, err := h.quotationService.Cancel(c.Request.Context(), c.Param("id"), userIDStr)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quotation))
}
