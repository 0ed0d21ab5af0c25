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

type NegotiationHandler struct {
	negotiationService service.NegotiationService
}

func NewNegotiationHandler(negotiationService service.NegotiationService) *NegotiationHandler {
	return &NegotiationHandler{negotiationService: negotiationService}
}

func (h *NegotiationHandler) RegisterRoutes(router *gin.RouterGroup) {
	negotiate := middleware.RequireRole(model.RoleCustomer, model.RoleStaff)

	quotations := router.Group("/quotations")
	{
		quotations.POST("/:id/proposals", negotiate, h.Propose)
		quotations.PUT("/:id/rounds/:roundId/accept", negotiate, h.Accept)
		quotations.PUT("/:id/rounds/:roundId/reject", negotiate, h.Reject)
	}

	rounds := router.Group("/rounds")
	{
		rounds.POST("/:id/messages", negotiate, h.AddMessage)
		rounds.GET("/:id/messages", middleware.RequireRole(model.RoleCustomer, model.RoleStaff, model.RoleAdmin), h.ListMessages)
	}
}

// Propose submits a full proposal, opening (or countering into) a round
// @Summary      Submit proposal
// @Description  Prices line items and opens a negotiation round; a proposal against the counterparty's open round counters it
// @Tags         negotiation
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                  true  "Quotation ID"
// @Param        payload  body      service.ProposeRequest  true  "Proposal Payload"
// @Success      201      {object}  response.Response{data=service.RoundResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /quotations/{id}/proposals [post]
func (h *NegotiationHandler) Propose(c *gin.Context) {
	var req service.ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	round, err := h.negotiationService.Propose(c.Request.Context(), c.Param("id"), userIDStr, req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, round))
}

// Accept closes the open round as accepted and finalizes the quotation
// @Summary      Accept proposal
// @Description  Accepts the counterparty's open round; the quotation becomes ACCEPTED
// @Tags         negotiation
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string  true  "Quotation ID"
// @Param        roundId  path      string  true  "Round ID"
// @Success      200      {object}  response.Response{data=service.RoundResponse}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /quotations/{id}/rounds/{roundId}/accept [put]
func (h *NegotiationHandler) Accept(c *gin.Context) {
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	round, err := h.negotiationService.RespondAccept(c.Request.Context(), c.Param("id"), c.Param("roundId"), userIDStr)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, round))
}

// Reject closes the open round as rejected and finalizes the quotation
// @Summary      Reject proposal
// @Description  Rejects the counterparty's open round; the quotation becomes REJECTED
// @Tags         negotiation
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string  true  "Quotation ID"
// @Param        roundId  path      string  true  "Round ID"
// @Success      200      {object}  response.Response{data=service.RoundResponse}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /quotations/{id}/rounds/{roundId}/reject [put]
func (h *NegotiationHandler) Reject(c *gin.Context) {
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	round, err := h.negotiationService.RespondReject(c.Request.Context(), c.Param("id"), c.Param("roundId"), userIDStr)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, round))
}

type addMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// AddMessage appends a free-text message to a round
// @Summary      Add round message
// @Description  Appends a message to the round's thread
// @Tags         negotiation
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string             true  "Round ID"
// @Param        payload  body      addMessageRequest  true  "Message Payload"
// @Success      201      {object}  response.Response{data=service.MessageResponse}
// @Failure      400      {object}  response.Response
// @Router       /rounds/{id}/messages [post]
func (h *NegotiationHandler) AddMessage(c *gin.Context) {
	var req addMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	message, err := h.negotiationService.AddMessage(c.Request.Context(), c.Param("id"), userIDStr, req.Body)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, message))
}

// ListMessages returns the round's messages in conversation order
// @Summary      List round messages
// @Description  Retrieves the round's messages ordered by sent time
// @Tags         negotiation
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      string  true   "Round ID"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Failure      404    {object}  response.Response
// @Router       /rounds/{id}/messages [get]
func (h *NegotiationHandler) ListMessages(c *gin.Context) {
	params := pagination.Parse(c)

	messages, total, err := h.negotiationService.ListMessages(c.Request.Context(), c.Param("id"), params.Page, params.Limit)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"messages": messages,
		"total":    total,
		"page":     params.Page,
		"limit":    params.Limit,
	}))
}
