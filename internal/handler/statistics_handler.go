package handler

import (
	"net/http"
	"time"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
}

func NewStatisticsHandler(statisticsService service.StatisticsService) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/statistics", middleware.RequireRole(model.RoleStaff, model.RoleAdmin), h.GetStatistics)
}

// GetStatistics returns negotiation metrics over a time range
// @Summary      Get statistics
// @Description  Aggregates quotation counts by status, accepted value, average rounds, and message volume over a time range
// @Tags         statistics
// @Produce      json
// @Security     BearerAuth
// @Param        start_date  query     string  false  "Start date (RFC3339, default 30 days ago)"
// @Param        end_date    query     string  false  "End date (RFC3339, default now)"
// @Success      200         {object}  response.Response{data=service.StatisticsResponse}
// @Failure      400         {object}  response.Response
// @Router       /statistics [get]
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	endDate := time.Now()
	startDate := endDate.AddDate(0, 0, -30)

	if raw := c.Query("start_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid start_date, expected RFC3339"))
			return
		}
		startDate = parsed
	}
	if raw := c.Query("end_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid end_date, expected RFC3339"))
			return
		}
		endDate = parsed
	}

	stats, err := h.statisticsService.GetStatistics(c.Request.Context(), startDate, endDate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to compute statistics"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}
