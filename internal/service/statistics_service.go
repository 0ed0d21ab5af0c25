package service

import (
	"context"
	"time"

	"backend/internal/model"

	"gorm.io/gorm"
)

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type StatisticsResponse struct {
	TimeRangeStartDate time.Time     `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time     `json:"time_range_end_date"`
	QuotationsByStatus []StatusCount `json:"quotations_by_status"`
	AcceptedValue      float64       `json:"accepted_value"`
	AverageRounds      float64       `json:"average_rounds"`
	MessageCount       int64         `json:"message_count"`
}

type StatisticsService interface {
	GetStatistics(ctx context.Context, startDate, endDate time.Time) (StatisticsResponse, error)
}

type statisticsService struct {
	db *gorm.DB
}

func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

// GetStatistics aggregates negotiation metrics over the given time bracket
func (s *statisticsService) GetStatistics(ctx context.Context, startDate, endDate time.Time) (StatisticsResponse, error) {
	var response StatisticsResponse
	response.TimeRangeStartDate = startDate
	response.TimeRangeEndDate = endDate

	// Quotation counts grouped by status
	var counts []StatusCount
	s.db.WithContext(ctx).Model(&model.Quotation{}).
		Select("status, COUNT(*) as count").
		Where("created_at >= ? AND created_at <= ?", startDate, endDate).
		Group("status").
		Scan(&counts)
	response.QuotationsByStatus = counts

	// Total value of accepted quotations, priced at each line item's current
	// revision (latest_version). Raw Table() joins skip gorm's soft-delete
	// scope, so removed line items and their revisions are filtered explicitly.
	var accepted struct {
		Value float64
	}
	s.db.WithContext(ctx).Table("product_detail_quotation_revisions").
		Select("SUM(product_detail_quotation_revisions.quantity * product_detail_quotation_revisions.price) as value").
		Joins("JOIN product_detail_quotations ON product_detail_quotations.id = product_detail_quotation_revisions.product_detail_quotation_id").
		Joins("JOIN quotations ON quotations.id = product_detail_quotations.quotation_id").
		Where("product_detail_quotation_revisions.version = product_detail_quotations.latest_version").
		Where("product_detail_quotation_revisions.deleted_at IS NULL").
		Where("product_detail_quotations.deleted_at IS NULL").
		Where("quotations.status = ? AND quotations.created_at >= ? AND quotations.created_at <= ?", model.QuotationStatusAccepted, startDate, endDate).
		Scan(&accepted)
	response.AcceptedValue = accepted.Value

	// Average number of negotiation rounds per quotation
	var avg struct {
		Value float64
	}
	s.db.WithContext(ctx).Model(&model.Quotation{}).
		Select("AVG(round_count) as value").
		Where("created_at >= ? AND created_at <= ?", startDate, endDate).
		Scan(&avg)
	response.AverageRounds = avg.Value

	// Messages exchanged in the bracket
	s.db.WithContext(ctx).Model(&model.NegotiationMessage{}).
		Where("sent_at >= ? AND sent_at <= ?", startDate, endDate).
		Count(&response.MessageCount)

	return response, nil
}
