package service

import (
	"context"
	"fmt"

	"github.com/tapline/tapline-backend/internal/counting/repository"
	"github.com/tapline/tapline-backend/pkg/logger"
)

// RatingComponents breaks the rating into its additive parts
type RatingComponents struct {
	Base              float64 `json:"base"`
	OnTimeBonus       float64 `json:"on_time_bonus"`
	CompletionBonus   float64 `json:"completion_bonus"`
	CancellationBonus float64 `json:"cancellation_bonus"`
	VolumeBonus       float64 `json:"volume_bonus"`
}

// VendorRating is a vendor's derived performance rating with its inputs
type VendorRating struct {
	VendorID         string           `json:"vendor_id"`
	VendorName       string           `json:"vendor_name,omitempty"`
	Rating           float64          `json:"rating"`
	TotalOrders      int              `json:"total_orders"`
	CompletedOrders  int              `json:"completed_orders"`
	CancelledOrders  int              `json:"cancelled_orders"`
	OnTimeDeliveries int              `json:"on_time_deliveries"`
	OnTimePercentage float64          `json:"on_time_percentage"`
	CompletionRate   float64          `json:"completion_rate"`
	CancellationRate float64          `json:"cancellation_rate"`
	AvgDeliveryDays  float64          `json:"avg_delivery_days"`
	Components       RatingComponents `json:"components"`
}

// ComputeVendorRating derives a 1-5 rating from aggregated order history.
// A vendor with no order history gets rating 0, never the formula.
func ComputeVendorRating(vendorID string, stats *repository.VendorOrderStats) *VendorRating {
	r := &VendorRating{
		VendorID:         vendorID,
		TotalOrders:      stats.TotalOrders,
		CompletedOrders:  stats.CompletedOrders,
		CancelledOrders:  stats.CancelledOrders,
		OnTimeDeliveries: stats.OnTimeDeliveries,
		AvgDeliveryDays:  stats.AvgDeliveryDays,
	}

	if stats.TotalOrders == 0 {
		return r
	}

	if stats.CompletedOrders > 0 {
		r.OnTimePercentage = float64(stats.OnTimeDeliveries) / float64(stats.CompletedOrders) * 100
	}
	r.CompletionRate = float64(stats.CompletedOrders) / float64(stats.TotalOrders) * 100
	r.CancellationRate = float64(stats.CancelledOrders) / float64(stats.TotalOrders) * 100

	r.Components.Base = 3.0

	// On-time delivery: only judged once there are completed deliveries
	if stats.CompletedOrders > 0 {
		switch {
		case r.OnTimePercentage >= 95:
			r.Components.OnTimeBonus = 1.5
		case r.OnTimePercentage >= 85:
			r.Components.OnTimeBonus = 1.0
		case r.OnTimePercentage >= 75:
			r.Components.OnTimeBonus = 0.5
		case r.OnTimePercentage < 50:
			r.Components.OnTimeBonus = -1.0
		}
	}

	switch {
	case r.CompletionRate >= 95:
		r.Components.CompletionBonus = 1.0
	case r.CompletionRate >= 85:
		r.Components.CompletionBonus = 0.5
	case r.CompletionRate < 70:
		r.Components.CompletionBonus = -0.5
	}

	switch {
	case stats.CancelledOrders == 0:
		r.Components.CancellationBonus = 0.5
	case r.CancellationRate > 20:
		r.Components.CancellationBonus = -1.0
	case r.CancellationRate > 10:
		r.Components.CancellationBonus = -0.5
	}

	if stats.CompletedOrders >= 50 {
		r.Components.VolumeBonus = 0.3
	}

	rating := r.Components.Base +
		r.Components.OnTimeBonus +
		r.Components.CompletionBonus +
		r.Components.CancellationBonus +
		r.Components.VolumeBonus

	if rating > 5 {
		rating = 5
	}
	if rating < 1 {
		rating = 1
	}
	r.Rating = rating

	return r
}

// VendorRatingService derives vendor performance ratings from order history
type VendorRatingService struct {
	vendorRepo *repository.VendorRepository
	logger     *logger.Logger
}

// NewVendorRatingService creates a new vendor rating service
func NewVendorRatingService(vendorRepo *repository.VendorRepository, log *logger.Logger) *VendorRatingService {
	return &VendorRatingService{
		vendorRepo: vendorRepo,
		logger:     log,
	}
}

// Rating computes the rating for one vendor
func (s *VendorRatingService) Rating(ctx context.Context, vendorID string) (*VendorRating, error) {
	vendor, err := s.vendorRepo.GetByID(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	stats, err := s.vendorRepo.GetOrderStats(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("vendor rating: order stats: %w", err)
	}

	rating := ComputeVendorRating(vendorID, stats)
	rating.VendorName = vendor.Name
	return rating, nil
}
