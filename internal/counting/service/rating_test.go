package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapline/tapline-backend/internal/counting/repository"
)

func TestComputeVendorRating_TopPerformer(t *testing.T) {
	// 58/60 completed (96.7%), 56/58 on time (96.6%), zero cancellations,
	// volume over 50: every bonus applies and the raw 6.3 clamps to 5.
	stats := &repository.VendorOrderStats{
		TotalOrders:      60,
		CompletedOrders:  58,
		CancelledOrders:  0,
		OnTimeDeliveries: 56,
		AvgDeliveryDays:  3.2,
	}

	rating := ComputeVendorRating("vendor-1", stats)

	assert.Equal(t, 1.5, rating.Components.OnTimeBonus)
	assert.Equal(t, 1.0, rating.Components.CompletionBonus)
	assert.Equal(t, 0.5, rating.Components.CancellationBonus)
	assert.Equal(t, 0.3, rating.Components.VolumeBonus)
	assert.Equal(t, 5.0, rating.Rating)
}

func TestComputeVendorRating_ZeroOrders(t *testing.T) {
	rating := ComputeVendorRating("vendor-1", &repository.VendorOrderStats{})

	assert.Equal(t, 0.0, rating.Rating, "a vendor with no history has no rating, not a formula artifact")
	assert.Equal(t, 0.0, rating.Components.Base)
}

func TestComputeVendorRating_PoorPerformer(t *testing.T) {
	// 6/10 completed (60% → -0.5), 2/6 on time (33% → -1.0),
	// 3/10 cancelled (30% → -1.0): raw 0.5 clamps up to 1.
	stats := &repository.VendorOrderStats{
		TotalOrders:      10,
		CompletedOrders:  6,
		CancelledOrders:  3,
		OnTimeDeliveries: 2,
	}

	rating := ComputeVendorRating("vendor-1", stats)

	assert.Equal(t, -1.0, rating.Components.OnTimeBonus)
	assert.Equal(t, -0.5, rating.Components.CompletionBonus)
	assert.Equal(t, -1.0, rating.Components.CancellationBonus)
	assert.Equal(t, 0.0, rating.Components.VolumeBonus)
	assert.Equal(t, 1.0, rating.Rating)
}

func TestComputeVendorRating_MidTiers(t *testing.T) {
	// 9/10 completed (90% → +0.5), 8/9 on time (88.9% → +1.0),
	// 1/10 cancelled (10%, not above → 0): 3 + 1 + 0.5 = 4.5
	stats := &repository.VendorOrderStats{
		TotalOrders:      10,
		CompletedOrders:  9,
		CancelledOrders:  1,
		OnTimeDeliveries: 8,
	}

	rating := ComputeVendorRating("vendor-1", stats)

	assert.Equal(t, 1.0, rating.Components.OnTimeBonus)
	assert.Equal(t, 0.5, rating.Components.CompletionBonus)
	assert.Equal(t, 0.0, rating.Components.CancellationBonus)
	assert.InDelta(t, 4.5, rating.Rating, 0.001)
}

func TestComputeVendorRating_NoCompletedDeliveries(t *testing.T) {
	// Orders exist but none delivered yet: on-time is not judged
	stats := &repository.VendorOrderStats{
		TotalOrders:     4,
		CompletedOrders: 0,
	}

	rating := ComputeVendorRating("vendor-1", stats)

	assert.Equal(t, 0.0, rating.Components.OnTimeBonus)
	assert.Greater(t, rating.Rating, 0.0)
}

func TestComputeVendorRating_AlwaysInRange(t *testing.T) {
	cases := []*repository.VendorOrderStats{
		{TotalOrders: 1, CompletedOrders: 0, CancelledOrders: 1},
		{TotalOrders: 100, CompletedOrders: 100, OnTimeDeliveries: 100},
		{TotalOrders: 50, CompletedOrders: 10, CancelledOrders: 40, OnTimeDeliveries: 0},
		{TotalOrders: 3, CompletedOrders: 3, OnTimeDeliveries: 1},
	}

	for _, stats := range cases {
		rating := ComputeVendorRating("vendor-1", stats)
		require.GreaterOrEqual(t, rating.Rating, 1.0, "%+v", stats)
		require.LessOrEqual(t, rating.Rating, 5.0, "%+v", stats)
	}
}

func TestResolveWorkflow(t *testing.T) {
	t.Run("missing type fails", func(t *testing.T) {
		_, err := ResolveWorkflow("")
		assert.Error(t, err)
	})

	t.Run("unknown type fails", func(t *testing.T) {
		_, err := ResolveWorkflow("midnight_audit")
		assert.Error(t, err)
	})

	t.Run("quick_update is the only auto-apply workflow", func(t *testing.T) {
		for _, wt := range WorkflowTypes() {
			cfg, err := ResolveWorkflow(wt)
			require.NoError(t, err)
			assert.Equal(t, wt == WorkflowQuickUpdate, cfg.AutoApplyChanges, wt)
			assert.NotEmpty(t, cfg.Instructions)
		}
	})
}
