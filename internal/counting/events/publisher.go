package events

import (
	"context"

	"github.com/tapline/tapline-backend/internal/counting/repository"
	"github.com/tapline/tapline-backend/pkg/logger"
	"github.com/tapline/tapline-backend/pkg/messaging"
	"github.com/tapline/tapline-backend/pkg/tenant"
)

// backend is the publishing surface CountingEventPublisher needs.
// *messaging.Publisher satisfies it in production.
type backend interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// CountingEventPublisher publishes counting-related events.
// A nil publisher is valid and drops every event, so callers can run
// without a broker (tests, local development).
type CountingEventPublisher struct {
	publisher backend
	logger    *logger.Logger
}

// NewCountingEventPublisher creates a new counting event publisher
func NewCountingEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*CountingEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeCountingEvents, "counting-service", log)
	if err != nil {
		return nil, err
	}

	return &CountingEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishSessionStarted publishes a session started event
func (p *CountingEventPublisher) PublishSessionStarted(ctx context.Context, s *repository.Session) {
	if p == nil {
		return
	}

	tenantID, _ := tenant.TenantID(ctx)

	data := messaging.SessionStartedEvent{
		SessionID:   s.ID,
		SessionType: s.WorkflowType,
		TenantID:    tenantID,
	}
	if s.LocationID != nil {
		data.LocationID = *s.LocationID
	}
	if s.StartedBy != nil {
		data.StartedBy = *s.StartedBy
	}

	if err := p.publisher.Publish(ctx, messaging.EventSessionStarted, data); err != nil {
		p.logger.Error().Err(err).Str("session_id", s.ID).Msg("failed to publish session started event")
	}
}

// PublishSessionCompleted publishes a session completed event
func (p *CountingEventPublisher) PublishSessionCompleted(ctx context.Context, s *repository.Session, summary *repository.SessionSummary, adjustments int) {
	if p == nil {
		return
	}

	tenantID, _ := tenant.TenantID(ctx)

	data := messaging.SessionCompletedEvent{
		SessionID:       s.ID,
		SessionType:     s.WorkflowType,
		ChangesApplied:  adjustments > 0,
		AdjustmentCount: adjustments,
		TenantID:        tenantID,
	}
	if summary != nil {
		data.TotalItems = summary.ItemCount
		data.TotalScans = summary.TotalScans
	}
	if s.StartedBy != nil {
		data.CompletedBy = *s.StartedBy
	}

	if err := p.publisher.Publish(ctx, messaging.EventSessionCompleted, data); err != nil {
		p.logger.Error().Err(err).Str("session_id", s.ID).Msg("failed to publish session completed event")
	}
}

// PublishSessionCancelled publishes a session cancelled event
func (p *CountingEventPublisher) PublishSessionCancelled(ctx context.Context, sessionID, cancelledBy string) {
	if p == nil {
		return
	}

	tenantID, _ := tenant.TenantID(ctx)

	data := messaging.SessionCancelledEvent{
		SessionID:   sessionID,
		CancelledBy: cancelledBy,
		TenantID:    tenantID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventSessionCancelled, data); err != nil {
		p.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to publish session cancelled event")
	}
}

// PublishScanRecorded publishes a scan recorded event
func (p *CountingEventPublisher) PublishScanRecorded(ctx context.Context, item *repository.SessionItem, quantity int, scannedBy string) {
	if p == nil {
		return
	}

	data := messaging.ScanRecordedEvent{
		SessionID: item.SessionID,
		Barcode:   item.Barcode,
		Quantity:  quantity,
		NewTotal:  item.Quantity,
		ScannedBy: scannedBy,
	}
	if item.ProductName != nil {
		data.ProductName = *item.ProductName
	}

	if err := p.publisher.Publish(ctx, messaging.EventScanRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("session_id", item.SessionID).Msg("failed to publish scan recorded event")
	}
}

// PublishStockAdjusted publishes a stock adjusted event
func (p *CountingEventPublisher) PublishStockAdjusted(ctx context.Context, item *repository.InventoryItem, oldQuantity int, reason, sessionID, performedBy string) {
	if p == nil {
		return
	}

	data := messaging.StockAdjustedEvent{
		ItemID:      item.ID,
		OldQuantity: oldQuantity,
		NewQuantity: item.CurrentQuantity,
		Reason:      reason,
		SessionID:   sessionID,
		PerformedBy: performedBy,
	}
	if item.Barcode != nil {
		data.Barcode = *item.Barcode
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockAdjusted, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", item.ID).Msg("failed to publish stock adjusted event")
	}
}

// PublishAnomalyDetected publishes a stock anomaly event
func (p *CountingEventPublisher) PublishAnomalyDetected(ctx context.Context, data messaging.AnomalyDetectedEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, messaging.EventAnomalyDetected, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", data.ItemID).Msg("failed to publish anomaly detected event")
	}
}

// PublishReorderSuggested publishes a reorder suggestion event
func (p *CountingEventPublisher) PublishReorderSuggested(ctx context.Context, data messaging.ReorderSuggestedEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, messaging.EventReorderSuggested, data); err != nil {
		p.logger.Error().Err(err).Msg("failed to publish reorder suggested event")
	}
}

// PublishProductRegistered publishes a catalog write-through event
func (p *CountingEventPublisher) PublishProductRegistered(ctx context.Context, entry *repository.CatalogEntry) {
	if p == nil {
		return
	}

	data := messaging.ProductRegisteredEvent{
		ProductID: entry.ID,
		Barcode:   entry.Barcode,
		Name:      entry.Name,
		Source:    entry.Source,
	}

	if err := p.publisher.Publish(ctx, messaging.EventProductRegistered, data); err != nil {
		p.logger.Error().Err(err).Str("barcode", entry.Barcode).Msg("failed to publish product registered event")
	}
}
