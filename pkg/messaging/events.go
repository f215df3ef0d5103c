package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Session events
	EventSessionStarted   = "counting.session.started"
	EventSessionCompleted = "counting.session.completed"
	EventSessionCancelled = "counting.session.cancelled"

	// Scan events
	EventScanRecorded = "counting.scan.recorded"

	// Stock events
	EventStockAdjusted = "counting.stock.adjusted"

	// Anomaly events
	EventAnomalyDetected = "counting.anomaly.detected"

	// Reorder events
	EventReorderSuggested = "counting.reorder.suggested"

	// Catalog events
	EventProductRegistered = "counting.product.registered"
)

// Exchange names
const (
	ExchangeCountingEvents = "counting.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// Session Events

// SessionStartedEvent is published when a scan session is started
type SessionStartedEvent struct {
	SessionID   string `json:"session_id"`
	SessionType string `json:"session_type"`
	LocationID  string `json:"location_id,omitempty"`
	StartedBy   string `json:"started_by"`
	TenantID    string `json:"tenant_id"`
}

// SessionCompletedEvent is published when a scan session is completed
type SessionCompletedEvent struct {
	SessionID       string `json:"session_id"`
	SessionType     string `json:"session_type"`
	TotalItems      int    `json:"total_items"`
	TotalScans      int    `json:"total_scans"`
	ChangesApplied  bool   `json:"changes_applied"`
	AdjustmentCount int    `json:"adjustment_count"`
	CompletedBy     string `json:"completed_by"`
	TenantID        string `json:"tenant_id"`
}

// SessionCancelledEvent is published when a scan session is cancelled
type SessionCancelledEvent struct {
	SessionID   string `json:"session_id"`
	CancelledBy string `json:"cancelled_by"`
	TenantID    string `json:"tenant_id"`
}

// Scan Events

// ScanRecordedEvent is published when a barcode scan is recorded in a session
type ScanRecordedEvent struct {
	SessionID   string `json:"session_id"`
	Barcode     string `json:"barcode"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	NewTotal    int    `json:"new_total"`
	ScannedBy   string `json:"scanned_by"`
}

// Stock Events

// StockAdjustedEvent is published when inventory stock is adjusted
type StockAdjustedEvent struct {
	ItemID      string `json:"item_id"`
	Barcode     string `json:"barcode"`
	OldQuantity int    `json:"old_quantity"`
	NewQuantity int    `json:"new_quantity"`
	Reason      string `json:"reason"`
	SessionID   string `json:"session_id,omitempty"`
	PerformedBy string `json:"performed_by"`
}

// Anomaly Events

// AnomalyDetectedEvent is published when a stock level anomaly is flagged
type AnomalyDetectedEvent struct {
	ItemID      string `json:"item_id"`
	ItemName    string `json:"item_name"`
	AnomalyType string `json:"anomaly_type"`
	Severity    string `json:"severity"`
	Quantity    int    `json:"quantity"`
	ParLow      int    `json:"par_low"`
	ParHigh     int    `json:"par_high"`
	Message     string `json:"message"`
}

// Reorder Events

// ReorderSuggestedEvent is published when a reorder suggestion list is generated
type ReorderSuggestedEvent struct {
	SuggestionCount int   `json:"suggestion_count"`
	TotalCostCents  int64 `json:"total_cost_cents"`
	UrgentCount     int   `json:"urgent_count"`
}

// Catalog Events

// ProductRegisteredEvent is published when an external registry hit is
// written through to the local catalog
type ProductRegisteredEvent struct {
	ProductID string `json:"product_id"`
	Barcode   string `json:"barcode"`
	Name      string `json:"name"`
	Source    string `json:"source"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
