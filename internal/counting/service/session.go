package service

import (
	"context"
	"fmt"

	"github.com/tapline/tapline-backend/internal/counting/barcode"
	"github.com/tapline/tapline-backend/internal/counting/events"
	"github.com/tapline/tapline-backend/internal/counting/repository"
	"github.com/tapline/tapline-backend/pkg/errors"
	"github.com/tapline/tapline-backend/pkg/logger"
	"github.com/tapline/tapline-backend/pkg/messaging"
)

// Soft scan error codes. These travel inside a 200 response so batch
// callers can keep processing.
const (
	ScanErrorInvalidSession  = "invalid_session"
	ScanErrorInvalidBarcode  = "invalid_barcode"
	ScanErrorInvalidQuantity = "invalid_quantity"
)

// Scan actions
const (
	ActionAddedNew        = "added_new"
	ActionUpdatedExisting = "updated_existing"
)

// ScanError is a per-scan soft failure
type ScanError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScanResult is the outcome of one scan: either Item+Action or Error
type ScanResult struct {
	Item    *repository.SessionItem  `json:"item,omitempty"`
	Action  string                   `json:"action,omitempty"`
	Product *repository.CatalogEntry `json:"product,omitempty"`
	Error   *ScanError               `json:"error,omitempty"`
}

// ScanRequest carries one scan's input
type ScanRequest struct {
	SessionID  string
	Barcode    string
	Quantity   int
	LocationID *string
	Notes      *string
	ScannedBy  string
}

// BatchEntry is one entry of a batch scan
type BatchEntry struct {
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity"`
}

// BatchScanSummary aggregates a batch scan run
type BatchScanSummary struct {
	TotalEntries    int `json:"total_entries"`
	SuccessfulScans int `json:"successful_scans"`
	Errors          int `json:"errors"`
}

// BatchScanResult is the outcome of a batch scan
type BatchScanResult struct {
	SessionID    string                     `json:"session_id"`
	Summary      BatchScanSummary           `json:"batch_summary"`
	Results      []*ScanResult              `json:"results"`
	ErrorDetails []ScanError                `json:"error_details,omitempty"`
	Session      *repository.Session        `json:"-"`
	FinalSummary *repository.SessionSummary `json:"session_summary,omitempty"`
}

// StartSessionResult pairs the created session with its frozen config
type StartSessionResult struct {
	Session *repository.Session `json:"session"`
	Config  *WorkflowConfig     `json:"workflow_config"`
}

// CompletionResult is returned by CompleteSession
type CompletionResult struct {
	Session         *repository.Session        `json:"session"`
	Summary         *repository.SessionSummary `json:"session_summary"`
	ChangesApplied  int                        `json:"changes_applied"`
	Anomalies       []*Anomaly                 `json:"anomalies"`
	Recommendations []ReorderSuggestion        `json:"recommendations"`
}

// SessionService manages scanning sessions: the active → terminal state
// machine, scan accumulation, and completion-time reconciliation.
type SessionService struct {
	sessionRepo   *repository.SessionRepository
	inventoryRepo *repository.InventoryRepository
	lookup        *LookupService
	publisher     *events.CountingEventPublisher
	logger        *logger.Logger
}

// NewSessionService creates a new session service
func NewSessionService(
	sessionRepo *repository.SessionRepository,
	inventoryRepo *repository.InventoryRepository,
	lookup *LookupService,
	publisher *events.CountingEventPublisher,
	log *logger.Logger,
) *SessionService {
	return &SessionService{
		sessionRepo:   sessionRepo,
		inventoryRepo: inventoryRepo,
		lookup:        lookup,
		publisher:     publisher,
		logger:        log,
	}
}

// StartSession creates a new active session with the workflow's config
// frozen onto it.
func (s *SessionService) StartSession(ctx context.Context, workflowType string, locationID, startedBy *string) (*StartSessionResult, error) {
	cfg, err := ResolveWorkflow(workflowType)
	if err != nil {
		return nil, err
	}

	if cfg.RequireLocation && locationID == nil {
		return nil, errors.Validation(map[string]string{
			"location_id": fmt.Sprintf("workflow %s requires a location", workflowType),
		})
	}

	instructions := cfg.Instructions
	session := &repository.Session{
		WorkflowType:      cfg.Type,
		LocationID:        locationID,
		AllowQuantityEdit: cfg.AllowQuantityEdit,
		RequireLocation:   cfg.RequireLocation,
		AutoApplyChanges:  cfg.AutoApplyChanges,
		Instructions:      &instructions,
		StartedBy:         startedBy,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	s.publisher.PublishSessionStarted(ctx, session)

	s.logger.Info().
		Str("session_id", session.ID).
		Str("workflow_type", session.WorkflowType).
		Msg("scan session started")

	return &StartSessionResult{Session: session, Config: cfg}, nil
}

// Scan records one scan against an active session. Session and barcode
// problems come back as a soft ScanError inside the result; only missing
// input and infrastructure failures are hard errors.
func (s *SessionService) Scan(ctx context.Context, req ScanRequest) (*ScanResult, *repository.SessionSummary, error) {
	if req.Barcode == "" {
		return nil, nil, errors.Validation(map[string]string{"barcode": "barcode is required"})
	}

	session, err := s.sessionRepo.GetByID(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return softScanError(ScanErrorInvalidSession, "session not found"), nil, nil
		}
		return nil, nil, err
	}
	if session.Status != repository.SessionStatusActive {
		return softScanError(ScanErrorInvalidSession, "session is not active"), nil, nil
	}

	bc, err := barcode.Validate(req.Barcode)
	if err != nil {
		return softScanError(ScanErrorInvalidBarcode, err.Error()), nil, nil
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return softScanError(ScanErrorInvalidQuantity, "quantity must be positive"), nil, nil
	}

	// Resolve product data for the scanned code. Lookup failures never
	// fail a scan; the item just stays nameless.
	var product *repository.CatalogEntry
	var productName *string
	if s.lookup != nil {
		lookupResult, err := s.lookup.Lookup(ctx, bc.Code, LookupOptions{})
		if err != nil {
			s.logger.Warn().Err(err).Str("barcode", bc.Code).Msg("product lookup failed during scan")
		} else if lookupResult.Found {
			product = lookupResult.Product
			productName = &lookupResult.Product.Name
		}
	}

	// A per-scan location overrides the session's; otherwise items inherit
	// where the session is running.
	locationID := req.LocationID
	if locationID == nil {
		locationID = session.LocationID
	}

	item, inserted, err := s.sessionRepo.UpsertScan(ctx, session.ID, bc.Code, productName, locationID, req.Notes, quantity)
	if err != nil {
		return nil, nil, fmt.Errorf("record scan: %w", err)
	}

	action := ActionUpdatedExisting
	if inserted {
		action = ActionAddedNew
	}

	// quick_update applies the delta to inventory on every scan instead
	// of waiting for completion
	if session.AutoApplyChanges {
		updated, err := s.inventoryRepo.AdjustQuantityByBarcode(ctx, bc.Code, quantity)
		if err != nil {
			return nil, nil, fmt.Errorf("apply quick update: %w", err)
		}
		for _, change := range updated {
			s.publisher.PublishStockAdjusted(ctx, &change.InventoryItem, change.OldQuantity, "quick_update_scan", session.ID, req.ScannedBy)
		}
	}

	s.publisher.PublishScanRecorded(ctx, item, quantity, req.ScannedBy)

	summary, err := s.sessionRepo.GetSummary(ctx, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("session summary: %w", err)
	}

	return &ScanResult{Item: item, Action: action, Product: product}, summary, nil
}

// BatchScan applies scans entry by entry, creating a session implicitly
// when none is given. A failing entry increments the error counter and
// never aborts the rest of the batch.
func (s *SessionService) BatchScan(ctx context.Context, workflowType string, sessionID *string, entries []BatchEntry, locationID, scannedBy *string) (*BatchScanResult, error) {
	if len(entries) == 0 {
		return nil, errors.Validation(map[string]string{"batch_data": "batch_data is required"})
	}

	var session *repository.Session
	if sessionID != nil && *sessionID != "" {
		existing, err := s.sessionRepo.GetByID(ctx, *sessionID)
		if err != nil {
			return nil, err
		}
		session = existing
	} else {
		started, err := s.StartSession(ctx, workflowType, locationID, scannedBy)
		if err != nil {
			return nil, err
		}
		session = started.Session
	}

	result := &BatchScanResult{
		SessionID: session.ID,
		Session:   session,
		Results:   make([]*ScanResult, 0, len(entries)),
	}
	result.Summary.TotalEntries = len(entries)

	by := ""
	if scannedBy != nil {
		by = *scannedBy
	}

	for _, entry := range entries {
		if entry.Barcode == "" {
			result.Summary.Errors++
			result.ErrorDetails = append(result.ErrorDetails, ScanError{
				Code:    ScanErrorInvalidBarcode,
				Message: "entry is missing a barcode",
			})
			continue
		}

		scanResult, _, err := s.Scan(ctx, ScanRequest{
			SessionID: session.ID,
			Barcode:   entry.Barcode,
			Quantity:  entry.Quantity,
			ScannedBy: by,
		})
		if err != nil {
			return nil, err
		}
		if scanResult.Error != nil {
			result.Summary.Errors++
			result.ErrorDetails = append(result.ErrorDetails, *scanResult.Error)
			continue
		}

		result.Summary.SuccessfulScans++
		result.Results = append(result.Results, scanResult)
	}

	summary, err := s.sessionRepo.GetSummary(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("session summary: %w", err)
	}
	result.FinalSummary = summary

	return result, nil
}

// UpdateQuantity sets (not accumulates) the quantity of an already scanned
// barcode. Absent items are a hard NotFound, unlike scan's soft errors.
func (s *SessionService) UpdateQuantity(ctx context.Context, sessionID, rawBarcode string, quantity int) (*repository.SessionItem, *repository.SessionSummary, error) {
	if rawBarcode == "" {
		return nil, nil, errors.Validation(map[string]string{"barcode": "barcode is required"})
	}
	if quantity < 0 {
		return nil, nil, errors.Validation(map[string]string{"quantity": "quantity must not be negative"})
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.Status != repository.SessionStatusActive {
		return nil, nil, errors.Conflict("session is not active")
	}
	if !session.AllowQuantityEdit {
		return nil, nil, errors.Validation(map[string]string{
			"operation": fmt.Sprintf("workflow %s does not allow quantity edits", session.WorkflowType),
		})
	}

	item, err := s.sessionRepo.SetItemQuantity(ctx, sessionID, barcode.Clean(rawBarcode), quantity)
	if err != nil {
		return nil, nil, err
	}

	summary, err := s.sessionRepo.GetSummary(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("session summary: %w", err)
	}

	return item, summary, nil
}

// CompleteSession transitions the session to completed via compare-and-set,
// applies the deferred counts to inventory, then runs anomaly detection and
// reorder suggestion over the result.
func (s *SessionService) CompleteSession(ctx context.Context, sessionID string) (*CompletionResult, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	transitioned, err := s.sessionRepo.TransitionStatus(ctx, sessionID, repository.SessionStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	if !transitioned {
		return nil, errors.Conflict("session is not active")
	}
	session.Status = repository.SessionStatusCompleted

	items, err := s.sessionRepo.ListItems(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session items: %w", err)
	}

	result := &CompletionResult{
		Session:         session,
		Anomalies:       make([]*Anomaly, 0),
		Recommendations: make([]ReorderSuggestion, 0),
	}

	by := ""
	if session.StartedBy != nil {
		by = *session.StartedBy
	}

	for _, item := range items {
		updated, err := s.applyCount(ctx, session, item)
		if err != nil {
			return nil, err
		}

		for _, change := range updated {
			result.ChangesApplied++
			s.publisher.PublishStockAdjusted(ctx, &change.InventoryItem, change.OldQuantity, "session_completed", session.ID, by)

			if anomaly := DetectAnomaly(&change.InventoryItem, change.CurrentQuantity); anomaly != nil {
				result.Anomalies = append(result.Anomalies, anomaly)
				s.publisher.PublishAnomalyDetected(ctx, messaging.AnomalyDetectedEvent{
					ItemID:      anomaly.ItemID,
					ItemName:    anomaly.ItemName,
					AnomalyType: anomaly.AnomalyType,
					Severity:    anomaly.Severity,
					Quantity:    anomaly.Quantity,
					ParLow:      anomaly.ParLow,
					ParHigh:     anomaly.ParHigh,
					Message:     anomaly.Message,
				})
			}
		}
	}

	belowPar, err := s.inventoryRepo.ListBelowPar(ctx)
	if err != nil {
		return nil, fmt.Errorf("list below par: %w", err)
	}
	result.Recommendations = BuildReorderSuggestions(belowPar)

	if len(result.Recommendations) > 0 {
		var totalCost int64
		urgent := 0
		for _, rec := range result.Recommendations {
			totalCost += rec.LineCostCents
			if rec.Urgency >= 4 {
				urgent++
			}
		}
		s.publisher.PublishReorderSuggested(ctx, messaging.ReorderSuggestedEvent{
			SuggestionCount: len(result.Recommendations),
			TotalCostCents:  totalCost,
			UrgentCount:     urgent,
		})
	}

	summary, err := s.sessionRepo.GetSummary(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session summary: %w", err)
	}
	result.Summary = summary

	s.publisher.PublishSessionCompleted(ctx, session, summary, result.ChangesApplied)

	s.logger.Info().
		Str("session_id", sessionID).
		Int("items", summary.ItemCount).
		Int("changes_applied", result.ChangesApplied).
		Msg("scan session completed")

	return result, nil
}

// applyCount applies one counted item to inventory according to the
// session's workflow. quick_update already applied its deltas per scan.
func (s *SessionService) applyCount(ctx context.Context, session *repository.Session, item *repository.SessionItem) ([]*repository.QuantityChange, error) {
	switch session.WorkflowType {
	case WorkflowInventoryCount, WorkflowStockTake:
		// Counted quantity is the new truth
		updated, err := s.inventoryRepo.SetQuantityByBarcode(ctx, item.Barcode, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("apply count for %s: %w", item.Barcode, err)
		}
		return updated, nil
	case WorkflowReceiving:
		// Received quantity adds to stock
		updated, err := s.inventoryRepo.AdjustQuantityByBarcode(ctx, item.Barcode, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("apply receiving for %s: %w", item.Barcode, err)
		}
		return updated, nil
	default:
		return nil, nil
	}
}

// CancelSession transitions the session to cancelled. Deferred counts are
// discarded; inventory is never touched.
func (s *SessionService) CancelSession(ctx context.Context, sessionID, cancelledBy string) error {
	if _, err := s.sessionRepo.GetByID(ctx, sessionID); err != nil {
		return err
	}

	transitioned, err := s.sessionRepo.TransitionStatus(ctx, sessionID, repository.SessionStatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	if !transitioned {
		return errors.Conflict("session is not active")
	}

	s.publisher.PublishSessionCancelled(ctx, sessionID, cancelledBy)

	s.logger.Info().Str("session_id", sessionID).Msg("scan session cancelled")

	return nil
}

// SessionDetail pairs a session with its items and summary
type SessionDetail struct {
	Session *repository.Session        `json:"session"`
	Items   []*repository.SessionItem  `json:"items"`
	Summary *repository.SessionSummary `json:"session_summary"`
}

// GetSession returns one session with its counted items
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	items, err := s.sessionRepo.ListItems(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session items: %w", err)
	}

	summary, err := s.sessionRepo.GetSummary(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session summary: %w", err)
	}

	return &SessionDetail{Session: session, Items: items, Summary: summary}, nil
}

// ListSessions lists sessions, optionally filtered by status and workflow type
func (s *SessionService) ListSessions(ctx context.Context, status, workflowType string) ([]*repository.Session, error) {
	return s.sessionRepo.List(ctx, status, workflowType)
}

func softScanError(code, message string) *ScanResult {
	return &ScanResult{Error: &ScanError{Code: code, Message: message}}
}
