package handler

import (
	"fmt"
	"net/http"

	"github.com/tapline/tapline-backend/internal/counting/service"
	"github.com/tapline/tapline-backend/pkg/actor"
	"github.com/tapline/tapline-backend/pkg/errors"
	"github.com/tapline/tapline-backend/pkg/httputil"
	"github.com/tapline/tapline-backend/pkg/logger"
)

// Session operations accepted by the POST dispatch endpoint
const (
	OpStartSession    = "start_session"
	OpScan            = "scan"
	OpBatchScan       = "batch_scan"
	OpUpdateQuantity  = "update_quantity"
	OpCompleteSession = "complete_session"
	OpCancelSession   = "cancel_session"
)

// SessionHandler handles scanning session endpoints
type SessionHandler struct {
	service *service.SessionService
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(svc *service.SessionService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		logger:  log,
	}
}

type sessionRequest struct {
	Operation    string               `json:"operation" validate:"required"`
	WorkflowType string               `json:"workflow_type"`
	SessionID    string               `json:"session_id"`
	Barcode      string               `json:"barcode"`
	Quantity     int                  `json:"quantity"`
	BatchData    []service.BatchEntry `json:"batch_data"`
	LocationID   *string              `json:"location_id"`
	Notes        *string              `json:"notes"`
}

// Dispatch routes a POST session request to its operation. Scanner firmware
// sends every mutation through this one endpoint.
func (h *SessionHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	switch req.Operation {
	case OpStartSession:
		h.startSession(w, r, req)
	case OpScan:
		h.scan(w, r, req)
	case OpBatchScan:
		h.batchScan(w, r, req)
	case OpUpdateQuantity:
		h.updateQuantity(w, r, req)
	case OpCompleteSession:
		h.completeSession(w, r, req)
	case OpCancelSession:
		h.cancelSession(w, r, req)
	default:
		httputil.Error(w, errors.Validation(map[string]string{
			"operation": fmt.Sprintf("unknown operation %q", req.Operation),
		}))
	}
}

func (h *SessionHandler) startSession(w http.ResponseWriter, r *http.Request, req sessionRequest) {
	startedBy := callerID(r)

	result, err := h.service.StartSession(r.Context(), req.WorkflowType, req.LocationID, startedBy)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"session":         result.Session,
		"workflow_config": result.Config,
		"instructions":    result.Config.Instructions,
	})
}

func (h *SessionHandler) scan(w http.ResponseWriter, r *http.Request, req sessionRequest) {
	by := ""
	if id := callerID(r); id != nil {
		by = *id
	}

	result, summary, err := h.service.Scan(r.Context(), service.ScanRequest{
		SessionID:  req.SessionID,
		Barcode:    req.Barcode,
		Quantity:   req.Quantity,
		LocationID: req.LocationID,
		Notes:      req.Notes,
		ScannedBy:  by,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	// Soft failures ride inside a 200 so batch scanners keep going
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"scan_result":     result,
		"product":         result.Product,
		"session_summary": summary,
	})
}

func (h *SessionHandler) batchScan(w http.ResponseWriter, r *http.Request, req sessionRequest) {
	var sessionID *string
	if req.SessionID != "" {
		sessionID = &req.SessionID
	}

	result, err := h.service.BatchScan(r.Context(), req.WorkflowType, sessionID, req.BatchData, req.LocationID, callerID(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

func (h *SessionHandler) updateQuantity(w http.ResponseWriter, r *http.Request, req sessionRequest) {
	if req.SessionID == "" {
		httputil.Error(w, errors.Validation(map[string]string{"session_id": "session_id is required"}))
		return
	}

	item, summary, err := h.service.UpdateQuantity(r.Context(), req.SessionID, req.Barcode, req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"item":            item,
		"session_summary": summary,
	})
}

func (h *SessionHandler) completeSession(w http.ResponseWriter, r *http.Request, req sessionRequest) {
	if req.SessionID == "" {
		httputil.Error(w, errors.Validation(map[string]string{"session_id": "session_id is required"}))
		return
	}

	result, err := h.service.CompleteSession(r.Context(), req.SessionID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

func (h *SessionHandler) cancelSession(w http.ResponseWriter, r *http.Request, req sessionRequest) {
	if req.SessionID == "" {
		httputil.Error(w, errors.Validation(map[string]string{"session_id": "session_id is required"}))
		return
	}

	by := ""
	if id := callerID(r); id != nil {
		by = *id
	}

	if err := h.service.CancelSession(r.Context(), req.SessionID, by); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"message": "session cancelled",
	})
}

// Get returns a single session when session_id is given, otherwise lists
// sessions filtered by status and workflow_type.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if sessionID := q.Get("session_id"); sessionID != "" {
		detail, err := h.service.GetSession(r.Context(), sessionID)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, detail)
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), q.Get("status"), q.Get("workflow_type"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"sessions":       sessions,
		"total_sessions": len(sessions),
	})
}

func callerID(r *http.Request) *string {
	if a := actor.FromContext(r.Context()); a != nil {
		return &a.ID
	}
	if id := httputil.GetUserID(r.Context()); id != "" {
		return &id
	}
	return nil
}
