package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/tapline/tapline-backend/pkg/database"
	"github.com/tapline/tapline-backend/pkg/errors"
	"github.com/tapline/tapline-backend/pkg/tenant"
)

// Session statuses
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusCancelled = "cancelled"
)

// Session is a scanning session. The workflow configuration is resolved
// once at start time and frozen on the row, so later config changes never
// alter a running session.
type Session struct {
	ID                string     `db:"id" json:"session_id"`
	WorkflowType      string     `db:"workflow_type" json:"workflow_type"`
	Status            string     `db:"status" json:"status"`
	LocationID        *string    `db:"location_id" json:"location_id,omitempty"`
	AllowQuantityEdit bool       `db:"allow_quantity_edit" json:"allow_quantity_edit"`
	RequireLocation   bool       `db:"require_location" json:"require_location"`
	AutoApplyChanges  bool       `db:"auto_apply_changes" json:"auto_apply_changes"`
	Instructions      *string    `db:"instructions" json:"instructions,omitempty"`
	StartedBy         *string    `db:"started_by" json:"started_by,omitempty"`
	StartedAt         time.Time  `db:"started_at" json:"started_at"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// SessionItem is one counted barcode within a session. Repeat scans of
// the same barcode accumulate on this row; the first scan to carry a
// product name, location or notes wins.
type SessionItem struct {
	ID            string    `db:"id" json:"id"`
	SessionID     string    `db:"session_id" json:"session_id"`
	Barcode       string    `db:"barcode" json:"barcode"`
	ProductName   *string   `db:"product_name" json:"product_name,omitempty"`
	LocationID    *string   `db:"location_id" json:"location_id,omitempty"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
	Quantity      int       `db:"quantity" json:"quantity"`
	ScanCount     int       `db:"scan_count" json:"scan_count"`
	LastScannedAt time.Time `db:"last_scanned_at" json:"last_scanned_at"`
}

// SessionRepository handles scan session persistence
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, workflow_type, status, location_id, allow_quantity_edit, require_location, auto_apply_changes, instructions, started_by, started_at, completed_at`

// mapWriteError translates Postgres constraint violations into AppErrors
// with field-level messages. Non-constraint errors pass through unchanged.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// Create creates a new scanning session
// TENANT-ISOLATED via RLS.
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return err
	}

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = SessionStatusActive
	}

	return mapWriteError(r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO scanning_sessions (
				id, tenant_id, workflow_type, status, location_id,
				allow_quantity_edit, require_location, auto_apply_changes, instructions, started_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING started_at
		`
		return r.db.QueryRowxContext(ctx, query,
			s.ID, tenantID, s.WorkflowType, s.Status, s.LocationID,
			s.AllowQuantityEdit, s.RequireLocation, s.AutoApplyChanges, s.Instructions, s.StartedBy,
		).Scan(&s.StartedAt)
	}))
}

// GetByID gets a session by ID
// TENANT-ISOLATED via RLS.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var s Session

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT ` + sessionColumns + ` FROM scanning_sessions WHERE id = $1`
		return r.db.GetContext(ctx, &s, query, id)
	})

	if err == sql.ErrNoRows {
		return nil, errors.NotFound("session")
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// List lists sessions, optionally filtered by status and workflow type,
// newest first.
// TENANT-ISOLATED via RLS.
func (r *SessionRepository) List(ctx context.Context, status, workflowType string) ([]*Session, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var sessions []*Session

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `SELECT ` + sessionColumns + ` FROM scanning_sessions WHERE 1=1`
		args := []interface{}{}

		if status != "" {
			args = append(args, status)
			query += ` AND status = $1`
		}
		if workflowType != "" {
			args = append(args, workflowType)
			if len(args) == 1 {
				query += ` AND workflow_type = $1`
			} else {
				query += ` AND workflow_type = $2`
			}
		}

		query += ` ORDER BY started_at DESC`

		return r.db.SelectContext(ctx, &sessions, query, args...)
	})

	if err != nil {
		return nil, err
	}

	return sessions, nil
}

// UpsertScan records a scan for (session, barcode) in one atomic statement.
// A first scan inserts the row; repeat scans accumulate quantity and bump
// scan_count. Product name, location and notes keep their first non-null
// value across repeat scans. The xmax trick distinguishes insert from
// update so the caller can report added_new vs updated_existing without a
// prior read.
// Returns the resulting item and whether the row was newly inserted.
// TENANT-ISOLATED via RLS.
func (r *SessionRepository) UpsertScan(ctx context.Context, sessionID, barcode string, productName, locationID, notes *string, quantity int) (*SessionItem, bool, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, false, err
	}

	var item SessionItem
	var inserted bool

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO scan_session_items (id, tenant_id, session_id, barcode, product_name, location_id, notes, quantity, scan_count, last_scanned_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, NOW())
			ON CONFLICT (session_id, barcode) DO UPDATE SET
				quantity = scan_session_items.quantity + EXCLUDED.quantity,
				scan_count = scan_session_items.scan_count + 1,
				product_name = COALESCE(scan_session_items.product_name, EXCLUDED.product_name),
				location_id = COALESCE(scan_session_items.location_id, EXCLUDED.location_id),
				notes = COALESCE(scan_session_items.notes, EXCLUDED.notes),
				last_scanned_at = NOW()
			RETURNING id, session_id, barcode, product_name, location_id, notes, quantity, scan_count, last_scanned_at, (xmax = 0) AS inserted
		`
		return r.db.QueryRowxContext(ctx, query,
			uuid.New().String(), tenantID, sessionID, barcode, productName, locationID, notes, quantity,
		).Scan(&item.ID, &item.SessionID, &item.Barcode, &item.ProductName, &item.LocationID,
			&item.Notes, &item.Quantity, &item.ScanCount, &item.LastScannedAt, &inserted)
	})

	if err != nil {
		return nil, false, mapWriteError(err)
	}

	return &item, inserted, nil
}

// SetItemQuantity sets the quantity for (session, barcode) absolutely.
// Unlike UpsertScan this never creates rows: an absent item is NotFound.
// TENANT-ISOLATED via RLS.
func (r *SessionRepository) SetItemQuantity(ctx context.Context, sessionID, barcode string, quantity int) (*SessionItem, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var item SessionItem

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			UPDATE scan_session_items
			SET quantity = $3, last_scanned_at = NOW()
			WHERE session_id = $1 AND barcode = $2
			RETURNING id, session_id, barcode, product_name, location_id, notes, quantity, scan_count, last_scanned_at
		`
		return r.db.QueryRowxContext(ctx, query, sessionID, barcode, quantity).
			Scan(&item.ID, &item.SessionID, &item.Barcode, &item.ProductName, &item.LocationID,
				&item.Notes, &item.Quantity, &item.ScanCount, &item.LastScannedAt)
	})

	if err == sql.ErrNoRows {
		return nil, errors.NotFound("session item")
	}
	if err != nil {
		return nil, mapWriteError(err)
	}

	return &item, nil
}

// ListItems lists the counted items of a session ordered by first scan
// TENANT-ISOLATED via RLS.
func (r *SessionRepository) ListItems(ctx context.Context, sessionID string) ([]*SessionItem, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var items []*SessionItem

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT id, session_id, barcode, product_name, location_id, notes, quantity, scan_count, last_scanned_at
			FROM scan_session_items
			WHERE session_id = $1
			ORDER BY last_scanned_at
		`
		return r.db.SelectContext(ctx, &items, query, sessionID)
	})

	if err != nil {
		return nil, err
	}

	return items, nil
}

// SessionSummary aggregates a session's counted items
type SessionSummary struct {
	ItemCount     int `db:"item_count" json:"items_scanned"`
	TotalQuantity int `db:"total_quantity" json:"total_quantity"`
	TotalScans    int `db:"total_scans" json:"total_scans"`
}

// GetSummary aggregates item count, total quantity and total scans for a session
// TENANT-ISOLATED via RLS.
func (r *SessionRepository) GetSummary(ctx context.Context, sessionID string) (*SessionSummary, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var summary SessionSummary

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT
				COUNT(*) AS item_count,
				COALESCE(SUM(quantity), 0) AS total_quantity,
				COALESCE(SUM(scan_count), 0) AS total_scans
			FROM scan_session_items
			WHERE session_id = $1
		`
		return r.db.GetContext(ctx, &summary, query, sessionID)
	})

	if err != nil {
		return nil, err
	}

	return &summary, nil
}

// TransitionStatus moves a session from active to the given terminal
// status with a conditional update. Returns false when the session was
// not active (already terminal, or absent): the compare-and-set makes
// concurrent completion race-free without a read-modify-write.
// TENANT-ISOLATED via RLS.
func (r *SessionRepository) TransitionStatus(ctx context.Context, id, toStatus string) (bool, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return false, err
	}

	var transitioned bool

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			UPDATE scanning_sessions
			SET status = $2, completed_at = NOW()
			WHERE id = $1 AND status = 'active'
		`
		result, err := r.db.ExecContext(ctx, query, id, toStatus)
		if err != nil {
			return err
		}
		affected, _ := result.RowsAffected()
		transitioned = affected == 1
		return nil
	})

	if err != nil {
		return false, err
	}

	return transitioned, nil
}
