package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/model"
)

const transferColumns = `id, equipment_id, equipment_name, from_user_id, from_user_name, to_user_id, to_user_name,
	reason, note, status, rejection_reason, responded_by, reminder_count, last_reminder_at,
	needs_reconciliation, created_at, updated_at, responded_at`

// InsertTransferRequest stores a new pending transfer request.
//
// The existence check and the insert are one conditional statement, and the
// partial unique index on pending requests backs it up, so two concurrent
// initiators for the same equipment cannot both succeed. The loser gets a
// conflict error.
func InsertTransferRequest(ctx context.Context, db *sql.DB, tr *model.TransferRequest) error {
	result, err := db.ExecContext(ctx,
		`INSERT INTO transfer_requests
		    (id, equipment_id, equipment_name, from_user_id, from_user_name, to_user_id, to_user_name,
		     reason, note, status, created_at, updated_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), 'pending', ?, ?
		 WHERE NOT EXISTS (
		     SELECT 1 FROM transfer_requests WHERE equipment_id = ? AND status = 'pending'
		 )`,
		tr.ID, tr.EquipmentID, tr.EquipmentName, tr.FromUserID, tr.FromUserName, tr.ToUserID, tr.ToUserName,
		tr.Reason, tr.Note, tr.CreatedAt, tr.UpdatedAt,
		tr.EquipmentID,
	)
	if isUniqueViolation(err) {
		return apperr.Conflict("equipment already has a pending transfer")
	}
	if err != nil {
		return fmt.Errorf("inserting transfer request: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting transfer request: %w", err)
	}
	if n == 0 {
		return apperr.Conflict("equipment already has a pending transfer")
	}
	tr.Status = model.StatusPending
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func scanTransfer(row interface{ Scan(...any) error }) (*model.TransferRequest, error) {
	tr := &model.TransferRequest{}
	var note, rejection, respondedBy sql.NullString
	err := row.Scan(&tr.ID, &tr.EquipmentID, &tr.EquipmentName, &tr.FromUserID, &tr.FromUserName,
		&tr.ToUserID, &tr.ToUserName, &tr.Reason, &note, &tr.Status, &rejection, &respondedBy,
		&tr.ReminderCount, &tr.LastReminderAt, &tr.NeedsReconciliation,
		&tr.CreatedAt, &tr.UpdatedAt, &tr.RespondedAt)
	if err != nil {
		return nil, err
	}
	tr.Note = note.String
	tr.RejectionReason = rejection.String
	tr.RespondedBy = respondedBy.String
	return tr, nil
}

// GetTransferRequest returns a transfer request by ID.
func GetTransferRequest(ctx context.Context, db *sql.DB, id string) (*model.TransferRequest, error) {
	tr, err := scanTransfer(db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfer_requests WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer request: %w", err)
	}
	return tr, nil
}

// GetPendingTransferRequest returns the single pending request for an
// equipment item, or nil.
func GetPendingTransferRequest(ctx context.Context, db *sql.DB, equipmentID string) (*model.TransferRequest, error) {
	tr, err := scanTransfer(db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfer_requests WHERE equipment_id = ? AND status = 'pending'`,
		equipmentID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting pending transfer request: %w", err)
	}
	return tr, nil
}

// ListTransferRequests returns transfer requests matching the filter, newest first.
func ListTransferRequests(ctx context.Context, db *sql.DB, f model.TransferFilter) ([]model.TransferRequest, error) {
	query := `SELECT ` + transferColumns + ` FROM transfer_requests WHERE 1=1`
	var args []any

	if f.UserID != "" {
		switch f.Direction {
		case model.DirectionIncoming:
			query += ` AND to_user_id = ?`
			args = append(args, f.UserID)
		case model.DirectionOutgoing:
			query += ` AND from_user_id = ?`
			args = append(args, f.UserID)
		default:
			query += ` AND (from_user_id = ? OR to_user_id = ?)`
			args = append(args, f.UserID, f.UserID)
		}
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.EquipmentID != "" {
		query += ` AND equipment_id = ?`
		args = append(args, f.EquipmentID)
	}

	query += ` ORDER BY created_at DESC, rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfer requests: %w", err)
	}
	defer rows.Close()

	var transfers []model.TransferRequest
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transfer request: %w", err)
		}
		transfers = append(transfers, *tr)
	}
	return transfers, rows.Err()
}

// StatusUpdate describes a transition out of the pending state.
type StatusUpdate struct {
	To              model.TransferStatus
	RespondedBy     string
	RejectionReason string
	At              time.Time
}

// UpdateTransferStatus moves a pending request to u.To. The update only
// applies while the row is still pending, so of two concurrent transitions
// on the same request exactly one wins; the other gets an invalid-state error.
func UpdateTransferStatus(ctx context.Context, db *sql.DB, id string, u StatusUpdate) error {
	if !u.To.Terminal() {
		return fmt.Errorf("invalid target status %q", u.To)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE transfer_requests
		 SET status = ?, responded_by = ?, rejection_reason = NULLIF(?, ''), responded_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		u.To, u.RespondedBy, u.RejectionReason, u.At, u.At, id,
	)
	if err != nil {
		return fmt.Errorf("updating transfer status: %w", err)
	}
	return checkPendingUpdate(ctx, db, id, result)
}

// RecordReminder increments the reminder count of a pending request. It
// applies only if the count still equals seen, which serializes concurrent
// reminders against the caller's cooldown check.
func RecordReminder(ctx context.Context, db *sql.DB, id string, seen int, at time.Time) error {
	result, err := db.ExecContext(ctx,
		`UPDATE transfer_requests
		 SET reminder_count = reminder_count + 1, last_reminder_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending' AND reminder_count = ?`,
		at, at, id, seen,
	)
	if err != nil {
		return fmt.Errorf("recording reminder: %w", err)
	}
	return checkPendingUpdate(ctx, db, id, result)
}

// checkPendingUpdate turns a zero-row conditional update into the right error.
func checkPendingUpdate(ctx context.Context, db *sql.DB, id string, result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n > 0 {
		return nil
	}

	current, err := GetTransferRequest(ctx, db, id)
	if err != nil {
		return err
	}
	if current == nil {
		return apperr.NotFound("transfer request %s not found", id)
	}
	if current.Status == model.StatusPending {
		return apperr.InvalidState("transfer request %s was modified concurrently", id)
	}
	return apperr.InvalidState("transfer request is %s", current.Status)
}

// SetNeedsReconciliation flags or clears a completed request whose
// equipment holder update has not been applied.
func SetNeedsReconciliation(ctx context.Context, db *sql.DB, id string, needed bool) error {
	_, err := db.ExecContext(ctx,
		`UPDATE transfer_requests SET needs_reconciliation = ?, updated_at = ?
		 WHERE id = ? AND status = 'completed'`,
		needed, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting reconciliation flag: %w", err)
	}
	return nil
}

// ListNeedingReconciliation returns completed requests whose holder update
// is outstanding, oldest first.
func ListNeedingReconciliation(ctx context.Context, db *sql.DB) ([]model.TransferRequest, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfer_requests
		 WHERE status = 'completed' AND needs_reconciliation = 1
		 ORDER BY responded_at, rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing unreconciled transfers: %w", err)
	}
	defer rows.Close()

	var transfers []model.TransferRequest
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transfer request: %w", err)
		}
		transfers = append(transfers, *tr)
	}
	return transfers, rows.Err()
}
