package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/oprema/internal/model"
)

const notificationColumns = `id, user_id, type, title, message, related_equipment_id, related_equipment_doc_id,
	related_transfer_id, equipment_name, is_read, created_at, read_at`

// InsertNotification appends a notification. Notifications are never edited
// afterwards except for the read flag.
func InsertNotification(ctx context.Context, db *sql.DB, n *model.Notification) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO notifications
		    (id, user_id, type, title, message, related_equipment_id, related_equipment_doc_id,
		     related_transfer_id, equipment_name, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), 0, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.RelatedEquipmentID, n.RelatedEquipmentDocID,
		n.RelatedTransferID, n.EquipmentName, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func scanNotification(row interface{ Scan(...any) error }) (*model.Notification, error) {
	n := &model.Notification{}
	var equipmentID, equipmentDocID, transferID, equipmentName sql.NullString
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &equipmentID, &equipmentDocID,
		&transferID, &equipmentName, &n.IsRead, &n.CreatedAt, &n.ReadAt)
	if err != nil {
		return nil, err
	}
	n.RelatedEquipmentID = equipmentID.String
	n.RelatedEquipmentDocID = equipmentDocID.String
	n.RelatedTransferID = transferID.String
	n.EquipmentName = equipmentName.String
	return n, nil
}

// GetNotification returns a notification by ID.
func GetNotification(ctx context.Context, db *sql.DB, id string) (*model.Notification, error) {
	n, err := scanNotification(db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns a user's notifications, newest first. Rows with
// the same timestamp are ordered by insertion.
func ListNotifications(ctx context.Context, db *sql.DB, userID string, limit int) ([]model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

// CountUnread returns the number of unread notifications for a user.
func CountUnread(ctx context.Context, db *sql.DB, userID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead sets the read flag. Marking an already read
// notification keeps its original read time.
func MarkNotificationRead(ctx context.Context, db *sql.DB, id string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = COALESCE(read_at, ?) WHERE id = ?`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of a user as read
// and returns how many changed.
func MarkAllNotificationsRead(ctx context.Context, db *sql.DB, userID string, at time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = ? WHERE user_id = ? AND is_read = 0`,
		at, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking all notifications read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("marking all notifications read: %w", err)
	}
	return n, nil
}

// DeleteNotification removes a notification.
func DeleteNotification(ctx context.Context, db *sql.DB, id string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting notification: %w", err)
	}
	return nil
}

// CleanupNotifications keeps the newest keep notifications of a user and
// deletes the rest, read or not. It returns the number deleted.
func CleanupNotifications(ctx context.Context, db *sql.DB, userID string, keep int) (int64, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM notifications
		 WHERE user_id = ? AND rowid NOT IN (
		     SELECT rowid FROM notifications WHERE user_id = ?
		     ORDER BY created_at DESC, rowid DESC LIMIT ?
		 )`,
		userID, userID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning up notifications: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleaning up notifications: %w", err)
	}
	return n, nil
}
