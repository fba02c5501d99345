package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/model"
)

const equipmentSelect = `SELECT e.id, e.serial_number, e.name, COALESCE(e.holder_id, ''), e.created_at, e.updated_at,
	        COALESCE(tr.id, ''), COALESCE(u.display_name, '')
	 FROM equipment e
	 LEFT JOIN transfer_requests tr ON tr.equipment_id = e.id AND tr.status = 'pending'
	 LEFT JOIN users u ON u.id = e.holder_id`

func scanEquipment(row interface{ Scan(...any) error }) (*model.Equipment, error) {
	e := &model.Equipment{}
	err := row.Scan(&e.ID, &e.SerialNumber, &e.Name, &e.HolderID, &e.CreatedAt, &e.UpdatedAt,
		&e.PendingTransferID, &e.HolderName)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// CreateEquipment registers an equipment item, optionally assigned to a holder.
func CreateEquipment(ctx context.Context, db *sql.DB, id, serialNumber, name, holderID string) (*model.Equipment, error) {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO equipment (id, serial_number, name, holder_id, created_at, updated_at)
		 VALUES (?, ?, ?, NULLIF(?, ''), ?, ?)`,
		id, serialNumber, name, holderID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating equipment: %w", err)
	}
	return GetEquipment(ctx, db, id)
}

// GetEquipment returns an equipment item by ID, with its pending transfer id
// derived from the transfer requests.
func GetEquipment(ctx context.Context, db *sql.DB, id string) (*model.Equipment, error) {
	e, err := scanEquipment(db.QueryRowContext(ctx, equipmentSelect+` WHERE e.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting equipment: %w", err)
	}
	return e, nil
}

// ListEquipment returns equipment, optionally only the items held by holderID.
func ListEquipment(ctx context.Context, db *sql.DB, holderID string) ([]model.Equipment, error) {
	query := equipmentSelect
	var args []any
	if holderID != "" {
		query += ` WHERE e.holder_id = ?`
		args = append(args, holderID)
	}
	query += ` ORDER BY e.name, e.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing equipment: %w", err)
	}
	defer rows.Close()

	var items []model.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning equipment: %w", err)
		}
		items = append(items, *e)
	}
	return items, rows.Err()
}

// SetEquipmentHolder assigns the equipment to a new custodian.
func SetEquipmentHolder(ctx context.Context, db *sql.DB, id, holderID string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE equipment SET holder_id = ?, updated_at = ? WHERE id = ?`,
		holderID, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting equipment holder: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting equipment holder: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("equipment %s not found", id)
	}
	return nil
}

// EquipmentStore exposes the equipment collaborator contract over the database.
type EquipmentStore struct {
	DB *sql.DB
}

// GetEquipment returns the equipment item or nil if it does not exist.
func (s *EquipmentStore) GetEquipment(ctx context.Context, id string) (*model.Equipment, error) {
	return GetEquipment(ctx, s.DB, id)
}

// SetHolder assigns the equipment to holderID.
func (s *EquipmentStore) SetHolder(ctx context.Context, id, holderID string) error {
	return SetEquipmentHolder(ctx, s.DB, id, holderID)
}
