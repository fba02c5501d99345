package model

import "time"

// Equipment is a physical item with exactly one custodian at a time.
type Equipment struct {
	ID           string    `json:"id"`
	SerialNumber string    `json:"serial_number,omitempty"`
	Name         string    `json:"name"`
	HolderID     string    `json:"holder_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Derived from the pending transfer request, if any (not always populated).
	PendingTransferID string `json:"pending_transfer_id,omitempty"`
	HolderName        string `json:"holder_name,omitempty"`
}

// HasPendingTransfer reports whether a custody change is awaiting a response.
func (e *Equipment) HasPendingTransfer() bool {
	return e.PendingTransferID != ""
}
