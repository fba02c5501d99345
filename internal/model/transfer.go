package model

import "time"

// TransferStatus is the lifecycle state of a transfer request.
type TransferStatus string

// Transfer statuses. Approval completes the transfer in the same step, so
// StatusApproved is never persisted.
const (
	StatusPending   TransferStatus = "pending"
	StatusApproved  TransferStatus = "approved"
	StatusRejected  TransferStatus = "rejected"
	StatusCancelled TransferStatus = "cancelled"
	StatusCompleted TransferStatus = "completed"
)

// Terminal reports whether no further transition is allowed from s.
func (s TransferStatus) Terminal() bool {
	return s != StatusPending
}

// Valid reports whether s is a known status.
func (s TransferStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// TransferRequest is a proposal to move an equipment item to a new custodian.
type TransferRequest struct {
	ID            string         `json:"id"`
	EquipmentID   string         `json:"equipment_id"`
	EquipmentName string         `json:"equipment_name"`
	FromUserID    string         `json:"from_user_id"`
	FromUserName  string         `json:"from_user_name"`
	ToUserID      string         `json:"to_user_id"`
	ToUserName    string         `json:"to_user_name"`
	Reason        string         `json:"reason"`
	Note          string         `json:"note,omitempty"`
	Status        TransferStatus `json:"status"`

	RejectionReason string `json:"rejection_reason,omitempty"`
	RespondedBy     string `json:"responded_by,omitempty"`

	ReminderCount  int        `json:"reminder_count"`
	LastReminderAt *time.Time `json:"last_reminder_at,omitempty"`

	// NeedsReconciliation marks a completed request whose holder update
	// did not go through.
	NeedsReconciliation bool `json:"needs_reconciliation,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// TransferFilter narrows a transfer request listing.
type TransferFilter struct {
	UserID      string
	Direction   string
	Status      TransferStatus
	EquipmentID string
	Limit       int
}

// Filter directions.
const (
	DirectionAny      = ""
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)
