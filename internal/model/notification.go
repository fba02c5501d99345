package model

import "time"

// NotificationType is the kind of event a notification reports.
type NotificationType string

// Notification types.
const (
	NotificationTransferRequest   NotificationType = "transfer_request"
	NotificationTransferApproved  NotificationType = "transfer_approved"
	NotificationTransferRejected  NotificationType = "transfer_rejected"
	NotificationTransferCompleted NotificationType = "transfer_completed"
	NotificationTransferCancelled NotificationType = "transfer_cancelled"
	NotificationSystem            NotificationType = "system"
	NotificationEquipmentStatus   NotificationType = "equipment_status"
	NotificationMaintenance       NotificationType = "maintenance"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTransferRequest, NotificationTransferApproved, NotificationTransferRejected,
		NotificationTransferCompleted, NotificationTransferCancelled, NotificationSystem,
		NotificationEquipmentStatus, NotificationMaintenance:
		return true
	}
	return false
}

// Notification is a rendered notice addressed to one user.
//
// RelatedEquipmentID carries the equipment's serial number as shown to
// users; RelatedEquipmentDocID is the equipment record id.
type Notification struct {
	ID                    string           `json:"id"`
	UserID                string           `json:"user_id"`
	Type                  NotificationType `json:"type"`
	Title                 string           `json:"title"`
	Message               string           `json:"message"`
	RelatedEquipmentID    string           `json:"related_equipment_id,omitempty"`
	RelatedEquipmentDocID string           `json:"related_equipment_doc_id,omitempty"`
	RelatedTransferID     string           `json:"related_transfer_id,omitempty"`
	EquipmentName         string           `json:"equipment_name,omitempty"`
	IsRead                bool             `json:"is_read"`
	CreatedAt             time.Time        `json:"created_at"`
	ReadAt                *time.Time       `json:"read_at,omitempty"`
}
