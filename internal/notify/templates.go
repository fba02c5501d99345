package notify

import (
	"fmt"

	"github.com/erazemk/oprema/internal/model"
)

// Template names a notification in the catalog.
type Template string

// Catalog templates.
const (
	TemplateTransferRequest   Template = "transfer_request"
	TemplateTransferReminder  Template = "transfer_reminder"
	TemplateTransferApproved  Template = "transfer_approved"
	TemplateTransferRejected  Template = "transfer_rejected"
	TemplateTransferCompleted Template = "transfer_completed"
	TemplateTransferCancelled Template = "transfer_cancelled"
)

// TemplateData is the input to a template.
type TemplateData struct {
	ActorName     string
	EquipmentName string
	// SerialNumber is the equipment number shown to users.
	SerialNumber string
	EquipmentID  string
	TransferID   string
	Reason       string
}

type renderer func(d TemplateData) (title, message string)

type entry struct {
	typ    model.NotificationType
	render renderer
}

var catalog = map[Template]entry{
	TemplateTransferRequest: {
		typ: model.NotificationTransferRequest,
		render: func(d TemplateData) (string, string) {
			msg := fmt.Sprintf("%s wants to transfer %s to you.", d.ActorName, d.EquipmentName)
			if d.Reason != "" {
				msg += " Reason: " + d.Reason
			}
			return "Transfer request", msg
		},
	},
	// Reminders share the request type so clients group them with the
	// original request.
	TemplateTransferReminder: {
		typ: model.NotificationTransferRequest,
		render: func(d TemplateData) (string, string) {
			return "Transfer request reminder",
				fmt.Sprintf("%s is still waiting for you to respond to the transfer of %s.", d.ActorName, d.EquipmentName)
		},
	},
	TemplateTransferApproved: {
		typ: model.NotificationTransferApproved,
		render: func(d TemplateData) (string, string) {
			return "Transfer approved",
				fmt.Sprintf("%s approved the transfer of %s.", d.ActorName, d.EquipmentName)
		},
	},
	TemplateTransferRejected: {
		typ: model.NotificationTransferRejected,
		render: func(d TemplateData) (string, string) {
			msg := fmt.Sprintf("%s rejected the transfer of %s.", d.ActorName, d.EquipmentName)
			if d.Reason != "" {
				msg += " Reason: " + d.Reason
			}
			return "Transfer rejected", msg
		},
	},
	TemplateTransferCompleted: {
		typ: model.NotificationTransferCompleted,
		render: func(d TemplateData) (string, string) {
			return "Transfer completed",
				fmt.Sprintf("Custody of %s has been transferred.", d.EquipmentName)
		},
	},
	TemplateTransferCancelled: {
		typ: model.NotificationTransferCancelled,
		render: func(d TemplateData) (string, string) {
			return "Transfer cancelled",
				fmt.Sprintf("%s cancelled the transfer of %s.", d.ActorName, d.EquipmentName)
		},
	},
}

// Render returns the notification type and payload for a template.
func Render(t Template, d TemplateData) (model.NotificationType, Payload, error) {
	e, ok := catalog[t]
	if !ok {
		return "", Payload{}, fmt.Errorf("unknown notification template %q", t)
	}

	title, message := e.render(d)
	return e.typ, Payload{
		Title:                 title,
		Message:               message,
		RelatedEquipmentID:    d.SerialNumber,
		RelatedEquipmentDocID: d.EquipmentID,
		RelatedTransferID:     d.TransferID,
		EquipmentName:         d.EquipmentName,
	}, nil
}
