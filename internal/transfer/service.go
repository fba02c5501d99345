// Package transfer implements the custody transfer handshake for equipment.
//
// A request starts pending and ends in exactly one terminal state. Every
// transition is a conditional write that only applies from pending, so
// concurrent calls on one request cannot both succeed, and at most one
// request per equipment item is pending at any time.
package transfer

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/notify"
	"github.com/erazemk/oprema/internal/store"
)

// DefaultReminderCooldown is the minimum time between two reminders for the
// same request.
const DefaultReminderCooldown = 60 * time.Second

// Equipment reads equipment and changes its holder.
type Equipment interface {
	GetEquipment(ctx context.Context, id string) (*model.Equipment, error)
	SetHolder(ctx context.Context, id, holderID string) error
}

// Notifier sends catalog notifications.
type Notifier interface {
	Send(ctx context.Context, t notify.Template, d notify.TemplateData, userIDs ...string) notify.BatchResult
}

// Options configures a Service.
type Options struct {
	// ReminderCooldown throttles reminders per request. Zero disables it.
	ReminderCooldown time.Duration
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service runs transfer request transitions.
type Service struct {
	db        *sql.DB
	equipment Equipment
	notifier  Notifier
	cooldown  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewService creates a transfer service.
func NewService(db *sql.DB, equipment Equipment, notifier Notifier, opts Options, logger *slog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:        db,
		equipment: equipment,
		notifier:  notifier,
		cooldown:  opts.ReminderCooldown,
		now:       func() time.Time { return opts.Now().UTC() },
		logger:    logger,
	}
}

// CreateInput describes a new transfer request.
type CreateInput struct {
	EquipmentID string `json:"equipment_id"`
	ToUserID    string `json:"to_user_id"`
	Reason      string `json:"reason"`
	Note        string `json:"note"`
}

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	metrics.TransferTransitions.WithLabelValues(op, outcome).Inc()
}

// Create opens a pending request to move equipment from its holder to
// in.ToUserID. Only the current holder may create one, so the sender is
// always the holder.
func (s *Service) Create(ctx context.Context, actor model.Identity, in CreateInput) (tr *model.TransferRequest, err error) {
	defer func() { observe("create", err) }()

	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	in.Reason = strings.TrimSpace(in.Reason)
	in.Note = strings.TrimSpace(in.Note)
	switch {
	case in.EquipmentID == "":
		return nil, apperr.Validation("equipment is required")
	case in.ToUserID == "":
		return nil, apperr.Validation("recipient is required")
	case in.ToUserID == actor.UID:
		return nil, apperr.Validation("cannot transfer equipment to yourself")
	case in.Reason == "":
		return nil, apperr.Validation("reason is required")
	}

	to, err := store.GetUser(ctx, s.db, in.ToUserID)
	if err != nil {
		return nil, apperr.Store(err, "loading recipient")
	}
	if to == nil || to.DeletedAt != nil {
		return nil, apperr.Validation("recipient does not exist")
	}

	eq, err := s.equipment.GetEquipment(ctx, in.EquipmentID)
	if err != nil {
		return nil, apperr.Store(err, "loading equipment")
	}
	if eq == nil {
		return nil, apperr.NotFound("equipment %s not found", in.EquipmentID)
	}

	// An item already in a handshake is a conflict for everyone, holder
	// or not. The conditional insert below stays the authoritative check.
	pending, err := store.GetPendingTransferRequest(ctx, s.db, eq.ID)
	if err != nil {
		return nil, apperr.Store(err, "checking pending transfer")
	}
	if pending != nil {
		return nil, apperr.Conflict("equipment already has a pending transfer")
	}

	if eq.HolderID != actor.UID {
		return nil, apperr.Forbidden("only the current holder may transfer this equipment")
	}
	if eq.HolderID == to.ID {
		return nil, apperr.Validation("recipient already holds this equipment")
	}

	now := s.now()
	tr = &model.TransferRequest{
		ID:            uuid.NewString(),
		EquipmentID:   eq.ID,
		EquipmentName: eq.Name,
		FromUserID:    actor.UID,
		FromUserName:  actor.DisplayName,
		ToUserID:      to.ID,
		ToUserName:    to.DisplayName,
		Reason:        in.Reason,
		Note:          in.Note,
		Status:        model.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.InsertTransferRequest(ctx, s.db, tr); err != nil {
		return nil, apperr.Store(err, "creating transfer request")
	}

	s.logger.Info("transfer requested",
		"transfer_id", tr.ID, "equipment_id", eq.ID, "from", actor.UID, "to", to.ID)

	s.notify(ctx, notify.TemplateTransferRequest, s.templateData(tr, actor.DisplayName, eq.SerialNumber, tr.Reason), to.ID)
	return tr, nil
}

// Approve completes a pending request and hands the equipment to the
// recipient. Only the recipient or a manager may approve.
//
// If the holder update fails after the request completed, the request stays
// completed and is flagged for Reconcile.
func (s *Service) Approve(ctx context.Context, actor model.Identity, id string) (tr *model.TransferRequest, err error) {
	defer func() { observe("approve", err) }()

	tr, err = s.loadForResponse(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := store.UpdateTransferStatus(ctx, s.db, tr.ID, store.StatusUpdate{
		To:          model.StatusCompleted,
		RespondedBy: actor.UID,
		At:          now,
	}); err != nil {
		return nil, apperr.Store(err, "approving transfer request")
	}
	tr.Status = model.StatusCompleted
	tr.RespondedBy = actor.UID
	tr.RespondedAt = &now
	tr.UpdatedAt = now

	if err := s.equipment.SetHolder(ctx, tr.EquipmentID, tr.ToUserID); err != nil {
		s.logger.Error("equipment holder update failed, flagged for reconciliation",
			"transfer_id", tr.ID, "equipment_id", tr.EquipmentID, "error", err)
		metrics.Reconciliations.WithLabelValues("deferred").Inc()
		tr.NeedsReconciliation = true
		if err := store.SetNeedsReconciliation(context.WithoutCancel(ctx), s.db, tr.ID, true); err != nil {
			s.logger.Error("flagging transfer for reconciliation", "transfer_id", tr.ID, "error", err)
		}
	}

	s.logger.Info("transfer completed",
		"transfer_id", tr.ID, "equipment_id", tr.EquipmentID, "holder", tr.ToUserID, "approved_by", actor.UID)

	data := s.templateData(tr, actor.DisplayName, s.serialNumber(ctx, tr.EquipmentID), "")
	s.notify(ctx, notify.TemplateTransferApproved, data, tr.FromUserID)
	s.notify(ctx, notify.TemplateTransferCompleted, data, tr.FromUserID, tr.ToUserID)
	return tr, nil
}

// Reject declines a pending request. Only the recipient or a manager may
// reject.
func (s *Service) Reject(ctx context.Context, actor model.Identity, id, reason string) (tr *model.TransferRequest, err error) {
	defer func() { observe("reject", err) }()

	tr, err = s.loadForResponse(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reason = strings.TrimSpace(reason)
	if err := store.UpdateTransferStatus(ctx, s.db, tr.ID, store.StatusUpdate{
		To:              model.StatusRejected,
		RespondedBy:     actor.UID,
		RejectionReason: reason,
		At:              now,
	}); err != nil {
		return nil, apperr.Store(err, "rejecting transfer request")
	}
	tr.Status = model.StatusRejected
	tr.RespondedBy = actor.UID
	tr.RejectionReason = reason
	tr.RespondedAt = &now
	tr.UpdatedAt = now

	s.logger.Info("transfer rejected", "transfer_id", tr.ID, "rejected_by", actor.UID)

	s.notify(ctx, notify.TemplateTransferRejected,
		s.templateData(tr, actor.DisplayName, s.serialNumber(ctx, tr.EquipmentID), reason), tr.FromUserID)
	return tr, nil
}

// Cancel withdraws a pending request. Only the sender may cancel.
func (s *Service) Cancel(ctx context.Context, actor model.Identity, id string) (tr *model.TransferRequest, err error) {
	defer func() { observe("cancel", err) }()

	tr, err = s.loadForSender(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := store.UpdateTransferStatus(ctx, s.db, tr.ID, store.StatusUpdate{
		To:          model.StatusCancelled,
		RespondedBy: actor.UID,
		At:          now,
	}); err != nil {
		return nil, apperr.Store(err, "cancelling transfer request")
	}
	tr.Status = model.StatusCancelled
	tr.RespondedBy = actor.UID
	tr.RespondedAt = &now
	tr.UpdatedAt = now

	s.logger.Info("transfer cancelled", "transfer_id", tr.ID, "cancelled_by", actor.UID)

	s.notify(ctx, notify.TemplateTransferCancelled,
		s.templateData(tr, actor.DisplayName, s.serialNumber(ctx, tr.EquipmentID), ""), tr.ToUserID)
	return tr, nil
}

// Remind nudges the recipient of a pending request. Only the sender may
// remind, at most once per cooldown.
func (s *Service) Remind(ctx context.Context, actor model.Identity, id string) (tr *model.TransferRequest, err error) {
	defer func() { observe("remind", err) }()

	tr, err = s.loadForSender(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if s.cooldown > 0 && tr.LastReminderAt != nil {
		if wait := tr.LastReminderAt.Add(s.cooldown).Sub(now); wait > 0 {
			return nil, apperr.RateLimited("reminder already sent, try again in %s", wait.Round(time.Second))
		}
	}

	if err := store.RecordReminder(ctx, s.db, tr.ID, tr.ReminderCount, now); err != nil {
		return nil, apperr.Store(err, "recording reminder")
	}
	tr.ReminderCount++
	tr.LastReminderAt = &now
	tr.UpdatedAt = now

	s.logger.Info("transfer reminder sent", "transfer_id", tr.ID, "count", tr.ReminderCount)

	s.notify(ctx, notify.TemplateTransferReminder,
		s.templateData(tr, actor.DisplayName, s.serialNumber(ctx, tr.EquipmentID), ""), tr.ToUserID)
	return tr, nil
}

// Get returns a request visible to actor: its sender, its recipient, or a
// manager.
func (s *Service) Get(ctx context.Context, actor model.Identity, id string) (*model.TransferRequest, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	tr, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tr.FromUserID != actor.UID && tr.ToUserID != actor.UID && !model.RoleAtLeast(actor.Role, model.RoleManager) {
		return nil, apperr.Forbidden("not a party to this transfer")
	}
	return tr, nil
}

// List returns requests matching f, newest first. Users below manager only
// see requests they are a party to.
func (s *Service) List(ctx context.Context, actor model.Identity, f model.TransferFilter) ([]model.TransferRequest, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown status %q", f.Status)
	}
	switch f.Direction {
	case model.DirectionAny, model.DirectionIncoming, model.DirectionOutgoing:
	default:
		return nil, apperr.Validation("unknown direction %q", f.Direction)
	}
	if !model.RoleAtLeast(actor.Role, model.RoleManager) {
		f.UserID = actor.UID
	}

	list, err := store.ListTransferRequests(ctx, s.db, f)
	if err != nil {
		return nil, apperr.Store(err, "listing transfer requests")
	}
	return list, nil
}

// GetActiveRequestForEquipment returns the pending request for an
// equipment item, or nil.
func (s *Service) GetActiveRequestForEquipment(ctx context.Context, equipmentID string) (*model.TransferRequest, error) {
	tr, err := store.GetPendingTransferRequest(ctx, s.db, equipmentID)
	if err != nil {
		return nil, apperr.Store(err, "loading pending transfer")
	}
	return tr, nil
}

func (s *Service) load(ctx context.Context, id string) (*model.TransferRequest, error) {
	tr, err := store.GetTransferRequest(ctx, s.db, id)
	if err != nil {
		return nil, apperr.Store(err, "loading transfer request")
	}
	if tr == nil {
		return nil, apperr.NotFound("transfer request %s not found", id)
	}
	return tr, nil
}

// loadForResponse loads a pending request the actor may approve or reject.
func (s *Service) loadForResponse(ctx context.Context, actor model.Identity, id string) (*model.TransferRequest, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	tr, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tr.ToUserID != actor.UID && !model.RoleAtLeast(actor.Role, model.RoleManager) {
		return nil, apperr.Forbidden("only the recipient may respond to this transfer")
	}
	if tr.Status != model.StatusPending {
		return nil, apperr.InvalidState("transfer request is %s", tr.Status)
	}
	return tr, nil
}

// loadForSender loads a pending request the actor sent.
func (s *Service) loadForSender(ctx context.Context, actor model.Identity, id string) (*model.TransferRequest, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	tr, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if tr.FromUserID != actor.UID {
		return nil, apperr.Forbidden("only the sender may do this")
	}
	if tr.Status != model.StatusPending {
		return nil, apperr.InvalidState("transfer request is %s", tr.Status)
	}
	return tr, nil
}

func (s *Service) serialNumber(ctx context.Context, equipmentID string) string {
	eq, err := s.equipment.GetEquipment(ctx, equipmentID)
	if err != nil || eq == nil {
		return ""
	}
	return eq.SerialNumber
}

func (s *Service) templateData(tr *model.TransferRequest, actorName, serial, reason string) notify.TemplateData {
	return notify.TemplateData{
		ActorName:     actorName,
		EquipmentName: tr.EquipmentName,
		SerialNumber:  serial,
		EquipmentID:   tr.EquipmentID,
		TransferID:    tr.ID,
		Reason:        reason,
	}
}

// notify sends a notification after a committed transition. Failures are
// logged and never undo the transition.
func (s *Service) notify(ctx context.Context, t notify.Template, d notify.TemplateData, userIDs ...string) {
	if s.notifier == nil {
		return
	}
	result := s.notifier.Send(context.WithoutCancel(ctx), t, d, userIDs...)
	if result.Failed > 0 {
		s.logger.Warn("transfer notification partially failed",
			"template", t, "transfer_id", d.TransferID,
			"succeeded", result.Succeeded, "failed", result.Failed)
	}
}
