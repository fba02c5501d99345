// Package notify creates and manages per-user notifications.
package notify

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/live"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

const (
	DefaultRetention     = 100
	DefaultFanoutWorkers = 8
)

// Payload is the rendered content of a notification.
type Payload struct {
	Title                 string
	Message               string
	RelatedEquipmentID    string
	RelatedEquipmentDocID string
	RelatedTransferID     string
	EquipmentName         string
}

// BatchResult reports a fan-out. Failures are counted, not returned.
type BatchResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Publisher is told whenever a user's notifications change.
type Publisher interface {
	Publish(ctx context.Context, userID string)
}

// Options configures a Service.
type Options struct {
	// Retention is how many notifications are kept per user.
	Retention int
	// FanoutWorkers bounds concurrent writes in CreateBatch.
	FanoutWorkers int
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service writes notifications and keeps live subscribers up to date.
type Service struct {
	db        *sql.DB
	pub       Publisher
	retention int
	workers   int
	now       func() time.Time
	logger    *slog.Logger
}

// NewService creates a notification service. pub may be nil.
func NewService(db *sql.DB, pub Publisher, opts Options, logger *slog.Logger) *Service {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.FanoutWorkers <= 0 {
		opts.FanoutWorkers = DefaultFanoutWorkers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:        db,
		pub:       pub,
		retention: opts.Retention,
		workers:   opts.FanoutWorkers,
		now:       func() time.Time { return opts.Now().UTC() },
		logger:    logger,
	}
}

// Retention returns the per-user retention limit.
func (s *Service) Retention() int { return s.retention }

func (s *Service) publish(ctx context.Context, userID string) {
	if s.pub != nil {
		s.pub.Publish(ctx, userID)
	}
}

// Create appends one notification for userID.
func (s *Service) Create(ctx context.Context, userID string, typ model.NotificationType, p Payload) (*model.Notification, error) {
	if userID == "" {
		return nil, apperr.Validation("recipient is required")
	}
	if !typ.Valid() {
		return nil, apperr.Validation("unknown notification type %q", typ)
	}
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Message) == "" {
		return nil, apperr.Validation("title and message are required")
	}

	n := &model.Notification{
		ID:                    uuid.NewString(),
		UserID:                userID,
		Type:                  typ,
		Title:                 p.Title,
		Message:               p.Message,
		RelatedEquipmentID:    p.RelatedEquipmentID,
		RelatedEquipmentDocID: p.RelatedEquipmentDocID,
		RelatedTransferID:     p.RelatedTransferID,
		EquipmentName:         p.EquipmentName,
		CreatedAt:             s.now(),
	}

	if err := store.InsertNotification(ctx, s.db, n); err != nil {
		metrics.NotificationsCreated.WithLabelValues(string(typ), "failed").Inc()
		return nil, apperr.Store(err, "creating notification")
	}
	metrics.NotificationsCreated.WithLabelValues(string(typ), "ok").Inc()

	s.publish(ctx, userID)
	return n, nil
}

// CreateBatch writes one notification per entry of userIDs. A repeated id
// gets one notification per occurrence. Writes run concurrently up to the
// worker limit. A failed write is logged and counted and does not stop the
// others.
func (s *Service) CreateBatch(ctx context.Context, userIDs []string, typ model.NotificationType, p Payload) BatchResult {
	var succeeded, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(s.workers)

	for _, uid := range userIDs {
		g.Go(func() error {
			if _, err := s.Create(ctx, uid, typ, p); err != nil {
				failed.Add(1)
				s.logger.Warn("notification not delivered",
					"user_id", uid, "type", typ, "error", err)
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	g.Wait()

	return BatchResult{Succeeded: int(succeeded.Load()), Failed: int(failed.Load())}
}

// Send renders a catalog template and fans it out to userIDs.
func (s *Service) Send(ctx context.Context, t Template, d TemplateData, userIDs ...string) BatchResult {
	typ, p, err := Render(t, d)
	if err != nil {
		s.logger.Error("rendering notification", "template", t, "error", err)
		return BatchResult{Failed: len(userIDs)}
	}
	return s.CreateBatch(ctx, userIDs, typ, p)
}

// Broadcast sends a notice to userIDs, or to every active user when
// userIDs is empty. Only admins may broadcast.
func (s *Service) Broadcast(ctx context.Context, actor model.Identity, userIDs []string, typ model.NotificationType, title, message string) (BatchResult, error) {
	if !actor.Authenticated() {
		return BatchResult{}, apperr.Unauthenticated()
	}
	if !model.RoleAtLeast(actor.Role, model.RoleAdmin) {
		return BatchResult{}, apperr.Forbidden("only admins may broadcast")
	}
	if typ == "" {
		typ = model.NotificationSystem
	}
	if !typ.Valid() {
		return BatchResult{}, apperr.Validation("unknown notification type %q", typ)
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(message) == "" {
		return BatchResult{}, apperr.Validation("title and message are required")
	}

	if len(userIDs) == 0 {
		ids, err := store.ListUserIDs(ctx, s.db)
		if err != nil {
			return BatchResult{}, apperr.Store(err, "listing recipients")
		}
		userIDs = ids
	}

	result := s.CreateBatch(ctx, userIDs, typ, Payload{Title: title, Message: message})
	s.logger.Info("broadcast sent",
		"actor", actor.UID, "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// owned returns the notification if actor owns it.
func (s *Service) owned(ctx context.Context, actor model.Identity, id string) (*model.Notification, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated()
	}
	n, err := store.GetNotification(ctx, s.db, id)
	if err != nil {
		return nil, apperr.Store(err, "loading notification")
	}
	if n == nil {
		return nil, apperr.NotFound("notification %s not found", id)
	}
	if n.UserID != actor.UID {
		return nil, apperr.Forbidden("notification belongs to another user")
	}
	return n, nil
}

// MarkRead marks one of the actor's notifications as read.
func (s *Service) MarkRead(ctx context.Context, actor model.Identity, id string) error {
	n, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if n.IsRead {
		return nil
	}
	if err := store.MarkNotificationRead(ctx, s.db, id, s.now()); err != nil {
		return apperr.Store(err, "marking notification read")
	}
	s.publish(ctx, actor.UID)
	return nil
}

// MarkAllRead marks all of the actor's notifications as read and returns
// how many changed.
func (s *Service) MarkAllRead(ctx context.Context, actor model.Identity) (int64, error) {
	if !actor.Authenticated() {
		return 0, apperr.Unauthenticated()
	}
	changed, err := store.MarkAllNotificationsRead(ctx, s.db, actor.UID, s.now())
	if err != nil {
		return 0, apperr.Store(err, "marking notifications read")
	}
	if changed > 0 {
		s.publish(ctx, actor.UID)
	}
	return changed, nil
}

// Delete removes one of the actor's notifications.
func (s *Service) Delete(ctx context.Context, actor model.Identity, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := store.DeleteNotification(ctx, s.db, id); err != nil {
		return apperr.Store(err, "deleting notification")
	}
	s.publish(ctx, actor.UID)
	return nil
}

// Cleanup trims userID's notifications to the retention limit. Live
// subscribers are refreshed when anything was removed.
func (s *Service) Cleanup(ctx context.Context, userID string) (int64, error) {
	deleted, err := store.CleanupNotifications(ctx, s.db, userID, s.retention)
	if err != nil {
		return 0, apperr.Store(err, "cleaning up notifications")
	}
	if deleted > 0 {
		s.logger.Debug("notifications cleaned up", "user_id", userID, "deleted", deleted)
		s.publish(ctx, userID)
	}
	return deleted, nil
}

// Feed trims the actor's notifications and returns the current snapshot.
// A failed cleanup is logged and does not fail the load.
func (s *Service) Feed(ctx context.Context, actor model.Identity) (live.Snapshot, error) {
	if !actor.Authenticated() {
		return live.Snapshot{}, apperr.Unauthenticated()
	}
	if _, err := s.Cleanup(ctx, actor.UID); err != nil {
		s.logger.Warn("notification cleanup failed", "user_id", actor.UID, "error", err)
	}
	snap, err := LoadSnapshot(ctx, s.db, actor.UID, s.retention)
	if err != nil {
		return live.Snapshot{}, apperr.Store(err, "loading notifications")
	}
	return snap, nil
}

// LoadSnapshot reads the newest limit notifications and the unread count.
func LoadSnapshot(ctx context.Context, db *sql.DB, userID string, limit int) (live.Snapshot, error) {
	list, err := store.ListNotifications(ctx, db, userID, limit)
	if err != nil {
		return live.Snapshot{}, err
	}
	unread, err := store.CountUnread(ctx, db, userID)
	if err != nil {
		return live.Snapshot{}, err
	}
	if list == nil {
		list = []model.Notification{}
	}
	return live.Snapshot{Notifications: list, UnreadCount: unread}, nil
}

// SnapshotLoader returns a live.Loader reading from db.
func SnapshotLoader(db *sql.DB, limit int) live.Loader {
	if limit <= 0 {
		limit = DefaultRetention
	}
	return func(ctx context.Context, userID string) (live.Snapshot, error) {
		return LoadSnapshot(ctx, db, userID, limit)
	}
}
