package store

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/model"
)

type transferFixture struct {
	db    *sql.DB
	alice *model.User
	bob   *model.User
	carol *model.User
	radio *model.Equipment
}

func newTransferFixture(t *testing.T) *transferFixture {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	alice, err := CreateUser(ctx, database, "alice", "Alice", "", "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	bob, _ := CreateUser(ctx, database, "bob", "Bob", "", "hash", model.RoleUser)
	carol, _ := CreateUser(ctx, database, "carol", "Carol", "", "hash", model.RoleUser)

	radio, err := CreateEquipment(ctx, database, "EQ-1", "SN-100", "Radio", alice.ID)
	if err != nil {
		t.Fatalf("CreateEquipment: %v", err)
	}

	return &transferFixture{db: database, alice: alice, bob: bob, carol: carol, radio: radio}
}

func (f *transferFixture) request(from, to *model.User) *model.TransferRequest {
	now := time.Now().UTC()
	return &model.TransferRequest{
		ID:            uuid.NewString(),
		EquipmentID:   f.radio.ID,
		EquipmentName: f.radio.Name,
		FromUserID:    from.ID,
		FromUserName:  from.DisplayName,
		ToUserID:      to.ID,
		ToUserName:    to.DisplayName,
		Reason:        "field rotation",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestInsertAndGetTransferRequest(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	tr := f.request(f.alice, f.bob)
	tr.Note = "bring the charger"
	if err := InsertTransferRequest(ctx, f.db, tr); err != nil {
		t.Fatalf("InsertTransferRequest: %v", err)
	}

	got, err := GetTransferRequest(ctx, f.db, tr.ID)
	if err != nil {
		t.Fatalf("GetTransferRequest: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
	if got.Note != "bring the charger" || got.Reason != "field rotation" {
		t.Errorf("unexpected request %+v", got)
	}
	if got.RespondedAt != nil || got.LastReminderAt != nil {
		t.Error("expected nil response and reminder times")
	}

	pending, err := GetPendingTransferRequest(ctx, f.db, f.radio.ID)
	if err != nil {
		t.Fatalf("GetPendingTransferRequest: %v", err)
	}
	if pending == nil || pending.ID != tr.ID {
		t.Errorf("expected pending request %s, got %+v", tr.ID, pending)
	}

	eq, _ := GetEquipment(ctx, f.db, f.radio.ID)
	if eq.PendingTransferID != tr.ID {
		t.Errorf("expected equipment to report pending transfer %s, got %q", tr.ID, eq.PendingTransferID)
	}
}

func TestGetTransferRequestMissing(t *testing.T) {
	f := newTransferFixture(t)

	got, err := GetTransferRequest(context.Background(), f.db, "nope")
	if err != nil {
		t.Fatalf("GetTransferRequest: %v", err)
	}
	if got != nil {
		t.Error("expected nil for missing request")
	}
}

func TestInsertTransferRequestConflict(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	if err := InsertTransferRequest(ctx, f.db, f.request(f.alice, f.bob)); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	err := InsertTransferRequest(ctx, f.db, f.request(f.alice, f.carol))
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestInsertTransferRequestConcurrent(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = InsertTransferRequest(ctx, f.db, f.request(f.alice, f.bob))
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !apperr.Is(err, apperr.KindConflict):
			t.Errorf("unexpected error %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one insert to succeed, got %d", succeeded)
	}
}

func TestUpdateTransferStatus(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	tr := f.request(f.alice, f.bob)
	InsertTransferRequest(ctx, f.db, tr)

	now := time.Now().UTC()
	err := UpdateTransferStatus(ctx, f.db, tr.ID, StatusUpdate{
		To:              model.StatusRejected,
		RespondedBy:     f.bob.ID,
		RejectionReason: "not needed",
		At:              now,
	})
	if err != nil {
		t.Fatalf("UpdateTransferStatus: %v", err)
	}

	got, _ := GetTransferRequest(ctx, f.db, tr.ID)
	if got.Status != model.StatusRejected || got.RespondedBy != f.bob.ID || got.RejectionReason != "not needed" {
		t.Errorf("unexpected request %+v", got)
	}
	if got.RespondedAt == nil {
		t.Error("expected responded_at to be set")
	}

	// A terminal request never moves again.
	err = UpdateTransferStatus(ctx, f.db, tr.ID, StatusUpdate{To: model.StatusCompleted, RespondedBy: f.bob.ID, At: now})
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	got, _ = GetTransferRequest(ctx, f.db, tr.ID)
	if got.Status != model.StatusRejected {
		t.Errorf("expected status to stay rejected, got %s", got.Status)
	}

	err = UpdateTransferStatus(ctx, f.db, "missing", StatusUpdate{To: model.StatusCancelled, At: now})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	if err := UpdateTransferStatus(ctx, f.db, tr.ID, StatusUpdate{To: model.StatusPending, At: now}); err == nil {
		t.Error("expected error moving to pending")
	}
}

func TestTerminalRequestFreesEquipment(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	first := f.request(f.alice, f.bob)
	InsertTransferRequest(ctx, f.db, first)
	UpdateTransferStatus(ctx, f.db, first.ID, StatusUpdate{To: model.StatusCancelled, RespondedBy: f.alice.ID, At: time.Now().UTC()})

	if err := InsertTransferRequest(ctx, f.db, f.request(f.alice, f.carol)); err != nil {
		t.Fatalf("expected new request after cancel, got %v", err)
	}
}

func TestRecordReminder(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	tr := f.request(f.alice, f.bob)
	InsertTransferRequest(ctx, f.db, tr)

	now := time.Now().UTC()
	if err := RecordReminder(ctx, f.db, tr.ID, 0, now); err != nil {
		t.Fatalf("RecordReminder: %v", err)
	}

	// A stale count loses.
	if err := RecordReminder(ctx, f.db, tr.ID, 0, now); !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("expected invalid state for stale count, got %v", err)
	}

	got, _ := GetTransferRequest(ctx, f.db, tr.ID)
	if got.ReminderCount != 1 || got.LastReminderAt == nil {
		t.Errorf("expected one reminder, got %+v", got)
	}

	UpdateTransferStatus(ctx, f.db, tr.ID, StatusUpdate{To: model.StatusCancelled, At: now})
	if err := RecordReminder(ctx, f.db, tr.ID, 1, now); !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("expected invalid state for cancelled request, got %v", err)
	}
}

func TestListTransferRequests(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	first := f.request(f.alice, f.bob)
	InsertTransferRequest(ctx, f.db, first)
	UpdateTransferStatus(ctx, f.db, first.ID, StatusUpdate{To: model.StatusCompleted, RespondedBy: f.bob.ID, At: time.Now().UTC()})
	SetEquipmentHolder(ctx, f.db, f.radio.ID, f.bob.ID)

	second := f.request(f.bob, f.carol)
	if err := InsertTransferRequest(ctx, f.db, second); err != nil {
		t.Fatalf("InsertTransferRequest: %v", err)
	}

	tests := []struct {
		name   string
		filter model.TransferFilter
		want   []string
	}{
		{"all", model.TransferFilter{}, []string{second.ID, first.ID}},
		{"bob any", model.TransferFilter{UserID: f.bob.ID}, []string{second.ID, first.ID}},
		{"bob incoming", model.TransferFilter{UserID: f.bob.ID, Direction: model.DirectionIncoming}, []string{first.ID}},
		{"bob outgoing", model.TransferFilter{UserID: f.bob.ID, Direction: model.DirectionOutgoing}, []string{second.ID}},
		{"pending", model.TransferFilter{Status: model.StatusPending}, []string{second.ID}},
		{"limit", model.TransferFilter{Limit: 1}, []string{second.ID}},
		{"other equipment", model.TransferFilter{EquipmentID: "EQ-2"}, nil},
	}

	for _, tt := range tests {
		got, err := ListTransferRequests(ctx, f.db, tt.filter)
		if err != nil {
			t.Fatalf("%s: ListTransferRequests: %v", tt.name, err)
		}
		if len(got) != len(tt.want) {
			t.Errorf("%s: expected %d requests, got %d", tt.name, len(tt.want), len(got))
			continue
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Errorf("%s: position %d: expected %s, got %s", tt.name, i, tt.want[i], got[i].ID)
			}
		}
	}
}

func TestReconciliationFlag(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	tr := f.request(f.alice, f.bob)
	InsertTransferRequest(ctx, f.db, tr)

	// Pending requests cannot be flagged.
	SetNeedsReconciliation(ctx, f.db, tr.ID, true)
	list, _ := ListNeedingReconciliation(ctx, f.db)
	if len(list) != 0 {
		t.Fatalf("expected no flagged requests, got %d", len(list))
	}

	UpdateTransferStatus(ctx, f.db, tr.ID, StatusUpdate{To: model.StatusCompleted, RespondedBy: f.bob.ID, At: time.Now().UTC()})
	if err := SetNeedsReconciliation(ctx, f.db, tr.ID, true); err != nil {
		t.Fatalf("SetNeedsReconciliation: %v", err)
	}

	list, err := ListNeedingReconciliation(ctx, f.db)
	if err != nil {
		t.Fatalf("ListNeedingReconciliation: %v", err)
	}
	if len(list) != 1 || !list[0].NeedsReconciliation {
		t.Fatalf("expected one flagged request, got %+v", list)
	}

	SetNeedsReconciliation(ctx, f.db, tr.ID, false)
	list, _ = ListNeedingReconciliation(ctx, f.db)
	if len(list) != 0 {
		t.Errorf("expected flag cleared, got %d", len(list))
	}
}
