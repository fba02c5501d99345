package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erazemk/oprema/internal/transfer"
)

type countingReconciler struct {
	calls atomic.Int64
}

func (r *countingReconciler) Reconcile(context.Context) (transfer.ReconcileResult, error) {
	r.calls.Add(1)
	return transfer.ReconcileResult{Repaired: 1}, nil
}

func TestSchedulerRunsReconcile(t *testing.T) {
	r := &countingReconciler{}
	s, err := NewScheduler("@every 1s", r, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for r.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("reconcile job did not run")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	if _, err := NewScheduler("every tuesday", &countingReconciler{}, nil); err == nil {
		t.Error("expected error for invalid spec")
	}
}

func TestSchedulerAcceptsSecondsField(t *testing.T) {
	s, err := NewScheduler("0 */5 * * * *", &countingReconciler{}, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Stop()
}
