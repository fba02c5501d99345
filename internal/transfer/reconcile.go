package transfer

import (
	"context"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// ReconcileResult reports a reconciliation sweep.
type ReconcileResult struct {
	Repaired   int `json:"repaired"`
	Superseded int `json:"superseded"`
	Failed     int `json:"failed"`
}

// Reconcile retries the holder update for completed requests whose
// equipment still has the old holder. A flagged request that a later
// completed transfer of the same equipment has overtaken is cleared
// without touching the holder.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult

	pending, err := store.ListNeedingReconciliation(ctx, s.db)
	if err != nil {
		return res, apperr.Store(err, "listing unreconciled transfers")
	}

	for _, tr := range pending {
		latest, err := store.ListTransferRequests(ctx, s.db, model.TransferFilter{
			EquipmentID: tr.EquipmentID,
			Status:      model.StatusCompleted,
			Limit:       1,
		})
		if err != nil {
			return res, apperr.Store(err, "checking later transfers")
		}

		if len(latest) > 0 && latest[0].ID != tr.ID {
			if err := store.SetNeedsReconciliation(ctx, s.db, tr.ID, false); err != nil {
				return res, apperr.Store(err, "clearing reconciliation flag")
			}
			res.Superseded++
			metrics.Reconciliations.WithLabelValues("superseded").Inc()
			continue
		}

		if err := s.equipment.SetHolder(ctx, tr.EquipmentID, tr.ToUserID); err != nil {
			res.Failed++
			metrics.Reconciliations.WithLabelValues("failed").Inc()
			s.logger.Error("reconciling equipment holder",
				"transfer_id", tr.ID, "equipment_id", tr.EquipmentID, "error", err)
			continue
		}
		if err := store.SetNeedsReconciliation(ctx, s.db, tr.ID, false); err != nil {
			return res, apperr.Store(err, "clearing reconciliation flag")
		}
		res.Repaired++
		metrics.Reconciliations.WithLabelValues("repaired").Inc()
		s.logger.Info("equipment holder reconciled",
			"transfer_id", tr.ID, "equipment_id", tr.EquipmentID, "holder", tr.ToUserID)
	}

	return res, nil
}
