package cmd

import (
	"context"
	"errors"

	"nudfans-backend/db"
	"nudfans-backend/services/ledger"
	"nudfans-backend/services/locks"
	"nudfans-backend/utils"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const reconcileLockKey = "earnings-reconcile"

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute every creator's earnings from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			database, err := db.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			in := &infra{cleanup: func() {}}
			locker := newLocker(cfg, in)
			defer in.cleanup()

			_, err = reconcileEarnings(cmd.Context(), ledger.New(database, cfg.Billing.PlatformFeeRate), locker)
			return err
		},
	}
}

// reconcileEarnings runs one sweep. It returns no drift and no error when another
// instance holds the sweep lock.
func reconcileEarnings(ctx context.Context, l *ledger.Ledger, locker locks.Locker) ([]ledger.Drift, error) {
	release, err := locker.Acquire(ctx, reconcileLockKey)
	if errors.Is(err, locks.ErrBusy) {
		utils.LogInfo("earnings reconciliation already running elsewhere, skipping")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer release()

	drifts, err := l.RecomputeAll(ctx)
	for _, d := range drifts {
		utils.LogWarn("creator earnings drift corrected", logrus.Fields{
			"creator_id":   d.CreatorID,
			"cached_cents": d.CachedCents,
			"ledger_cents": d.LedgerCents,
		})
	}
	if err != nil {
		utils.LogError(err, "earnings reconciliation failed")
		return drifts, err
	}
	utils.Logger.WithFields(logrus.Fields{"corrected": len(drifts)}).Info("earnings reconciliation done")
	return drifts, nil
}
