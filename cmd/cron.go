package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"nudfans-backend/db"
	"nudfans-backend/services/ledger"
	"nudfans-backend/services/locks"
	"nudfans-backend/utils"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const reconcileJobTimeout = 10 * time.Minute

func cronCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cron",
		Short: "Run the scheduled jobs until interrupted",
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

			scheduler, err := newScheduler(cfg.ReconcileSchedule, ledger.New(database, cfg.Billing.PlatformFeeRate), locker)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			scheduler.Start()
			utils.Logger.WithFields(logrus.Fields{"schedule": cfg.ReconcileSchedule}).Info("[CRON] scheduler started")
			<-ctx.Done()

			// wait for a running sweep to finish
			<-scheduler.Stop().Done()
			utils.LogInfo("[CRON] scheduler stopped")
			return nil
		},
	}
}

// newScheduler registers the earnings reconciliation. Schedules use six fields, seconds first.
func newScheduler(schedule string, l *ledger.Ledger, locker locks.Locker) (*cron.Cron, error) {
	logger := cron.PrintfLogger(utils.Logger)
	scheduler := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	_, err := scheduler.AddFunc(schedule, func() {
		utils.LogInfo("[CRON] starting earnings reconciliation")
		ctx, cancel := context.WithTimeout(context.Background(), reconcileJobTimeout)
		defer cancel()
		_, _ = reconcileEarnings(ctx, l, locker)
	})
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}
