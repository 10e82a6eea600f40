package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"example.com/safegear/services/ppe/internal/db"
	"example.com/safegear/services/ppe/internal/service"
)

var runSchedulesCmd = &cobra.Command{
	Use:   "run-schedules",
	Short: "Fire due issuance schedules once and exit",
	Long: `Expands every active schedule whose next run has passed into pending
deliveries. Intended to run from cron.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := db.Connect(&cfg.Database)
		if err != nil {
			return err
		}

		schedules := service.NewScheduleService(conn, log)
		report, err := schedules.RunDue(context.Background())
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"schedules_run":      report.SchedulesRun,
			"deliveries_created": report.DeliveriesCreated,
			"failures":           len(report.Failures),
		}).Info("Schedule run finished")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runSchedulesCmd)
}
