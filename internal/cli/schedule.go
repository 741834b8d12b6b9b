package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	kcron "github.com/ebarros/kestrel/pkg/cron"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run configured goals on their cron schedules",
	Long: `Schedule starts a long-running process that fires every enabled
schedule from the configuration at its cron expression, running each goal
through the full plan/execute/review loop.`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, lg, err := setup()
	if err != nil {
		return err
	}
	defer lg.Close()
	log := lg.Zerolog()

	rt, err := buildRuntime(cfg, log)
	if err != nil {
		return err
	}
	defer rt.close()

	service, err := kcron.NewService(rt.orchestrator, cfg.Schedules, log.With().Str("component", "cron").Logger())
	if err != nil {
		return err
	}
	if service.Entries() == 0 {
		return fmt.Errorf("no enabled schedules in configuration")
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.ListenAddr, rt, log)
	}

	service.Start()
	log.Info().Int("schedules", service.Entries()).Msg("scheduler started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down, waiting for in-flight runs")
	service.Stop()
	return nil
}
