package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ebarros/kestrel/internal/config"
	"github.com/ebarros/kestrel/internal/logger"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Run a goal through the plan/execute/review loop",
	Long: `Run takes a natural-language goal, plans it into dependency-ordered
steps, executes the steps, and reviews the outcome, replanning until the
goal is achieved or the iteration budget runs out.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full run result as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
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

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.ListenAddr, rt, log)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := rt.orchestrator.Run(ctx, args[0])
	if err != nil {
		return err
	}

	if runJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		fmt.Println(string(out))
	} else if result.Success {
		fmt.Println(result.Result)
	} else {
		fmt.Fprintf(os.Stderr, "run failed: %s\n", result.Error)
	}

	if !result.Success {
		// os.Exit skips deferred cleanup, so release everything first.
		rt.close()
		lg.Close()
		stop()
		os.Exit(1)
	}
	return nil
}

// setup loads configuration and initializes logging, honoring the global
// --config and --log-level flags.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	return cfg, lg, nil
}

func serveMetrics(addr string, rt *runtime, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics endpoint stopped")
	}
}
