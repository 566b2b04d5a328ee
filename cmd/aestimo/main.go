package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/app"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/scheduler"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	ticker       = flag.String("ticker", "", "Ticker symbol to analyze (e.g. AAPL)")
	outputDir    = flag.String("out", "", "Report output directory (overrides config)")
	pdfOutput    = flag.Bool("pdf", false, "Also render reports as PDF")
	runSchedule  = flag.Bool("schedule", false, "Run the configured watchlist schedule instead of a single analysis")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Aestimo version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("aestimo.toml"); err == nil {
			configFiles = append(configFiles, "aestimo.toml")
		}
	}

	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	if *outputDir != "" {
		config.Reports.Dir = *outputDir
	}
	if *pdfOutput {
		config.Reports.Format = "pdf"
	}
	if *runSchedule {
		config.Schedule.Enabled = true
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	if err := config.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	// Cancel in-flight work on Ctrl+C
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if config.Schedule.Enabled {
		runScheduled(ctx, application)
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(*ticker))
	if symbol == "" {
		logger.Fatal().Msg("No ticker specified (use -ticker AAPL or -schedule)")
		os.Exit(1)
	}

	path, err := application.AnalyzeTicker(ctx, symbol)
	if err != nil {
		logger.Fatal().Err(err).Str("ticker", symbol).Msg("Analysis failed")
		os.Exit(1)
	}

	fmt.Printf("Report written to %s\n", path)
}

func runScheduled(ctx context.Context, application *app.App) {
	sched := scheduler.New(&config.Schedule, func(ctx context.Context, ticker string) error {
		_, err := application.AnalyzeTicker(ctx, ticker)
		return err
	}, logger)

	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
		os.Exit(1)
	}

	logger.Info().Msg("Scheduler running - Press Ctrl+C to stop")
	<-ctx.Done()

	logger.Info().Msg("Interrupt signal received")
	sched.Stop()
}
