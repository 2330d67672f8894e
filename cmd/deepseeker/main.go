package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/deepseeker-ai/deepseeker/pkg/audit"
	"github.com/deepseeker-ai/deepseeker/pkg/config"
	"github.com/deepseeker-ai/deepseeker/pkg/domain"
	"github.com/deepseeker-ai/deepseeker/pkg/llm"
	"github.com/deepseeker-ai/deepseeker/pkg/observability"
	"github.com/deepseeker-ai/deepseeker/pkg/reader"
	"github.com/deepseeker-ai/deepseeker/pkg/search"
	"github.com/deepseeker-ai/deepseeker/pkg/workflow"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"

	// Global telemetry instance
	telemetry *observability.Telemetry
	metrics   *observability.Metrics
)

func main() {
	var (
		configPath = flag.String("config", "configs/default.yaml", "Path to configuration file")
		question   = flag.String("question", "", "Research question to answer")
		maxRounds  = flag.Int("max-rounds", 0, "Override the configured round budget")
		jsonOut    = flag.Bool("json", false, "Print the full result as JSON")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("deepseeker\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	if *question == "" {
		fmt.Fprintln(os.Stderr, "a -question is required")
		flag.Usage()
		os.Exit(2)
	}

	// Optional .env for local credentials; absence is fine.
	_ = godotenv.Load()

	cfg := config.LoadOrDefault(*configPath)
	if *maxRounds > 0 {
		cfg.Engine.MaxRounds = *maxRounds
	}

	ctx := context.Background()
	if err := initObservability(cfg); err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}
	defer shutdownObservability(ctx)

	// Propagate SIGINT/SIGTERM as session cancellation; the engine turns
	// it into a forced stop with a full audit trail.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg, *question)
	if err != nil {
		log.Fatalf("Application failed: %v", err)
	}

	if *jsonOut {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Println(result.FinalAnswer)
	}

	if result.Degraded {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, question string) (*domain.Result, error) {
	llmTimeout, _ := cfg.GetDuration(cfg.LLM.Timeout)
	decisionTimeout, _ := cfg.GetDuration(cfg.Engine.DecisionTimeout)
	queryTimeout, _ := cfg.GetDuration(cfg.Search.QueryTimeout)
	readTimeout, _ := cfg.GetDuration(cfg.Fetch.ReadTimeout)
	fetchTimeout, _ := cfg.GetDuration(cfg.Fetch.FetchTimeout)

	chatOpts := &llm.ChatOptions{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     llmTimeout,
	}
	controllerClient := llm.NewChatClient(cfg.LLM.BaseURL, cfg.APIKey(), cfg.LLM.ControllerModel, chatOpts)
	readerClient := llm.NewChatClient(cfg.LLM.BaseURL, cfg.APIKey(), cfg.LLM.ReaderModel, chatOpts)

	auditLog := audit.NewFileLog(cfg.Audit.Path, cfg.Audit.MaxSizeMB, cfg.Audit.MaxBackups,
		audit.WithMetrics(metrics), audit.WithQueueSize(cfg.Audit.QueueSize))
	defer auditLog.Close()

	searchClient := search.NewHTTPClient(cfg.Search.BaseURL, &search.HTTPClientOptions{
		Country: cfg.Search.Country,
		Timeout: queryTimeout,
	})

	// Fail fast on unreachable collaborators instead of burning the round
	// budget on transport errors.
	if err := controllerClient.CheckHealth(ctx); err != nil {
		return nil, fmt.Errorf("chat endpoint is not reachable: %w", err)
	}
	if err := searchClient.CheckHealth(ctx); err != nil {
		return nil, fmt.Errorf("search service is not reachable: %w", err)
	}
	fanout := search.NewFanout(searchClient, search.FanoutConfig{
		DefaultPerQueryLimit: cfg.Search.PerQueryLimit,
		QueryTimeout:         queryTimeout,
		MaxRetries:           uint64(cfg.Search.MaxRetries),
	}, telemetry, metrics)

	readers := reader.NewPool(
		reader.NewHTTPFetcher(fetchTimeout),
		llm.NewSummarizer(readerClient),
		reader.PoolConfig{
			Concurrency:     cfg.Fetch.Concurrency,
			ReadTimeout:     readTimeout,
			ExcerptMaxChars: cfg.Fetch.ExcerptMaxChars,
			MaxRetries:      uint64(cfg.Fetch.MaxRetries),
		}, telemetry, metrics)

	engine := workflow.NewEngine(
		llm.NewDecider(controllerClient),
		fanout,
		readers,
		auditLog,
		workflow.Config{
			MaxRounds:        cfg.Engine.MaxRounds,
			DecisionTimeout:  decisionTimeout,
			TransportRetries: uint64(cfg.Engine.TransportRetries),
		}, telemetry, metrics)

	return engine.Run(ctx, question), nil
}

func initObservability(cfg *config.Config) error {
	level := observability.LogLevelInfo
	switch cfg.Observability.Logging.Level {
	case "debug":
		level = observability.LogLevelDebug
	case "warn":
		level = observability.LogLevelWarn
	case "error":
		level = observability.LogLevelError
	}
	observability.SetLogLevel(level)

	telConfig := &observability.TelemetryConfig{
		ServiceName:    "deepseeker",
		ServiceVersion: Version,
		Environment:    getEnvironment(),
		OTLPEndpoint:   cfg.Observability.Tracing.Endpoint,
		PrometheusPort: cfg.Observability.Metrics.Port,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		EnableTracing:  cfg.Observability.Tracing.Enabled,
		EnableMetrics:  cfg.Observability.Metrics.Enabled,
	}

	var err error
	telemetry, err = observability.NewTelemetry(telConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if cfg.Observability.Metrics.Enabled {
		metrics, err = observability.NewMetrics(telemetry.Meter())
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	return nil
}

func shutdownObservability(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shutdown telemetry: %v", err)
		}
	}
}

func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
