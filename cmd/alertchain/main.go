package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmllr/alertchain/internal/alarm"
	"github.com/jmllr/alertchain/internal/config"
	"github.com/jmllr/alertchain/internal/engine"
	"github.com/jmllr/alertchain/internal/fetch"
	"github.com/jmllr/alertchain/internal/logger"
	"github.com/jmllr/alertchain/internal/metrics"
	"github.com/jmllr/alertchain/internal/models"
	"github.com/jmllr/alertchain/internal/resolve"
	"github.com/jmllr/alertchain/internal/state"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var fileCfg *logger.FileConfig
	if cfg.Logging.FilePath != "" {
		fileCfg = &logger.FileConfig{
			Path:       cfg.Logging.FilePath,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		}
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format, fileCfg)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	dispatcher, err := alarm.NewDispatcher(cfg.Dispatch)
	if err != nil {
		logger.Fatal("Failed to initialize dispatcher: %v", err)
	}

	client := fetch.NewClient(cfg.Fetch, cfg.Evaluator.RequestMode, cfg.Evaluator.RequestAsOf)
	cache := fetch.NewCache(cfg.Fetch.OKTTL, cfg.Fetch.FailTTL)
	fetcher := fetch.NewFetcher(client, cache, cfg.Fetch.MaxConcurrent)

	expander := resolve.NewExpander(
		resolve.NewStaticSource(cfg.Evaluator.SymbolGroups),
		cfg.Evaluator.GroupExpandTTL,
	)

	defaults := models.EngineDefaults{
		Interval:      cfg.Evaluator.DefaultInterval,
		Exchange:      cfg.Evaluator.DefaultExchange,
		ClockInterval: cfg.Evaluator.ClockInterval,
	}
	eng := engine.New(defaults, expander, fetcher, store, dispatcher)

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(cfg.Metrics.ListenAddr); err != nil {
				logger.Error("Metrics endpoint failed: %v", err)
			}
		}()
		logger.Info("Metrics endpoint listening on %s", cfg.Metrics.ListenAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	logger.Info("Starting evaluation service (interval: %v, profiles: %s, dispatch: %s, storage: %s)",
		cfg.Evaluator.PollInterval,
		cfg.Evaluator.ProfilesPath,
		cfg.Dispatch.Mode,
		cfg.Storage.Backend,
	)

	ticker := time.NewTicker(cfg.Evaluator.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleRunResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Evaluation run failed: %v", err)
			if consecutiveFailures == 1 {
				if sendErr := dispatcher.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 {
				if sendErr := dispatcher.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial evaluation cycle")
	handleRunResult(runCycle(ctx, eng, cfg))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled evaluation cycle")
			handleRunResult(runCycle(ctx, eng, cfg))
		}
	}
}

// runCycle reloads profiles, consumes pending rearm requests, and executes
// one evaluation run. Profiles are re-read every cycle so edits in the CRUD
// layer take effect without a restart.
func runCycle(ctx context.Context, eng *engine.Engine, cfg *config.Config) error {
	if cfg.Evaluator.RearmPath != "" {
		if err := consumeRearms(eng, cfg.Evaluator.RearmPath); err != nil {
			logger.Warn("Failed to process rearm requests: %v", err)
		}
	}

	profiles, err := models.LoadProfiles(cfg.Evaluator.ProfilesPath)
	if err != nil {
		return err
	}
	logger.Debug("Loaded %d profile(s) from %s", len(profiles), cfg.Evaluator.ProfilesPath)

	sum, err := eng.Run(ctx, profiles)
	if err != nil {
		return err
	}
	if len(sum.Errors) > 0 {
		logger.Warn("Run %s finished with %d unit error(s)", sum.RunID, len(sum.Errors))
	}
	return nil
}

// rearmRequest is one entry of the rearm request file.
type rearmRequest struct {
	ProfileID      string `json:"profile_id"`
	GID            string `json:"gid"`
	ResetThreshold bool   `json:"reset_threshold"`
}

// consumeRearms applies and removes the rearm request file, if present. The
// file is a JSON list written by the CRUD layer when an operator reactivates
// an auto-off group.
func consumeRearms(eng *engine.Engine, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var requests []rearmRequest
	if err := json.Unmarshal(data, &requests); err != nil {
		return err
	}
	for _, req := range requests {
		n, err := eng.Rearm(req.ProfileID, req.GID, req.ResetThreshold)
		if err != nil {
			logger.Error("Rearm failed: profile=%s gid=%s err=%v", req.ProfileID, req.GID, err)
			continue
		}
		logger.Info("Rearm applied: profile=%s gid=%s units=%d", req.ProfileID, req.GID, n)
	}
	return os.Remove(path)
}

func openStore(cfg *config.Config) (state.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return state.NewMemoryStore(cfg.Storage.HistoryCap), nil
	case "sqlite":
		return state.NewSQLiteStore(cfg.Storage.DBPath, cfg.Storage.HistoryCap)
	default:
		return state.NewJSONStore(cfg.Storage.StatusPath, cfg.Storage.HistoryPath, cfg.Storage.HistoryCap)
	}
}
