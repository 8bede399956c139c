// Package app wires the screening engine's collaborators — storage, Matcher,
// Dispatcher, Worker pool, Refresh Coordinator, Review State Machine, and
// Rate Governor — into the shared core used by cmd/opcheck-server and
// cmd/opcheck-worker.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/matcher"
	"github.com/meridiancompliance/opcheck/internal/ratelimit"
	"github.com/meridiancompliance/opcheck/internal/services/dispatcher"
	"github.com/meridiancompliance/opcheck/internal/services/refresh"
	"github.com/meridiancompliance/opcheck/internal/services/review"
	"github.com/meridiancompliance/opcheck/internal/services/worker"
	"github.com/meridiancompliance/opcheck/internal/storage/surrealdb"
	"github.com/meridiancompliance/opcheck/internal/watchlist"
)

// App holds all initialized services, storage, and configuration. It is the
// shared core used by both the server and worker binaries.
type App struct {
	Config    *common.Config
	Logger    *common.Logger
	Storage   interfaces.StorageManager
	Watchlist *watchlist.Holder
	Matcher   interfaces.Matcher

	Dispatcher     *dispatcher.Dispatcher
	WorkerPool     *worker.Pool
	RefreshRunner  *refresh.Coordinator
	ReviewService  interfaces.ReviewStateMachine
	RateGovernor   interfaces.RateGovernor

	StartupTime time.Time

	backlogMonitorCancel context.CancelFunc
}

func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, the screening collaborators, and the
// background service pool. configPath may be empty, in which case the
// default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()
	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("OPCHECK_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "opcheck-service.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/opcheck-service.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLogger(config.Logging.Level)

	if problems := config.ValidateRequired(); len(problems) > 0 {
		for _, p := range problems {
			logger.Warn().Str("problem", p).Msg("Config validation warning")
		}
	}

	storageManager, err := surrealdb.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx := context.Background()
	if password := ensureBreakglassAdmin(ctx, storageManager.InternalStore(), logger); password != "" {
		logger.Warn().Msg("A new break-glass admin password was generated; see the log line above")
	}

	watchlistHolder := watchlist.NewHolder()

	tokenMatcher := matcher.New(matcher.Thresholds{
		MatchThreshold:      config.Screening.MatchThreshold,
		SuggestionThreshold: config.Screening.SuggestionThreshold,
	})

	d := dispatcher.New(storageManager, tokenMatcher, watchlistHolder, logger, config.Screening.SyncThreshold, true)
	workerPool := worker.New(storageManager, tokenMatcher, watchlistHolder, logger, config.Screening)
	refreshCoordinator := refresh.New(storageManager, watchlistHolder, logger)
	reviewService := review.New(storageManager.EvidenceStore())
	rateGovernor := ratelimit.New(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)

	a := &App{
		Config:        config,
		Logger:        logger,
		Storage:       storageManager,
		Watchlist:     watchlistHolder,
		Matcher:       tokenMatcher,
		Dispatcher:    d,
		WorkerPool:    workerPool,
		RefreshRunner: refreshCoordinator,
		ReviewService: reviewService,
		RateGovernor:  rateGovernor,
		StartupTime:   startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App. Shutdown order: stop the
// worker pool, cancel the backlog monitor, close storage.
func (a *App) Close() {
	if a.WorkerPool != nil {
		a.WorkerPool.Stop()
	}
	if a.backlogMonitorCancel != nil {
		a.backlogMonitorCancel()
		a.backlogMonitorCancel = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}

// StartWorkerPool launches the background job-processing pool (§4.6).
func (a *App) StartWorkerPool() {
	if a.WorkerPool != nil {
		a.WorkerPool.Start()
	}
}

// StartBacklogMonitor launches the periodic queue-depth log line.
func (a *App) StartBacklogMonitor() {
	ctx, cancel := context.WithCancel(context.Background())
	a.backlogMonitorCancel = cancel
	go startBacklogMonitor(ctx, a.Storage, a.Logger, 30*time.Second)
}
