package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/jmylchreest/promptvid/internal/cache"
	"github.com/jmylchreest/promptvid/internal/config"
	"github.com/jmylchreest/promptvid/internal/database"
	"github.com/jmylchreest/promptvid/internal/database/migrations"
	"github.com/jmylchreest/promptvid/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/promptvid/internal/http"
	"github.com/jmylchreest/promptvid/internal/http/handlers"
	"github.com/jmylchreest/promptvid/internal/httpclient"
	"github.com/jmylchreest/promptvid/internal/lock"
	"github.com/jmylchreest/promptvid/internal/pipeline"
	"github.com/jmylchreest/promptvid/internal/provider"
	"github.com/jmylchreest/promptvid/internal/recovery"
	"github.com/jmylchreest/promptvid/internal/repository"
	"github.com/jmylchreest/promptvid/internal/scheduler"
	"github.com/jmylchreest/promptvid/internal/service"
	"github.com/jmylchreest/promptvid/internal/service/logs"
	"github.com/jmylchreest/promptvid/internal/service/progress"
	"github.com/jmylchreest/promptvid/internal/startup"
	"github.com/jmylchreest/promptvid/internal/storage"
	"github.com/jmylchreest/promptvid/internal/toolchain"
	"github.com/jmylchreest/promptvid/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the promptvid server",
	Long: `Start the promptvid HTTP server and API.

The server provides:
- REST API for submitting prompts and tracking video generation runs
- Health check endpoint
- OpenAPI documentation at /openapi.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "promptvid.db", "Database file path")
	serveCmd.Flags().String("data-dir", "data", "Storage directory for video artifacts")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	viper.BindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logsService := logs.New()
	wrappedHandler := logsService.WrapHandler(slog.Default().Handler())
	slog.SetDefault(slog.New(wrappedHandler))

	logger := slog.Default()

	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("database") {
		cfg.Database.DSN, _ = cmd.Flags().GetString("database")
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Storage.BaseDir, _ = cmd.Flags().GetString("data-dir")
	}

	orphansRemoved, err := startup.CleanupSystemTempDirs(logger)
	if err != nil {
		logger.Warn("failed to clean orphaned temp directories",
			slog.String("error", err.Error()),
		)
	} else if orphansRemoved > 0 {
		logger.Info("cleaned orphaned temp directories on startup",
			slog.Int("removed_count", orphansRemoved),
		)
	}

	dbConn, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer dbConn.Close()
	dbConn.StartStatsMonitor(context.Background())

	db := dbConn.DB
	if err := runMigrations(db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	videoSpecRepo := repository.NewVideoSpecRepository(db)
	videoRunRepo := repository.NewVideoRunRepository(db)
	lockRepo := repository.NewProcessingLockRepository(db)
	jobRepo := repository.NewJobRepository(db)

	layout, err := storage.NewLayout(cfg.Storage.BaseDir, cfg.Storage.BaseURL)
	if err != nil {
		return fmt.Errorf("initializing storage layout: %w", err)
	}

	segmentCache, err := cache.New(cfg.Storage.BaseDir, cfg.Cache.HashLength, cfg.Cache.TTL, logger)
	if err != nil {
		return fmt.Errorf("initializing segment cache: %w", err)
	}

	if cfg.FFmpeg.BinaryPath != "" {
		os.Setenv("PROMPTVID_FFMPEG_BINARY", cfg.FFmpeg.BinaryPath)
	}
	if cfg.FFmpeg.ProbePath != "" {
		os.Setenv("PROMPTVID_FFPROBE_BINARY", cfg.FFmpeg.ProbePath)
	}
	tc := toolchain.New()

	storyboardProvider := newStoryboardProvider(cfg.Providers.Storyboard, logger)
	videoSegmentProvider := newVideoSegmentProvider(cfg.Providers.VideoSegment, logger)
	narrationProvider := newNarrationProvider(cfg.Providers.Narration, logger)

	lockSvc := lock.New(lockRepo)
	recoverySvc := recovery.New(videoRunRepo, layout, logger)

	pipelineConfig := pipeline.Config{
		FadeDuration:         cfg.Pipeline.FadeDuration,
		SyncToleranceSeconds: cfg.Pipeline.SyncToleranceSeconds,
	}
	pipelineFactory := pipeline.NewDefaultFactory(
		videoRunRepo,
		videoSpecRepo,
		layout,
		segmentCache,
		tc,
		storyboardProvider,
		videoSegmentProvider,
		narrationProvider,
		logger,
		pipelineConfig,
	)

	videoService := service.NewVideoService(videoSpecRepo, videoRunRepo, layout, lockSvc, pipelineFactory, recoverySvc).
		WithLogger(logger).
		WithLockTimeout(cfg.Lock.Timeout).
		WithMaxSegmentRetries(cfg.Pipeline.MaxSegmentRetries)

	if err := videoService.RecoverAndResume(context.Background()); err != nil {
		logger.Error("failed to recover orphaned video runs", slog.String("error", err.Error()))
	}

	progressService := progress.NewService(logger)
	progressService.Start()
	defer progressService.Stop()

	jobExecutor := scheduler.NewExecutor(jobRepo).WithLogger(logger)
	jobExecutor.RegisterHandler(scheduler.JobTypeLockSweep, scheduler.NewLockSweepHandler(lockSvc))
	jobExecutor.RegisterHandler(scheduler.JobTypeCacheCleanup, scheduler.NewCacheCleanupHandler(segmentCache))
	jobExecutor.RegisterHandler(scheduler.JobTypeRecoverySweep, scheduler.NewRecoverySweepHandler(recoverySvc))

	jobScheduler := scheduler.NewScheduler(jobRepo).WithLogger(logger).WithConfig(scheduler.SchedulerConfig{
		InternalJobs: []scheduler.InternalJobConfig{
			{JobType: scheduler.JobTypeLockSweep, TargetName: "lock sweep", CronSchedule: cfg.Scheduler.LockSweepCron},
			{JobType: scheduler.JobTypeCacheCleanup, TargetName: "cache cleanup", CronSchedule: cfg.Scheduler.CacheCleanupCron},
			{JobType: scheduler.JobTypeRecoverySweep, TargetName: "recovery sweep", CronSchedule: cfg.Scheduler.RecoverySweepCron},
		},
	})
	jobRunner := scheduler.NewRunner(jobRepo, jobExecutor).WithLogger(logger)
	jobRunner.Start(context.Background())
	defer jobRunner.Stop()

	if err := jobScheduler.Start(context.Background()); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer jobScheduler.Stop()

	jobService := service.NewJobService(jobRepo).
		WithLogger(logger).
		WithScheduler(jobScheduler).
		WithRunner(jobRunner)

	serverConfig := internalhttp.ServerConfig{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	healthHandler := handlers.NewHealthHandler(version.Version).WithDB(db)
	healthHandler.Register(server.API())

	videoHandler := handlers.NewVideoHandler(videoService)
	videoHandler.Register(server.API())

	promptHandler := handlers.NewPromptHandler(storyboardProvider)
	promptHandler.Register(server.API())

	systemStatusHandler := handlers.NewSystemStatusHandler(lockSvc, layout, segmentCache)
	systemStatusHandler.Register(server.API())

	ffmpegHandler := handlers.NewSystemHandler(&ffmpegInfoAdapter{detector: ffmpeg.NewBinaryDetector()})
	ffmpegHandler.Register(server.API())

	fileHandler := handlers.NewFileHandler(videoService, layout)
	fileHandler.RegisterFileServer(server.Router())

	jobHandler := handlers.NewJobHandler(jobService)
	jobHandler.Register(server.API())

	progressHandler := handlers.NewProgressHandler(progressService)
	progressHandler.Register(server.API())
	progressHandler.RegisterSSE(server.Router())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting promptvid server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

// newStoryboardProvider wires an HTTP-backed storyboard provider when a
// base URL is configured, falling back to the in-memory fake for local
// development and environments without an LLM endpoint.
func newStoryboardProvider(ep config.ProviderEndpoint, logger *slog.Logger) provider.StoryboardProvider {
	if ep.BaseURL == "" {
		return &provider.FakeStoryboardProvider{}
	}
	client := newProviderClient(ep, logger)
	return provider.NewLLMStoryboardProvider(client, ep.BaseURL, ep.APIKey, ep.Model)
}

func newVideoSegmentProvider(ep config.ProviderEndpoint, logger *slog.Logger) provider.VideoSegmentProvider {
	if ep.BaseURL == "" {
		return provider.NewFakeVideoSegmentProvider()
	}
	client := newProviderClient(ep, logger)
	return provider.NewHTTPVideoSegmentProvider(client, ep.BaseURL, ep.APIKey)
}

func newNarrationProvider(ep config.ProviderEndpoint, logger *slog.Logger) provider.NarrationProvider {
	if ep.BaseURL == "" {
		return &provider.FakeNarrationProvider{}
	}
	client := newProviderClient(ep, logger)
	return provider.NewHTTPNarrationProvider(client, ep.BaseURL, ep.APIKey)
}

func newProviderClient(ep config.ProviderEndpoint, logger *slog.Logger) *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = ep.Timeout
	cfg.RetryAttempts = ep.RetryAttempts
	cfg.RetryDelay = ep.RetryDelay
	cfg.Logger = logger
	client := httpclient.New(cfg)
	httpclient.DefaultRegistry.Register(ep.BaseURL, client)
	return client
}

// ffmpegInfoAdapter adapts ffmpeg.BinaryDetector's Detect method to the
// handlers.FFmpegInfoProvider interface.
type ffmpegInfoAdapter struct {
	detector *ffmpeg.BinaryDetector
}

func (a *ffmpegInfoAdapter) GetFFmpegInfo(ctx context.Context) (*ffmpeg.BinaryInfo, error) {
	return a.detector.Detect(ctx)
}

func runMigrations(db *gorm.DB, logger *slog.Logger) error {
	migrator := migrations.NewMigrator(db, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	return migrator.Up(context.Background())
}
