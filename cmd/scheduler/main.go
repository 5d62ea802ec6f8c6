package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/content-scheduler/internal/ai"
	"github.com/content-scheduler/internal/api"
	"github.com/content-scheduler/internal/config"
	"github.com/content-scheduler/internal/engine"
	"github.com/content-scheduler/internal/media/unsplash"
	"github.com/content-scheduler/internal/models"
	"github.com/content-scheduler/internal/service"
	"github.com/content-scheduler/internal/storage"
	"github.com/content-scheduler/internal/storage/sqlite"
	"github.com/content-scheduler/pkg/logger"
	"github.com/content-scheduler/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	repo    storage.Repository
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "content-scheduler",
		Short: "Background daemon for the automated content scheduler",
		Long: `Runs the trigger loop that fires due schedules and the admin API.
This daemon should be run as a service for autonomous operation.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting content scheduler")

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	limiter := ratelimit.NewDefaultLimiter()
	aiClient := ai.NewClient(cfg.Anthropic, limiter, log)

	engineOpts := []engine.Option{}
	if cfg.Media.Enabled {
		images := unsplash.NewClient(cfg.Media.UnsplashAPIKey, limiter, log)
		engineOpts = append(engineOpts, engine.WithImageSearcher(images, cfg.Media.MaxImages))
	}
	eng := engine.New(repo, aiClient, loc, cfg.Scheduler.RunTimeout, log, engineOpts...)

	// Fail out any runs interrupted by a previous crash so their topics are
	// released before the trigger loop starts.
	if recovered, err := eng.RecoverStaleRuns(context.Background()); err != nil {
		log.Error().Err(err).Msg("Stale run recovery failed")
	} else if recovered > 0 {
		log.Warn().Int("recovered", recovered).Msg("Recovered interrupted runs")
	}

	admin := service.NewAdmin(repo, eng, loc, log)
	server := api.NewServer(admin, log)
	go func() {
		if err := server.Run(cfg.Server.Addr); err != nil {
			log.Error().Err(err).Msg("Admin API server failed")
		}
	}()

	// The trigger loop: every tick, fire one execution per due schedule.
	// Each schedule runs on its own goroutine; the RUNNING-log guard in the
	// engine keeps a slow run from overlapping with the next tick's attempt.
	c := cron.New(cron.WithLogger(cronLogger{log}))
	_, err = c.AddFunc(cfg.Scheduler.TickCron, func() {
		ctx := context.Background()
		due, err := repo.DueSchedules(ctx, eng.Now())
		if err != nil {
			log.Error().Err(err).Msg("Failed to query due schedules")
			return
		}
		for _, schedule := range due {
			go func(id uint) {
				if _, err := eng.Run(ctx, id, models.TriggerAutomatic); err != nil {
					log.Error().Err(err).Uint("schedule_id", id).Msg("Scheduled run failed")
				}
			}(schedule.ID)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule trigger loop: %w", err)
	}

	c.Start()
	log.Info().Str("cron", cfg.Scheduler.TickCron).Msg("Trigger loop started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down scheduler")
	<-c.Stop().Done()

	return nil
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Msgf(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Msgf(msg, keysAndValues...)
}
