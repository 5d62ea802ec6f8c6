package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/content-scheduler/internal/ai"
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
	admin   *service.Admin
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "scheduler-cli",
		Short:             "Operator CLI for the automated content scheduler",
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if repo != nil {
				repo.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(topicCmd())
	rootCmd.AddCommand(logsCmd())
	rootCmd.AddCommand(postsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  "warn", // keep CLI output clean
		Format: "console",
		Output: "stdout",
	})

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
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

	admin = service.NewAdmin(repo, eng, loc, log)
	return nil
}

// schedule commands

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage schedules",
	}

	var (
		name        string
		frequency   string
		days        []int
		publishTime string
		language    string
		tone        string
		length      string
		autoPublish bool
	)

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule := &models.Schedule{
				Name:              name,
				IsActive:          true,
				Frequency:         models.Frequency(frequency),
				DaysOfWeek:        models.IntSlice(days),
				PublishTime:       publishTime,
				Language:          language,
				Tone:              tone,
				ArticleLength:     models.ArticleLength(length),
				AutoPublish:       autoPublish,
				DefaultVisibility: models.VisibilityPublic,
			}
			if err := admin.CreateSchedule(context.Background(), schedule); err != nil {
				return err
			}
			fmt.Printf("Created schedule %d (%s)\n", schedule.ID, schedule.Name)
			if schedule.NextRunAt != nil {
				fmt.Printf("Next run: %s\n", schedule.NextRunAt.Format(time.RFC1123))
			}
			return nil
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "schedule name (required)")
	createCmd.Flags().StringVar(&frequency, "frequency", "daily", "daily, weekly, biweekly or monthly")
	createCmd.Flags().IntSliceVar(&days, "days", nil, "weekday indices for weekly/biweekly (0=Monday..6=Sunday)")
	createCmd.Flags().StringVar(&publishTime, "at", "09:00", "publish time HH:MM")
	createCmd.Flags().StringVar(&language, "language", "en", "content language")
	createCmd.Flags().StringVar(&tone, "tone", "informative", "content tone")
	createCmd.Flags().StringVar(&length, "length", "medium", "short, medium or long")
	createCmd.Flags().BoolVar(&autoPublish, "auto-publish", false, "publish generated posts immediately")
	createCmd.MarkFlagRequired("name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := admin.ListSchedules(context.Background(), false)
			if err != nil {
				return err
			}
			fmt.Printf("%-5s %-25s %-10s %-8s %-8s %s\n", "ID", "NAME", "FREQUENCY", "PAUSED", "ACTIVE", "NEXT RUN")
			for _, s := range schedules {
				next := "-"
				if s.NextRunAt != nil {
					next = s.NextRunAt.Format("2006-01-02 15:04")
				}
				fmt.Printf("%-5d %-25s %-10s %-8v %-8v %s\n",
					s.ID, truncate(s.Name, 25), s.Frequency, s.IsPaused, s.IsActive, next)
			}
			return nil
		},
	}

	pauseCmd := &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause automatic triggering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := admin.Pause(context.Background(), id); err != nil {
				return err
			}
			fmt.Printf("Schedule %d paused\n", id)
			return nil
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume automatic triggering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := admin.Resume(context.Background(), id); err != nil {
				return err
			}
			fmt.Printf("Schedule %d resumed\n", id)
			return nil
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Trigger a manual run now (does not touch the cadence)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			run, err := admin.RunNow(context.Background(), id)
			if run == nil {
				return err
			}
			fmt.Printf("Run %d finished: %s", run.ID, run.Status)
			if run.TopicUsed != "" {
				fmt.Printf(" (topic: %s)", run.TopicUsed)
			}
			if run.ErrorMessage != "" {
				fmt.Printf("\nError: %s", run.ErrorMessage)
			}
			if run.PostTitle != "" {
				fmt.Printf("\nPost: %s", run.PostTitle)
			}
			fmt.Println()
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a schedule with its topics and logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := admin.DeleteSchedule(context.Background(), id); err != nil {
				return err
			}
			fmt.Printf("Schedule %d deleted\n", id)
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats <id>",
		Short: "Show run statistics for a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			stats, err := admin.GetScheduleStats(context.Background(), id)
			if err != nil {
				return err
			}
			fmt.Printf("Total runs: %d\n", stats.TotalRuns)
			fmt.Printf("Succeeded:  %d\n", stats.Succeeded)
			fmt.Printf("Failed:     %d\n", stats.Failed)
			fmt.Printf("Skipped:    %d\n", stats.Skipped)
			fmt.Printf("Success rate: %.0f%%\n", stats.SuccessRate*100)
			if stats.LastRunAt != nil {
				fmt.Printf("Last run: %s\n", stats.LastRunAt.Format(time.RFC1123))
			}
			return nil
		},
	}

	cmd.AddCommand(createCmd, listCmd, pauseCmd, resumeCmd, runCmd, deleteCmd, statsCmd)
	return cmd
}

// topic commands

func topicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topic",
		Short: "Manage fixed and dynamic topics",
	}

	var (
		scheduleID uint
		topicText  string
		desc       string
		keywords   []string
		day        int
		subtopics  []string
		priority   int
		after      string
		before     string
	)

	fixedAddCmd := &cobra.Command{
		Use:   "add-fixed",
		Short: "Pin a topic to a weekday",
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := &models.FixedTopic{
				ScheduleID:         scheduleID,
				DayOfWeek:          day,
				Topic:              topicText,
				Description:        desc,
				Keywords:           models.StringSlice(keywords),
				SuggestedSubtopics: models.StringSlice(subtopics),
			}
			if err := admin.CreateFixedTopic(context.Background(), topic); err != nil {
				return err
			}
			fmt.Printf("Fixed topic %d created for weekday %d\n", topic.ID, topic.DayOfWeek)
			return nil
		},
	}
	fixedAddCmd.Flags().UintVar(&scheduleID, "schedule", 0, "schedule id (required)")
	fixedAddCmd.Flags().IntVar(&day, "day", 0, "weekday index (0=Monday..6=Sunday)")
	fixedAddCmd.Flags().StringVar(&topicText, "topic", "", "topic text (required)")
	fixedAddCmd.Flags().StringVar(&desc, "description", "", "topic description")
	fixedAddCmd.Flags().StringSliceVar(&keywords, "keywords", nil, "keywords")
	fixedAddCmd.Flags().StringSliceVar(&subtopics, "subtopics", nil, "suggested subtopics")
	fixedAddCmd.MarkFlagRequired("schedule")
	fixedAddCmd.MarkFlagRequired("topic")

	dynamicAddCmd := &cobra.Command{
		Use:   "add-dynamic",
		Short: "Add a topic to the rotating pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := &models.DynamicTopic{
				ScheduleID:  scheduleID,
				Topic:       topicText,
				Description: desc,
				Keywords:    models.StringSlice(keywords),
				Priority:    priority,
			}
			var err error
			if topic.UseAfterDate, err = parseDate(after); err != nil {
				return err
			}
			if topic.UseBeforeDate, err = parseDate(before); err != nil {
				return err
			}
			if err := admin.CreateDynamicTopic(context.Background(), topic); err != nil {
				return err
			}
			fmt.Printf("Dynamic topic %d created (priority %d)\n", topic.ID, topic.Priority)
			return nil
		},
	}
	dynamicAddCmd.Flags().UintVar(&scheduleID, "schedule", 0, "schedule id (required)")
	dynamicAddCmd.Flags().StringVar(&topicText, "topic", "", "topic text (required)")
	dynamicAddCmd.Flags().StringVar(&desc, "description", "", "topic description")
	dynamicAddCmd.Flags().StringSliceVar(&keywords, "keywords", nil, "keywords")
	dynamicAddCmd.Flags().IntVar(&priority, "priority", 0, "higher priority topics are preferred")
	dynamicAddCmd.Flags().StringVar(&after, "after", "", "availability start date YYYY-MM-DD")
	dynamicAddCmd.Flags().StringVar(&before, "before", "", "availability end date YYYY-MM-DD")
	dynamicAddCmd.MarkFlagRequired("schedule")
	dynamicAddCmd.MarkFlagRequired("topic")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List a schedule's topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			fixed, err := admin.ListFixedTopics(ctx, scheduleID)
			if err != nil {
				return err
			}
			if len(fixed) > 0 {
				fmt.Println("Fixed topics:")
				for _, t := range fixed {
					fmt.Printf("  [%d] day %d: %s\n", t.ID, t.DayOfWeek, t.Topic)
				}
			}
			dynamic, err := admin.ListDynamicTopics(ctx, scheduleID, storage.TopicFilter{})
			if err != nil {
				return err
			}
			if len(dynamic) > 0 {
				fmt.Println("Dynamic topics:")
				for _, t := range dynamic {
					window := ""
					if t.UseAfterDate != nil || t.UseBeforeDate != nil {
						window = fmt.Sprintf(" window=%s..%s", fmtDate(t.UseAfterDate), fmtDate(t.UseBeforeDate))
					}
					fmt.Printf("  [%d] p%d %s: %s%s\n", t.ID, t.Priority, t.Status, t.Topic, window)
				}
			}
			return nil
		},
	}
	listCmd.Flags().UintVar(&scheduleID, "schedule", 0, "schedule id (required)")
	listCmd.MarkFlagRequired("schedule")

	retireCmd := &cobra.Command{
		Use:   "retire <id>",
		Short: "Retire a pending dynamic topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := admin.RetireDynamicTopic(context.Background(), id); err != nil {
				return err
			}
			fmt.Printf("Dynamic topic %d retired\n", id)
			return nil
		},
	}

	cmd.AddCommand(fixedAddCmd, dynamicAddCmd, listCmd, retireCmd)
	return cmd
}

// logs command

func logsCmd() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "logs <schedule-id>",
		Short: "Show a schedule's run history, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			filter := storage.DefaultLogFilter()
			filter.Limit = limit
			if status != "" {
				s := models.ExecutionStatus(status)
				filter.Status = &s
			}
			logs, err := admin.ListLogs(context.Background(), id, filter)
			if err != nil {
				return err
			}
			fmt.Printf("%-6s %-20s %-9s %-9s %-8s %-30s %s\n",
				"RUN", "WHEN", "TRIGGER", "STATUS", "MS", "TOPIC", "DETAIL")
			for _, l := range logs {
				detail := l.PostTitle
				if l.ErrorMessage != "" {
					detail = l.ErrorMessage
				}
				fmt.Printf("%-6d %-20s %-9s %-9s %-8d %-30s %s\n",
					l.ID, l.CreatedAt.Format("2006-01-02 15:04:05"), l.Trigger,
					l.Status, l.ExecutionMs, truncate(l.TopicUsed, 30), truncate(detail, 60))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries")
	return cmd
}

// posts command

func postsCmd() *cobra.Command {
	var scheduleID uint
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List generated posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.PostFilter{Limit: 20}
			if scheduleID != 0 {
				filter.ScheduleID = &scheduleID
			}
			posts, err := admin.ListPosts(context.Background(), filter)
			if err != nil {
				return err
			}
			fmt.Printf("%-5s %-20s %-10s %s\n", "ID", "CREATED", "STATUS", "TITLE")
			for _, p := range posts {
				fmt.Printf("%-5d %-20s %-10s %s\n",
					p.ID, p.CreatedAt.Format("2006-01-02 15:04"), p.Status, truncate(p.Title, 60))
			}
			return nil
		},
	}
	cmd.Flags().UintVar(&scheduleID, "schedule", 0, "filter by schedule id")
	return cmd
}

// helpers

func parseID(s string) (uint, error) {
	var id uint
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}

func fmtDate(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.Format("2006-01-02")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max-3]) + "..."
}
