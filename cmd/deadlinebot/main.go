package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deadline-bot/internal/bot"
	"deadline-bot/internal/config"
	"deadline-bot/internal/crypto"
	"deadline-bot/internal/logger"
	"deadline-bot/internal/portal"
	"deadline-bot/internal/repository"
	"deadline-bot/internal/server"
	"deadline-bot/internal/service"
)

// trashPurgeTime is when trashed deadlines past their due date are deleted.
const trashPurgeTime = "03:00"

func main() {
	rootCmd := &cobra.Command{
		Use:           "deadlinebot",
		Short:         "Telegram bot that tracks university portal deadlines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the bot, the scheduler and the metrics endpoint",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "keygen",
			Short: "Print a new base64 ENCRYPTION_KEY",
			RunE: func(cmd *cobra.Command, _ []string) error {
				key, err := crypto.GenerateKey()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	baseLog, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = baseLog.Sync() }()

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	messenger := bot.NewMessenger(api, cfg.AdminChatID, baseLog)
	log := logger.WithAdminForwarding(baseLog, messenger)
	log.Info("authorized on telegram", zap.String("account", api.Self.UserName))

	box, err := crypto.NewSecretBox(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}

	db, err := repository.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("db handle: %w", err)
	}
	defer sqlDB.Close()

	loc := cfg.Location()
	userRepo := repository.NewUserRepository(db)
	deadlineRepo := repository.NewDeadlineRepository(db)

	client := portal.NewClient(cfg.PortalBaseURL, cfg.PortalTimeout, loc, log)
	pool := portal.NewPool(client, int64(cfg.PortalWorkers), cfg.PortalTimeout, log)

	reconciler := service.NewReconciler(deadlineRepo, log)
	syncSvc := service.NewSyncService(userRepo, deadlineRepo, reconciler, pool, box, messenger, cfg.SweepUserDelay, loc, log)
	deadlineSvc := service.NewDeadlineService(userRepo, deadlineRepo, loc, log)
	notifier := service.NewNotificationService(userRepo, deadlineRepo, messenger, loc, cfg.DailyReminderHour, log)

	if err := syncSvc.VerifyKey(ctx); err != nil {
		return fmt.Errorf("stored credentials cannot be decrypted with ENCRYPTION_KEY: %w", err)
	}

	scheduler := service.NewSchedulerService(ctx, loc, log)
	if _, err := scheduler.ScheduleHourly("deadline_sweep", syncSvc.Sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	if _, err := scheduler.ScheduleHourly("reminders", func(ctx context.Context) error {
		_, err := notifier.Dispatch(ctx, time.Now())
		return err
	}); err != nil {
		return fmt.Errorf("schedule reminders: %w", err)
	}
	if _, err := scheduler.ScheduleDaily(trashPurgeTime, "trash_purge", func(ctx context.Context) error {
		_, err := deadlineSvc.PurgeExpiredTrash(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("schedule trash purge: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	telegramBot := bot.New(api, messenger, userRepo, deadlineSvc, syncSvc, syncSvc,
		bot.Options{PortalBaseURL: cfg.PortalBaseURL}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		messenger.RunAdminFeed(gctx)
		return nil
	})
	g.Go(func() error {
		return server.New(cfg.HTTPAddr, sqlDB, log).Run(gctx)
	})
	g.Go(func() error {
		return telegramBot.Start(gctx)
	})

	log.Info("deadline bot started", zap.String("timezone", loc.String()))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
