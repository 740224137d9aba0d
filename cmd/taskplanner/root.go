package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"task-planner/internal/bot"
	"task-planner/internal/config"
	"task-planner/internal/httpapi"
	"task-planner/internal/logger"
	"task-planner/internal/repository"
	"task-planner/internal/service"
	"task-planner/internal/session"
)

const shutdownTimeout = 10 * time.Second

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "taskplanner",
		Usage: "Task planner with sub-tasks, filters and notices over Telegram and HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Usage: "SQLite database path (overrides DATABASE_URL)",
			},
			&cli.StringFlag{
				Name:  "http-addr",
				Usage: "Serve the HTTP API on this address (overrides HTTP_ADDR)",
			},
			&cli.StringFlag{
				Name:  "digest-at",
				Usage: "Also send the digest daily at HH:MM (overrides DIGEST_AT)",
			},
			&cli.BoolFlag{
				Name:  "no-bot",
				Usage: "Do not start the Telegram bot",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cmd.IsSet("db") {
		cfg.DatabaseURL = cmd.String("db")
	}
	if cmd.IsSet("http-addr") {
		cfg.HTTPAddr = cmd.String("http-addr")
	}
	if cmd.IsSet("digest-at") {
		cfg.DigestAt = cmd.String("digest-at")
	}
	if cmd.Bool("debug") {
		cfg.LogLevel = "debug"
	}
	botEnabled := !cmd.Bool("no-bot")
	if err := cfg.Validate(botEnabled); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.LogLevel, os.Stdout)

	db, err := repository.NewDB(cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	sessions := session.NewRegistry(repository.NewRecordStore(db),
		session.WithNoticeTTL(cfg.NoticeTTL),
		session.WithLogger(logger.Component(log, "session")),
	)
	defer sessions.Close()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(cfg.HTTPAddr, sessions, logger.Component(log, "http"))
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if botEnabled {
		telegramBot, err := bot.New(cfg.TelegramToken, repository.NewUserRepository(db), sessions,
			service.NewDigestService(), logger.Component(log, "bot"))
		if err != nil {
			return fmt.Errorf("bot: %w", err)
		}

		scheduler := service.NewSchedulerService(time.Local, logger.Component(log, "scheduler"))
		if cfg.ReportInterval > 0 {
			if _, err := scheduler.ScheduleInterval(cfg.ReportInterval, "digest", telegramBot.SendDigests); err != nil {
				return fmt.Errorf("schedule digest: %w", err)
			}
		}
		if cfg.DigestAt != "" {
			if _, err := scheduler.ScheduleDaily(cfg.DigestAt, "daily digest", telegramBot.SendDigests); err != nil {
				return fmt.Errorf("schedule daily digest: %w", err)
			}
		}
		scheduler.Start()
		defer scheduler.Stop()

		g.Go(func() error {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	log.WithField("http", cfg.HTTPAddr).WithField("bot", botEnabled).Info("task planner started")
	err = g.Wait()
	log.Info("shutdown complete")
	return err
}
