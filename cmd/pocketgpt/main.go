package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/urfave/cli/v3"

	"github.com/po4yka/pocket-gpt/internal/config"
	"github.com/po4yka/pocket-gpt/internal/firecrawl"
	"github.com/po4yka/pocket-gpt/internal/ledger"
	"github.com/po4yka/pocket-gpt/internal/openai"
	"github.com/po4yka/pocket-gpt/internal/pocket"
	"github.com/po4yka/pocket-gpt/internal/publisher"
	"github.com/po4yka/pocket-gpt/internal/ratelimit"
	"github.com/po4yka/pocket-gpt/internal/retry"
	"github.com/po4yka/pocket-gpt/internal/scheduler"
	"github.com/po4yka/pocket-gpt/internal/service"
	"github.com/po4yka/pocket-gpt/internal/storage/postgres"
)

func main() {
	cmd := &cli.Command{
		Name:  "pocketgpt",
		Usage: "Sync a Pocket collection into Postgres, enrich it with scraped content and generated summaries",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "config.yaml",
				Sources: cli.EnvVars("POCKETGPT_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "sync",
				Usage: "Pull the full remote collection into the local store",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "merge",
						Usage: "Refresh remote fields of records that already exist locally",
					},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *app) error {
					_, err := app.service.Sync(ctx, cmd.Bool("merge"))
					return err
				}),
			},
			{
				Name:  "sync-since",
				Usage: "Pull only the items changed since the last sync",
				Action: withApp(func(ctx context.Context, _ *cli.Command, app *app) error {
					_, err := app.service.SyncSince(ctx)
					return err
				}),
			},
			{
				Name:  "enrich",
				Usage: "Scrape full content for articles that have none yet",
				Action: withApp(func(ctx context.Context, _ *cli.Command, app *app) error {
					_, err := app.service.Enrich(ctx)
					return err
				}),
			},
			{
				Name:  "process",
				Usage: "Generate summaries and tags for enriched articles",
				Action: withApp(func(ctx context.Context, _ *cli.Command, app *app) error {
					_, err := app.service.Process(ctx)
					return err
				}),
			},
			{
				Name:  "push-tags",
				Usage: "Write generated tags back to the remote collection",
				Action: withApp(func(ctx context.Context, _ *cli.Command, app *app) error {
					_, err := app.service.PushTags(ctx)
					return err
				}),
			},
			{
				Name:  "backfill",
				Usage: "Load records present remotely but missing locally",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "IDs per fetch batch (0 uses the configured default)",
					},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *app) error {
					_, err := app.service.BackfillMissing(ctx, int(cmd.Int("batch-size")))
					return err
				}),
			},
			{
				Name:  "delete-all",
				Usage: "Delete every locally known record from the remote collection and the local store",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm the deletion",
					},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *app) error {
					if !cmd.Bool("yes") {
						return errors.New("refusing to delete without --yes")
					}
					_, err := app.service.BulkDelete(ctx)
					return err
				}),
			},
			{
				Name:  "status",
				Usage: "Compare the remote collection against the local store",
				Action: withApp(func(ctx context.Context, _ *cli.Command, app *app) error {
					status, err := app.service.Status(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("remote total:    %d\n", status.RemoteTotal)
					fmt.Printf("local articles:  %d\n", status.LocalCount)
					fmt.Printf("enriched:        %d\n", status.Enriched)
					fmt.Printf("in sync:         %t\n", status.InSync)
					if !status.LastSyncedAt.IsZero() {
						fmt.Printf("last synced at:  %s\n", status.LastSyncedAt.Format("2006-01-02 15:04:05 MST"))
					}
					return nil
				}),
			},
			{
				Name:  "daemon",
				Usage: "Run periodic incremental sync and enrichment until interrupted",
				Action: withApp(func(ctx context.Context, _ *cli.Command, app *app) error {
					sched := scheduler.NewScheduler(app.service, app.service, app.cfg.Sync.Interval, app.logger)

					runCtx, cancel := context.WithCancel(ctx)
					defer cancel()

					go func() {
						sigCh := make(chan os.Signal, 1)
						signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
						sig := <-sigCh
						app.logger.Info("received shutdown signal", "signal", sig)
						cancel()
					}()

					if err := sched.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				}),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sqlx.DB
	events  *publisher.RabbitMQ
	service *service.Service
}

type appAction func(ctx context.Context, cmd *cli.Command, app *app) error

// withApp wires the full dependency graph before the action and tears
// it down after.
func withApp(action appAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		app, err := setup(cmd.String("config"))
		if err != nil {
			return err
		}
		defer app.close()
		return action(ctx, cmd, app)
	}
}

func setup(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	var events *publisher.RabbitMQ
	if cfg.RabbitMQ.Enabled {
		events, err = publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
	}

	pocketClient := pocket.New(pocket.Config{
		ConsumerKey: cfg.Pocket.ConsumerKey,
		AccessToken: cfg.Pocket.AccessToken,
		BaseURL:     cfg.Pocket.BaseURL,
		Timeout:     cfg.Pocket.Timeout,
	}, limiterFrom(cfg.Pocket.Limits, logger), logger)

	scrapeLimiter := limiterFrom(cfg.Firecrawl.Limits, logger)
	scraper := firecrawl.New(firecrawl.Config{
		APIKey:          cfg.Firecrawl.APIKey,
		BaseURL:         cfg.Firecrawl.BaseURL,
		Timeout:         cfg.Firecrawl.Timeout,
		WaitFor:         cfg.Firecrawl.WaitFor,
		OnlyMainContent: true,
	}, logger)

	summarizer := openai.New(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
		Timeout: cfg.OpenAI.Timeout,
	}, logger)

	policy := retry.New(retry.Config{
		MaxRetries: cfg.Firecrawl.Retry.MaxRetries,
		MinWait:    cfg.Firecrawl.Retry.MinWait,
	}, logger)

	deps := service.Deps{
		Collection: pocketClient,
		Scraper:    scraper,
		Summarizer: summarizer,
		Limiter:    scrapeLimiter,
		Policy:     policy,
		Ledger:     ledger.New(logger),
		Articles:   postgres.NewArticleStore(db),
		SyncState:  postgres.NewSyncStateStore(db),
		TxManager:  postgres.NewTransactionManager(db),
	}
	if events != nil {
		deps.Publisher = events
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		events:  events,
		service: service.New(deps, logger, cfg.Sync),
	}, nil
}

func (a *app) close() {
	if a.events != nil {
		a.events.Close()
	}
	a.db.Close()
}

func limiterFrom(cfg config.LimitsConfig, logger *slog.Logger) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		MinInterval: cfg.MinInterval,
		PerMinute:   cfg.PerMinute,
		Window:      cfg.Window,
		Lifetime:    cfg.Lifetime,
	}, logger)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
