package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	migrations "github.com/guildtrace/guildtrace/db"
	"github.com/guildtrace/guildtrace/internal/activity"
	"github.com/guildtrace/guildtrace/internal/config"
	"github.com/guildtrace/guildtrace/internal/db"
	"github.com/guildtrace/guildtrace/internal/gateway/discord"
	"github.com/guildtrace/guildtrace/internal/identity"
	"github.com/guildtrace/guildtrace/internal/interval"
	"github.com/guildtrace/guildtrace/internal/logger"
	"github.com/guildtrace/guildtrace/internal/message"
	"github.com/guildtrace/guildtrace/internal/presence"
	"github.com/guildtrace/guildtrace/internal/status"
	"github.com/guildtrace/guildtrace/internal/subject"
	"github.com/guildtrace/guildtrace/internal/tracker"
	"github.com/guildtrace/guildtrace/internal/version"
	"github.com/guildtrace/guildtrace/internal/voice"
)

func main() {
	root := &cobra.Command{
		Use:   "guildtrace",
		Short: "Discord guild activity recorder",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the gateway and record activity intervals",
		RunE: func(cmd *cobra.Command, args []string) error {
			runApp()
			return nil
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate [up|down|version|force N]",
		Short: "Apply or roll back database migrations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := provideConfig()
			if err != nil {
				return err
			}
			log := provideLogger(cfg)
			migrationsFS, err := fs.Sub(migrations.MigrationsFS, "migrations")
			if err != nil {
				return fmt.Errorf("migration fs: %w", err)
			}
			return db.RunMigrate(log, cfg.Postgres, migrationsFS, args[0], args[1:])
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.GetInfo())
		},
	}

	root.AddCommand(serveCmd, migrateCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runApp() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,

			fx.Annotate(interval.NewPGLedger, fx.As(new(interval.Ledger))),
			fx.Annotate(subject.NewPGStore, fx.As(new(subject.Store))),
			fx.Annotate(message.NewPGStore, fx.As(new(message.Store))),

			subject.NewService,
			presence.NewService,
			voice.NewService,
			activity.NewService,
			status.NewService,
			identity.NewService,
			message.NewService,
			tracker.NewService,

			provideAdapter,
		),
		fx.Invoke(
			runMigrations,
			startGateway,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideDBConn opens the pool and pings it; an unreachable store at
// startup is fatal.
func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func provideAdapter(log *slog.Logger, cfg config.Config, trk *tracker.Service) (*discord.Adapter, error) {
	if err := cfg.Discord.Validate(); err != nil {
		return nil, err
	}
	return discord.NewAdapter(log, cfg.Discord.BotToken, trk)
}

func runMigrations(log *slog.Logger, cfg config.Config) error {
	migrationsFS, err := fs.Sub(migrations.MigrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration fs: %w", err)
	}
	return db.RunMigrate(log, cfg.Postgres, migrationsFS, "up", nil)
}

func startGateway(lc fx.Lifecycle, log *slog.Logger, adapter *discord.Adapter, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting guildtrace %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := adapter.Start(ctx); err != nil {
				log.Error("gateway failed", slog.Any("error", err))
				_ = shutdowner.Shutdown()
				return err
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return adapter.Stop(ctx)
		},
	})
}
