package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cadence/internal/backup"
	"github.com/dukerupert/cadence/internal/config"
	"github.com/dukerupert/cadence/internal/database"
	"github.com/dukerupert/cadence/internal/housekeeping"
	"github.com/dukerupert/cadence/internal/logging"
	"github.com/dukerupert/cadence/internal/push"
	"github.com/dukerupert/cadence/internal/server"
	"github.com/dukerupert/cadence/internal/store"
)

// version is set at build time using -ldflags.
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "cadence",
		Short:         "Task, calendar, and team workload service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "cadence.yaml", "path to the YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, reminder scheduler, and housekeeping jobs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return serve(ctx, cfg, logger)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and print the schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				return migrate(cmd, cfg)
			},
		},
		&cobra.Command{
			Use:   "vapid-keys",
			Short: "Generate a VAPID key pair for web push",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				pub, priv, err := push.GenerateVAPIDKeys()
				if err != nil {
					return fmt.Errorf("generate vapid keys: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "CADENCE_VAPID_PUBLIC_KEY=%s\n", pub)
				fmt.Fprintf(out, "CADENCE_VAPID_PRIVATE_KEY=%s\n", priv)
				return nil
			},
		},
		newBackupCommand(&configPath),
	)
	return root
}

func newBackupCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage off-site database snapshots",
	}

	// withManager loads config, opens the database and hands a backup
	// manager to fn.
	withManager := func(fn func(*backup.Manager) error) error {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		db, err := database.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
		m, err := backup.NewManager(backupConfig(cfg), db, store.NewBackupStore(db), logger)
		if err != nil {
			return err
		}
		return fn(m)
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(func(m *backup.Manager) error {
				backups, err := m.List(limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tSIZE\tKEY")
				for _, b := range backups {
					fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
						b.ID, b.CreatedAt.Format(time.RFC3339), b.Status, b.SizeBytes, b.ObjectKey)
				}
				return w.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of backups to show")

	var out string
	restore := &cobra.Command{
		Use:   "restore <id>",
		Short: "Download a backup into a new database file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid backup id %q", args[0])
			}
			return withManager(func(m *backup.Manager) error {
				if err := m.Restore(cmd.Context(), id, out); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backup %d restored to %s\n", id, out)
				return nil
			})
		},
	}
	restore.Flags().StringVarP(&out, "out", "o", "", "path of the database file to create")
	restore.MarkFlagRequired("out")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Snapshot the database, upload it, and prune expired backups",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withManager(func(m *backup.Manager) error {
					b, err := m.Run(cmd.Context())
					if err != nil {
						return err
					}
					n, err := m.Prune(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d bytes), pruned %d\n", b.ObjectKey, b.SizeBytes, n)
					return nil
				})
			},
		},
		list,
		restore,
	)
	return cmd
}

func backupConfig(cfg *config.Config) backup.Config {
	b := cfg.Backup
	return backup.Config{
		S3: backup.S3Config{
			Endpoint:  b.S3.Endpoint,
			Bucket:    b.S3.Bucket,
			Region:    b.S3.Region,
			AccessKey: b.S3.AccessKey,
			SecretKey: b.S3.SecretKey,
		},
		Prefix:        b.Prefix,
		Passphrase:    b.Passphrase,
		RetentionDays: b.RetentionDays,
	}
}

func migrate(cmd *cobra.Command, cfg *config.Config) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := database.Version(db)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "database %s at schema version %d\n", cfg.DBPath, v)
	return nil
}

// serve runs until ctx is cancelled, then drains the HTTP server and stops
// the background jobs.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := server.New(db, cfg, logger)

	janitor, err := housekeeping.NewJanitor(srv.NotificationStore(), cfg.Housekeeping.Cron,
		cfg.Housekeeping.RetentionDays, cfg.Location(), logger.With("component", "housekeeping"))
	if err != nil {
		return err
	}

	if cfg.Backup.Enabled() {
		m, err := backup.NewManager(backupConfig(cfg), db, store.NewBackupStore(db), logger.With("component", "backup"))
		if err != nil {
			return err
		}
		if err := janitor.Schedule(cfg.Backup.Cron, "backup", m.RunAndPrune); err != nil {
			return err
		}
	}

	scheduler := srv.Scheduler()
	scheduler.Start(ctx)
	defer scheduler.Stop()
	janitor.Start()
	defer janitor.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cadence running", "addr", cfg.Addr(), "db", cfg.DBPath, "timezone", cfg.Timezone,
			"push", cfg.Push.Enabled(), "email", cfg.Email.Enabled(), "backup", cfg.Backup.Enabled(), "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
