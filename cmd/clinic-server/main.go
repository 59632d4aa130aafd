package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicdesk/clinic/internal/config"
	"github.com/clinicdesk/clinic/internal/domain/invoice"
	"github.com/clinicdesk/clinic/internal/domain/visit"
	"github.com/clinicdesk/clinic/internal/platform/db"
	"github.com/clinicdesk/clinic/internal/platform/jobs"
	"github.com/clinicdesk/clinic/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinic-server",
		Short:        "Clinic billing API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(counterCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withBackends loads configuration, opens the stores and runs fn.
func withBackends(fn func(ctx context.Context, cfg *config.Config, b *backends) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	ctx := logger.WithContext(context.Background())

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close(ctx)
	return fn(ctx, cfg, b)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the tenant schema (postgres) or indexes (mongo)",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			return withBackends(func(ctx context.Context, cfg *config.Config, b *backends) error {
				tenant = orDefault(tenant, cfg.DefaultTenant)
				if b.pool == nil {
					if err := visit.EnsureAppointmentIndexes(db.WithTenant(ctx, tenant), b.store); err != nil {
						return err
					}
					fmt.Printf("Indexes ensured for tenant %s.\n", tenant)
					return nil
				}

				schema := db.SchemaName(tenant)
				fmt.Printf("Running migrations on schema: %s\n", schema)
				count, err := db.NewMigrator(b.pool, migrations.FS).Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("tenant", "", "Tenant to migrate (defaults to DEFAULT_TENANT)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			return withBackends(func(ctx context.Context, cfg *config.Config, b *backends) error {
				if b.pool == nil {
					return errors.New("migration status is only tracked for postgres")
				}
				schema := db.SchemaName(orDefault(tenant, cfg.DefaultTenant))
				statuses, err := db.NewMigrator(b.pool, migrations.FS).Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

				fmt.Printf("Migration status for schema: %s\n", schema)
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("tenant", "", "Tenant to inspect (defaults to DEFAULT_TENANT)")
	cmd.AddCommand(statusCmd)

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			return withBackends(func(ctx context.Context, cfg *config.Config, b *backends) error {
				if b.pool == nil {
					return errors.New("rollback is only supported for postgres")
				}
				schema := db.SchemaName(orDefault(tenant, cfg.DefaultTenant))
				m, err := db.NewMigrator(b.pool, migrations.FS).Down(ctx, schema)
				if err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				if m == nil {
					fmt.Println("Nothing to roll back.")
					return nil
				}
				fmt.Printf("Rolled back %03d_%s on %s.\n", m.Version, m.Name, schema)
				return nil
			})
		},
	}
	downCmd.Flags().String("tenant", "", "Tenant to roll back (defaults to DEFAULT_TENANT)")
	cmd.AddCommand(downCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create and migrate a new tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if !db.ValidTenantID(name) {
				return fmt.Errorf("invalid tenant identifier: %s", name)
			}

			return withBackends(func(ctx context.Context, cfg *config.Config, b *backends) error {
				if b.pool != nil {
					fmt.Printf("Creating tenant schema: %s\n", db.SchemaName(name))
					if err := db.CreateTenantSchema(ctx, b.pool, name, migrations.FS); err != nil {
						return err
					}
				} else {
					fmt.Printf("Creating tenant database: %s\n", b.store.DatabaseName(name))
					if err := visit.EnsureAppointmentIndexes(db.WithTenant(ctx, name), b.store); err != nil {
						return err
					}
				}
				fmt.Println("Tenant created successfully.")
				return nil
			})
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackends(func(ctx context.Context, cfg *config.Config, b *backends) error {
				tenants, err := b.tenants(ctx)
				if err != nil {
					return err
				}
				for _, t := range tenants {
					fmt.Println(t)
				}
				return nil
			})
		},
	})
	return cmd
}

func counterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Inspect and repair invoice counters",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the last invoice number handed out for a doctor",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			doctor, _ := cmd.Flags().GetString("doctor")
			if doctor == "" {
				return fmt.Errorf("--doctor is required")
			}
			return withBackends(func(ctx context.Context, cfg *config.Config, b *backends) error {
				invoices := invoice.NewService(b.counter)
				return b.scope(ctx, orDefault(tenant, cfg.DefaultTenant), func(ctx context.Context) error {
					n, err := invoices.Current(ctx, doctor)
					if err != nil {
						return err
					}
					fmt.Printf("%s: %d\n", doctor, n)
					return nil
				})
			})
		},
	}
	showCmd.Flags().String("tenant", "", "Tenant (defaults to DEFAULT_TENANT)")
	showCmd.Flags().String("doctor", "", "Doctor identifier")
	cmd.AddCommand(showCmd)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Raise counters to the highest stored invoice number",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			return withBackends(func(ctx context.Context, cfg *config.Config, b *backends) error {
				tenants := b.tenants
				if tenant != "" {
					tenants = func(context.Context) ([]string, error) { return []string{tenant}, nil }
				}
				visits := newVisitService(cfg, b, invoice.NewService(b.counter))
				return jobs.ReconcileCounters(tenants, b.scope, visits)(ctx)
			})
		},
	}
	reconcileCmd.Flags().String("tenant", "", "Only reconcile this tenant (default: all tenants)")
	cmd.AddCommand(reconcileCmd)

	return cmd
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		l := newLogger(os.Getenv("ENV"))
		l.Error().Err(err).Msg("failed to load config")
		return err
	}
	logger := newLogger(cfg.Env)
	ctx := logger.WithContext(context.Background())

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open stores")
		return err
	}
	defer b.Close(context.Background())

	e := newServer(cfg, logger, b)

	scheduler := jobs.NewScheduler(logger, 10*time.Minute)
	visits := newVisitService(cfg, b, invoice.NewService(b.counter))
	if err := scheduler.Add(jobs.ReconcileJobName, cfg.ReconcileSchedule,
		jobs.ReconcileCounters(b.tenants, b.scope, visits)); err != nil {
		return err
	}
	scheduler.Start()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreBackend).Str("counter", cfg.CounterBackend).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("scheduled jobs did not stop in time")
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
