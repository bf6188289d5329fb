package main

import (
	"context"
	"errors"
	"fmt"

	"financial-diagnostics/internal/app"
	"financial-diagnostics/internal/cache"
	"financial-diagnostics/internal/database"
	"financial-diagnostics/internal/recompute"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.Migrate(cfg.Database.DSN()); err != nil {
			return err
		}
		logger.Info("Migrations applied")
		return nil
	},
}

var (
	recomputeCompany string
	recomputeTax     bool
	recomputeAll     bool
	recomputeReset   bool
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute the computed metrics of a company or of every company",
	Long: `Recompute rebuilds computed_period_metrics from the stored statements.
Without --tax both series of the company are recomputed. --all recomputes
every company that has at least one period. Publication flags survive unless
--reset-publication is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if recomputeAll == (recomputeCompany != "") {
			return errors.New("exactly one of --company or --all is required")
		}
		opts := recompute.Options{ResetPublication: recomputeReset}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			switch {
			case recomputeAll:
				results, err := a.Recomputer.RecomputeAll(ctx, nil, opts)
				if perr := printJSON(cmd, results); perr != nil {
					return perr
				}
				return err
			case cmd.Flags().Changed("tax"):
				result, err := a.Recomputer.Recompute(ctx, recomputeCompany, recomputeTax, opts)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			default:
				results, err := a.Recomputer.RecomputeCompany(ctx, recomputeCompany, opts)
				if perr := printJSON(cmd, results); perr != nil {
					return perr
				}
				return err
			}
		})
	},
}

var (
	publishPeriod string
	publishFlag   bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Set the publication flag of a computed period",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			change, err := a.Gate.SetPublished(ctx, publishPeriod, publishFlag)
			if err != nil {
				return err
			}
			return printJSON(cmd, change)
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-run series with open recompute failures",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report, err := a.Reconciler.RunOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Apply migrations and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.Migrate(cfg.Database.DSN()); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.Serve(ctx)
		})
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the Redis caches",
}

var purgeCompany string

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop every cached key of a company",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Redis.Enabled {
			return errors.New("redis is disabled")
		}
		cs, err := cache.NewCacheService(cfg.Redis)
		if err != nil {
			return err
		}
		defer cs.Close()

		if err := cs.PurgeCompany(cmd.Context(), purgeCompany); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged cache for %s\n", purgeCompany)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache health and the report queue length",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Redis.Enabled {
			return errors.New("redis is disabled")
		}
		cs, err := cache.NewCacheService(cfg.Redis)
		if err != nil {
			return err
		}
		defer cs.Close()

		pending, err := cs.PendingReportJobs(cmd.Context(), cfg.Publication.ReportQueue)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]interface{}{
			"cache":               cs.GetStats(),
			"pending_report_jobs": pending,
		})
	},
}

func init() {
	recomputeCmd.Flags().StringVar(&recomputeCompany, "company", "", "company id")
	recomputeCmd.Flags().BoolVar(&recomputeTax, "tax", false, "recompute only the tax series (false for only the monthly series)")
	recomputeCmd.Flags().BoolVar(&recomputeAll, "all", false, "recompute every company")
	recomputeCmd.Flags().BoolVar(&recomputeReset, "reset-publication", false, "unpublish every recomputed period")

	publishCmd.Flags().StringVar(&publishPeriod, "period", "", "period id")
	publishCmd.Flags().BoolVar(&publishFlag, "published", true, "publication flag to set")
	_ = publishCmd.MarkFlagRequired("period")

	cachePurgeCmd.Flags().StringVar(&purgeCompany, "company", "", "company id")
	_ = cachePurgeCmd.MarkFlagRequired("company")
	cacheCmd.AddCommand(cachePurgeCmd, cacheStatsCmd)

	rootCmd.AddCommand(migrateCmd, recomputeCmd, publishCmd, reconcileCmd, serveCmd, cacheCmd)
}
