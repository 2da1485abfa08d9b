package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/services/loader"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pipeline"
	"github.com/Ramsey-B/fern/pkg/rules"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fern",
		Short:         "Clean patient, encounter and diagnosis feeds and load them into PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(runCmd())
	cmd.AddCommand(transformCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(checkDBCmd())
	return cmd
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage and load the clean artifacts into the sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			skipLoad, _ := cmd.Flags().GetBool("skip-load")
			return runPipeline(cmd.Context(), cmd.OutOrStdout(), !skipLoad)
		},
	}
	cmd.Flags().Bool("skip-load", false, "Write artifacts and logs without loading the sink")
	return cmd
}

func transformCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "transform <patients|encounters|diagnoses>",
		Short:     "Run a single stage; parents are read from their clean artifacts",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(models.EntityPatients), string(models.EntityEncounters), string(models.EntityDiagnoses)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), cmd.OutOrStdout(), false, models.Entity(args[0]))
		},
	}
}

func runPipeline(ctx context.Context, out io.Writer, load bool, entities ...models.Entity) error {
	a, err := newApp(ctx, appOptions{database: load, events: true})
	if err != nil {
		return err
	}
	defer a.close()

	ruleSet, err := rules.Load(a.cfg.RulesFile)
	if err != nil {
		return err
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		Sources: pipeline.Sources{
			Patients:   a.cfg.PatientsFile,
			Encounters: a.cfg.EncountersFile,
			Diagnoses:  a.cfg.DiagnosesFile,
		},
		CleanDir: a.cfg.CleanDir,
		LogsDir:  a.cfg.LogsDir,
		Workers:  a.cfg.WorkerCount,
		Rules:    ruleSet,
	}, a.logger).
		WithMetrics(a.metrics).
		WithPublisher(a.publisher)
	if load {
		orchestrator.WithSink(loader.NewService(a.db, a.logger))
	}

	summary, runErr := orchestrator.Run(ctx, entities...)
	a.pushMetrics(ctx)
	if summary != nil {
		if err := writeJSON(out, summary); err != nil {
			return err
		}
	}
	return runErr
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the sink schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending sink migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), appOptions{database: true})
			if err != nil {
				return err
			}
			defer a.close()

			migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
				MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
				Version:             a.cfg.DatabaseMigrationVersion,
				Force:               a.cfg.DatabaseMigrationForce,
			})
			return migrations.Migrate(a.cfg.DatabaseName, a.db)
		},
	})
	return cmd
}

func checkDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-db",
		Short: "Check the sink connection and report row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), appOptions{database: true})
			if err != nil {
				return err
			}
			defer a.close()

			counts, err := loader.NewService(a.db, a.logger).Counts(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Tables in database:")
			fmt.Fprintf(out, "  - patients: %d rows\n", counts.Patients)
			fmt.Fprintf(out, "  - encounters: %d rows\n", counts.Encounters)
			fmt.Fprintf(out, "  - diagnoses: %d rows\n", counts.Diagnoses)
			return nil
		},
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
