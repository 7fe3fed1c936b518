package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/optilab/optilab-api/internal/bootstrap"
	"github.com/optilab/optilab-api/internal/data"
	"github.com/optilab/optilab-api/internal/domain/model"
)

func runJobStats(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("job-stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	stats, err := repo.Stats(ctx)
	if err != nil {
		return fmt.Errorf("fetch job stats: %w", err)
	}

	return printJobStats(stats)
}

func printJobStats(stats *model.JobStats) error {
	if stats == nil {
		return writeln(os.Stdout, "(no job statistics available)")
	}

	if err := writef(os.Stdout, "\nSolve Job Counts\n"); err != nil {
		return fmt.Errorf("print job stats header: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "State\tCount"); err != nil {
		return fmt.Errorf("write stats header: %w", err)
	}
	if err := writef(w, "Queued\t%d\n", stats.Queued); err != nil {
		return fmt.Errorf("write queued count: %w", err)
	}
	if err := writef(w, "Running\t%d\n", stats.Running); err != nil {
		return fmt.Errorf("write running count: %w", err)
	}
	if err := writef(w, "Completed\t%d\n", stats.Completed); err != nil {
		return fmt.Errorf("write completed count: %w", err)
	}
	if err := writef(w, "Failed\t%d\n", stats.Failed); err != nil {
		return fmt.Errorf("write failed count: %w", err)
	}
	if err := writef(w, "Cancelled\t%d\n", stats.Cancelled); err != nil {
		return fmt.Errorf("write cancelled count: %w", err)
	}

	total := stats.Queued + stats.Running + stats.Completed + stats.Failed + stats.Cancelled
	if err := writef(w, "Total\t%d\n", total); err != nil {
		return fmt.Errorf("write total count: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush stats table: %w", err)
	}
	return nil
}

func runSolvers(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("solvers", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	engine := bootstrap.BuildSolverEngine(cmdCtx.Config.Solver, cmdCtx.Logger)
	solvers, err := engine.Solvers(ctx)
	if err != nil {
		return fmt.Errorf("probe solver catalog: %w", err)
	}

	return printSolverCatalog(string(cmdCtx.Config.Solver.Engine), solvers)
}

func printSolverCatalog(engineKind string, solvers []model.SolverInfo) error {
	if err := writef(os.Stdout, "\nSolver Catalog (engine: %s)\n", engineKind); err != nil {
		return fmt.Errorf("print solver catalog header: %w", err)
	}

	if len(solvers) == 0 {
		return writeln(os.Stdout, "(no solvers reported)")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "Solver\tAvailable\tSupports\tDescription"); err != nil {
		return fmt.Errorf("write solver header: %w", err)
	}
	for _, s := range solvers {
		available := "no"
		if s.Available {
			available = "yes"
		}
		if err := writef(
			w,
			"%s\t%s\t%s\t%s\n",
			s.Name,
			available,
			strings.Join(s.Supports, ","),
			s.Description,
		); err != nil {
			return fmt.Errorf("write solver row %q: %w", s.Name, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush solver table: %w", err)
	}
	return nil
}
