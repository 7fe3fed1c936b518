package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// statusKeyPrefix matches the keys the job status snapshot store writes.
const statusKeyPrefix = "solve:status:"

type purgeStatusOptions struct {
	JobID  string
	All    bool
	DryRun bool
	Yes    bool
}

type purgeConfirmOptions struct {
	opts purgeStatusOptions
}

func (p purgeConfirmOptions) IsDryRun() bool { return p.opts.DryRun }
func (p purgeConfirmOptions) IsYes() bool    { return p.opts.Yes }
func (p purgeConfirmOptions) GetWarning() string {
	return "WARNING: this will remove cached status snapshots for every solve job."
}

func (p purgeConfirmOptions) GetTarget() string {
	if p.opts.JobID == "" {
		return ""
	}
	return fmt.Sprintf("job %q", p.opts.JobID)
}

func runPurgeStatusKeys(cmdCtx *commandContext, args []string) error {
	opts, err := parsePurgeStatusFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(purgeConfirmOptions{opts: opts}, "purge status snapshots"); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if redisClient == nil {
		if writeErr := writeln(os.Stderr, "Redis client is not available"); writeErr != nil {
			return fmt.Errorf("print redis availability: %w", writeErr)
		}
		return nil
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	req := &statusKeyDeleteRequest{
		Ctx:      ctx,
		Logger:   cmdCtx.Logger,
		Redis:    redisClient,
		Options:  opts,
		BatchCap: 1000,
	}
	stats, err := deleteStatusKeys(req)
	if err != nil {
		return err
	}

	if stats.total == 0 {
		if writeErr := writeln(os.Stdout, "No status snapshot keys found in Redis"); writeErr != nil {
			return fmt.Errorf("print purge summary: %w", writeErr)
		}
		return nil
	}

	if opts.DryRun {
		return printPurgeDryRun(stats)
	}

	return printPurgeSummary(stats)
}

func parsePurgeStatusFlags(args []string) (purgeStatusOptions, error) {
	fs := flag.NewFlagSet("purge-status-keys", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts purgeStatusOptions
	fs.StringVar(&opts.JobID, "job-id", "", "Purge the snapshot for a single job (required unless --all)")
	fs.BoolVar(&opts.All, "all", false, "Purge status snapshots for all jobs")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return purgeStatusOptions{}, err
	}

	opts.JobID = strings.TrimSpace(opts.JobID)
	if opts.JobID == "" && !opts.All {
		return purgeStatusOptions{}, errors.New("--job-id or --all is required")
	}
	if opts.JobID != "" && opts.All {
		return purgeStatusOptions{}, errors.New("--job-id and --all are mutually exclusive")
	}

	return opts, nil
}

func statusKeyPattern(opts purgeStatusOptions) string {
	if opts.JobID != "" {
		return statusKeyPrefix + opts.JobID
	}
	return statusKeyPrefix + "*"
}

type statusKeyDeleteRequest struct {
	Ctx      context.Context
	Logger   *slog.Logger
	Redis    redis.UniversalClient
	Options  purgeStatusOptions
	BatchCap int
}

type statusKeyDeleteStats struct {
	total    int
	deleted  int64
	failures int
}

func deleteStatusKeys(req *statusKeyDeleteRequest) (statusKeyDeleteStats, error) {
	pattern := statusKeyPattern(req.Options)

	batchCap := req.BatchCap
	if batchCap <= 0 {
		batchCap = 1000
	}

	if req.Logger != nil {
		req.Logger.Info("scanning redis", "pattern", pattern, "dry_run", req.Options.DryRun)
	}

	iter := req.Redis.Scan(req.Ctx, 0, pattern, 100).Iterator()
	batch := make([]string, 0, batchCap)

	stats := statusKeyDeleteStats{}
	for iter.Next(req.Ctx) {
		key := iter.Val()
		stats.total++

		if req.Options.DryRun {
			if err := printStatusKeyWithTTL(req, key); err != nil {
				return stats, err
			}
		}

		batch = append(batch, key)
		if len(batch) == batchCap {
			flushStatusKeyBatch(req, batch, &stats)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("redis scan: %w", err)
	}

	flushStatusKeyBatch(req, batch, &stats)
	return stats, nil
}

func printStatusKeyWithTTL(req *statusKeyDeleteRequest, key string) error {
	ttl, ttlErr := req.Redis.TTL(req.Ctx, key).Result()
	if ttlErr != nil {
		if req.Logger != nil {
			req.Logger.ErrorContext(req.Ctx, "failed to fetch TTL", "key", key, "error", ttlErr)
		}
		if printErr := writef(os.Stdout, "  %s (TTL: error: %v)\n", key, ttlErr); printErr != nil {
			return fmt.Errorf("print status key ttl error: %w", printErr)
		}
		return nil
	}

	if printErr := writef(os.Stdout, "  %s (TTL: %s)\n", key, renderTTL(ttl)); printErr != nil {
		return fmt.Errorf("print status key ttl: %w", printErr)
	}
	return nil
}

func flushStatusKeyBatch(req *statusKeyDeleteRequest, batch []string, stats *statusKeyDeleteStats) {
	if len(batch) == 0 {
		return
	}
	if req.Options.DryRun {
		stats.deleted += int64(len(batch))
		if req.Logger != nil {
			req.Logger.Info("dry-run skipping status key delete", "count", len(batch))
		}
		return
	}
	n, delErr := req.Redis.Del(req.Ctx, batch...).Result()
	if delErr != nil {
		stats.failures++
		if req.Logger != nil {
			req.Logger.Error(
				"failed to delete status keys",
				"count",
				len(batch),
				"error",
				delErr,
			)
		}
		if err := writef(os.Stdout, "Failed to delete %d keys: %v\n", len(batch), delErr); err != nil &&
			req.Logger != nil {
			req.Logger.Error("stdout write for status key delete failure failed", "error", err)
		}
		return
	}
	stats.deleted += n
}

func printPurgeDryRun(stats statusKeyDeleteStats) error {
	if err := writef(os.Stdout, "Dry-run: would delete %d/%d keys\n", stats.deleted, stats.total); err != nil {
		return fmt.Errorf("print purge dry run: %w", err)
	}
	return nil
}

func printPurgeSummary(stats statusKeyDeleteStats) error {
	if err := writef(os.Stdout, "Processed %d status snapshot keys\n", stats.total); err != nil {
		return fmt.Errorf("print purge processed: %w", err)
	}
	if err := writef(os.Stdout, "Deleted %d/%d keys\n", stats.deleted, stats.total); err != nil {
		return fmt.Errorf("print purge deleted: %w", err)
	}
	if stats.failures == 0 {
		return nil
	}

	if err := writef(os.Stdout, "Failed batches: %d\n", stats.failures); err != nil {
		return fmt.Errorf("print purge failures: %w", err)
	}
	return nil
}
