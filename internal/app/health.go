package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/atlas/internal/cli"
	"horse.fit/atlas/internal/clustering"
	"horse.fit/atlas/internal/db"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Second, "Ping timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, cancel := commandContext(*timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("health check failed")
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer pool.Close()

	redisStatus := "skipped"
	if strings.TrimSpace(cfg.RedisURL) != "" {
		locker, err := clustering.NewRedisLockerFromURL(ctx, cfg.RedisURL, cfg.ClusterLockTTL)
		if err != nil {
			logger.Error().Err(err).Msg("redis health check failed")
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			return 1
		}
		_ = locker.Close()
		redisStatus = "ok"
	}

	logger.Info().
		Dur("timeout", *timeout).
		Str("redis", redisStatus).
		Msg("health check passed")
	fmt.Printf("ok: database=ok redis=%s\n", redisStatus)
	return 0
}
