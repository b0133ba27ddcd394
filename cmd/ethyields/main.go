package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/web3-frozen/ethyields/internal/config"
	"github.com/web3-frozen/ethyields/internal/llama"
	"github.com/web3-frozen/ethyields/internal/metrics"
	"github.com/web3-frozen/ethyields/internal/notify"
	"github.com/web3-frozen/ethyields/internal/pipeline"
	"github.com/web3-frozen/ethyields/internal/runlock"
	"github.com/web3-frozen/ethyields/internal/store"
	"github.com/web3-frozen/ethyields/internal/telegram"
)

const (
	exitOK       = 0
	exitFatal    = 1
	exitConfig   = 2
	exitDelivery = 3

	pushJob = "ethyields"
)

type options struct {
	envFile  string
	dryRun   bool
	logLevel string
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	var opts options
	code := exitOK

	cmd := &cobra.Command{
		Use:           "ethyields",
		Short:         "Report newly listed ETH yield pools from DefiLlama to Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code = run(cmd.Context(), opts)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to read before the environment (ignored if absent)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "compute new pools and log the digest without inserting or sending")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	cmd.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	return code
}

func run(ctx context.Context, opts options) int {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.envFile)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitConfig
	}

	if cfg.PushgatewayURL != "" {
		defer func() {
			pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metrics.Push(pushCtx, cfg.PushgatewayURL, pushJob); err != nil {
				logger.Warn("metrics push failed", "error", err)
			}
		}()
	}

	if cfg.RedisURL != "" {
		release, held, err := acquireRunLock(ctx, cfg, logger)
		if err != nil {
			logger.Error("run lock unavailable", "error", err)
			return exitFatal
		}
		if held {
			logger.Warn("another run holds the lock, skipping", "key", runlock.Key)
			return exitOK
		}
		defer release()
	}

	bot := telegram.NewBot(cfg.BotToken, logger)
	send := notify.SendFunc(bot.SendMessage)
	if opts.dryRun {
		send = func(_ context.Context, chatID, text string) error {
			logger.Info("dry run, digest not sent", "chat_id", chatID, "text", text)
			return nil
		}
	}

	runner := pipeline.NewRunner(
		llama.NewClient(cfg.PoolsURL, cfg.HTTPTimeout),
		func(ctx context.Context) (pipeline.Store, error) {
			return store.Open(ctx, cfg.DB)
		},
		notify.New(send, cfg.ChatID, logger),
		logger,
		pipeline.WithDryRun(opts.dryRun),
	)

	_, err = runner.Run(ctx)
	return exitCode(err)
}

func acquireRunLock(ctx context.Context, cfg config.Config, logger *slog.Logger) (release func(), held bool, err error) {
	locker, err := runlock.New(cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		return nil, false, err
	}
	lease, err := locker.Acquire(ctx, runlock.Key, cfg.RunLockTTL)
	if err != nil {
		locker.Close()
		return nil, false, err
	}
	if lease == nil {
		locker.Close()
		return nil, true, nil
	}
	return func() {
		if err := lease.Release(context.Background()); err != nil {
			logger.Warn("release run lock", "error", err)
		}
		locker.Close()
	}, false, nil
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrConfig):
		return exitConfig
	case errors.Is(err, notify.ErrDelivery):
		return exitDelivery
	default:
		return exitFatal
	}
}
