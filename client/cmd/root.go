package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netbirdio/wgpeer/formatter"
	"github.com/netbirdio/wgpeer/util"
)

var (
	logLevel   string
	logFile    string
	logFormat  string
	configPath string
	rootCmd    = &cobra.Command{
		Use:          "wgpeer",
		Short:        "Connects a WireGuard peer endpoint, directly or through a SOCKS5 proxy",
		Long:         "",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Peer config file location (JSON, environment variables are substituted)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "sets wgpeer log level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", util.LogConsole, "sets wgpeer log path. If console is specified the log will be output to stderr")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", formatter.FormatText, "sets wgpeer log format [text|json]")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(versionCmd)
}

// SetupCloseHandler handles SIGTERM signal and exits with success
func SetupCloseHandler(ctx context.Context, cancel context.CancelFunc) {
	termCh := make(chan os.Signal, 1)
	signal.Notify(termCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(termCh)

		done := ctx.Done()
		select {
		case <-done:
		case <-termCh:
		}

		log.Info("shutdown signal received")
		cancel()
	}()
}

// WithBackOff execute function in backoff cycle.
// retries limits the number of retries when greater than zero, the context stops the cycle.
func WithBackOff(ctx context.Context, retries uint64, bf func() error) error {
	var bo backoff.BackOff = newCLIBackOff()
	if retries > 0 {
		bo = backoff.WithMaxRetries(bo, retries)
	}

	return backoff.RetryNotify(bf, backoff.WithContext(bo, ctx), func(err error, duration time.Duration) {
		log.Warnf("retrying endpoint connection in %v due to error %v", duration, err)
	})
}

// CLIBackOffSettings is default backoff settings for CLI commands.
var CLIBackOffSettings = backoff.ExponentialBackOff{
	InitialInterval:     time.Second,
	RandomizationFactor: backoff.DefaultRandomizationFactor,
	Multiplier:          backoff.DefaultMultiplier,
	MaxInterval:         10 * time.Second,
	MaxElapsedTime:      30 * time.Second,
	Stop:                backoff.Stop,
	Clock:               backoff.SystemClock,
}

func newCLIBackOff() *backoff.ExponentialBackOff {
	bo := CLIBackOffSettings
	bo.Reset()
	return &bo
}
