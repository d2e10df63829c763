package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "MULTITHREAD_GAUGE"

// options holds the resolved harness configuration.
type options struct {
	Threads        int
	Loops          int
	Interval       time.Duration
	LogLevel       string
	RemoteWriteURL string
	Listen         string
	Runtime        bool
}

func defaultOptions() options {
	return options{
		Threads:  2,
		Loops:    2_000_000,
		Interval: 2 * time.Second,
		LogLevel: "info",
	}
}

func (o options) validate() error {
	if o.Threads <= 0 {
		return fmt.Errorf("threads must be positive, got %d", o.Threads)
	}
	if o.Loops < 0 {
		return fmt.Errorf("loops must not be negative, got %d", o.Loops)
	}
	if o.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", o.Interval)
	}
	return nil
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "multithread-gauge",
		Short: "Stress a shared counter and gauge from many goroutines",
		Long: `multithread-gauge runs a number of worker goroutines that each loop,
incrementing loop_counter and raising loop_time_max_us to the slowest
gauge update seen. A report is printed every interval and once more when
all workers finish, so the reported loop_counter values add up to
threads x loops.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(v, cfgFile); err != nil {
				return err
			}
			opts := optionsFrom(v)
			if err := opts.validate(); err != nil {
				return err
			}

			logger, err := newLogger(opts.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = run(ctx, opts, logger)
			if errors.Is(err, context.Canceled) {
				logger.Warn("Run interrupted")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	bindFlags(cmd.Flags(), v)
	return cmd
}

func bindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	def := defaultOptions()
	fs.Int("threads", def.Threads, "number of worker goroutines")
	fs.Int("loops", def.Loops, "iterations per worker")
	fs.Duration("interval", def.Interval, "reporting interval")
	fs.String("log-level", def.LogLevel, "log level (debug, info, warn, error)")
	fs.String("remote-write-url", "", "push reports to this Prometheus remote-write endpoint")
	fs.String("listen", "", "serve /metrics on this address, e.g. :9102")
	fs.Bool("runtime", false, "sample Go runtime gauges before every report")

	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		// Flags are registered above, so binding cannot fail.
		_ = v.BindPFlag(f.Name, f)
	})
}

func loadConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}

func optionsFrom(v *viper.Viper) options {
	return options{
		Threads:        v.GetInt("threads"),
		Loops:          v.GetInt("loops"),
		Interval:       v.GetDuration("interval"),
		LogLevel:       v.GetString("log-level"),
		RemoteWriteURL: v.GetString("remote-write-url"),
		Listen:         v.GetString("listen"),
		Runtime:        v.GetBool("runtime"),
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
