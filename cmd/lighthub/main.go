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

	cmdmessenger "github.com/pior/cmdmessenger"
	"github.com/pior/cmdmessenger/internal/promexporter"
	"github.com/pior/cmdmessenger/lighthub"
)

const reconnectInterval = 2 * time.Second

var configFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:           "lighthub",
		Short:         "Talk to a light switch hub over its serial link",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFlag, "config", "", "TOML config file (default $"+EnvConfig+")")
	registerFlags(flags)

	rootCmd.AddCommand(
		shellCmd(),
		listenCmd(),
		portsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command) (appConfig, zerolog.Logger, error) {
	cfg, err := loadConfig(configFlag, cmd.Flags())
	if err != nil {
		return appConfig{}, zerolog.Logger{}, err
	}
	return cfg, newLogger(os.Stderr, cfg.LogLevel), nil
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive console (default port can be changed with connect)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return newShell(cfg, &logger, os.Stdout).run(ctx, os.Stdin)
		},
	}
}

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print hub events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub, err := lighthub.New(lighthub.Config{
				Serial:     cfg.serial(),
				AckTimeout: cfg.AckTimeout,
				Handler:    newConsole(os.Stdout),
				Logger:     &logger,
			})
			if err != nil {
				return err
			}
			defer hub.Close()

			if cfg.MetricsAddr != "" {
				srv := promexporter.NewExporter(hub).Server(cfg.MetricsAddr)
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server failed")
					}
				}()
				defer srv.Close()
				logger.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics on /metrics")
			}

			if err := hub.Connect(ctx); err != nil {
				return err
			}
			logger.Info().Str("port", cfg.Port).Int("baud", cfg.Baud).Msg("listening, press Ctrl-C to stop")
			start := time.Now()

			// Connect reopens the link if the listener died.
			ticker := time.NewTicker(reconnectInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					fmt.Fprintln(os.Stderr, "shutting down...")
					st := hub.Stats()
					logger.Debug().
						Uint64("sessions", st.SessionsOpened).
						Dur("uptime", time.Since(start)).
						Msg("stopped")
					return nil
				case <-ticker.C:
					if err := hub.Connect(ctx); err != nil && ctx.Err() == nil {
						logger.Warn().Err(err).Msg("reconnect failed")
					}
				}
			}
		},
	}
}

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := cmdmessenger.ListPorts()
			if err != nil {
				return fmt.Errorf("listing serial ports: %w", err)
			}
			if len(ports) == 0 {
				fmt.Println("No serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Println(p)
			}
			return nil
		},
	}
}
