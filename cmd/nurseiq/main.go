package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/nurseiq/internal/orchestrator"
	"github.com/tjfontaine/nurseiq/internal/runtime"
	"github.com/tjfontaine/nurseiq/internal/telemetry"
)

const serviceName = "nurseiq"

type globalFlags struct {
	configPath string
	logLevel   string
	traces     string
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Clinical handover orchestrator",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "config.yaml", "Path to the YAML config file (optional)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&flags.traces, "traces", "none", "Span export: stdout, stderr or none")

	cmd.AddCommand(serveCmd(flags))
	cmd.AddCommand(processCmd(flags))
	return cmd
}

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser API and MCP tools over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stdout, flags.logLevel)

			shutdownTracer, err := initTracer(flags.traces, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdownTracer(context.Background()); err != nil {
					logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
				}
			}()

			svc, err := runtime.New(
				runtime.WithConfigPath(flags.configPath),
				runtime.WithLogger(logger),
			)
			if err != nil {
				return fmt.Errorf("create service: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if err := svc.Start(ctx); err != nil {
				return fmt.Errorf("start service: %w", err)
			}

			// Wait for shutdown signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan

			logger.Info("Shutdown signal received, stopping nurseiq...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			return svc.Shutdown(shutdownCtx)
		},
	}
}

func processCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "process <file|->",
		Short: "Process one handover note and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the result; everything else goes to stderr.
			logger := newLogger(os.Stderr, flags.logLevel)

			shutdownTracer, err := initTracer(flags.traces, logger)
			if err != nil {
				return err
			}
			defer shutdownTracer(context.Background())

			note, err := readNote(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			svc, err := runtime.New(
				runtime.WithConfigPath(flags.configPath),
				runtime.WithLogger(logger),
			)
			if err != nil {
				return fmt.Errorf("create service: %w", err)
			}

			progress := orchestrator.ObserverFunc(func(p orchestrator.Progress) {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", p.State, p.Message)
			})

			result, err := svc.Process(cmd.Context(), note, progress)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func readNote(arg string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if arg == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("read note: %w", err)
	}
	return string(data), nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
	return logger
}

func initTracer(target string, logger *slog.Logger) (func(context.Context) error, error) {
	var w io.Writer
	switch strings.ToLower(target) {
	case "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	case "", "none":
	default:
		return nil, fmt.Errorf("unknown trace target %q", target)
	}
	return telemetry.InitTracer(serviceName, w, logger)
}
