package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/ragmesh"
	"github.com/hupe1980/ragmesh/config"
	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/engine"
	"github.com/hupe1980/ragmesh/internal/tracing"
	"github.com/hupe1980/ragmesh/logging"
)

type rootFlags struct {
	configPath  string
	metricsAddr string
	trace       bool
	verbose     bool
	jsonOutput  bool
}

// RootCmd builds the ragmesh command tree.
func RootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "ragmesh",
		Short:         "Multi-agent query routing and retrieval-augmented answers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "ragmesh.yaml", "path to the configuration file")
	root.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :2112")
	root.PersistentFlags().BoolVar(&flags.trace, "trace", false, "print spans to stderr")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log routing and fallback decisions to stderr")
	root.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "print answers as JSON")

	root.AddCommand(
		validateCmd(flags),
		askCmd(flags),
		chatCmd(flags),
	)
	return root
}

func validateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and the agent table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			table, err := cfg.Build()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d agents, %d models, %d knowledge bases\n",
				flags.configPath, len(table.Profiles), len(cfg.Models), len(cfg.Knowledge))
			for _, p := range table.Profiles {
				fmt.Fprintf(out, "  %-24s %s\n", p.ID, p.Class)
			}
			return nil
		},
	}
}

func askCmd(flags *rootFlags) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags, func(ctx context.Context, mesh *ragmesh.Mesh) error {
				fa, err := mesh.HandleQuery(ctx, sessionID, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printAnswer(cmd.OutOrStdout(), fa, flags.jsonOutput)
			})
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "cli", "session id")
	return cmd
}

func chatCmd(flags *rootFlags) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Answer questions read line by line from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sessionID == "" {
				sessionID = core.NewID()
			}
			return run(cmd.Context(), flags, func(ctx context.Context, mesh *ragmesh.Mesh) error {
				return chatLoop(ctx, mesh, sessionID, cmd.InOrStdin(), cmd.OutOrStdout(), flags.jsonOutput)
			})
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (random when empty)")
	return cmd
}

func chatLoop(ctx context.Context, mesh *ragmesh.Mesh, sessionID string, in io.Reader, out io.Writer, jsonOutput bool) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := mesh.CloseSession(ctx, sessionID); err != nil {
				return err
			}
			fmt.Fprintln(out, "session reset")
			continue
		}
		fa, err := mesh.HandleQuery(ctx, sessionID, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if err := printAnswer(out, fa, jsonOutput); err != nil {
			return err
		}
	}
}

// run loads the configuration, starts the optional tracer and metrics
// server, builds the mesh and hands it to fn.
func run(ctx context.Context, flags *rootFlags, fn func(context.Context, *ragmesh.Mesh) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}

	exporter := cfg.Tracer.Exporter
	if flags.trace {
		exporter = "stdout"
	}
	shutdown, err := tracing.Setup(exporter, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	if flags.metricsAddr != "" {
		srv := serveMetrics(flags.metricsAddr)
		defer func() { _ = srv.Close() }()
	}

	mesh, err := ragmesh.New(cfg, func(o *ragmesh.Options) {
		o.BaseDir = filepath.Dir(flags.configPath)
		if flags.verbose {
			o.Callbacks = lifecycleLogging()
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = mesh.Close() }()

	return fn(ctx, mesh)
}

func lifecycleLogging() *engine.CallbackManager {
	logger := logging.NewSlogLogger(logging.LogLevelInfo, "text", false)
	cm := engine.NewCallbackManager()
	for _, t := range []engine.CallbackType{engine.CallbackAfterRoute, engine.CallbackAfterSpecialist, engine.CallbackOnFallback} {
		cm.RegisterCallback(engine.NewLoggingCallback(t, logger))
	}
	return cm
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()
	return srv
}

func printAnswer(w io.Writer, fa core.FinalAnswer, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(fa)
	}
	fmt.Fprintln(w, fa.Text)
	if len(fa.Citations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Sources:")
		for i, c := range fa.Citations {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, c)
		}
	}
	return nil
}
