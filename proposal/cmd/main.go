// Command submit_word serves the word submission endpoint
// and offers one-shot helpers to submit a word or preview
// its proposal branch name from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/byte4ever/usulan/config"
	"github.com/byte4ever/usulan/metrics"
	"github.com/byte4ever/usulan/proposal"
	"github.com/byte4ever/usulan/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	provider   string
	logLevel   string
}

// override applies the flags that were set on cfg.
func (g *globalFlags) override(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		if cmd.Flags().Changed("provider") {
			cfg.Provider = g.provider
		}

		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = g.logLevel
		}
	}
}

func rootCmd() *cobra.Command {
	var gf globalFlags

	cmd := &cobra.Command{
		Use:           "submit_word",
		Short:         "Turn dictionary word submissions into pull requests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(
		&gf.configPath, "config", "c", "",
		"YAML configuration file",
	)
	pf.StringVar(
		&gf.provider, "provider", config.ProviderGitHub,
		"Git hosting platform: github, gitlab, bitbucket, "+
			"or memory",
	)
	pf.StringVar(
		&gf.logLevel, "log-level", "info",
		"Log level (debug, info, warn, error)",
	)

	cmd.AddCommand(
		serveCmd(&gf),
		submitCmd(&gf),
		branchNameCmd(),
	)

	return cmd
}

func serveCmd(gf *globalFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the submission endpoint over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			override := gf.override(cmd)

			cfg, err := config.LoadWith(
				gf.configPath,
				func(c *config.Config) {
					override(c)

					if cmd.Flags().Changed("listen") {
						c.Listen = listen
					}
				},
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(
				cmd.Context(), os.Interrupt, syscall.SIGTERM,
			)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(
		&listen, "listen", ":8888", "TCP address to listen on",
	)

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	const errCtx = "serving"

	logger, err := newLogger(cfg, os.Stderr, true)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)

	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	h, err := newHost(cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	p, err := proposal.NewProposer(
		metrics.InstrumentHost(h, rec),
		cfg.ProposalConfig(),
		proposal.WithLogger(logger),
		proposal.WithObserver(rec),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	srv := server.New(p, server.Config{
		Listen:            cfg.Listen,
		Paths:             cfg.Paths,
		RequestTimeout:    time.Duration(cfg.RequestTimeout),
		ShutdownTimeout:   time.Duration(cfg.ShutdownTimeout),
		MaxBodyBytes:      cfg.MaxBodyBytes,
		LegacyErrors:      cfg.LegacyErrors,
		ExposeErrorDetail: cfg.ExposeErrorDetail,
		Metrics:           metrics.Handler(reg),
		Logger:            logger,
	})

	logger.Info(
		"starting submit_word",
		"provider", cfg.Provider,
		"base_branch", cfg.BaseBranch,
		"dataset", cfg.DatasetPath,
	)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

func submitCmd(gf *globalFlags) *cobra.Command {
	var req proposal.Request

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one word and print the pull request URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWith(
				gf.configPath, gf.override(cmd),
			)
			if err != nil {
				return err
			}

			return submit(
				cmd.Context(), cfg, req,
				cmd.OutOrStdout(), cmd.ErrOrStderr(),
			)
		},
	}

	cmd.Flags().StringVar(&req.Kata, "kata", "", "Word")
	cmd.Flags().StringVar(&req.Bahasa, "bahasa", "", "Language")
	cmd.Flags().StringVar(&req.Arti, "arti", "", "Meaning")

	return cmd
}

func submit(
	ctx context.Context,
	cfg *config.Config,
	req proposal.Request,
	out io.Writer,
	logOut io.Writer,
) error {
	const errCtx = "submitting word"

	logger, err := newLogger(cfg, logOut, false)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	h, err := newHost(cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	p, err := proposal.NewProposer(
		h, cfg.ProposalConfig(), proposal.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	res, err := p.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf(
			"%s: %s: %w", errCtx, proposal.KindOf(err), err,
		)
	}

	_, err = fmt.Fprintf(out, "%s\n%s\n", res.Message, res.PRURL)

	return err
}

func branchNameCmd() *cobra.Command {
	var (
		req  proposal.Request
		opts proposal.BranchOptions
	)

	cmd := &cobra.Command{
		Use:   "branch-name",
		Short: "Print the branch name a submission would use now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(
				cmd.OutOrStdout(),
				proposal.BranchName(opts, req, time.Now()),
			)

			return err
		},
	}

	cmd.Flags().StringVar(&req.Kata, "kata", "", "Word")
	cmd.Flags().StringVar(&req.Bahasa, "bahasa", "", "Language")
	cmd.Flags().StringVar(
		&opts.Prefix, "prefix", proposal.DefaultBranchPrefix,
		"Branch name prefix",
	)
	cmd.Flags().IntVar(
		&opts.MaxSegmentLength, "max-segment-length", 0,
		"Cap on each sanitized segment (0 = none)",
	)
	cmd.Flags().StringVar(
		&opts.EmptySegment, "empty-segment", "",
		"Placeholder for a segment that sanitizes to nothing",
	)

	return cmd
}

// newLogger builds the process logger at the configured
// level. Servers log JSON, the CLI logs text.
func newLogger(
	cfg *config.Config,
	w io.Writer,
	asJSON bool,
) (*slog.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}

	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}

	return slog.New(slog.NewTextHandler(w, opts)), nil
}
