package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/uptimeflare/monitorsync/internal/config"
	"github.com/uptimeflare/monitorsync/internal/events"
	"github.com/uptimeflare/monitorsync/internal/logging"
	"github.com/uptimeflare/monitorsync/internal/patch"
	"github.com/uptimeflare/monitorsync/internal/pipeline"
	"github.com/uptimeflare/monitorsync/internal/watch"
	"github.com/uptimeflare/monitorsync/pkg/types"
)

// ErrDrift is returned by check when a template is out of date.
var ErrDrift = errors.New("templates out of date")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "monitorsync: %v\n", err)
		stop()
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	source     string
	templates  []string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "monitorsync",
		Short:         "Keep issue template monitor dropdowns in sync with uptime.config.ts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to monitorsync.yaml (default $MONITORSYNC_CONFIG or "+config.DefaultConfigPath+")")
	flags.StringVar(&opts.source, "source", "", "monitor configuration source, overrides source.path")
	flags.StringArrayVar(&opts.templates, "template", nil, "template path or glob, repeatable; overrides templates")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newSyncCmd(opts),
		newCheckCmd(opts),
		newListCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Regenerate the monitor options of every template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSetup(cmd, opts, func(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
				_, err := syncPass(ctx, cfg, pipeline.Options{DryRun: dryRun}, logger, cmd.OutOrStdout())
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing")
	return cmd
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Fail when a template is out of date with the source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSetup(cmd, opts, func(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
				res, err := syncPass(ctx, cfg, pipeline.Options{DryRun: true}, logger, cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if drifted := res.Drifted(); len(drifted) > 0 {
					return fmt.Errorf("%w: %s", ErrDrift, strings.Join(drifted, ", "))
				}
				return nil
			})
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the monitors declared in the source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSetup(cmd, opts, func(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
				res, err := pipeline.LoadMonitors(ctx, cfg, pipeline.Dependencies{Logger: logger})
				if err != nil {
					return err
				}
				return printMonitors(cmd.OutOrStdout(), res.Entries, format)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, yaml or json")
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sync now and again whenever the source changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSetup(cmd, opts, func(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
				files := []string{cfg.Source.Path}
				if cfg.Source.Signature != "" {
					files = append(files, cfg.Source.Signature)
				}
				trigger := func(ctx context.Context) error {
					_, err := syncPass(ctx, cfg, pipeline.Options{}, logger, cmd.OutOrStdout())
					return err
				}
				w, err := watch.New(files, trigger,
					watch.WithRunOnStart(),
					watch.WithMinInterval(cfg.Watch.MinInterval),
					watch.WithLogger(logger),
				)
				if err != nil {
					return err
				}
				logger.Info("watching source", zap.Strings("files", files))
				return w.Run(ctx)
			})
		},
	}
}

func withSetup(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, config.Config, *zap.Logger) error) error {
	logger, err := logging.New(opts.verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}
	return fn(ctx, cfg, logger)
}

func loadConfig(ctx context.Context, opts *rootOptions) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.Load(ctx, opts.configPath)
	} else {
		cfg, err = config.LoadFromEnv(ctx)
	}
	if err != nil {
		return cfg, err
	}

	if opts.source != "" {
		cfg.Source.Path = opts.source
	}
	if len(opts.templates) > 0 {
		cfg.Templates = cfg.Templates[:0:0]
		for _, path := range opts.templates {
			cfg.Templates = append(cfg.Templates, config.TemplateConfig{Path: path, Marker: patch.DefaultMarker})
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// syncPass runs one pipeline pass. Events go to the log and to the report
// printed on w once the pass succeeded.
func syncPass(ctx context.Context, cfg config.Config, opts pipeline.Options, logger *zap.Logger, w io.Writer) (pipeline.Result, error) {
	var report events.Buffer
	deps := pipeline.Dependencies{
		Logger:   logger,
		Recorder: events.NewMulti(events.LogRecorder{Logger: logger}, &report),
	}
	res, err := pipeline.Run(ctx, cfg, opts, deps)
	if err != nil {
		return res, err
	}
	printSummary(w, res, report.Events())
	return res, nil
}

func printSummary(w io.Writer, res pipeline.Result, evs []types.Event) {
	fmt.Fprintf(w, "Extracted %d monitors from %s\n", len(res.Entries), res.Source)
	for _, entry := range res.Entries {
		fmt.Fprintf(w, "  %s (%s)\n", entry.ID, entry.Name)
	}
	for _, ev := range evs {
		switch ev.Type {
		case types.EventRecordSkipped:
			fmt.Fprintf(w, "warning: skipped record at line %v: %v\n", ev.Details["line"], ev.Details["reason"])
		case types.EventDuplicateID:
			fmt.Fprintf(w, "warning: duplicate monitor id %q\n", ev.MonitorID)
		case types.EventSentinelCollision:
			fmt.Fprintf(w, "warning: monitor id %q matches the all-monitors option\n", ev.MonitorID)
		case types.EventTemplatePatched:
			fmt.Fprintf(w, "%s: updated\n", ev.Path)
		case types.EventTemplateUnchanged:
			fmt.Fprintf(w, "%s: unchanged\n", ev.Path)
		case types.EventTemplateDrift:
			fmt.Fprintf(w, "%s: out of date\n", ev.Path)
		}
	}
}

func printMonitors(w io.Writer, entries types.MonitorCollection, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		for _, entry := range entries {
			fmt.Fprintf(w, "%s (%s)\n", entry.ID, entry.Name)
		}
		return nil
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	default:
		return fmt.Errorf("unknown format %q (want text, yaml or json)", format)
	}
}
