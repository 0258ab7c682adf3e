// Package pipeline runs one extract-and-patch pass: it reads the monitor
// source, regenerates the options of every configured template and writes
// the templates back only after all of them were patched successfully.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/uptimeflare/monitorsync/internal/config"
	"github.com/uptimeflare/monitorsync/internal/events"
	"github.com/uptimeflare/monitorsync/internal/extract"
	"github.com/uptimeflare/monitorsync/internal/patch"
	"github.com/uptimeflare/monitorsync/internal/verify"
	"github.com/uptimeflare/monitorsync/pkg/types"
)

// ErrNoMonitors is returned when the source declares no usable monitor.
var ErrNoMonitors = errors.New("no monitors extracted")

type Options struct {
	// DryRun patches in memory only; nothing is written.
	DryRun bool
}

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	Logger    *zap.Logger
	Recorder  events.Recorder
	Now       func() time.Time
	NewRunID  func() string
	WriteFile func(path string, data []byte) error
}

func (d *Dependencies) defaults() {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Recorder == nil {
		d.Recorder = events.LogRecorder{Logger: d.Logger}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewRunID == nil {
		d.NewRunID = uuid.NewString
	}
	if d.WriteFile == nil {
		d.WriteFile = config.WriteTemplate
	}
}

type TargetResult struct {
	Path    string
	Changed bool
	Written bool
	Region  patch.Region
}

type Result struct {
	RunID   string
	Source  string
	Entries types.MonitorCollection
	Skipped []extract.SkippedRecord
	Targets []TargetResult
}

// Drifted lists the targets whose options differ from the source.
func (r Result) Drifted() []string {
	var out []string
	for _, t := range r.Targets {
		if t.Changed {
			out = append(out, t.Path)
		}
	}
	return out
}

type patched struct {
	TargetResult
	data []byte
}

// Run executes one pass. On any error no template is written.
func Run(ctx context.Context, cfg config.Config, opts Options, deps Dependencies) (Result, error) {
	deps.defaults()
	res := Result{RunID: deps.NewRunID(), Source: cfg.Source.Path}
	logger := deps.Logger.With(zap.String("run_id", res.RunID))

	extracted, err := loadMonitors(ctx, cfg, logger)
	if err != nil {
		return res, err
	}
	res.Entries = extracted.Entries
	res.Skipped = extracted.Skipped
	record := func(ev types.Event) {
		ev.RunID = res.RunID
		ev.Timestamp = deps.Now().UTC()
		deps.Recorder.Record(ev)
	}
	reportExtraction(extracted, cfg, record)

	if len(res.Entries) == 0 {
		return res, fmt.Errorf("%s: %w", cfg.Source.Path, ErrNoMonitors)
	}

	targets, err := expandTargets(cfg.Templates)
	if err != nil {
		return res, err
	}

	results, err := patchTargets(ctx, cfg, targets, res.Entries)
	if err != nil {
		return res, err
	}

	for _, p := range results {
		switch {
		case !p.Changed:
			record(types.Event{Type: types.EventTemplateUnchanged, Path: p.Path})
		case opts.DryRun:
			record(types.Event{Type: types.EventTemplateDrift, Path: p.Path})
		default:
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if err := deps.WriteFile(p.Path, p.data); err != nil {
				return res, err
			}
			p.Written = true
			record(types.Event{
				Type:    types.EventTemplatePatched,
				Path:    p.Path,
				Details: map[string]any{"monitors": len(res.Entries)},
			})
		}
		res.Targets = append(res.Targets, p.TargetResult)
	}

	logger.Debug("sync pass finished",
		zap.Int("monitors", len(res.Entries)),
		zap.Int("targets", len(res.Targets)),
		zap.Strings("drifted", res.Drifted()),
		zap.Bool("dry_run", opts.DryRun),
	)
	return res, nil
}

// LoadMonitors reads, verifies and extracts the configured source.
func LoadMonitors(ctx context.Context, cfg config.Config, deps Dependencies) (extract.Result, error) {
	deps.defaults()
	return loadMonitors(ctx, cfg, deps.Logger)
}

func loadMonitors(ctx context.Context, cfg config.Config, logger *zap.Logger) (extract.Result, error) {
	data, err := readSource(cfg)
	if err != nil {
		return extract.Result{}, err
	}

	if cfg.Source.Signature != "" {
		if err := verifySource(ctx, cfg, data); err != nil {
			return extract.Result{}, err
		}
		logger.Debug("source signature verified", zap.String("signature", cfg.Source.Signature))
	}
	if err := ctx.Err(); err != nil {
		return extract.Result{}, err
	}

	ex := extract.New(
		extract.WithCollectionKey(cfg.Source.CollectionKey),
		extract.WithIDKey(cfg.Source.IDKey),
		extract.WithNameKey(cfg.Source.NameKey),
	)
	res, err := ex.Extract(string(data))
	if err != nil {
		return extract.Result{}, fmt.Errorf("%s: %w", cfg.Source.Path, err)
	}
	logger.Debug("monitor collection located",
		zap.Int("region_start", res.Region.Start),
		zap.Int("region_end", res.Region.End),
		zap.Int("monitors", len(res.Entries)),
	)
	return res, nil
}

func readSource(cfg config.Config) ([]byte, error) {
	limit, err := cfg.MaxSourceBytes()
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(cfg.Source.Path)
	if err != nil {
		return nil, fmt.Errorf("stat source %q: %w", cfg.Source.Path, err)
	}
	if limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("source %q is %d bytes, above the %d byte limit", cfg.Source.Path, info.Size(), limit)
	}
	data, err := os.ReadFile(cfg.Source.Path)
	if err != nil {
		return nil, fmt.Errorf("read source %q: %w", cfg.Source.Path, err)
	}
	return data, nil
}

func verifySource(ctx context.Context, cfg config.Config, data []byte) error {
	key, err := verify.LoadPublicKey(cfg.Source.PublicKey, cfg.Source.PublicKeyFile)
	if err != nil {
		return err
	}
	verifier, err := verify.NewMinisignVerifier(key)
	if err != nil {
		return err
	}
	if err := verifier.Verify(ctx, data, cfg.Source.Signature); err != nil {
		return fmt.Errorf("source %q: %w", cfg.Source.Path, err)
	}
	return nil
}

func reportExtraction(res extract.Result, cfg config.Config, record func(types.Event)) {
	for _, skipped := range res.Skipped {
		record(types.Event{
			Type: types.EventRecordSkipped,
			Path: cfg.Source.Path,
			Details: map[string]any{
				"line":   skipped.Pos.Line,
				"reason": skipped.Reason,
			},
		})
	}
	for _, id := range res.Entries.Duplicates() {
		record(types.Event{Type: types.EventDuplicateID, Path: cfg.Source.Path, MonitorID: id})
	}
	if res.Entries.Contains(cfg.Options.AllValue) {
		record(types.Event{
			Type:      types.EventSentinelCollision,
			Path:      cfg.Source.Path,
			MonitorID: cfg.Options.AllValue,
		})
	}
	record(types.Event{
		Type:    types.EventMonitorsExtracted,
		Path:    cfg.Source.Path,
		Details: map[string]any{"monitors": len(res.Entries), "skipped": len(res.Skipped)},
	})
}

// patchTargets reads and patches every target concurrently. Every failing
// target is reported, not only the first.
func patchTargets(ctx context.Context, cfg config.Config, targets []target, entries types.MonitorCollection) ([]patched, error) {
	results := make([]patched, len(targets))
	errs := make([]error, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, tgt := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = patchTarget(cfg, tgt, entries)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := multierr.Combine(errs...); err != nil {
		return nil, err
	}
	return results, nil
}

func patchTarget(cfg config.Config, tgt target, entries types.MonitorCollection) (patched, error) {
	data, err := os.ReadFile(tgt.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return patched{}, &patch.MissingTargetError{Path: tgt.path, Reason: "file does not exist"}
		}
		return patched{}, fmt.Errorf("read template %q: %w", tgt.path, err)
	}

	p := patch.New(
		patch.WithMarker(tgt.cfg.Marker),
		patch.WithAnchor(tgt.cfg.Anchor),
		patch.WithLabelFormat(cfg.Options.LabelFormat),
		patch.WithAllOption(cfg.Options.AllLabel, cfg.Options.AllValue),
	)
	text := string(data)
	out, region, err := p.Patch(text, entries)
	if err != nil {
		var missing *patch.MissingTargetError
		if errors.As(err, &missing) {
			withPath := *missing
			withPath.Path = tgt.path
			return patched{}, &withPath
		}
		return patched{}, fmt.Errorf("patch template %q: %w", tgt.path, err)
	}

	if tgt.cfg.ShouldValidateYAML(tgt.path) {
		var doc yaml.Node
		if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
			return patched{}, fmt.Errorf("patched template %q is not valid YAML: %w", tgt.path, err)
		}
	}

	return patched{
		TargetResult: TargetResult{Path: tgt.path, Changed: out != text, Region: region},
		data:         []byte(out),
	}, nil
}
