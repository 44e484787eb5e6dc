// Package engine drives the full per-sheet pipeline (normalize, locate,
// classify, score) and fans batches out over a bounded worker pool.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"omr-engine/internal/classify"
	"omr-engine/internal/layout"
	"omr-engine/internal/locate"
	"omr-engine/internal/normalize"
	"omr-engine/internal/score"
	"omr-engine/internal/sheet"
	"omr-engine/internal/versionmark"
)

// Options configures an Engine.
type Options struct {
	// Workers bounds batch concurrency. Zero means one worker per CPU.
	Workers int

	// Normalize overrides the geometry-normalizer defaults.
	Normalize normalize.Options

	// Calibration feeds the statistical mark scorer.
	Calibration classify.Calibration

	// OverlayDir, when set, writes an annotated overlay image per scored
	// sheet for manual review.
	OverlayDir string

	// ReadVersionBox enables OCR of the printed version box for sheets whose
	// intake metadata carries no version.
	ReadVersionBox bool
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		Workers:     runtime.NumCPU(),
		Normalize:   normalize.DefaultOptions(),
		Calibration: classify.DefaultCalibration(),
	}
}

// SheetOutcome is the per-sheet batch record. Every submitted sheet produces
// exactly one outcome: a score, or a rejection with a reason code.
type SheetOutcome struct {
	CorrelationID string             `json:"correlation_id"`
	StudentID     string             `json:"student_id,omitempty"`
	Source        string             `json:"source,omitempty"`
	Version       layout.Version     `json:"version,omitempty"`
	Score         *score.ScoreResult `json:"score,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	Elapsed       time.Duration      `json:"elapsed_ns"`

	// Err carries the underlying failure for logs; Reason is the stable code
	// reports key on.
	Err error `json:"-"`
}

// Rejected reports whether the sheet produced no usable score.
func (o *SheetOutcome) Rejected() bool {
	return o.Err != nil
}

// Engine runs the scoring pipeline against a fixed layout table and
// threshold set.
type Engine struct {
	table  *layout.Table
	th     layout.Thresholds
	opts   Options
	marker *classify.Classifier
	reader *versionmark.Reader
	log    *slog.Logger
}

// New builds an Engine. The layout table and thresholds are validated by
// their loaders; New wires them to the pipeline stages.
func New(table *layout.Table, th layout.Thresholds, opts Options, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	e := &Engine{
		table:  table,
		th:     th,
		opts:   opts,
		marker: classify.New(opts.Calibration, log),
		log:    log,
	}

	if opts.ReadVersionBox {
		reader, err := versionmark.NewReader(versionmark.DefaultOptions())
		if err != nil {
			return nil, sheet.Wrap(sheet.ErrConfiguration, "engine",
				"failed to start version-box reader", err)
		}
		e.reader = reader
	}
	return e, nil
}

// Close releases engine resources.
func (e *Engine) Close() error {
	if e.reader != nil {
		return e.reader.Close()
	}
	return nil
}

// ProcessSheet runs one sheet through the full pipeline. The per-sheet
// compute budget is enforced at stage boundaries; a sheet that exceeds it is
// rejected with a timeout reason rather than holding a worker hostage.
func (e *Engine) ProcessSheet(ctx context.Context, raw *sheet.RawSheetImage) *SheetOutcome {
	start := time.Now()

	// The raw sheet is caller-owned and read-only here; a generated ID lives
	// on the outcome.
	id := raw.CorrelationID
	if id == "" {
		id = uuid.NewString()
	}
	out := &SheetOutcome{
		CorrelationID: id,
		StudentID:     raw.StudentID,
		Source:        raw.Source,
		Version:       layout.Version(raw.Version),
	}
	log := e.log.With("correlation_id", id)

	if e.th.SheetTimeoutSeconds > 0 {
		budget := time.Duration(e.th.SheetTimeoutSeconds) * time.Second
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	res, err := e.runPipeline(ctx, raw, out, log)
	out.Elapsed = time.Since(start)

	if err != nil {
		out.Err = err
		out.Reason = sheet.RejectReason(err)
		out.Score = score.Rejected(out.Version, out.Reason)
		log.Error("sheet rejected",
			"reason", out.Reason,
			"elapsed", out.Elapsed,
			"error", err)
		return out
	}

	out.Score = res
	log.Info("sheet scored",
		"version", out.Version,
		"total", res.Total,
		"quality", res.Quality,
		"elapsed", out.Elapsed)
	return out
}

// runPipeline is the stage sequence; it returns the first stage error.
func (e *Engine) runPipeline(ctx context.Context, raw *sheet.RawSheetImage, out *SheetOutcome, log *slog.Logger) (*score.ScoreResult, error) {
	if err := stageBudget(ctx, "normalize"); err != nil {
		return nil, err
	}
	norm, err := normalize.Normalize(raw, e.opts.Normalize, log)
	if err != nil {
		return nil, err
	}

	// Resolve the version before touching the grid: layout geometry is
	// version-specific.
	if out.Version == "" {
		if e.reader == nil {
			return nil, sheet.Wrap(sheet.ErrConfiguration, "engine",
				"sheet carries no version and version-box OCR is disabled", nil)
		}
		v, err := e.reader.Detect(norm)
		if err != nil {
			return nil, err
		}
		out.Version = v
		log.Info("version read from sheet", "version", v)
	}
	l, key, err := e.table.Resolve(out.Version)
	if err != nil {
		return nil, err
	}

	if err := stageBudget(ctx, "locate"); err != nil {
		return nil, err
	}
	grid, err := locate.Locate(norm, l, e.th, log)
	if err != nil {
		return nil, err
	}

	if err := stageBudget(ctx, "classify"); err != nil {
		return nil, err
	}
	det := e.marker.Classify(grid, e.th)
	det.Version = out.Version

	if err := stageBudget(ctx, "score"); err != nil {
		return nil, err
	}
	res := score.Score(det, key, l, e.th, score.Upstream{
		PartialGrid:  grid.Coverage < 1.0,
		GridCoverage: grid.Coverage,
	})

	if e.opts.OverlayDir != "" {
		path, err := renderOverlay(e.opts.OverlayDir, out.CorrelationID, norm, grid, det)
		if err != nil {
			log.Warn("overlay render failed", "error", err)
		} else {
			log.Info("overlay written", "path", path)
		}
	}
	return res, nil
}

// ProcessBatch scores a set of sheets concurrently. Results are positional:
// outcome i belongs to input i, and every dispatched sheet gets an outcome.
// A canceled context stops dispatching new sheets; in-flight sheets finish
// (recording "canceled" when they abort at a stage boundary) and their
// outcomes are returned alongside the cancellation error.
func (e *Engine) ProcessBatch(ctx context.Context, raws []*sheet.RawSheetImage) ([]*SheetOutcome, error) {
	// Reject unknown versions up front so a misconfigured batch fails before
	// any image work.
	var versions []layout.Version
	for _, raw := range raws {
		if raw.Version != "" {
			versions = append(versions, layout.Version(raw.Version))
		}
	}
	if err := e.table.HasVersions(versions); err != nil {
		return nil, err
	}
	if len(raws) > 0 && e.reader == nil {
		for _, raw := range raws {
			if raw.Version == "" {
				return nil, sheet.Wrap(sheet.ErrConfiguration, "engine",
					fmt.Sprintf("sheet %s carries no version and version-box OCR is disabled", raw.Source), nil)
			}
		}
	}

	outcomes := make([]*SheetOutcome, len(raws))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	dispatched := 0
	var dispatchErr error
	for i, raw := range raws {
		if err := ctx.Err(); err != nil {
			dispatchErr = err
			break
		}
		g.Go(func() error {
			outcomes[i] = e.ProcessSheet(ctx, raw)
			return nil
		})
		dispatched++
	}
	if err := g.Wait(); err != nil {
		return outcomes[:dispatched], err
	}
	if dispatchErr != nil {
		return outcomes[:dispatched], dispatchErr
	}
	return outcomes, nil
}

// stageBudget checks the per-sheet budget between stages. Deadline
// exhaustion maps to the timeout rejection; batch cancellation propagates
// unchanged.
func stageBudget(ctx context.Context, stage string) error {
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return sheet.Wrap(sheet.ErrProcessingTimeout, stage,
				"per-sheet compute budget exhausted", ctx.Err())
		}
		return ctx.Err()
	default:
		return nil
	}
}
