// Package analyze runs the extraction pipeline over an uploaded archive and
// assembles the resulting graph.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/phobologic/codegraph/internal/archive"
	"github.com/phobologic/codegraph/internal/graph"
	"github.com/phobologic/codegraph/internal/model"
	"github.com/phobologic/codegraph/internal/parse"
)

const tracerName = "github.com/phobologic/codegraph/internal/analyze"

// errExtractPanic marks a file whose extraction panicked.
var errExtractPanic = errors.New("extractor panic")

// fileExtractor turns one source file into facts. Each worker owns one.
type fileExtractor interface {
	Extract(ctx context.Context, filePath string, source []byte) (*model.FileFacts, error)
}

// Analyzer turns archives into graphs. It holds no per-request state and is
// safe for concurrent use. Each analysis parses its files on a worker pool
// sized by GOMAXPROCS.
type Analyzer struct {
	opts         archive.Options
	logger       *slog.Logger
	newExtractor func() fileExtractor
}

// New creates an Analyzer. A nil logger means slog.Default().
func New(opts archive.Options, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	opts.Logger = logger
	return &Analyzer{
		opts:         opts,
		logger:       logger,
		newExtractor: func() fileExtractor { return parse.NewExtractor() },
	}
}

// Options returns the archive options the Analyzer loads with.
func (a *Analyzer) Options() archive.Options {
	return a.opts
}

// AnalyzeArchive loads a zip archive and analyzes its eligible entries.
// Errors from the loader (archive.ErrPayloadTooLarge, *archive.ParseError)
// abort the analysis before any file is parsed.
func (a *Analyzer) AnalyzeArchive(ctx context.Context, data []byte) (res *model.Result, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analyze.archive",
		oteltrace.WithAttributes(attribute.Int("archive.bytes", len(data))))
	defer func() { finish(span, res, err) }()

	start := time.Now()
	entries, err := archive.Load(data, a.opts)
	if err != nil {
		analysesTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	span.SetAttributes(attribute.Int("archive.entries", len(entries)))

	res, err = a.analyze(ctx, entries)
	analysesTotal.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		analysisDuration.Observe(time.Since(start).Seconds())
	}
	return res, err
}

// AnalyzeEntries analyzes already loaded entries, in order.
func (a *Analyzer) AnalyzeEntries(ctx context.Context, entries []model.Entry) (res *model.Result, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analyze.entries",
		oteltrace.WithAttributes(attribute.Int("archive.entries", len(entries))))
	defer func() { finish(span, res, err) }()

	start := time.Now()
	res, err = a.analyze(ctx, entries)
	analysesTotal.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		analysisDuration.Observe(time.Since(start).Seconds())
	}
	return res, err
}

func (a *Analyzer) analyze(ctx context.Context, entries []model.Entry) (*model.Result, error) {
	units, err := a.extractAll(ctx, entries)
	if err != nil {
		return nil, err
	}

	res := graph.Assemble(units, archive.Paths(entries))
	recordEdges(res)
	a.logger.Debug("analysis complete",
		slog.Int("files", res.Summary.Files),
		slog.Int("functions", res.Summary.Functions),
		slog.Int("edges", res.Summary.TotalEdges))
	return res, nil
}

// extractAll parses entries on a pool of workers and returns the facts of
// every file that could be extracted, in entry order.
func (a *Analyzer) extractAll(ctx context.Context, entries []model.Entry) ([]*model.FileFacts, error) {
	type result struct {
		index int
		facts *model.FileFacts
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > len(entries) {
		numWorkers = len(entries)
	}

	work := make(chan int, len(entries))
	results := make(chan result, len(entries))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Parsers are not safe for concurrent use.
			x := a.newExtractor()

			for idx := range work {
				if ctx.Err() != nil {
					continue
				}
				e := entries[idx]
				facts, err := extractOne(ctx, x, e)
				if err != nil {
					if errors.Is(err, errExtractPanic) {
						// The parser may be left mid-parse.
						x = a.newExtractor()
					}
					if ctx.Err() == nil {
						a.skip(e.Path, err)
					}
					continue
				}
				if facts.Partial {
					filesPartialTotal.Inc()
					a.logger.Debug("partial syntax tree", slog.String("file", e.Path))
				}
				results <- result{index: idx, facts: facts}
			}
		}()
	}

	for i := range entries {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	indexed := make([]*model.FileFacts, len(entries))
	for r := range results {
		indexed[r.index] = r.facts
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	units := make([]*model.FileFacts, 0, len(entries))
	for _, facts := range indexed {
		if facts != nil {
			units = append(units, facts)
		}
	}
	return units, nil
}

// extractOne runs x on a single entry and turns a panic into an error.
func extractOne(ctx context.Context, x fileExtractor, e model.Entry) (facts *model.FileFacts, err error) {
	defer func() {
		if r := recover(); r != nil {
			facts, err = nil, fmt.Errorf("%s: %w: %v", e.Path, errExtractPanic, r)
		}
	}()
	return x.Extract(ctx, e.Path, e.Data)
}

func (a *Analyzer) skip(file string, err error) {
	reason := skipReason(err)
	filesSkippedTotal.WithLabelValues(reason).Inc()
	if reason == "no_script" {
		a.logger.Debug("skipping file", slog.String("file", file), slog.String("reason", reason))
		return
	}
	a.logger.Warn("skipping file", slog.String("file", file), slog.String("error", err.Error()))
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, parse.ErrSyntax):
		return "syntax"
	case errors.Is(err, parse.ErrNoScript):
		return "no_script"
	default:
		return "error"
	}
}

func outcome(err error) string {
	var pe *archive.ParseError
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, archive.ErrPayloadTooLarge):
		return outcomeTooLarge
	case errors.As(err, &pe):
		return outcomeBadArchive
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return outcomeError
	}
}

func finish(span oteltrace.Span, res *model.Result, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if res != nil {
		span.SetAttributes(
			attribute.Int("graph.files", res.Summary.Files),
			attribute.Int("graph.functions", res.Summary.Functions),
			attribute.Int("graph.call_edges", res.Summary.CallEdges),
			attribute.Int("graph.import_edges", res.Summary.ImportEdges),
		)
	}
	span.End()
}
