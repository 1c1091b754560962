package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"thumbfetch/internal/models"
	"thumbfetch/internal/modules/filter"
	"thumbfetch/internal/modules/locator"
	"thumbfetch/internal/modules/stats"
	"thumbfetch/internal/modules/store"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Downloader fetches one validated locator and classifies the result.
type Downloader interface {
	Download(ctx context.Context, recordID string, loc *locator.Locator) models.Outcome
}

// OutputDir prepares the directory downloads are written into.
type OutputDir interface {
	EnsureDir() error
}

// Options configures a run.
type Options struct {
	Filter        filter.Filter
	PageSize      int64         // Records requested per page
	DispatchDelay time.Duration // Wait before each download launch
}

// Pipeline pages through the record store and launches one download per
// record that carries a valid thumbnail locator.
type Pipeline struct {
	store      store.RecordStore
	downloader Downloader
	output     OutputDir
	stats      *stats.Aggregator
	opts       Options
	logger     *zap.Logger
}

// New creates a new Pipeline instance.
//
// Parameters:
//   - logger: Logger for per-record progress and run events.
//   - st: Source of records.
//   - dl: Executes downloads.
//   - out: Output directory, prepared on the first non-empty page.
//   - agg: Receives every outcome.
//   - opts: Filter, page size and dispatch delay.
//
// Returns:
//   - A pointer to a new Pipeline instance.
func New(logger *zap.Logger, st store.RecordStore, dl Downloader, out OutputDir, agg *stats.Aggregator, opts Options) *Pipeline {
	return &Pipeline{
		store:      st,
		downloader: dl,
		output:     out,
		stats:      agg,
		opts:       opts,
		logger:     logger,
	}
}

// Run counts the matching records, then fetches pages at offset
// PageSize*pageIndex until a page comes back empty.
//
// Records in a page are examined in order. Downloads run concurrently and
// are not awaited between records or pages; Run waits for all of them
// before returning, so the store may be closed as soon as Run returns.
//
// Parameters:
//   - ctx: Cancels page fetching, dispatch and in-flight downloads.
//
// Returns:
//   - An error if the store or output directory fails or ctx is canceled, nil otherwise.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.opts.PageSize <= 0 {
		return fmt.Errorf("pipeline: page size must be positive, got %d", p.opts.PageSize)
	}

	total, err := p.store.Count(ctx, p.opts.Filter)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	p.stats.SetTotal(total)
	p.logger.Info("records matched",
		zap.Int64("total", total),
		zap.String("created_by", p.opts.Filter.CreatedBy()),
		zap.String("folder", p.opts.Filter.Folder()),
		zap.Int64("page_size", p.opts.PageSize))

	limiter := rate.NewLimiter(rate.Inf, 1)
	if p.opts.DispatchDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(p.opts.DispatchDelay), 1)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for pageIndex := int64(0); ; pageIndex++ {
		records, err := p.store.FindPage(ctx, p.opts.Filter, p.opts.PageSize, p.opts.PageSize*pageIndex)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", pageIndex, err)
		}
		if len(records) == 0 {
			p.logger.Debug("empty page, enumeration finished", zap.Int64("pages", pageIndex))
			break
		}

		if err := p.output.EnsureDir(); err != nil {
			return err
		}

		p.logger.Debug("processing page",
			zap.Int64("page", pageIndex),
			zap.Int("records", len(records)))

		for _, rec := range records {
			if err := p.process(ctx, rec, limiter, &wg); err != nil {
				p.logger.Warn("dispatch interrupted", zap.Error(err))
				return err
			}
		}
	}

	p.logger.Debug("all downloads dispatched, waiting for completion")
	return nil
}

// process classifies rec locally or launches its download.
func (p *Pipeline) process(ctx context.Context, rec models.Record, limiter *rate.Limiter, wg *sync.WaitGroup) error {
	raw := rec.Locator()
	if raw == "" {
		p.report(models.Outcome{RecordID: rec.ID, Kind: models.SkippedNoThumbnail})
		return nil
	}

	loc, err := locator.Parse(raw)
	if err != nil {
		p.report(models.Outcome{
			RecordID: rec.ID,
			Kind:     models.FailedWrongURI,
			Locator:  raw,
			Err:      err,
		})
		return nil
	}

	// Drop any token banked while idle so every launch waits for a fresh one.
	limiter.Allow()
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	wg.Add(1)
	go func(id string) {
		defer wg.Done()
		p.report(p.downloader.Download(ctx, id, loc))
	}(rec.ID)
	return nil
}

// report records o and writes its progress line.
func (p *Pipeline) report(o models.Outcome) {
	current := p.stats.Record(o)
	line := stats.ProgressLine(current, p.stats.Total(), o.RecordID, o.Message())

	fields := []zap.Field{
		zap.String("record_id", o.RecordID),
		zap.Stringer("outcome", o.Kind),
	}
	if o.Err != nil {
		fields = append(fields, zap.Error(o.Err))
	}

	switch o.Kind {
	case models.Success, models.SkippedNoThumbnail:
		p.logger.Info(line, fields...)
	default:
		p.logger.Warn(line, fields...)
	}
}
