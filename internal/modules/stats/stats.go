// Package stats tracks per-run outcome counts and signals completion.
//
// Every examined record, including those skipped for lacking a thumbnail,
// is recorded exactly once, so a run is complete when
// success + skipped + failures == total.
package stats

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"thumbfetch/internal/models"

	"github.com/olekukonko/tablewriter"
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total                 int64
	Current               int64
	Success               int64
	SkippedNoThumbnail    int64
	FailedWrongURI        int64
	FailedSiteUnavailable int64
	FailedFileUnavailable int64
}

// Failed returns the sum of all failure kinds.
func (s Snapshot) Failed() int64 {
	return s.FailedWrongURI + s.FailedSiteUnavailable + s.FailedFileUnavailable
}

// Accounted returns how many records have a recorded outcome.
func (s Snapshot) Accounted() int64 {
	return s.Success + s.SkippedNoThumbnail + s.Failed()
}

// Complete reports whether every counted record has an outcome.
func (s Snapshot) Complete() bool {
	return s.Accounted() == s.Total
}

// Render writes the final report table.
func (s Snapshot) Render(w io.Writer) error {
	ew := &errWriter{w: w}
	table := tablewriter.NewWriter(ew)
	table.SetHeader([]string{"Category", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, r := range []struct {
		category string
		value    int64
	}{
		{"Total records", s.Total},
		{"Success", s.Success},
		{"Skipped (no thumbnail)", s.SkippedNoThumbnail},
		{"Failed by wrong URI", s.FailedWrongURI},
		{"Failed by unavailable file", s.FailedFileUnavailable},
		{"Failed by unavailable site", s.FailedSiteUnavailable},
	} {
		table.Append([]string{r.category, strconv.FormatInt(r.value, 10)})
	}
	table.Render()
	return ew.err
}

// errWriter keeps the first write error; tablewriter discards them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

// Aggregator is safe for concurrent use by download goroutines.
type Aggregator struct {
	mu       sync.Mutex
	snap     Snapshot
	totalSet bool

	done     chan struct{}
	doneOnce sync.Once
}

// New creates an Aggregator with no total recorded yet.
func New() *Aggregator {
	return &Aggregator{done: make(chan struct{})}
}

// SetTotal records the number of records matched by the run's filter.
func (a *Aggregator) SetTotal(n int64) {
	a.mu.Lock()
	a.snap.Total = n
	a.totalSet = true
	complete := a.snap.Complete()
	a.mu.Unlock()

	if complete {
		a.markDone()
	}
}

// Record folds one outcome into the counters and returns the record's
// 1-based position in examination order.
func (a *Aggregator) Record(o models.Outcome) int64 {
	a.mu.Lock()
	a.snap.Current++
	current := a.snap.Current
	switch o.Kind {
	case models.Success:
		a.snap.Success++
	case models.SkippedNoThumbnail:
		a.snap.SkippedNoThumbnail++
	case models.FailedWrongURI:
		a.snap.FailedWrongURI++
	case models.FailedSiteUnavailable:
		a.snap.FailedSiteUnavailable++
	case models.FailedFileUnavailable:
		a.snap.FailedFileUnavailable++
	}
	complete := a.totalSet && a.snap.Complete()
	a.mu.Unlock()

	if complete {
		a.markDone()
	}
	return current
}

// Total returns the recorded total.
func (a *Aggregator) Total() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap.Total
}

// Snapshot returns a copy of the counters.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}

// IsComplete reports whether every counted record has an outcome.
func (a *Aggregator) IsComplete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalSet && a.snap.Complete()
}

// Done is closed the first time the counters become complete.
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}

func (a *Aggregator) markDone() {
	a.doneOnce.Do(func() { close(a.done) })
}

// Watch polls IsComplete every interval, also waking on Done, and calls fn
// once with the current snapshot after the counters become complete. It
// returns when fn has run or ctx is done.
func (a *Aggregator) Watch(ctx context.Context, interval time.Duration, fn func(Snapshot)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if a.IsComplete() {
			fn(a.Snapshot())
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.done:
			// Outcomes past the counted total may already have landed.
			fn(a.Snapshot())
			return nil
		case <-ticker.C:
		}
	}
}

// ProgressLine formats the per-record console message.
func ProgressLine(current, total int64, recordID, message string) string {
	return fmt.Sprintf("[%d/%d] Record %s: %s", current, total, recordID, message)
}
