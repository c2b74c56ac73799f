package reports

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// WorkspaceConfig collects the collaborators of a Workspace.
type WorkspaceConfig struct {
	Catalog  *Catalog
	Notifier Notifier
	Logger   *slog.Logger
	// OnFetch is called once per completed fetch, stale ones included.
	OnFetch func(report string, elapsed time.Duration, err error)
}

// Workspace holds the interactive state of the report view: the selected report, its
// filter values and the latest result set. Each Select or Apply starts one asynchronous
// fetch; only the newest outstanding fetch may publish its result.
type Workspace struct {
	catalog  *Catalog
	notifier Notifier
	logger   *slog.Logger
	onFetch  func(string, time.Duration, error)

	mu         sync.Mutex
	active     Descriptor
	selected   bool
	filters    FilterValues
	records    []Record
	loading    bool
	generation uint64
	lastErr    error

	inflight sync.WaitGroup
}

// Snapshot is a consistent copy of the workspace state.
type Snapshot struct {
	Report     string
	Title      string
	Filters    FilterValues
	Records    []Record
	Loading    bool
	Generation uint64
	Err        error
}

// NewWorkspace constructs an empty workspace.
func NewWorkspace(cfg WorkspaceConfig) *Workspace {
	return &Workspace{
		catalog:  cfg.Catalog,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		onFetch:  cfg.OnFetch,
		filters:  FilterValues{},
	}
}

// Select switches the active report, clears the filter values and starts a fetch.
func (w *Workspace) Select(ctx context.Context, key string) error {
	d, err := w.catalog.Lookup(key)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.active = d
	w.selected = true
	w.filters = FilterValues{}
	w.records = nil
	gen := w.beginLocked()
	w.mu.Unlock()

	w.fetch(ctx, d, FilterValues{}, gen)
	return nil
}

// Apply stores the filter values declared by the active report and starts a fetch.
func (w *Workspace) Apply(ctx context.Context, values FilterValues) error {
	w.mu.Lock()
	if !w.selected {
		w.mu.Unlock()
		return ErrNoReportSelected
	}
	d := w.active
	w.filters = SanitizeFilters(d, values)
	filters := w.filters.Clone()
	gen := w.beginLocked()
	w.mu.Unlock()

	w.fetch(ctx, d, filters, gen)
	return nil
}

// Reset clears the filter values. The current result set is kept until the next Apply.
func (w *Workspace) Reset() {
	w.mu.Lock()
	w.filters = FilterValues{}
	w.mu.Unlock()
}

// Filters returns a copy of the current filter values.
func (w *Workspace) Filters() FilterValues {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filters.Clone()
}

// Active returns the selected descriptor.
func (w *Workspace) Active() (Descriptor, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active, w.selected
}

// Loading reports whether the newest fetch is still running.
func (w *Workspace) Loading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loading
}

// Snapshot copies the current state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	records := make([]Record, len(w.records))
	copy(records, w.records)
	return Snapshot{
		Report:     w.active.Key,
		Title:      w.active.Title,
		Filters:    w.filters.Clone(),
		Records:    records,
		Loading:    w.loading,
		Generation: w.generation,
		Err:        w.lastErr,
	}
}

// Rows renders the current result set.
func (w *Workspace) Rows() [][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Render(w.active, w.records)
}

// Delimited returns headers plus rendered rows. An empty result gives a header-only table.
func (w *Workspace) Delimited() ([][]string, error) {
	_, table, err := w.DelimitedExport()
	return table, err
}

// DelimitedExport returns the active descriptor together with its delimited table, both
// read under one lock so a concurrent Select cannot mix them.
func (w *Workspace) DelimitedExport() (Descriptor, [][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.selected {
		return Descriptor{}, nil, ErrNoReportSelected
	}
	return w.active, Delimited(w.active, w.records), nil
}

// Document lays out the document export. Empty results are refused.
func (w *Workspace) Document(now time.Time) (Document, error) {
	_, doc, err := w.DocumentExport(now)
	return doc, err
}

// DocumentExport is Document plus the descriptor it was laid out from.
func (w *Workspace) DocumentExport(now time.Time) (Descriptor, Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.selected {
		return Descriptor{}, Document{}, ErrNoReportSelected
	}
	if len(w.records) == 0 {
		return w.active, Document{}, ErrEmptyReport
	}
	return w.active, BuildDocument(w.active, w.records, now), nil
}

// Wait blocks until every started fetch has returned.
func (w *Workspace) Wait() {
	w.inflight.Wait()
}

func (w *Workspace) beginLocked() uint64 {
	w.generation++
	w.loading = true
	w.lastErr = nil
	return w.generation
}

func (w *Workspace) fetch(ctx context.Context, d Descriptor, values FilterValues, gen uint64) {
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		start := time.Now()
		records, err := w.call(ctx, d, values)
		if w.onFetch != nil {
			w.onFetch(d.Key, time.Since(start), err)
		}
		w.finish(ctx, d, gen, records, err)
	}()
}

func (w *Workspace) call(ctx context.Context, d Descriptor, values FilterValues) (records []Record, err error) {
	if d.Fetch == nil {
		return nil, fmt.Errorf("reports: %s has no fetch function", d.Key)
	}
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("reports: fetch %s panicked: %v", d.Key, r)
		}
	}()
	return d.Fetch(ctx, values)
}

func (w *Workspace) finish(ctx context.Context, d Descriptor, gen uint64, records []Record, err error) {
	w.mu.Lock()
	if gen != w.generation {
		w.mu.Unlock()
		w.log().Debug("discard stale report result", slog.String("report", d.Key), slog.Uint64("generation", gen))
		return
	}
	w.loading = false
	if err != nil {
		w.records = nil
		w.lastErr = err
		w.mu.Unlock()
		w.log().Error("fetch report", slog.String("report", d.Key), slog.Any("error", err))
		if w.notifier != nil {
			w.notifier.Notify(ctx, Notification{Kind: "error", Message: fmt.Sprintf("Failed to load %s report", d.Title)})
		}
		return
	}
	if records == nil {
		records = []Record{}
	}
	w.records = records
	w.mu.Unlock()
}

func (w *Workspace) log() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}
	return slog.Default()
}
