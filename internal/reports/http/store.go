package reportshttp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/licenseops/licenseops/internal/reports"
)

const defaultIdleTTL = 30 * time.Minute

// FetchObserver records the outcome of backend fetches.
type FetchObserver interface {
	ObserveReportFetch(report string, elapsed time.Duration, err error)
}

// WorkspaceStore keeps one report workspace per console session. Workspaces live in
// memory; idle ones are evicted on access.
type WorkspaceStore struct {
	catalog  *reports.Catalog
	logger   *slog.Logger
	observer FetchObserver
	idleTTL  time.Duration
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*storeEntry
}

type storeEntry struct {
	ws       *reports.Workspace
	notes    *NoteQueue
	lastSeen time.Time
}

// NewWorkspaceStore constructs a store. A non-positive idleTTL falls back to 30 minutes.
func NewWorkspaceStore(catalog *reports.Catalog, logger *slog.Logger, observer FetchObserver, idleTTL time.Duration) *WorkspaceStore {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkspaceStore{
		catalog:  catalog,
		logger:   logger,
		observer: observer,
		idleTTL:  idleTTL,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*storeEntry),
	}
}

// Context is the parent of every background fetch. It outlives requests and ends with Close.
func (s *WorkspaceStore) Context() context.Context {
	return s.ctx
}

// Get returns the workspace bound to sessionID, creating it when missing.
func (s *WorkspaceStore) Get(sessionID string) (*reports.Workspace, *NoteQueue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evictLocked(now)
	entry, ok := s.entries[sessionID]
	if !ok {
		notes := &NoteQueue{}
		cfg := reports.WorkspaceConfig{
			Catalog:  s.catalog,
			Notifier: notes,
			Logger:   s.logger.With(slog.String("component", "report_workspace")),
		}
		if s.observer != nil {
			cfg.OnFetch = s.observer.ObserveReportFetch
		}
		entry = &storeEntry{ws: reports.NewWorkspace(cfg), notes: notes}
		s.entries[sessionID] = entry
	}
	entry.lastSeen = now
	return entry.ws, entry.notes
}

// Drop forgets the workspace of a session, typically on logout.
func (s *WorkspaceStore) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
}

// Len reports the number of live workspaces.
func (s *WorkspaceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close cancels outstanding fetches.
func (s *WorkspaceStore) Close() {
	s.cancel()
}

func (s *WorkspaceStore) evictLocked(now time.Time) {
	for id, entry := range s.entries {
		if now.Sub(entry.lastSeen) > s.idleTTL {
			delete(s.entries, id)
		}
	}
}

// NoteQueue buffers notifications raised by background fetches until the next page render.
type NoteQueue struct {
	mu    sync.Mutex
	items []reports.Notification
}

// Notify implements reports.Notifier.
func (q *NoteQueue) Notify(_ context.Context, n reports.Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, n)
}

// Drain returns and clears the queued notifications.
func (q *NoteQueue) Drain() []reports.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
