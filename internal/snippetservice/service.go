// Package snippetservice is the mutation engine and query API of the store.
// It validates every change against the index, commits it to storage as one
// atomic delta and only then updates the index and the recency list.
package snippetservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/index"
	"github.com/starford/snix/internal/metrics"
	"github.com/starford/snix/internal/models"
	"github.com/starford/snix/internal/recent"
	"github.com/starford/snix/internal/storage"
)

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock in UTC.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator supplies record ids.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator returns random UUIDs.
type UUIDGenerator struct{}

// NewID returns a new random UUID string.
func (UUIDGenerator) NewID() string { return uuid.NewString() }

// ChangeHook is called after a change reached the index, with the
// revision it was committed at. Calls are serialized.
type ChangeHook func(models.Change)

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithChangeHook registers fn to be called after every applied change.
func WithChangeHook(fn ChangeHook) Option {
	return func(s *Service) { s.onChange = fn }
}

// WithRecentCapacity bounds the recency list.
func WithRecentCapacity(n int) Option {
	return func(s *Service) { s.recents = recent.New(n) }
}

// Service owns the index and recency list derived from a storage provider.
type Service struct {
	store    storage.Provider
	index    *index.Index
	recents  *recent.List
	clock    Clock
	ids      IDGenerator
	logger   *slog.Logger
	onChange ChangeHook

	mu      sync.Mutex // serializes mutations
	rebuild singleflight.Group
}

// New creates a service over store and idx. Call Load before use.
func New(store storage.Provider, idx *index.Index, opts ...Option) *Service {
	s := &Service{
		store:   store,
		index:   idx,
		recents: recent.New(recent.DefaultCapacity),
		clock:   RealClock{},
		ids:     UUIDGenerator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads persisted state and builds the index and recency list.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	s.rebuildFrom(snap, "load")
	n, sn := snap.Counts()
	s.logger.Info("store loaded",
		slog.String("location", s.store.Location()),
		slog.Uint64("revision", snap.Revision()),
		slog.Int("notebooks", n),
		slog.Int("snippets", sn))
	return nil
}

// Snapshot returns the last committed state.
func (s *Service) Snapshot() *models.Snapshot {
	return s.store.Snapshot()
}

// Location returns the storage location.
func (s *Service) Location() string {
	return s.store.Location()
}

// commit writes d and brings the derived views up to date.
// Callers hold s.mu.
func (s *Service) commit(ctx context.Context, d models.Delta) (*models.Snapshot, error) {
	snap, err := s.store.Commit(ctx, d)
	if err != nil {
		return nil, err
	}
	if err := s.index.Apply(d); err != nil {
		s.logger.Error("index update failed, rebuilding",
			slog.Uint64("revision", snap.Revision()),
			slog.String("error", err.Error()))
		s.rebuildIndex("stale")
	} else if d.SetRecents || d.Reset {
		s.recents.Replace(snap.Recents())
	}
	_, n := s.index.Counts()
	metrics.SetIndexedSnippets(n)
	return snap, nil
}

// rebuildIndex discards the index and rebuilds it from the last committed
// snapshot. Concurrent callers share one rebuild.
func (s *Service) rebuildIndex(reason string) {
	_, _, _ = s.rebuild.Do("rebuild", func() (any, error) {
		s.rebuildFrom(s.store.Snapshot(), reason)
		return nil, nil
	})
}

func (s *Service) rebuildFrom(snap *models.Snapshot, reason string) {
	s.index.Rebuild(snap)
	s.recents.Replace(snap.Recents())
	_, n := snap.Counts()
	metrics.IndexRebuilt(reason, n)
}

// notify reports a change. Callers hold s.mu.
func (s *Service) notify(kind, id string) {
	if s.onChange != nil {
		s.onChange(models.Change{Kind: kind, ID: id, Revision: s.store.Snapshot().Revision()})
	}
}

// observe records the outcome of a mutation.
func observe(op string, started time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case apperr.IsValidation(err):
		result = "invalid"
	default:
		result = "error"
	}
	metrics.ObserveMutation(op, result, started)
}

// Reconcile checks that storage still holds what was last committed. On
// divergence (an external edit or a lost write) it reloads and rebuilds the
// derived views, and reports true.
func (s *Service) Reconcile(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.store.Verify(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	s.logger.Warn("storage diverged from index, reloading",
		slog.String("location", s.store.Location()),
		slog.String("error", apperr.ErrIndexStale.Error()))

	snap, err := s.store.Load(ctx)
	if err != nil {
		return true, fmt.Errorf("reload after divergence: %w", err)
	}
	s.rebuildFrom(snap, "divergence")
	s.notify(models.ChangeTree, "")
	return true, nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, apperr.ErrNotFound)
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
}
