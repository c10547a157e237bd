// Package history keeps the append-only log of fault occurrences and mirrors
// it to durable storage.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/ledrig-monitor/internal/logic"
)

// DefaultKey is the storage key the log is mirrored under.
const DefaultKey = "faultHistory"

const persistTimeout = 5 * time.Second

// Entry is one logged fault occurrence.
type Entry = logic.HistoryEntry

// Option customises a Store.
type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithStartTime sets the time heartbeat uptime is measured from.
func WithStartTime(t time.Time) Option {
	return func(s *Store) { s.start = t }
}

// Store is the single owner of the history log and its mirror.
// Persistence failures are logged and never returned to callers; while the
// last mirror operation failed the store reports itself degraded.
//
// If the mirror could not be read at startup nothing is written to it until
// a later read succeeds, so a transient outage never replaces the durable
// log with the partial in-memory one.
type Store struct {
	// writeMu serialises mirror I/O. It is taken before mu, never after.
	writeMu sync.Mutex

	mu       sync.Mutex
	mirror   Mirror
	key      string
	start    time.Time
	logger   zerolog.Logger
	entries  []Entry
	detector *logic.Detector
	degraded bool
	// loaded is false while the mirror's contents are unknown.
	loaded bool
}

// New loads the log from mirror. A missing, unreadable, or corrupt mirror
// yields an empty log. Faults active before a restart are not remembered,
// so they are logged again on the first poll that reports them.
func New(ctx context.Context, mirror Mirror, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		mirror: mirror,
		key:    DefaultKey,
		start:  time.Now(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.detector = logic.NewDetector(s.start)
	if s.mirror == nil {
		s.loaded = true
		return s
	}
	entries, err := s.load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("history mirror unreadable, starting empty")
		s.degraded = true
		return s
	}
	s.entries = entries
	s.loaded = true
	return s
}

// load reads and decodes the mirror. Only a failed read is returned as an
// error; missing or corrupt data yields an empty log that may be overwritten.
func (s *Store) load(ctx context.Context) ([]Entry, error) {
	data, err := s.mirror.Load(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info().Str("key", s.key).Msg("no stored history, starting empty")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("stored history is corrupt, starting empty")
		return nil, nil
	}
	s.logger.Info().Int("entries", len(entries)).Msg("loaded history")
	return entries, nil
}

// Observe records the faults reported by one poll. Faults that were not
// active on the previous poll are appended, stamped with at, and the whole
// log is persisted. It returns the appended entries.
func (s *Store) Observe(faults []logic.FaultRecord, at time.Time) []Entry {
	s.mu.Lock()
	added := s.detector.Process(faults, at)
	if len(added) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.entries = append(s.entries, added...)
	out := make([]Entry, len(added))
	copy(out, added)
	s.mu.Unlock()

	s.persist()
	return out
}

// persist writes the current log to the mirror. Readers are not blocked
// while the write is in flight.
func (s *Store) persist() {
	if s.mirror == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if !s.reload(ctx) {
		return
	}

	s.mu.Lock()
	data, err := json.Marshal(s.entries)
	if err != nil {
		s.fail(err, "encode history")
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	err = s.mirror.Store(ctx, s.key, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.fail(err, "persist history")
		return
	}
	if s.degraded {
		s.logger.Info().Msg("history mirror recovered")
	}
	s.degraded = false
}

// reload retries the startup read if it failed, putting the stored entries
// ahead of those logged since. It reports whether the mirror may be written.
// Caller holds s.writeMu.
func (s *Store) reload(ctx context.Context) bool {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return true
	}

	stored, err := s.load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.fail(err, "history mirror still unreadable, not overwriting it")
		return false
	}
	if len(stored) > 0 {
		s.entries = append(stored, s.entries...)
	}
	s.loaded = true
	return true
}

// fail records a mirror failure. Caller holds s.mu.
func (s *Store) fail(err error, msg string) {
	if !s.degraded {
		s.logger.Error().Err(err).Str("key", s.key).Msg(msg + ", keeping history in memory")
	} else {
		s.logger.Debug().Err(err).Msg(msg)
	}
	s.degraded = true
}

// Entries returns a copy of the log in chronological order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of logged entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear empties the log and removes it from the mirror. Active fault
// tracking is kept, so faults still active are not re-logged.
func (s *Store) Clear(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
	if s.mirror == nil {
		return
	}

	err := s.mirror.Delete(ctx, s.key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.fail(err, "clear history mirror")
		return
	}
	s.degraded = false
	s.loaded = true
	s.logger.Info().Msg("history cleared")
}

// Degraded reports whether the last mirror operation failed.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// ActiveCount returns how many distinct faults are currently active.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.ActiveCount()
}

// Counts returns raised/cleared transition counts since startup.
func (s *Store) Counts() logic.FaultCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.Counts()
}

// CheckHeartbeat returns heartbeat data when interval has elapsed.
func (s *Store) CheckHeartbeat(now time.Time, interval time.Duration) *logic.HeartbeatData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.CheckHeartbeat(now, interval)
}

// Close closes the mirror.
func (s *Store) Close() error {
	if s.mirror == nil {
		return nil
	}
	return s.mirror.Close()
}
