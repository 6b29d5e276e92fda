package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/core"
)

// DefaultTTL is how long an in-memory checkpoint survives its last write.
const DefaultTTL = 24 * time.Hour

// ErrInvalidCheckpoint reports a checkpoint that cannot be stored.
var ErrInvalidCheckpoint = errors.New("invalid checkpoint")

// Validate checks the fields every store relies on.
func Validate(cp *core.Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("%w: nil", ErrInvalidCheckpoint)
	}

	if cp.ConversationID == "" {
		return fmt.Errorf("%w: empty conversation id", ErrInvalidCheckpoint)
	}

	if !cp.NextStep.Valid() {
		return fmt.Errorf("%w: unknown next step %q", ErrInvalidCheckpoint, cp.NextStep)
	}

	return nil
}

// InMemoryOptions configure NewInMemoryStore.
type InMemoryOptions struct {
	// TTL since the last write after which a checkpoint is evicted. Zero or
	// negative keeps checkpoints forever.
	TTL time.Duration
	Now func() time.Time
}

type entry struct {
	cp        *core.Checkpoint
	lastWrite time.Time
}

// InMemoryStore is a volatile CheckpointStore storing checkpoints in a
// process local map. It is safe for concurrent access. Every checkpoint is
// cloned on the way in and out, so callers never share state with the store
// or with each other.
//
// Suspended conversations are not kept forever: an entry older than the TTL
// is invisible to Load and removed by EvictExpired or the StartEviction loop.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	opts    InMemoryOptions
}

// NewInMemoryStore constructs an empty in-memory checkpoint store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{TTL: DefaultTTL, Now: time.Now}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &InMemoryStore{entries: make(map[string]*entry), opts: opts}
}

// Load returns a clone of the stored checkpoint, or nil when none exists or
// it has expired.
func (s *InMemoryStore) Load(ctx context.Context, conversationID string) (*core.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[conversationID]
	if !ok || s.expired(e, s.opts.Now()) {
		return nil, nil
	}

	return e.cp.Clone(), nil
}

// Save stores a clone of cp, replacing any previous checkpoint for its id.
func (s *InMemoryStore) Save(ctx context.Context, cp *core.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := Validate(cp); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[cp.ConversationID] = &entry{cp: cp.Clone(), lastWrite: s.opts.Now()}

	return nil
}

// Delete removes the checkpoint for conversationID. Deleting a missing id is not an error.
func (s *InMemoryStore) Delete(ctx context.Context, conversationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, conversationID)

	return nil
}

// Len returns the number of stored checkpoints, expired ones included.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// EvictExpired removes checkpoints older than the TTL and returns how many were removed.
func (s *InMemoryStore) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	removed := 0

	for id, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, id)
			removed++
		}
	}

	return removed
}

// StartEviction runs EvictExpired every interval until ctx is done.
func (s *InMemoryStore) StartEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.opts.TTL <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.EvictExpired()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *InMemoryStore) expired(e *entry, now time.Time) bool {
	return s.opts.TTL > 0 && now.Sub(e.lastWrite) > s.opts.TTL
}

var _ core.CheckpointStore = (*InMemoryStore)(nil)
