package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func pendingCheckpoint(id string) *core.Checkpoint {
	cp := core.NewCheckpoint(id)
	cp.State = cp.State.Append(
		core.UserMessage{Text: "What is the weather?"},
		core.AssistantMessage{ToolCalls: []core.ToolCall{{ID: "c1", Name: "ask_human", Arguments: `{"question":"Which location?"}`}}},
	)
	cp.NextStep = core.NextStepAwaitingHuman

	return cp
}

func TestInMemoryStore_LoadMissing(t *testing.T) {
	s := NewInMemoryStore()

	cp, err := s.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, cp)
	assert.Equal(t, 0, s.Len())
}

func TestInMemoryStore_SaveLoadIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	cp := pendingCheckpoint("a")
	require.NoError(t, s.Save(ctx, cp))

	// Mutating the caller's copy after Save must not leak into the store.
	cp.NextStep = core.NextStepNone
	cp.State.Messages[1] = core.AssistantMessage{Text: "mutated"}

	got, err := s.Load(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, core.NextStepAwaitingHuman, got.NextStep)
	assert.Len(t, got.State.UnpairedToolCalls(), 1)

	// Mutating a loaded copy must not leak either.
	got.State.Messages[0] = core.UserMessage{Text: "changed"}

	again, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, core.UserMessage{Text: "What is the weather?"}, again.State.Messages[0])
}

func TestInMemoryStore_ConversationIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.Save(ctx, pendingCheckpoint("a")))

	b := core.NewCheckpoint("b")
	b.State = b.State.Append(core.UserMessage{Text: "hello"})
	require.NoError(t, s.Save(ctx, b))

	a := pendingCheckpoint("a")
	a.NextStep = core.NextStepNone
	require.NoError(t, s.Save(ctx, a))

	got, err := s.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, core.NextStepNone, got.NextStep)
	assert.Equal(t, 1, got.State.Len())
}

func TestInMemoryStore_Validate(t *testing.T) {
	s := NewInMemoryStore()

	assert.ErrorIs(t, s.Save(context.Background(), nil), ErrInvalidCheckpoint)
	assert.ErrorIs(t, s.Save(context.Background(), core.NewCheckpoint("")), ErrInvalidCheckpoint)

	cp := core.NewCheckpoint("x")
	cp.NextStep = "sideways"
	assert.ErrorIs(t, s.Save(context.Background(), cp), ErrInvalidCheckpoint)
}

func TestInMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	s := NewInMemoryStore(func(o *InMemoryOptions) {
		o.TTL = time.Hour
		o.Now = clock.Now
	})

	require.NoError(t, s.Save(ctx, pendingCheckpoint("old")))
	clock.Advance(45 * time.Minute)
	require.NoError(t, s.Save(ctx, pendingCheckpoint("fresh")))
	clock.Advance(30 * time.Minute)

	got, err := s.Load(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, got, "expired checkpoints are invisible")

	got, err = s.Load(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, got)

	assert.Equal(t, 1, s.EvictExpired())
	assert.Equal(t, 1, s.Len())
}

func TestInMemoryStore_StartEviction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := &fakeClock{now: time.Now()}
	s := NewInMemoryStore(func(o *InMemoryOptions) {
		o.TTL = time.Minute
		o.Now = clock.Now
	})

	require.NoError(t, s.Save(ctx, pendingCheckpoint("a")))
	clock.Advance(2 * time.Minute)

	s.StartEviction(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			id := fmt.Sprintf("conv-%d", i)
			cp := core.NewCheckpoint(id)
			cp.State = cp.State.Append(core.UserMessage{Text: id})
			assert.NoError(t, s.Save(ctx, cp))

			got, err := s.Load(ctx, id)
			assert.NoError(t, err)
			assert.Equal(t, core.UserMessage{Text: id}, got.State.Messages[0])
		}(i)
	}

	wg.Wait()
	assert.Equal(t, 32, s.Len())

	require.NoError(t, s.Delete(ctx, "conv-0"))
	require.NoError(t, s.Delete(ctx, "conv-0"))
	assert.Equal(t, 31, s.Len())
}
