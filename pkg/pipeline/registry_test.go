package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/loftwing/relay/pkg/transport"
)

// blockingTransport parks requests until their context is cancelled, unless
// told to answer immediately.
type blockingTransport struct {
	mu      sync.Mutex
	started []string // dedup keys in arrival order
	pass    map[string]bool
}

func (b *blockingTransport) Execute(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	b.mu.Lock()
	b.started = append(b.started, req.DedupKey)
	pass := b.pass[req.DedupKey]
	b.mu.Unlock()

	if pass {
		return status(200)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingTransport) startedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.started)
}

func TestDedup_SecondRequestSupersedesFirst(t *testing.T) {
	bt := &blockingTransport{pass: map[string]bool{}}
	client := newTestClient(t, bt, fastConfig())

	firstErr := make(chan error, 1)
	go func() {
		_, err := client.Get(context.Background(), "/feed")
		firstErr <- err
	}()
	waitFor(t, time.Second, func() bool { return bt.startedCount() == 1 })

	// Second request with the same key: let it answer immediately.
	bt.mu.Lock()
	bt.pass["/feed"] = true
	bt.mu.Unlock()

	resp, err := client.Get(context.Background(), "/feed")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	// The first caller observes cancellation, not a normal failure.
	err = <-firstErr
	require.Error(t, err)
	assert.True(t, transport.IsKind(err, transport.KindCancelled))
	assert.ErrorIs(t, err, ErrSuperseded)

	assert.Equal(t, 0, client.registry.len(), "registry drains on completion")
}

func TestCancelRequest_TargetsOneKey(t *testing.T) {
	bt := &blockingTransport{pass: map[string]bool{}}
	client := newTestClient(t, bt, fastConfig())

	errA := make(chan error, 1)
	errB := make(chan error, 1)
	go func() {
		_, err := client.Get(context.Background(), "/a")
		errA <- err
	}()
	go func() {
		_, err := client.Get(context.Background(), "/b")
		errB <- err
	}()
	waitFor(t, time.Second, func() bool { return bt.startedCount() == 2 })

	client.CancelRequest("/a")

	err := <-errA
	assert.True(t, transport.IsKind(err, transport.KindCancelled))
	assert.ErrorIs(t, err, ErrCancelled)

	select {
	case err := <-errB:
		t.Fatalf("request /b should still be in flight, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	client.CancelAllRequests()
	<-errB
}

func TestCancelAll_CancelsEveryInFlight(t *testing.T) {
	const inflight = 4
	bt := &blockingTransport{pass: map[string]bool{}}
	client := newTestClient(t, bt, fastConfig())

	errCh := make(chan error, inflight)
	for i := 0; i < inflight; i++ {
		path := fmt.Sprintf("/res/%d", i)
		go func() {
			_, err := client.Get(context.Background(), path)
			errCh <- err
		}()
	}
	waitFor(t, time.Second, func() bool { return bt.startedCount() == inflight })

	client.CancelAllRequests()

	for i := 0; i < inflight; i++ {
		err := <-errCh
		assert.True(t, transport.IsKind(err, transport.KindCancelled), "request %d", i)
	}
	assert.Equal(t, 0, client.registry.len())
}

func TestRegistry_ReleaseRequiresIdentity(t *testing.T) {
	r := newRegistry()
	ctx := context.Background()

	h1 := r.acquire(ctx, "k")
	h2 := r.acquire(ctx, "k")

	// h1 was superseded by h2.
	assert.ErrorIs(t, context.Cause(h1.ctx), ErrSuperseded)
	assert.NoError(t, h2.ctx.Err())

	// Releasing the stale handle must not erase the newer entry.
	r.release(h1)
	assert.Equal(t, 1, r.len())

	r.release(h2)
	assert.Equal(t, 0, r.len())
}

func TestRegistry_CancelMissingKeyIsNoop(t *testing.T) {
	r := newRegistry()
	r.cancel("nothing")
	r.cancelAll()
	assert.Equal(t, 0, r.len())
}

// TestRegistry_Invariants drives random acquire/cancel/release sequences
// and checks that at most one live handle exists per key and that stale
// handles can never displace their replacement.
func TestRegistry_Invariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := newRegistry()
		ctx := context.Background()

		live := map[string]*handle{}
		stale := []*handle{}

		keyGen := rapid.SampledFrom([]string{"/a", "/b", "/c"})
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")

		for i := 0; i < steps; i++ {
			key := keyGen.Draw(rt, "key")
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0: // acquire
				if prev, ok := live[key]; ok {
					stale = append(stale, prev)
				}
				live[key] = r.acquire(ctx, key)
			case 1: // cancel
				r.cancel(key)
				if prev, ok := live[key]; ok {
					stale = append(stale, prev)
					delete(live, key)
				}
			case 2: // release current
				if h, ok := live[key]; ok {
					r.release(h)
					delete(live, key)
				}
			case 3: // release a stale handle: must never remove a live entry
				if len(stale) > 0 {
					r.release(stale[rapid.IntRange(0, len(stale)-1).Draw(rt, "stale")])
				}
			}

			if len(live) != r.len() {
				rt.Fatalf("registry has %d entries, model has %d", r.len(), len(live))
			}
			for _, h := range live {
				if h.ctx.Err() != nil {
					rt.Fatalf("live handle for %s is cancelled", h.key)
				}
			}
			for _, h := range stale {
				if h.ctx.Err() == nil {
					rt.Fatalf("stale handle for %s escaped cancellation", h.key)
				}
			}
		}
	})
}
