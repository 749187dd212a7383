package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/loftwing/relay/pkg/transport"
)

// Cancellation causes installed on a request's context. Surfaced to the
// caller inside the cancelled NetworkError's message.
var (
	// ErrSuperseded is the cancellation cause when a newer request with the
	// same dedup key replaces an in-flight one.
	ErrSuperseded = errors.New("superseded by a newer request with the same key")

	// ErrCancelled is the cancellation cause for explicit CancelRequest and
	// CancelAllRequests calls.
	ErrCancelled = errors.New("cancelled by caller")
)

// handle ties one in-flight logical request to its cancellable context.
// Identity matters: release only removes the registry entry if it still
// points at the same handle, so a superseded request can never erase its
// replacement.
type handle struct {
	key    string
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// registry tracks in-flight requests by dedup key. At most one entry is
// live per key; acquiring a taken key cancels the previous holder.
type registry struct {
	mu      sync.Mutex
	entries map[string]*handle
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*handle)}
}

// acquire registers a new in-flight request under key, cancelling and
// replacing any existing one. The returned handle's context is derived from
// parent, so caller-side cancellation still applies.
func (r *registry) acquire(parent context.Context, key string) *handle {
	ctx, cancel := context.WithCancelCause(parent)
	h := &handle{key: key, ctx: ctx, cancel: cancel}

	r.mu.Lock()
	if prev, ok := r.entries[key]; ok {
		prev.cancel(ErrSuperseded)
	}
	r.entries[key] = h
	r.mu.Unlock()
	return h
}

// release removes the entry for key if it is still h. A handle that was
// already superseded is a no-op.
func (r *registry) release(h *handle) {
	r.mu.Lock()
	if r.entries[h.key] == h {
		delete(r.entries, h.key)
	}
	r.mu.Unlock()
}

// cancel aborts the in-flight request under key, if any.
func (r *registry) cancel(key string) {
	r.mu.Lock()
	if h, ok := r.entries[key]; ok {
		h.cancel(ErrCancelled)
		delete(r.entries, key)
	}
	r.mu.Unlock()
}

// cancelAll aborts every in-flight request.
func (r *registry) cancelAll() {
	r.mu.Lock()
	for key, h := range r.entries {
		h.cancel(ErrCancelled)
		delete(r.entries, key)
	}
	r.mu.Unlock()
}

// len reports the number of live entries. Used by tests.
func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// cancelledError builds the cancelled outcome for a done context, carrying
// the cancellation cause (superseded, cancelled by caller, or the parent
// context's own error) in the message.
func cancelledError(ctx context.Context) *transport.NetworkError {
	cause := context.Cause(ctx)
	msg := "request cancelled"
	if cause != nil && !errors.Is(cause, context.Canceled) {
		msg = "request cancelled: " + cause.Error()
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return &transport.NetworkError{Kind: transport.KindTimeout, Message: "request timed out", Cause: cause}
	}
	return &transport.NetworkError{Kind: transport.KindCancelled, Message: msg, Cause: cause}
}
