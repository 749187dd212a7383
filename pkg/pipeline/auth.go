package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/loftwing/relay/pkg/token"
	"github.com/loftwing/relay/pkg/transport"
)

// TokenAccessor provides the current credentials. Implementations live
// outside the pipeline (see pkg/token for in-memory and keyring stores).
type TokenAccessor interface {
	// AccessToken returns the current access token, or "" if none.
	AccessToken(ctx context.Context) (string, error)

	// RefreshToken returns the current refresh token, or "" if none.
	RefreshToken(ctx context.Context) (string, error)

	// SaveAccessToken persists a newly issued access token.
	SaveAccessToken(ctx context.Context, tok string) error
}

// RefreshFunc exchanges a refresh token for a new access token.
// Returning "" or an error means the refresh failed.
type RefreshFunc func(ctx context.Context, refreshToken string) (string, error)

// refreshOutcome is delivered to each request suspended on a shared refresh.
type refreshOutcome struct {
	token string
	ok    bool
}

// refreshWaiter is one request queued behind an in-flight refresh.
type refreshWaiter struct {
	ctx context.Context
	ch  chan refreshOutcome
}

// refreshOp is the Refreshing state. Its existence is the state: the
// coordinator holds a *refreshOp while a refresh is in flight and nil when
// idle, so two concurrent refreshes are unrepresentable. The waiter list is
// FIFO in arrival order.
type refreshOp struct {
	waiters []*refreshWaiter
}

// authCoordinator injects bearer tokens and coordinates refresh-on-401.
//
// All state transitions (idle <-> refreshing, queue push, queue drain) are
// serialized on mu. The refresh itself runs outside the lock so queued
// requests can keep arriving while it is in flight.
type authCoordinator struct {
	tokens          TokenAccessor
	refresh         RefreshFunc
	onRefreshFailed func()

	headerName  string
	tokenPrefix string
	logger      *slog.Logger
	metrics     *Metrics

	mu       sync.Mutex
	inflight *refreshOp

	// releaseHook observes each waiter as it is released from the queue,
	// before its outcome is delivered. Tests only.
	releaseHook func(*refreshWaiter)
}

// inject sets the auth header from the current access token. A missing or
// unreadable token is not an error; the request proceeds unauthenticated
// and the server decides.
func (a *authCoordinator) inject(ctx context.Context, req *transport.Request) {
	if a.tokens == nil {
		return
	}
	tok, err := a.tokens.AccessToken(ctx)
	if err != nil {
		a.logger.Warn("access token unavailable", "error", err)
		return
	}
	if tok == "" {
		return
	}
	req.SetHeader(a.headerName, a.tokenPrefix+" "+tok)
}

// injectToken sets the auth header to an explicit token value. Used for
// replays after a refresh so a stale token can never be re-applied.
func (a *authCoordinator) injectToken(req *transport.Request, tok string) {
	req.SetHeader(a.headerName, a.tokenPrefix+" "+tok)
}

// canRefresh reports whether refresh-on-401 is configured.
func (a *authCoordinator) canRefresh() bool {
	return a != nil && a.refresh != nil
}

// ensureFresh refreshes proactively when the stored access token is a JWT
// that has already expired, returning the new token if one was obtained.
// Non-JWT tokens, accessor errors, and refresh failures are left to the
// normal 401 path.
func (a *authCoordinator) ensureFresh(ctx context.Context) (string, bool) {
	if a.tokens == nil || !a.canRefresh() {
		return "", false
	}
	tok, err := a.tokens.AccessToken(ctx)
	if err != nil || tok == "" {
		return "", false
	}
	if !token.Expired(tok, 0) {
		return "", false
	}
	a.logger.Debug("access token expired, refreshing before dispatch")
	newTok, status := a.obtainFreshToken(ctx)
	if status != refreshOK {
		return "", false
	}
	return newTok, true
}

// handleUnauthorized resolves a 401 via a shared token refresh.
//
// Exactly one refresh runs at a time. The first 401 to arrive while idle
// becomes the leader and performs the refresh; 401s arriving while it is in
// flight join a FIFO queue and suspend. On success every participant
// receives the new token to replay with; on failure every participant gets
// origErr back, its own original 401, and the refresh-failed hook fires
// once.
func (a *authCoordinator) handleUnauthorized(ctx context.Context, origErr *transport.NetworkError) (string, *transport.NetworkError) {
	newTok, outcome := a.obtainFreshToken(ctx)
	switch outcome {
	case refreshOK:
		return newTok, nil
	case refreshCancelled:
		return "", cancelledError(ctx)
	default:
		return "", origErr
	}
}

type refreshStatus int

const (
	refreshOK refreshStatus = iota
	refreshFailed
	refreshCancelled
)

// obtainFreshToken runs or joins the single-flight refresh and returns the
// new access token.
func (a *authCoordinator) obtainFreshToken(ctx context.Context) (string, refreshStatus) {
	a.mu.Lock()
	if op := a.inflight; op != nil {
		// A refresh is already in flight: queue up and suspend until it
		// resolves. FIFO position is fixed here, under the lock.
		w := &refreshWaiter{ctx: ctx, ch: make(chan refreshOutcome)}
		op.waiters = append(op.waiters, w)
		a.mu.Unlock()

		select {
		case out := <-w.ch:
			if !out.ok {
				return "", refreshFailed
			}
			return out.token, refreshOK
		case <-ctx.Done():
			return "", refreshCancelled
		}
	}

	// Idle: become the leader.
	op := &refreshOp{}
	a.inflight = op
	a.mu.Unlock()

	// The refresh is shared state; detach it from the leader's own
	// cancellation so one caller bailing out cannot fail the whole queue.
	newTok, ok := a.doRefresh(context.WithoutCancel(ctx))

	a.mu.Lock()
	waiters := op.waiters
	a.inflight = nil
	a.mu.Unlock()

	a.drain(waiters, refreshOutcome{token: newTok, ok: ok})

	if !ok {
		return "", refreshFailed
	}
	if ctx.Err() != nil {
		// Refresh succeeded for the queue, but the leader itself was
		// cancelled and must not replay.
		return "", refreshCancelled
	}
	return newTok, refreshOK
}

// doRefresh performs one refresh: fetch the refresh token, invoke the
// refresh capability, persist the result. Returns ok=false on any failure,
// firing the refresh-failed hook exactly once per failed refresh.
func (a *authCoordinator) doRefresh(ctx context.Context) (string, bool) {
	var refreshTok string
	if a.tokens != nil {
		rt, err := a.tokens.RefreshToken(ctx)
		if err != nil {
			a.logger.Warn("refresh token unavailable", "error", err)
		} else {
			refreshTok = rt
		}
	}

	newTok, err := a.refresh(ctx, refreshTok)
	if err != nil || newTok == "" {
		if err != nil {
			a.logger.Warn("token refresh failed", "error", err)
		} else {
			a.logger.Warn("token refresh returned no token")
		}
		a.metrics.refreshObserved(false)
		if a.onRefreshFailed != nil {
			a.onRefreshFailed()
		}
		return "", false
	}

	if a.tokens != nil {
		if err := a.tokens.SaveAccessToken(ctx, newTok); err != nil {
			// The new token is still valid for this process; persisting it
			// failed but replays can proceed.
			a.logger.Warn("failed to persist refreshed access token", "error", err)
		}
	}
	a.metrics.refreshObserved(true)
	a.logger.Debug("token refresh succeeded, draining queued requests")
	return newTok, true
}

// drain releases queued waiters in FIFO arrival order. The unbuffered send
// means waiter N has observed its outcome before waiter N+1 is released;
// what each does afterwards (its replay) runs concurrently. Waiters whose
// context is already done are skipped, never blocked on.
func (a *authCoordinator) drain(waiters []*refreshWaiter, out refreshOutcome) {
	for _, w := range waiters {
		if a.releaseHook != nil {
			a.releaseHook(w)
		}
		select {
		case w.ch <- out:
		case <-w.ctx.Done():
		}
	}
}
