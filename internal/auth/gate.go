package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultResolveTimeout  = 5 * time.Second
	defaultEvaluateTimeout = 5 * time.Second
)

// Stage names reported to observers.
const (
	StageResolve  = "resolve"
	StageEvaluate = "evaluate"
)

// Observer receives stage latencies and final verdicts. Implementations must
// not block.
type Observer interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
	ObserveVerdict(ctx context.Context, v Verdict)
}

// MultiObserver fans a notification out to every non-nil observer.
type MultiObserver []Observer

func (m MultiObserver) ObserveStage(stage string, elapsed time.Duration, err error) {
	for _, o := range m {
		if o != nil {
			o.ObserveStage(stage, elapsed, err)
		}
	}
}

func (m MultiObserver) ObserveVerdict(ctx context.Context, v Verdict) {
	for _, o := range m {
		if o != nil {
			o.ObserveVerdict(ctx, v)
		}
	}
}

// Gate decides whether a request carries a credential of an admin. It holds
// no mutable state and is safe for concurrent use.
type Gate struct {
	provider        IdentityProvider
	evaluator       PrivilegeEvaluator
	resolveTimeout  time.Duration
	evaluateTimeout time.Duration
	observer        Observer
	now             func() time.Time
}

// GateOption configures Gate behavior.
type GateOption func(*Gate) error

// WithResolveTimeout bounds the identity provider call.
func WithResolveTimeout(d time.Duration) GateOption {
	return func(g *Gate) error {
		if d <= 0 {
			return errors.New("auth: resolve timeout must be positive")
		}
		g.resolveTimeout = d
		return nil
	}
}

// WithEvaluateTimeout bounds the privilege lookup.
func WithEvaluateTimeout(d time.Duration) GateOption {
	return func(g *Gate) error {
		if d <= 0 {
			return errors.New("auth: evaluate timeout must be positive")
		}
		g.evaluateTimeout = d
		return nil
	}
}

// WithObserver registers an observer for stage timings and verdicts.
func WithObserver(o Observer) GateOption {
	return func(g *Gate) error {
		g.observer = o
		return nil
	}
}

// WithClock overrides the time source used for stage latencies.
func WithClock(fn func() time.Time) GateOption {
	return func(g *Gate) error {
		if fn != nil {
			g.now = fn
		}
		return nil
	}
}

// NewGate constructs a Gate over the given collaborators.
func NewGate(provider IdentityProvider, evaluator PrivilegeEvaluator, opts ...GateOption) (*Gate, error) {
	if provider == nil {
		return nil, errors.New("auth: identity provider is required")
	}
	if evaluator == nil {
		return nil, errors.New("auth: privilege evaluator is required")
	}
	g := &Gate{
		provider:        provider,
		evaluator:       evaluator,
		resolveTimeout:  defaultResolveTimeout,
		evaluateTimeout: defaultEvaluateTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Check runs the gate against request headers.
func (g *Gate) Check(ctx context.Context, h http.Header) Verdict {
	token, err := ExtractBearerToken(h)
	if err != nil {
		return g.finish(ctx, Deny(ReasonMissingCredential, err))
	}
	return g.evaluate(ctx, token)
}

// Evaluate runs the gate for a credential obtained elsewhere (e.g. a session).
func (g *Gate) Evaluate(ctx context.Context, token string) Verdict {
	token = strings.TrimSpace(token)
	if token == "" {
		return g.finish(ctx, Deny(ReasonMissingCredential, ErrMissingCredential))
	}
	return g.evaluate(ctx, token)
}

// Deny records a denial decided before the gate could run, such as a missing
// session, so that observers see it like any other verdict.
func (g *Gate) Deny(ctx context.Context, reason Reason, err error) Verdict {
	return g.finish(ctx, Deny(reason, err))
}

// Resolve only verifies the credential and returns the identity behind it.
func (g *Gate) Resolve(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingCredential
	}
	return g.resolve(ctx, token)
}

func (g *Gate) evaluate(ctx context.Context, token string) Verdict {
	identity, err := g.resolve(ctx, token)
	if err != nil {
		return g.finish(ctx, Deny(ReasonUnauthenticated, err))
	}

	start := g.now()
	ok, err := bounded(ctx, g.evaluateTimeout, func(ctx context.Context) (bool, error) {
		return g.evaluator.IsAdmin(ctx, identity)
	})
	g.observeStage(StageEvaluate, g.now().Sub(start), err)
	if err != nil {
		return g.finish(ctx, Deny(ReasonEvaluatorError, fmt.Errorf("%w: %w", ErrEvaluator, err)))
	}
	if !ok {
		return g.finish(ctx, Deny(ReasonForbidden, ErrForbidden))
	}
	return g.finish(ctx, Allow(identity))
}

func (g *Gate) resolve(ctx context.Context, token string) (Identity, error) {
	start := g.now()
	identity, err := bounded(ctx, g.resolveTimeout, func(ctx context.Context) (Identity, error) {
		return g.provider.ResolveIdentity(ctx, token)
	})
	g.observeStage(StageResolve, g.now().Sub(start), err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Identity{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	case err != nil && !errors.Is(err, ErrUnauthenticated) && !errors.Is(err, ErrProviderUnavailable):
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	case err != nil:
		return Identity{}, err
	}
	if strings.TrimSpace(identity.ID) == "" {
		return Identity{}, fmt.Errorf("%w: provider returned no user", ErrUnauthenticated)
	}
	return identity, nil
}

func (g *Gate) observeStage(stage string, elapsed time.Duration, err error) {
	if g.observer != nil {
		g.observer.ObserveStage(stage, elapsed, err)
	}
}

func (g *Gate) finish(ctx context.Context, v Verdict) Verdict {
	if g.observer != nil {
		g.observer.ObserveVerdict(ctx, v)
	}
	return v
}

// bounded runs fn under timeout and converts a panic into an error so that no
// collaborator failure escapes the gate.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("collaborator panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{val: v, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return zero, res.err
		}
		return res.val, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
