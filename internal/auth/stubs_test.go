package auth

import (
	"context"
	"sync"
	"time"
)

type stubProvider struct {
	resolveFn func(context.Context, string) (Identity, error)
	calls     int
	mu        sync.Mutex
}

func (s *stubProvider) ResolveIdentity(ctx context.Context, token string) (Identity, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.resolveFn != nil {
		return s.resolveFn(ctx, token)
	}
	return Identity{}, ErrUnauthenticated
}

type stubStore struct {
	hasFn func(context.Context, string) (bool, error)
}

func (s *stubStore) HasAdminRecord(ctx context.Context, uid string) (bool, error) {
	if s.hasFn != nil {
		return s.hasFn(ctx, uid)
	}
	return false, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	stages   []string
	elapsed  []time.Duration
	verdicts []Verdict
}

func (o *recordingObserver) ObserveStage(stage string, elapsed time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
	o.elapsed = append(o.elapsed, elapsed)
}

func (o *recordingObserver) ObserveVerdict(_ context.Context, v Verdict) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verdicts = append(o.verdicts, v)
}

// tokens maps a credential to the identity the stub provider resolves it to.
func providerFor(tokens map[string]Identity) *stubProvider {
	return &stubProvider{
		resolveFn: func(_ context.Context, token string) (Identity, error) {
			id, ok := tokens[token]
			if !ok {
				return Identity{}, ErrUnauthenticated
			}
			return id, nil
		},
	}
}

func storeWith(uids ...string) *stubStore {
	set := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		set[uid] = struct{}{}
	}
	return &stubStore{
		hasFn: func(_ context.Context, uid string) (bool, error) {
			_, ok := set[uid]
			return ok, nil
		},
	}
}
