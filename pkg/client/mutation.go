package client

import "context"

// MutationState tracks where an optimistic mutation is in its lifecycle.
type MutationState int

const (
	StateIdle MutationState = iota
	StateMutating
	StateCommitted
	StateRolledBack
)

func (s MutationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMutating:
		return "mutating"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Mutation describes one optimistic write. Every create/update/delete in the
// SDK runs through the same machine: cancel refetches, snapshot, speculative
// apply, remote call, then reconcile on success or restore the snapshot on
// failure, and invalidate either way.
//
// Reconcile runs before Invalidate, so temp-id replacement is already in the
// cache when the invalidation's refetch lands; the refetch it displaces was
// fenced off by the cancel step.
type Mutation[Req, Resp any] struct {
	// Scope lists the key prefixes the mutation touches. They are cancelled
	// and snapshotted up front and invalidated at the end regardless of
	// outcome.
	Scope []Key
	// Apply performs the speculative cache write. Optional.
	Apply func(s *Store, req Req)
	// Call performs the remote operation.
	Call func(ctx context.Context, req Req) (Resp, error)
	// Reconcile folds the server response into the cache, replacing any
	// temporary ids Apply introduced. Optional.
	Reconcile func(s *Store, req Req, resp Resp)
	// OnState observes lifecycle transitions. Optional.
	OnState func(MutationState)
}

// RunMutation executes the optimistic protocol against the store.
func RunMutation[Req, Resp any](ctx context.Context, s *Store, m Mutation[Req, Resp], req Req) (Resp, error) {
	notify := func(state MutationState) {
		if m.OnState != nil {
			m.OnState(state)
		}
	}
	notify(StateMutating)

	for _, prefix := range m.Scope {
		s.CancelRefetch(prefix)
	}
	snap := s.Snapshot(m.Scope...)

	if m.Apply != nil {
		m.Apply(s, req)
	}

	resp, err := m.Call(ctx, req)
	if err != nil {
		s.Restore(snap)
		for _, prefix := range m.Scope {
			s.Invalidate(prefix)
		}
		notify(StateRolledBack)
		var zero Resp
		return zero, err
	}

	if m.Reconcile != nil {
		m.Reconcile(s, req, resp)
	}
	for _, prefix := range m.Scope {
		s.Invalidate(prefix)
	}
	notify(StateCommitted)
	return resp, nil
}
