// Package audit records the actions the pipeline must be able to account
// for: ingestion outcomes, trust failures, and retention transitions. Trust
// and integrity failures are never silently downgraded; they always leave an
// audit event behind.
package audit

import "context"

// Store persists audit events. Implementations include the in-memory store
// and the Kafka sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Fanout returns a Store that appends to every underlying store. The first
// failure wins; later stores still get the event.
func Fanout(stores ...Store) Store {
	return fanout(stores)
}

type fanout []Store

func (f fanout) Append(ctx context.Context, event Event) error {
	var firstErr error
	for _, store := range f {
		if err := store.Append(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
