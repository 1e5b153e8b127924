// Package publisher decouples audit emission from audit persistence. In sync
// mode Emit writes through to the store; with an async buffer Emit enqueues
// and a background worker drains, so a slow sink never blocks ingestion.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "ledgerd/pkg/platform/audit"
)

// Lister is implemented by stores that support per-tenant reads.
type Lister interface {
	ListByTenant(ctx context.Context, tenantID string) ([]audit.Event, error)
}

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buffer  chan audit.Event
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool
}

type Option func(*Publisher)

// WithAsyncBuffer enables async emission with the given buffer size. When
// the buffer is full, events are dropped with a warning rather than blocking
// the caller.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.buffer = make(chan audit.Event, size)
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an audit event. Zero timestamps are stamped at emission time.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}

	// The read lock orders the send against Close: once Close has set the
	// closed flag and closed the channel, no Emit can still be sending.
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		p.logger.Warn("audit publisher closed, dropping event",
			"action", event.Action,
			"tenant_id", event.TenantID,
		)
		return nil
	}

	select {
	case p.buffer <- event:
		return nil
	default:
		p.logger.Warn("audit buffer full, dropping event",
			"action", event.Action,
			"tenant_id", event.TenantID,
		)
		return nil
	}
}

// List returns events for a tenant when the underlying store supports reads.
func (p *Publisher) List(ctx context.Context, tenantID string) ([]audit.Event, error) {
	lister, ok := p.store.(Lister)
	if !ok {
		return nil, nil
	}
	return lister.ListByTenant(ctx, tenantID)
}

// Close stops the async worker after draining buffered events. Safe to call
// more than once and concurrently with Emit; emissions arriving after Close
// are dropped.
func (p *Publisher) Close() {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
		p.wg.Wait()
	}
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("audit append failed",
				"action", event.Action,
				"error", err,
			)
		}
	}
}
