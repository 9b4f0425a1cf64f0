package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/CrowderSoup/wiseflow/board"
	"github.com/CrowderSoup/wiseflow/database"
)

// DefaultPersistTimeout bounds one background position write.
const DefaultPersistTimeout = 10 * time.Second

// OrderStore writes absolute task positions.
type OrderStore interface {
	BatchUpdatePositions(ctx context.Context, userID string, updates []database.PositionUpdate) error
}

// OrderPersister saves committed board order in the background. Persist never
// blocks the caller and never rolls back local state: failures are logged and
// reported to the error callback, and a refetch is the way to recover.
// Writes may land in any order; the store ends up with whichever arrives last.
type OrderPersister struct {
	ctx     context.Context
	store   OrderStore
	timeout time.Duration
	onError func(error)

	wg sync.WaitGroup
}

type PersisterOption func(*OrderPersister)

func WithPersistTimeout(d time.Duration) PersisterOption {
	return func(p *OrderPersister) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// OnPersistError registers a callback for failed writes. It runs on the
// persister's goroutine.
func OnPersistError(fn func(error)) PersisterOption {
	return func(p *OrderPersister) { p.onError = fn }
}

// NewOrderPersister writes on behalf of the user attached to ctx. Writes
// outlive ctx's cancellation so a closed view does not drop its last commit.
func NewOrderPersister(ctx context.Context, store OrderStore, opts ...PersisterOption) *OrderPersister {
	p := &OrderPersister{
		ctx:     context.WithoutCancel(ctx),
		store:   store,
		timeout: DefaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Persist flattens the named columns (all when none) into position triples
// and sends them to the store.
func (p *OrderPersister) Persist(cols board.Columns, statuses ...database.Status) {
	userID, err := UserFromContext(p.ctx)
	if err != nil {
		p.fail(err)
		return
	}
	updates := cols.Flatten(statuses...)
	if len(updates) == 0 {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
		defer cancel()

		if err := p.store.BatchUpdatePositions(ctx, userID, updates); err != nil {
			p.fail(fmt.Errorf("failed to persist order of %d tasks: %w", len(updates), err))
		}
	}()
}

// Wait blocks until every write started so far has finished.
func (p *OrderPersister) Wait() {
	p.wg.Wait()
}

func (p *OrderPersister) fail(err error) {
	log.Printf("Error persisting board order: %v", err)
	if p.onError != nil {
		p.onError(err)
	}
}
