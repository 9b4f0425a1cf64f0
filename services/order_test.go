package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrowderSoup/wiseflow/board"
	"github.com/CrowderSoup/wiseflow/database"
)

type fakeOrderStore struct {
	mu      sync.Mutex
	batches [][]database.PositionUpdate
	users   []string
	err     error
	release chan struct{}
}

func (f *fakeOrderStore) BatchUpdatePositions(ctx context.Context, userID string, updates []database.PositionUpdate) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, updates)
	f.users = append(f.users, userID)
	return f.err
}

func committedColumns(t *testing.T) board.Columns {
	t.Helper()
	c := board.New([]database.Task{
		{ID: "A", Status: database.StatusTodo},
		{ID: "B", Status: database.StatusTodo, Position: 1},
		{ID: "X", Status: database.StatusDone},
	})
	next, err := c.MoveItem("A", database.StatusDone, 1)
	require.NoError(t, err)
	return next
}

func TestPersistWritesChangedColumns(t *testing.T) {
	store := &fakeOrderStore{}
	p := NewOrderPersister(userCtx(), store)

	p.Persist(committedColumns(t), database.StatusTodo, database.StatusDone)
	p.Wait()

	require.Len(t, store.batches, 1)
	assert.Equal(t, []string{testUser}, store.users)
	assert.Equal(t, []database.PositionUpdate{
		{ID: "B", Status: database.StatusTodo, Position: 0},
		{ID: "X", Status: database.StatusDone, Position: 0},
		{ID: "A", Status: database.StatusDone, Position: 1},
	}, store.batches[0])
}

func TestPersistDoesNotBlock(t *testing.T) {
	store := &fakeOrderStore{release: make(chan struct{})}
	p := NewOrderPersister(userCtx(), store)

	cols := committedColumns(t)
	done := make(chan struct{})
	go func() {
		p.Persist(cols)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Persist blocked on the store")
	}
	close(store.release)
	p.Wait()
	assert.Len(t, store.batches, 1)
}

func TestPersistReportsErrors(t *testing.T) {
	store := &fakeOrderStore{err: errors.New("connection refused")}
	var (
		mu   sync.Mutex
		errs []error
	)
	p := NewOrderPersister(userCtx(), store, OnPersistError(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}))

	p.Persist(committedColumns(t))
	p.Wait()

	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "connection refused")
}

func TestPersistRequiresUser(t *testing.T) {
	store := &fakeOrderStore{}
	var got error
	p := NewOrderPersister(context.Background(), store, OnPersistError(func(err error) { got = err }))

	p.Persist(committedColumns(t))
	p.Wait()

	assert.ErrorIs(t, got, ErrNotAuthenticated)
	assert.Empty(t, store.batches)
}

func TestPersistOutlivesCancelledContext(t *testing.T) {
	store := &fakeOrderStore{}
	ctx, cancel := context.WithCancel(userCtx())
	p := NewOrderPersister(ctx, store, WithPersistTimeout(time.Second))
	cancel()

	p.Persist(committedColumns(t))
	p.Wait()

	assert.Len(t, store.batches, 1)
}
