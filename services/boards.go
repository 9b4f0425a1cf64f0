package services

import (
	"context"
	"fmt"

	"github.com/CrowderSoup/wiseflow/board"
	"github.com/CrowderSoup/wiseflow/database"
)

// BoardStore lists a project's tasks and writes their order.
type BoardStore interface {
	OrderStore
	ListTasks(ctx context.Context, userID, projectID string) ([]database.Task, error)
}

// Boards loads board columns from the remote store and saves explicit
// position batches.
type Boards struct {
	store BoardStore
}

func NewBoards(store BoardStore) *Boards {
	return &Boards{store: store}
}

// Load fetches the live tasks of a project (every project when projectID is
// empty) grouped into columns.
func (b *Boards) Load(ctx context.Context, projectID string) (board.Columns, error) {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return board.Columns{}, err
	}
	tasks, err := b.store.ListTasks(ctx, userID, projectID)
	if err != nil {
		return board.Columns{}, err
	}
	return board.New(tasks), nil
}

// SavePositions writes a batch of absolute positions and waits for it.
func (b *Boards) SavePositions(ctx context.Context, updates []database.PositionUpdate) error {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if u.ID == "" || !u.Status.Valid() || u.Position < 0 {
			return fmt.Errorf("%w: bad position update %+v", ErrInvalidInput, u)
		}
	}
	return b.store.BatchUpdatePositions(ctx, userID, updates)
}

// Persister returns a background order writer for the user in ctx.
func (b *Boards) Persister(ctx context.Context, opts ...PersisterOption) *OrderPersister {
	return NewOrderPersister(ctx, b.store, opts...)
}
