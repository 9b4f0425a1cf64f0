// Package board keeps a project's tasks grouped into the fixed status columns
// and implements drag-and-drop reordering on top of that grouping.
package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/CrowderSoup/wiseflow/database"
)

var (
	ErrUnknownItem   = errors.New("unknown item")
	ErrUnknownStatus = errors.New("unknown status")
	ErrDuplicateItem = errors.New("duplicate item")
)

// Columns partitions tasks into one ordered sequence per status. Every status
// is always present and each task appears in exactly one column. A Columns
// value is never changed after it is built; moves return a new value.
type Columns struct {
	buckets [database.NumStatuses][]database.Task
}

// New groups tasks by status, ordered by their persisted position. Ties keep
// the input order. Tasks carrying an unknown status land in todo, and repeated
// ids are dropped.
func New(tasks []database.Task) Columns {
	var c Columns
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		if !t.Status.Valid() {
			t.Status = database.StatusTodo
		}
		c.buckets[t.Status] = append(c.buckets[t.Status], t)
	}
	for i := range c.buckets {
		sort.SliceStable(c.buckets[i], func(a, b int) bool {
			return c.buckets[i][a].Position < c.buckets[i][b].Position
		})
	}
	return c
}

// Get returns a copy of the column's tasks in order.
func (c Columns) Get(status database.Status) []database.Task {
	if !status.Valid() {
		return nil
	}
	out := make([]database.Task, len(c.buckets[status]))
	copy(out, c.buckets[status])
	return out
}

func (c Columns) Len(status database.Status) int {
	if !status.Valid() {
		return 0
	}
	return len(c.buckets[status])
}

// Total is the number of tasks across all columns.
func (c Columns) Total() int {
	n := 0
	for _, b := range c.buckets {
		n += len(b)
	}
	return n
}

// Locate finds the column and index holding id. ok is false when no column does.
func (c Columns) Locate(id string) (status database.Status, index int, ok bool) {
	for s, bucket := range c.buckets {
		for i, t := range bucket {
			if t.ID == id {
				return database.Status(s), i, true
			}
		}
	}
	return 0, -1, false
}

// Task returns the task with the given id.
func (c Columns) Task(id string) (database.Task, bool) {
	s, i, ok := c.Locate(id)
	if !ok {
		return database.Task{}, false
	}
	return c.buckets[s][i], true
}

// MoveItem places id at index within the to column. An index past the end
// appends; moving to the current spot returns c unchanged.
func (c Columns) MoveItem(id string, to database.Status, index int) (Columns, error) {
	if !to.Valid() {
		return c, fmt.Errorf("%w: %d", ErrUnknownStatus, int(to))
	}
	from, at, ok := c.Locate(id)
	if !ok {
		return c, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}

	next := c
	if from == to {
		index = clamp(index, 0, len(c.buckets[from])-1)
		if index == at {
			return c, nil
		}
		next.buckets[from] = arrayMove(c.buckets[from], at, index)
		return next, nil
	}

	task := c.buckets[from][at]
	task.Status = to
	next.buckets[from] = removeAt(c.buckets[from], at)
	next.buckets[to] = insertAt(c.buckets[to], clamp(index, 0, len(c.buckets[to])), task)
	return next, nil
}

// patchStatus sets the task's status field to the column it sits in.
func (c Columns) patchStatus(id string) Columns {
	s, i, ok := c.Locate(id)
	if !ok || c.buckets[s][i].Status == s {
		return c
	}
	next := c
	bucket := c.Get(s)
	bucket[i].Status = s
	next.buckets[s] = bucket
	return next
}

// Tasks returns every task, column by column.
func (c Columns) Tasks() []database.Task {
	out := make([]database.Task, 0, c.Total())
	for _, b := range c.buckets {
		out = append(out, b...)
	}
	return out
}

// Flatten turns the given columns (all when none are named) into absolute
// position triples: each task's position is its index within its column.
func (c Columns) Flatten(statuses ...database.Status) []database.PositionUpdate {
	if len(statuses) == 0 {
		statuses = database.Statuses()
	}
	var updates []database.PositionUpdate
	for _, s := range statuses {
		if !s.Valid() {
			continue
		}
		for i, t := range c.buckets[s] {
			updates = append(updates, database.PositionUpdate{ID: t.ID, Status: s, Position: i})
		}
	}
	return updates
}

// Changed lists the columns whose task order differs between c and other.
func (c Columns) Changed(other Columns) []database.Status {
	var changed []database.Status
	for _, s := range database.Statuses() {
		if !sameOrder(c.buckets[s], other.buckets[s]) {
			changed = append(changed, s)
		}
	}
	return changed
}

// Equal reports whether both values hold the same ids in the same columns and order.
func (c Columns) Equal(other Columns) bool {
	return len(c.Changed(other)) == 0
}

func sameOrder(a, b []database.Task) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

type columnsJSON struct {
	Todo       []database.Task `json:"todo"`
	InProgress []database.Task `json:"in_progress"`
	Done       []database.Task `json:"done"`
	Cancel     []database.Task `json:"cancel"`
}

func orEmpty(tasks []database.Task) []database.Task {
	if tasks == nil {
		return []database.Task{}
	}
	return tasks
}

func (c Columns) MarshalJSON() ([]byte, error) {
	return json.Marshal(columnsJSON{
		Todo:       orEmpty(c.buckets[database.StatusTodo]),
		InProgress: orEmpty(c.buckets[database.StatusInProgress]),
		Done:       orEmpty(c.buckets[database.StatusDone]),
		Cancel:     orEmpty(c.buckets[database.StatusCancel]),
	})
}

func (c *Columns) UnmarshalJSON(data []byte) error {
	var raw columnsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := [database.NumStatuses][]database.Task{
		database.StatusTodo:       raw.Todo,
		database.StatusInProgress: raw.InProgress,
		database.StatusDone:       raw.Done,
		database.StatusCancel:     raw.Cancel,
	}

	var next Columns
	seen := make(map[string]struct{})
	for s, tasks := range decoded {
		for _, t := range tasks {
			if _, ok := seen[t.ID]; ok {
				return fmt.Errorf("%w: %s", ErrDuplicateItem, t.ID)
			}
			seen[t.ID] = struct{}{}
			t.Status = database.Status(s)
			next.buckets[s] = append(next.buckets[s], t)
		}
	}
	*c = next
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func removeAt(tasks []database.Task, i int) []database.Task {
	out := make([]database.Task, 0, len(tasks)-1)
	out = append(out, tasks[:i]...)
	return append(out, tasks[i+1:]...)
}

func insertAt(tasks []database.Task, i int, t database.Task) []database.Task {
	out := make([]database.Task, 0, len(tasks)+1)
	out = append(out, tasks[:i]...)
	out = append(out, t)
	return append(out, tasks[i:]...)
}

// arrayMove removes the element at from and reinserts it so it ends up at to.
func arrayMove(tasks []database.Task, from, to int) []database.Task {
	moved := tasks[from]
	return insertAt(removeAt(tasks, from), to, moved)
}
