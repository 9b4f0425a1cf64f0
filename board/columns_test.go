package board

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrowderSoup/wiseflow/database"
)

func task(id string, status database.Status, position int) database.Task {
	return database.Task{ID: id, Title: "task " + id, Status: status, Position: position}
}

func ids(tasks []database.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

// assertComplete checks that every id appears exactly once and in the column its status names.
func assertComplete(t *testing.T, c Columns, want ...string) {
	t.Helper()
	seen := map[string]int{}
	for _, s := range database.Statuses() {
		for _, tk := range c.Get(s) {
			seen[tk.ID]++
			assert.Equal(t, s, tk.Status, "task %s sits in %s", tk.ID, s)
		}
	}
	assert.Len(t, seen, len(want))
	for _, id := range want {
		assert.Equal(t, 1, seen[id], "task %s", id)
	}
}

func TestNewGroupsAndOrders(t *testing.T) {
	c := New([]database.Task{
		task("B", database.StatusTodo, 2),
		task("A", database.StatusTodo, 1),
		task("D", database.StatusDone, 0),
		task("C", database.StatusTodo, 1),
		task("A", database.StatusDone, 0),
		{ID: "E", Status: database.Status(42)},
	})

	assert.Equal(t, []string{"E", "A", "C", "B"}, ids(c.Get(database.StatusTodo)))
	assert.Equal(t, []string{"D"}, ids(c.Get(database.StatusDone)))
	assert.Empty(t, c.Get(database.StatusInProgress))
	assert.Empty(t, c.Get(database.StatusCancel))
	assert.Equal(t, 5, c.Total())
	assertComplete(t, c, "A", "B", "C", "D", "E")
}

func TestLocate(t *testing.T) {
	c := New([]database.Task{task("A", database.StatusTodo, 0), task("B", database.StatusDone, 0)})

	s, i, ok := c.Locate("B")
	require.True(t, ok)
	assert.Equal(t, database.StatusDone, s)
	assert.Equal(t, 0, i)

	_, i, ok = c.Locate("missing")
	assert.False(t, ok)
	assert.Equal(t, -1, i)
}

func TestGetReturnsCopy(t *testing.T) {
	c := New([]database.Task{task("A", database.StatusTodo, 0)})
	got := c.Get(database.StatusTodo)
	got[0].ID = "changed"

	assert.Equal(t, []string{"A"}, ids(c.Get(database.StatusTodo)))
	assert.Nil(t, c.Get(database.Status(9)))
}

func TestMoveItem(t *testing.T) {
	base := New([]database.Task{
		task("A", database.StatusTodo, 0),
		task("B", database.StatusTodo, 1),
		task("C", database.StatusTodo, 2),
		task("D", database.StatusDone, 0),
	})

	t.Run("same column", func(t *testing.T) {
		next, err := base.MoveItem("C", database.StatusTodo, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"C", "A", "B"}, ids(next.Get(database.StatusTodo)))
		assert.Equal(t, []string{"A", "B", "C"}, ids(base.Get(database.StatusTodo)), "original is untouched")
	})

	t.Run("same spot is a no-op", func(t *testing.T) {
		next, err := base.MoveItem("B", database.StatusTodo, 1)
		require.NoError(t, err)
		assert.True(t, next.Equal(base))
	})

	t.Run("cross column patches status", func(t *testing.T) {
		next, err := base.MoveItem("A", database.StatusDone, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "C"}, ids(next.Get(database.StatusTodo)))
		assert.Equal(t, []string{"A", "D"}, ids(next.Get(database.StatusDone)))
		moved, _ := next.Task("A")
		assert.Equal(t, database.StatusDone, moved.Status)
		assertComplete(t, next, "A", "B", "C", "D")
	})

	t.Run("index past the end appends", func(t *testing.T) {
		next, err := base.MoveItem("A", database.StatusDone, 99)
		require.NoError(t, err)
		assert.Equal(t, []string{"D", "A"}, ids(next.Get(database.StatusDone)))

		next, err = base.MoveItem("A", database.StatusTodo, 99)
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "C", "A"}, ids(next.Get(database.StatusTodo)))
	})

	t.Run("errors", func(t *testing.T) {
		_, err := base.MoveItem("missing", database.StatusDone, 0)
		assert.ErrorIs(t, err, ErrUnknownItem)
		_, err = base.MoveItem("A", database.Status(7), 0)
		assert.ErrorIs(t, err, ErrUnknownStatus)
	})
}

func TestMoveSequenceKeepsEveryTask(t *testing.T) {
	c := New([]database.Task{
		task("A", database.StatusTodo, 0),
		task("B", database.StatusTodo, 1),
		task("C", database.StatusInProgress, 0),
		task("D", database.StatusDone, 0),
		task("E", database.StatusCancel, 0),
	})
	moves := []struct {
		id    string
		to    database.Status
		index int
	}{
		{"A", database.StatusDone, 1},
		{"E", database.StatusTodo, 0},
		{"B", database.StatusTodo, 0},
		{"C", database.StatusCancel, 5},
		{"D", database.StatusInProgress, -3},
		{"A", database.StatusDone, 0},
		{"E", database.StatusInProgress, 1},
	}
	for _, m := range moves {
		next, err := c.MoveItem(m.id, m.to, m.index)
		require.NoError(t, err)
		assertComplete(t, next, "A", "B", "C", "D", "E")
		c = next
	}
}

func TestFlattenAndChanged(t *testing.T) {
	before := New([]database.Task{
		task("A", database.StatusTodo, 4),
		task("B", database.StatusTodo, 9),
		task("C", database.StatusDone, 0),
	})
	after, err := before.MoveItem("A", database.StatusDone, 1)
	require.NoError(t, err)

	changed := before.Changed(after)
	assert.Equal(t, []database.Status{database.StatusTodo, database.StatusDone}, changed)
	assert.Equal(t, []database.PositionUpdate{
		{ID: "B", Status: database.StatusTodo, Position: 0},
		{ID: "C", Status: database.StatusDone, Position: 0},
		{ID: "A", Status: database.StatusDone, Position: 1},
	}, after.Flatten(changed...))
	assert.Len(t, after.Flatten(), 3)
}

func TestColumnsJSON(t *testing.T) {
	c := New([]database.Task{task("A", database.StatusInProgress, 0)})

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var raw map[string][]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 4)
	assert.Empty(t, raw["todo"])
	require.Len(t, raw["in_progress"], 1)
	assert.Equal(t, "A", raw["in_progress"][0]["id"])

	var back Columns
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(c))
}

func TestColumnsJSONRejectsDuplicates(t *testing.T) {
	var c Columns
	err := json.Unmarshal([]byte(`{"todo":[{"id":"A"}],"done":[{"id":"A"}]}`), &c)
	assert.ErrorIs(t, err, ErrDuplicateItem)

	err = json.Unmarshal([]byte(`{"todo":[{"id":"A"},{"id":"A"}]}`), &c)
	assert.ErrorIs(t, err, ErrDuplicateItem)

	require.NoError(t, json.Unmarshal([]byte(`{"todo":[{"id":"A"}],"done":[{"id":"B","status":"todo"}]}`), &c))
	assert.Equal(t, 2, c.Total())
	moved, _ := c.Task("B")
	assert.Equal(t, database.StatusDone, moved.Status)
}
