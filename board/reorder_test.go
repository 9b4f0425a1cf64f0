package board

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CrowderSoup/wiseflow/database"
)

func TestReorder(t *testing.T) {
	c := New([]database.Task{
		task("A", database.StatusTodo, 0),
		task("B", database.StatusTodo, 1),
		task("C", database.StatusTodo, 2),
		task("X", database.StatusDone, 0),
		task("Y", database.StatusDone, 1),
	})

	tests := []struct {
		name   string
		active string
		over   Target
		want   Placement
		ok     bool
	}{
		{"onto other column area appends", "A", ColumnTarget(database.StatusDone), Placement{database.StatusDone, 2}, true},
		{"onto empty column", "A", ColumnTarget(database.StatusCancel), Placement{database.StatusCancel, 0}, true},
		{"before card in other column", "A", ItemTarget("Y", false), Placement{database.StatusDone, 1}, true},
		{"after card in other column", "A", ItemTarget("Y", true), Placement{database.StatusDone, 2}, true},
		{"after first card in other column", "A", ItemTarget("X", true), Placement{database.StatusDone, 1}, true},
		{"same column up", "C", ItemTarget("A", false), Placement{database.StatusTodo, 0}, true},
		{"same column down", "A", ItemTarget("C", false), Placement{database.StatusTodo, 2}, true},
		{"same column ignores after hint", "A", ItemTarget("B", true), Placement{database.StatusTodo, 1}, true},
		{"own column area moves to end", "A", ColumnTarget(database.StatusTodo), Placement{database.StatusTodo, 2}, true},
		{"own column area when already last", "C", ColumnTarget(database.StatusTodo), Placement{}, false},
		{"over itself", "B", ItemTarget("B", true), Placement{}, false},
		{"unknown target", "A", ItemTarget("gone", false), Placement{}, false},
		{"unknown column", "A", ColumnTarget(database.Status(12)), Placement{}, false},
		{"unknown active", "gone", ColumnTarget(database.StatusDone), Placement{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Reorder(c, tt.active, tt.over)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReorderIsPure(t *testing.T) {
	c := New([]database.Task{task("A", database.StatusTodo, 0), task("B", database.StatusTodo, 1)})
	before := c.Tasks()

	first, _ := Reorder(c, "A", ItemTarget("B", false))
	second, _ := Reorder(c, "A", ItemTarget("B", false))

	assert.Equal(t, first, second)
	assert.Equal(t, before, c.Tasks())
}

func TestApplyScenarios(t *testing.T) {
	t.Run("drop on column area", func(t *testing.T) {
		c := New([]database.Task{task("A", database.StatusTodo, 0), task("B", database.StatusTodo, 1)})

		next, moved := Apply(c, "A", ColumnTarget(database.StatusDone))

		assert.True(t, moved)
		assert.Equal(t, []string{"B"}, ids(next.Get(database.StatusTodo)))
		assert.Equal(t, []string{"A"}, ids(next.Get(database.StatusDone)))
	})

	t.Run("drop before first card", func(t *testing.T) {
		c := New([]database.Task{
			task("A", database.StatusTodo, 0),
			task("B", database.StatusTodo, 1),
			task("C", database.StatusTodo, 2),
		})

		next, moved := Apply(c, "C", ItemTarget("A", false))

		assert.True(t, moved)
		assert.Equal(t, []string{"C", "A", "B"}, ids(next.Get(database.StatusTodo)))
	})

	t.Run("same column is a permutation", func(t *testing.T) {
		c := New([]database.Task{
			task("A", database.StatusTodo, 0),
			task("B", database.StatusTodo, 1),
			task("C", database.StatusTodo, 2),
			task("X", database.StatusDone, 0),
		})

		next, moved := Apply(c, "A", ItemTarget("C", false))

		assert.True(t, moved)
		assert.ElementsMatch(t, ids(c.Get(database.StatusTodo)), ids(next.Get(database.StatusTodo)))
		assert.Equal(t, []string{"B", "C", "A"}, ids(next.Get(database.StatusTodo)))
		assert.Equal(t, c.Get(database.StatusDone), next.Get(database.StatusDone))
	})

	t.Run("cross column changes one status", func(t *testing.T) {
		c := New([]database.Task{
			task("A", database.StatusTodo, 0),
			task("B", database.StatusTodo, 1),
			task("X", database.StatusDone, 0),
		})

		next, _ := Apply(c, "B", ItemTarget("X", false))

		for _, tk := range c.Tasks() {
			after, ok := next.Task(tk.ID)
			assert.True(t, ok)
			if tk.ID == "B" {
				assert.Equal(t, database.StatusDone, after.Status)
				continue
			}
			assert.Equal(t, tk.Status, after.Status, tk.ID)
		}
	})

	t.Run("nothing to do", func(t *testing.T) {
		c := New([]database.Task{task("A", database.StatusTodo, 0)})
		next, moved := Apply(c, "A", ItemTarget("missing", false))
		assert.False(t, moved)
		assert.True(t, next.Equal(c))
	})
}

func TestPointerBelow(t *testing.T) {
	r := Rect{Top: 100, Height: 40}
	assert.False(t, PointerBelow(110, r))
	assert.False(t, PointerBelow(120, r))
	assert.True(t, PointerBelow(121, r))
}
