package board

import "github.com/CrowderSoup/wiseflow/database"

// Target is what the pointer is over during a drag: either the empty area of
// a column (ItemID empty) or another card.
type Target struct {
	Status database.Status
	ItemID string
	After  bool
}

func ColumnTarget(status database.Status) Target {
	return Target{Status: status}
}

func ItemTarget(id string, after bool) Target {
	return Target{ItemID: id, After: after}
}

// Rect is the vertical extent of a card on screen.
type Rect struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

// PointerBelow reports whether pointerY is past the card's vertical midpoint,
// which means "insert after" the card.
func PointerBelow(pointerY float64, r Rect) bool {
	return pointerY > r.Top+r.Height/2
}

// Placement is where the dragged task should go.
type Placement struct {
	Status database.Status
	Index  int
}

// resolve returns the column the target points into and, for a card target,
// the card's index. index is -1 for a column target.
func (c Columns) resolve(t Target) (status database.Status, index int, ok bool) {
	if t.ItemID == "" {
		if !t.Status.Valid() {
			return 0, -1, false
		}
		return t.Status, -1, true
	}
	return c.Locate(t.ItemID)
}

// Reorder computes where activeID lands when dropped over the target. It has
// no side effects. ok is false when nothing should move: the active task or
// the target cannot be found, the target is the task itself, or the task is
// already in place.
//
// Across columns the task goes to the end of a column target, or right
// before/after a card target. Within one column it behaves as a single
// remove-then-insert to the target card's index; dropping on the column's own
// empty area moves it to the end.
func Reorder(c Columns, activeID string, over Target) (Placement, bool) {
	from, fromIdx, ok := c.Locate(activeID)
	if !ok || over.ItemID == activeID {
		return Placement{}, false
	}
	to, overIdx, ok := c.resolve(over)
	if !ok {
		return Placement{}, false
	}

	if to != from {
		if overIdx < 0 {
			return Placement{Status: to, Index: c.Len(to)}, true
		}
		idx := overIdx
		if over.After {
			idx++
		}
		return Placement{Status: to, Index: idx}, true
	}

	target := overIdx
	if target < 0 {
		target = c.Len(from) - 1
	}
	if target == fromIdx {
		return Placement{}, false
	}
	return Placement{Status: from, Index: target}, true
}

// Apply runs Reorder and performs the resulting move. moved is false when
// Reorder found nothing to do.
func Apply(c Columns, activeID string, over Target) (next Columns, moved bool) {
	p, ok := Reorder(c, activeID, over)
	if !ok {
		return c, false
	}
	next, err := c.MoveItem(activeID, p.Status, p.Index)
	if err != nil {
		return c, false
	}
	return next, true
}
