package board

import (
	"errors"
	"fmt"
	"sync"

	"github.com/CrowderSoup/wiseflow/database"
)

var ErrNotDragging = errors.New("no drag in progress")

type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Persister stores committed column order. Persist must not block; only the
// named columns (all when none) need to be written.
type Persister interface {
	Persist(cols Columns, statuses ...database.Status)
}

// Session tracks the interactive move of one card on one board.
//
// It keeps two slots while dragging: live, which previews are written into so
// the view follows the pointer, and snapshot, the columns as they were when
// the gesture began. The commit classifies the move against snapshot, never
// against the preview-mutated live state.
type Session struct {
	mu sync.Mutex

	live     Columns
	snapshot Columns
	state    State
	activeID string
	lastOver *Target

	persister Persister
	onCommit  func(Columns)
	onPreview func(Columns)
}

type Option func(*Session)

func WithPersister(p Persister) Option {
	return func(s *Session) { s.persister = p }
}

// OnCommit registers a callback receiving every committed state.
func OnCommit(fn func(Columns)) Option {
	return func(s *Session) { s.onCommit = fn }
}

// OnPreview registers a callback receiving every preview and every restore.
func OnPreview(fn func(Columns)) Option {
	return func(s *Session) { s.onPreview = fn }
}

func NewSession(cols Columns, opts ...Option) *Session {
	s := &Session{live: cols}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Columns returns the state the view should show.
func (s *Session) Columns() Columns {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveID is the card being dragged, empty when idle.
func (s *Session) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// DragStart begins moving id. A start while another drag is running cancels
// that drag first.
func (s *Session) DragStart(id string) error {
	s.mu.Lock()
	restored, cancelled := s.cancelLocked()
	if _, _, ok := s.live.Locate(id); !ok {
		s.mu.Unlock()
		s.preview(restored, cancelled)
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	s.snapshot = s.live
	s.activeID = id
	s.lastOver = nil
	s.state = Dragging
	s.mu.Unlock()

	s.preview(restored, cancelled)
	return nil
}

// DragOver applies the tentative placement for the hovered target to the live
// columns. Repeating the previous target is ignored so a card held over a
// neighbour does not swap back and forth.
func (s *Session) DragOver(over Target) (Columns, error) {
	s.mu.Lock()
	if s.state != Dragging {
		live := s.live
		s.mu.Unlock()
		return live, ErrNotDragging
	}
	if s.lastOver != nil && *s.lastOver == over {
		live := s.live
		s.mu.Unlock()
		return live, nil
	}
	o := over
	s.lastOver = &o

	next, moved := Apply(s.live, s.activeID, over)
	s.live = next
	s.mu.Unlock()

	s.preview(next, moved)
	return next, nil
}

// DragEnd finishes the gesture over target. A nil target (dropped outside the
// board) or one that no longer resolves cancels the drag. committed is false
// when the drag was cancelled or nothing moved.
func (s *Session) DragEnd(over *Target) (cols Columns, committed bool, err error) {
	s.mu.Lock()
	if s.state != Dragging {
		live := s.live
		s.mu.Unlock()
		return live, false, ErrNotDragging
	}

	result, ok := s.commitLocked(over)
	if !ok {
		restored, _ := s.cancelLocked()
		s.mu.Unlock()
		s.preview(restored, true)
		return restored, false, nil
	}

	changed := s.snapshot.Changed(result)
	s.live = result
	s.reset()
	s.mu.Unlock()

	if len(changed) == 0 {
		s.preview(result, true)
		return result, false, nil
	}
	if s.onCommit != nil {
		s.onCommit(result)
	}
	if s.persister != nil {
		s.persister.Persist(result, changed...)
	}
	return result, true, nil
}

// commitLocked derives the final columns. Same-column moves are recomputed
// from the snapshot as one array move, to the card's live index when the
// target is the card itself; cross-column moves keep the live preview, which
// already shows the card in its destination.
func (s *Session) commitLocked(over *Target) (Columns, bool) {
	if over == nil {
		return Columns{}, false
	}
	to, _, ok := s.live.resolve(*over)
	if !ok {
		return Columns{}, false
	}
	from, _, ok := s.snapshot.Locate(s.activeID)
	if !ok {
		return Columns{}, false
	}

	if to == from {
		if over.ItemID == s.activeID {
			// Dropped on its own previewed slot; keep where the preview put it.
			_, liveIdx, _ := s.live.Locate(s.activeID)
			next, err := s.snapshot.MoveItem(s.activeID, from, liveIdx)
			if err != nil {
				return Columns{}, false
			}
			return next, true
		}
		next, _ := Apply(s.snapshot, s.activeID, *over)
		return next, true
	}

	result := s.live
	if cur, _, ok := result.Locate(s.activeID); !ok {
		return Columns{}, false
	} else if cur != to {
		// No preview reached the destination column; place it now.
		next, moved := Apply(result, s.activeID, *over)
		if !moved {
			return Columns{}, false
		}
		result = next
	}
	result = result.patchStatus(s.activeID)
	if result.Total() != s.snapshot.Total() {
		return Columns{}, false
	}
	return result, true
}

// Cancel drops every preview and restores the columns from when the drag began.
func (s *Session) Cancel() Columns {
	s.mu.Lock()
	restored, cancelled := s.cancelLocked()
	s.mu.Unlock()

	s.preview(restored, cancelled)
	return restored
}

// Replace installs columns fetched from the remote store. A drag in progress
// is cancelled, since its snapshot no longer describes the board.
func (s *Session) Replace(cols Columns) {
	s.mu.Lock()
	s.cancelLocked()
	s.live = cols
	s.mu.Unlock()
}

func (s *Session) cancelLocked() (Columns, bool) {
	if s.state != Dragging {
		return s.live, false
	}
	s.live = s.snapshot
	s.reset()
	return s.live, true
}

func (s *Session) reset() {
	s.state = Idle
	s.activeID = ""
	s.lastOver = nil
	s.snapshot = Columns{}
}

func (s *Session) preview(cols Columns, changed bool) {
	if changed && s.onPreview != nil {
		s.onPreview(cols)
	}
}
