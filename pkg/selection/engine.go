package selection

import (
	"errors"
	"strconv"
	"strings"
	"sync"
)

// ErrInvalidTarget is returned by ParseTarget for non-numeric or non-positive input.
var ErrInvalidTarget = errors.New("target must be a positive integer")

// State is a point-in-time copy of the selection.
type State[ID comparable] struct {
	Selected   []ID `json:"selected" yaml:"selected"`
	Deselected []ID `json:"deselected" yaml:"deselected"`
	Target     int  `json:"target" yaml:"target"`
}

// Engine holds the selection state for one user session.
type Engine[ID comparable] struct {
	mu         sync.Mutex
	selected   map[ID]struct{}
	deselected map[ID]struct{}
	target     int

	// ids of the page most recently passed to OnPageLoaded
	current []ID
}

// New creates an empty engine.
func New[ID comparable]() *Engine[ID] {
	return &Engine[ID]{
		selected:   make(map[ID]struct{}),
		deselected: make(map[ID]struct{}),
	}
}

// ToggleRow flips the membership of id. A selected id moves to deselected;
// anything else (deselected or undecided) moves to selected. The id does not
// have to be on page.
func (e *Engine[ID]) ToggleRow(page []ID, id ID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.selected[id]; ok {
		e.exclude(id)
		return
	}
	e.include(id)
}

// ToggleSelectAll selects (checked) or deselects every id on page. Ids outside
// the page keep their status.
func (e *Engine[ID]) ToggleSelectAll(page []ID, checked bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range page {
		if checked {
			e.include(id)
		} else {
			e.exclude(id)
		}
	}
}

// ApplyPageSelection sets the status of every id on page from the rows the table
// widget reports as checked: ids in chosen become selected, the rest of the page
// becomes deselected.
func (e *Engine[ID]) ApplyPageSelection(page []ID, chosen []ID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	keep := make(map[ID]struct{}, len(chosen))
	for _, id := range chosen {
		keep[id] = struct{}{}
	}
	for _, id := range page {
		if _, ok := keep[id]; ok {
			e.include(id)
		} else {
			e.exclude(id)
		}
	}
}

// RequestTarget discards the current selection and asks for the first count
// records across all pages. The currently loaded page is filled immediately.
// A non-positive count is ignored and RequestTarget reports false.
func (e *Engine[ID]) RequestTarget(count int) bool {
	if count <= 0 {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.selected = make(map[ID]struct{})
	e.deselected = make(map[ID]struct{})
	e.target = count
	e.fill(e.current)
	return true
}

// OnPageLoaded records page as the currently loaded page and, while a target is
// pending, fills the selection from it in page order.
func (e *Engine[ID]) OnPageLoaded(page []ID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.current = append(e.current[:0:0], page...)
	if e.target > 0 && len(e.selected) < e.target {
		e.fill(page)
	}
}

// Clear resets the engine to the empty state. The loaded page is kept.
func (e *Engine[ID]) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.selected = make(map[ID]struct{})
	e.deselected = make(map[ID]struct{})
	e.target = 0
}

// IsRowSelected reports whether id is explicitly selected.
func (e *Engine[ID]) IsRowSelected(id ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.selected[id]
	return ok
}

// IsAllSelected reports whether every id on page is selected. An empty page is
// all-selected.
func (e *Engine[ID]) IsAllSelected(page []ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range page {
		if _, ok := e.selected[id]; !ok {
			return false
		}
	}
	return true
}

// SelectionCount is the number shown to the user: the target while it is still
// unmet, otherwise the size of the selected set.
func (e *Engine[ID]) SelectionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.target > 0 && e.target > len(e.selected) {
		return e.target
	}
	return len(e.selected)
}

// SelectedCount is the size of the selected set.
func (e *Engine[ID]) SelectedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.selected)
}

// Target returns the current target, 0 when none was requested.
func (e *Engine[ID]) Target() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.target
}

// Pending reports whether a target is set and not yet met.
func (e *Engine[ID]) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.target > 0 && len(e.selected) < e.target
}

// SelectedOn returns the selected ids of page in page order.
func (e *Engine[ID]) SelectedOn(page []ID) []ID {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]ID, 0, len(page))
	for _, id := range page {
		if _, ok := e.selected[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Status is a consistent read of the selection as seen from one page.
type Status struct {
	SelectionCount int
	SelectedCount  int
	Target         int
	Pending        bool
	AllSelected    bool

	// Selected[i] is the checkbox state of page[i].
	Selected []bool
}

// Status reads every figure a page view needs under a single lock.
func (e *Engine[ID]) Status(page []ID) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		SelectedCount: len(e.selected),
		Target:        e.target,
		Pending:       e.target > 0 && len(e.selected) < e.target,
		AllSelected:   true,
		Selected:      make([]bool, len(page)),
	}
	st.SelectionCount = st.SelectedCount
	if st.Pending {
		st.SelectionCount = e.target
	}
	for i, id := range page {
		_, st.Selected[i] = e.selected[id]
		if !st.Selected[i] {
			st.AllSelected = false
		}
	}
	return st
}

// Snapshot copies the current state. Set order is unspecified.
func (e *Engine[ID]) Snapshot() State[ID] {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := State[ID]{
		Selected:   make([]ID, 0, len(e.selected)),
		Deselected: make([]ID, 0, len(e.deselected)),
		Target:     e.target,
	}
	for id := range e.selected {
		s.Selected = append(s.Selected, id)
	}
	for id := range e.deselected {
		s.Deselected = append(s.Deselected, id)
	}
	return s
}

// fill adds undecided ids from page until the target is met. Caller holds mu.
func (e *Engine[ID]) fill(page []ID) {
	for _, id := range page {
		if len(e.selected) >= e.target {
			return
		}
		if _, excluded := e.deselected[id]; excluded {
			continue
		}
		e.selected[id] = struct{}{}
	}
}

func (e *Engine[ID]) include(id ID) {
	delete(e.deselected, id)
	e.selected[id] = struct{}{}
}

func (e *Engine[ID]) exclude(id ID) {
	delete(e.selected, id)
	e.deselected[id] = struct{}{}
}

// ParseTarget validates the text typed into the "select N rows" form.
func ParseTarget(input string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n <= 0 {
		return 0, ErrInvalidTarget
	}
	return n, nil
}
