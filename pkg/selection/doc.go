// Package selection tracks a user's record selection across the pages of a
// server-paginated result set without materializing the whole set.
//
// The Engine keeps two disjoint id sets and an optional numeric target:
//
//   - selected: ids explicitly included
//   - deselected: ids explicitly excluded; an exclusion always wins over a target fill
//   - target: the number of records the user asked for ("select the first N"), 0 when none is pending
//
// An id in neither set is undecided: it renders as unselected but stays eligible
// for a later fill pass.
//
// # Target fill
//
// RequestTarget starts a fresh goal and fills from the page currently loaded.
// Every later OnPageLoaded call runs another fill pass while the selection is still
// short of the target, so the first N eligible ids in visiting order become selected:
//
//	eng := selection.New[int]()
//	eng.OnPageLoaded([]int{1, 2, 3})
//	eng.RequestTarget(5)            // selected = {1,2,3}, SelectionCount() = 5
//	eng.OnPageLoaded([]int{4, 5, 6}) // selected = {1,2,3,4,5}
//
// Manual edits made after a fill are layered on top; a fill only re-runs when a new
// page arrives while the count is still short.
//
// # Concurrency
//
// All operations are synchronous and serialized behind a single mutex, so an Engine
// can be shared by the goroutines of a server or a TUI program.
package selection
