// Package session binds one selection engine to one user's view of the
// artworks table: the loaded page, the fetch adapter and the engine state.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/artsel/pkg/artwork"
	"github.com/Sternrassler/artsel/pkg/logging"
	"github.com/Sternrassler/artsel/pkg/metrics"
	"github.com/Sternrassler/artsel/pkg/pagination"
	"github.com/Sternrassler/artsel/pkg/selection"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Row is one table row with its checkbox state.
type Row struct {
	Artwork  artwork.Artwork `json:"artwork" yaml:"artwork"`
	Selected bool            `json:"selected" yaml:"selected"`
}

// View is everything the presentation layer renders.
type View struct {
	SessionID      string `json:"session_id" yaml:"session_id"`
	Page           int    `json:"page" yaml:"page"`
	Rows           []Row  `json:"rows" yaml:"rows"`
	AllSelected    bool   `json:"all_selected" yaml:"all_selected"`
	SelectionCount int    `json:"selection_count" yaml:"selection_count"`
	SelectedCount  int    `json:"selected_count" yaml:"selected_count"`
	Target         int    `json:"target" yaml:"target"`
	Pending        bool   `json:"pending" yaml:"pending"`
	TotalCount     int    `json:"total_count" yaml:"total_count"`
	TotalPages     int    `json:"total_pages" yaml:"total_pages"`
	PageSize       int    `json:"page_size" yaml:"page_size"`
}

// FirstRow is the 1-based position of the first visible row, 0 when the page is empty.
func (v View) FirstRow() int {
	if len(v.Rows) == 0 {
		return 0
	}
	return (v.Page-1)*v.PageSize + 1
}

// LastRow is the 1-based position of the last visible row.
func (v View) LastRow() int {
	if len(v.Rows) == 0 {
		return 0
	}
	return v.FirstRow() + len(v.Rows) - 1
}

// Session is a single user's selection over the paginated dataset. mu guards
// the loaded page and is held across every engine call, so the engine's notion
// of the current page always matches the page the session shows. Lock order is
// mu, then the engine's own lock.
type Session struct {
	id      string
	engine  *selection.Engine[int]
	fetcher pagination.PageFetcher
	logger  zerolog.Logger

	mu       sync.Mutex
	page     *artwork.Page
	pageSize int
	pending  bool
	lastUsed time.Time
}

// New creates a session with an empty selection and no page loaded.
func New(fetcher pagination.PageFetcher, pageSize int) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		engine:   selection.New[int](),
		fetcher:  fetcher,
		logger:   logging.WithSession(logging.NewLogger("session"), id),
		pageSize: pageSize,
		lastUsed: time.Now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Engine exposes the selection engine.
func (s *Session) Engine() *selection.Engine[int] {
	return s.engine
}

// Load fetches page n and makes it the current page. On failure the previous
// page and the selection are left exactly as they were.
func (s *Session) Load(ctx context.Context, n int) (View, error) {
	page, err := s.fetcher.FetchPage(ctx, n)
	if err != nil {
		metrics.PageLoads.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Int("page", n).Msg("Page load failed, selection kept")
		return s.View(), fmt.Errorf("load page %d: %w", n, err)
	}
	metrics.PageLoads.WithLabelValues("ok").Inc()

	s.mu.Lock()
	s.page = page
	if page.Limit > 0 {
		s.pageSize = page.Limit
	}
	s.touch()
	s.engine.OnPageLoaded(page.IDs())
	s.observeLocked()
	v := s.viewLocked()
	s.mu.Unlock()

	s.logger.Debug().
		Int("page", n).
		Int("selected", v.SelectedCount).
		Bool("pending", v.Pending).
		Msg("Page loaded")
	return v, nil
}

// Reload fetches the current page again, or page 1 when none is loaded.
func (s *Session) Reload(ctx context.Context) (View, error) {
	return s.Load(ctx, s.CurrentPage())
}

// CurrentPage is the number of the loaded page, 1 before any load.
func (s *Session) CurrentPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return 1
	}
	return s.page.Number
}

// ToggleRow flips the selection of id.
func (s *Session) ToggleRow(id int) View {
	return s.apply("toggle_row", func(page []int) {
		s.engine.ToggleRow(page, id)
	})
}

// ToggleSelectAll selects or deselects every row of the current page.
func (s *Session) ToggleSelectAll(checked bool) View {
	return s.apply("toggle_all", func(page []int) {
		s.engine.ToggleSelectAll(page, checked)
	})
}

// ApplyPageSelection sets the current page's rows from the checked ids.
func (s *Session) ApplyPageSelection(chosen []int) View {
	return s.apply("apply_page", func(page []int) {
		s.engine.ApplyPageSelection(page, chosen)
	})
}

// RequestTarget asks for the first count records. A non-positive count changes
// nothing and reports false.
func (s *Session) RequestTarget(count int) (View, bool) {
	s.mu.Lock()
	if !s.engine.RequestTarget(count) {
		v := s.viewLocked()
		s.mu.Unlock()
		metrics.InvalidTargets.Inc()
		return v, false
	}
	s.touch()
	s.observeLocked()
	v := s.viewLocked()
	s.mu.Unlock()

	metrics.SelectionOps.WithLabelValues("request_target").Inc()
	s.logger.Info().
		Int("target", count).
		Int("selected", v.SelectedCount).
		Msg("Target requested")
	return v, true
}

// RequestTargetInput parses the overlay text and applies it.
func (s *Session) RequestTargetInput(input string) (View, error) {
	count, err := selection.ParseTarget(input)
	if err != nil {
		metrics.InvalidTargets.Inc()
		return s.View(), err
	}
	v, _ := s.RequestTarget(count)
	return v, nil
}

// Clear drops the selection and any pending target.
func (s *Session) Clear() View {
	return s.apply("clear", func([]int) {
		s.engine.Clear()
	})
}

// View snapshots the current page and selection.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// LastUsed is when the session last loaded a page.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// apply runs one engine mutation against the current page and returns the
// resulting view.
func (s *Session) apply(op string, fn func(page []int)) View {
	s.mu.Lock()
	s.touch()
	fn(s.page.IDs())
	s.observeLocked()
	v := s.viewLocked()
	s.mu.Unlock()

	metrics.SelectionOps.WithLabelValues(op).Inc()
	return v
}

// viewLocked builds the view from one engine read. Caller holds mu.
func (s *Session) viewLocked() View {
	v := View{
		SessionID: s.id,
		Page:      1,
		PageSize:  s.pageSize,
		Rows:      []Row{},
	}
	st := s.engine.Status(s.page.IDs())
	v.SelectionCount = st.SelectionCount
	v.SelectedCount = st.SelectedCount
	v.Target = st.Target
	v.Pending = st.Pending
	if s.page == nil {
		return v
	}

	v.Page = s.page.Number
	v.TotalCount = s.page.TotalCount
	v.TotalPages = s.page.TotalPages
	v.Rows = make([]Row, len(s.page.Records))
	for i, rec := range s.page.Records {
		v.Rows[i] = Row{Artwork: rec, Selected: st.Selected[i]}
	}
	v.AllSelected = st.AllSelected
	return v
}

// touch records activity. Caller holds mu.
func (s *Session) touch() {
	s.lastUsed = time.Now()
}

// observeLocked updates the selection gauges after a change. Caller holds mu.
func (s *Session) observeLocked() {
	pending := s.engine.Pending()
	metrics.SelectionSize.Observe(float64(s.engine.SelectedCount()))

	if pending != s.pending {
		if pending {
			metrics.PendingTargets.Inc()
		} else {
			metrics.PendingTargets.Dec()
		}
		s.pending = pending
	}
}

// release drops the session's share of the pending gauge.
func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		metrics.PendingTargets.Dec()
		s.pending = false
	}
}
