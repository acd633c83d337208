package pagination

import (
	"context"
	"fmt"

	"github.com/Sternrassler/artsel/pkg/artwork"
	"github.com/rs/zerolog/log"
)

// TargetSink receives loaded pages while a target is pending.
// *selection.Engine[int] implements it.
type TargetSink interface {
	OnPageLoaded(page []int)
	Pending() bool
}

// Walker visits pages in order until a pending target is met.
type Walker struct {
	fetcher PageFetcher
	batch   *BatchFetcher
	window  int
}

// NewWalker creates a sequential walker.
func NewWalker(fetcher PageFetcher) *Walker {
	return &Walker{fetcher: fetcher, window: 1}
}

// WithPrefetch fetches up to window pages ahead in parallel. Pages are still
// handed to the sink strictly in page order.
func (w *Walker) WithPrefetch(batch *BatchFetcher, window int) *Walker {
	if batch != nil && window > 1 {
		w.batch = batch
		w.window = window
	}
	return w
}

// FillTarget visits start, start+1, ... feeding each page's ids to sink until
// sink.Pending() is false or the last page was visited. It returns the visited
// pages in order. A fetch error ends the walk; the failed page never reaches
// the sink.
func (w *Walker) FillTarget(ctx context.Context, sink TargetSink, start int) ([]*artwork.Page, error) {
	if start < 1 {
		start = 1
	}

	var visited []*artwork.Page
	last := 0 // unknown until the first page arrives

	for n := start; sink.Pending(); {
		if last > 0 && n > last {
			break
		}

		pages, err := w.next(ctx, n, last)

		for _, page := range pages {
			if !sink.Pending() {
				break
			}
			sink.OnPageLoaded(page.IDs())
			visited = append(visited, page)
			last = page.TotalPages
			n = page.Number + 1
		}

		if err != nil && sink.Pending() {
			return visited, fmt.Errorf("fill target at page %d: %w", n, err)
		}
		if err != nil || len(pages) == 0 || pages[len(pages)-1].IsLast() {
			break
		}
	}

	log.Debug().
		Int("start", start).
		Int("visited", len(visited)).
		Bool("pending", sink.Pending()).
		Msg("Target walk finished")
	return visited, nil
}

// next returns the contiguous run of pages from n that could be fetched.
func (w *Walker) next(ctx context.Context, n, last int) ([]*artwork.Page, error) {
	if w.batch == nil || last == 0 {
		page, err := w.fetcher.FetchPage(ctx, n)
		if err != nil {
			return nil, err
		}
		return []*artwork.Page{page}, nil
	}

	to := n + w.window - 1
	if to > last {
		to = last
	}
	fetched, err := w.batch.FetchRange(ctx, n, to)

	var pages []*artwork.Page
	for p := n; p <= to; p++ {
		page, ok := fetched[p]
		if !ok {
			break
		}
		pages = append(pages, page)
	}
	return pages, err
}
