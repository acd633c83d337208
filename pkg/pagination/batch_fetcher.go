// Package pagination provides parallel range fetching and the ordered target walk
// over the pages of the artworks API.
package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/artsel/pkg/artwork"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
}

// DefaultConfig returns a configuration that stays well inside the public
// API's request budget.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// PageFetcher loads a single page. *client.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, n int) (*artwork.Page, error)
}

// PageResult represents the result of fetching a single page
type PageResult struct {
	PageNumber int
	Page       *artwork.Page
	Error      error
}

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchRange fetches pages from..to (inclusive) in parallel. A to below 1 means
// "through the last page": page from is fetched first to learn the page count.
// On a failed page the pages fetched so far are returned with the first error.
func (bf *BatchFetcher) FetchRange(ctx context.Context, from, to int) (map[int]*artwork.Page, error) {
	if from < 1 {
		return nil, fmt.Errorf("invalid range start %d", from)
	}
	start := time.Now()
	results := make(map[int]*artwork.Page)

	if to < 1 {
		first, err := bf.fetchOne(ctx, from)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch first page: %w", err)
		}
		results[from] = first
		to = first.TotalPages
		from++
	}

	if from > to {
		return results, nil
	}

	totalPages := to - from + 1
	log.Info().
		Int("from", from).
		Int("to", to).
		Int("workers", bf.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageQueue := make(chan int, totalPages)
	for page := from; page <= to; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	pageResults := make(chan PageResult, totalPages)

	var wg sync.WaitGroup
	for i := 0; i < bf.config.MaxConcurrency && i < totalPages; i++ {
		wg.Add(1)
		go bf.worker(ctx, cancel, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	var firstErr error
	for result := range pageResults {
		if result.Error != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", result.PageNumber, result.Error)
			}
			continue
		}
		results[result.PageNumber] = result.Page
	}

	if firstErr != nil {
		log.Warn().
			Err(firstErr).
			Int("fetched_pages", len(results)).
			Int("requested_pages", totalPages).
			Msg("Worker error - returning partial results")
		return results, fmt.Errorf("partial data (%d pages): %w", len(results), firstErr)
	}

	log.Info().
		Int("pages", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

func (bf *BatchFetcher) fetchOne(ctx context.Context, n int) (*artwork.Page, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()
	return bf.fetcher.FetchPage(pageCtx, n)
}

// worker processes pages from the queue
func (bf *BatchFetcher) worker(ctx context.Context, cancel context.CancelFunc, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		if ctx.Err() != nil {
			continue
		}

		page, err := bf.fetchOne(ctx, pageNum)
		if err != nil {
			log.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")
			// stop handing out pages; the others drain the queue
			cancel()
		}

		// buffered for every page, never blocks
		results <- PageResult{PageNumber: pageNum, Page: page, Error: err}
		pagesProcessed++
	}

	log.Debug().
		Int("worker_id", workerID).
		Int("pages_processed", pagesProcessed).
		Msg("Worker completed")
}
