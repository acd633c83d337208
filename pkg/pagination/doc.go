// Package pagination fetches pages of the artworks API.
//
// BatchFetcher runs a small worker pool over a page range and returns what it
// could fetch:
//
//	bf := pagination.NewBatchFetcher(apiClient, pagination.DefaultConfig())
//	pages, err := bf.FetchRange(ctx, 1, 0) // every page
//
// Walker drives a pending "select the first N" target across pages. Pages are
// visited in ascending order and handed to the sink one at a time, so the N ids
// chosen are the same whether or not pages are prefetched:
//
//	eng := selection.New[int]()
//	eng.RequestTarget(30)
//	visited, err := pagination.NewWalker(apiClient).FillTarget(ctx, eng, 1)
package pagination
