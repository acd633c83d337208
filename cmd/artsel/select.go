package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/Sternrassler/artsel/pkg/artwork"
	"github.com/Sternrassler/artsel/pkg/pagination"
	"github.com/Sternrassler/artsel/pkg/selection"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"

	tabPadding = 2
)

// selectOptions are the flags of the select command.
type selectOptions struct {
	Count     int
	StartPage int
	Output    string
	Prefetch  int
}

// selectResult is what select prints.
type selectResult struct {
	Requested    int               `json:"requested" yaml:"requested"`
	Selected     []int             `json:"selected" yaml:"selected"`
	PagesVisited int               `json:"pages_visited" yaml:"pages_visited"`
	TotalCount   int               `json:"total_count" yaml:"total_count"`
	Records      []artwork.Artwork `json:"records" yaml:"records"`
}

func newSelectCmd(a *app) *cobra.Command {
	var opts selectOptions

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Select the first N artworks across pages and print them",
		Example: `  # First 30 artworks as a table
  artsel select --count 30

  # 50 artworks starting at page 3, fetching 4 pages ahead, as YAML
  artsel select --count 50 --start-page 3 --prefetch 4 --output yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.Output {
			case outputTable, outputJSON, outputYAML:
			default:
				return fmt.Errorf("unknown output format %q (want table, json or yaml)", opts.Output)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			c, cleanup, err := a.newClient(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			walker := pagination.NewWalker(c)
			if opts.Prefetch > 1 {
				walker.WithPrefetch(pagination.NewBatchFetcher(c, pagination.DefaultConfig()), opts.Prefetch)
			}

			res, walkErr := runSelect(ctx, walker, opts)
			if res != nil {
				a.logger.Info().
					Int("target", opts.Count).
					Int("selected", len(res.Selected)).
					Int("pages", res.PagesVisited).
					Msg("Selection finished")
				if err := writeResult(cmd.OutOrStdout(), res, opts.Output); err != nil {
					return err
				}
			}
			return walkErr
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "number of rows to select (required)")
	cmd.Flags().IntVar(&opts.StartPage, "start-page", 1, "page the selection starts on")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", outputTable, "output format: table, json, yaml")
	cmd.Flags().IntVar(&opts.Prefetch, "prefetch", 0, "pages to fetch ahead in parallel (0 or 1 disables)")
	_ = cmd.MarkFlagRequired("count")

	return cmd
}

// runSelect requests opts.Count rows and walks pages until they are picked or
// the data runs out. On a fetch error the rows picked so far are returned with it.
func runSelect(ctx context.Context, walker *pagination.Walker, opts selectOptions) (*selectResult, error) {
	eng := selection.New[int]()
	if !eng.RequestTarget(opts.Count) {
		return nil, fmt.Errorf("--count %d: %w", opts.Count, selection.ErrInvalidTarget)
	}

	pages, err := walker.FillTarget(ctx, eng, opts.StartPage)

	res := &selectResult{
		Requested:    opts.Count,
		Selected:     []int{},
		PagesVisited: len(pages),
		Records:      []artwork.Artwork{},
	}
	for _, page := range pages {
		res.TotalCount = page.TotalCount
		for _, r := range page.Records {
			if eng.IsRowSelected(r.ID) {
				res.Selected = append(res.Selected, r.ID)
				res.Records = append(res.Records, r)
			}
		}
	}

	if err != nil {
		if len(pages) == 0 {
			return nil, err
		}
		return res, fmt.Errorf("selected %d of %d rows: %w", len(res.Selected), opts.Count, err)
	}
	return res, nil
}

func writeResult(w io.Writer, res *selectResult, format string) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)

	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tARTIST\tSTART DATE")
	for _, r := range res.Records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			r.ID, artwork.Field(r, "title"), artwork.Field(r, "artist_display"), artwork.Field(r, "date_start"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nSelected: %d rows (requested %d, %d pages visited)\n",
		len(res.Selected), res.Requested, res.PagesVisited)
	return err
}
