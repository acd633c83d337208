// Package artwork defines the records served by the artworks API and decodes
// one page of them.
package artwork

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformedResponse indicates a page payload that is missing the expected shape.
var ErrMalformedResponse = errors.New("malformed page response")

// DefaultFields are the fields requested from the API; they match the table columns.
var DefaultFields = []string{
	"id",
	"title",
	"place_of_origin",
	"artist_display",
	"inscriptions",
	"date_start",
	"date_end",
}

// Artwork is a single record of the paginated dataset.
type Artwork struct {
	ID            int    `json:"id" yaml:"id"`
	Title         string `json:"title" yaml:"title"`
	PlaceOfOrigin string `json:"place_of_origin" yaml:"place_of_origin"`
	ArtistDisplay string `json:"artist_display" yaml:"artist_display"`
	Inscriptions  string `json:"inscriptions" yaml:"inscriptions"`
	DateStart     *int   `json:"date_start" yaml:"date_start"`
	DateEnd       *int   `json:"date_end" yaml:"date_end"`
}

// Pagination is the pagination block of an API response.
type Pagination struct {
	Total       int `json:"total"`
	Limit       int `json:"limit"`
	Offset      int `json:"offset"`
	TotalPages  int `json:"total_pages"`
	CurrentPage int `json:"current_page"`
}

// Page is one page of records plus the size of the whole result set.
type Page struct {
	Number     int       `json:"number" yaml:"number"`
	Records    []Artwork `json:"records" yaml:"records"`
	TotalCount int       `json:"total_count" yaml:"total_count"`
	TotalPages int       `json:"total_pages" yaml:"total_pages"`
	Limit      int       `json:"limit" yaml:"limit"`
}

// IDs returns the record ids in page order.
func (p *Page) IDs() []int {
	if p == nil {
		return nil
	}
	ids := make([]int, len(p.Records))
	for i, r := range p.Records {
		ids[i] = r.ID
	}
	return ids
}

// IsLast reports whether no page follows this one.
func (p *Page) IsLast() bool {
	return p == nil || p.Number >= p.TotalPages
}

// response is the wire shape. Pointers distinguish missing blocks from empty ones.
type response struct {
	Pagination *Pagination       `json:"pagination"`
	Data       *[]json.RawMessage `json:"data"`
}

// Decode parses an API response body for page pageNum.
func Decode(data []byte, pageNum int) (*Page, error) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.Pagination == nil {
		return nil, fmt.Errorf("%w: missing pagination", ErrMalformedResponse)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedResponse)
	}
	if resp.Pagination.Total < 0 || resp.Pagination.TotalPages < 0 {
		return nil, fmt.Errorf("%w: negative totals", ErrMalformedResponse)
	}

	records := make([]Artwork, 0, len(*resp.Data))
	for i, raw := range *resp.Data {
		var a Artwork
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedResponse, i, err)
		}
		records = append(records, a)
	}

	totalPages := resp.Pagination.TotalPages
	if totalPages == 0 && resp.Pagination.Limit > 0 {
		totalPages = (resp.Pagination.Total + resp.Pagination.Limit - 1) / resp.Pagination.Limit
	}

	return &Page{
		Number:     pageNum,
		Records:    records,
		TotalCount: resp.Pagination.Total,
		TotalPages: totalPages,
		Limit:      resp.Pagination.Limit,
	}, nil
}

// Encode builds an API response body for records. The mock server and the
// tests use it; the field layout is the one Decode expects.
func Encode(records []Artwork, page, limit, total int) ([]byte, error) {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	body := struct {
		Pagination Pagination `json:"pagination"`
		Data       []Artwork  `json:"data"`
	}{
		Pagination: Pagination{
			Total:       total,
			Limit:       limit,
			Offset:      (page - 1) * limit,
			TotalPages:  totalPages,
			CurrentPage: page,
		},
		Data: records,
	}
	if body.Data == nil {
		body.Data = []Artwork{}
	}
	return json.Marshal(body)
}

// Field renders a column of a for display, "N/A" when the value is empty.
func Field(a Artwork, name string) string {
	var v string
	switch name {
	case "id":
		v = strconv.Itoa(a.ID)
	case "title":
		v = a.Title
	case "place_of_origin":
		v = a.PlaceOfOrigin
	case "artist_display":
		v = a.ArtistDisplay
	case "inscriptions":
		v = a.Inscriptions
	case "date_start":
		if a.DateStart != nil {
			v = strconv.Itoa(*a.DateStart)
		}
	case "date_end":
		if a.DateEnd != nil {
			v = strconv.Itoa(*a.DateEnd)
		}
	}
	if v == "" {
		return "N/A"
	}
	return v
}
