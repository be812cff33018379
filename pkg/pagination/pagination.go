// Package pagination reads limit/offset query parameters and wraps list
// responses.
package pagination

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the echo context. Invalid
// values fall back to the defaults.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Response wraps a paginated API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Links   []Link      `json:"links,omitempty"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// WithLinks attaches self/next/previous links built from the request URL.
func (r *Response) WithLinks(u *url.URL) *Response {
	p := Params{Limit: r.Limit, Offset: r.Offset}
	r.Links = p.Links(u, r.Total)
	return r
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// Links builds page links for u. Filter parameters already on u are kept;
// limit and offset are replaced.
func (p Params) Links(u *url.URL, total int) []Link {
	links := []Link{{Relation: "self", URL: p.pageURL(u, p.Offset)}}
	if p.HasNext(total) {
		links = append(links, Link{Relation: "next", URL: p.pageURL(u, p.NextOffset())})
	}
	if p.HasPrevious() {
		links = append(links, Link{Relation: "previous", URL: p.pageURL(u, p.PreviousOffset())})
	}
	return links
}

func (p Params) pageURL(u *url.URL, offset int) string {
	q := u.Query()
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(offset))
	return fmt.Sprintf("%s?%s", u.Path, q.Encode())
}

// Link is one pagination link.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}
