// Package komga talks to a Komga server and to Komf, the metadata fetcher
// that plugs into it. Komga series are tied to local series by their URL,
// which Komga sets to the directory path it scanned.
package komga

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Author is a credited person with a role such as "writer" or "penciller".
type Author struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// SeriesMetadata is the metadata Komga keeps for a series.
type SeriesMetadata struct {
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	Publisher      string   `json:"publisher"`
	AgeRating      *int     `json:"ageRating"`
	Language       string   `json:"language"`
	Genres         []string `json:"genres"`
	Tags           []string `json:"tags"`
	TotalBookCount *uint32  `json:"totalBookCount"`
}

// Series is a Komga series.
type Series struct {
	ID         string         `json:"id"`
	LibraryID  string         `json:"libraryId"`
	Name       string         `json:"name"`
	URL        string         `json:"url"`
	BooksCount int            `json:"booksCount"`
	Oneshot    bool           `json:"oneshot"`
	Metadata   SeriesMetadata `json:"metadata"`
}

// BookMetadata is the metadata Komga keeps for a book.
type BookMetadata struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	NumberSort float64  `json:"numberSort"`
	Authors    []Author `json:"authors"`
	Tags       []string `json:"tags"`
}

// Book is a Komga book, one chapter archive.
type Book struct {
	ID          string       `json:"id"`
	SeriesID    string       `json:"seriesId"`
	SeriesTitle string       `json:"seriesTitle"`
	LibraryID   string       `json:"libraryId"`
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	Number      int          `json:"number"`
	Oneshot     bool         `json:"oneshot"`
	Metadata    BookMetadata `json:"metadata"`
}

// Author returns the name of the first author credited with role.
func (m BookMetadata) Author(role string) string {
	for _, a := range m.Authors {
		if strings.EqualFold(a.Role, role) {
			return a.Name
		}
	}
	return ""
}

type page[T any] struct {
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Content       []T   `json:"content"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Client calls the Komga REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient returns a Komga client for baseURL authenticating with apiKey.
// A nil httpClient uses a client with a 30s timeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// String returns the server URL.
func (c *Client) String() string { return c.baseURL }

// ListSeries returns every series on the server.
func (c *Client) ListSeries(ctx context.Context) ([]Series, error) {
	var p page[Series]
	if err := c.post(ctx, "api/v1/series/list?unpaged=true", struct{}{}, &p); err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	return p.Content, nil
}

// ListBooks returns the books of a series.
func (c *Client) ListBooks(ctx context.Context, seriesID string) ([]Book, error) {
	body := map[string]any{
		"condition": map[string]any{
			"allOf": []any{
				map[string]any{"seriesId": map[string]string{"operator": "is", "value": seriesID}},
			},
		},
	}
	var p page[Book]
	if err := c.post(ctx, "api/v1/books/list?unpaged=true", body, &p); err != nil {
		return nil, fmt.Errorf("list books of series %s: %w", seriesID, err)
	}
	return p.Content, nil
}

// AnalyzeSeries asks Komga to re-read the archives of a series.
func (c *Client) AnalyzeSeries(ctx context.Context, seriesID string) error {
	if err := c.post(ctx, "api/v1/series/"+url.PathEscape(seriesID)+"/analyze", struct{}{}, nil); err != nil {
		return fmt.Errorf("analyze series %s: %w", seriesID, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	header := http.Header{}
	header.Set("X-API-Key", c.apiKey)
	return doJSON(ctx, c.http, c.baseURL+"/"+path, header, in, out)
}

// Komf calls the Komf metadata fetcher.
type Komf struct {
	baseURL string
	http    *http.Client
}

// NewKomf returns a Komf client for baseURL. A nil httpClient uses a client
// with a 2 minute timeout; identification queries upstream providers.
func NewKomf(baseURL string, httpClient *http.Client) *Komf {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Komf{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// String returns the server URL.
func (k *Komf) String() string { return k.baseURL }

// Identify asks Komf to match a Komga series against its metadata
// providers and write the result into Komga.
func (k *Komf) Identify(ctx context.Context, libraryID, seriesID string) error {
	u := fmt.Sprintf("%s/komga/match/library/%s/series/%s", k.baseURL, url.PathEscape(libraryID), url.PathEscape(seriesID))
	if err := doJSON(ctx, k.http, u, nil, struct{}{}, nil); err != nil {
		return fmt.Errorf("identify series %s: %w", seriesID, err)
	}
	return nil
}

// doJSON POSTs in as JSON to u and decodes the response into out when out
// is non-nil.
func doJSON(ctx context.Context, hc *http.Client, u string, header http.Header, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{
			Method:     req.Method,
			URL:        u,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
