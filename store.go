package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
)

// listPageSize is the internal page size for ListPapers. The REST service
// caps responses anyway, so listing pages explicitly keeps the ordered
// sequence consistent.
const listPageSize = 1000

// Store is the adapter over the hosted Postgres REST surface
// (/rest/v1/<table>). Every call is one independent HTTP request carrying
// bearer credentials.
type Store struct {
	baseURL string
	key     string
	table   string
	client  *http.Client
}

func NewStore(cfg Config) *Store {
	return &Store{
		baseURL: strings.TrimRight(cfg.StoreURL, "/"),
		key:     cfg.StoreKey,
		table:   cfg.StoreTable,
		client:  storeHTTPClient,
	}
}

func (s *Store) authHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	req.Header.Set("Content-Type", "application/json")
}

// ListRange fetches rows [from, to] of the ordered result, restricted to
// selectCols. Returns at most to-from+1 rows.
func (s *Store) ListRange(ctx context.Context, selectCols, orderBy string, from, to int) ([]Paper, error) {
	if to < from {
		return nil, fmt.Errorf("invalid range [%d, %d]", from, to)
	}
	apiURL := fmt.Sprintf("%s/rest/v1/%s?select=%s&order=%s&limit=%d&offset=%d",
		s.baseURL, s.table, url.QueryEscape(selectCols), url.QueryEscape(orderBy), to-from+1, from)

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	s.authHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errKind(ErrKindIO, "listing %s: %v", s.table, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errKind(ErrKindIO, "reading list response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errKind(ErrKindIO, "store returned %d: %s", resp.StatusCode, truncateForLog(string(body), 512))
	}

	var papers []Paper
	if err := json.Unmarshal(body, &papers); err != nil {
		return nil, errKind(ErrKindIO, "parsing list response: %v", err)
	}
	return papers, nil
}

// ListPapers returns the whole table as one ordered sequence, paging
// internally.
func (s *Store) ListPapers(ctx context.Context, selectCols, orderBy string) ([]Paper, error) {
	var all []Paper
	for from := 0; ; from += listPageSize {
		page, err := s.ListRange(ctx, selectCols, orderBy, from, from+listPageSize-1)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < listPageSize {
			break
		}
	}
	log.Printf("store list table=%s rows=%d", s.table, len(all))
	return all, nil
}

// PatchPaper writes only the keys present in partial to one row and returns
// the server's echo of the updated row. PATCH of the same partial twice is a
// no-op on the second write, so retried repairs are safe.
func (s *Store) PatchPaper(ctx context.Context, id int64, partial map[string]any) (*Paper, error) {
	if len(partial) == 0 {
		return nil, fmt.Errorf("empty patch for id=%d", id)
	}
	bodyBytes, err := json.Marshal(partial)
	if err != nil {
		return nil, fmt.Errorf("marshaling patch: %w", err)
	}

	apiURL := fmt.Sprintf("%s/rest/v1/%s?id=eq.%d", s.baseURL, s.table, id)
	req, err := http.NewRequestWithContext(ctx, "PATCH", apiURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	s.authHeaders(req)
	req.Header.Set("Prefer", "return=representation")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errKind(ErrKindIO, "patching id=%d: %v", id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errKind(ErrKindIO, "reading patch response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errKind(ErrKindIO, "store returned %d for id=%d: %s", resp.StatusCode, id, truncateForLog(string(body), 512))
	}

	// With Prefer: return=representation the service echoes the updated rows.
	var rows []Paper
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
