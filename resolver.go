/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"
)

const defaultSearchURL = "https://www.youtube.com/results?search_query="

// Matches the first 11-character watch identifier in a search results page.
var mediaIDPattern = regexp.MustCompile(`watch\?v=([A-Za-z0-9_-]{11})`)

// Resolver looks up playable media identifiers for free-text search
// queries. Successful lookups are cached per query; failures are not,
// so a transient outage doesn't poison the cache.
type Resolver struct {
	searchURL string
	client    *http.Client

	mu    sync.Mutex
	cache map[string]string
}

func newResolver(cfg *Config) *Resolver {
	return &Resolver{
		searchURL: defaultSearchURL,
		client: &http.Client{
			Timeout: cfg.resolverTimeout,
		},
		cache: make(map[string]string),
	}
}

// resolve returns the media identifier for a query, or an error if the
// lookup failed, timed out, or found nothing playable.
func (rs *Resolver) resolve(ctx context.Context, query string) (string, error) {
	rs.mu.Lock()
	if id, ok := rs.cache[query]; ok {
		rs.mu.Unlock()
		return id, nil
	}
	rs.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rs.searchURL+url.QueryEscape(query), nil)
	if err != nil {
		return "", err
	}

	resp, err := rs.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("media lookup for %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media lookup for %q: status %d", query, resp.StatusCode)
	}

	// Results pages are large; the first match is always near the top.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("media lookup for %q: %w", query, err)
	}

	match := mediaIDPattern.FindSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("media lookup for %q: no results", query)
	}
	id := string(match[1])

	rs.mu.Lock()
	rs.cache[query] = id
	rs.mu.Unlock()

	return id, nil
}

// resolveSong prefers a pre-attached media identifier over a lookup.
func (rs *Resolver) resolveSong(ctx context.Context, song *Song) (string, error) {
	if song.MediaID != "" {
		return song.MediaID, nil
	}

	ctx, cancel := context.WithTimeout(ctx, rs.client.Timeout+time.Second)
	defer cancel()

	return rs.resolve(ctx, song.searchString())
}
