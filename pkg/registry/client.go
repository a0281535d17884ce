// Package registry provides the npm registry HTTP client.
//
// The client fetches package version lists for the resolver's first-tier
// lookup. Responses are cached (file-backed by default), network failures
// and 5xx responses are retried with exponential backoff, and scoped
// packages can be routed to per-scope registry URLs.
//
// A nil *Client is legal everywhere it is accepted; the resolver treats it
// as "no registry" and falls back to workspace-declared versions.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/sublimetools/sublime/pkg/errors"
	"github.com/sublimetools/sublime/pkg/httputil"
	"github.com/sublimetools/sublime/pkg/observability"
)

const (
	// DefaultURL is the public npm registry.
	DefaultURL = "https://registry.npmjs.org"

	httpTimeout = 10 * time.Second
)

// Options configures a registry client.
type Options struct {
	// URL is the default registry. Empty means DefaultURL.
	URL string
	// Scoped maps package scopes ("@acme") to registry URLs.
	Scoped map[string]string
	// Cache backs response caching. Nil disables caching.
	Cache *httputil.ResponseCache
	// Headers are applied to every request (e.g. auth tokens).
	Headers map[string]string
	// Hooks receives cache hit/miss events. Nil disables them.
	Hooks *observability.Registry
}

// Client queries npm-compatible registries.
type Client struct {
	http    *http.Client
	baseURL string
	scoped  map[string]string
	cache   *httputil.ResponseCache
	headers map[string]string
	hooks   *observability.Registry
}

// NewClient creates a registry client.
func NewClient(opts Options) *Client {
	url := opts.URL
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		http:    &http.Client{Timeout: httpTimeout},
		baseURL: strings.TrimSuffix(url, "/"),
		scoped:  opts.Scoped,
		cache:   opts.Cache,
		headers: opts.Headers,
		hooks:   opts.Hooks,
	}
}

// Versions returns all published versions of a package, ascending.
// Unparsable version strings in the registry response are skipped.
func (c *Client) Versions(ctx context.Context, name string, refresh bool) ([]*semver.Version, error) {
	if err := errors.ValidateNpmPackageName(name); err != nil {
		return nil, err
	}
	var raw []string
	if err := c.cached(ctx, "versions:"+name, refresh, &raw, func() error {
		return c.fetchVersions(ctx, name, &raw)
	}); err != nil {
		return nil, err
	}

	versions := make([]*semver.Version, 0, len(raw))
	for _, s := range raw {
		v, err := semver.NewVersion(s)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Sort(semver.Collection(versions))
	return versions, nil
}

// cached serves v from the response cache or runs fetch under the standard
// retry policy and stores the result.
func (c *Client) cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	if c.cache != nil && !refresh {
		if ok, _ := c.cache.Get(ctx, key, v); ok {
			c.hooks.Cache().OnCacheHit(ctx, key)
			return nil
		}
	}
	c.hooks.Cache().OnCacheMiss(ctx, key)
	if err := httputil.RetryWithBackoff(ctx, fetch); err != nil {
		return err
	}
	if c.cache != nil {
		_ = c.cache.Set(ctx, key, v)
	}
	return nil
}

func (c *Client) fetchVersions(ctx context.Context, name string, out *[]string) error {
	var data packumentResponse
	if err := c.getJSON(ctx, c.packageURL(name), &data); err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) {
			return errors.Wrap(errors.ErrCodeNotFound, err, "npm package %s", name)
		}
		return err
	}
	*out = (*out)[:0]
	for v := range data.Versions {
		*out = append(*out, v)
	}
	sort.Strings(*out)
	return nil
}

// packageURL picks the registry for the package's scope and escapes the
// name ("@scope/pkg" -> "@scope%2Fpkg") per the npm registry convention.
func (c *Client) packageURL(name string) string {
	base := c.baseURL
	if strings.HasPrefix(name, "@") {
		scope, _, _ := strings.Cut(name, "/")
		if url, ok := c.scoped[scope]; ok {
			base = strings.TrimSuffix(url, "/")
		}
	}
	return base + "/" + strings.Replace(name, "/", "%2F", 1)
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, val := range c.headers {
		req.Header.Set(k, val)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "GET %s", url)}
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "resource not found")
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 0
		fmt.Sscanf(resp.Header.Get("Retry-After"), "%d", &retryAfter)
		return &httputil.RetryableError{Err: &errors.RateLimitedError{RetryAfter: retryAfter}}
	case resp.StatusCode >= 500:
		return &httputil.RetryableError{
			Err: errors.New(errors.ErrCodeNetwork, "registry returned status %d", resp.StatusCode),
		}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.New(errors.ErrCodeNetwork, "registry returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// packumentResponse is the subset of the npm packument we consume.
type packumentResponse struct {
	Name     string                     `json:"name"`
	Versions map[string]json.RawMessage `json:"versions"`
}
