package index

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"openblock/internal/httpx"
	"openblock/internal/logx"
)

// ServiceSource is the source name recorded for companion-service fetches.
const ServiceSource = "service"

// DefaultRegistryTimeout bounds a direct registry fetch.
const DefaultRegistryTimeout = 30 * time.Second

// Service is the subset of the companion service the index client needs.
type Service interface {
	PackagesIndex(ctx context.Context) (*PackagesIndex, error)
}

// Options controls a single Get call.
type Options struct {
	// RegistryURL, when set, skips the companion service and fetches this
	// document directly.
	RegistryURL  string
	ForceRefresh bool
}

// Client obtains the packages index from the companion service or the
// network registry. Failures degrade to an empty index.
type Client struct {
	Service Service
	HTTP    *http.Client
	Cache   *Cache
	Logger  hclog.Logger
}

// NewClient wires a client with a 30s registry timeout and a fresh cache.
func NewClient(service Service, cache *Cache, logger hclog.Logger) *Client {
	if cache == nil {
		cache = NewCache(DefaultTTL)
	}
	return &Client{
		Service: service,
		HTTP:    &http.Client{Timeout: DefaultRegistryTimeout},
		Cache:   cache,
		Logger:  logx.OrNull(logger).Named("index"),
	}
}

// Get returns the current packages index. It never fails: when neither the
// companion service nor the registry answers, an empty index is returned and
// callers treat missing toolchains as per-item errors.
func (c *Client) Get(ctx context.Context, opts Options) *PackagesIndex {
	logger := logx.OrNull(c.Logger)
	source := ServiceSource
	if opts.RegistryURL != "" {
		source = opts.RegistryURL
	}

	if !opts.ForceRefresh {
		if idx, ok := c.Cache.Get(source); ok {
			logger.Debug("packages index cache hit", "source", source)
			return idx
		}
	}

	var idx *PackagesIndex
	if opts.RegistryURL == "" {
		idx = c.fromService(ctx)
	}
	if idx == nil && opts.RegistryURL != "" {
		fetched, err := c.FetchRegistry(ctx, opts.RegistryURL)
		if err != nil {
			logger.Warn("registry fetch failed", "url", opts.RegistryURL, "error", err)
		} else {
			idx = fetched
		}
	}

	if idx == nil {
		logger.Warn("no packages index available; continuing with an empty index")
		return Empty()
	}

	for _, err := range idx.Skipped {
		logger.Warn("skipped malformed package entry", "source", source, "error", err)
	}
	idx.normalize()
	c.Cache.Put(source, idx)
	logger.Debug("packages index fetched", "source", source,
		"toolchains", len(idx.Toolchains), "libraries", len(idx.Libraries))
	return idx
}

// ClearCache forgets the cached index.
func (c *Client) ClearCache() {
	c.Cache.Clear()
}

func (c *Client) fromService(ctx context.Context) *PackagesIndex {
	if c.Service == nil {
		return nil
	}
	idx, err := c.Service.PackagesIndex(ctx)
	if err != nil {
		logx.OrNull(c.Logger).Debug("companion packages index unavailable", "error", err)
		return nil
	}
	return idx
}

// FetchRegistry downloads a registry document and unwraps its packages field.
func (c *Client) FetchRegistry(ctx context.Context, registryURL string) (*PackagesIndex, error) {
	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: DefaultRegistryTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, registryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", httpx.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch registry %s: %w", registryURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch registry %s: unexpected status %s: %s",
			registryURL, resp.Status, httpx.ErrorBody(resp.Body))
	}

	var doc struct {
		Packages *PackagesIndex `json:"packages"`
	}
	if err := httpx.DecodeResponse(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("registry %s: %w", registryURL, err)
	}
	if doc.Packages == nil {
		return nil, fmt.Errorf("registry %s: document has no packages field", registryURL)
	}
	return doc.Packages, nil
}
