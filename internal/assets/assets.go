// Package assets fetches raw model bytes from disk or over HTTP and caches them.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when a source does not exist.
var ErrNotFound = errors.New("asset not found")

// maxAssetSize caps a single download.
const maxAssetSize = 256 << 20

// Manager resolves source paths and fetches their contents.
type Manager struct {
	baseDir string
	client  *http.Client
	cache   *Cache
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient overrides the client used for http(s) sources.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// NewManager creates an asset manager. Relative file paths are resolved
// against baseDir.
func NewManager(baseDir string, opts ...Option) *Manager {
	m := &Manager{
		baseDir: baseDir,
		client:  http.DefaultClient,
		cache:   NewCache(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsRemote reports whether path is fetched over HTTP.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// Resolve returns the location path is actually read from.
func (m *Manager) Resolve(path string) string {
	if IsRemote(path) || filepath.IsAbs(path) || m.baseDir == "" {
		return path
	}
	return filepath.Join(m.baseDir, filepath.FromSlash(path))
}

// Load returns the contents of path.
func (m *Manager) Load(ctx context.Context, path string) ([]byte, error) {
	if data, ok := m.cache.Get(path); ok {
		return data, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		data []byte
		err  error
	)
	if IsRemote(path) {
		data, err = m.fetch(ctx, path)
	} else {
		data, err = m.readFile(m.Resolve(path))
	}
	if err != nil {
		return nil, err
	}

	m.cache.Set(path, data)
	return data, nil
}

func (m *Manager) readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func (m *Manager) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", url, err)
	}
	if len(data) > maxAssetSize {
		return nil, fmt.Errorf("fetching %s: asset larger than %d bytes", url, maxAssetSize)
	}
	return data, nil
}

// CacheStats returns cache hit and miss counts.
func (m *Manager) CacheStats() (hits, misses int) {
	return m.cache.Stats()
}

// Close drops all cached data.
func (m *Manager) Close() {
	m.cache.Clear()
}

// Cache is a simple in-memory cache for loaded assets.
type Cache struct {
	data map[string][]byte
	mu   sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
