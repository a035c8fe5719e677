package netcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Cache stores remote table files on disk and revalidates them with
// ETag/Last-Modified on every fetch.
type Cache struct {
	Dir     string
	Client  *http.Client
	Logger  *slog.Logger
	Retries int
	// Verbose reports each download at info level instead of debug.
	Verbose bool
	// Backoff is the delay before the first retry; it doubles each attempt.
	Backoff time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Cache rooted at dir.
func New(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		Dir:     dir,
		Client:  &http.Client{Timeout: 2 * time.Minute},
		Logger:  logger,
		Retries: 3,
		Verbose: verboseEnabled(),
		Backoff: time.Second,
	}
}

type entry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	DataFile     string    `json:"data_file"`
	Fetched      time.Time `json:"fetched"`
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: HTTP %d", e.URL, e.Code)
}

// Get returns a local path holding the body of url and whether the cached
// copy was reused. A stale copy is reused when revalidation fails.
func (c *Cache) Get(ctx context.Context, url string) (string, bool, error) {
	key := hash(url)
	unlock := c.lock(key)
	defer unlock()
	metaPath := filepath.Join(c.Dir, key+".json")
	log := c.logger().With("url", url)

	if e, ok := c.readEntry(metaPath, url); ok {
		cached := filepath.Join(c.Dir, e.DataFile)
		path, err := c.fetch(ctx, url, key, metaPath, &e)
		switch {
		case err == nil && path == "":
			log.Debug("cache hit", "path", cached)
			return cached, true, nil
		case err == nil:
			return path, false, nil
		case ctx.Err() != nil:
			return "", false, ctx.Err()
		}
		log.Warn("revalidation failed, using cached copy", "error", err)
		return cached, true, nil
	}

	var lastErr error
	for attempt := 0; attempt < max(c.Retries, 1); attempt++ {
		if attempt > 0 {
			delay := c.Backoff << (attempt - 1)
			log.Debug("retrying fetch", "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(delay):
			}
		}
		path, err := c.fetch(ctx, url, key, metaPath, nil)
		if err == nil {
			return path, false, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return "", false, lastErr
}

// fetch downloads url, conditionally when prev is set. It returns an empty
// path when the server reports the cached copy as current.
func (c *Cache) fetch(ctx context.Context, url, key, metaPath string, prev *entry) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if prev != nil {
		if prev.ETag != "" {
			req.Header.Set("If-None-Match", prev.ETag)
		}
		if prev.LastModified != "" {
			req.Header.Set("If-Modified-Since", prev.LastModified)
		}
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if prev != nil && resp.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{URL: url, Code: resp.StatusCode}
	}

	dataFile := key + ".data"
	path := filepath.Join(c.Dir, dataFile)
	n, err := writeAtomic(path, resp.Body)
	if err != nil {
		return "", err
	}
	level := slog.LevelDebug
	if c.Verbose {
		level = slog.LevelInfo
	}
	c.logger().Log(ctx, level, "downloaded table", "url", url, "bytes", n, "file", contentFilename(url, resp))
	e := entry{
		URL:          url,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Filename:     contentFilename(url, resp),
		DataFile:     dataFile,
		Fetched:      time.Now().UTC(),
	}
	if err := writeEntry(metaPath, e); err != nil {
		return "", err
	}
	return path, nil
}

// lock serialises fetches of one URL so concurrent callers never write the
// same cache files at once.
func (c *Cache) lock(key string) func() {
	c.mu.Lock()
	if c.locks == nil {
		c.locks = make(map[string]*sync.Mutex)
	}
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	c.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (c *Cache) readEntry(metaPath, url string) (entry, bool) {
	var e entry
	b, err := os.ReadFile(metaPath)
	if err != nil {
		return e, false
	}
	if err := json.Unmarshal(b, &e); err != nil || e.URL != url || e.DataFile == "" {
		return e, false
	}
	return e, fileExists(filepath.Join(c.Dir, e.DataFile))
}

func (c *Cache) client() *http.Client {
	if c.Client == nil {
		return http.DefaultClient
	}
	return c.Client
}

func (c *Cache) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

func writeAtomic(dst string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	tmp := dst + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return n, os.Rename(tmp, dst)
}

func writeEntry(path string, e entry) error {
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

// contentFilename derives a name for the payload from Content-Disposition
// or the last URL path segment.
func contentFilename(url string, resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if i := strings.Index(cd, "filename="); i >= 0 {
			if v := strings.Trim(cd[i+len("filename="):], `"'`); v != "" {
				return v
			}
		}
	}
	url, _, _ = strings.Cut(url, "?")
	if slash := strings.LastIndex(url, "/"); slash >= 0 && slash+1 < len(url) {
		return url[slash+1:]
	}
	return "download"
}

// verboseEnabled reports whether POPVARS_VERBOSE is set to a true value.
func verboseEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("POPVARS_VERBOSE"))) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
