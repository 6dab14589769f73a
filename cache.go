package crawlkit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CacheMode governs whether cache reads and writes are permitted for a request.
type CacheMode string

// Cache modes. The zero value behaves as CacheEnabled.
const (
	CacheEnabled   CacheMode = "enabled"
	CacheDisabled  CacheMode = "disabled"
	CacheReadOnly  CacheMode = "read_only"
	CacheWriteOnly CacheMode = "write_only"
	CacheBypass    CacheMode = "bypass"
)

// ParseCacheMode converts a textual cache mode into a CacheMode.
func ParseCacheMode(s string) (CacheMode, error) {
	switch m := CacheMode(s); m {
	case "":
		return CacheEnabled, nil
	case CacheEnabled, CacheDisabled, CacheReadOnly, CacheWriteOnly, CacheBypass:
		return m, nil
	}
	return "", Errorf(EINVALID, "unknown cache mode %q", s)
}

// String returns the canonical name of the mode.
func (m CacheMode) String() string {
	if m == "" {
		return string(CacheEnabled)
	}
	return string(m)
}

// UnmarshalText implements encoding.TextUnmarshaler so cache modes can be
// read from configuration files and environment variables.
func (m *CacheMode) UnmarshalText(text []byte) error {
	mode, err := ParseCacheMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// LegacyCacheFlags holds the boolean cache switches older callers use.
// They are collapsed into a single CacheMode at the boundary and never
// travel further.
type LegacyCacheFlags struct {
	Bypass  bool
	Disable bool
	NoRead  bool
	NoWrite bool
}

// Resolve returns the CacheMode equivalent to the flags. When no flag is
// set the fallback mode is returned unchanged.
func (f LegacyCacheFlags) Resolve(fallback CacheMode) CacheMode {
	switch {
	case f.Disable:
		return CacheDisabled
	case f.Bypass:
		return CacheBypass
	case f.NoRead && f.NoWrite:
		return CacheDisabled
	case f.NoRead:
		return CacheWriteOnly
	case f.NoWrite:
		return CacheReadOnly
	}
	return fallback
}

// CacheContext decides whether cache reads and writes apply to one request.
type CacheContext struct {
	Mode CacheMode

	// Bypass is the explicit per-call override that skips cache reads.
	Bypass bool
}

// ShouldRead reports whether a cached entry may satisfy the request.
func (c CacheContext) ShouldRead() bool {
	if c.Bypass {
		return false
	}
	switch c.Mode {
	case CacheDisabled, CacheWriteOnly, CacheBypass:
		return false
	}
	return true
}

// ShouldWrite reports whether a fresh result may be written to the cache.
func (c CacheContext) ShouldWrite() bool {
	switch c.Mode {
	case CacheDisabled, CacheReadOnly:
		return false
	}
	return true
}

// CacheEntry is the persisted form of a successful crawl. Entries are never
// patched: writing a key again replaces the previous entry.
type CacheEntry struct {
	Key              string            `json:"key"`
	URL              string            `json:"url"`
	RedirectedURL    string            `json:"redirectedUrl,omitempty"`
	StatusCode       int               `json:"statusCode"`
	HTML             string            `json:"html"`
	CleanedHTML      string            `json:"cleanedHtml,omitempty"`
	Markdown         string            `json:"markdown,omitempty"`
	FitMarkdown      string            `json:"fitMarkdown,omitempty"`
	FitHTML          string            `json:"fitHtml,omitempty"`
	ExtractedContent string            `json:"extractedContent,omitempty"`
	Links            Links             `json:"links"`
	Media            Media             `json:"media"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	ResponseHeaders  map[string]string `json:"responseHeaders,omitempty"`
	Screenshot       []byte            `json:"screenshot,omitempty"`
	PDF              []byte            `json:"pdf,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// NewCacheEntry builds the entry stored for a successful result.
func NewCacheEntry(key string, r *CrawlResult, createdAt time.Time) *CacheEntry {
	return &CacheEntry{
		Key:              key,
		URL:              r.URL,
		RedirectedURL:    r.RedirectedURL,
		StatusCode:       r.StatusCode,
		HTML:             r.HTML,
		CleanedHTML:      r.CleanedHTML,
		Markdown:         r.Markdown,
		FitMarkdown:      r.FitMarkdown,
		FitHTML:          r.FitHTML,
		ExtractedContent: r.ExtractedContent,
		Links:            r.Links,
		Media:            r.Media,
		Metadata:         r.Metadata,
		ResponseHeaders:  r.ResponseHeaders,
		Screenshot:       r.Screenshot,
		PDF:              r.PDF,
		CreatedAt:        createdAt,
	}
}

// Satisfies reports whether the entry is artifact-complete for cfg, i.e. it
// holds every artifact the configuration requires.
func (e *CacheEntry) Satisfies(cfg RunConfig) bool {
	if cfg.Screenshot && len(e.Screenshot) == 0 {
		return false
	}
	if cfg.PDF && len(e.PDF) == 0 {
		return false
	}
	return true
}

// Expired reports whether the entry is older than ttl at now. A
// non-positive ttl never expires.
func (e *CacheEntry) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(e.CreatedAt) >= ttl
}

// Result rebuilds a successful CrawlResult from the entry. A missing
// redirected URL defaults to the requested URL.
func (e *CacheEntry) Result(url string) *CrawlResult {
	redirected := e.RedirectedURL
	if redirected == "" {
		redirected = url
	}
	return &CrawlResult{
		URL:              url,
		RedirectedURL:    redirected,
		StatusCode:       e.StatusCode,
		Success:          true,
		HTML:             e.HTML,
		CleanedHTML:      e.CleanedHTML,
		Markdown:         e.Markdown,
		FitMarkdown:      e.FitMarkdown,
		FitHTML:          e.FitHTML,
		ExtractedContent: e.ExtractedContent,
		Links:            e.Links,
		Media:            e.Media,
		Metadata:         e.Metadata,
		ResponseHeaders:  e.ResponseHeaders,
		Screenshot:       e.Screenshot,
		PDF:              e.PDF,
		CacheHit:         true,
	}
}

// MarshalCacheEntry serializes an entry into the shape every store persists.
func MarshalCacheEntry(e *CacheEntry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry %q: %w", e.Key, err)
	}
	return data, nil
}

// UnmarshalCacheEntry restores an entry serialized by MarshalCacheEntry.
func UnmarshalCacheEntry(data []byte) (*CacheEntry, error) {
	var e CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return &e, nil
}

// CacheStore persists cache entries by key. Implementations must be safe
// for concurrent use and must not corrupt an entry under concurrent writes
// to the same key.
type CacheStore interface {
	// Get returns the entry stored under key, or nil when the key is absent
	// or its entry has expired. A missing key is not an error.
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Set stores entry under key, replacing any previous entry.
	Set(ctx context.Context, key string, entry *CacheEntry) error

	// Delete removes the entry stored under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)
}
