package crawlkit

import (
	"context"
	"maps"
	"slices"
	"time"
)

// CrawlResult is the outcome of crawling one URL. It is produced exactly
// once per CrawlRequest and is not modified after it is returned.
type CrawlResult struct {
	URL           string `json:"url"`
	RedirectedURL string `json:"redirectedUrl,omitempty"`
	StatusCode    int    `json:"statusCode"`
	Success       bool   `json:"success"`
	ErrorCode     string `json:"errorCode,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`

	HTML             string `json:"html,omitempty"`
	CleanedHTML      string `json:"cleanedHtml,omitempty"`
	Markdown         string `json:"markdown,omitempty"`
	FitMarkdown      string `json:"fitMarkdown,omitempty"`
	FitHTML          string `json:"fitHtml,omitempty"`
	ExtractedContent string `json:"extractedContent,omitempty"`

	Links    Links             `json:"links"`
	Media    Media             `json:"media"`
	Metadata map[string]string `json:"metadata,omitempty"`

	Screenshot []byte `json:"screenshot,omitempty"`
	PDF        []byte `json:"pdf,omitempty"`

	LoadTime        time.Duration     `json:"loadTime"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`

	// CacheHit is set when the result was served from the cache.
	CacheHit bool `json:"cacheHit"`
}

// LoadTimeSeconds returns the load time in seconds.
func (r *CrawlResult) LoadTimeSeconds() float64 {
	return r.LoadTime.Seconds()
}

// Clone returns a deep copy of the result. Nil slices and maps stay nil.
func (r *CrawlResult) Clone() *CrawlResult {
	c := *r
	c.Links = Links{
		Internal: slices.Clone(r.Links.Internal),
		External: slices.Clone(r.Links.External),
	}
	c.Media = Media{
		Images: slices.Clone(r.Media.Images),
		Videos: slices.Clone(r.Media.Videos),
		Audios: slices.Clone(r.Media.Audios),
	}
	c.Metadata = maps.Clone(r.Metadata)
	c.ResponseHeaders = maps.Clone(r.ResponseHeaders)
	c.Screenshot = slices.Clone(r.Screenshot)
	c.PDF = slices.Clone(r.PDF)
	return &c
}

// Link is a hyperlink found on a page.
type Link struct {
	Href  string `json:"href"`
	Text  string `json:"text,omitempty"`
	Title string `json:"title,omitempty"`
}

// Links partitions a page's links by whether they stay on the page's domain.
type Links struct {
	Internal []Link `json:"internal"`
	External []Link `json:"external"`
}

// MediaItem is a media reference found on a page.
type MediaItem struct {
	Src  string `json:"src"`
	Alt  string `json:"alt,omitempty"`
	Type string `json:"type"`
}

// Media groups a page's media references by kind.
type Media struct {
	Images []MediaItem `json:"images"`
	Videos []MediaItem `json:"videos"`
	Audios []MediaItem `json:"audios"`
}

// ResultWriter persists successful crawl results outside the cache.
type ResultWriter interface {
	// WriteResult stores r and returns where it was written.
	WriteResult(ctx context.Context, r *CrawlResult) (string, error)
}
