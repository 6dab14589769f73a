package crawlkit

import "context"

// FetchResponse is the raw content returned by a Fetcher.
type FetchResponse struct {
	HTML          string
	StatusCode    int
	Headers       map[string]string
	RedirectedURL string
	Screenshot    []byte
	PDF           []byte
}

// Fetcher retrieves raw content for a URL.
// Implementations may use plain HTTP or browser automation.
type Fetcher interface {
	// Fetch retrieves the URL honouring the screenshot, PDF and user agent
	// settings of cfg. The context bounds a single attempt.
	Fetch(ctx context.Context, url string, cfg RunConfig) (*FetchResponse, error)

	// Close releases resources held by the fetcher.
	Close() error
}

// RobotsChecker reports whether robots.txt permits crawling a URL.
type RobotsChecker interface {
	CanFetch(ctx context.Context, url, userAgent string) (bool, error)
}
