package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/fwojciec/crawlkit"
	"github.com/temoto/robotstxt"
	"resty.dev/v3"
)

// maxRobotsSize limits how much of a robots.txt file is read.
const maxRobotsSize = 1 << 20

// Ensure RobotsChecker implements crawlkit.RobotsChecker.
var _ crawlkit.RobotsChecker = (*RobotsChecker)(nil)

// RobotsChecker answers robots.txt questions, fetching each host's file
// once and caching the parsed rules.
//
// A robots.txt answered with 4xx allows everything and one answered with
// 5xx disallows everything. If the file cannot be fetched at all the crawl
// is allowed and the host is retried on the next call.
type RobotsChecker struct {
	client *resty.Client

	mu    sync.Mutex
	rules map[string]*robotstxt.RobotsData
}

// NewRobotsChecker creates a RobotsChecker using the given HTTP client.
// If client is nil, http.DefaultClient is used.
func NewRobotsChecker(client *http.Client) *RobotsChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &RobotsChecker{
		client: resty.NewWithClient(client).SetResponseBodyLimit(maxRobotsSize),
		rules:  make(map[string]*robotstxt.RobotsData),
	}
}

// CanFetch reports whether userAgent may crawl rawURL.
func (c *RobotsChecker) CanFetch(ctx context.Context, rawURL, userAgent string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false, crawlkit.Errorf(crawlkit.EINVALID, "invalid url %q", rawURL)
	}

	data, err := c.load(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, userAgent), nil
}

// Forget drops the cached rules for every host.
func (c *RobotsChecker) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.rules)
}

func (c *RobotsChecker) load(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(u.Host)

	c.mu.Lock()
	data, ok := c.rules[host]
	c.mu.Unlock()
	if ok {
		return data, nil
	}

	robotsURL := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	resp, err := c.client.R().WithContext(ctx).Get(robotsURL.String())
	if err != nil {
		return nil, err
	}
	data, err = robotstxt.FromStatusAndBytes(resp.StatusCode(), resp.Bytes())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.rules[host] = data
	c.mu.Unlock()
	return data, nil
}
