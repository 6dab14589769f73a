package rod

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/fwojciec/crawlkit"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Ensure Fetcher implements crawlkit.Fetcher at compile time.
var _ crawlkit.Fetcher = (*Fetcher)(nil)

// serializeJS returns the document with open shadow roots inlined, or null
// when the browser lacks Element.getHTML.
const serializeJS = `() => {
	const root = document.documentElement;
	if (typeof root.getHTML !== 'function') return null;
	const shadowRoots = [];
	const walk = (node) => {
		for (const el of node.querySelectorAll('*')) {
			if (el.shadowRoot) {
				shadowRoots.push(el.shadowRoot);
				walk(el.shadowRoot);
			}
		}
	};
	walk(document);
	return '<html>' + root.getHTML({serializableShadowRoots: true, shadowRoots}) + '</html>';
}`

// Fetcher retrieves rendered HTML from URLs using Chrome browser automation.
// It reports the document's status code and final URL and captures a
// full-page PNG screenshot or a PDF when the run config asks for them.
//
// Fetcher is safe for concurrent use by multiple goroutines.
type Fetcher struct {
	manager *BrowserManager
}

// NewFetcher creates a Fetcher backed by its own BrowserManager.
// Close must be called when the Fetcher is no longer needed.
//
// Returns an error if Chrome/Chromium cannot be found or launched.
func NewFetcher(opts ...ManagerOption) (*Fetcher, error) {
	m, err := NewBrowserManager(opts...)
	if err != nil {
		return nil, err
	}
	return &Fetcher{manager: m}, nil
}

// Fetch navigates to the URL, waits for the load event and returns the
// rendered document.
func (f *Fetcher) Fetch(ctx context.Context, url string, cfg crawlkit.RunConfig) (*crawlkit.FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browser, release, err := f.manager.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	pageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer page.Close()
	page = page.Context(pageCtx)

	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			return nil, fmt.Errorf("setting user agent: %w", err)
		}
	}

	docs := make(chan *proto.NetworkResponse, 1)
	wait := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		docs <- e.Response
		return true
	})
	go wait()

	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", url, err)
	}

	html, err := renderedHTML(page)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	resp := &crawlkit.FetchResponse{HTML: html, StatusCode: http.StatusOK}

	select {
	case doc := <-docs:
		resp.StatusCode = doc.Status
		resp.Headers = make(map[string]string, len(doc.Headers))
		for k, v := range doc.Headers {
			resp.Headers[k] = v.String()
		}
		if doc.URL != url {
			resp.RedirectedURL = doc.URL
		}
	default:
	}

	if cfg.Screenshot {
		resp.Screenshot, err = page.Screenshot(true, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		if err != nil {
			return nil, fmt.Errorf("capturing screenshot: %w", err)
		}
	}
	if cfg.PDF {
		resp.PDF, err = printPDF(page)
		if err != nil {
			return nil, fmt.Errorf("printing pdf: %w", err)
		}
	}
	return resp, nil
}

// Close releases browser resources. Close is safe to call multiple times.
func (f *Fetcher) Close() error {
	return f.manager.Close()
}

// LauncherPID returns the browser launcher's process ID.
func (f *Fetcher) LauncherPID() int {
	return f.manager.LauncherPID()
}

func renderedHTML(page *rod.Page) (string, error) {
	obj, err := page.Eval(serializeJS)
	if err == nil && !obj.Value.Nil() {
		return obj.Value.Str(), nil
	}
	return page.HTML()
}

func printPDF(page *rod.Page) ([]byte, error) {
	r, err := page.PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
