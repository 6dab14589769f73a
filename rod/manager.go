// Package rod provides a browser-based crawlkit.Fetcher using headless
// Chrome through go-rod. It renders JavaScript and can capture screenshots
// and PDFs.
package rod

import (
	"fmt"
	"sync"

	"github.com/fwojciec/crawlkit"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// DefaultMaxPages is the default number of pages before browser recycling.
const DefaultMaxPages = 75

// BrowserManager hands out a shared browser and replaces it after a number
// of pages. Chrome's memory baseline grows under load even when pages are
// closed, so the browser is recycled periodically. A replaced browser stays
// alive until the pages leased from it are released.
//
// BrowserManager is safe for concurrent use.
type BrowserManager struct {
	maxPages int
	bin      string

	mu      sync.Mutex
	current *browserInstance
	closed  bool
}

type browserInstance struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	served   int
	active   int
	retired  bool
}

// ManagerOption configures a BrowserManager.
type ManagerOption func(*BrowserManager)

// WithMaxPages sets the maximum number of pages before the browser is recycled.
func WithMaxPages(n int) ManagerOption {
	return func(bm *BrowserManager) {
		bm.maxPages = n
	}
}

// WithBrowserBin sets the Chrome binary to launch instead of the one rod
// finds or downloads.
func WithBrowserBin(path string) ManagerOption {
	return func(bm *BrowserManager) {
		bm.bin = path
	}
}

// NewBrowserManager launches a headless Chrome browser.
// Close must be called when the BrowserManager is no longer needed.
func NewBrowserManager(opts ...ManagerOption) (*BrowserManager, error) {
	bm := &BrowserManager{maxPages: DefaultMaxPages}
	for _, opt := range opts {
		opt(bm)
	}

	inst, err := bm.launch()
	if err != nil {
		return nil, err
	}
	bm.current = inst
	return bm, nil
}

// Acquire leases the current browser for one page. The returned release
// function must be called once the page is closed. If the current browser
// has served its quota, a fresh one is launched first; should that fail the
// old browser keeps serving.
func (bm *BrowserManager) Acquire() (*rod.Browser, func(), error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return nil, nil, crawlkit.Errorf(crawlkit.EINVALID, "browser manager closed")
	}
	if bm.current.served >= bm.maxPages {
		if next, err := bm.launch(); err == nil {
			bm.retire(bm.current)
			bm.current = next
		}
	}

	inst := bm.current
	inst.served++
	inst.active++
	var once sync.Once
	release := func() {
		once.Do(func() { bm.release(inst) })
	}
	return inst.browser, release, nil
}

// Close shuts down the current browser. Close is safe to call multiple times.
func (bm *BrowserManager) Close() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return nil
	}
	bm.closed = true
	inst := bm.current
	inst.retired = true
	return inst.shutdown()
}

// LauncherPID returns the process ID of the current browser launcher, or 0
// once the manager is closed.
func (bm *BrowserManager) LauncherPID() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.closed || bm.current.launcher == nil {
		return 0
	}
	return bm.current.launcher.PID()
}

func (bm *BrowserManager) release(inst *browserInstance) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	inst.active--
	if inst.retired && inst.active == 0 && inst != bm.current {
		_ = inst.shutdown()
	}
}

// retire marks inst as replaced and shuts it down if nothing uses it.
// Must be called with mu held.
func (bm *BrowserManager) retire(inst *browserInstance) {
	inst.retired = true
	if inst.active == 0 {
		_ = inst.shutdown()
	}
}

// launch starts a browser with stability flags.
func (bm *BrowserManager) launch() (*browserInstance, error) {
	l := launcher.New().
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-dev-shm-usage").
		Set("disable-hang-monitor").
		Leakless(true).
		Headless(true)
	if bm.bin != "" {
		l = l.Bin(bm.bin)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	return &browserInstance{browser: browser, launcher: l}, nil
}

func (inst *browserInstance) shutdown() error {
	var err error
	if inst.browser != nil {
		err = inst.browser.Close()
		inst.browser = nil
	}
	if inst.launcher != nil {
		inst.launcher.Kill()
		inst.launcher = nil
	}
	return err
}
