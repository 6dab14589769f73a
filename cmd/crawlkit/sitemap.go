package main

import (
	"fmt"

	"github.com/fwojciec/crawlkit"
)

// Run discovers the site's URLs and crawls them as one batch.
func (c *SitemapCmd) Run(deps *Dependencies) error {
	filter, err := crawlkit.NewURLFilter(c.Include, c.Exclude, c.Limit)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", crawlkit.ErrorMessage(err))
		return err
	}

	discovered, err := deps.Sitemaps.DiscoverURLs(deps.Ctx, c.URL, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", crawlkit.ErrorMessage(err))
		return err
	}
	urls := filter.Batch(discovered)

	if c.Preview {
		for _, u := range urls {
			fmt.Fprintln(deps.Stdout, u)
		}
		return nil
	}

	if len(urls) == 0 {
		fmt.Fprintln(deps.Stderr, "No URLs found in sitemap.")
		return nil
	}
	deps.Logger.Info("dispatching sitemap batch", "site", c.URL, "discovered", len(discovered), "batch", len(urls))
	return crawlURLs(deps, urls, &c.RunFlags)
}
