package main

// Run executes the crawl command.
func (c *CrawlCmd) Run(deps *Dependencies) error {
	return crawlURLs(deps, c.URLs, &c.RunFlags)
}
