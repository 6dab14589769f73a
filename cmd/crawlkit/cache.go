package main

import (
	"fmt"

	"github.com/fwojciec/crawlkit"
)

// Run executes the cache size command.
func (c *CacheSizeCmd) Run(deps *Dependencies) error {
	if deps.Cache == nil {
		fmt.Fprintln(deps.Stdout, "Cache is disabled.")
		return nil
	}
	n, err := deps.Cache.Len(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", crawlkit.ErrorMessage(err))
		return err
	}
	fmt.Fprintf(deps.Stdout, "%d cached page(s) in %s store\n", n, deps.Config.Cache.Store)
	return nil
}

// Run executes the cache clear command.
func (c *CacheClearCmd) Run(deps *Dependencies) error {
	if deps.Cache == nil {
		fmt.Fprintln(deps.Stdout, "Cache is disabled.")
		return nil
	}
	n, err := deps.Cache.Len(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", crawlkit.ErrorMessage(err))
		return err
	}
	if err := deps.Cache.Clear(deps.Ctx); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", crawlkit.ErrorMessage(err))
		return err
	}
	fmt.Fprintf(deps.Stdout, "Cleared %d cached page(s)\n", n)
	return nil
}
