// Package crawlkit provides a crawl orchestration and dispatch engine.
// It decides for each requested URL whether to serve from cache or fetch
// fresh, runs fetched HTML through a pipeline of pluggable stages, and
// schedules many such crawls under per-domain pacing and adaptive
// concurrency.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., sqlite/, goquery/, rod/).
package crawlkit
