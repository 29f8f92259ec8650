// Package progress carries crawl progress as typed events. Scrapers report
// through an Emitter; the Hub batches events on a background goroutine and
// fans them out to sinks such as structured logs and Prometheus collectors.
package progress
