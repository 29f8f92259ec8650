// Package main hosts the siepe-rag service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, crawl job, document
//     upload and query endpoints behind optional bearer-token auth.
//   - Crawl jobs: internal/jobs.Manager runs each job in its own goroutine.
//     internal/crawl expands (year, category, event) into listing pages, and
//     internal/scraper walks each page sequentially: download, verify, render a
//     metadata cover, merge and ingest.
//   - Listing fetches: a Colly fetcher serves static HTML; when headless is
//     enabled the Chromedp fetcher is used for listings the heuristic detector
//     flags as script-rendered.
//   - Ingestion: internal/ingest extracts page text, parses the cover metadata,
//     chunks, embeds and upserts into the configured vector store
//     (memory/postgres/qdrant), optionally archiving the PDF and publishing a
//     notification.
//   - Retrieval: internal/retrieval extracts filters from the question, runs a
//     filtered vector search and asks the completion model for an HTML answer.
//
// Operational notes:
//   - Job state lives in memory and is lost on restart.
//   - Downloads are paced per host by internal/policy/ratelimit.
//   - SIGINT/SIGTERM drains HTTP, then waits for running jobs up to
//     server.shutdown_timeout.
//
// Quick checklist:
//   - Configure env vars with the SIEPE_ prefix, e.g. SIEPE_SERVER_PORT,
//     SIEPE_AUTH_ENABLED, SIEPE_AUTH_TOKEN, SIEPE_EMBEDDING_BASE_URL,
//     SIEPE_COMPLETION_BASE_URL, SIEPE_VECTORSTORE_DRIVER.
//   - Run locally: go run ./cmd/siepe-rag -config config.yaml.
package main
