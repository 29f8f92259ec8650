// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawl/jobs and GET /v1/crawl/jobs/{job_id} for asynchronous
//     proceedings crawls.
//   - POST /v1/documents for multipart PDF uploads.
//   - POST /v1/query for grounded question answering.
//
// Every /v1 route sits behind bearer-token authentication when it is enabled.
package api
