// Package api hosts the HTTP server, middleware, and REST handlers for the
// scraper. Notable routes:
//   - POST /v1/scrape starts a pass and answers 202 without waiting for it.
//   - GET /v1/runs and /v1/runs/{run_id} expose run logs so callers can
//     observe how a background pass ended.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
