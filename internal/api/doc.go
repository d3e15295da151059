// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/enrich runs an enrichment synchronously and returns the result.
//   - GET /v1/runs/{run_id} returns a stored run.
package api
