// Package api hosts the ops HTTP server that runs next to a crawl. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stats for the live crawl summary.
package api
