// Package api hosts the read-only HTTP server over stored articles. Routes:
//   - GET /healthz (store ping) and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/articles with author, category, sub_category, title, page,
//     limit, sort_by and sort_order query parameters.
//   - GET /v1/categories and /v1/sub-categories?category=.
package api
