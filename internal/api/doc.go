// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /api/file downloads the EPUB, rebuilding it when stale.
//   - GET /api/articles lists the cached articles in book order.
//   - POST /api/refresh forces a rebuild (API key protected when auth is enabled).
//   - GET /healthz and /readyz for probes, GET /metrics for Prometheus.
package api
