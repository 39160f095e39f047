// Package api hosts the admin HTTP server used in serve mode. Notable
// routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stats for notification store statistics.
//   - GET /v1/lastrun for the most recent pipeline run report.
package api
