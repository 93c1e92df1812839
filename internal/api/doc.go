// Package api serves the operational endpoints of a catalog build while it
// runs:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
package api
