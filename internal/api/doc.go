// Package api hosts the operator HTTP surface:
//   - GET|HEAD /healthz liveness, always 200 while the process runs.
//   - GET|HEAD /readyz readiness, 200 while the scheduler heartbeat is fresh.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/targets and /v1/targets/{id} for last known availability.
package api
