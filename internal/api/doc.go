// Package api hosts the read-only HTTP server over the dataset. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/distribution/{center} for the per-year processing time table
//     (format=json|html|svg).
//   - GET /v1/percentile/{center}?application_date=YYYY-MM-DD for the
//     standing of an application among recent approvals.
package api
