/*
Package monitoring collects Prometheus metrics for a harvest run.

# Overview

The harvester is a one-shot process, so nothing scrapes it. Metrics live in a
private registry and are written once, at exit, in the text exposition format
to a file that node_exporter's textfile collector picks up.

# Metrics

  - harvest_stage_duration_seconds{stage}: time spent per orchestrator state
  - harvest_http_requests_total{host,status}: outbound requests by status
  - harvest_http_request_duration_seconds{host}: outbound request latency
  - harvest_runs_total{outcome}: completed and failed runs
  - harvest_last_run_timestamp_seconds: Unix time of the last finished run

# Usage

	metrics := monitoring.NewMetrics()
	defer metrics.WriteTextfile(cfg.Metrics.Textfile)

A nil *Metrics is valid and records nothing.
*/
package monitoring
