// Package prometheus renders credguard metrics in Prometheus text exposition
// format without touching any global registry. Mount [PrometheusExporter.Handler]
// wherever the scraper expects it.
package prometheus
