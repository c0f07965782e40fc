// Package prometheus publishes broker counters and latency histograms through
// client_golang.
//
// [Collector] reads [ssoBroker.Broker.MetricsSnapshot] on each scrape, so it
// adds no work to the login path. Counter names are ssobroker_*_total and the
// histograms are ssobroker_{create,resume}_latency_seconds. [Handler] builds a
// private registry; nothing is registered globally.
package prometheus
