// Package prometheus renders authsession metrics in the Prometheus text exposition
// format.
//
// [NewExporter] reads a [authsession.Manager] on every scrape. Counters are named
// authsession_*_total, the login latency histogram is
// authsession_login_latency_seconds and authsession_logged_in is a 0/1 gauge. Nothing
// is registered globally; callers mount [Exporter.Handler] themselves.
package prometheus
