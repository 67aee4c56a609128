// Package prometheus exposes credauth metrics as a prometheus.Collector.
//
// The collector reads Engine.MetricsSnapshot on every scrape, so register it
// once with the caller's registry:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(credprom.NewCollector(engine))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package prometheus
