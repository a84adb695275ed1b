package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
