package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register is called by init() in each metrics file to enqueue collectors.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister registers every enqueued collector with the default registry, once.
func MustRegister() {
	MustRegisterWith(prometheus.DefaultRegisterer)
}

// MustRegisterWith is MustRegister against a caller-supplied registry.
func MustRegisterWith(r prometheus.Registerer) {
	once.Do(func() {
		if len(collectors) > 0 {
			r.MustRegister(collectors...)
		}
	})
}
