package proxy

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "upitquest"

type metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Total number of proxy requests by endpoint and status code",
			},
			[]string{"endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "request_duration_seconds",
				Help:      "Histogram of proxy request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"endpoint"},
		),
	}

	m.registry.MustRegister(m.requestsTotal, m.requestDuration)
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// middleware records every routed request except the metrics scrape itself.
func (m *metrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Path() == pathMetrics {
			return next(c)
		}

		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		endpoint := c.Path()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requestsTotal.WithLabelValues(endpoint, strconv.Itoa(c.Response().Status)).Inc()
		m.requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		return nil
	}
}
