// Package metrics exposes Prometheus instrumentation for the stream-rpc
// server. Collectors register against the default registerer, so embedding
// applications scrape them through their existing /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verb label values for the exchange counters.
const (
	VerbRequestResponse = "request_response"
	VerbRequestStream   = "request_stream"
	VerbRequestChannel  = "request_channel"
)

var (
	// ExchangesStarted counts opened exchanges per interaction verb.
	ExchangesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamrpc",
		Subsystem: "server",
		Name:      "exchanges_started_total",
		Help:      "Number of exchanges opened, by interaction verb.",
	}, []string{"verb"})

	// ExchangesCompleted counts exchanges that terminated normally.
	ExchangesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamrpc",
		Subsystem: "server",
		Name:      "exchanges_completed_total",
		Help:      "Number of exchanges that completed normally, by interaction verb.",
	}, []string{"verb"})

	// ExchangesFailed counts exchanges that terminated with an error frame.
	ExchangesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamrpc",
		Subsystem: "server",
		Name:      "exchanges_failed_total",
		Help:      "Number of exchanges that terminated with an error, by interaction verb.",
	}, []string{"verb"})

	// PayloadBytesIn counts payload data bytes received from clients.
	PayloadBytesIn = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamrpc",
		Subsystem: "server",
		Name:      "payload_bytes_in_total",
		Help:      "Payload data bytes received.",
	})

	// PayloadBytesOut counts payload data bytes sent to clients.
	PayloadBytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamrpc",
		Subsystem: "server",
		Name:      "payload_bytes_out_total",
		Help:      "Payload data bytes sent.",
	})
)
