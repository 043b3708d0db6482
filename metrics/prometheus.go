// Package metrics holds the prometheus collectors for JSON-RPC round trips.
package metrics

import (
	"fmt"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

type Store struct {
	BuildInfo prometheus.Counter
	Requests  *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
}

const Method = `method`
const Status = `status`

const StatusOk = `Ok`
const StatusFail = `Fail`

var Commit string

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer, prefix, appName string) *Store {
	store := &Store{
		BuildInfo: prometheus.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_build_info", prefix),
			Help: "Build information",
			ConstLabels: prometheus.Labels{
				"name":    appName,
				"commit":  Commit,
				"version": runtime.Version(),
			},
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_rpc_requests_total", prefix),
			Help: "The total number of JSON-RPC round trips",
		}, []string{Method, Status}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_rpc_request_seconds", prefix),
			Help:    "Time spent waiting for the transport",
			Buckets: prometheus.DefBuckets,
		}, []string{Method}),
	}

	reg.MustRegister(
		store.BuildInfo,
		store.Requests,
		store.Duration,
	)

	return store
}
