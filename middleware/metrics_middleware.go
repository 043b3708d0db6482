package middleware

import (
	"bitcoin-rpc/metrics"
	"bitcoin-rpc/transport"
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsMiddleware records transport latency and outcome per method.
// JSON-RPC level errors still count as Ok here: the round trip itself succeeded.
func MetricsMiddleware(store *metrics.Store) Middleware {
	return func(next transport.Transport) transport.Transport {
		return transport.TransportFunc(func(ctx context.Context, data []byte) ([]byte, error) {
			method := methodLabel(data)
			start := time.Now()
			resp, err := next.Request(ctx, data)
			store.Duration.With(prometheus.Labels{metrics.Method: method}).Observe(time.Since(start).Seconds())

			status := metrics.StatusOk
			if err != nil {
				status = metrics.StatusFail
			}
			store.Requests.With(prometheus.Labels{metrics.Method: method, metrics.Status: status}).Inc()
			return resp, err
		})
	}
}
