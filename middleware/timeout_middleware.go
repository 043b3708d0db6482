package middleware

import (
	"bitcoin-rpc/transport"
	"context"
	"time"
)

const TimeoutMessage = "request timed out"

// TimeOutMiddleware bounds the wait for a response. The transport still sees the
// deadline through ctx; transports that ignore ctx are abandoned when it expires.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next transport.Transport) transport.Transport {
		return transport.TransportFunc(func(ctx context.Context, data []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				resp []byte
				err  error
			}
			done := make(chan result, 1)
			go func() {
				resp, err := next.Request(ctx, data)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				return nil, &transport.Error{
					Message: TimeoutMessage,
					Err:     ctx.Err(),
				}
			}
		})
	}
}
