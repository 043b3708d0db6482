package middleware

import (
	"bitcoin-rpc/transport"
	"context"
	"time"

	"go.uber.org/zap"
)

func LoggingMiddleware(log *zap.Logger) Middleware {
	return func(next transport.Transport) transport.Transport {
		return transport.TransportFunc(func(ctx context.Context, data []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next.Request(ctx, data)
			fields := []zap.Field{
				zap.String("method", methodLabel(data)),
				zap.Duration("duration", time.Since(start)),
				zap.Int("response_bytes", len(resp)),
			}
			if err != nil {
				log.Warn("rpc transport failed", append(fields, zap.Error(err))...)
				return resp, err
			}
			log.Debug("rpc transport", fields...)
			return resp, nil
		})
	}
}
