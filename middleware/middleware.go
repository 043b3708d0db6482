// Package middleware decorates a transport.Transport.
//
// Chain wraps middlewares in reverse order to create the onion model:
//
//	Chain(A, B, C)(transport) → A(B(C(transport)))
//	Execution order: A.before → B.before → C.before → transport → C.after → B.after → A.after
package middleware

import (
	"bitcoin-rpc/message"
	"bitcoin-rpc/transport"
)

type Middleware func(next transport.Transport) transport.Transport

// Chain combines several middlewares into one
func Chain(middlewares ...Middleware) Middleware {
	return func(next transport.Transport) transport.Transport {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// methodLabel names the call for logs and metrics; unreadable requests get "unknown".
func methodLabel(data []byte) string {
	method, err := message.MethodOf(data)
	if err != nil {
		return "unknown"
	}
	return method
}
