// Package server is a JSON-RPC 1.1 daemon over HTTP that answers the way bitcoind does.
// It backs the stub-daemon command and the end-to-end tests of the client.
//
// Request processing pipeline:
//
//	POST / (or /wallet/<name>) → chi router → Recoverer → IP allowlist → basic auth
//	  → handleRPC: decode envelope → look up handler → call → encode {"result", "error", "id"}
//
// Failed calls are answered with a non-200 status and a JSON-RPC error object in the body,
// so a client sees both the status and the error.
package server

import (
	"bitcoin-rpc/codec"
	"bitcoin-rpc/message"
	"bitcoin-rpc/metrics"
	"bitcoin-rpc/registry"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Error codes used by bitcoind.
const (
	CodeMiscError      = -1
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeParseError     = -32700
)

// RegistryTTL is the lease of the instance registered by Serve, in seconds.
const RegistryTTL = 10

// HandlerFunc answers one call. Returning a *message.Error sets the error code;
// any other error is reported with CodeMiscError.
type HandlerFunc func(ctx context.Context, params []any) (any, error)

type Server struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	router     chi.Router
	codec      codec.Codec
	log        *zap.Logger
	metrics    *metrics.Store
	user       string
	password   string
	allowed    []netip.Prefix
	registry   registry.Registry
	service    string // name registered in the registry
	advertise  string // address registered in the registry, defaults to the listen address
	httpServer *http.Server
	addr       string
}

type Option func(*Server)

// WithBasicAuth requires HTTP basic auth; other requests get 401.
func WithBasicAuth(user, password string) Option {
	return func(s *Server) {
		s.user = user
		s.password = password
	}
}

// WithAllowedIPs rejects clients outside the given networks with 403.
func WithAllowedIPs(prefixes ...netip.Prefix) Option {
	return func(s *Server) {
		s.allowed = append(s.allowed, prefixes...)
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithMetrics counts served calls per method. Unknown methods are counted as "unknown".
func WithMetrics(store *metrics.Store) Option {
	return func(s *Server) {
		s.metrics = store
	}
}

// WithRegistry makes Serve register the daemon under service, and Shutdown deregister it.
// advertiseAddr is the routable address to publish; empty means the listen address.
func WithRegistry(reg registry.Registry, service, advertiseAddr string) Option {
	return func(s *Server) {
		s.registry = reg
		s.service = service
		s.advertise = advertiseAddr
	}
}

// NewServer creates a daemon with no methods.
func NewServer(opts ...Option) *Server {
	s := &Server{
		handlers: make(map[string]HandlerFunc),
		codec:    codec.Default,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if len(s.allowed) > 0 {
		r.Use(s.allowIP)
	}
	if s.user != "" || s.password != "" {
		r.Use(chimw.BasicAuth("jsonrpc", map[string]string{s.user: s.password}))
	}
	r.Post("/", s.handleRPC)
	r.Post("/*", s.handleRPC)
	s.router = r
	return s
}

// Handle registers fn under the full method name, e.g. "wallet.listtransactions".
func (s *Server) Handle(name string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = fn
}

// Register exposes every exported method of rcvr with the signature
//
//	func(ctx context.Context, params []any) (any, error)
//
// under its lower-cased name, prefixed with "namespace." when namespace is not empty.
func (s *Server) Register(namespace string, rcvr any) error {
	svc, err := newService(namespace, rcvr)
	if err != nil {
		return err
	}
	for name, mType := range svc.method {
		s.Handle(name, svc.handler(mType))
	}
	return nil
}

// Mount attaches an extra HTTP handler, e.g. promhttp on /metrics.
// Mounted handlers sit behind the same auth as the RPC endpoint.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Handle(pattern, h)
}

// Handler returns the HTTP handler, for httptest or a custom http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr and blocks until Shutdown.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener registers the daemon (when a registry is configured) and serves on ln.
// It returns nil after Shutdown.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	if s.advertise == "" {
		s.advertise = s.addr
	}
	advertise := s.advertise
	s.mu.Unlock()

	if s.registry != nil {
		err := s.registry.Register(ctx, s.service, registry.ServiceInstance{Addr: advertise, Weight: 1}, RegistryTTL)
		if err != nil {
			ln.Close()
			return fmt.Errorf("register %s at %s: %w", s.service, advertise, err)
		}
		s.log.Info("registered", zap.String("service", s.service), zap.String("addr", advertise))
	}

	s.log.Info("serving json-rpc", zap.String("addr", s.addr))
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the listen address once serving has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry first, so clients stop routing here
//  2. Stop accepting connections and wait for in-flight calls until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv, advertise := s.httpServer, s.advertise
	s.mu.RUnlock()

	var errs []error
	if s.registry != nil && advertise != "" {
		if err := s.registry.Deregister(ctx, s.service, advertise); err != nil {
			errs = append(errs, fmt.Errorf("deregister %s: %w", s.service, err))
		}
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type rpcRequest struct {
	Method *string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     json.RawMessage `json:"id"`
}

type rpcResponse struct {
	Result any             `json:"result"`
	Error  *message.Error  `json:"error"`
	ID     json.RawMessage `json:"id"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, nil, &message.Error{Code: CodeParseError, Message: err.Error()})
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusInternalServerError, nil, &message.Error{Code: CodeParseError, Message: "Parse error"})
		return
	}
	if req.Method == nil {
		s.writeError(w, http.StatusBadRequest, req.ID, &message.Error{Code: CodeInvalidRequest, Message: "Missing method"})
		return
	}

	params, err := s.decodeParams(req.Params)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, req.ID, &message.Error{Code: CodeInvalidRequest, Message: err.Error()})
		return
	}

	s.mu.RLock()
	fn, ok := s.handlers[*req.Method]
	s.mu.RUnlock()
	if !ok {
		s.observe("unknown", time.Time{}, false)
		s.writeError(w, http.StatusNotFound, req.ID, &message.Error{Code: CodeMethodNotFound, Message: "Method not found"})
		return
	}

	start := time.Now()
	result, err := fn(r.Context(), params)
	s.observe(*req.Method, start, err == nil)
	if err != nil {
		var rpcErr *message.Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &message.Error{Code: CodeMiscError, Message: err.Error()}
		}
		s.log.Debug("call failed", zap.String("method", *req.Method), zap.Int("code", rpcErr.Code), zap.String("message", rpcErr.Message))
		s.writeError(w, http.StatusInternalServerError, req.ID, rpcErr)
		return
	}

	s.log.Debug("call", zap.String("method", *req.Method), zap.Int("params", len(params)))
	s.write(w, http.StatusOK, &rpcResponse{Result: result, ID: req.ID})
}

func (s *Server) observe(method string, start time.Time, ok bool) {
	if s.metrics == nil {
		return
	}
	status := metrics.StatusOk
	if !ok {
		status = metrics.StatusFail
	}
	s.metrics.Requests.With(prometheus.Labels{metrics.Method: method, metrics.Status: status}).Inc()
	if !start.IsZero() {
		s.metrics.Duration.With(prometheus.Labels{metrics.Method: method}).Observe(time.Since(start).Seconds())
	}
}

// decodeParams turns the params member into positional arguments; absent or null means none.
func (s *Server) decodeParams(raw json.RawMessage) ([]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []any{}, nil
	}
	var v any
	if err := s.codec.Decode(raw, &v); err != nil {
		return nil, err
	}
	params, ok := v.([]any)
	if !ok {
		return nil, errors.New("Params must be an array")
	}
	return params, nil
}

func (s *Server) writeError(w http.ResponseWriter, status int, id json.RawMessage, rpcErr *message.Error) {
	s.write(w, status, &rpcResponse{Error: rpcErr, ID: id})
}

func (s *Server) write(w http.ResponseWriter, status int, resp *rpcResponse) {
	data, err := s.codec.Encode(resp)
	if err != nil {
		s.log.Error("encode response", zap.Error(err))
		status = http.StatusInternalServerError
		data, _ = s.codec.Encode(&rpcResponse{
			Error: &message.Error{Code: CodeMiscError, Message: err.Error()},
			ID:    resp.ID,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func (s *Server) allowIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ap, err := netip.ParseAddrPort(r.RemoteAddr)
		if err == nil {
			ip := ap.Addr().Unmap()
			for _, p := range s.allowed {
				if p.Contains(ip) {
					next.ServeHTTP(w, r)
					return
				}
			}
		}
		s.log.Warn("rejected client", zap.String("remote", r.RemoteAddr))
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	})
}
