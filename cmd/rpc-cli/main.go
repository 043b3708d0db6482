package main

import (
	"bitcoin-rpc/client"
	"bitcoin-rpc/config"
	"bitcoin-rpc/loadbalance"
	"bitcoin-rpc/logger"
	"bitcoin-rpc/middleware"
	"bitcoin-rpc/registry"
	"bitcoin-rpc/transport"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to an env file (default ./.env)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config file] <method> [json-arg...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, *configPath, flag.Arg(0), flag.Args()[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, configPath, method string, rawArgs []string) int {
	cfg, err := config.Read(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Read env error:", err.Error())
		return 1
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Logger error:", err.Error())
		return 1
	}
	defer log.Sync()

	args := parseArgs(rawArgs)

	t, closeTransport, err := newTransport(cfg, log)
	if err != nil {
		log.Error("create transport", zap.Error(err))
		return 1
	}
	defer closeTransport()

	opts := []client.Option{
		client.WithTransport(t),
		client.WithLogger(log),
		client.WithMiddleware(middleware.LoggingMiddleware(log)),
	}
	if cfg.RPC.RateLimit > 0 {
		opts = append(opts, client.WithMiddleware(middleware.RateLimitMiddleware(cfg.RPC.RateLimit, cfg.RPC.RateBurst)))
	}
	if cfg.RPC.StrictID {
		opts = append(opts, client.WithStrictID())
	}

	cli, err := client.New(cfg.RPC.URL, opts...)
	if err != nil {
		log.Error("create client", zap.Error(err))
		return 1
	}

	var result json.RawMessage
	if err := cli.Method(method).CallResult(ctx, &result, args...); err != nil {
		var rpcErr *client.Error
		if errors.As(err, &rpcErr) {
			fmt.Fprintf(os.Stderr, "error code: %d\nerror message:\n%s\n", rpcErr.Code(), rpcErr.Message())
			return 1
		}
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		return 1
	}

	if out := formatResult(result); out != "" {
		fmt.Println(out)
	}
	return 0
}

// newTransport calls RPC_URL directly, or discovers RPC_SERVICE through etcd when both
// RPC_SERVICE and ETCD_ENDPOINTS are set.
func newTransport(cfg *config.Config, log *zap.Logger) (transport.Transport, func(), error) {
	if cfg.RPC.Service == "" || len(cfg.Etcd.Endpoints) == 0 {
		t, err := transport.NewHTTPTransport(cfg.RPC.URL, transport.WithTimeout(cfg.RPC.Timeout))
		return t, func() {}, err
	}

	bal, err := loadbalance.New(cfg.RPC.Balancer)
	if err != nil {
		return nil, nil, err
	}
	reg, err := registry.NewEtcdRegistry(cfg.Etcd.Endpoints, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect etcd: %w", err)
	}
	t, err := transport.NewDiscoveryTransport(reg, bal, cfg.RPC.Service, cfg.RPC.URL, transport.WithTimeout(cfg.RPC.Timeout))
	if err != nil {
		reg.Close()
		return nil, nil, err
	}
	return t, func() { reg.Close() }, nil
}

// parseArgs reads every argument as JSON, keeping numbers as written.
// Anything that is not valid JSON is sent as a string, so addresses need no quoting.
func parseArgs(raw []string) []any {
	args := make([]any, 0, len(raw))
	for _, s := range raw {
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil || dec.More() {
			args = append(args, s)
			continue
		}
		args = append(args, v)
	}
	return args
}

// formatResult prints strings bare and everything else as indented JSON, like bitcoin-cli.
func formatResult(result json.RawMessage) string {
	var s string
	if err := json.Unmarshal(result, &s); err == nil {
		return s
	}
	if len(result) == 0 || string(result) == "null" {
		return ""
	}
	var out bytes.Buffer
	if err := json.Indent(&out, result, "", "  "); err != nil {
		return string(result)
	}
	return out.String()
}
