package main

import (
	"bitcoin-rpc/config"
	"bitcoin-rpc/logger"
	"bitcoin-rpc/metrics"
	"bitcoin-rpc/registry"
	"bitcoin-rpc/server"
	"context"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	appName         = "stub-daemon"
	serviceName     = "bitcoind"
	shutdownTimeout = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "Path to an env file (default ./.env)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	cfg, envErr := config.Read(*configPath)
	if envErr != nil {
		fmt.Println("Read env error:", envErr.Error())
		return
	}

	log, logErr := logger.New(&cfg.Log)
	if logErr != nil {
		fmt.Println("Logger error:", logErr.Error())
		return
	}
	defer log.Sync()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	metricsStore := metrics.New(promReg, cfg.Metrics.Prefix, appName)
	metricsStore.BuildInfo.Inc()

	opts := []server.Option{server.WithLogger(log), server.WithMetrics(metricsStore)}
	if cfg.Stub.User != "" {
		opts = append(opts, server.WithBasicAuth(cfg.Stub.User, cfg.Stub.Password))
	}
	if len(cfg.Stub.AllowIPs) > 0 {
		prefixes, err := parsePrefixes(cfg.Stub.AllowIPs)
		if err != nil {
			log.Error("STUB_ALLOW_IPS", zap.Error(err))
			return
		}
		opts = append(opts, server.WithAllowedIPs(prefixes...))
	}
	if len(cfg.Etcd.Endpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.Etcd.Endpoints, log)
		if err != nil {
			log.Error("Could not connect to etcd", zap.Error(err))
			return
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, serviceName, cfg.Stub.Advertise))
	}

	svr := server.NewServer(opts...)
	svr.Mount("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	registerBuiltins(svr)

	if cfg.Stub.Fixtures != "" {
		n, err := svr.LoadFixtureFile(cfg.Stub.Fixtures)
		if err != nil {
			log.Error("Could not load fixtures", zap.String("path", cfg.Stub.Fixtures), zap.Error(err))
			return
		}
		log.Info("Fixtures loaded", zap.Int("methods", n))
	}

	g.Go(func() error {
		return svr.Serve(gCtx, cfg.Stub.Addr)
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return svr.Shutdown(shutdownCtx)
	})

	log.Info(fmt.Sprintf("Started %s", appName), zap.String("addr", cfg.Stub.Addr))

	if err := g.Wait(); err != nil {
		log.Error(err.Error())
	}

	fmt.Println(`Main done`)
}

// registerBuiltins adds the methods every stub answers; fixtures loaded later replace them.
func registerBuiltins(svr *server.Server) {
	started := time.Now()
	svr.Handle("uptime", func(ctx context.Context, params []any) (any, error) {
		return int64(time.Since(started).Seconds()), nil
	})
	svr.Handle("stop", func(ctx context.Context, params []any) (any, error) {
		return "stub-daemon does not stop over RPC", nil
	})
}

func parsePrefixes(items []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(items))
	for _, item := range items {
		p, err := netip.ParsePrefix(item)
		if err != nil {
			addr, addrErr := netip.ParseAddr(item)
			if addrErr != nil {
				return nil, err
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}
