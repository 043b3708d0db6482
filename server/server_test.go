package server

import (
	"bitcoin-rpc/client"
	"bitcoin-rpc/loadbalance"
	"bitcoin-rpc/message"
	"bitcoin-rpc/metrics"
	"bitcoin-rpc/registry"
	"bitcoin-rpc/transport"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

// ---- 测试用的服务 ----

type Wallet struct {
	balance decimal.Decimal
}

func (w *Wallet) GetBalance(ctx context.Context, params []any) (any, error) {
	// Bare JSON number, the way bitcoind prints amounts
	return json.RawMessage(w.balance.StringFixed(8)), nil
}

func (w *Wallet) ListTransactions(ctx context.Context, params []any) (any, error) {
	if len(params) > 0 && params[0] != "*" {
		return nil, &message.Error{Code: -5, Message: "Invalid address"}
	}
	return []any{}, nil
}

func (w *Wallet) Fail(ctx context.Context, params []any) (any, error) {
	return nil, errors.New("wallet is locked")
}

// not an RPC method: wrong signature
func (w *Wallet) Reset() {}

func newTestDaemon(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	svr := NewServer(opts...)
	if err := svr.Register("wallet", &Wallet{balance: decimal.RequireFromString("12.5")}); err != nil {
		t.Fatal(err)
	}
	svr.Handle("getblockcount", func(ctx context.Context, params []any) (any, error) {
		return 840000, nil
	})
	ts := httptest.NewServer(svr.Handler())
	t.Cleanup(ts.Close)
	return svr, ts
}

func authURL(ts *httptest.Server, user, pass string) string {
	return strings.Replace(ts.URL, "://", "://"+user+":"+pass+"@", 1)
}

func TestServerCall(t *testing.T) {
	_, ts := newTestDaemon(t, WithBasicAuth("rpcuser", "rpcpass"))

	cli, err := client.New(authURL(ts, "rpcuser", "rpcpass"))
	if err != nil {
		t.Fatal(err)
	}

	balance, err := cli.Path("wallet", "getbalance").Call(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	d, ok := balance.(decimal.Decimal)
	if !ok || d.StringFixed(8) != "12.50000000" {
		t.Fatalf("expect decimal 12.50000000, got %T %v", balance, balance)
	}

	count, err := cli.Call(context.Background(), "getblockcount")
	if err != nil {
		t.Fatal(err)
	}
	if count != int64(840000) {
		t.Fatalf("expect 840000, got %v", count)
	}

	txs, err := cli.Path("wallet", "listtransactions").Call(context.Background(), "*", 10)
	if err != nil {
		t.Fatal(err)
	}
	if list, ok := txs.([]any); !ok || len(list) != 0 {
		t.Fatalf("expect empty list, got %v", txs)
	}
}

func TestServerErrors(t *testing.T) {
	_, ts := newTestDaemon(t)
	cli, _ := client.New(ts.URL)

	tests := []struct {
		method string
		args   []any
		code   int
		msg    string
	}{
		{"wallet.listtransactions", []any{"bogus"}, -5, "Invalid address"},
		{"wallet.fail", nil, CodeMiscError, "wallet is locked"},
		{"wallet.reset", nil, CodeMethodNotFound, "Method not found"},
		{"nosuchmethod", nil, CodeMethodNotFound, "Method not found"},
	}
	for _, tt := range tests {
		_, err := cli.Call(context.Background(), tt.method, tt.args...)
		var rpcErr *client.Error
		if !errors.As(err, &rpcErr) {
			t.Fatalf("%s: expect *client.Error, got %v", tt.method, err)
		}
		if rpcErr.Code() != tt.code || rpcErr.Message() != tt.msg {
			t.Fatalf("%s: expect %d %q, got %d %q", tt.method, tt.code, tt.msg, rpcErr.Code(), rpcErr.Message())
		}
	}
}

func TestServerResponseEnvelope(t *testing.T) {
	_, ts := newTestDaemon(t)

	tests := []struct {
		body   string
		status int
		want   string
	}{
		{`{"version":"1.1","method":"getblockcount","params":[],"id":7}`, http.StatusOK, `{"result":840000,"error":null,"id":7}`},
		{`{"version":"1.1","method":"getblockcount","id":"abc"}`, http.StatusOK, `{"result":840000,"error":null,"id":"abc"}`},
		{`{"version":"1.1","method":"getblockcount","params":{},"id":1}`, http.StatusBadRequest, `{"result":null,"error":{"code":-32600,"message":"Params must be an array"},"id":1}`},
		{`{"params":[],"id":1}`, http.StatusBadRequest, `{"result":null,"error":{"code":-32600,"message":"Missing method"},"id":1}`},
		{`{"method":`, http.StatusInternalServerError, `{"result":null,"error":{"code":-32700,"message":"Parse error"},"id":null}`},
	}
	for _, tt := range tests {
		resp, err := http.Post(ts.URL, "application/json", strings.NewReader(tt.body))
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != tt.status {
			t.Errorf("%s: expect status %d, got %d", tt.body, tt.status, resp.StatusCode)
		}
		if strings.TrimSpace(string(body)) != tt.want {
			t.Errorf("%s: expect %s, got %s", tt.body, tt.want, body)
		}
	}
}

func TestServerBasicAuth(t *testing.T) {
	_, ts := newTestDaemon(t, WithBasicAuth("rpcuser", "rpcpass"))

	resp, err := http.Post(ts.URL, "application/json", strings.NewReader(`{"method":"getblockcount","params":[],"id":1}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expect 401, got %d", resp.StatusCode)
	}

	cli, _ := client.New(authURL(ts, "rpcuser", "wrong"))
	_, err = cli.Call(context.Background(), "getblockcount")
	if err == nil {
		t.Fatal("expect error with a wrong password")
	}
	var rpcErr *client.Error
	if errors.As(err, &rpcErr) {
		t.Fatalf("an empty 401 body is a parse failure, got %v", err)
	}
}

func TestServerIPAllowlist(t *testing.T) {
	_, ts := newTestDaemon(t, WithAllowedIPs(netip.MustParsePrefix("10.0.0.0/8")))
	cli, _ := client.New(ts.URL)

	_, err := cli.Call(context.Background(), "getblockcount")
	var terr *transport.Error
	if !errors.As(err, &terr) || terr.Code != http.StatusForbidden {
		t.Fatalf("expect transport error 403, got %v", err)
	}

	_, ts = newTestDaemon(t, WithAllowedIPs(netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("::1/128")))
	cli, _ = client.New(ts.URL)
	if _, err := cli.Call(context.Background(), "getblockcount"); err != nil {
		t.Fatalf("expect loopback to be allowed, got %v", err)
	}
}

func TestLoadFixtures(t *testing.T) {
	svr := NewServer()
	n, err := svr.LoadFixtures(strings.NewReader(`{"getbalance": 0.1, "getinfo": {"version": 250000, "relayfee": 0.00001}}`))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expect 2 fixtures, got %d", n)
	}
	ts := httptest.NewServer(svr.Handler())
	defer ts.Close()

	cli, _ := client.New(ts.URL)
	balance, err := cli.Call(context.Background(), "getbalance")
	if err != nil {
		t.Fatal(err)
	}
	if d, ok := balance.(decimal.Decimal); !ok || !d.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("expect exactly 0.1, got %T %v", balance, balance)
	}

	info, err := cli.Call(context.Background(), "getinfo")
	if err != nil {
		t.Fatal(err)
	}
	fee := info.(map[string]any)["relayfee"].(decimal.Decimal)
	if fee.String() != "0.00001" {
		t.Fatalf("expect relayfee 0.00001, got %s", fee)
	}

	if _, err := svr.LoadFixtures(strings.NewReader(`[1, 2]`)); err == nil {
		t.Fatal("expect error for a non-object fixture document")
	}
}

func TestRegisterInvalid(t *testing.T) {
	svr := NewServer()
	if err := svr.Register("", Wallet{}); err == nil {
		t.Fatal("expect error for a non-pointer receiver")
	}
	type empty struct{}
	if err := svr.Register("", &empty{}); err == nil {
		t.Fatal("expect error for a receiver without RPC methods")
	}
}

func TestServeWithRegistry(t *testing.T) {
	reg := registry.NewStaticRegistry()
	svr := NewServer(WithRegistry(reg, "bitcoind", ""))
	svr.Handle("getblockcount", func(ctx context.Context, params []any) (any, error) {
		return 1, nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		done <- svr.ServeListener(context.Background(), ln)
	}()

	// 等待注册完成
	deadline := time.Now().Add(2 * time.Second)
	for {
		instances, _ := reg.Discover(context.Background(), "bitcoind")
		if len(instances) == 1 {
			if instances[0].Addr != ln.Addr().String() {
				t.Fatalf("expect %s registered, got %s", ln.Addr(), instances[0].Addr)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not register")
		}
		time.Sleep(10 * time.Millisecond)
	}

	disc, err := transport.NewDiscoveryTransport(reg, &loadbalance.RoundRobinBalancer{}, "bitcoind", "http://127.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	cli, _ := client.New("", client.WithTransport(disc))
	if got, err := cli.Call(context.Background(), "getblockcount"); err != nil || got != int64(1) {
		t.Fatalf("expect 1, got %v (%v)", got, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svr.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("expect nil after Shutdown, got %v", err)
	}
	if instances, _ := reg.Discover(context.Background(), "bitcoind"); len(instances) != 0 {
		t.Fatalf("expect deregistered, got %v", instances)
	}
}

func TestServerMetrics(t *testing.T) {
	store := metrics.New(prometheus.NewRegistry(), "stub", "test")
	_, ts := newTestDaemon(t, WithMetrics(store))
	cli, _ := client.New(ts.URL)

	cli.Call(context.Background(), "getblockcount")
	cli.Call(context.Background(), "getblockcount")
	cli.Call(context.Background(), "wallet.fail")
	cli.Call(context.Background(), "nosuchmethod")

	tests := []struct {
		method, status string
		want           float64
	}{
		{"getblockcount", metrics.StatusOk, 2},
		{"wallet.fail", metrics.StatusFail, 1},
		{"unknown", metrics.StatusFail, 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(store.Requests.WithLabelValues(tt.method, tt.status)); got != tt.want {
			t.Errorf("%s/%s: expect %v, got %v", tt.method, tt.status, tt.want, got)
		}
	}
}
