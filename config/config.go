// Package config reads settings from the environment and an optional .env file.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	RPC     RPCConfig
	Log     LogConfig
	Etcd    EtcdConfig
	Metrics MetricsConfig
	Stub    StubConfig
}

type RPCConfig struct {
	URL       string
	Timeout   time.Duration
	StrictID  bool
	Service   string // registry service name; empty means call URL directly
	Balancer  string
	RateLimit float64 // calls per second, 0 disables the limiter
	RateBurst int
}

type LogConfig struct {
	Level  string
	Format string // "json" or "console"
}

type EtcdConfig struct {
	Endpoints []string
}

type MetricsConfig struct {
	Prefix string
}

type StubConfig struct {
	Addr      string
	Advertise string
	Fixtures  string
	User      string
	Password  string
	AllowIPs  []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("RPC_URL", "http://127.0.0.1:8332")
	v.SetDefault("RPC_TIMEOUT", "30s")
	v.SetDefault("RPC_SERVICE", "")
	v.SetDefault("RPC_BALANCER", "RoundRobin")
	v.SetDefault("RATE_LIMIT", 0)
	v.SetDefault("RATE_BURST", 1)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ETCD_ENDPOINTS", "")
	v.SetDefault("METRICS_PREFIX", "bitcoin_rpc")
	v.SetDefault("STUB_ADDR", ":18332")
	v.SetDefault("STUB_ADVERTISE", "")
	v.SetDefault("STUB_FIXTURES", "")
	v.SetDefault("STUB_USER", "")
	v.SetDefault("STUB_PASSWORD", "")
	v.SetDefault("STUB_ALLOW_IPS", "")
}

// Read loads configPath (an env-style file) when given, otherwise ./.env if present.
// Environment variables win over file values.
func Read(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("env")
	setDefaults(v)

	if len(configPath) != 0 {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigFile(".env")
	}

	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit path must exist; the default .env is optional
		if len(configPath) != 0 || (!errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist)) {
			return nil, err
		}
	}

	return &Config{
		RPC: RPCConfig{
			URL:       v.GetString("RPC_URL"),
			Timeout:   v.GetDuration("RPC_TIMEOUT"),
			StrictID:  v.GetBool("RPC_STRICT_ID"),
			Service:   v.GetString("RPC_SERVICE"),
			Balancer:  v.GetString("RPC_BALANCER"),
			RateLimit: v.GetFloat64("RATE_LIMIT"),
			RateBurst: v.GetInt("RATE_BURST"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Etcd: EtcdConfig{
			Endpoints: splitList(v.GetString("ETCD_ENDPOINTS")),
		},
		Metrics: MetricsConfig{
			Prefix: v.GetString("METRICS_PREFIX"),
		},
		Stub: StubConfig{
			Addr:      v.GetString("STUB_ADDR"),
			Advertise: v.GetString("STUB_ADVERTISE"),
			Fixtures:  v.GetString("STUB_FIXTURES"),
			User:      v.GetString("STUB_USER"),
			Password:  v.GetString("STUB_PASSWORD"),
			AllowIPs:  splitList(v.GetString("STUB_ALLOW_IPS")),
		},
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
