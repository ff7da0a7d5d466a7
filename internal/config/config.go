// Package config loads runtime settings from defaults, an optional YAML file,
// a .env file and EXPOSE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EXPOSE_SERVER_PORT.
const EnvPrefix = "EXPOSE"

// Config is the fully resolved configuration.
type Config struct {
	Server    Server
	Auth      Auth
	Database  Database
	DNS       DNS
	Collector Collector
	Geo       Geo
	TLS       TLS
	K8s       K8s
	AWS       AWS
	Kafka     Kafka
	Scan      Scan
}

// Server holds the HTTP and gRPC listener settings.
type Server struct {
	Port           int
	GRPCPort       int
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Auth holds API authentication settings. An empty secret leaves the API open.
type Auth struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// Database holds the Postgres connection. An empty URL selects the in-memory store.
type Database struct {
	URL string
}

// DNS holds resolver settings.
type DNS struct {
	Nameservers []string
	Timeout     time.Duration
}

// Collector holds settings shared by every collector.
type Collector struct {
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Geo holds the GeoLite2 database paths. An empty city path disables geolocation.
type Geo struct {
	CityDB string
	ASNDB  string
}

// TLS holds certificate collection settings.
type TLS struct {
	Port int
}

// K8s holds cluster discovery settings.
type K8s struct {
	Enabled    bool
	InCluster  bool
	Kubeconfig string
	Context    string
}

// AWS holds cloud discovery settings. Empty keys use the SDK's default
// credential chain.
type AWS struct {
	Enabled         bool
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Kafka holds event publishing settings. No brokers disables publishing.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Scan holds periodic scan settings. A zero interval disables the scheduler.
type Scan struct {
	Interval    time.Duration
	Targets     []string
	Type        string
	Concurrency int
}

// setDefaults registers a default for every key so AutomaticEnv can see it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit_rps", 20)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("database.url", "")
	v.SetDefault("dns.nameservers", []string{})
	v.SetDefault("dns.timeout", "5s")
	v.SetDefault("collector.cache_ttl", "5m")
	v.SetDefault("collector.timeout", "10s")
	v.SetDefault("geo.city_db", "")
	v.SetDefault("geo.asn_db", "")
	v.SetDefault("tls.port", 443)
	v.SetDefault("k8s.enabled", true)
	v.SetDefault("k8s.in_cluster", false)
	v.SetDefault("k8s.kubeconfig", "")
	v.SetDefault("k8s.context", "")
	v.SetDefault("aws.enabled", false)
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "exposechain.events")
	v.SetDefault("scan.interval", "0s")
	v.SetDefault("scan.targets", []string{})
	v.SetDefault("scan.type", "quick")
	v.SetDefault("scan.concurrency", 5)
}

// Load resolves the configuration. path names an explicit config file; when
// empty, exposechain.yaml is looked up in ./configs and . and may be absent.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("exposechain")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &cfgNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Server: Server{
			Port:           v.GetInt("server.port"),
			GRPCPort:       v.GetInt("server.grpc_port"),
			CORSOrigins:    stringSlice(v, "server.cors_origins"),
			RateLimitRPS:   v.GetFloat64("server.rate_limit_rps"),
			RateLimitBurst: v.GetInt("server.rate_limit_burst"),
		},
		Auth: Auth{
			JWTSecret: v.GetString("auth.jwt_secret"),
			TokenTTL:  v.GetDuration("auth.token_ttl"),
		},
		Database: Database{URL: v.GetString("database.url")},
		DNS: DNS{
			Nameservers: stringSlice(v, "dns.nameservers"),
			Timeout:     v.GetDuration("dns.timeout"),
		},
		Collector: Collector{
			CacheTTL: v.GetDuration("collector.cache_ttl"),
			Timeout:  v.GetDuration("collector.timeout"),
		},
		Geo: Geo{
			CityDB: v.GetString("geo.city_db"),
			ASNDB:  v.GetString("geo.asn_db"),
		},
		TLS: TLS{Port: v.GetInt("tls.port")},
		K8s: K8s{
			Enabled:    v.GetBool("k8s.enabled"),
			InCluster:  v.GetBool("k8s.in_cluster"),
			Kubeconfig: v.GetString("k8s.kubeconfig"),
			Context:    v.GetString("k8s.context"),
		},
		AWS: AWS{
			Enabled:         v.GetBool("aws.enabled"),
			Region:          v.GetString("aws.region"),
			AccessKeyID:     v.GetString("aws.access_key_id"),
			SecretAccessKey: v.GetString("aws.secret_access_key"),
		},
		Kafka: Kafka{
			Brokers: stringSlice(v, "kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
		Scan: Scan{
			Interval:    v.GetDuration("scan.interval"),
			Targets:     stringSlice(v, "scan.targets"),
			Type:        v.GetString("scan.type"),
			Concurrency: v.GetInt("scan.concurrency"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stringSlice reads a list key. Environment values may separate items with
// commas or spaces.
func stringSlice(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port %d out of range", c.Server.GRPCPort))
	}
	if c.TLS.Port <= 0 || c.TLS.Port > 65535 {
		errs = append(errs, fmt.Errorf("tls.port %d out of range", c.TLS.Port))
	}
	if c.Scan.Interval < 0 {
		errs = append(errs, errors.New("scan.interval must not be negative"))
	}
	if c.Scan.Interval > 0 && c.Scan.Interval < time.Minute {
		errs = append(errs, fmt.Errorf("scan.interval %s is shorter than one minute", c.Scan.Interval))
	}
	if c.Scan.Type != "quick" && c.Scan.Type != "full" {
		errs = append(errs, fmt.Errorf("scan.type %q must be quick or full", c.Scan.Type))
	}
	if c.Geo.ASNDB != "" && c.Geo.CityDB == "" {
		errs = append(errs, errors.New("geo.asn_db requires geo.city_db"))
	}
	if c.AWS.Enabled && c.AWS.Region == "" {
		errs = append(errs, errors.New("aws.enabled requires aws.region"))
	}
	if (c.AWS.AccessKeyID == "") != (c.AWS.SecretAccessKey == "") {
		errs = append(errs, errors.New("aws.access_key_id and aws.secret_access_key must be set together"))
	}
	return errors.Join(errs...)
}
