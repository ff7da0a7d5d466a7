package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/collector/dns"
	"github.com/exposechain/exposechain/internal/collector/geo"
	"github.com/exposechain/exposechain/internal/collector/tlscert"
	"github.com/exposechain/exposechain/internal/collector/whois"
	"github.com/exposechain/exposechain/internal/config"
	"github.com/exposechain/exposechain/internal/discovery"
	"github.com/exposechain/exposechain/internal/events"
	"github.com/exposechain/exposechain/internal/handler"
	"github.com/exposechain/exposechain/internal/scanner"
	"github.com/exposechain/exposechain/internal/store"
)

// collectors holds the concrete collectors so serve can start their cache
// eviction loops.
type collectors struct {
	dns   *dns.Collector
	whois *whois.Collector
	tls   *tlscert.Collector
	geo   *geo.Collector
}

func (c *collectors) set() scanner.Collectors {
	return scanner.Collectors{DNS: c.dns, Whois: c.whois, TLS: c.tls, Geo: c.geo}
}

func (c *collectors) startEviction(ctx context.Context, interval time.Duration) {
	c.dns.StartCacheEviction(ctx, interval)
	c.whois.StartCacheEviction(ctx, interval)
	c.tls.StartCacheEviction(ctx, interval)
	c.geo.StartCacheEviction(ctx, interval)
}

func (c *collectors) Close() error {
	return c.geo.Close()
}

// newCollectors builds every collector from cfg. A missing GeoLite2 database
// leaves geolocation in place but every lookup reports the missing database.
func newCollectors(cfg *config.Config, logger *zap.Logger) (*collectors, error) {
	db, err := geo.Open(cfg.Geo.CityDB, cfg.Geo.ASNDB)
	switch {
	case errors.Is(err, geo.ErrNoDatabase):
		logger.Warn("no GeoLite2 database configured; geolocation disabled")
		db = nil
	case err != nil:
		return nil, err
	}

	return &collectors{
		dns: dns.New(dns.Config{
			Nameservers: cfg.DNS.Nameservers,
			Timeout:     cfg.DNS.Timeout,
			CacheTTL:    cfg.Collector.CacheTTL,
		}, logger),
		whois: whois.New(whois.Config{
			Timeout:  cfg.Collector.Timeout,
			CacheTTL: cfg.Collector.CacheTTL,
		}, logger),
		tls: tlscert.New(tlscert.Config{
			Port:     cfg.TLS.Port,
			Timeout:  cfg.Collector.Timeout,
			CacheTTL: cfg.Collector.CacheTTL,
		}, logger),
		geo: geo.New(db, geo.Config{CacheTTL: cfg.Collector.CacheTTL}, logger),
	}, nil
}

// newScanner builds a Scanner whose collector failures feed the metrics.
func newScanner(c *collectors, concurrency int, logger *zap.Logger) *scanner.Scanner {
	sc := scanner.New(c.set(), concurrency, logger)
	sc.SetFailureRecord(handler.RecordCollectorFailure)
	return sc
}

// openStore connects to Postgres when a URL is configured and falls back to
// the in-memory store otherwise. The returned func releases the pool.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.Database.URL == "" {
		logger.Info("no database configured; using in-memory store")
		return store.NewMemory(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL")
	return store.NewPostgres(pool, logger), pool.Close, nil
}

// newDispatcher publishes to Kafka when brokers are configured.
func newDispatcher(cfg *config.Config, logger *zap.Logger) events.Dispatcher {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.Noop{}
	}
	k := events.NewKafka(events.KafkaConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	}, logger)
	k.SetMetricsRecorder(handler.RecordEventDelivery)
	logger.Info("publishing events to kafka",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
	)
	return k
}

// newRegistry registers the Kubernetes and AWS sources that are enabled.
// A source that cannot be set up is left out and its error returned beside
// the registry of the others.
func newRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*discovery.Registry, error) {
	var sources []discovery.Source
	var errs []error

	if cfg.K8s.Enabled {
		cs, err := discovery.NewClientset(discovery.Config{
			InCluster:  cfg.K8s.InCluster,
			Kubeconfig: cfg.K8s.Kubeconfig,
			Context:    cfg.K8s.Context,
			Timeout:    cfg.Collector.Timeout,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("kubernetes: %w", err))
		} else {
			sources = append(sources, discovery.NewKubernetes(cs, logger))
		}
	}

	if cfg.AWS.Enabled {
		elb, ec2, err := discovery.NewAWSClients(ctx, discovery.AWSConfig{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("aws: %w", err))
		} else {
			sources = append(sources, discovery.NewAWS(elb, ec2, logger))
			logger.Info("aws discovery enabled", zap.String("region", cfg.AWS.Region))
		}
	}

	return discovery.NewRegistry(sources...), errors.Join(errs...)
}
