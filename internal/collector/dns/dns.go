// Package dns collects forward and reverse DNS records for a scan target.
package dns

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/cache"
	"github.com/exposechain/exposechain/internal/scan"
)

// Resolver is the subset of *net.Resolver the collector uses.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Config holds DNS collector settings.
type Config struct {
	// Nameservers pins queries to these servers ("8.8.8.8" or "8.8.8.8:53").
	// Empty uses the system resolver.
	Nameservers []string
	Timeout     time.Duration
	CacheTTL    time.Duration
}

// Collector runs DNS lookups and caches whole results per target.
type Collector struct {
	resolver Resolver
	timeout  time.Duration
	cache    *cache.TTL[*scan.DNSLookup]
	logger   *zap.Logger
	now      func() time.Time
}

// New returns a Collector backed by a net.Resolver built from cfg.
func New(cfg Config, logger *zap.Logger) *Collector {
	return NewWithResolver(newNetResolver(cfg), cfg, logger)
}

// NewWithResolver returns a Collector that queries r.
func NewWithResolver(r Resolver, cfg Config, logger *zap.Logger) *Collector {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Collector{
		resolver: r,
		timeout:  cfg.Timeout,
		cache:    cache.New[*scan.DNSLookup](cfg.CacheTTL, 0),
		logger:   logger,
		now:      time.Now,
	}
}

// newNetResolver pins the Go resolver to the configured nameservers, rotating
// through them per dial.
func newNetResolver(cfg Config) *net.Resolver {
	if len(cfg.Nameservers) == 0 {
		return &net.Resolver{}
	}
	servers := make([]string, len(cfg.Nameservers))
	for i, ns := range cfg.Nameservers {
		if _, _, err := net.SplitHostPort(ns); err != nil {
			ns = net.JoinHostPort(ns, "53")
		}
		servers[i] = ns
	}
	var next atomic.Uint32
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			addr := servers[int(next.Add(1)-1)%len(servers)]
			return d.DialContext(ctx, network, addr)
		},
	}
}

// Lookup returns the DNS section for target. Domains get A, AAAA, MX, NS and
// TXT lookups; IP targets get a PTR lookup. Failures are reported inside the
// result, never as an error.
func (c *Collector) Lookup(ctx context.Context, target string, tt scan.TargetType) *scan.DNSLookup {
	key := fmt.Sprintf("dns:%s:%s", target, tt)
	if res, ok := c.cache.Get(key); ok {
		c.logger.Debug("cache hit", zap.String("key", key))
		return res
	}

	res := &scan.DNSLookup{
		Target:     target,
		TargetType: tt,
		Timestamp:  c.now().UTC(),
	}

	if tt.IsIP() {
		res.Reverse = c.ReverseLookup(ctx, target)
	} else {
		var wg sync.WaitGroup
		queries := []struct {
			dst **scan.RecordSet
			fn  func(context.Context, string) *scan.RecordSet
		}{
			{&res.Records.A, c.lookupA},
			{&res.Records.AAAA, c.lookupAAAA},
			{&res.Records.MX, c.lookupMX},
			{&res.Records.NS, c.lookupNS},
			{&res.Records.TXT, c.lookupTXT},
		}
		for _, q := range queries {
			wg.Add(1)
			go func(dst **scan.RecordSet, fn func(context.Context, string) *scan.RecordSet) {
				defer wg.Done()
				*dst = fn(ctx, target)
			}(q.dst, q.fn)
		}
		wg.Wait()

		var total float64
		for _, rs := range []*scan.RecordSet{res.Records.A, res.Records.AAAA, res.Records.MX, res.Records.NS, res.Records.TXT} {
			total += rs.QueryTimeMS
		}
		res.TotalQueryTimeMS = round2(total)
	}

	c.cache.Set(key, res)
	return res
}

// ReverseLookup resolves the PTR names for ip.
func (c *Collector) ReverseLookup(ctx context.Context, ip string) *scan.ReverseDNS {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	names, err := c.resolver.LookupAddr(ctx, ip)
	if err != nil {
		c.logger.Debug("dns: reverse lookup failed", zap.String("ip", ip), zap.Error(err))
		return &scan.ReverseDNS{IP: ip, Hostnames: []string{}, Error: err.Error()}
	}
	hosts := make([]string, len(names))
	for i, n := range names {
		hosts[i] = strings.TrimSuffix(n, ".")
	}
	return &scan.ReverseDNS{
		Success:     true,
		IP:          ip,
		Hostnames:   hosts,
		QueryTimeMS: elapsedMS(start),
	}
}

// ── Record lookups ────────────────────────────────────────────────────────────

func (c *Collector) lookupA(ctx context.Context, domain string) *scan.RecordSet {
	return c.lookupIP(ctx, domain, "ip4", "A")
}

func (c *Collector) lookupAAAA(ctx context.Context, domain string) *scan.RecordSet {
	return c.lookupIP(ctx, domain, "ip6", "AAAA")
}

func (c *Collector) lookupIP(ctx context.Context, domain, network, rtype string) *scan.RecordSet {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	ips, err := c.resolver.LookupIP(ctx, network, domain)
	if err != nil {
		return failed(rtype, err)
	}
	records := make([]scan.DNSRecord, 0, len(ips))
	for _, ip := range ips {
		records = append(records, scan.DNSRecord{IP: ip.String()})
	}
	return answered(rtype, records, start)
}

func (c *Collector) lookupMX(ctx context.Context, domain string) *scan.RecordSet {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	mxs, err := c.resolver.LookupMX(ctx, domain)
	if err != nil {
		return failed("MX", err)
	}
	records := make([]scan.DNSRecord, 0, len(mxs))
	for _, mx := range mxs {
		records = append(records, scan.DNSRecord{
			Priority:   mx.Pref,
			MailServer: strings.TrimSuffix(mx.Host, "."),
		})
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Priority < records[j].Priority })
	return answered("MX", records, start)
}

func (c *Collector) lookupNS(ctx context.Context, domain string) *scan.RecordSet {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	nss, err := c.resolver.LookupNS(ctx, domain)
	if err != nil {
		return failed("NS", err)
	}
	records := make([]scan.DNSRecord, 0, len(nss))
	for _, ns := range nss {
		records = append(records, scan.DNSRecord{Nameserver: strings.TrimSuffix(ns.Host, ".")})
	}
	return answered("NS", records, start)
}

func (c *Collector) lookupTXT(ctx context.Context, domain string) *scan.RecordSet {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	txts, err := c.resolver.LookupTXT(ctx, domain)
	if err != nil {
		return failed("TXT", err)
	}
	records := make([]scan.DNSRecord, 0, len(txts))
	for _, txt := range txts {
		records = append(records, scan.DNSRecord{Data: txt})
	}
	return answered("TXT", records, start)
}

func answered(rtype string, records []scan.DNSRecord, start time.Time) *scan.RecordSet {
	if len(records) == 0 {
		return &scan.RecordSet{
			RecordType: rtype,
			Records:    []scan.DNSRecord{},
			Error:      fmt.Sprintf("No %s records found", rtype),
		}
	}
	return &scan.RecordSet{
		Success:     true,
		RecordType:  rtype,
		Records:     records,
		Count:       len(records),
		QueryTimeMS: elapsedMS(start),
	}
}

func failed(rtype string, err error) *scan.RecordSet {
	msg := err.Error()
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		msg = fmt.Sprintf("No %s records found", rtype)
	}
	return &scan.RecordSet{
		RecordType: rtype,
		Records:    []scan.DNSRecord{},
		Error:      msg,
	}
}

func elapsedMS(start time.Time) float64 {
	return round2(float64(time.Since(start).Microseconds()) / 1000)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// StartCacheEviction drops expired cache entries every interval until ctx is done.
func (c *Collector) StartCacheEviction(ctx context.Context, interval time.Duration) {
	c.cache.StartEviction(ctx, interval, c.logger)
}
