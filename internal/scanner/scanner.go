// Package scanner runs the collectors against a target concurrently and
// assembles their results into a scan.Bundle.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/collector/geo"
	"github.com/exposechain/exposechain/internal/collector/tlscert"
	"github.com/exposechain/exposechain/internal/collector/whois"
	"github.com/exposechain/exposechain/internal/scan"
)

// Kind selects how much of the collector set a scan runs.
type Kind string

const (
	// Quick runs DNS, geolocation and WHOIS.
	Quick Kind = "quick"
	// Full additionally performs a TLS handshake with the target.
	Full Kind = "full"
)

// ErrInvalidKind is returned for an unrecognised scan kind.
var ErrInvalidKind = errors.New("invalid scan type")

// ParseKind validates a scan kind. Empty selects Quick.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return Quick, nil
	case Quick, Full:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q (want quick or full)", ErrInvalidKind, s)
	}
}

// ── Collector contracts ───────────────────────────────────────────────────────

// DNSCollector produces the dns_lookup section.
type DNSCollector interface {
	Lookup(ctx context.Context, target string, tt scan.TargetType) *scan.DNSLookup
}

// WhoisCollector produces the whois_lookup section.
type WhoisCollector interface {
	Lookup(ctx context.Context, domain string) *scan.Whois
}

// TLSCollector produces the ssl_certificate section.
type TLSCollector interface {
	Certificate(ctx context.Context, host string, port int) *scan.TLSCertificate
}

// GeoCollector produces the geolocation section.
type GeoCollector interface {
	LookupIPs(ctx context.Context, ips []string) *scan.Geolocation
}

// Collectors is the set of collectors a Scanner drives. DNS is required; a
// nil collector leaves its sections out of the bundle.
type Collectors struct {
	DNS   DNSCollector
	Whois WhoisCollector
	TLS   TLSCollector
	Geo   GeoCollector
}

// FailureRecordFunc is an optional callback invoked once per collector that
// ran but reported failure.
type FailureRecordFunc func(collector string)

// Scanner assembles scan bundles.
type Scanner struct {
	c           Collectors
	concurrency int
	onFailure   FailureRecordFunc
	logger      *zap.Logger
	now         func() time.Time
}

// New returns a Scanner. concurrency bounds ScanMany; zero selects 10.
func New(c Collectors, concurrency int, logger *zap.Logger) *Scanner {
	if concurrency <= 0 {
		concurrency = 10
	}
	return &Scanner{c: c, concurrency: concurrency, logger: logger, now: time.Now}
}

// SetFailureRecord configures the collector failure callback.
func (s *Scanner) SetFailureRecord(fn FailureRecordFunc) {
	s.onFailure = fn
}

func (s *Scanner) failed(collector string) {
	if s.onFailure != nil {
		s.onFailure(collector)
	}
}

// Scan validates target and runs the collectors for kind. DNS and the
// geolocation of its answers run alongside WHOIS and TLS; collector failures
// are recorded inside the bundle rather than returned.
func (s *Scanner) Scan(ctx context.Context, target string, kind Kind) (*scan.Bundle, error) {
	norm, tt, err := scan.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		kind = Quick
	}

	start := s.now()
	b := &scan.Bundle{
		Target:     norm,
		TargetType: tt,
		ScanType:   string(kind),
		StartedAt:  start.UTC(),
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.network(ctx, b)
	}()

	if tt == scan.TargetDomain && s.c.Whois != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := s.c.Whois.Lookup(ctx, norm)
			b.WhoisLookup = w
			if w.Success {
				b.DomainAnalysis = whois.AnalyzeDomainStatus(w)
			} else {
				s.failed("whois")
			}
		}()
	}

	if tt == scan.TargetDomain && kind == Full && s.c.TLS != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cert := s.c.TLS.Certificate(ctx, norm, 0)
			b.SSLCertificate = cert
			b.SSLSecurityAnalysis = tlscert.AnalyzeSecurity(cert)
			if !cert.Success {
				s.failed("tls")
			}
		}()
	}

	wg.Wait()

	s.logger.Info("scanner: scan complete",
		zap.String("target", norm),
		zap.String("target_type", string(tt)),
		zap.String("scan_type", string(kind)),
		zap.Duration("duration", s.now().Sub(start)),
	)
	return b, nil
}

// network fills the DNS section and then geolocates what it resolved.
func (s *Scanner) network(ctx context.Context, b *scan.Bundle) {
	d := s.c.DNS.Lookup(ctx, b.Target, b.TargetType)
	b.DNSLookup = d
	if !dnsAnswered(d) {
		s.failed("dns")
	}

	if s.c.Geo == nil {
		return
	}
	if b.TargetType.IsIP() {
		b.Geolocation = s.c.Geo.LookupIPs(ctx, []string{b.Target})
	} else if ips := d.IPs(); len(ips) > 0 {
		b.Geolocation = s.c.Geo.LookupIPs(ctx, ips)
		b.HostingAnalysis = geo.AnalyzeHosting(b.Geolocation)
	}
	if b.Geolocation != nil {
		for _, loc := range b.Geolocation.IPLocations {
			if !loc.Success {
				s.failed("geo")
				break
			}
		}
	}
}

func dnsAnswered(d *scan.DNSLookup) bool {
	if d == nil {
		return false
	}
	if d.Reverse != nil {
		return d.Reverse.Success
	}
	for _, rs := range []*scan.RecordSet{d.Records.A, d.Records.AAAA, d.Records.MX, d.Records.NS, d.Records.TXT} {
		if rs != nil && rs.Success {
			return true
		}
	}
	return false
}

// Result pairs a target with its bundle or the reason it could not be scanned.
type Result struct {
	Target string
	Bundle *scan.Bundle
	Err    error
}

// ScanMany scans targets with bounded concurrency. Results are in input order.
func (s *Scanner) ScanMany(ctx context.Context, targets []string, kind Kind) []Result {
	results := make([]Result, len(targets))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for i, t := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			b, err := s.Scan(ctx, target, kind)
			if err != nil {
				s.logger.Warn("scanner: scan failed", zap.String("target", target), zap.Error(err))
			}
			results[i] = Result{Target: target, Bundle: b, Err: err}
		}(i, t)
	}

	wg.Wait()
	return results
}

// Message describes a completed scan for API responses.
func Message(b *scan.Bundle) string {
	if b.TargetType == scan.TargetDomain {
		return "Complete scan finished for domain: " + b.Target
	}
	return fmt.Sprintf("Geolocation and reverse DNS completed for %s: %s", b.TargetType, b.Target)
}
