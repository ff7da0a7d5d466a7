package service

import (
	"context"
	"fmt"

	"github.com/exposechain/exposechain/internal/collector/tlscert"
	"github.com/exposechain/exposechain/internal/collector/whois"
	"github.com/exposechain/exposechain/internal/scan"
	"github.com/exposechain/exposechain/internal/scanner"
)

// WhoisResult is the dedicated WHOIS lookup response.
type WhoisResult struct {
	Domain   string               `json:"domain"`
	Whois    *scan.Whois          `json:"whois_data"`
	Analysis *scan.DomainAnalysis `json:"domain_analysis,omitempty"`
}

// SSLResult is the dedicated certificate lookup response.
type SSLResult struct {
	Domain   string                `json:"domain"`
	Cert     *scan.TLSCertificate  `json:"certificate_data"`
	Security *scan.TLSSecurity     `json:"security_analysis"`
	Hostname tlscert.HostnameMatch `json:"hostname_validation"`
}

// LookupService runs individual collectors outside a full scan.
type LookupService struct {
	c scanner.Collectors
}

// NewLookupService creates a LookupService over the same collectors the
// scanner uses.
func NewLookupService(c scanner.Collectors) *LookupService {
	return &LookupService{c: c}
}

// DNS resolves a domain or reverse-resolves an IP.
func (l *LookupService) DNS(ctx context.Context, target string) (*scan.DNSLookup, error) {
	norm, tt, err := scan.ParseTarget(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return l.c.DNS.Lookup(ctx, norm, tt), nil
}

// Whois fetches and analyses a domain's registration.
func (l *LookupService) Whois(ctx context.Context, domain string) (*WhoisResult, error) {
	norm, err := l.domain(domain)
	if err != nil {
		return nil, err
	}
	if l.c.Whois == nil {
		return nil, fmt.Errorf("%w: whois lookups are disabled", ErrInvalidRequest)
	}
	w := l.c.Whois.Lookup(ctx, norm)
	res := &WhoisResult{Domain: norm, Whois: w}
	if w.Success {
		res.Analysis = whois.AnalyzeDomainStatus(w)
	}
	return res, nil
}

// Geo locates a single IP address.
func (l *LookupService) Geo(ctx context.Context, ip string) (*scan.IPLocation, error) {
	norm, tt, err := scan.ParseTarget(ip)
	if err != nil || !tt.IsIP() {
		return nil, fmt.Errorf("%w: %q is not an IP address", ErrInvalidRequest, ip)
	}
	if l.c.Geo == nil {
		return nil, fmt.Errorf("%w: geolocation is disabled", ErrInvalidRequest)
	}
	g := l.c.Geo.LookupIPs(ctx, []string{norm})
	if g == nil || g.IPLocations[norm] == nil {
		return nil, fmt.Errorf("geolocate %s: no result", norm)
	}
	return g.IPLocations[norm], nil
}

// SSL fetches a domain's certificate and analyses it.
func (l *LookupService) SSL(ctx context.Context, domain string) (*SSLResult, error) {
	norm, err := l.domain(domain)
	if err != nil {
		return nil, err
	}
	if l.c.TLS == nil {
		return nil, fmt.Errorf("%w: tls lookups are disabled", ErrInvalidRequest)
	}
	cert := l.c.TLS.Certificate(ctx, norm, 0)
	return &SSLResult{
		Domain:   norm,
		Cert:     cert,
		Security: tlscert.AnalyzeSecurity(cert),
		Hostname: tlscert.CheckHostname(norm, cert),
	}, nil
}

func (l *LookupService) domain(raw string) (string, error) {
	norm, tt, err := scan.ParseTarget(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if tt != scan.TargetDomain {
		return "", fmt.Errorf("%w: %q is not a domain", ErrInvalidRequest, raw)
	}
	return norm, nil
}
