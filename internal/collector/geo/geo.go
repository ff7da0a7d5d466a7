// Package geo geolocates IP addresses against local MaxMind databases and
// summarises where a target is hosted.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/cache"
	"github.com/exposechain/exposechain/internal/scan"
)

// ErrNoDatabase is reported when no City database is configured.
var ErrNoDatabase = errors.New("geolocation database not configured")

// Database is the subset of the MaxMind readers the collector uses.
type Database interface {
	City(ip net.IP) (*geoip2.City, error)
	ASN(ip net.IP) (*geoip2.ASN, error)
	Close() error
}

type mmdb struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

// Open opens a GeoLite2/GeoIP2 City database and, if asnPath is set, an ASN
// database.
func Open(cityPath, asnPath string) (Database, error) {
	if cityPath == "" {
		return nil, ErrNoDatabase
	}
	city, err := geoip2.Open(cityPath)
	if err != nil {
		return nil, fmt.Errorf("opening city database: %w", err)
	}
	db := &mmdb{city: city}
	if asnPath != "" {
		asn, err := geoip2.Open(asnPath)
		if err != nil {
			city.Close()
			return nil, fmt.Errorf("opening asn database: %w", err)
		}
		db.asn = asn
	}
	return db, nil
}

func (m *mmdb) City(ip net.IP) (*geoip2.City, error) { return m.city.City(ip) }

func (m *mmdb) ASN(ip net.IP) (*geoip2.ASN, error) {
	if m.asn == nil {
		return &geoip2.ASN{}, nil
	}
	return m.asn.ASN(ip)
}

func (m *mmdb) Close() error {
	err := m.city.Close()
	if m.asn != nil {
		if aerr := m.asn.Close(); err == nil {
			err = aerr
		}
	}
	return err
}

// Config holds geolocation collector settings.
type Config struct {
	CacheTTL time.Duration
}

// Collector resolves IP locations. A nil Database makes every lookup fail
// with ErrNoDatabase instead of disabling the section.
type Collector struct {
	db     Database
	cache  *cache.TTL[*scan.IPLocation]
	logger *zap.Logger
}

// New returns a Collector over db.
func New(db Database, cfg Config, logger *zap.Logger) *Collector {
	return &Collector{
		db:     db,
		cache:  cache.New[*scan.IPLocation](cfg.CacheTTL, 0),
		logger: logger,
	}
}

// Close releases the underlying database.
func (c *Collector) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Lookup geolocates a single IP. Failures are reported in the result.
func (c *Collector) Lookup(ctx context.Context, ipStr string) *scan.IPLocation {
	key := "geo:" + ipStr
	if res, ok := c.cache.Get(key); ok {
		return res
	}
	if err := ctx.Err(); err != nil {
		return &scan.IPLocation{IP: ipStr, Error: err.Error()}
	}

	ip := net.ParseIP(ipStr)
	switch {
	case ip == nil:
		return &scan.IPLocation{IP: ipStr, Error: "invalid query"}
	case ip.IsPrivate(), ip.IsLoopback(), ip.IsLinkLocalUnicast(), ip.IsUnspecified():
		return &scan.IPLocation{IP: ipStr, Error: "private range"}
	case c.db == nil:
		return &scan.IPLocation{IP: ipStr, Error: ErrNoDatabase.Error()}
	}

	city, err := c.db.City(ip)
	if err != nil {
		c.logger.Warn("geo: city lookup failed", zap.String("ip", ipStr), zap.Error(err))
		return &scan.IPLocation{IP: ipStr, Error: err.Error()}
	}
	if city.Country.IsoCode == "" && city.Continent.Code == "" {
		return &scan.IPLocation{IP: ipStr, Error: "reserved range"}
	}

	asn, err := c.db.ASN(ip)
	if err != nil {
		c.logger.Debug("geo: asn lookup failed", zap.String("ip", ipStr), zap.Error(err))
		asn = &geoip2.ASN{}
	}

	res := fromRecords(ipStr, city, asn)
	c.cache.Set(key, res)
	return res
}

func fromRecords(ip string, city *geoip2.City, asn *geoip2.ASN) *scan.IPLocation {
	loc := &scan.Location{
		Continent:     city.Continent.Names["en"],
		ContinentCode: city.Continent.Code,
		Country:       city.Country.Names["en"],
		CountryCode:   city.Country.IsoCode,
		City:          city.City.Names["en"],
		ZipCode:       city.Postal.Code,
		Timezone:      city.Location.TimeZone,
	}
	if len(city.Subdivisions) > 0 {
		loc.Region = city.Subdivisions[0].Names["en"]
		loc.RegionCode = city.Subdivisions[0].IsoCode
	}

	var asName string
	if asn.AutonomousSystemNumber != 0 {
		asName = fmt.Sprintf("AS%d %s", asn.AutonomousSystemNumber, asn.AutonomousSystemOrganization)
	}
	return &scan.IPLocation{
		Success:  true,
		IP:       ip,
		Location: loc,
		Coordinates: &scan.Coordinates{
			Latitude:  city.Location.Latitude,
			Longitude: city.Location.Longitude,
		},
		Network: &scan.Network{
			ISP:          asn.AutonomousSystemOrganization,
			Organization: asn.AutonomousSystemOrganization,
			ASNumber:     asn.AutonomousSystemNumber,
			ASName:       asName,
		},
		Flags: scan.IPFlags{
			IsProxy:   city.Traits.IsAnonymousProxy,
			IsHosting: datacenterASNs[asn.AutonomousSystemNumber],
		},
	}
}

// LookupIPs geolocates each distinct IP.
func (c *Collector) LookupIPs(ctx context.Context, ips []string) *scan.Geolocation {
	locs := make(map[string]*scan.IPLocation, len(ips))
	for _, ip := range ips {
		if _, ok := locs[ip]; ok {
			continue
		}
		locs[ip] = c.Lookup(ctx, ip)
	}
	return &scan.Geolocation{TotalIPs: len(locs), IPLocations: locs}
}

// LookupDomainIPs geolocates every address from successful A and AAAA lookups.
func (c *Collector) LookupDomainIPs(ctx context.Context, d *scan.DNSLookup) *scan.Geolocation {
	return c.LookupIPs(ctx, d.IPs())
}

// ── Hosting analysis ──────────────────────────────────────────────────────────

var cdnKeywords = []string{"cloudflare", "akamai", "fastly", "amazon", "google", "microsoft", "azure"}

// AnalyzeHosting summarises hosting spread, CDN use and datacenter or proxy
// flags across the geolocated IPs.
func AnalyzeHosting(g *scan.Geolocation) *scan.HostingAnalysis {
	if g == nil || len(g.IPLocations) == 0 {
		return &scan.HostingAnalysis{
			Pattern:   "No IP data available",
			Countries: []string{},
			Cities:    []string{},
			ISPs:      []string{},
			Insights:  []string{},
		}
	}

	countries := map[string]bool{}
	cities := map[string]bool{}
	isps := map[string]bool{}
	var hosting, proxies int
	isCDN := false

	for _, loc := range g.IPLocations {
		if loc == nil || !loc.Success {
			continue
		}
		if l := loc.Location; l != nil {
			if l.Country != "" {
				countries[l.Country] = true
			}
			if l.City != "" {
				cities[l.City] = true
			}
		}
		if n := loc.Network; n != nil && n.ISP != "" {
			isps[n.ISP] = true
			lower := strings.ToLower(n.ISP)
			for _, kw := range cdnKeywords {
				if strings.Contains(lower, kw) {
					isCDN = true
					break
				}
			}
		}
		if loc.Flags.IsHosting {
			hosting++
		}
		if loc.Flags.IsProxy {
			proxies++
		}
	}

	countryList := keys(countries)
	insights := []string{}
	switch {
	case len(countryList) > 1:
		insights = append(insights, fmt.Sprintf("Multi-country deployment: Servers in %d countries", len(countryList)))
	case len(countryList) == 1:
		insights = append(insights, "Single country deployment: "+countryList[0])
	}
	if isCDN {
		insights = append(insights, "Using CDN/Cloud provider")
	}
	if hosting == len(g.IPLocations) {
		insights = append(insights, "All IPs are from hosting/datacenter providers")
	}
	if proxies > 0 {
		insights = append(insights, fmt.Sprintf("Proxy/VPN detected on %d IP(s)", proxies))
	}

	pattern := "Centralized"
	if isCDN || len(countryList) > 1 {
		pattern = "CDN/Distributed"
	}
	return &scan.HostingAnalysis{
		Pattern:              pattern,
		Countries:            countryList,
		Cities:               keys(cities),
		ISPs:                 keys(isps),
		Insights:             insights,
		IsCDN:                isCDN,
		HostingProviderCount: hosting,
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// StartCacheEviction drops expired cache entries every interval until ctx is done.
func (c *Collector) StartCacheEviction(ctx context.Context, interval time.Duration) {
	c.cache.StartEviction(ctx, interval, c.logger)
}
