// Package whois looks up and interprets domain registration records.
package whois

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/cache"
	"github.com/exposechain/exposechain/internal/scan"
)

// Fetcher returns the raw WHOIS text for a domain.
type Fetcher interface {
	Whois(domain string, servers ...string) (string, error)
}

// ParseFunc turns raw WHOIS text into structured fields.
type ParseFunc func(text string) (whoisparser.WhoisInfo, error)

// Config holds WHOIS collector settings.
type Config struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Collector performs WHOIS lookups. Only successful results are cached.
type Collector struct {
	fetcher Fetcher
	parse   ParseFunc
	cache   *cache.TTL[*scan.Whois]
	logger  *zap.Logger
	now     func() time.Time
}

// New returns a Collector using a likexian/whois client.
func New(cfg Config, logger *zap.Logger) *Collector {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := whois.NewClient().SetTimeout(cfg.Timeout)
	return NewWithFetcher(client, whoisparser.Parse, cfg, logger)
}

// NewWithFetcher returns a Collector with explicit fetch and parse steps.
func NewWithFetcher(f Fetcher, parse ParseFunc, cfg Config, logger *zap.Logger) *Collector {
	return &Collector{
		fetcher: f,
		parse:   parse,
		cache:   cache.New[*scan.Whois](cfg.CacheTTL, 0),
		logger:  logger,
		now:     time.Now,
	}
}

// Lookup fetches and parses the WHOIS record for domain. Failures are
// reported in the result with Success=false.
func (c *Collector) Lookup(ctx context.Context, domain string) *scan.Whois {
	key := "whois:" + domain
	if res, ok := c.cache.Get(key); ok {
		c.logger.Debug("cache hit", zap.String("key", key))
		return res
	}

	raw, err := c.fetch(ctx, domain)
	if err != nil {
		return failure(domain, err)
	}
	info, err := c.parse(raw)
	if err != nil {
		return failure(domain, err)
	}

	res := fromInfo(domain, info, c.now())
	c.cache.Set(key, res)
	return res
}

// fetch runs the blocking client call so that ctx cancellation returns early.
// The client's own timeout bounds the abandoned call.
func (c *Collector) fetch(ctx context.Context, domain string) (string, error) {
	type result struct {
		raw string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		raw, err := c.fetcher.Whois(domain)
		ch <- result{raw, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.raw, r.err
	}
}

func failure(domain string, err error) *scan.Whois {
	msg := err.Error()
	if errors.Is(err, whoisparser.ErrNotFoundDomain) {
		msg = "domain not found"
	}
	return &scan.Whois{
		Domain:  domain,
		Error:   msg,
		Message: "WHOIS lookup failed. Domain may not exist or WHOIS data unavailable.",
	}
}

func fromInfo(domain string, info whoisparser.WhoisInfo, now time.Time) *scan.Whois {
	res := &scan.Whois{Success: true, Domain: domain}

	if d := info.Domain; d != nil {
		res.CreationDate = utc(d.CreatedDateInTime)
		res.ExpirationDate = utc(d.ExpirationDateInTime)
		res.UpdatedDate = utc(d.UpdatedDateInTime)
		res.Status = lowerAll(d.Status)
		res.NameServers = lowerAll(d.NameServers)
	}
	if r := info.Registrar; r != nil {
		res.Registrar = r.Name
	}
	if r := info.Registrant; r != nil {
		res.Registrant = scan.Registrant{
			Name:         r.Name,
			Organization: r.Organization,
			Email:        r.Email,
			Country:      r.Country,
			State:        r.Province,
			City:         r.City,
		}
	}

	if res.CreationDate != nil {
		age := daysBetween(*res.CreationDate, now)
		res.DomainAgeDays = &age
	}
	if res.ExpirationDate != nil {
		left := daysBetween(now, *res.ExpirationDate)
		res.DaysUntilExpiration = &left
	}
	return res
}

// daysBetween counts whole days from a to b, flooring so that a moment in
// the past is at least one day negative.
func daysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}

func utc(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}

// AnalyzeDomainStatus interprets a WHOIS record: overall status, a coarse
// risk level and human-readable insights.
func AnalyzeDomainStatus(w *scan.Whois) *scan.DomainAnalysis {
	if w == nil || !w.Success {
		return &scan.DomainAnalysis{Status: "unknown", RiskLevel: "unknown", Insights: []string{}}
	}

	insights := []string{}
	risk := "low"

	if age := w.DomainAgeDays; age != nil {
		switch {
		case *age < 30:
			insights = append(insights, "Very new domain (less than 30 days old)")
			risk = "medium"
		case *age < 180:
			insights = append(insights, "Relatively new domain (less than 6 months old)")
		case *age > 3650:
			insights = append(insights, "Well-established domain (over 10 years old)")
		}
	}

	status := "unknown"
	if exp := w.DaysUntilExpiration; exp != nil {
		status = "active"
		switch {
		case *exp < 0:
			insights = append(insights, "Domain has expired!")
			risk = "high"
		case *exp < 30:
			insights = append(insights, "Domain expires soon (less than 30 days)")
			risk = "medium"
		case *exp < 90:
			insights = append(insights, "Domain expires in less than 90 days")
		}
		if *exp <= 0 {
			status = "expired"
		}
	}

	if strings.Contains(strings.ToLower(w.Registrant.Name), "privacy") {
		insights = append(insights, "Domain uses privacy protection service")
	}
	for _, s := range w.Status {
		if strings.Contains(strings.ToLower(s), "lock") {
			insights = append(insights, "Domain has transfer/update locks (good security)")
			break
		}
	}

	return &scan.DomainAnalysis{
		Status:              status,
		RiskLevel:           risk,
		Insights:            insights,
		DomainAgeDays:       w.DomainAgeDays,
		DaysUntilExpiration: w.DaysUntilExpiration,
	}
}

// StartCacheEviction drops expired cache entries every interval until ctx is done.
func (c *Collector) StartCacheEviction(ctx context.Context, interval time.Duration) {
	c.cache.StartEviction(ctx, interval, c.logger)
}
