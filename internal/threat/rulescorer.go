package threat

import (
	"fmt"
	"math"
)

// weights scale each rule's base points (0–100) into its score contribution.
// infra_hosting, infra_diversity and dns_record_count carry a weight but no
// rule awards points against them.
var weights = map[string]float64{
	"domain_age":        0.15,
	"domain_expiration": 0.08,
	"domain_privacy":    0.05,
	"ssl_score":         0.18,
	"ssl_protocol":      0.08,
	"ssl_expiry":        0.06,
	"ssl_present":       0.10,
	"infra_proxy":       0.10,
	"infra_hosting":     0.03,
	"infra_diversity":   0.02,
	"dns_spf":           0.05,
	"dns_dmarc":         0.04,
	"dns_record_count":  0.03,
	"dns_mx_present":    0.03,
}

// outdatedProtocols are negotiated versions that count as broken.
var outdatedProtocols = map[string]bool{
	"SSLv2":   true,
	"SSLv3":   true,
	"TLSv1":   true,
	"TLSv1.1": true,
}

// hit is a triggered rule before weighting.
type hit struct {
	rule        string
	description string
	base        float64
	severity    Severity
}

// ruleFunc inspects the features and returns the hits for one concern.
type ruleFunc func(f Features) []hit

// rules run in this order; factor order in a Report follows it.
var rules = []ruleFunc{
	ruleDomainAge,
	ruleDomainExpiration,
	ruleDomainPrivacy,
	ruleSSLPresent,
	ruleSSLScore,
	ruleSSLProtocol,
	ruleSSLExpiry,
	ruleProxy,
	ruleSPF,
	ruleDMARC,
	ruleMX,
}

// score runs every rule and returns the aggregate 0–100 score with the
// triggered factors. Factor points are shown to one decimal; the aggregate
// sums the unrounded contributions.
func score(f Features) (int, []Factor) {
	var raw float64
	factors := []Factor{}
	for _, r := range rules {
		for _, h := range r(f) {
			pts := h.base * weights[h.rule]
			raw += pts
			factors = append(factors, Factor{
				Rule:        h.rule,
				Description: h.description,
				Points:      math.Round(pts*10) / 10,
				Severity:    h.severity,
			})
		}
	}

	total := int(math.Round(raw))
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	return total, factors
}

// ── Rules ─────────────────────────────────────────────────────────────────────

func ruleDomainAge(f Features) []hit {
	if f.DomainAgeDays == nil {
		return []hit{{"domain_age", "Domain age unknown (WHOIS data unavailable)", 40, SeverityMedium}}
	}
	age := *f.DomainAgeDays
	switch {
	case age < 30:
		return []hit{{"domain_age", "Very new domain (< 30 days)", 100, SeverityHigh}}
	case age < 180:
		return []hit{{"domain_age", "Relatively new domain (< 6 months)", 60, SeverityMedium}}
	case age < 365:
		return []hit{{"domain_age", "Domain less than 1 year old", 20, SeverityLow}}
	}
	return nil
}

func ruleDomainExpiration(f Features) []hit {
	if f.DaysUntilExpiration == nil {
		return nil
	}
	exp := *f.DaysUntilExpiration
	switch {
	case exp < 0:
		return []hit{{"domain_expiration", "Domain has EXPIRED", 100, SeverityCritical}}
	case exp < 30:
		return []hit{{"domain_expiration", "Domain expires within 30 days", 70, SeverityHigh}}
	case exp < 90:
		return []hit{{"domain_expiration", "Domain expires within 90 days", 30, SeverityMedium}}
	}
	return nil
}

func ruleDomainPrivacy(f Features) []hit {
	if !f.HasPrivacyProtection {
		return nil
	}
	return []hit{{"domain_privacy", "WHOIS privacy enabled (common for both legit and malicious)", 40, SeverityLow}}
}

func ruleSSLPresent(f Features) []hit {
	if f.hasSSL() {
		return nil
	}
	return []hit{{"ssl_present", "No SSL/TLS certificate detected", 100, SeverityHigh}}
}

// ruleSSLScore charges the full deficit below a perfect TLS score.
func ruleSSLScore(f Features) []hit {
	if f.SSLScore == nil {
		return nil
	}
	s := *f.SSLScore
	deficit := 100 - s
	if deficit <= 0 {
		return nil
	}
	sev := SeverityHigh
	if s >= 70 {
		sev = SeverityMedium
	}
	return []hit{{"ssl_score", fmt.Sprintf("SSL security score deficit (%d/100)", s), float64(deficit), sev}}
}

func ruleSSLProtocol(f Features) []hit {
	if !outdatedProtocols[f.SSLProtocol] {
		return nil
	}
	return []hit{{"ssl_protocol", "Outdated SSL/TLS protocol: " + f.SSLProtocol, 100, SeverityHigh}}
}

func ruleSSLExpiry(f Features) []hit {
	if f.SSLDaysLeft == nil {
		return nil
	}
	days := *f.SSLDaysLeft
	desc := fmt.Sprintf("SSL certificate expires in %d days", days)
	switch {
	case days < 7:
		return []hit{{"ssl_expiry", desc, 80, SeverityHigh}}
	case days < 30:
		return []hit{{"ssl_expiry", desc, 40, SeverityMedium}}
	}
	return nil
}

func ruleProxy(f Features) []hit {
	if f.ProxyCount <= 0 {
		return nil
	}
	base := math.Min(100, float64(f.ProxyCount)*60)
	return []hit{{"infra_proxy", fmt.Sprintf("Proxy/VPN detected on %d IP(s)", f.ProxyCount), base, SeverityMedium}}
}

func ruleSPF(f Features) []hit {
	if f.HasSPF {
		return nil
	}
	return []hit{{"dns_spf", "No SPF record (email spoofing possible)", 60, SeverityMedium}}
}

func ruleDMARC(f Features) []hit {
	if f.HasDMARC {
		return nil
	}
	return []hit{{"dns_dmarc", "No DMARC record (email authentication missing)", 50, SeverityLow}}
}

func ruleMX(f Features) []hit {
	if f.DNSMXPresent {
		return nil
	}
	return []hit{{"dns_mx_present", "No MX records (no email infrastructure)", 30, SeverityLow}}
}
