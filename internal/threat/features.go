package threat

import (
	"strings"

	"github.com/exposechain/exposechain/internal/scan"
)

// Features are the signals extracted from a bundle. Pointer fields are nil
// when the underlying section was not collected.
type Features struct {
	// Domain maturity
	DomainAgeDays        *int   `json:"domain_age_days"`
	DaysUntilExpiration  *int   `json:"days_until_expiration"`
	HasPrivacyProtection bool   `json:"has_privacy_protection"`
	WhoisAvailable       bool   `json:"whois_available"`
	DomainStatus         string `json:"domain_status"`

	// TLS posture
	SSLPresent     *bool  `json:"ssl_present"`
	SSLScore       *int   `json:"ssl_score"`
	SSLRiskLevel   string `json:"ssl_risk_level"`
	SSLProtocol    string `json:"ssl_protocol"`
	SSLKeyType     string `json:"ssl_key_type"`
	SSLKeyStrength string `json:"ssl_key_strength"`
	SSLDaysLeft    *int   `json:"ssl_days_left"`
	SSLValid       bool   `json:"ssl_valid"`

	// Infrastructure
	TotalIPs             int    `json:"total_ips"`
	IsCDN                bool   `json:"is_cdn"`
	HostingPattern       string `json:"hosting_pattern"`
	CountryCount         int    `json:"country_count"`
	HostingProviderCount int    `json:"hosting_provider_count"`
	ProxyCount           int    `json:"proxy_count"`

	// DNS hygiene
	DNSACount    int  `json:"dns_a_count"`
	DNSMXPresent bool `json:"dns_mx_present"`
	DNSNSCount   int  `json:"dns_ns_count"`
	DNSTXTCount  int  `json:"dns_txt_count"`
	HasSPF       bool `json:"has_spf"`
	HasDMARC     bool `json:"has_dmarc"`
}

// hasSSL reports whether a certificate was positively observed. An unknown
// presence counts as absent.
func (f Features) hasSSL() bool {
	return f.SSLPresent != nil && *f.SSLPresent
}

// Extract derives Features from b. A nil bundle yields zero-signal features.
func Extract(b *scan.Bundle) Features {
	f := Features{
		DomainStatus: "unknown",
		SSLRiskLevel: "unknown",
	}
	if b == nil {
		return f
	}

	if w := b.WhoisLookup; w != nil {
		f.DomainAgeDays = copyInt(w.DomainAgeDays)
		f.DaysUntilExpiration = copyInt(w.DaysUntilExpiration)
		f.HasPrivacyProtection = strings.Contains(strings.ToLower(w.Registrant.Name), "privacy")
		f.WhoisAvailable = w.Success
	}
	if da := b.DomainAnalysis; da != nil && da.Status != "" {
		f.DomainStatus = da.Status
	}

	if c := b.SSLCertificate; c != nil {
		present := c.Success
		f.SSLPresent = &present
	}
	if sa := b.SSLSecurityAnalysis; sa != nil {
		score := sa.SecurityScore
		f.SSLScore = &score
		if sa.RiskLevel != "" {
			f.SSLRiskLevel = sa.RiskLevel
		}
		if d := sa.Details; d != nil {
			f.SSLProtocol = d.ProtocolVersion
			f.SSLKeyType = d.KeyType
			f.SSLKeyStrength = d.KeyStrength
			f.SSLDaysLeft = copyInt(d.ExpiresInDays)
			f.SSLValid = d.IsValid
		}
	}

	if g := b.Geolocation; g != nil {
		f.TotalIPs = g.TotalIPs
		for _, loc := range g.IPLocations {
			if loc != nil && loc.Success && loc.Flags.IsProxy {
				f.ProxyCount++
			}
		}
	}
	if h := b.HostingAnalysis; h != nil {
		f.IsCDN = h.IsCDN
		f.HostingPattern = h.Pattern
		f.CountryCount = len(h.Countries)
		f.HostingProviderCount = h.HostingProviderCount
	}

	if d := b.DNSLookup; d != nil {
		r := d.Records
		if r.A != nil {
			f.DNSACount = r.A.Count
		}
		if r.MX != nil {
			f.DNSMXPresent = r.MX.Success
		}
		if r.NS != nil {
			f.DNSNSCount = r.NS.Count
		}
		if r.TXT != nil {
			f.DNSTXTCount = r.TXT.Count
			parts := make([]string, 0, len(r.TXT.Records))
			for _, rec := range r.TXT.Records {
				parts = append(parts, rec.Data)
			}
			txt := strings.ToLower(strings.Join(parts, " "))
			f.HasSPF = strings.Contains(txt, "v=spf1")
			f.HasDMARC = strings.Contains(txt, "_dmarc") || strings.Contains(txt, "v=dmarc1")
		}
	}

	return f
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
