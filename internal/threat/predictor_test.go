package threat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/scan"
	"github.com/exposechain/exposechain/internal/threat"
)

func intPtr(v int) *int { return &v }

// healthyBundle describes a mature, well-configured domain.
func healthyBundle() *scan.Bundle {
	return &scan.Bundle{
		Target:     "example.com",
		TargetType: scan.TargetDomain,
		WhoisLookup: &scan.Whois{
			Success:             true,
			Domain:              "example.com",
			Registrant:          scan.Registrant{Name: "Example Corp"},
			DomainAgeDays:       intPtr(5000),
			DaysUntilExpiration: intPtr(200),
		},
		DomainAnalysis: &scan.DomainAnalysis{Status: "active", RiskLevel: "low"},
		SSLCertificate: &scan.TLSCertificate{Success: true, Hostname: "example.com", Port: 443},
		SSLSecurityAnalysis: &scan.TLSSecurity{
			SecurityScore: 100,
			RiskLevel:     "low",
			Details: &scan.TLSDetails{
				KeyType:         "ECC",
				KeyStrength:     "Strong (ECC 256 bit ~ RSA 3072 bit)",
				ProtocolVersion: "TLSv1.3",
				ExpiresInDays:   intPtr(60),
				IsValid:         true,
			},
		},
		Geolocation: &scan.Geolocation{
			TotalIPs: 2,
			IPLocations: map[string]*scan.IPLocation{
				"192.0.2.1": {Success: true, IP: "192.0.2.1"},
				"192.0.2.2": {Success: true, IP: "192.0.2.2"},
			},
		},
		HostingAnalysis: &scan.HostingAnalysis{Pattern: "Centralized", Countries: []string{"US"}},
		DNSLookup: &scan.DNSLookup{
			Target:     "example.com",
			TargetType: scan.TargetDomain,
			Records: scan.DNSRecords{
				A:  &scan.RecordSet{Success: true, RecordType: "A", Count: 2, Records: []scan.DNSRecord{{IP: "192.0.2.1"}, {IP: "192.0.2.2"}}},
				MX: &scan.RecordSet{Success: true, RecordType: "MX", Count: 1, Records: []scan.DNSRecord{{Priority: 10, MailServer: "mx.example.com"}}},
				NS: &scan.RecordSet{Success: true, RecordType: "NS", Count: 2},
				TXT: &scan.RecordSet{Success: true, RecordType: "TXT", Count: 2, Records: []scan.DNSRecord{
					{Data: "v=spf1 include:_spf.example.com ~all"},
					{Data: "v=DMARC1; p=reject"},
				}},
			},
		},
	}
}

func factorRules(r *threat.Report) []string {
	out := make([]string, len(r.Factors))
	for i, f := range r.Factors {
		out[i] = f.Rule
	}
	return out
}

func TestAnalyze_EmptyBundle(t *testing.T) {
	p := threat.NewPredictor(zap.NewNop())

	r := p.Analyze(&scan.Bundle{})

	assert.Equal(t, 22, r.OverallRiskScore)
	assert.Equal(t, threat.CategorySuspicious, r.ThreatCategory)
	assert.Equal(t, threat.LevelMedium, r.ThreatLevel)
	assert.Equal(t, 0.0, r.Confidence)
	assert.Equal(t, []string{"domain_age", "ssl_present", "dns_spf", "dns_dmarc", "dns_mx_present"}, factorRules(r))
	assert.Equal(t, 6.0, r.Factors[0].Points)
	assert.Equal(t, threat.SeverityMedium, r.Factors[0].Severity)
	assert.Equal(t, 0.9, r.Factors[4].Points)

	assert.Equal(t,
		"This domain shows some suspicious characteristics that warrant caution. "+
			"The overall threat risk score is 22/100. "+
			"Key contributing factors: No SSL/TLS certificate detected; "+
			"Domain age unknown (WHOIS data unavailable); "+
			"No SPF record (email spoofing possible). "+
			"WARNING: No SSL/TLS certificate was detected. "+
			"All data transmitted to this domain is unencrypted.",
		r.Narrative)

	assert.Equal(t, []string{
		"CAUTION: This domain has some suspicious characteristics",
		"Verify the domain owner independently before trusting it",
		"Monitor for any unusual activity when interacting with this domain",
		"No HTTPS detected - do not transmit any sensitive data",
		"No SPF record found - emails claiming to be from this domain could be spoofed",
		"No DMARC record found - email authentication is incomplete",
	}, r.Recommendations)

	assert.Equal(t, "unknown", r.Features.DomainStatus)
	assert.Nil(t, r.Features.SSLPresent)
	assert.Equal(t, threat.ModelVersion, r.ModelVersion)
	assert.False(t, r.AnalyzedAt.IsZero())
}

func TestAnalyze_NilBundleMatchesEmpty(t *testing.T) {
	p := threat.NewPredictor(nil)

	a := p.Analyze(nil)
	b := p.Analyze(&scan.Bundle{})

	assert.Equal(t, b.OverallRiskScore, a.OverallRiskScore)
	assert.Equal(t, b.Factors, a.Factors)
	assert.Equal(t, b.Confidence, a.Confidence)
}

func TestAnalyze_HealthyDomainIsLegitimate(t *testing.T) {
	r := threat.NewPredictor(zap.NewNop()).Analyze(healthyBundle())

	assert.Equal(t, 0, r.OverallRiskScore)
	assert.Equal(t, threat.CategoryLegitimate, r.ThreatCategory)
	assert.Equal(t, threat.LevelLow, r.ThreatLevel)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Empty(t, r.Factors)
	assert.Equal(t, []string{
		"This domain appears well-configured and trustworthy",
		"Standard security practices are properly implemented",
		"No significant risk indicators were detected",
	}, r.Recommendations)
	assert.Equal(t,
		"This domain appears to be a legitimate and well-configured domain. "+
			"The overall threat risk score is 0/100. "+
			"The domain is well-established at approximately 13 years old, which is a positive trust indicator. "+
			"SSL/TLS configuration is strong and follows modern security standards.",
		r.Narrative)
}

func TestAnalyze_NewDomainWithoutTLSIsPhishing(t *testing.T) {
	b := healthyBundle()
	b.WhoisLookup.DomainAgeDays = intPtr(10)
	b.SSLCertificate = &scan.TLSCertificate{Success: false, Error: "connection refused"}
	b.SSLSecurityAnalysis = nil

	r := threat.NewPredictor(zap.NewNop()).Analyze(b)

	// 15 (new domain) + 10 (no TLS) sits in the suspicious band; the pattern
	// override wins.
	assert.Equal(t, 25, r.OverallRiskScore)
	assert.Equal(t, threat.CategoryPhishing, r.ThreatCategory)
	assert.Equal(t, threat.LevelMedium, r.ThreatLevel)
	require.NotEmpty(t, r.Recommendations)
	assert.Equal(t, "DANGER: This domain shows phishing indicators - exercise extreme caution", r.Recommendations[0])
	assert.Contains(t, r.Recommendations, "Very recently registered domain - new domains carry higher risk")
	assert.Contains(t, r.Narrative, "WARNING: This is a very recently registered domain.")
	assert.InDelta(t, 6.0/7.0, r.Confidence, 0.005)
}

func TestAnalyze_PhishingOverrideRegardlessOfScore(t *testing.T) {
	for _, age := range []int{0, 1, 29} {
		b := &scan.Bundle{WhoisLookup: &scan.Whois{Success: true, DomainAgeDays: intPtr(age)}}
		r := threat.NewPredictor(nil).Analyze(b)
		assert.Equal(t, threat.CategoryPhishing, r.ThreatCategory, "age %d", age)
	}
}

func TestAnalyze_ExpiredDomainIsSuspicious(t *testing.T) {
	b := healthyBundle()
	b.WhoisLookup.DaysUntilExpiration = intPtr(-5)
	b.DomainAnalysis.Status = "expired"

	r := threat.NewPredictor(nil).Analyze(b)

	assert.Equal(t, 8, r.OverallRiskScore)
	assert.Equal(t, threat.CategorySuspicious, r.ThreatCategory)
	// Level is banded on the score alone.
	assert.Equal(t, threat.LevelLow, r.ThreatLevel)
	require.Len(t, r.Factors, 1)
	assert.Equal(t, "Domain has EXPIRED", r.Factors[0].Description)
	assert.Equal(t, threat.SeverityCritical, r.Factors[0].Severity)
	assert.NotContains(t, r.Recommendations, "Domain expires soon - verify it is still actively maintained")
}

func TestAnalyze_ProxyOnYoungDomainIsMalwareHosting(t *testing.T) {
	b := healthyBundle()
	b.WhoisLookup.DomainAgeDays = intPtr(60)
	b.Geolocation.IPLocations["192.0.2.1"].Flags.IsProxy = true
	// Failed lookups never count as proxies.
	b.Geolocation.IPLocations["192.0.2.9"] = &scan.IPLocation{Success: false, Flags: scan.IPFlags{IsProxy: true}}

	r := threat.NewPredictor(nil).Analyze(b)

	assert.Equal(t, 1, r.Features.ProxyCount)
	assert.Equal(t, 15, r.OverallRiskScore)
	assert.Equal(t, threat.CategoryMalwareHosting, r.ThreatCategory)
	assert.Contains(t, r.Narrative, "Proxy or VPN infrastructure was detected")
	assert.Equal(t, "WARNING: This domain may be hosting malicious content", r.Recommendations[0])
}

func TestAnalyze_ProxyPointsAreCapped(t *testing.T) {
	b := healthyBundle()
	for _, loc := range b.Geolocation.IPLocations {
		loc.Flags.IsProxy = true
	}
	b.Geolocation.IPLocations["192.0.2.3"] = &scan.IPLocation{Success: true, Flags: scan.IPFlags{IsProxy: true}}

	r := threat.NewPredictor(nil).Analyze(b)

	require.Len(t, r.Factors, 1)
	assert.Equal(t, "Proxy/VPN detected on 3 IP(s)", r.Factors[0].Description)
	assert.Equal(t, 10.0, r.Factors[0].Points)
}

func TestAnalyze_SSLScoreDeficitSeverity(t *testing.T) {
	tests := []struct {
		score    int
		points   float64
		severity threat.Severity
	}{
		{75, 4.5, threat.SeverityMedium},
		{70, 5.4, threat.SeverityMedium},
		{60, 7.2, threat.SeverityHigh},
		{0, 18, threat.SeverityHigh},
	}
	for _, tc := range tests {
		b := healthyBundle()
		b.SSLSecurityAnalysis.SecurityScore = tc.score

		r := threat.NewPredictor(nil).Analyze(b)

		require.Len(t, r.Factors, 1, "score %d", tc.score)
		assert.Equal(t, "ssl_score", r.Factors[0].Rule)
		assert.InDelta(t, tc.points, r.Factors[0].Points, 1e-9)
		assert.Equal(t, tc.severity, r.Factors[0].Severity)
	}
}

func TestAnalyze_TopFactorsTieBreakByRuleOrder(t *testing.T) {
	b := healthyBundle()
	b.WhoisLookup.DomainAgeDays = intPtr(100)      // 9.0
	b.WhoisLookup.DaysUntilExpiration = intPtr(-1) // 8.0
	b.SSLSecurityAnalysis.Details.ProtocolVersion = "TLSv1"
	b.SSLSecurityAnalysis.Details.ExpiresInDays = intPtr(3) // 4.8

	r := threat.NewPredictor(nil).Analyze(b)

	assert.Equal(t, []string{"domain_age", "domain_expiration", "ssl_protocol", "ssl_expiry"}, factorRules(r))
	assert.Contains(t, r.Narrative,
		"Key contributing factors: Relatively new domain (< 6 months); Domain has EXPIRED; Outdated SSL/TLS protocol: TLSv1.")
	assert.Equal(t, 30, r.OverallRiskScore)
}

func TestAnalyze_ExpiringSoonRecommendation(t *testing.T) {
	b := healthyBundle()
	b.WhoisLookup.DaysUntilExpiration = intPtr(10)

	r := threat.NewPredictor(nil).Analyze(b)

	assert.Contains(t, r.Recommendations, "Domain expires soon - verify it is still actively maintained")
	assert.Equal(t, "Domain expires within 30 days", r.Factors[0].Description)
	assert.Equal(t, 5.6, r.Factors[0].Points)
}

func TestAnalyze_PrivacyAndMissingMailRecords(t *testing.T) {
	b := healthyBundle()
	b.WhoisLookup.Registrant.Name = "Domains By Proxy, Privacy Service"
	b.DNSLookup.Records.TXT = &scan.RecordSet{Success: false, RecordType: "TXT"}
	b.DNSLookup.Records.MX = &scan.RecordSet{Success: false, RecordType: "MX"}

	r := threat.NewPredictor(nil).Analyze(b)

	assert.True(t, r.Features.HasPrivacyProtection)
	assert.Equal(t, []string{"domain_privacy", "dns_spf", "dns_dmarc", "dns_mx_present"}, factorRules(r))
	// 2 + 3 + 2 + 0.9
	assert.Equal(t, 8, r.OverallRiskScore)
	assert.InDelta(t, 6.0/7.0, r.Confidence, 0.005)
}

func TestAnalyze_Invariants(t *testing.T) {
	p := threat.NewPredictor(nil)
	bundles := []*scan.Bundle{nil, {}, healthyBundle()}

	worst := healthyBundle()
	worst.WhoisLookup.DomainAgeDays = intPtr(1)
	worst.WhoisLookup.DaysUntilExpiration = intPtr(-1)
	worst.WhoisLookup.Registrant.Name = "privacy"
	worst.SSLCertificate.Success = false
	worst.SSLSecurityAnalysis.SecurityScore = 0
	worst.SSLSecurityAnalysis.Details.ProtocolVersion = "SSLv3"
	worst.SSLSecurityAnalysis.Details.ExpiresInDays = intPtr(-10)
	for _, loc := range worst.Geolocation.IPLocations {
		loc.Flags.IsProxy = true
	}
	worst.DNSLookup.Records = scan.DNSRecords{}
	bundles = append(bundles, worst)

	for _, b := range bundles {
		r := p.Analyze(b)
		assert.GreaterOrEqual(t, r.OverallRiskScore, 0)
		assert.LessOrEqual(t, r.OverallRiskScore, 100)
		assert.GreaterOrEqual(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 1.0)
		assert.NotEmpty(t, r.Recommendations)
		assert.NotEmpty(t, r.Narrative)
	}
}

func TestCategory_Label(t *testing.T) {
	assert.Equal(t, "Potential Malware Hosting", threat.CategoryMalwareHosting.Label())
	assert.Equal(t, "Likely Phishing / Malicious", threat.CategoryPhishing.Label())
}
