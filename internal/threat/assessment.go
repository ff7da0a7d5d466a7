package threat

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// classify applies the pattern overrides in priority order, then falls back
// to the score bands.
func classify(score int, f Features) Category {
	age := f.DomainAgeDays
	if age != nil && *age < 30 && !f.hasSSL() {
		return CategoryPhishing
	}
	if f.DomainStatus == "expired" {
		return CategorySuspicious
	}
	if f.ProxyCount > 0 && age != nil && *age < 90 {
		return CategoryMalwareHosting
	}
	return categoryFor(score)
}

// confidence is the fraction of availability checks the features satisfy,
// rounded to two decimals.
func confidence(f Features) float64 {
	checks := []bool{
		f.DomainAgeDays != nil,
		f.WhoisAvailable,
		f.SSLPresent != nil,
		f.SSLScore != nil,
		f.TotalIPs > 0,
		f.DNSACount > 0,
		f.DNSTXTCount > 0,
	}
	n := 0
	for _, ok := range checks {
		if ok {
			n++
		}
	}
	return math.Round(float64(n)/float64(len(checks))*100) / 100
}

var categoryFraming = map[Category]string{
	CategoryLegitimate:     "appears to be a legitimate and well-configured domain",
	CategorySuspicious:     "shows some suspicious characteristics that warrant caution",
	CategoryMalwareHosting: "exhibits patterns consistent with potential malware hosting",
	CategoryPhishing:       "displays strong indicators of phishing or malicious activity",
}

// narrative renders the assessment. Sentence order is fixed.
func narrative(score int, cat Category, f Features, factors []Factor) string {
	framing, ok := categoryFraming[cat]
	if !ok {
		framing = "has unknown risk profile"
	}
	parts := []string{
		fmt.Sprintf("This domain %s.", framing),
		fmt.Sprintf("The overall threat risk score is %d/100.", score),
	}

	if len(factors) > 0 {
		top := make([]Factor, len(factors))
		copy(top, factors)
		sort.SliceStable(top, func(i, j int) bool { return top[i].Points > top[j].Points })
		if len(top) > 3 {
			top = top[:3]
		}
		descs := make([]string, len(top))
		for i, fc := range top {
			descs[i] = fc.Description
		}
		parts = append(parts, "Key contributing factors: "+strings.Join(descs, "; ")+".")
	}

	if f.DomainAgeDays != nil {
		age := *f.DomainAgeDays
		switch {
		case age > 3650:
			parts = append(parts, fmt.Sprintf(
				"The domain is well-established at approximately %d years old, which is a positive trust indicator.",
				age/365))
		case age > 365:
			parts = append(parts, fmt.Sprintf("The domain has been registered for %d days.", age))
		case age < 30:
			parts = append(parts,
				"WARNING: This is a very recently registered domain. "+
					"New domains are frequently used for malicious purposes.")
		}
	}

	switch {
	case f.hasSSL() && f.SSLScore != nil && *f.SSLScore >= 85:
		parts = append(parts, "SSL/TLS configuration is strong and follows modern security standards.")
	case !f.hasSSL():
		parts = append(parts,
			"WARNING: No SSL/TLS certificate was detected. "+
				"All data transmitted to this domain is unencrypted.")
	}

	if f.ProxyCount > 0 {
		parts = append(parts,
			"Proxy or VPN infrastructure was detected, which may indicate "+
				"an attempt to conceal the true hosting location.")
	}

	return strings.Join(parts, " ")
}

var categoryAdvice = map[Category][]string{
	CategoryPhishing: {
		"DANGER: This domain shows phishing indicators - exercise extreme caution",
		"Do NOT enter any personal or financial information on this domain",
		"Report this domain to your organization's security team",
	},
	CategoryMalwareHosting: {
		"WARNING: This domain may be hosting malicious content",
		"Avoid downloading any files from this domain",
		"Run any previously downloaded files through antivirus scanning",
	},
	CategorySuspicious: {
		"CAUTION: This domain has some suspicious characteristics",
		"Verify the domain owner independently before trusting it",
		"Monitor for any unusual activity when interacting with this domain",
	},
}

var cleanBillOfHealth = []string{
	"This domain appears well-configured and trustworthy",
	"Standard security practices are properly implemented",
	"No significant risk indicators were detected",
}

// recommendations returns category advice followed by targeted advice. The
// result is never empty.
func recommendations(cat Category, f Features) []string {
	var recs []string
	recs = append(recs, categoryAdvice[cat]...)

	if !f.hasSSL() {
		recs = append(recs, "No HTTPS detected - do not transmit any sensitive data")
	}
	if !f.HasSPF {
		recs = append(recs, "No SPF record found - emails claiming to be from this domain could be spoofed")
	}
	if !f.HasDMARC {
		recs = append(recs, "No DMARC record found - email authentication is incomplete")
	}
	if age := f.DomainAgeDays; age != nil && *age < 90 {
		recs = append(recs, "Very recently registered domain - new domains carry higher risk")
	}
	if exp := f.DaysUntilExpiration; exp != nil && *exp > 0 && *exp < 30 {
		recs = append(recs, "Domain expires soon - verify it is still actively maintained")
	}

	if len(recs) == 0 {
		recs = append(recs, cleanBillOfHealth...)
	}
	return recs
}
