package tlscert

import (
	"fmt"
	"strings"

	"github.com/exposechain/exposechain/internal/scan"
)

var outdatedProtocols = map[string]bool{
	"SSLv2": true, "SSLv3": true, "TLSv1": true, "TLSv1.1": true,
}

// AnalyzeSecurity grades a handshake result. The score starts at 100 and is
// reduced per weakness; a failed handshake scores 0.
func AnalyzeSecurity(c *scan.TLSCertificate) *scan.TLSSecurity {
	if c == nil || !c.Success || c.Certificate == nil {
		return &scan.TLSSecurity{
			SecurityScore:   0,
			RiskLevel:       "unknown",
			Issues:          []string{"Certificate could not be retrieved"},
			Recommendations: []string{},
		}
	}

	cert := c.Certificate
	var issues, recs []string
	score := 100

	days := cert.DaysUntilExpiration
	switch {
	case cert.IsExpired:
		issues = append(issues, "Certificate has EXPIRED")
		score -= 50
	case days < 7:
		issues = append(issues, fmt.Sprintf("Certificate expires in %d days - URGENT renewal needed", days))
		score -= 30
	case days < 30:
		issues = append(issues, fmt.Sprintf("Certificate expires in %d days - Renewal recommended", days))
		score -= 15
	}

	if cert.KeySize > 0 {
		switch {
		case cert.KeyType == "RSA" && cert.KeySize < 2048:
			issues = append(issues, fmt.Sprintf("Weak RSA key: %d bits (minimum 2048 recommended)", cert.KeySize))
			score -= 25
		case cert.KeyType == "ECC" && cert.KeySize < 256:
			issues = append(issues, fmt.Sprintf("Weak ECC key: %d bits (minimum 256 recommended)", cert.KeySize))
			score -= 25
		}
	}

	if strings.Contains(strings.ToLower(cert.SignatureAlgorithm), "sha1") {
		issues = append(issues, "Using deprecated SHA-1 signature algorithm")
		score -= 20
		recs = append(recs, "Upgrade to SHA-256 or better")
	}

	if outdatedProtocols[c.Version] {
		issues = append(issues, "Using outdated protocol: "+c.Version)
		score -= 20
		recs = append(recs, "Upgrade to TLS 1.2 or TLS 1.3")
	}

	if cs := c.CipherSuite; cs != nil && (strings.Contains(cs.Name, "RC4") || strings.Contains(cs.Name, "DES")) {
		issues = append(issues, "Weak cipher suite: "+cs.Name)
		score -= 15
	}

	if score < 0 {
		score = 0
	}
	if len(issues) == 0 {
		issues = []string{"No major issues detected"}
	}
	if len(recs) == 0 {
		recs = []string{"Certificate configuration is secure"}
	}

	expires := days
	return &scan.TLSSecurity{
		SecurityScore:   score,
		RiskLevel:       riskLevel(score),
		Issues:          issues,
		Recommendations: recs,
		Details: &scan.TLSDetails{
			KeyType:         cert.KeyType,
			KeyStrength:     keyStrength(cert.KeyType, cert.KeySize),
			ProtocolVersion: c.Version,
			ExpiresInDays:   &expires,
			IsValid:         !cert.IsExpired,
		},
	}
}

func riskLevel(score int) string {
	switch {
	case score >= 85:
		return "low"
	case score >= 70:
		return "medium"
	case score >= 50:
		return "high"
	default:
		return "critical"
	}
}

func keyStrength(keyType string, size int) string {
	if size == 0 {
		return "Unknown"
	}
	switch keyType {
	case "RSA":
		switch {
		case size >= 3072:
			return "Strong (RSA 3072+ bit)"
		case size >= 2048:
			return "Adequate (RSA 2048 bit)"
		default:
			return "Weak"
		}
	case "ECC":
		switch {
		case size >= 384:
			return "Very Strong (ECC 384+ bit)"
		case size >= 256:
			return "Strong (ECC 256 bit ~ RSA 3072 bit)"
		default:
			return "Weak"
		}
	}
	return "Unknown"
}

// HostnameMatch reports whether a certificate covers a hostname.
type HostnameMatch struct {
	Matches          bool       `json:"matches"`
	MatchedVia       string     `json:"matched_via,omitempty"`
	MatchedValue     string     `json:"matched_value,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	CertificateNames *CertNames `json:"certificate_names,omitempty"`
}

// CertNames lists the names a certificate was issued for.
type CertNames struct {
	CommonName string   `json:"common_name"`
	SANs       []string `json:"sans"`
}

// CheckHostname matches host against the certificate's common name and
// subject alternative names. A wildcard covers exactly one leftmost label.
func CheckHostname(host string, c *scan.TLSCertificate) HostnameMatch {
	if c == nil || !c.Success || c.Certificate == nil {
		return HostnameMatch{Reason: "Certificate not available"}
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	cn := c.Certificate.Subject["commonName"]
	sans := c.Certificate.SubjectAlternativeNames

	if strings.EqualFold(host, cn) {
		return HostnameMatch{Matches: true, MatchedVia: "common_name", MatchedValue: cn}
	}
	if wildcardMatch(host, cn) {
		return HostnameMatch{Matches: true, MatchedVia: "wildcard_common_name", MatchedValue: cn}
	}
	for _, san := range sans {
		if strings.EqualFold(host, san) {
			return HostnameMatch{Matches: true, MatchedVia: "subject_alternative_name", MatchedValue: san}
		}
		if wildcardMatch(host, san) {
			return HostnameMatch{Matches: true, MatchedVia: "wildcard_san", MatchedValue: san}
		}
	}

	shown := sans
	if len(shown) > 5 {
		shown = shown[:5]
	}
	return HostnameMatch{
		Reason:           fmt.Sprintf("Hostname '%s' not found in certificate", host),
		CertificateNames: &CertNames{CommonName: cn, SANs: shown},
	}
}

func wildcardMatch(host, pattern string) bool {
	if !strings.HasPrefix(pattern, "*.") {
		return false
	}
	suffix := strings.ToLower(pattern[1:])
	if !strings.HasSuffix(host, suffix) {
		return false
	}
	label := strings.TrimSuffix(host, suffix)
	return label != "" && !strings.Contains(label, ".")
}
