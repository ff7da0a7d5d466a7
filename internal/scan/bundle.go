// Package scan defines the per-target scan bundle assembled by the scanner
// and consumed by the threat predictor, plus target detection helpers.
//
// Every top-level section is optional. A nil section pointer means the
// collector for that section did not run or was not applicable, which is
// distinct from a section that ran and reported Success=false.
package scan

import "time"

// Bundle is everything collected for one target.
type Bundle struct {
	Target     string     `json:"target,omitempty"`
	TargetType TargetType `json:"target_type,omitempty"`
	ScanType   string     `json:"scan_type,omitempty"`
	StartedAt  time.Time  `json:"scan_initiated"`

	WhoisLookup         *Whois           `json:"whois_lookup,omitempty"`
	DomainAnalysis      *DomainAnalysis  `json:"domain_analysis,omitempty"`
	SSLCertificate      *TLSCertificate  `json:"ssl_certificate,omitempty"`
	SSLSecurityAnalysis *TLSSecurity     `json:"ssl_security_analysis,omitempty"`
	Geolocation         *Geolocation     `json:"geolocation,omitempty"`
	HostingAnalysis     *HostingAnalysis `json:"hosting_analysis,omitempty"`
	DNSLookup           *DNSLookup       `json:"dns_lookup,omitempty"`
}

// ── WHOIS ────────────────────────────────────────────────────────────────────

// Registrant is the registrant contact block of a WHOIS record.
type Registrant struct {
	Name         string `json:"name,omitempty"`
	Organization string `json:"organization,omitempty"`
	Email        string `json:"email,omitempty"`
	Country      string `json:"country,omitempty"`
	State        string `json:"state,omitempty"`
	City         string `json:"city,omitempty"`
}

// Whois is the parsed registration record for a domain.
type Whois struct {
	Success             bool       `json:"success"`
	Domain              string     `json:"domain"`
	Registrar           string     `json:"registrar,omitempty"`
	CreationDate        *time.Time `json:"creation_date,omitempty"`
	ExpirationDate      *time.Time `json:"expiration_date,omitempty"`
	UpdatedDate         *time.Time `json:"updated_date,omitempty"`
	Status              []string   `json:"status,omitempty"`
	NameServers         []string   `json:"name_servers,omitempty"`
	Registrant          Registrant `json:"registrant"`
	DomainAgeDays       *int       `json:"domain_age_days,omitempty"`
	DaysUntilExpiration *int       `json:"days_until_expiration,omitempty"`
	Error               string     `json:"error,omitempty"`
	Message             string     `json:"message,omitempty"`
}

// DomainAnalysis is the interpretation of a successful WHOIS record.
type DomainAnalysis struct {
	Status              string   `json:"status"`
	RiskLevel           string   `json:"risk_level"`
	Insights            []string `json:"insights"`
	DomainAgeDays       *int     `json:"domain_age_days,omitempty"`
	DaysUntilExpiration *int     `json:"days_until_expiration,omitempty"`
}

// ── TLS ──────────────────────────────────────────────────────────────────────

// Certificate describes the leaf certificate a server presented.
type Certificate struct {
	Subject                 map[string]string `json:"subject"`
	Issuer                  map[string]string `json:"issuer"`
	Version                 int               `json:"version"`
	SerialNumber            string            `json:"serial_number"`
	SignatureAlgorithm      string            `json:"signature_algorithm"`
	PublicKeyAlgorithm      string            `json:"public_key_algorithm"`
	KeyType                 string            `json:"key_type"`
	KeySize                 int               `json:"key_size,omitempty"`
	ValidFrom               time.Time         `json:"valid_from"`
	ValidUntil              time.Time         `json:"valid_until"`
	DaysUntilExpiration     int               `json:"days_until_expiration"`
	IsExpired               bool              `json:"is_expired"`
	SubjectAlternativeNames []string          `json:"subject_alternative_names"`
	SANCount                int               `json:"san_count"`
}

// CipherSuite is the negotiated cipher.
type CipherSuite struct {
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Bits     int    `json:"bits,omitempty"`
}

// TLSCertificate is the outcome of a TLS handshake against the target.
type TLSCertificate struct {
	Success     bool         `json:"success"`
	Hostname    string       `json:"hostname"`
	Port        int          `json:"port"`
	Certificate *Certificate `json:"certificate,omitempty"`
	Version     string       `json:"ssl_version,omitempty"`
	CipherSuite *CipherSuite `json:"cipher_suite,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// TLSDetails carries the facts the security score was derived from.
type TLSDetails struct {
	KeyType         string `json:"key_type"`
	KeyStrength     string `json:"key_strength"`
	ProtocolVersion string `json:"protocol_version"`
	ExpiresInDays   *int   `json:"expires_in_days"`
	IsValid         bool   `json:"is_valid"`
}

// TLSSecurity grades a TLSCertificate on a 0–100 scale.
type TLSSecurity struct {
	SecurityScore   int         `json:"security_score"`
	RiskLevel       string      `json:"risk_level"`
	Issues          []string    `json:"issues"`
	Recommendations []string    `json:"recommendations"`
	Details         *TLSDetails `json:"details,omitempty"`
}

// ── Geolocation ──────────────────────────────────────────────────────────────

// Location is the geographic part of an IP lookup.
type Location struct {
	Continent     string `json:"continent,omitempty"`
	ContinentCode string `json:"continent_code,omitempty"`
	Country       string `json:"country,omitempty"`
	CountryCode   string `json:"country_code,omitempty"`
	Region        string `json:"region,omitempty"`
	RegionCode    string `json:"region_code,omitempty"`
	City          string `json:"city,omitempty"`
	ZipCode       string `json:"zip_code,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Network describes who announces the IP.
type Network struct {
	ISP          string `json:"isp,omitempty"`
	Organization string `json:"organization,omitempty"`
	ASNumber     uint   `json:"as_number,omitempty"`
	ASName       string `json:"as_name,omitempty"`
}

// IPFlags are boolean reputation signals for an IP.
type IPFlags struct {
	IsMobile  bool `json:"is_mobile"`
	IsProxy   bool `json:"is_proxy"`
	IsHosting bool `json:"is_hosting"`
}

// IPLocation is the geolocation result for one IP.
type IPLocation struct {
	Success     bool         `json:"success"`
	IP          string       `json:"ip"`
	Location    *Location    `json:"location,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Network     *Network     `json:"network,omitempty"`
	Flags       IPFlags      `json:"flags"`
	Error       string       `json:"error,omitempty"`
}

// Geolocation collects lookups for every IP the target resolved to.
type Geolocation struct {
	TotalIPs    int                    `json:"total_ips"`
	IPLocations map[string]*IPLocation `json:"ip_locations"`
}

// HostingAnalysis summarises where and how the target is hosted.
type HostingAnalysis struct {
	Pattern              string   `json:"pattern"`
	Countries            []string `json:"countries"`
	Cities               []string `json:"cities"`
	ISPs                 []string `json:"isps"`
	Insights             []string `json:"insights"`
	IsCDN                bool     `json:"is_cdn"`
	HostingProviderCount int      `json:"hosting_provider_count"`
}

// ── DNS ──────────────────────────────────────────────────────────────────────

// DNSRecord is one answer. Only the fields relevant to the record type are set.
type DNSRecord struct {
	IP         string `json:"ip,omitempty"`
	Priority   uint16 `json:"priority,omitempty"`
	MailServer string `json:"mail_server,omitempty"`
	Nameserver string `json:"nameserver,omitempty"`
	Data       string `json:"data,omitempty"`
}

// RecordSet is the answer to a single query type.
type RecordSet struct {
	Success     bool        `json:"success"`
	RecordType  string      `json:"record_type"`
	Records     []DNSRecord `json:"records"`
	Count       int         `json:"count"`
	QueryTimeMS float64     `json:"query_time_ms,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// DNSRecords holds the forward lookups for a domain.
type DNSRecords struct {
	A    *RecordSet `json:"A,omitempty"`
	AAAA *RecordSet `json:"AAAA,omitempty"`
	MX   *RecordSet `json:"MX,omitempty"`
	NS   *RecordSet `json:"NS,omitempty"`
	TXT  *RecordSet `json:"TXT,omitempty"`
}

// ReverseDNS is a PTR lookup for an IP target.
type ReverseDNS struct {
	Success     bool     `json:"success"`
	IP          string   `json:"ip"`
	Hostnames   []string `json:"hostnames"`
	QueryTimeMS float64  `json:"query_time_ms,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// DNSLookup is the DNS section of a bundle. Domains get Records, IPs get
// Reverse.
type DNSLookup struct {
	Target           string      `json:"target"`
	TargetType       TargetType  `json:"target_type"`
	Timestamp        time.Time   `json:"timestamp"`
	Records          DNSRecords  `json:"dns_records"`
	Reverse          *ReverseDNS `json:"reverse_dns,omitempty"`
	TotalQueryTimeMS float64     `json:"total_query_time_ms,omitempty"`
}

// IPs returns the unique A and AAAA addresses from successful lookups, in
// answer order.
func (d *DNSLookup) IPs() []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]bool)
	var ips []string
	for _, rs := range []*RecordSet{d.Records.A, d.Records.AAAA} {
		if rs == nil || !rs.Success {
			continue
		}
		for _, r := range rs.Records {
			if r.IP != "" && !seen[r.IP] {
				seen[r.IP] = true
				ips = append(ips, r.IP)
			}
		}
	}
	return ips
}
