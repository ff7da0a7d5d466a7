// Package tlscert retrieves and grades the TLS certificate a host presents.
package tlscert

import (
	"context"
	"crypto/dsa" //nolint:staticcheck // still reported by legacy servers
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/cache"
	"github.com/exposechain/exposechain/internal/scan"
)

// DefaultPort is used when no port is given.
const DefaultPort = 443

// Config holds TLS collector settings.
type Config struct {
	Port     int
	Timeout  time.Duration
	CacheTTL time.Duration
	// RootCAs overrides the system roots. Nil uses the host's trust store.
	RootCAs *x509.CertPool
}

// Collector performs TLS handshakes and records what the server presented.
type Collector struct {
	port    int
	timeout time.Duration
	roots   *x509.CertPool
	cache   *cache.TTL[*scan.TLSCertificate]
	logger  *zap.Logger
	now     func() time.Time
}

// New returns a Collector.
func New(cfg Config, logger *zap.Logger) *Collector {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Collector{
		port:    cfg.Port,
		timeout: cfg.Timeout,
		roots:   cfg.RootCAs,
		cache:   cache.New[*scan.TLSCertificate](cfg.CacheTTL, 0),
		logger:  logger,
		now:     time.Now,
	}
}

// Port is the default port the collector dials.
func (c *Collector) Port() int { return c.port }

// Certificate performs a verified handshake with host on port (0 selects the
// configured default). Only successful handshakes are cached.
func (c *Collector) Certificate(ctx context.Context, host string, port int) *scan.TLSCertificate {
	if port == 0 {
		port = c.port
	}
	key := fmt.Sprintf("ssl:%s:%d", host, port)
	if res, ok := c.cache.Get(key); ok {
		c.logger.Debug("cache hit", zap.String("key", key))
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.timeout},
		Config: &tls.Config{
			ServerName: host,
			RootCAs:    c.roots,
			MinVersion: tls.VersionTLS10,
		},
	}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return &scan.TLSCertificate{Hostname: host, Port: port, Error: describeDialError(err, c.timeout)}
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return &scan.TLSCertificate{Hostname: host, Port: port, Error: "server presented no certificate"}
	}

	suite := tls.CipherSuiteName(state.CipherSuite)
	version := versionName(state.Version)
	res := &scan.TLSCertificate{
		Success:     true,
		Hostname:    host,
		Port:        port,
		Certificate: describe(state.PeerCertificates[0], c.now()),
		Version:     version,
		CipherSuite: &scan.CipherSuite{Name: suite, Protocol: version, Bits: cipherBits(suite)},
	}
	c.cache.Set(key, res)
	return res
}

func describeDialError(err error, timeout time.Duration) string {
	var netErr net.Error
	var dnsErr *net.DNSError
	var verifyErr *tls.CertificateVerificationError
	switch {
	case errors.As(err, &dnsErr):
		return "Could not resolve hostname"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Sprintf("Connection timeout after %s", timeout)
	case errors.As(err, &verifyErr):
		return "SSL Error: " + verifyErr.Error()
	default:
		return err.Error()
	}
}

// describe extracts the leaf certificate facts.
func describe(cert *x509.Certificate, now time.Time) *scan.Certificate {
	keyType, keyAlgo, keySize := keyInfo(cert.PublicKey)
	sans := append([]string{}, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		sans = append(sans, ip.String())
	}
	return &scan.Certificate{
		Subject:                 nameMap(cert.Subject),
		Issuer:                  nameMap(cert.Issuer),
		Version:                 cert.Version,
		SerialNumber:            cert.SerialNumber.String(),
		SignatureAlgorithm:      cert.SignatureAlgorithm.String(),
		PublicKeyAlgorithm:      keyAlgo,
		KeyType:                 keyType,
		KeySize:                 keySize,
		ValidFrom:               cert.NotBefore.UTC(),
		ValidUntil:              cert.NotAfter.UTC(),
		DaysUntilExpiration:     int(math.Floor(cert.NotAfter.Sub(now).Hours() / 24)),
		IsExpired:               now.After(cert.NotAfter),
		SubjectAlternativeNames: sans,
		SANCount:                len(sans),
	}
}

func nameMap(n pkix.Name) map[string]string {
	m := make(map[string]string)
	set := func(k string, vs []string) {
		if len(vs) > 0 {
			m[k] = vs[0]
		}
	}
	if n.CommonName != "" {
		m["commonName"] = n.CommonName
	}
	set("organizationName", n.Organization)
	set("organizationalUnitName", n.OrganizationalUnit)
	set("countryName", n.Country)
	set("stateOrProvinceName", n.Province)
	set("localityName", n.Locality)
	return m
}

func keyInfo(pub any) (keyType, algorithm string, size int) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return "RSA", "RSAPublicKey", k.N.BitLen()
	case *ecdsa.PublicKey:
		return "ECC", "EllipticCurvePublicKey", k.Curve.Params().BitSize
	case ed25519.PublicKey:
		return "Ed25519", "Ed25519PublicKey", 256
	case *dsa.PublicKey:
		return "DSA", "DSAPublicKey", k.P.BitLen()
	default:
		return "Unknown", "Unknown", 0
	}
}

func versionName(v uint16) string {
	switch v {
	case tls.VersionSSL30: //nolint:staticcheck // reported, never negotiated by choice
		return "SSLv3"
	case tls.VersionTLS10:
		return "TLSv1"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return fmt.Sprintf("0x%04x", v)
	}
}

func cipherBits(name string) int {
	switch {
	case strings.Contains(name, "AES_256"), strings.Contains(name, "CHACHA20"):
		return 256
	case strings.Contains(name, "3DES"):
		return 168
	case strings.Contains(name, "AES_128"), strings.Contains(name, "RC4_128"):
		return 128
	default:
		return 0
	}
}

// StartCacheEviction drops expired cache entries every interval until ctx is done.
func (c *Collector) StartCacheEviction(ctx context.Context, interval time.Duration) {
	c.cache.StartEviction(ctx, interval, c.logger)
}
