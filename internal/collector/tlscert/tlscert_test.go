package tlscert

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/scan"
)

// newTestServer serves a self-signed ECDSA P-256 certificate for 127.0.0.1
// that expires in ten days.
func newTestServer(t *testing.T) (*httptest.Server, *x509.CertPool, int) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(42),
		Subject:               pkix.Name{CommonName: "test.example", Organization: []string{"ExposeChain Test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10*24*time.Hour + time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"test.example", "*.apps.test.example"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.TLS = &tls.Config{Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}}}
	srv.StartTLS()
	t.Cleanup(srv.Close)

	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return srv, pool, port
}

func TestCertificate_Handshake(t *testing.T) {
	_, pool, port := newTestServer(t)
	c := New(Config{Port: port, Timeout: 5 * time.Second, RootCAs: pool}, zap.NewNop())

	res := c.Certificate(context.Background(), "127.0.0.1", 0)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, port, res.Port)
	assert.Equal(t, "TLSv1.3", res.Version)
	require.NotNil(t, res.CipherSuite)
	assert.NotEmpty(t, res.CipherSuite.Name)

	cert := res.Certificate
	require.NotNil(t, cert)
	assert.Equal(t, "test.example", cert.Subject["commonName"])
	assert.Equal(t, "ExposeChain Test", cert.Issuer["organizationName"])
	assert.Equal(t, "ECC", cert.KeyType)
	assert.Equal(t, 256, cert.KeySize)
	assert.Equal(t, "ECDSA-SHA256", cert.SignatureAlgorithm)
	assert.Equal(t, "42", cert.SerialNumber)
	assert.Equal(t, 10, cert.DaysUntilExpiration)
	assert.False(t, cert.IsExpired)
	assert.Equal(t, []string{"test.example", "*.apps.test.example", "127.0.0.1"}, cert.SubjectAlternativeNames)
	assert.Equal(t, 3, cert.SANCount)

	sec := AnalyzeSecurity(res)
	assert.Equal(t, 85, sec.SecurityScore)
	assert.Equal(t, "low", sec.RiskLevel)
	assert.Equal(t, []string{"Certificate expires in 10 days - Renewal recommended"}, sec.Issues)
	assert.Equal(t, "Strong (ECC 256 bit ~ RSA 3072 bit)", sec.Details.KeyStrength)

	assert.Same(t, res, c.Certificate(context.Background(), "127.0.0.1", port))
}

func TestCertificate_UntrustedRoot(t *testing.T) {
	_, _, port := newTestServer(t)
	c := New(Config{Port: port, Timeout: 5 * time.Second}, zap.NewNop())

	res := c.Certificate(context.Background(), "127.0.0.1", 0)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "SSL Error")
	assert.Nil(t, res.Certificate)
}

func TestCertificate_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	c := New(Config{Timeout: time.Second}, zap.NewNop())
	res := c.Certificate(context.Background(), "127.0.0.1", port)

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, port, res.Port)
}

func TestAnalyzeSecurity(t *testing.T) {
	base := func(mod func(*scan.TLSCertificate)) *scan.TLSCertificate {
		c := &scan.TLSCertificate{
			Success: true,
			Version: "TLSv1.3",
			Certificate: &scan.Certificate{
				KeyType:             "RSA",
				KeySize:             2048,
				SignatureAlgorithm:  "SHA256-RSA",
				DaysUntilExpiration: 200,
			},
			CipherSuite: &scan.CipherSuite{Name: "TLS_AES_128_GCM_SHA256"},
		}
		if mod != nil {
			mod(c)
		}
		return c
	}

	tests := []struct {
		name   string
		in     *scan.TLSCertificate
		score  int
		risk   string
		issues []string
		recs   []string
	}{
		{
			name:   "clean",
			in:     base(nil),
			score:  100,
			risk:   "low",
			issues: []string{"No major issues detected"},
			recs:   []string{"Certificate configuration is secure"},
		},
		{
			name: "expired",
			in: base(func(c *scan.TLSCertificate) {
				c.Certificate.IsExpired = true
				c.Certificate.DaysUntilExpiration = -4
			}),
			score:  50,
			risk:   "high",
			issues: []string{"Certificate has EXPIRED"},
			recs:   []string{"Certificate configuration is secure"},
		},
		{
			name:   "urgent renewal",
			in:     base(func(c *scan.TLSCertificate) { c.Certificate.DaysUntilExpiration = 3 }),
			score:  70,
			risk:   "medium",
			issues: []string{"Certificate expires in 3 days - URGENT renewal needed"},
			recs:   []string{"Certificate configuration is secure"},
		},
		{
			name: "everything wrong",
			in: base(func(c *scan.TLSCertificate) {
				c.Version = "TLSv1"
				c.Certificate.KeySize = 1024
				c.Certificate.SignatureAlgorithm = "SHA1-RSA"
				c.Certificate.IsExpired = true
				c.CipherSuite.Name = "TLS_RSA_WITH_RC4_128_SHA"
			}),
			score: 0,
			risk:  "critical",
			issues: []string{
				"Certificate has EXPIRED",
				"Weak RSA key: 1024 bits (minimum 2048 recommended)",
				"Using deprecated SHA-1 signature algorithm",
				"Using outdated protocol: TLSv1",
				"Weak cipher suite: TLS_RSA_WITH_RC4_128_SHA",
			},
			recs: []string{"Upgrade to SHA-256 or better", "Upgrade to TLS 1.2 or TLS 1.3"},
		},
		{
			name: "weak ecc",
			in: base(func(c *scan.TLSCertificate) {
				c.Certificate.KeyType = "ECC"
				c.Certificate.KeySize = 224
			}),
			score:  75,
			risk:   "medium",
			issues: []string{"Weak ECC key: 224 bits (minimum 256 recommended)"},
			recs:   []string{"Certificate configuration is secure"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := AnalyzeSecurity(tc.in)
			assert.Equal(t, tc.score, got.SecurityScore)
			assert.Equal(t, tc.risk, got.RiskLevel)
			assert.Equal(t, tc.issues, got.Issues)
			assert.Equal(t, tc.recs, got.Recommendations)
		})
	}
}

func TestAnalyzeSecurity_Unavailable(t *testing.T) {
	for _, in := range []*scan.TLSCertificate{nil, {Error: "refused"}} {
		got := AnalyzeSecurity(in)
		assert.Equal(t, 0, got.SecurityScore)
		assert.Equal(t, "unknown", got.RiskLevel)
		assert.Equal(t, []string{"Certificate could not be retrieved"}, got.Issues)
		assert.Nil(t, got.Details)
	}
}

func TestKeyStrength(t *testing.T) {
	assert.Equal(t, "Strong (RSA 3072+ bit)", keyStrength("RSA", 4096))
	assert.Equal(t, "Adequate (RSA 2048 bit)", keyStrength("RSA", 2048))
	assert.Equal(t, "Weak", keyStrength("RSA", 1024))
	assert.Equal(t, "Very Strong (ECC 384+ bit)", keyStrength("ECC", 384))
	assert.Equal(t, "Unknown", keyStrength("Ed25519", 256))
	assert.Equal(t, "Unknown", keyStrength("RSA", 0))
}

func TestCheckHostname(t *testing.T) {
	c := &scan.TLSCertificate{
		Success: true,
		Certificate: &scan.Certificate{
			Subject:                 map[string]string{"commonName": "*.example.com"},
			SubjectAlternativeNames: []string{"example.com", "*.cdn.example.net"},
		},
	}

	tests := []struct {
		host  string
		match bool
		via   string
	}{
		{"www.example.com", true, "wildcard_common_name"},
		{"example.com", true, "subject_alternative_name"},
		{"EXAMPLE.com.", true, "subject_alternative_name"},
		{"img.cdn.example.net", true, "wildcard_san"},
		{"a.b.example.com", false, ""},
		{"evilexample.com", false, ""},
		{"other.org", false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.host, func(t *testing.T) {
			got := CheckHostname(tc.host, c)
			assert.Equal(t, tc.match, got.Matches)
			assert.Equal(t, tc.via, got.MatchedVia)
			if !tc.match {
				require.NotNil(t, got.CertificateNames)
				assert.Equal(t, "*.example.com", got.CertificateNames.CommonName)
			}
		})
	}

	assert.Equal(t, "Certificate not available", CheckHostname("x.com", nil).Reason)
}

func TestVersionAndCipherNames(t *testing.T) {
	assert.Equal(t, "TLSv1.2", versionName(tls.VersionTLS12))
	assert.Equal(t, "TLSv1", versionName(tls.VersionTLS10))
	assert.Equal(t, 256, cipherBits("TLS_CHACHA20_POLY1305_SHA256"))
	assert.Equal(t, 128, cipherBits("TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"))
	assert.Equal(t, 168, cipherBits("TLS_RSA_WITH_3DES_EDE_CBC_SHA"))
	assert.Equal(t, 0, cipherBits("UNKNOWN"))
}
