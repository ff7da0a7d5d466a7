package scan_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exposechain/exposechain/internal/scan"
)

func TestDetectTargetType(t *testing.T) {
	tests := []struct {
		in   string
		want scan.TargetType
	}{
		{"example.com", scan.TargetDomain},
		{"  Example.COM ", scan.TargetDomain},
		{"8.8.8.8", scan.TargetIPv4},
		{"2001:4860:4860::8888", scan.TargetIPv6},
		{"::1", scan.TargetIPv6},
		{"not a target", scan.TargetDomain},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, scan.DetectTargetType(tc.in))
		})
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in      string
		target  string
		kind    scan.TargetType
		wantErr bool
	}{
		{in: " WWW.Example.com ", target: "www.example.com", kind: scan.TargetDomain},
		{in: "sub-1.example.co.uk", target: "sub-1.example.co.uk", kind: scan.TargetDomain},
		{in: "xn--80ak6aa92e.xn--p1ai", target: "xn--80ak6aa92e.xn--p1ai", kind: scan.TargetDomain},
		{in: "192.0.2.1", target: "192.0.2.1", kind: scan.TargetIPv4},
		{in: "2001:db8::1", target: "2001:db8::1", kind: scan.TargetIPv6},
		{in: "", wantErr: true},
		{in: "localhost", wantErr: true},
		{in: "-bad.example.com", wantErr: true},
		{in: "bad-.example.com", wantErr: true},
		{in: "exa mple.com", wantErr: true},
		{in: "example.123", wantErr: true},
		{in: "http://example.com", wantErr: true},
		{in: "999.1.1.1", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			target, kind, err := scan.ParseTarget(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, scan.ErrInvalidTarget)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.target, target)
			assert.Equal(t, tc.kind, kind)
		})
	}
}

func TestTargetType_IsIP(t *testing.T) {
	assert.True(t, scan.TargetIPv4.IsIP())
	assert.True(t, scan.TargetIPv6.IsIP())
	assert.False(t, scan.TargetDomain.IsIP())
}

func TestDNSLookup_IPs(t *testing.T) {
	d := &scan.DNSLookup{Records: scan.DNSRecords{
		A: &scan.RecordSet{Success: true, Records: []scan.DNSRecord{
			{IP: "192.0.2.1"}, {IP: "192.0.2.2"}, {IP: "192.0.2.1"},
		}},
		AAAA: &scan.RecordSet{Success: false, Records: []scan.DNSRecord{{IP: "2001:db8::1"}}},
	}}

	assert.Equal(t, []string{"192.0.2.1", "192.0.2.2"}, d.IPs())

	var nilLookup *scan.DNSLookup
	assert.Nil(t, nilLookup.IPs())
}

func TestBundle_AbsentSectionsAreOmitted(t *testing.T) {
	raw, err := json.Marshal(scan.Bundle{
		DNSLookup: &scan.DNSLookup{Target: "example.com", TargetType: scan.TargetDomain},
	})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "dns_lookup")
	assert.NotContains(t, m, "whois_lookup")
	assert.NotContains(t, m, "ssl_certificate")
	assert.NotContains(t, m, "geolocation")
}
