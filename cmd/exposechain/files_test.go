package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exposechain/exposechain/internal/risk"
	"github.com/exposechain/exposechain/internal/service"
)

const recordsYAML = `
- domain: api.example.com
  ip_address: 203.0.113.10
  namespace: prod
  ingress_name: api
  service_name: api-svc
  service_type: ClusterIP
  port: 8080
  pod_selector:
    app: api
`

func TestParseRecords_YAMLList(t *testing.T) {
	records, err := parseRecords([]byte(recordsYAML))
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "api.example.com", r.Domain)
	assert.Equal(t, "api-svc", r.ServiceName)
	require.NotNil(t, r.Port)
	assert.Equal(t, 8080, *r.Port)
	assert.Equal(t, map[string]string{"app": "api"}, r.PodSelector)
}

func TestParseRecords_JSONBody(t *testing.T) {
	body := `{"records": [{"domain": "a.example.com", "service_name": "a", "namespace": "default"}], "domain": "a.example.com"}`
	records, err := parseRecords([]byte(body))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a.example.com", records[0].Domain)
}

func TestParseRecords_Empty(t *testing.T) {
	_, err := parseRecords([]byte(`{"domain": "x"}`))
	assert.Error(t, err)
}

func TestParseExposure(t *testing.T) {
	e, err := parseExposure([]byte(`{"environment": "production", "protocol": "tcp", "port": 22, "service_type": "LoadBalancer"}`))
	require.NoError(t, err)
	assert.Equal(t, "production", e.Environment)
	assert.False(t, e.TLSEnabled)
	require.NotNil(t, e.Port)
	assert.Equal(t, 22, *e.Port)
}

func TestReadInput_Stdin(t *testing.T) {
	data, err := readInput("-", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = readInput("", strings.NewReader(""))
	assert.Error(t, err)
}

func TestPrintChains(t *testing.T) {
	records, err := parseRecords([]byte(recordsYAML))
	require.NoError(t, err)

	var buf bytes.Buffer
	printChains(&buf, service.BuildChains(records, ""))
	out := buf.String()
	assert.Contains(t, out, "domain:api.example.com -> ")
	assert.Contains(t, out, "1 chains, 5 nodes, 4 edges")
}

func TestPrintScore(t *testing.T) {
	port := 443
	res := risk.NewScorer().Score(risk.Exposure{Environment: "development", TLSEnabled: true, Port: &port, ServiceType: "ClusterIP"})

	var buf bytes.Buffer
	require.NoError(t, printScore(&buf, res))
	assert.Contains(t, buf.String(), "Risk score: ")
	assert.Contains(t, buf.String(), "FACTOR")
}
