package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/exposechain/exposechain/internal/chain"
	"github.com/exposechain/exposechain/internal/risk"
)

// Exposure sources.
const (
	SourceKubernetes = "kubernetes"
	SourceAWS        = "aws"
	SourceManual     = "manual"
)

// Exposure is one publicly reachable entry point found by discovery, together
// with the risk assessment computed for it.
type Exposure struct {
	ID     uuid.UUID `json:"id" db:"id" yaml:"-"`
	ScanID uuid.UUID `json:"scan_id" db:"scan_id" yaml:"-"`
	Source string    `json:"source" db:"source" yaml:"source,omitempty"`

	Domain     string   `json:"domain,omitempty" db:"domain" yaml:"domain,omitempty"`
	IPAddress  string   `json:"ip_address,omitempty" db:"ip_address" yaml:"ip_address,omitempty"`
	Port       *int     `json:"port,omitempty" db:"port" yaml:"port,omitempty"`
	Protocol   string   `json:"protocol,omitempty" db:"protocol" yaml:"protocol,omitempty"`
	TLSEnabled bool     `json:"tls_enabled" db:"tls_enabled" yaml:"tls_enabled"`
	TLSHosts   []string `json:"tls_hosts,omitempty" db:"tls_hosts" yaml:"tls_hosts,omitempty"`

	Namespace   string            `json:"namespace,omitempty" db:"namespace" yaml:"namespace,omitempty"`
	ServiceName string            `json:"service_name,omitempty" db:"service_name" yaml:"service_name,omitempty"`
	ServiceType string            `json:"service_type,omitempty" db:"service_type" yaml:"service_type,omitempty"`
	IngressName string            `json:"ingress_name,omitempty" db:"ingress_name" yaml:"ingress_name,omitempty"`
	PodSelector map[string]string `json:"pod_selector,omitempty" db:"pod_selector" yaml:"pod_selector,omitempty"`

	CloudProvider     string `json:"cloud_provider,omitempty" db:"cloud_provider" yaml:"cloud_provider,omitempty"`
	CloudResourceID   string `json:"cloud_resource_id,omitempty" db:"cloud_resource_id" yaml:"cloud_resource_id,omitempty"`
	CloudResourceType string `json:"cloud_resource_type,omitempty" db:"cloud_resource_type" yaml:"cloud_resource_type,omitempty"`

	Annotations map[string]string `json:"annotations,omitempty" db:"annotations" yaml:"annotations,omitempty"`
	Environment string            `json:"environment,omitempty" db:"environment" yaml:"environment,omitempty"`
	OwnerTeam   string            `json:"owner_team,omitempty" db:"owner_team" yaml:"owner_team,omitempty"`
	RawData     map[string]string `json:"raw_data,omitempty" db:"raw_data" yaml:"-"`

	RiskScore    float64            `json:"risk_score" db:"risk_score" yaml:"-"`
	Severity     risk.Severity      `json:"severity,omitempty" db:"severity" yaml:"-"`
	RiskFactors  map[string]float64 `json:"risk_factors,omitempty" db:"risk_factors" yaml:"-"`
	RiskDetails  map[string]string  `json:"risk_details,omitempty" db:"risk_details" yaml:"-"`
	DiscoveredAt time.Time          `json:"discovered_at" db:"discovered_at" yaml:"-"`
}

// RiskInput returns the attributes the risk scorer reads.
func (e *Exposure) RiskInput() risk.Exposure {
	return risk.Exposure{
		Environment: e.Environment,
		Protocol:    e.Protocol,
		TLSEnabled:  e.TLSEnabled,
		Port:        e.Port,
		ServiceType: e.ServiceType,
		Annotations: e.Annotations,
	}
}

// ApplyRisk records a scoring result on the exposure.
func (e *Exposure) ApplyRisk(r risk.Result) {
	e.RiskScore = r.Score
	e.Severity = r.Severity()
	e.RiskFactors = r.Factors
	e.RiskDetails = r.Details
}

// ChainRecord returns the attributes the chain mapper reads.
func (e *Exposure) ChainRecord() chain.Record {
	return chain.Record{
		Domain:            e.Domain,
		IPAddress:         e.IPAddress,
		CloudResourceType: e.CloudResourceType,
		CloudResourceID:   e.CloudResourceID,
		Namespace:         e.Namespace,
		IngressName:       e.IngressName,
		ServiceName:       e.ServiceName,
		ServiceType:       e.ServiceType,
		Port:              e.Port,
		PodSelector:       e.PodSelector,
	}
}

// DiscoverRequest is the payload for an exposure discovery run.
type DiscoverRequest struct {
	Sources []string `json:"sources"`
}

// BuildChainsRequest is the payload for building chains from records.
type BuildChainsRequest struct {
	Records []chain.Record `json:"records" binding:"required"`
	Domain  string         `json:"domain"`
}
