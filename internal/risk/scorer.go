// Package risk scores a single discovered exposure on a 0–10 scale.
//
// The score is a fixed weighted sum over six dimensions (environment,
// protocol, authentication, TLS, port and service type). Missing inputs fall
// through to each dimension's default branch, so Score never fails.
package risk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Dimension names used as keys in Result.Factors and Result.Details.
const (
	DimEnvironment    = "environment"
	DimProtocol       = "protocol"
	DimAuthentication = "authentication"
	DimTLS            = "tls"
	DimPort           = "port"
	DimServiceType    = "service_type"
)

// Severity is the label derived from a composite score.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Exposure carries the attributes the scorer looks at. Pointer and empty
// values mean "not known".
type Exposure struct {
	Environment string            `json:"environment,omitempty" yaml:"environment,omitempty"`
	Protocol    string            `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	TLSEnabled  bool              `json:"tls_enabled" yaml:"tls_enabled"`
	Port        *int              `json:"port,omitempty" yaml:"port,omitempty"`
	ServiceType string            `json:"service_type,omitempty" yaml:"service_type,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// Result is the output of a single scoring run.
type Result struct {
	// Score is the weighted composite in [0, 10], rounded to two decimals.
	Score float64 `json:"score"`

	// Factors holds the raw 0–10 sub-score of each of the six dimensions.
	Factors map[string]float64 `json:"factors"`

	// Details describes what each dimension saw.
	Details map[string]string `json:"details"`
}

// Severity maps Score to a label:
//
//	>= 8 → critical
//	>= 6 → high
//	>= 4 → medium
//	>= 2 → low
//	else → info
func (r Result) Severity() Severity {
	return SeverityFor(r.Score)
}

// SeverityFor maps a 0–10 score to a Severity.
func SeverityFor(score float64) Severity {
	switch {
	case score >= 8:
		return SeverityCritical
	case score >= 6:
		return SeverityHigh
	case score >= 4:
		return SeverityMedium
	case score >= 2:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// weights must sum to 1.0.
var weights = map[string]float64{
	DimEnvironment:    0.25,
	DimProtocol:       0.20,
	DimAuthentication: 0.20,
	DimTLS:            0.15,
	DimPort:           0.10,
	DimServiceType:    0.10,
}

// dimensionOrder fixes the summation order so results are bit-for-bit stable.
var dimensionOrder = []string{
	DimEnvironment, DimProtocol, DimAuthentication, DimTLS, DimPort, DimServiceType,
}

var environmentScores = map[string]float64{
	"production":  10,
	"staging":     6,
	"development": 3,
}

var serviceTypeScores = map[string]float64{
	"LoadBalancer": 8,
	"NodePort":     7,
	"Ingress":      6,
	"ClusterIP":    2,
}

var highRiskPorts = map[int]bool{
	22: true, 3389: true, 5432: true, 3306: true, 6379: true,
	27017: true, 9200: true, 8080: true, 8443: true,
}

var standardWebPorts = map[int]bool{80: true, 443: true}

// authIndicators are matched as substrings of lowercased annotation keys.
// "auth" alone matches keys such as "author"; downstream consumers rely on
// the resulting score distribution, so the match stays this coarse.
var authIndicators = []string{
	"nginx.ingress.kubernetes.io/auth-url",
	"nginx.ingress.kubernetes.io/auth-signin",
	"nginx.ingress.kubernetes.io/auth-type",
	"auth-url",
	"auth-signin",
	"auth-type",
	"auth",
	"authentication",
	"oauth",
}

const defaultFactor = 5.0

// Scorer computes exposure risk. The zero value is ready to use.
type Scorer struct{}

// NewScorer returns a Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score evaluates e and returns its composite risk.
func (s *Scorer) Score(e Exposure) Result {
	factors := make(map[string]float64, len(weights))
	details := make(map[string]string, len(weights))

	env := strings.ToLower(e.Environment)
	if env == "" {
		env = "unknown"
	}
	factors[DimEnvironment] = lookup(environmentScores, env)
	details[DimEnvironment] = env

	proto := strings.ToUpper(e.Protocol)
	if proto == "" {
		proto = "TCP"
	}
	switch proto {
	case "HTTPS", "TLS":
		factors[DimProtocol] = 2
	case "HTTP":
		factors[DimProtocol] = 8
	default:
		factors[DimProtocol] = defaultFactor
	}
	details[DimProtocol] = proto

	if hasAuthAnnotation(e.Annotations) {
		factors[DimAuthentication] = 2
		details[DimAuthentication] = "present"
	} else {
		factors[DimAuthentication] = 8
		details[DimAuthentication] = "missing"
	}

	if e.TLSEnabled {
		factors[DimTLS] = 2
		details[DimTLS] = "enabled"
	} else {
		factors[DimTLS] = 9
		details[DimTLS] = "disabled"
	}

	switch {
	case e.Port != nil && highRiskPorts[*e.Port]:
		factors[DimPort] = 9
		details[DimPort] = fmt.Sprintf("%d (high-risk)", *e.Port)
	case e.Port != nil && standardWebPorts[*e.Port]:
		factors[DimPort] = 4
		details[DimPort] = fmt.Sprintf("%d (standard web)", *e.Port)
	case e.Port != nil && *e.Port != 0:
		factors[DimPort] = defaultFactor
		details[DimPort] = strconv.Itoa(*e.Port)
	default:
		factors[DimPort] = defaultFactor
		details[DimPort] = "unknown"
	}

	factors[DimServiceType] = lookup(serviceTypeScores, e.ServiceType)
	if e.ServiceType == "" {
		details[DimServiceType] = "unknown"
	} else {
		details[DimServiceType] = e.ServiceType
	}

	var total float64
	for _, dim := range dimensionOrder {
		total += factors[dim] * weights[dim]
	}
	total = math.Min(math.Max(total, 0), 10)

	return Result{
		Score:   round2(total),
		Factors: factors,
		Details: details,
	}
}

func lookup(table map[string]float64, key string) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return defaultFactor
}

func hasAuthAnnotation(annotations map[string]string) bool {
	for key := range annotations {
		lower := strings.ToLower(key)
		for _, indicator := range authIndicators {
			if strings.Contains(lower, indicator) {
				return true
			}
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
