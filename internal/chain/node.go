package chain

import (
	"fmt"
	"sort"
	"strings"
)

// NodeType tags a chain node with its stage. Stages always appear in the
// order Domain → LoadBalancer → Ingress → Service → Pod along a chain.
type NodeType int

const (
	NodeDomain NodeType = iota
	NodeLoadBalancer
	NodeIngress
	NodeService
	NodePod
)

var nodeTypeNames = [...]string{
	NodeDomain:       "domain",
	NodeLoadBalancer: "load_balancer",
	NodeIngress:      "ingress",
	NodeService:      "service",
	NodePod:          "pod",
}

// String returns the wire name of the stage.
func (t NodeType) String() string {
	if t < 0 || int(t) >= len(nodeTypeNames) {
		return "unknown"
	}
	return nodeTypeNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t NodeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *NodeType) UnmarshalText(b []byte) error {
	for i, name := range nodeTypeNames {
		if name == string(b) {
			*t = NodeType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown node type %q", string(b))
}

// Node is one stage of an exposure chain. ID is derived from the fields that
// identify the stage, so the same logical resource always maps to one node.
type Node struct {
	ID       string         `json:"node_id"`
	Type     NodeType       `json:"node_type"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

// Record is a flat exposure record as produced by discovery. Every field is
// optional; an empty field means the corresponding stage is absent.
type Record struct {
	Domain            string            `json:"domain,omitempty" yaml:"domain,omitempty"`
	IPAddress         string            `json:"ip_address,omitempty" yaml:"ip_address,omitempty"`
	CloudResourceType string            `json:"cloud_resource_type,omitempty" yaml:"cloud_resource_type,omitempty"`
	CloudResourceID   string            `json:"cloud_resource_id,omitempty" yaml:"cloud_resource_id,omitempty"`
	Namespace         string            `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	IngressName       string            `json:"ingress_name,omitempty" yaml:"ingress_name,omitempty"`
	ServiceName       string            `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	ServiceType       string            `json:"service_type,omitempty" yaml:"service_type,omitempty"`
	Port              *int              `json:"port,omitempty" yaml:"port,omitempty"`
	PodSelector       map[string]string `json:"pod_selector,omitempty" yaml:"pod_selector,omitempty"`
}

// elbTypes are cloud resource types that denote a load balancer even when no
// IP address was discovered.
var elbTypes = map[string]bool{"elb": true, "elbv2": true}

func domainNode(r Record) (Node, bool) {
	if r.Domain == "" {
		return Node{}, false
	}
	return Node{
		ID:       "domain:" + r.Domain,
		Type:     NodeDomain,
		Name:     r.Domain,
		Metadata: map[string]any{},
	}, true
}

func loadBalancerNode(r Record) (Node, bool) {
	if r.IPAddress == "" && !elbTypes[r.CloudResourceType] {
		return Node{}, false
	}
	name := r.IPAddress
	if name == "" {
		name = r.CloudResourceID
	}
	if name == "" {
		name = "unknown-lb"
	}
	return Node{
		ID:   "lb:" + name,
		Type: NodeLoadBalancer,
		Name: name,
		Metadata: map[string]any{
			"ip":                optional(r.IPAddress),
			"cloud_resource_id": optional(r.CloudResourceID),
		},
	}, true
}

func ingressNode(r Record) (Node, bool) {
	if r.IngressName == "" {
		return Node{}, false
	}
	name := r.Namespace + "/" + r.IngressName
	return Node{
		ID:       "ingress:" + name,
		Type:     NodeIngress,
		Name:     name,
		Metadata: map[string]any{"namespace": r.Namespace},
	}, true
}

func serviceNode(r Record) (Node, bool) {
	if r.ServiceName == "" {
		return Node{}, false
	}
	name := r.Namespace + "/" + r.ServiceName
	var port any
	if r.Port != nil {
		port = *r.Port
	}
	return Node{
		ID:   "service:" + name,
		Type: NodeService,
		Name: name,
		Metadata: map[string]any{
			"namespace":    r.Namespace,
			"service_type": optional(r.ServiceType),
			"port":         port,
		},
	}, true
}

func podNode(r Record) (Node, bool) {
	if len(r.PodSelector) == 0 {
		return Node{}, false
	}
	selector := SelectorString(r.PodSelector)
	sel := make(map[string]string, len(r.PodSelector))
	for k, v := range r.PodSelector {
		sel[k] = v
	}
	return Node{
		ID:   "pods:" + r.Namespace + "/" + selector,
		Type: NodePod,
		Name: selector,
		Metadata: map[string]any{
			"namespace": r.Namespace,
			"selector":  sel,
		},
	}, true
}

// SelectorString renders a label selector as "k1=v1,k2=v2" with keys sorted.
func SelectorString(selector map[string]string) string {
	keys := make([]string, 0, len(selector))
	for k := range selector {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + selector[k]
	}
	return strings.Join(pairs, ",")
}

// optional turns an empty string into a JSON null.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}
