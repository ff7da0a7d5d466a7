// Package discovery finds publicly reachable entry points: LoadBalancer and
// NodePort services and ingress rules in a Kubernetes cluster, and
// internet-facing load balancers and public instances in an AWS account.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/exposechain/exposechain/internal/model"
)

// Config selects how to reach the cluster.
type Config struct {
	InCluster  bool
	Kubeconfig string
	Context    string
	Timeout    time.Duration
}

// NewClientset builds a clientset from the in-cluster service account or a
// kubeconfig file. An empty Kubeconfig uses the default loading rules.
func NewClientset(cfg Config) (kubernetes.Interface, error) {
	var restCfg *rest.Config
	var err error
	if cfg.InCluster {
		restCfg, err = rest.InClusterConfig()
	} else {
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		rules.ExplicitPath = cfg.Kubeconfig
		overrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.Context}
		restCfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}
	if cfg.Timeout > 0 {
		restCfg.Timeout = cfg.Timeout
	}
	cs, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return cs, nil
}

// KubernetesScanner lists exposed services and ingresses across all
// namespaces.
type KubernetesScanner struct {
	client kubernetes.Interface
	logger *zap.Logger
}

// NewKubernetes returns a KubernetesScanner using client.
func NewKubernetes(client kubernetes.Interface, logger *zap.Logger) *KubernetesScanner {
	return &KubernetesScanner{client: client, logger: logger}
}

// Source implements Source.
func (k *KubernetesScanner) Source() string { return model.SourceKubernetes }

// Discover implements Source. A failure to list one resource kind does not
// discard what the other produced; both errors are joined.
func (k *KubernetesScanner) Discover(ctx context.Context) ([]*model.Exposure, error) {
	services, svcErr := k.services(ctx)
	if svcErr != nil {
		k.logger.Error("discovery: list services", zap.Error(svcErr))
	}
	ingresses, ingErr := k.ingresses(ctx)
	if ingErr != nil {
		k.logger.Error("discovery: list ingresses", zap.Error(ingErr))
	}

	out := append(services, ingresses...)
	k.logger.Info("discovery: kubernetes scan complete", zap.Int("exposures", len(out)))
	return out, errors.Join(svcErr, ingErr)
}

// ── Services ──────────────────────────────────────────────────────────────────

func (k *KubernetesScanner) services(ctx context.Context) ([]*model.Exposure, error) {
	list, err := k.client.CoreV1().Services(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	var out []*model.Exposure
	for i := range list.Items {
		svc := &list.Items[i]
		svcType := string(svc.Spec.Type)
		if svc.Spec.Type != corev1.ServiceTypeLoadBalancer && svc.Spec.Type != corev1.ServiceTypeNodePort {
			continue
		}

		annotations := copyMap(svc.Annotations)
		ip := externalAddress(svc)
		for _, p := range svc.Spec.Ports {
			port := int(p.Port)
			proto := string(p.Protocol)
			if proto == "" {
				proto = string(corev1.ProtocolTCP)
			}
			out = append(out, &model.Exposure{
				Source:      model.SourceKubernetes,
				IPAddress:   ip,
				Port:        &port,
				Protocol:    proto,
				Namespace:   svc.Namespace,
				ServiceName: svc.Name,
				ServiceType: svcType,
				PodSelector: copyMap(svc.Spec.Selector),
				Annotations: annotations,
				Environment: environment(annotations, svc.Namespace),
				OwnerTeam:   owner(annotations),
				RawData:     map[string]string{"kind": "Service", "name": svc.Name},
			})
		}
	}
	return out, nil
}

// externalAddress returns the first load balancer IP or hostname, falling
// back to the first spec.externalIPs entry.
func externalAddress(svc *corev1.Service) string {
	if svc.Spec.Type == corev1.ServiceTypeLoadBalancer && len(svc.Status.LoadBalancer.Ingress) > 0 {
		ing := svc.Status.LoadBalancer.Ingress[0]
		if ing.IP != "" {
			return ing.IP
		}
		return ing.Hostname
	}
	if len(svc.Spec.ExternalIPs) > 0 {
		return svc.Spec.ExternalIPs[0]
	}
	return ""
}

// ── Ingresses ─────────────────────────────────────────────────────────────────

func (k *KubernetesScanner) ingresses(ctx context.Context) ([]*model.Exposure, error) {
	list, err := k.client.NetworkingV1().Ingresses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list ingresses: %w", err)
	}

	var out []*model.Exposure
	for i := range list.Items {
		ing := &list.Items[i]
		annotations := copyMap(ing.Annotations)
		env := environment(annotations, ing.Namespace)
		team := owner(annotations)

		tlsHosts := []string{}
		for _, t := range ing.Spec.TLS {
			tlsHosts = append(tlsHosts, t.Hosts...)
		}

		for _, rule := range ing.Spec.Rules {
			if rule.HTTP == nil {
				continue
			}
			for _, path := range rule.HTTP.Paths {
				svcName, port := backend(path.Backend)
				out = append(out, &model.Exposure{
					Source:      model.SourceKubernetes,
					Domain:      rule.Host,
					Port:        port,
					Protocol:    string(corev1.ProtocolTCP),
					Namespace:   ing.Namespace,
					ServiceName: svcName,
					ServiceType: "Ingress",
					IngressName: ing.Name,
					TLSEnabled:  rule.Host != "" && contains(tlsHosts, rule.Host),
					TLSHosts:    tlsHosts,
					Annotations: annotations,
					Environment: env,
					OwnerTeam:   team,
					RawData:     map[string]string{"kind": "Ingress", "name": ing.Name, "path": path.Path},
				})
			}
		}
	}
	return out, nil
}

func backend(b networkingv1.IngressBackend) (string, *int) {
	if b.Service == nil {
		return "", nil
	}
	if n := int(b.Service.Port.Number); n != 0 {
		return b.Service.Name, &n
	}
	return b.Service.Name, nil
}

// ── Labels ────────────────────────────────────────────────────────────────────

// environment prefers the "environment" annotation and otherwise guesses
// from the namespace name.
func environment(annotations map[string]string, namespace string) string {
	if env, ok := annotations["environment"]; ok {
		return env
	}
	return GuessEnvironment(namespace)
}

// GuessEnvironment maps a namespace name to production, staging, development
// or unknown by substring.
func GuessEnvironment(namespace string) string {
	ns := strings.ToLower(namespace)
	switch {
	case strings.Contains(ns, "prod"):
		return "production"
	case strings.Contains(ns, "stag"):
		return "staging"
	case strings.Contains(ns, "dev"):
		return "development"
	default:
		return "unknown"
	}
}

func owner(annotations map[string]string) string {
	if o, ok := annotations["owner"]; ok {
		return o
	}
	return annotations["team"]
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
