package config

import "fmt"

// Deployment constants of the NeuVector controller service inside the
// downstream cluster, as reached through the Rancher service proxy.
const (
	ControllerNamespace   = "cattle-neuvector-system"
	ControllerServiceName = "neuvector-svc-controller-api"
	ControllerServicePort = 10443
)

// Topology is how requests reach the controller. It is a closed set:
// Direct and Gateway are the only implementations.
type Topology interface {
	// Name identifies the topology in logs.
	Name() string
	// BaseURL ends in "/" so that appending "v1/<path>" yields an API
	// endpoint.
	BaseURL() string
	// ControllerKey returns the controller-native API key and whether it
	// must be forwarded in the X-Auth-ApiKey header.
	ControllerKey() (string, bool)

	topology()
}

// Direct talks to the controller API service itself.
type Direct struct {
	Host string
}

func (Direct) Name() string { return "direct" }

func (d Direct) BaseURL() string {
	return fmt.Sprintf("https://%s/", d.Host)
}

// ControllerKey is never forwarded in direct mode.
func (Direct) ControllerKey() (string, bool) { return "", false }

func (Direct) topology() {}

// Gateway routes through the Rancher cluster proxy, which terminates its own
// bearer auth and needs the controller key forwarded separately.
type Gateway struct {
	Host             string
	ClusterID        string
	ControllerAPIKey string
}

func (Gateway) Name() string { return "gateway" }

func (g Gateway) BaseURL() string {
	return fmt.Sprintf("https://%s/k8s/clusters/%s/api/v1/namespaces/%s/services/https:%s:%d/proxy/",
		g.Host, g.ClusterID, ControllerNamespace, ControllerServiceName, ControllerServicePort)
}

func (g Gateway) ControllerKey() (string, bool) { return g.ControllerAPIKey, true }

func (Gateway) topology() {}
