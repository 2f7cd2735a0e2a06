package domain

import (
	"k8s.io/apimachinery/pkg/api/resource"
)

type Cluster struct {
	Id            string
	Name          string
	APIAddress    string
	Token         string
	EnvironmentId string
}

// Capacity is free resources of a cluster.
type Capacity struct {
	CPU    resource.Quantity
	Memory resource.Quantity
}

// Compare capacities.
//
// A capacity with more free CPU is larger. When CPU is same, one with more free memory is larger.
//
// It returns a negative number when c < o, 0 when c == o, positive number when c > o.
func (c Capacity) Compare(o Capacity) int {
	if n := c.CPU.Cmp(o.CPU); n != 0 {
		return n
	}
	return c.Memory.Cmp(o.Memory)
}

// GatewayRef points the Gateway (of Gateway API) which routes traffic to components.
type GatewayRef struct {
	Namespace string
	Name      string
}

func (g GatewayRef) IsZero() bool {
	return g.Name == ""
}

const GatewayAPIGroup = "gateway.networking.k8s.io"

// Capability is an API which may or may not be served by clusters.
type Capability struct {
	Group   string
	Version string

	// Kind of resources. Empty Kind means "any resources in the group".
	Kind string
}

func (c Capability) String() string {
	if c.Kind == "" {
		return c.Group
	}
	return c.Kind + "." + c.Group
}

var (
	CapabilityGatewayAPI = Capability{Group: GatewayAPIGroup}
	CapabilityHTTPRoute  = Capability{Group: GatewayAPIGroup, Version: "v1", Kind: "HTTPRoute"}
	CapabilityTCPRoute   = Capability{Group: GatewayAPIGroup, Version: "v1alpha2", Kind: "TCPRoute"}
	CapabilityUDPRoute   = Capability{Group: GatewayAPIGroup, Version: "v1alpha2", Kind: "UDPRoute"}
)

// RouteCapability returns the route kind serving the exposure type.
//
// ok is false for exposure types without route kind.
func RouteCapability(t ExposureType) (c Capability, ok bool) {
	switch t {
	case ExposureHTTP:
		return CapabilityHTTPRoute, true
	case ExposureTCP:
		return CapabilityTCPRoute, true
	case ExposureUDP:
		return CapabilityUDPRoute, true
	default:
		return Capability{}, false
	}
}

// RequiredCapabilities lists capabilities which clusters need to host a service with the exposure.
func RequiredCapabilities(e Exposure) []Capability {
	caps := []Capability{}
	if c, ok := RouteCapability(e.Type); ok {
		caps = append(caps, c)
	}
	if e.Visibility == VisibilityPublic || e.Visibility == VisibilityPrivate {
		caps = append(caps, CapabilityGatewayAPI)
	}
	return caps
}
