package k8s

import (
	"sync"
	"time"

	"github.com/opst/knitfleet/pkg/domain"
	xe "github.com/opst/knitfleet/pkg/errors"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// Clients to a cluster.
type Clients struct {
	Kube    kubernetes.Interface
	Dynamic dynamic.Interface
}

// Connector makes Clients for clusters.
type Connector interface {
	Connect(cluster domain.Cluster) (Clients, error)
}

type ConnectorFunc func(cluster domain.Cluster) (Clients, error)

func (f ConnectorFunc) Connect(cluster domain.Cluster) (Clients, error) {
	return f(cluster)
}

type restConnector struct {
	timeout  time.Duration
	insecure bool

	mu    sync.Mutex
	cache map[string]cachedClients
}

type cachedClients struct {
	apiAddress string
	token      string
	clients    Clients
}

// NewConnector returns a Connector which authenticates with the bearer token of clusters.
//
// Clients are cached per cluster and made again when the address or token is changed.
//
// # Args
//
// - timeout: timeout of each request to clusters. 0 means no timeout.
//
// - insecureSkipTLSVerify: if true, certificates of clusters are not verified.
func NewConnector(timeout time.Duration, insecureSkipTLSVerify bool) Connector {
	return &restConnector{
		timeout:  timeout,
		insecure: insecureSkipTLSVerify,
		cache:    map[string]cachedClients{},
	}
}

// RESTConfig builds a config to connect to the cluster.
func RESTConfig(cluster domain.Cluster, timeout time.Duration, insecure bool) *rest.Config {
	return &rest.Config{
		Host:        cluster.APIAddress,
		BearerToken: cluster.Token,
		Timeout:     timeout,
		TLSClientConfig: rest.TLSClientConfig{
			Insecure: insecure,
		},
	}
}

func (c *restConnector) Connect(cluster domain.Cluster) (Clients, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.cache[cluster.Id]; ok {
		if cached.apiAddress == cluster.APIAddress && cached.token == cluster.Token {
			return cached.clients, nil
		}
	}

	conf := RESTConfig(cluster, c.timeout, c.insecure)
	kube, err := kubernetes.NewForConfig(conf)
	if err != nil {
		return Clients{}, xe.Wrap(err)
	}
	dyn, err := dynamic.NewForConfig(conf)
	if err != nil {
		return Clients{}, xe.Wrap(err)
	}

	clients := Clients{Kube: kube, Dynamic: dyn}
	c.cache[cluster.Id] = cachedClients{
		apiAddress: cluster.APIAddress,
		token:      cluster.Token,
		clients:    clients,
	}
	return clients, nil
}
