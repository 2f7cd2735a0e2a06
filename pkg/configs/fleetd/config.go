package fleetd

import "time"

type FleetdConfig struct {
	port             int32
	database         string
	schemaRepository string
	gateway          *GatewayConfig
}

func (c *FleetdConfig) Port() int32 {
	return c.port
}

// Connection string for database.
func (c *FleetdConfig) Database() string {
	return c.database
}

// Directory of schema repository. Empty means the embedded one.
func (c *FleetdConfig) SchemaRepository() string {
	return c.schemaRepository
}

func (c *FleetdConfig) Gateway() *GatewayConfig {
	return c.gateway
}

// Configuration for access to Kubernetes clusters.
type GatewayConfig struct {
	fieldManager          string
	timeout               time.Duration
	insecureSkipTLSVerify bool
}

// Field manager name for server-side apply. default = "knitfleet"
func (g *GatewayConfig) FieldManager() string {
	return g.fieldManager
}

// Timeout of each request to clusters. default = 30s
func (g *GatewayConfig) Timeout() time.Duration {
	return g.timeout
}

func (g *GatewayConfig) InsecureSkipTLSVerify() bool {
	return g.insecureSkipTLSVerify
}
