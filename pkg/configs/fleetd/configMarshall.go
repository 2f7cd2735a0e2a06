package fleetd

import (
	"fmt"
	"time"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs/fleetd.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

const (
	DefaultFieldManager = "knitfleet"
	DefaultTimeout      = 30 * time.Second
)

type FleetdConfigMarshall struct {
	Port             int32                  `yaml:"port"`
	Database         string                 `yaml:"database"`
	SchemaRepository string                 `yaml:"schemaRepository,omitempty"`
	Gateway          *GatewayConfigMarshall `yaml:"gateway,omitempty"`
}

var _ Marshalled[*FleetdConfig] = &FleetdConfigMarshall{}

func (f *FleetdConfigMarshall) trySeal(path string) *FleetdConfig {
	gw := f.Gateway
	if gw == nil {
		gw = &GatewayConfigMarshall{}
	}
	return &FleetdConfig{
		port:             required(f.Port, path+".port"),
		database:         required(f.Database, path+".database"),
		schemaRepository: f.SchemaRepository,
		gateway:          gw.trySeal(path + ".gateway"),
	}
}

type GatewayConfigMarshall struct {
	FieldManager          string `yaml:"fieldManager,omitempty"`
	Timeout               string `yaml:"timeout,omitempty"`
	InsecureSkipTLSVerify bool   `yaml:"insecureSkipTLSVerify,omitempty"`
}

func (g *GatewayConfigMarshall) trySeal(path string) *GatewayConfig {
	fieldManager := g.FieldManager
	if fieldManager == "" {
		fieldManager = DefaultFieldManager
	}

	timeout := DefaultTimeout
	if g.Timeout != "" {
		t, err := time.ParseDuration(g.Timeout)
		if err != nil {
			panic(fmt.Errorf("%s.timeout can not be parsed: %w", path, err))
		}
		if t <= 0 {
			panic(fmt.Errorf("%s.timeout should be positive: %s", path, g.Timeout))
		}
		timeout = t
	}

	return &GatewayConfig{
		fieldManager:          fieldManager,
		timeout:               timeout,
		insecureSkipTLSVerify: g.InsecureSkipTLSVerify,
	}
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}
