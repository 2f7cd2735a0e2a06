package fleetd

import (
	"os"

	"gopkg.in/yaml.v3"
)

// load fleetd config from a file.
//
// It panics when the config is not complete.
func LoadFleetdConfig(filepath string) (*FleetdConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (*FleetdConfig, error) {
	var m *FleetdConfigMarshall
	if err := yaml.Unmarshal(conf, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = &FleetdConfigMarshall{}
	}
	return TrySeal(m), nil
}
