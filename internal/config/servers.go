package config

import (
	"fmt"
	"os"

	"github.com/manago/client/internal/session"
	"gopkg.in/yaml.v3"
)

// LoadServers loads servers.yaml, a list of server descriptors.
func LoadServers(path string) ([]session.ServerDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read server list: %w", err)
	}
	var servers []session.ServerDescriptor
	if err := yaml.Unmarshal(raw, &servers); err != nil {
		return nil, fmt.Errorf("parse server list: %w", err)
	}
	for i, s := range servers {
		if s.Host == "" || s.Port == 0 {
			return nil, fmt.Errorf("server list entry %d: hostname and port are required", i)
		}
	}
	return servers, nil
}
