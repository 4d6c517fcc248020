package store

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/viant/mcprelay/target"
)

// Config is the file representation of a store.
type Config struct {
	Listeners []ListenerConfig `yaml:"listeners" json:"listeners"`
}

// ListenerConfig groups the targets served by one listener.
type ListenerConfig struct {
	Name    string          `yaml:"name" json:"name"`
	Targets []target.Target `yaml:"targets" json:"targets"`
}

// LoadConfig reads a YAML (or JSON) store config from any afs supported URL.
func LoadConfig(ctx context.Context, fs afs.Service, URL string) (*Config, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download config %v: %w", URL, err)
	}
	ret := &Config{}
	if err = yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %v: %w", URL, err)
	}
	return ret, nil
}

// Load applies every listener of the config at URL.
func (m *Memory) Load(ctx context.Context, fs afs.Service, URL string) error {
	config, err := LoadConfig(ctx, fs, URL)
	if err != nil {
		return err
	}
	for _, l := range config.Listeners {
		if l.Name == "" {
			return fmt.Errorf("listener name was empty in %v", URL)
		}
		if err = m.Apply(l.Name, l.Targets); err != nil {
			return fmt.Errorf("failed to apply listener %v: %w", l.Name, err)
		}
	}
	return nil
}
