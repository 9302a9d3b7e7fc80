// Package cliconfig loads torc's client configuration — a single
// ~/.torc/config.yml (or --config path) naming one or more named servers —
// the same shape as the teacher's pkg/config.ClientConfig (a map of node
// name to connection details), flattened to the one field torc's HTTP
// contract needs: a base URL, instead of the teacher's client certificate
// bundle.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Server is one named torcd endpoint.
type Server struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
}

// Config is torc's client configuration file.
type Config struct {
	DefaultServer string            `yaml:"default_server"`
	Servers       map[string]Server `yaml:"servers"`
}

// defaultPaths is the search order used when no explicit path is given:
// the user's home (~/.torc/config.yml) first, then torc-config.yml in the
// current directory.
func defaultPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".torc", "config.yml"))
	}
	paths = append(paths, "torc-config.yml")
	return paths
}

// Load reads path, or (if path is empty) the first of defaultPaths that
// exists. Returns a single-server "default" config pointed at
// http://localhost:8080 if no file is found, so torc works against a local
// torcd with zero configuration.
func Load(path string) (*Config, error) {
	candidates := []string{path}
	if path == "" {
		candidates = defaultPaths()
	}

	for _, p := range candidates {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", p, err)
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", p, err)
		}
		if cfg.DefaultServer == "" {
			for name := range cfg.Servers {
				cfg.DefaultServer = name
				break
			}
		}
		return &cfg, nil
	}

	return &Config{
		DefaultServer: "default",
		Servers:       map[string]Server{"default": {URL: "http://localhost:8080"}},
	}, nil
}

// Server returns the named server, or the default server if name is empty.
func (c *Config) Server(name string) (Server, error) {
	if name == "" {
		name = c.DefaultServer
	}
	srv, ok := c.Servers[name]
	if !ok {
		return Server{}, fmt.Errorf("no server named %q in config", name)
	}
	return srv, nil
}
