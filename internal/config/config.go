// Package config loads the daemon's YAML configuration file, whose
// path is supplied via the PIPEBASED_CONFIG environment variable.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pipebase/pipebased/internal/pipeerr"
)

// EnvVar is the environment variable naming the config file path.
const EnvVar = "PIPEBASED_CONFIG"

// BuilderClientOptions mirrors daemon.repository.pb_client; fields are
// intentionally minimal since the builder client's own option surface
// is out of scope for this daemon.
type BuilderClientOptions struct {
	BaseURL string `yaml:"base_url"`
}

// RepositoryConfig mirrors daemon.repository in §6.
type RepositoryConfig struct {
	AppDirectory      string               `yaml:"app_directory"`
	CatalogsDirectory string               `yaml:"catalogs_directory"`
	PBClient          BuilderClientOptions `yaml:"pb_client"`
}

// PipeConfig mirrors daemon.pipe in §6.
type PipeConfig struct {
	Workspace string `yaml:"workspace"`
}

// DaemonConfig mirrors the daemon section in §6.
type DaemonConfig struct {
	Repository RepositoryConfig `yaml:"repository"`
	Pipe       PipeConfig       `yaml:"pipe"`
}

// Config is the root daemon configuration document, per §6:
//
//	address: "<host>:<port>"
//	daemon:
//	  repository: { app_directory, catalogs_directory, pb_client }
//	  pipe: { workspace }
type Config struct {
	Address string       `yaml:"address"`
	Daemon  DaemonConfig `yaml:"daemon"`
}

// Load reads and parses the YAML document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pipeerr.IO(err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, pipeerr.Yaml(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv reads the path named by EnvVar and loads it.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, pipeerr.Env(EnvVar + " is not set")
	}
	return Load(path)
}

// Validate checks that the required fields are present.
func (c *Config) Validate() error {
	if c.Address == "" {
		return pipeerr.AddrParse("address must not be empty")
	}
	if c.Daemon.Repository.AppDirectory == "" {
		return pipeerr.Env("daemon.repository.app_directory must not be empty")
	}
	if c.Daemon.Repository.CatalogsDirectory == "" {
		return pipeerr.Env("daemon.repository.catalogs_directory must not be empty")
	}
	if c.Daemon.Pipe.Workspace == "" {
		return pipeerr.Env("daemon.pipe.workspace must not be empty")
	}
	return nil
}
