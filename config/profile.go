package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ProfileFile is a config file holding a default profile and named
// profiles, e.g. one per chain.
type ProfileFile struct {
	Default  Config            `json:"default" yaml:"default"`
	Profiles map[string]Config `json:"profiles" yaml:"profiles"`
}

// LoadProfileFile reads a .yaml, .yml or .json profile file
func LoadProfileFile(path string) (*ProfileFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}

	var file ProfileFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, errors.Wrap(err, "failed to parse YAML")
		}
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, errors.Wrap(err, "failed to parse JSON")
		}
	default:
		return nil, errors.Errorf("unsupported config file format: %s", ext)
	}
	return &file, nil
}

// Apply merges the default profile and then the named one into cfg
func (f *ProfileFile) Apply(cfg *Config, profile string) error {
	mergeConfig(cfg, &f.Default)
	if profile == "" || profile == "default" {
		return nil
	}
	p, ok := f.Profiles[profile]
	if !ok {
		return errors.Errorf("profile '%s' not found in config file", profile)
	}
	mergeConfig(cfg, &p)
	return nil
}

// mergeConfig copies the non-zero fields of source. Booleans can only be
// switched on from a file.
func mergeConfig(target, source *Config) {
	if source.Chain.ChainRpcUrl != "" {
		target.Chain.ChainRpcUrl = source.Chain.ChainRpcUrl
	}
	if source.Chain.RequestTimeout != 0 {
		target.Chain.RequestTimeout = source.Chain.RequestTimeout
	}

	if source.MasterDB.Host != "" {
		target.MasterDB.Host = source.MasterDB.Host
	}
	if source.MasterDB.Port != 0 {
		target.MasterDB.Port = source.MasterDB.Port
	}
	if source.MasterDB.Name != "" {
		target.MasterDB.Name = source.MasterDB.Name
	}
	if source.MasterDB.User != "" {
		target.MasterDB.User = source.MasterDB.User
	}
	if source.MasterDB.Password != "" {
		target.MasterDB.Password = source.MasterDB.Password
	}

	target.Trace.RecordPrecompiles = target.Trace.RecordPrecompiles || source.Trace.RecordPrecompiles
	target.Trace.RecordLogs = target.Trace.RecordLogs || source.Trace.RecordLogs
	target.Trace.Store = target.Trace.Store || source.Trace.Store
	if source.Trace.Concurrency != 0 {
		target.Trace.Concurrency = source.Trace.Concurrency
	}
	if source.Trace.Output != "" {
		target.Trace.Output = source.Trace.Output
	}
	if source.Trace.MigrationsDir != "" {
		target.Trace.MigrationsDir = source.Trace.MigrationsDir
	}
}
