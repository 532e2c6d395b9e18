// Package config holds fastsync's run configuration and the optional YAML
// file that can supply defaults for it, so a repeated sync of the same
// tree doesn't need to repeat a long command line.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the full set of options controlling one sync run. Flag parsing
// (cmd/fastsync) fills in a Config from the command line; LoadFile fills
// in one from a YAML document. Merge combines the two, with command-line
// flags always taking precedence.
type Config struct {
	Source      string   `yaml:"source"`
	Destination string   `yaml:"destination"`
	Exclude     []string `yaml:"exclude"`
	Delete      bool     `yaml:"delete"`
	DryRun      bool     `yaml:"dry_run"`
	Progress    bool     `yaml:"progress"`
	Parallel    int      `yaml:"parallel"`
	Identity    string   `yaml:"identity"`
	Port        int      `yaml:"port"`
	Quiet       bool     `yaml:"quiet"`
	Verbose     bool     `yaml:"verbose"`
	BlockLevel  bool     `yaml:"block_level"`
	Checksum    bool     `yaml:"checksum"`
}

// Default returns the baseline Config used before any flag or file value
// is applied.
func Default() Config {
	return Config{
		Progress:   true,
		Parallel:   4,
		Port:       22,
		BlockLevel: true,
	}
}

// LoadFile reads and parses a YAML config file on top of Default(), so a
// field the file does not mention keeps its default value. A missing file
// is not an error; it simply yields Default(), since the file is optional.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "config: reading %q", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parsing %q", path)
	}
	return cfg, nil
}

// Merge overlays flags on top of file, field by field: an explicitly set
// field (tracked by the caller via changed) wins; otherwise the file's
// value is kept, falling back to flags' own (default) value if the file
// didn't set it either. changed lists the flag names the user actually
// passed on the command line, as reported by pflag's Changed().
func Merge(file, flags Config, changed map[string]bool) Config {
	result := flags

	set := func(name string, apply func()) {
		if !changed[name] {
			apply()
		}
	}

	set("source", func() {
		if file.Source != "" {
			result.Source = file.Source
		}
	})
	set("destination", func() {
		if file.Destination != "" {
			result.Destination = file.Destination
		}
	})
	set("exclude", func() {
		if len(file.Exclude) > 0 {
			result.Exclude = file.Exclude
		}
	})
	set("delete", func() { result.Delete = file.Delete })
	set("dry-run", func() { result.DryRun = file.DryRun })
	set("progress", func() { result.Progress = file.Progress })
	set("parallel", func() {
		if file.Parallel != 0 {
			result.Parallel = file.Parallel
		}
	})
	set("identity", func() {
		if file.Identity != "" {
			result.Identity = file.Identity
		}
	})
	set("port", func() {
		if file.Port != 0 {
			result.Port = file.Port
		}
	})
	set("quiet", func() { result.Quiet = file.Quiet })
	set("verbose", func() { result.Verbose = file.Verbose })
	set("block-level", func() { result.BlockLevel = file.BlockLevel })
	set("checksum", func() { result.Checksum = file.Checksum })

	return result
}
