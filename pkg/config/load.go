package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${NAME} and ${NAME:default} interpolation markers.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

// Load loads configuration from a YAML file at the specified path.
// The loading sequence is:
//  1. Read the file
//  2. Interpolate ${NAME} / ${NAME:default} environment references
//  3. Strict-decode YAML (unknown keys are rejected)
//  4. Apply default values
//  5. Validate the final configuration
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	return Parse(data)
}

// Parse parses raw YAML configuration bytes. See Load for the sequence.
func Parse(data []byte) (*Config, error) {
	interpolated, err := interpolateEnv(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(interpolated))
	// Unknown keys are configuration errors, not noise.
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// interpolateEnv replaces ${NAME} and ${NAME:default} references with
// environment variable values. A reference without a default whose
// variable is unset is a load error; silent empty substitution would turn
// a missing credential into a confusing upstream auth failure later.
func interpolateEnv(data []byte) ([]byte, error) {
	var missing []string

	out := envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		groups := envPattern.FindSubmatch(m)
		name := string(groups[1])

		if val, ok := os.LookupEnv(name); ok {
			return []byte(val)
		}

		// ${NAME:default} carries its fallback inline.
		if bytes.Contains(m, []byte(":")) {
			return groups[2]
		}

		missing = append(missing, name)
		return m
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("unset environment variables referenced in configuration: %v", missing)
	}

	return out, nil
}
