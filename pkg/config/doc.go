// Package config provides typed configuration for RouteCodex.
//
// Configuration is loaded from a YAML file, passed through environment
// variable interpolation (${NAME} and ${NAME:default}), filled with
// defaults, and validated. Validation is fail-fast: an invalid provider
// triple, a route whose last module is not an llmswitch, or an unknown
// configuration key rejects the whole configuration at load time.
package config
