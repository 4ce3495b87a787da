// Package config loads, validates, and normalizes hlsfarm configuration
// from TOML files with environment-variable overrides for secrets.
package config
