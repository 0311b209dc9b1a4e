// Package config loads and validates the watcher configuration.
//
// Configuration is YAML with ${VAR} environment expansion. Load parses,
// LoadWithDefaults fills in optional fields, LoadAndValidate additionally
// rejects invalid values.
package config
