// Package config provides configuration types and loading for the
// pipeline service: YAML files, environment-variable expansion, .env
// files, and a hot-reloaded model-mapping table.
package config

// Interface defines the contract every configuration section implements,
// so Config can validate and default its children uniformly.
type Interface interface {
	// Validate checks if the configuration is valid and returns an error if not.
	Validate() error

	// SetDefaults sets default values for any unset fields.
	SetDefaults()
}
