// Package config handles YAML configuration loading for the relay.
//
// Config files support ${VAR} interpolation, and selected fields can be
// overridden directly through environment variables (see the env struct
// tags), which is how secrets reach production deployments.
package config
