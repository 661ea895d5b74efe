// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Each entry under tables runs an independent engine, loader and stream
// connection.
package config
