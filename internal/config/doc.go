// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// An optional dotenv file is loaded into the environment first; variables already
// set in the process environment win.
package config
