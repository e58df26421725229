// Package config loads matchsync configuration.
//
// Sources, in order of precedence (last wins):
//   - YAML file, with ${VAR} expansion
//   - .env file in the working directory (loaded into the process environment)
//   - MATCHSYNC_* environment variables declared on the struct tags
//
// Defaults are applied after loading; Validate rejects inconsistent settings.
package config
