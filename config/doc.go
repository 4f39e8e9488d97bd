// Package config loads the service configuration from a
// YAML file and the environment.
//
// Values are resolved in order: package defaults, the
// YAML file, then environment variables. The legacy
// GITHUB_TOKEN, GITHUB_REPO and GITHUB_USER variables
// are honored alongside the USULAN_* ones.
package config
