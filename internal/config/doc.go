// Package config handles YAML configuration loading with environment variable substitution.
//
// A .env file in the working directory (or the path given to LoadEnvFile) is
// loaded first, so ${SCHWAB_APP_KEY}-style references resolve without
// exporting secrets in the shell.
package config
