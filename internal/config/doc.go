// Package config loads the mail settings from a shell-style KEY=value file
// (or a flat YAML file), environment variables and CLI flags with precedence:
// CLI flags > config file > Environment variables > Defaults. The rest of
// the application sees only the typed Config.
package config
