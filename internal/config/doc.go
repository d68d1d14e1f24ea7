// Package config handles configuration loading for fold-relay.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. The package provides validation and sensible defaults;
// Default() supplies the zero-config setup used when no file is present.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${FOLD_RELAY_DB}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	poll:
//	  interval: "1s"
//
// # Configuration Sections
//
// Database:
//
//	database:
//	  path: "~/.local/share/fold-relay/relay.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Safeguards:
//
//	safeguards:
//	  max_loss_fraction: 0.8
package config
