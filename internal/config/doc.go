// Package config handles configuration loading for loop-support.
//
// # Overview
//
// Configuration comes from an optional YAML or TOML file, .env files, and
// environment variables. Only the API base URL is required.
//
// # Configuration File
//
// Locations (in order):
//
//  1. The --config flag
//  2. Path from the LOOP_SUPPORT_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/loop-support/config.yaml (~/.config when unset)
//
// A missing file at the default location is not an error. A path given
// explicitly must exist. Files ending in .toml are parsed as TOML.
//
// Example:
//
//	api:
//	  base_url: "${SUPPORT_API_BASE_URL}"
//	  timeout: "10s"
//
//	support:
//	  default_category: "General"
//	  poll_interval: "1500ms"
//
//	storage:
//	  driver: "sqlite"        # file | sqlite | memory
//	  path: "~/.local/share/loop-support/support.db"
//
//	client:
//	  locale: "en-US"
//
//	logging:
//	  level: "info"
//	  format: "text"
//
// # Environment
//
// ${VAR_NAME} references in the file are expanded before parsing. After
// parsing, SUPPORT_API_BASE_URL and SUPPORT_DEFAULT_CATEGORY override the
// file. Resolve loads .env from the working directory (and its parent)
// first; variables already set in the environment are not replaced.
//
// # Defaults
//
//   - api.timeout: 10s
//   - support.default_category: General
//   - support.poll_interval: 1500ms
//   - storage.driver: file, at $XDG_DATA_HOME/loop-support/session.json
//   - client.locale: derived from LANG
//   - logging: info, text
package config
