// Package config handles configuration loading for the fitness portal.
//
// # Overview
//
// Configuration is loaded from YAML, or TOML when the file name ends in
// .toml, with environment variable expansion. Every optional field has a
// default; see Default.
//
// # Configuration File
//
// Location (in order):
//
//  1. Path from FITPORTAL_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/fitportal/portal.yaml (~/.config when unset)
//
// `fitportal init` writes a starter file with a random JWT secret.
//
// # Environment Variables
//
// A .env file next to the config file, or in the working directory, is
// loaded first. Variables already set in the environment win. Values can
// then reference them:
//
//	auth:
//	  jwt_secret: "${FITPORTAL_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  session_ttl: "168h"
//	analytics:
//	  dedupe_window: "30m"
//
// # Configuration Sections
//
// Record store:
//
//	database:
//	  driver: sqlite          # sqlite | postgres | memory
//	  path: "~/.local/share/fitportal/portal.db"
//	  url: "postgres://..."   # postgres only
//
// Identity provider:
//
//	auth:
//	  jwt_secret: "..."       # at least 32 bytes
//	  bcrypt_cost: 10         # 4..14
//	  min_password_length: 6
//	  session_ttl: "168h"
//	  session_file: "~/.local/share/fitportal/session.jwt"
//
// Transaction retries:
//
//	store:
//	  transact_max_attempts: 25
//	  transact_backoff: "2ms"
//
// First-start seeding (off by default):
//
//	bootstrap:
//	  enabled: true
//	  max_attempts: 3
//	  backoff: "1s"
//	  accounts:
//	    - email: admin@example.com
//	      password: "${FITPORTAL_ADMIN_PASSWORD}"
//	      role: admin
//
// Checkout, logging and metrics:
//
//	checkout:
//	  base_url: "https://pay.example.com/checkout"
//	logging:
//	  level: info             # debug | info | warn | error
//	  format: text            # text | json
//	metrics:
//	  enabled: true
//	  addr: "127.0.0.1:9090"
//	  path: /metrics
package config
