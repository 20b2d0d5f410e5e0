// Package config handles delivery-gateway configuration.
//
// # Configuration Format
//
// Configuration is YAML:
//
//	server:
//	  http_addr: "localhost:8080"
//
//	database:
//	  path: "/var/lib/delivery-gateway/gateway.db"
//
//	auth:
//	  jwt_secret: "${JWT_SECRET}"
//	  token_ttl: "24h"
//
//	whatsapp:
//	  provider_url: "ws://localhost:9021/session"
//	  credentials_dir: "/var/lib/delivery-gateway/wa-credentials"
//	  public_base_url: "https://delivery-master-v2.vercel.app"
//	  hours_text: "🕒 Funcionamos todos os dias das 18h às 23h!"
//	  dedupe_ttl: "5m"
//	  dedupe_max: 10000
//
//	logging:
//	  level: "info"
//	  format: "text"
//
// # Environment Variable Expansion
//
// Values in the format ${VAR_NAME} are expanded from the environment before
// parsing, so secrets can stay out of the file. Unset variables expand to
// the empty string.
//
// # Durations
//
// Duration fields (token_ttl, dedupe_ttl) are written as Go duration
// strings ("30s", "5m", "24h") and parsed at load time.
//
// # Validation and Defaults
//
// Load validates that http_addr, database.path, jwt_secret, and
// provider_url are present and fails fast otherwise. Optional values fall
// back to defaults: 24h token TTL, 5m dedupe TTL, 10000 dedupe entries,
// and text logging at info level.
package config
