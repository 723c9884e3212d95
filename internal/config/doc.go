// Package config manages configuration for the presence server.
//
// Configuration is read from environment variables into tagged structs and
// then validated as a whole:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
// # Configuration Groups
//
//   - ServerConfig: HTTP listener, CORS origins, log level
//   - DatabaseConfig: SurrealDB connection settings
//   - JWTConfig: bearer token validation
//   - SocketConfig: websocket keepalive, frame size, per-connection event rate
//   - PresenceConfig: emote freshness window, layer capacity policy
//   - TelemetryConfig: OpenTelemetry trace export
//
// Defaults are suitable for local development; Validate reports every
// problem at once so a misconfigured deployment fails with a full list.
package config
