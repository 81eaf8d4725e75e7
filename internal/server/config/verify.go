// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	switch cfg.Server.Role {
	case RoleWorld:
		if err := verifyWorld(&cfg.World); err != nil {
			return err
		}
	case RoleZone:
		if err := verifyZone(&cfg.Zone); err != nil {
			return err
		}
	}
	if err := verifyDatabase(&cfg.Database); err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			return fmt.Errorf("metrics.addr: %w", err)
		}
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	switch cfg.Role {
	case RoleWorld:
	case RoleZone:
		if cfg.ZoneID == 0 {
			return errors.New("server.zone_id is required for role zone")
		}
	default:
		return fmt.Errorf("server.role must be %q or %q, got %q", RoleWorld, RoleZone, cfg.Role)
	}
	if cfg.EngineQueue < 1 {
		return errors.New("server.engine_queue must be at least 1")
	}
	return nil
}

func verifyWorld(cfg *WorldSection) error {
	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		return fmt.Errorf("world.listen_addr: %w", err)
	}
	if cfg.ProcessInterval <= 0 {
		return errors.New("world.process_interval must be positive")
	}
	if cfg.EmptyShutdownDelay < 0 || cfg.LeaderCooldown < 0 {
		return errors.New("world delays must not be negative")
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("world.tls_cert_file and world.tls_key_file must be set together")
	}
	return nil
}

func verifyZone(cfg *ZoneSection) error {
	u, err := url.Parse(cfg.WorldURL)
	if err != nil {
		return fmt.Errorf("zone.world_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("zone.world_url scheme must be ws or wss, got %q", u.Scheme)
	}
	if cfg.ReconnectPerSecond <= 0 {
		return errors.New("zone.reconnect_per_second must be positive")
	}
	if cfg.PublishTimeout <= 0 {
		return errors.New("zone.publish_timeout must be positive")
	}
	if cfg.ProcessInterval <= 0 {
		return errors.New("zone.process_interval must be positive")
	}
	if cfg.RemovalDelay < 0 {
		return errors.New("zone.removal_delay must not be negative")
	}
	if cfg.SpoolMaxFrames < 0 {
		return errors.New("zone.spool_max_frames must not be negative")
	}
	if cfg.TLSCAFile != "" && u.Scheme != "wss" {
		return errors.New("zone.tls_ca_file needs a wss:// world_url")
	}
	return nil
}

func verifyDatabase(cfg *DatabaseSection) error {
	switch strings.ToLower(cfg.Driver) {
	case "pgx", "postgres", "postgresql", "sqlite":
	default:
		return fmt.Errorf("database.driver must be pgx or sqlite, got %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return errors.New("database.dsn is required")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Format)
	}
	return nil
}
