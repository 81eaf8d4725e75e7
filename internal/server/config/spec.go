// Package config defines the server configuration structure.
package config

import "time"

// Process roles.
const (
	RoleWorld = "world"
	RoleZone  = "zone"
)

// ServerConfig is the root configuration for dzmesh-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	World    WorldSection    `koanf:"world"`
	Zone     ZoneSection     `koanf:"zone"`
	Database DatabaseSection `koanf:"database"`
	Metrics  MetricsSection  `koanf:"metrics"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection identifies the process.
type ServerSection struct {
	// Role is "world" for the coordinator or "zone" for a zone process.
	Role string `koanf:"role"`

	// ZoneID and InstanceID identify a zone process. Unused by the world.
	ZoneID     uint32 `koanf:"zone_id"`
	InstanceID uint32 `koanf:"instance_id"`

	// EngineQueue is the single-writer inbox capacity.
	EngineQueue int `koanf:"engine_queue"`
}

// WorldSection configures the coordinator.
type WorldSection struct {
	// ListenAddr serves the zone websocket endpoint.
	ListenAddr string `koanf:"listen_addr"`

	// ProcessInterval is the expiry and re-election tick.
	ProcessInterval time.Duration `koanf:"process_interval"`

	// EmptyShutdownDelay is how long a memberless expedition's instance lives on.
	EmptyShutdownDelay time.Duration `koanf:"empty_shutdown_delay"`

	// LeaderCooldown is the grace period before an offline leader is replaced.
	LeaderCooldown time.Duration `koanf:"leader_cooldown"`

	// SendQueue is the per-zone outbound buffer.
	SendQueue int `koanf:"send_queue"`

	// TLSCertFile and TLSKeyFile switch the zone endpoint to wss.
	// The pair is reloaded when the files change.
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
}

// ZoneSection configures the link of a zone process.
type ZoneSection struct {
	// WorldURL is the coordinator websocket URL.
	WorldURL string `koanf:"world_url"`

	// ReconnectPerSecond bounds dial attempts.
	ReconnectPerSecond float64 `koanf:"reconnect_per_second"`

	// SpoolDir holds frames published while the link is down.
	// Empty keeps them in memory.
	SpoolDir string `koanf:"spool_dir"`

	// SpoolMaxFrames bounds the spool; 0 is unbounded.
	SpoolMaxFrames int `koanf:"spool_max_frames"`

	// SendQueue is the connected outbound buffer.
	SendQueue int `koanf:"send_queue"`

	// PublishTimeout bounds a publish waiting on a full send queue before
	// the link is recycled.
	PublishTimeout time.Duration `koanf:"publish_timeout"`

	// ProcessInterval is the instance removal tick.
	ProcessInterval time.Duration `koanf:"process_interval"`

	// RemovalDelay is how long a character who lost access to the hosted
	// instance may stay inside it.
	RemovalDelay time.Duration `koanf:"removal_delay"`

	// TLSCAFile adds a CA bundle to the system roots for wss:// URLs.
	TLSCAFile string `koanf:"tls_ca_file"`
}

// DatabaseSection configures the relational store.
type DatabaseSection struct {
	// Driver is "pgx" or "sqlite".
	Driver string `koanf:"driver"`

	// DSN is a PostgreSQL URL or a SQLite file path.
	DSN string `koanf:"dsn"`

	// AutoMigrate applies embedded migrations at startup.
	AutoMigrate bool `koanf:"auto_migrate"`

	MaxOpenConns int `koanf:"max_open_conns"`
}

// MetricsSection configures the admin HTTP endpoint.
type MetricsSection struct {
	// Addr serves /metrics, /health, /ready and the admin API. Empty disables it.
	Addr string `koanf:"addr"`

	// AdminAllowList restricts /admin/v1 to these IPs or CIDRs. Empty allows all.
	AdminAllowList []string `koanf:"admin_allow_list"`

	// AdminRateLimit is the per-IP admin request rate. Zero disables it.
	AdminRateLimit int `koanf:"admin_rate_limit"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
