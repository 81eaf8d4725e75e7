// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultRole        = RoleZone
	DefaultEngineQueue = 1024

	DefaultWorldListenAddr    = "127.0.0.1:7100"
	DefaultProcessInterval    = 5 * time.Second
	DefaultEmptyShutdownDelay = 15 * time.Minute
	DefaultLeaderCooldown     = 30 * time.Second
	DefaultWorldSendQueue     = 256

	DefaultWorldURL            = "ws://127.0.0.1:7100/zones"
	DefaultReconnectPerSecond  = 1.0
	DefaultZoneSendQueue       = 256
	DefaultPublishTimeout      = 5 * time.Second
	DefaultZoneProcessInterval = time.Second
	DefaultRemovalDelay        = time.Minute

	DefaultDatabaseDriver = "sqlite"
	DefaultDatabaseDSN    = "/var/lib/dzmesh/dzmesh.db"
	DefaultMaxOpenConns   = 10

	DefaultMetricsAddr    = "127.0.0.1:7180"
	DefaultAdminRateLimit = 50

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Role:        DefaultRole,
			EngineQueue: DefaultEngineQueue,
		},
		World: WorldSection{
			ListenAddr:         DefaultWorldListenAddr,
			ProcessInterval:    DefaultProcessInterval,
			EmptyShutdownDelay: DefaultEmptyShutdownDelay,
			LeaderCooldown:     DefaultLeaderCooldown,
			SendQueue:          DefaultWorldSendQueue,
		},
		Zone: ZoneSection{
			WorldURL:           DefaultWorldURL,
			ReconnectPerSecond: DefaultReconnectPerSecond,
			SendQueue:          DefaultZoneSendQueue,
			PublishTimeout:     DefaultPublishTimeout,
			ProcessInterval:    DefaultZoneProcessInterval,
			RemovalDelay:       DefaultRemovalDelay,
		},
		Database: DatabaseSection{
			Driver:       DefaultDatabaseDriver,
			DSN:          DefaultDatabaseDSN,
			AutoMigrate:  true,
			MaxOpenConns: DefaultMaxOpenConns,
		},
		Metrics: MetricsSection{
			Addr:           DefaultMetricsAddr,
			AdminRateLimit: DefaultAdminRateLimit,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
