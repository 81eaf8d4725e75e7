// Package config defines the server configuration structure.
package config

import (
	"net/url"
	"regexp"
	"strings"
)

var dsnPassword = regexp.MustCompile(`(?i)(password=)(\S+)`)

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Database.DSN = MaskDSN(cfg.Database.DSN)
	return &sanitized
}

// MaskDSN hides the password of a URL or key=value connection string.
func MaskDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		if u, err := url.Parse(dsn); err == nil && u.User != nil {
			if _, ok := u.User.Password(); ok {
				return u.Redacted()
			}
			return dsn
		}
	}
	return dsnPassword.ReplaceAllStringFunc(dsn, func(m string) string {
		parts := dsnPassword.FindStringSubmatch(m)
		return parts[1] + maskSecret(parts[2])
	})
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
