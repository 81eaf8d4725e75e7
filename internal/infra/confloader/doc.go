// Package confloader provides configuration loading mechanism.
//
// This package implements a configuration loader that reads several
// sources using koanf as the underlying library.
//
// Features:
//
//   - Sources: a YAML file, .env files, environment variables, flag maps
//   - Watch Support: debounced notification on config file changes
//   - Defaults: keys no source mentions keep the value of the target struct
//
// Priority (highest to lowest):
//
//  1. Command-line flags
//  2. Environment variables (.env files never override the real environment)
//  3. Configuration file
//  4. Default values
//
// @design DS-0502
// @adr AD-0501
package confloader
