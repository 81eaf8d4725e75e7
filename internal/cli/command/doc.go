// Package command defines the dzmesh-cli commands on urfave/cli/v2.
//
//   - status, health, ready: process state from the admin API
//   - expedition list|get: the cached expeditions of a world or zone
//   - zone list: zones linked to the world
//   - db migrate|version|expeditions: direct access to the shared database
//
// Admin commands share the --server, --output and --wide flags. Database
// commands read the server configuration file, overridable with --driver
// and --dsn.
//
// @req RQ-0602
// @design DS-0601
package command
