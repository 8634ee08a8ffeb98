// Package confloader loads layered configuration with koanf.
//
// Sources are merged with the priority (highest to lowest):
//
//  1. Explicit overrides (command-line flags) via LoadMap
//  2. Environment variables with the ROUTEMESH_ prefix
//  3. The YAML configuration file
//  4. Values already present in the target struct (defaults)
//
// Environment variable names use a double underscore between levels
// so that single underscores may appear in key names:
// ROUTEMESH_SERVER__HTTP__READ_TIMEOUT=5s sets server.http.read_timeout.
//
// Watcher reports changes to watched files through fsnotify so the
// server can re-apply its hot-reloadable settings and key pair.
package confloader
