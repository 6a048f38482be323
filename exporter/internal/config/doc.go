// Package config loads and watches the exporter configuration file.
//
// Top-level types:
//   - Config{Server, Schedule, Stores}: full tree parsed from YAML
//   - Store: one store back-end: id, name, url, credentials, currency,
//     enabled, timeout, max_retries, scrape_interval, auth_mode, tls
//   - ValidationError: every violation found during Load, reported together
//
// Load(path) reads the YAML file, applies defaults (listen :9464, 30s store
// timeout, 5m scrape interval, 3 probe retries), resolves *_env credentials
// from the environment, then validates. Validation never stops at the first
// problem: all of them are collected into one ValidationError, which callers
// treat as fatal.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config.
package config
