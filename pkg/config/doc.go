// Package config loads typed configuration from the process environment and
// from YAML files.
//
// Environment parsing is delegated to github.com/caarlos0/env/v11, with an
// optional .env file read through github.com/joho/godotenv on first use.
// Each package in this module declares its own Config struct annotated with
// env tags (pg.Config, redis.Config, directory.Config, ...), and the
// composition root loads them through Load:
//
//	var pgCfg pg.Config
//	config.MustLoad(&pgCfg)
//
// Load caches one value per type for the lifetime of the process. Parse skips
// the cache and accepts a variable prefix, which is useful when the same
// struct is needed twice (for example a primary and a replica database).
//
// LoadYAML reads structured documents that do not fit flat environment
// variables, such as the catalog of tracked tables used by the notification
// engine:
//
//	var catalog notifications.Catalog
//	if err := config.LoadYAML("tables.yaml", &catalog); err != nil {
//		return err
//	}
package config
