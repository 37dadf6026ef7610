// Package config provides configuration management for the extraction worker.
//
// Configuration is loaded from environment variables and validated on startup.
// All configuration options have sensible defaults for development. Rule
// engine settings use the RULE_ prefix and map to rule.Options:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine, err := rule.NewEngine(cfg.EngineOptions(), logger)
package config
