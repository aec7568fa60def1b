// Package config handles loading and validating elan2mqtt configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (ELAN2MQTT_* prefix)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The hub password and broker credentials should be set via environment
//     variables or the command line rather than committed config files
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("/etc/elan2mqtt/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
