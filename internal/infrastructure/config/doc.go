// Package config loads and validates the device console configuration.
//
// Values are resolved in three layers: hardcoded defaults, the YAML file,
// then DEVCONSOLE_* environment variables.
//
// Security Considerations:
//   - The session secret has no default and must be at least 32 characters
//   - Passwords and tokens should be supplied through environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
