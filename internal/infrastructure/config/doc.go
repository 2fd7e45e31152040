// Package config provides 12-factor configuration for harvest.
//
// Configuration is loaded from HARVEST_* environment variables with defaults
// that target the public challenge site. A TOML file named by
// HARVEST_CONFIG_FILE (or --config) is decoded on top; its keys win.
//
// Configuration Sections:
//   - Account: login username and password
//   - Signing: HMAC secret and the local freshness window
//   - Origins: every origin the harvested cookies are copied to
//   - Endpoints: login, tokens, users and settings URLs
//   - HTTP: timeout, retries, rate limit of the raw client
//   - Browser: rod or form driver, Chrome binary and profile
//   - Output, Logging, Metrics
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err == nil {
//		err = cfg.Validate()
//	}
//
// Environment Variables:
//   - HARVEST_ACCOUNT_USERNAME, HARVEST_ACCOUNT_PASSWORD
//   - HARVEST_SIGNING_SECRET, HARVEST_SIGNING_MAX_AGE
//   - HARVEST_ORIGINS
//   - HARVEST_HTTP_TIMEOUT, HARVEST_HTTP_RETRIES, HARVEST_HTTP_RETRY_WAIT, HARVEST_HTTP_RETRY_MAX_WAIT
//   - HARVEST_BROWSER_DRIVER, HARVEST_BROWSER_BIN, HARVEST_BROWSER_NAV_TIMEOUT
//   - HARVEST_OUTPUT_PATH, HARVEST_LOG_LEVEL, HARVEST_METRICS_TEXTFILE
//   - HARVEST_CONFIG_FILE
package config
