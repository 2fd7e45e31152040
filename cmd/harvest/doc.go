// Command harvest logs in to the challenge site, bridges the session cookies
// to a raw HTTP client and writes the user listing plus the current user.
//
// Usage:
//
//	harvest run [--config harvest.toml] [--output users.json] [--driver rod|form]
//	harvest sign --secret S [--timestamp N] key=value...
//	harvest sign --secret S --verify 'a=1&timestamp=...&checkcode=...'
//
// Everything else comes from HARVEST_* environment variables; see package
// internal/infrastructure/config.
package main
