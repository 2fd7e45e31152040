// Package scraper provides the HTML helpers used by the interactive session
// providers.
//
//   - load: charset-aware parsing into goquery documents and html.Node trees
//   - forms: login form discovery and hidden-input extraction by id
//   - xpath: attribute and text lookup (the login nonce)
//   - sanitize: plain-text excerpts of error bodies
//
// Built on specialized libraries:
//   - goquery: jQuery-like CSS selectors
//   - htmlquery: XPath support for HTML
//   - bluemonday: markup stripping
//   - chardet: character encoding detection
//
// Example Usage:
//
//	tokens, err := scraper.HiddenValues(page, []string{"access_token", "openId"})
//	nonce := scraper.Nonce(loginPage)
package scraper
