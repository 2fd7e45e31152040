// Package credentials carries session cookies harvested from an interactive
// login over to a raw HTTP client.
//
// The login page and the API live on different subdomains that do not share
// a cookie store. Propagate copies every harvested cookie, verbatim, to every
// configured origin. This is a value copy and not a browser cookie policy:
// Domain, Path, Secure and expiry attributes are ignored. Listing an origin
// therefore asserts that it sits inside the same trust boundary as the login
// host; anything listed receives the session.
//
// The Store is written once by Propagate and is read-only afterwards.
// Cookie values are sensitive and must never be logged; use Summary for logs.
package credentials
