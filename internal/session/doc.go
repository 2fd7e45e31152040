// Package session orchestrates one harvest run.
//
// A run moves strictly forward through
//
//	unauthenticated → logging_in → authenticated → credentials_bridged →
//	fetching_public_resource → fetching_privileged_resource → completed
//
// and ends in failed on the first error. The browser login yields cookies for
// one origin; they are copied to every configured origin before any request is
// made. The privileged request carries the tokens scraped after login, signed
// with signing.Signer.
//
// Errors come back wrapped in *StageError; use errors.As for
// *AuthenticationError, *ResourceFetchError, *TokenFieldError or
// *client.NetworkError. The Sink only ever sees a complete Result.
package session
