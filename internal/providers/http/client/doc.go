// Package client is the raw HTTP client that replays a harvested session
// against the challenge hosts.
//
// Built on go-resty/resty over retryablehttp's pooled transport:
//   - Per-request timeout and an opt-in retry/backoff policy (off by default)
//   - Token-bucket rate limiting
//   - Circuit breaker around every call
//   - No cookie jar: cookies come only from the credentials.Store passed on
//     each Request, matched by the request URL's origin
//
// Example Usage:
//
//	c := client.NewClient(client.DefaultConfig(), client.WithLogger(logger))
//	resp, err := c.Do(ctx, &client.Request{
//		Method:      http.MethodPost,
//		URL:         "https://api.challenge.example.com/api/settings",
//		Header:      map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
//		Body:        payload.Body,
//		Credentials: store,
//	})
package client
