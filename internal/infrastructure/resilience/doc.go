/*
Package resilience provides the circuit breaker that guards outbound HTTP.

A harvest run is short and sequential, so the breaker mostly matters when the
retry policy is enabled: once the remote host keeps failing at the transport
level the breaker opens and remaining attempts fail fast with ErrCircuitOpen
instead of waiting out every backoff.

# Usage

	breaker := resilience.New("challenge-api", resilience.Settings{
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 3 },
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state", zap.String("name", name), zap.Stringer("to", to))
		},
	})

	resp, err := resilience.Do(breaker, func() (*resty.Response, error) {
		return req.Post(url)
	})

# States

  - Closed: calls pass; counts reset every Interval
  - Open: calls fail with ErrCircuitOpen until Timeout elapses
  - Half-open: up to MaxRequests trial requests; MaxRequests successes close it, one failure reopens
*/
package resilience
