/*
Package resilience guards calls to a remote run-js server.

A Breaker counts failures in a row. At the threshold it opens and rejects
calls with ErrCircuitOpen until the cooldown passes, then admits a limited
number of probes. Successful probes close it; a failed probe reopens it.

	breaker := resilience.New("runjs", resilience.Settings{Threshold: 3, Cooldown: 10 * time.Second})
	resp, err := resilience.Do(ctx, breaker, func(ctx context.Context) (*Response, error) {
		return client.post(ctx, req)
	})

	Closed --[threshold failures]-> Open --[cooldown]-> Half-Open --[probes succeed]-> Closed
	                                  ^                      |
	                                  +-----[probe fails]----+
*/
package resilience
