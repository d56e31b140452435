/*
Package resilience provides a circuit breaker for calls to the chat origin.

After Threshold consecutive failures the breaker opens and Do returns ErrOpen
without calling the origin. Once Cooldown has passed a single trial call is
let through: success closes the breaker, failure reopens it.

	Closed --[Threshold failures]-> Open --[Cooldown]-> Half-Open --[success]-> Closed
	                                  ^                     |
	                                  +------[failure]------+

	breaker := resilience.New(resilience.Settings{Threshold: 3, Cooldown: 30 * time.Second})
	err := breaker.Do(func() error { return check(ctx) })
*/
package resilience
