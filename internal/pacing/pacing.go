// Package pacing paces unsolicited outbound traffic so a burst of
// self-initiated sends from one tick can't flood the transport's
// non-blocking outbound queue. The irc Client consults it before each
// background WHO poll (Client.sendWho); its NickServ commands, JOINs and
// MONITOR registration are sent without pacing. It wraps golang.org/x/time/rate the same way
// the teacher module throttles its own outbound TAGMSG traffic: one
// rate.Limiter, consulted with Allow before every send it guards.
package pacing

import "golang.org/x/time/rate"

// Limiter paces one Client's unsolicited outbound sends.
type Limiter struct {
	limit *rate.Limiter
}

// New returns a Limiter allowing burst sends immediately, then refilling at
// eventsPerSecond.
func New(eventsPerSecond float64, burst int) *Limiter {
	return &Limiter{limit: rate.NewLimiter(rate.Limit(eventsPerSecond), burst)}
}

// Allow reports whether a send may proceed now without exceeding the pace.
// A caller that gets false should drop or defer the send; unlike the
// transport's try_send, pacing failures are never fatal.
func (l *Limiter) Allow() bool {
	return l.limit.Allow()
}
