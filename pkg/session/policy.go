package session

import "time"

// RetryPolicy bounds a retry loop. A zero value is filled in with the
// defaults of the operation it is passed to; policies are immutable per
// call.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries including the first.
	MaxAttempts uint
	// InitialBackoff is the wait after the first failed attempt.
	InitialBackoff time.Duration
	// BackoffMultiplier scales the wait after each failure.
	BackoffMultiplier uint
	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration
}

// DefaultJoinPolicy bounds the OTAA join sequence: five attempts with
// exponential backoff starting at one second, capped at thirty.
func DefaultJoinPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2,
		MaxBackoff:        30 * time.Second,
	}
}

// DefaultSendPolicy bounds uplink transmission: three attempts for
// confirmed sends, one for unconfirmed. Transmission retries use a fixed
// inter-attempt delay, so the backoff fields stay zero here.
func DefaultSendPolicy(confirmed bool) RetryPolicy {
	attempts := uint(1)
	if confirmed {
		attempts = 3
	}
	return RetryPolicy{MaxAttempts: attempts}
}

func (p RetryPolicy) withDefaults(def RetryPolicy) RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff == 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.BackoffMultiplier == 0 {
		p.BackoffMultiplier = def.BackoffMultiplier
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	return p
}

// backoff returns the wait after the given 1-based failed attempt:
// InitialBackoff * BackoffMultiplier^(attempt-1), capped at MaxBackoff.
func (p RetryPolicy) backoff(attempt uint) time.Duration {
	d := p.InitialBackoff
	for i := uint(1); i < attempt; i++ {
		d *= time.Duration(p.BackoffMultiplier)
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}
