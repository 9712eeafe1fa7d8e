package workflow

// RetryPolicy bounds how often a failed unit is replanned before the
// failure propagates to the coarser level.
type RetryPolicy struct {
	// MaxAttempts is the number of replans allowed per unit.
	// Zero means unlimited.
	MaxAttempts int
}

// Exhausted reports whether another attempt is still allowed after the
// given number of failures.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}
