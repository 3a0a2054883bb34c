package resilience

import (
	"time"
)

// FromConfig builds a RetryConfig from ingest settings. A positive delay
// with exponential=false gives the flat wait used by scheduled runs;
// exponential=true doubles the delay after each attempt.
func FromConfig(maxAttempts int, delay time.Duration, exponential bool) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if exponential {
		if delay > 0 {
			cfg.InitialBackoff = delay
		}
		return cfg
	}
	cfg.Backoff = FixedBackoff(delay)
	return cfg
}
